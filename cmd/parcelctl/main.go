package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"parceltrack/internal/app"
	"parceltrack/internal/config"
	"parceltrack/internal/engine"
	"parceltrack/internal/engine/auth"
	"parceltrack/internal/logging"
	"parceltrack/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "parcelctl",
	Short: "Parcel tracking CLI",
	Long: `parcelctl records where parcels are and what went wrong with them.
- Parcels move through shipping states (Received, in transit, in a warehouse); every move is kept in the parcel history.
- Issues are damage or loss reports filed against a parcel, with a status, comments and attachments.
- Containers group parcels so a whole batch can be moved to a new state at once.
- serve exposes the same operations over HTTP (OpenAPI at <base>/openapi.json, Swagger UI at /docs).`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PARCELTRACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", config.FileName, "config file")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "cli", "actor recorded in logs")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(parcelCmd())
	rootCmd.AddCommand(issueCmd())
	rootCmd.AddCommand(containerCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

// loadConfig reads the config file (defaults when absent) and applies
// PARCELTRACK_* environment overrides for secrets and connection strings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	overrides := []struct {
		key string
		dst *string
	}{
		{"database-driver", &cfg.Database.Driver},
		{"database-dsn", &cfg.Database.DSN},
		{"data-dir", &cfg.Database.DataDir},
		{"jwt-secret", &cfg.Auth.JWTSecret},
		{"s3-access-key-id", &cfg.Blob.S3.AccessKeyID},
		{"s3-secret-access-key", &cfg.Blob.S3.SecretAccessKey},
		{"log-level", &cfg.Log.Level},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(viper.GetString(o.key)); v != "" {
			*o.dst = v
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (zerolog.Logger, error) {
	return logging.New(cfg.Log, os.Stderr)
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	rt, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	ctx = logger.With().Str("actor_id", viper.GetString("actor-id")).Logger().WithContext(ctx)
	return fn(ctx, rt)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
		return fn(ctx, rt.Engine)
	})
}

// cliPrincipal acts with full permissions; access to the database is the
// credential for local commands.
func cliPrincipal() auth.Principal {
	return auth.Principal{
		ActorID:     viper.GetString("actor-id"),
		Permissions: []string{"*"},
		Source:      "cli",
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				cfg := rt.Config
				if addr == "" {
					addr = cfg.Server.Addr
				}
				if basePath == "" {
					basePath = cfg.Server.BasePath
				}
				if cfg.Auth.JWTSecret == "" {
					rt.Logger.Warn().Msg("no jwt secret configured; bearer tokens are rejected")
				}
				handler, err := server.New(server.Config{
					Engine:   rt.Engine,
					BasePath: basePath,
					Auth: server.AuthConfig{
						JWTSecret:      cfg.Auth.JWTSecret,
						AllowAnonymous: cfg.Auth.AllowAnonymous,
						AnonymousRole:  cfg.Auth.AnonymousRole,
					},
					Logger:         rt.Logger,
					Metrics:        rt.Metrics,
					FilesDir:       rt.FilesDir(),
					MaxUploadBytes: cfg.Server.MaxUploadBytes,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				rt.Logger.Info().Str("addr", addr).Str("base_path", basePath).Msg("serving parceltrack API")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	return cmd
}

// --- helpers ---

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
