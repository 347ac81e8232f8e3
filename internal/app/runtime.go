// Package app assembles the process runtime shared by the CLI and the HTTP server.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"parceltrack/internal/blob"
	"parceltrack/internal/blob/fs"
	"parceltrack/internal/blob/memory"
	"parceltrack/internal/blob/s3"
	"parceltrack/internal/config"
	"parceltrack/internal/db"
	"parceltrack/internal/engine"
	"parceltrack/internal/metrics"
	"parceltrack/internal/migrate"
)

// Runtime owns the open handles behind an Engine.
type Runtime struct {
	Config  *config.Config
	DB      *sql.DB
	Dialect db.Dialect
	Blobs   blob.Store
	Engine  engine.Engine
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// Open connects the database, applies migrations and builds the engine.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conn, dialect, err := db.Open(ctx, db.Config{
		Driver:  db.Driver(cfg.Database.Driver),
		DataDir: cfg.Database.DataDir,
		DSN:     cfg.Database.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(ctx, conn, dialect); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	store, err := OpenBlobStore(ctx, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	e, err := engine.New(conn, dialect, store, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	m := metrics.New()
	e.Metrics = m
	e.Logger = logger
	logger.Debug().
		Str("db_driver", string(dialect.Driver)).
		Str("blob_driver", string(store.Driver())).
		Msg("runtime ready")
	return &Runtime{
		Config:  cfg,
		DB:      conn,
		Dialect: dialect,
		Blobs:   store,
		Engine:  e,
		Metrics: m,
		Logger:  logger,
	}, nil
}

func (r *Runtime) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// FilesDir is the directory served under /files, empty unless attachments
// live on the local filesystem.
func (r *Runtime) FilesDir() string {
	if st, ok := r.Blobs.(*fs.Store); ok {
		return st.Root()
	}
	return ""
}

// OpenBlobStore builds the attachment store named by cfg.Blob.Driver.
func OpenBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch blob.Driver(strings.ToLower(strings.TrimSpace(cfg.Blob.Driver))) {
	case "", blob.DriverFilesystem:
		return fs.New(cfg.Blob.FS.Root, cfg.Blob.FS.BaseURL)
	case blob.DriverMemory:
		return memory.New(), nil
	case blob.DriverS3:
		s := cfg.Blob.S3
		return s3.New(ctx, s3.Config{
			Region:          s.Region,
			Bucket:          s.Bucket,
			Endpoint:        s.Endpoint,
			AccessKeyID:     s.AccessKeyID,
			SecretAccessKey: s.SecretAccessKey,
			PathStyle:       s.PathStyle,
			PublicBaseURL:   s.PublicBaseURL,
		})
	default:
		return nil, fmt.Errorf("unsupported blob driver %q", cfg.Blob.Driver)
	}
}
