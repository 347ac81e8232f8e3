package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"parceltrack/internal/domain"
	"parceltrack/internal/logging"
)

const FileName = "parceltrack.yml"

// Config models parceltrack.yml.
type Config struct {
	Server struct {
		Addr           string `yaml:"addr"`
		BasePath       string `yaml:"base_path"`
		MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	} `yaml:"server"`
	Database struct {
		Driver  string `yaml:"driver"`
		DataDir string `yaml:"data_dir"`
		DSN     string `yaml:"dsn"`
	} `yaml:"database"`
	Blob struct {
		Driver string `yaml:"driver"`
		FS     struct {
			Root    string `yaml:"root"`
			BaseURL string `yaml:"base_url"`
		} `yaml:"fs"`
		S3 struct {
			Bucket          string `yaml:"bucket"`
			Region          string `yaml:"region"`
			Endpoint        string `yaml:"endpoint"`
			PathStyle       bool   `yaml:"path_style"`
			AccessKeyID     string `yaml:"access_key_id"`
			SecretAccessKey string `yaml:"secret_access_key"`
			PublicBaseURL   string `yaml:"public_base_url"`
		} `yaml:"s3"`
	} `yaml:"blob"`
	Log  logging.Config `yaml:"log"`
	Auth struct {
		JWTSecret      string              `yaml:"jwt_secret"`
		AllowAnonymous bool                `yaml:"allow_anonymous"`
		AnonymousRole  string              `yaml:"anonymous_role"`
		Roles          map[string]RBACRole `yaml:"roles"`
	} `yaml:"auth"`
	Parcels struct {
		EnforceTransitions bool                `yaml:"enforce_transitions"`
		Transitions        map[string][]string `yaml:"transitions"`
	} `yaml:"parcels"`
	Issues struct {
		RequireParcel bool `yaml:"require_parcel"`
	} `yaml:"issues"`
	Listing struct {
		DefaultPageSize int `yaml:"default_page_size"`
		MaxPageSize     int `yaml:"max_page_size"`
	} `yaml:"listing"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("config.database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("config.database.driver must be sqlite or postgres")
	}
	switch c.Blob.Driver {
	case "fs", "memory":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("config.blob.s3.bucket is required for s3")
		}
	default:
		return fmt.Errorf("config.blob.driver must be fs, s3 or memory")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Server.MaxUploadBytes < 0 {
		return fmt.Errorf("config.server.max_upload_bytes must not be negative")
	}
	if _, err := c.TransitionTable(); err != nil {
		return err
	}
	for roleID, role := range c.Auth.Roles {
		if roleID == "" {
			return fmt.Errorf("config.auth.roles contains empty role id")
		}
		for _, perm := range role.Permissions {
			if perm == "" {
				return fmt.Errorf("role %s has empty permission id", roleID)
			}
		}
	}
	if c.Auth.AllowAnonymous {
		if c.Auth.AnonymousRole == "" {
			return fmt.Errorf("config.auth.anonymous_role is required when allow_anonymous is set")
		}
		if _, ok := c.Auth.Roles[c.Auth.AnonymousRole]; !ok {
			return fmt.Errorf("anonymous role %s not defined in config.auth.roles", c.Auth.AnonymousRole)
		}
	}
	if c.Listing.DefaultPageSize < 1 {
		return fmt.Errorf("config.listing.default_page_size must be at least 1")
	}
	if c.Listing.MaxPageSize < c.Listing.DefaultPageSize {
		return fmt.Errorf("config.listing.max_page_size must be at least default_page_size")
	}
	return nil
}

// TransitionTable builds the parcel transition table from config.
func (c *Config) TransitionTable() (domain.TransitionTable, error) {
	return domain.NewTransitionTable(c.Parcels.EnforceTransitions, c.Parcels.Transitions)
}

// RolePermissions flattens the role catalog for the authorizer.
func (c *Config) RolePermissions() map[string][]string {
	out := make(map[string][]string, len(c.Auth.Roles))
	for id, role := range c.Auth.Roles {
		out[id] = append([]string(nil), role.Permissions...)
	}
	return out
}

// Path returns the config file path inside a directory.
func Path(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load reads and validates config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with parcelctl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the file does not exist.
func LoadOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses raw YAML over the defaults and validates the result.
// Maps given in the file replace the default maps wholesale.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if overlay.Auth.Roles != nil {
		cfg.Auth.Roles = nil
	}
	if overlay.Parcels.Transitions != nil {
		cfg.Parcels.Transitions = nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	return Load(path)
}

// Marshal renders the config back to YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1
  max_upload_bytes: 33554432

database:
  driver: sqlite
  data_dir: .parceltrack

blob:
  driver: fs
  fs:
    root: .parceltrack/attachments
    base_url: /files
  s3:
    region: us-east-1

log:
  level: info
  format: json

auth:
  allow_anonymous: true
  anonymous_role: operator
  roles:
    admin:
      description: "Full access including deletes"
      permissions: ["*"]
    operator:
      description: "Track parcels, file and update issues, manage containers"
      permissions:
        - parcel.read
        - parcel.write
        - issue.read
        - issue.write
        - container.read
        - container.write
    viewer:
      description: "Read-only access"
      permissions: [parcel.read, issue.read, container.read]

parcels:
  enforce_transitions: true
  transitions:
    Received: [InTransitDomesticA, InTransitDomesticB, InTransitInternational, InWarehouseA, InWarehouseB]
    InTransitDomesticA: [InTransitInternational, InWarehouseA, InWarehouseB]
    InTransitDomesticB: [InTransitInternational, InWarehouseA, InWarehouseB]
    InTransitInternational: [InWarehouseA, InWarehouseB]

issues:
  require_parcel: false

listing:
  default_page_size: 10
  max_page_size: 200
`
