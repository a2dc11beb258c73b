package app

import (
	"os"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the daemon configuration, loadable from environment
// variables (SYNC_ prefix), flags, or YAML config files.
type Config struct {
	Addr    string `default:"0.0.0.0:8081" usage:"Health endpoint listen address"`
	Backend string `default:"firestore" usage:"Document store backend: firestore or postgres"`

	DatabaseURL      string `usage:"PostgreSQL connection URL (SYNC_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	FirestoreProject string `usage:"GCP project id for the Firestore backend" flag:"firestore-project"`
	CredentialsFile  string `default:"" usage:"Service account credentials file (optional)" flag:"credentials-file"`

	UserID  string `usage:"Signed-in user id scoping the wishlist (empty runs signed-out)" flag:"user-id"`
	CartDir string `default:"data/cart" usage:"Directory holding the local cart snapshot" flag:"cart-dir"`

	UsersCollection string `default:"users" usage:"Collection holding user documents" flag:"users-collection"`
	WishlistField   string `default:"wishlist" usage:"User document field holding wishlist membership" flag:"wishlist-field"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and platform defaults, then validates backend requirements.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SYNC",
		Files:     []string{"config.yaml", "/etc/syncstore/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	switch cfg.Backend {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("database URL is required: set SYNC_DATABASE_URL or DATABASE_URL")
		}
	case "firestore":
		if cfg.FirestoreProject == "" {
			return nil, errors.New("firestore project is required: set SYNC_FIRESTORE_PROJECT")
		}
	default:
		return nil, errors.Errorf("unknown backend %q: expected firestore or postgres", cfg.Backend)
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) with standard names like DATABASE_URL and PORT
// onto the SYNC_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8081" {
		c.Addr = "0.0.0.0:" + port
	}
}
