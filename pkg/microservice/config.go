// Package microservice hosts the HTTP surface around the cache layer: a
// health probe and the administrative cache endpoints. The user-facing CRUD
// routes live with the API handlers that consume this module.
package microservice

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the service-level settings, loaded from the environment.
type Config struct {
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort        string `env:"HTTP_PORT" envDefault:":8080"`
	ProjectID       string `env:"GCP_PROJECT_ID"`
	CredentialsFile string `env:"GCP_CREDENTIALS_FILE"`

	UsersCollection string `env:"USERS_COLLECTION" envDefault:"users"`
	BlogsCollection string `env:"BLOGS_COLLECTION" envDefault:"blogs"`

	RefreshInterval time.Duration `env:"CACHE_REFRESH_INTERVAL" envDefault:"5m"`
	RebuildTimeout  time.Duration `env:"CACHE_REBUILD_TIMEOUT" envDefault:"30s"`
	// TickTimeout bounds one refresh pass, including the warm-up pass run
	// during startup.
	TickTimeout time.Duration `env:"CACHE_TICK_TIMEOUT" envDefault:"1m"`

	// Optional collaborators; empty values disable them.
	RedisAddr           string `env:"REDIS_ADDR"`
	InvalidationTopicID string `env:"INVALIDATION_TOPIC_ID"`
	AuditDatasetID      string `env:"AUDIT_DATASET_ID"`
	AuditTableID        string `env:"AUDIT_TABLE_ID" envDefault:"user_mutations"`
	ProfileImageBucket  string `env:"PROFILE_IMAGE_BUCKET"`
}

// LoadConfig parses the Config from the environment.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}
	return &cfg, nil
}
