// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig         `mapstructure:"app"`
	Server       ServerConfig      `mapstructure:"server"`
	Wizard       WizardConfig      `mapstructure:"wizard"`
	Database     DatabaseConfig    `mapstructure:"database"`
	Integrations IntegrationConfig `mapstructure:"integrations"`
	Logging      LoggingConfig     `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

// Storage backends for wizard snapshots.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// WizardConfig holds the settings shared by the form engine, the navigation
// contract and the snapshot store. TotalSteps is the single source for the
// step count.
type WizardConfig struct {
	TotalSteps       int    `mapstructure:"total_steps"`
	DebounceMs       int    `mapstructure:"debounce_ms"`
	SnapshotTTLHours int    `mapstructure:"snapshot_ttl_hours"`
	SubmitDelayMs    int    `mapstructure:"submit_delay_ms"`
	StorageBackend   string `mapstructure:"storage_backend"`
	KeyPrefix        string `mapstructure:"key_prefix"`
}

// DebounceDelay returns the snapshot debounce window.
func (w WizardConfig) DebounceDelay() time.Duration {
	return GetDuration(w.DebounceMs)
}

// SnapshotTTL returns the snapshot freshness window.
func (w WizardConfig) SnapshotTTL() time.Duration {
	return time.Duration(w.SnapshotTTLHours) * time.Hour
}

// SubmitDelay returns the delay of the simulated submitter.
func (w WizardConfig) SubmitDelay() time.Duration {
	return GetDuration(w.SubmitDelayMs)
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// IntegrationConfig holds settings for notification and workflow services
// that receive submitted reports.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled  bool   `mapstructure:"enabled"`
			TopicARN string `mapstructure:"topic_arn"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`

	Camunda struct {
		Enabled       bool   `mapstructure:"enabled"`
		BrokerAddress string `mapstructure:"broker_address"`
		ProcessID     string `mapstructure:"process_id"`
	} `mapstructure:"camunda"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
