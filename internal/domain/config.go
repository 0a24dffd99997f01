package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string           `mapstructure:"environment"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Guidelines  GuidelinesConfig `mapstructure:"guidelines"`
	Signoff     SignoffConfig    `mapstructure:"signoff"`
	Audit       AuditConfig      `mapstructure:"audit"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	MCP         MCPConfig        `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"` // requests per second per client
	RateBurst    int           `mapstructure:"rate_burst"`
	UserHeader   string        `mapstructure:"user_header"` // reviewer identity set by the upstream proxy
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// CacheConfig covers the dropdown option cache and the Redis channel used to
// broadcast guideline reloads between instances.
type CacheConfig struct {
	OptionCacheSize int    `mapstructure:"option_cache_size"`
	RedisURL        string `mapstructure:"redis_url"`
	ReloadChannel   string `mapstructure:"reload_channel"`
}

// GuidelinesConfig selects which guideline catalogs are loaded.
type GuidelinesConfig struct {
	Dir     string   `mapstructure:"dir"`     // extra YAML guideline files
	Enabled []string `mapstructure:"enabled"` // empty means all
}

// SignoffConfig parameterises the signoff controller and reuse resolver.
type SignoffConfig struct {
	RequiredChecks   int  `mapstructure:"required_checks"`
	RequireAgreement bool `mapstructure:"require_agreement"`
	VUSReviewMonths  int  `mapstructure:"vus_review_months"`
	ReviewMonths     int  `mapstructure:"review_months"`
}

// AuditConfig selects the audit trail backend.
type AuditConfig struct {
	Driver     string `mapstructure:"driver"` // "postgres", "sqlite" or "none"
	SQLitePath string `mapstructure:"sqlite_path"`
	ExportDir  string `mapstructure:"export_dir"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	Filename string `mapstructure:"filename"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
}

// DefaultSignoffConfig returns the two-reviewer, lenient signoff policy.
func DefaultSignoffConfig() SignoffConfig {
	return SignoffConfig{
		RequiredChecks:   2,
		RequireAgreement: false,
		VUSReviewMonths:  6,
		ReviewMonths:     24,
	}
}
