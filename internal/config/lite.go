package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/svd-classify/internal/domain"
)

// LiteConfig configures the database-free mode: classifications live in
// memory and only the audit trail is written to a local SQLite file.
// It is read from environment variables alone.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for the audit database and exports

	// Guidelines
	GuidelineDir    string // Optional directory of extra guideline YAML files
	OptionCacheSize int    // Memoised dropdown option lists

	// Signoff policy
	RequiredChecks   int
	RequireAgreement bool

	// HTTP
	HTTPPort int

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	signoff := domain.DefaultSignoffConfig()

	return &LiteConfig{
		DataDir:          filepath.Join(homeDir, ".svd-classify"),
		OptionCacheSize:  512,
		RequiredChecks:   signoff.RequiredChecks,
		RequireAgreement: signoff.RequireAgreement,
		HTTPPort:         8080,
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("SVD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	cfg.GuidelineDir = os.Getenv("SVD_GUIDELINE_DIR")
	if v := os.Getenv("SVD_OPTION_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.OptionCacheSize = n
		}
	}

	if v := os.Getenv("SVD_REQUIRED_CHECKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RequiredChecks = n
		}
	}
	if v := os.Getenv("SVD_REQUIRE_AGREEMENT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RequireAgreement = b
		}
	}

	if v := os.Getenv("SVD_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	if v := os.Getenv("SVD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SVD_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// AuditDBPath returns the path to the audit SQLite database.
func (c *LiteConfig) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}

// SignoffConfig returns the signoff policy with default review windows.
func (c *LiteConfig) SignoffConfig() domain.SignoffConfig {
	s := domain.DefaultSignoffConfig()
	s.RequiredChecks = c.RequiredChecks
	s.RequireAgreement = c.RequireAgreement
	return s
}

// LoggingConfig returns the logger settings; lite mode logs to stderr so
// that stdout stays free for the MCP stdio transport.
func (c *LiteConfig) LoggingConfig() domain.LoggingConfig {
	return domain.LoggingConfig{Level: c.LogLevel, Format: c.LogFormat, Output: "stderr"}
}
