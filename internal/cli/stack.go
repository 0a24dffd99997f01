package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/svd-classify/internal/audit"
	"github.com/svd-classify/internal/catalog"
	"github.com/svd-classify/internal/config"
	"github.com/svd-classify/internal/database"
	"github.com/svd-classify/internal/domain"
	"github.com/svd-classify/internal/repository"
	"github.com/svd-classify/internal/service"
)

// stack is everything a long running command needs. close releases it in
// reverse order of construction.
type stack struct {
	logger   *logrus.Logger
	service  *service.ClassificationService
	registry *catalog.Registry
	audit    audit.Store
	db       *database.DB
	closers  []io.Closer
}

func (s *stack) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && s.logger != nil {
			s.logger.WithError(err).Warn("Failed to release resource")
		}
	}
	if s.db != nil {
		s.db.Close()
	}
}

// loadManager reads and validates the server configuration.
func loadManager(configFile string) (*config.Manager, error) {
	m, err := config.NewManager(configFile)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return m, nil
}

// newFullStack connects to Postgres and builds the service on the pgx store.
func newFullStack(ctx context.Context, cfg *domain.Config) (_ *stack, err error) {
	logger, logCloser, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	s := &stack{logger: logger, closers: []io.Closer{logCloser}}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	dbCfg := database.ConfigFromSettings(cfg.Database)
	s.db, err = database.NewConnection(ctx, dbCfg, logger)
	if err != nil {
		return nil, err
	}

	s.audit, err = openAudit(ctx, cfg.Audit, dbCfg)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, s.audit)

	s.registry, err = catalog.NewRegistry(catalog.LoadOptions{
		Dir:       cfg.Guidelines.Dir,
		Enabled:   cfg.Guidelines.Enabled,
		CacheSize: cfg.Cache.OptionCacheSize,
	}, logger)
	if err != nil {
		return nil, err
	}

	store := repository.NewPostgresStore(s.db.Pool, logger)
	s.service = service.NewClassificationService(store, s.registry, cfg.Signoff, logger, service.WithAudit(s.audit))
	return s, nil
}

// openAudit selects the audit backend named by cfg.Driver.
func openAudit(ctx context.Context, cfg domain.AuditConfig, dbCfg database.Config) (audit.Store, error) {
	switch cfg.Driver {
	case "postgres":
		sqlDB, err := database.OpenSQL(dbCfg)
		if err != nil {
			return nil, err
		}
		store, err := audit.NewPostgresStore(ctx, sqlDB)
		if err != nil {
			sqlDB.Close()
			return nil, err
		}
		return store, nil
	case "sqlite":
		return audit.NewSQLiteStore(cfg.SQLitePath)
	case "none", "":
		return audit.NopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown audit driver %q", cfg.Driver)
	}
}

// newLiteStack keeps classifications in memory and writes the audit trail to
// SQLite under the data directory. Nothing outlives the process except the
// audit trail.
func newLiteStack(lite *config.LiteConfig) (_ *stack, err error) {
	logger, logCloser, err := config.NewLogger(lite.LoggingConfig())
	if err != nil {
		return nil, err
	}
	s := &stack{logger: logger, closers: []io.Closer{logCloser}}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	if err := lite.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	s.audit, err = audit.NewSQLiteStore(lite.AuditDBPath())
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, s.audit)

	s.registry, err = catalog.NewRegistry(catalog.LoadOptions{
		Dir:       lite.GuidelineDir,
		CacheSize: lite.OptionCacheSize,
	}, logger)
	if err != nil {
		return nil, err
	}

	store := repository.NewMemoryStore(logger)
	s.service = service.NewClassificationService(store, s.registry, lite.SignoffConfig(), logger, service.WithAudit(s.audit))
	logger.WithFields(logrus.Fields{
		"data_dir": lite.DataDir,
		"audit_db": lite.AuditDBPath(),
	}).Info("Lite stack ready, classifications are kept in memory")
	return s, nil
}

// liteServerConfig is the HTTP configuration used by serve --lite.
func liteServerConfig(lite *config.LiteConfig) domain.ServerConfig {
	return domain.ServerConfig{
		Host:         "127.0.0.1",
		Port:         lite.HTTPPort,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		RateLimit:    20,
		RateBurst:    40,
		UserHeader:   "X-User",
	}
}

var errNoTokens = errors.New("at least one evidence token is required")
