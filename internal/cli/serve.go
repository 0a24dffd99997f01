package cli

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/svd-classify/internal/api"
	"github.com/svd-classify/internal/config"
	"github.com/svd-classify/internal/notify"
)

func getServeCmd(opts *rootOptions) *cobra.Command {
	var lite bool

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Serve starts the HTTP API.

By default classifications are stored in Postgres (run 'svd-classify migrate up'
first) and guideline reloads are broadcast to other instances over Redis when
cache.redis_url is set.

With --lite classifications are kept in memory and only the audit trail is
written, to a SQLite file under SVD_DATA_DIR. Lite mode reads SVD_* environment
variables and ignores the config file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if lite {
				return runServeLite(cmd.Context())
			}
			return runServe(cmd.Context(), opts.configFile)
		},
	}
	serveCmd.Flags().BoolVar(&lite, "lite", false, "keep classifications in memory and audit to SQLite")
	return serveCmd
}

func runServe(ctx context.Context, configFile string) error {
	m, err := loadManager(configFile)
	if err != nil {
		return err
	}
	cfg := m.GetConfig()

	st, err := newFullStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()
	setGinMode(m)

	serverOpts := []api.Option{api.WithHealthCheck(st.db.Health)}
	var notifier *notify.ReloadNotifier
	if cfg.Cache.RedisURL != "" {
		notifier, err = notify.NewReloadNotifier(cfg.Cache, st.registry, st.logger)
		if err != nil {
			return err
		}
		defer notifier.Close()
		serverOpts = append(serverOpts, api.WithReloadPublisher(notifier))
	}

	server := api.NewServer(cfg.Server, st.service, st.registry, st.logger, serverOpts...)
	st.logger.WithFields(logrus.Fields{
		"host":        cfg.Server.Host,
		"port":        cfg.Server.Port,
		"environment": cfg.Environment,
		"config_file": m.ConfigFileUsed(),
		"broadcast":   notifier != nil,
	}).Info("Starting svd-classify")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(ctx) })
	if notifier != nil {
		// Losing the subscriber only delays peer reloads; keep serving.
		g.Go(func() error {
			if err := notifier.Run(ctx); err != nil {
				st.logger.WithError(err).Error("Guideline reload subscriber stopped")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	st.logger.Info("Server stopped")
	return nil
}

func runServeLite(ctx context.Context) error {
	lite := config.LoadLiteConfig()
	st, err := newLiteStack(lite)
	if err != nil {
		return err
	}
	defer st.close()
	gin.SetMode(gin.ReleaseMode)

	server := api.NewServer(liteServerConfig(lite), st.service, st.registry, st.logger)
	st.logger.WithField("port", lite.HTTPPort).Info("Starting svd-classify (lite)")
	if err := server.Start(ctx); err != nil {
		return err
	}
	st.logger.Info("Server stopped")
	return nil
}

func setGinMode(m *config.Manager) {
	if m.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
		return
	}
	gin.SetMode(gin.ReleaseMode)
}
