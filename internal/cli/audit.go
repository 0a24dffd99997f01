package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/svd-classify/internal/audit"
	"github.com/svd-classify/internal/config"
	"github.com/svd-classify/internal/database"
)

func getAuditCmd(opts *rootOptions) *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the classification audit trail",
	}
	auditCmd.AddCommand(getAuditExportCmd(opts))
	return auditCmd
}

func getAuditExportCmd(opts *rootOptions) *cobra.Command {
	var (
		lite bool
		out  string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every audit event as JSON",
		Long: `Export writes the audit trail as a JSON document. Without --out the file is
written to the configured export directory with a timestamped name; use
--out - for stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, exportDir, err := openAuditForExport(cmd.Context(), opts.configFile, lite)
			if err != nil {
				return err
			}
			defer store.Close()

			if out == "-" {
				return store.ExportJSON(cmd.Context(), cmd.OutOrStdout())
			}
			if out == "" {
				if err := os.MkdirAll(exportDir, 0755); err != nil {
					return fmt.Errorf("creating export directory: %w", err)
				}
				out = filepath.Join(exportDir, "audit-"+time.Now().UTC().Format("20060102T150405Z")+".json")
			}
			if err := writeExport(cmd.Context(), store, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Audit trail exported to %s\n", out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&lite, "lite", false, "read the lite mode SQLite audit trail")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, - for stdout")
	return cmd
}

func openAuditForExport(ctx context.Context, configFile string, lite bool) (audit.Store, string, error) {
	if lite {
		cfg := config.LoadLiteConfig()
		store, err := audit.NewSQLiteStore(cfg.AuditDBPath())
		return store, cfg.ExportDir(), err
	}
	m, err := loadManager(configFile)
	if err != nil {
		return nil, "", err
	}
	cfg := m.GetConfig()
	store, err := openAudit(ctx, cfg.Audit, database.ConfigFromSettings(cfg.Database))
	return store, cfg.Audit.ExportDir, err
}

func writeExport(ctx context.Context, store audit.Store, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return store.ExportJSON(ctx, f)
}
