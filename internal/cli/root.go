// Package cli implements the svd-classify command line.
package cli

import (
	"github.com/spf13/cobra"
)

// Version is set by build flags
var Version = "dev"

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "svd-classify",
		Short: "Evidence based variant classification with multi reviewer signoff",
		Long: `svd-classify scores sequence variants against evidence based guidelines
(S-VIG, ACGS, ACMG points) and runs the tab gated check and signoff
workflow in which at least two reviewers must agree before a
classification is complete.

Commands:
  serve       HTTP API on Postgres, or in memory with --lite
  mcp         MCP server over stdio for AI assistants (lite stack)
  migrate     Apply or roll back the Postgres schema
  guidelines  List the loaded guidelines or validate a guideline file
  score       Score evidence tokens offline
  audit       Export the audit trail

Configuration precedence (highest to lowest):
  1. Environment variables (SVD_CLASSIFY_*, or SVD_* in lite mode)
  2. Config file (config.yaml, or --config)
  3. Built-in defaults`,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.Flags().BoolP("version", "V", false, "version for svd-classify")
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "",
		"config file (default: ./config.yaml, ./config/config.yaml or /etc/svd-classify/config.yaml)")

	rootCmd.AddCommand(
		getServeCmd(opts),
		getMCPCmd(),
		getMigrateCmd(opts),
		getGuidelinesCmd(),
		getScoreCmd(),
		getAuditCmd(opts),
	)
	return rootCmd
}
