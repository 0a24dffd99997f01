package cli

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/svd-classify/internal/catalog"
	"github.com/svd-classify/internal/domain"
)

func getGuidelinesCmd() *cobra.Command {
	guidelinesCmd := &cobra.Command{
		Use:   "guidelines",
		Short: "List or validate classification guidelines",
	}
	guidelinesCmd.AddCommand(getGuidelinesListCmd(), getGuidelinesValidateCmd())
	return guidelinesCmd
}

func getGuidelinesListCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the builtin guidelines and any in --dir",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := catalog.Load(catalog.LoadOptions{Dir: dir})
			if err != nil {
				return err
			}

			w := table.NewWriter()
			w.SetStyle(table.StyleLight)
			w.AppendHeader(table.Row{"Guideline", "Codes", "Tiers"})
			for _, g := range cat.Guidelines() {
				w.AppendRow(table.Row{g.Name, len(g.Criteria), strings.Join(tierNames(g), ", ")})
			}
			w.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
			fmt.Fprintln(cmd.OutOrStdout(), w.Render())
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory of extra guideline YAML files")
	return cmd
}

func getGuidelinesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check guideline YAML files for errors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				g, err := catalog.LoadFile(path)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s: %s, %d codes in %d categories\n",
					path, g.Name, len(g.Criteria), len(g.Categories))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d guideline files are invalid", failed, len(args))
			}
			return nil
		},
	}
}

func tierNames(g *domain.Guideline) []string {
	names := []string{g.DefaultTier}
	for _, t := range g.Thresholds {
		names = append(names, t.Tier)
	}
	return names
}
