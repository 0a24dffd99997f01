package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/svd-classify/internal/catalog"
	"github.com/svd-classify/internal/service"
)

func getScoreCmd() *cobra.Command {
	var (
		guideline string
		dir       string
	)

	cmd := &cobra.Command{
		Use:   "score --guideline NAME TOKEN...",
		Short: "Score evidence tokens offline",
		Long: `Score computes the total points and tier for a set of evidence tokens
without touching any store. Tokens take the form CODE_STRENGTH, CODE_NA or
CODE_PE, and paired codes are joined with '|'.

Examples:
  svd-classify score --guideline svig_2024 OVS1_VS OS1_ST
  svd-classify score --guideline svig_2024 'OP1_SU|SBP1_NA'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errNoTokens
			}
			cat, err := catalog.Load(catalog.LoadOptions{Dir: dir})
			if err != nil {
				return err
			}
			preview, err := service.PreviewScore(cat, guideline, args)
			if err != nil {
				return err
			}

			w := table.NewWriter()
			w.SetStyle(table.StyleLight)
			w.AppendRow(table.Row{"Guideline", guideline})
			w.AppendRow(table.Row{"Score", preview.Score})
			w.AppendRow(table.Row{"Tier", preview.Tier})
			for _, warning := range preview.Warnings {
				w.AppendRow(table.Row{"Warning", warning})
			}
			for _, conflict := range preview.Conflicts {
				w.AppendRow(table.Row{"Conflict", "Only one code of " + conflict + " can be applied"})
			}
			fmt.Fprintln(cmd.OutOrStdout(), w.Render())
			return nil
		},
	}
	cmd.Flags().StringVarP(&guideline, "guideline", "g", "", "guideline to score against")
	cmd.Flags().StringVar(&dir, "dir", "", "directory of extra guideline YAML files")
	_ = cmd.MarkFlagRequired("guideline")
	return cmd
}
