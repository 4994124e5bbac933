package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/artscan/internal/evalcmd"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Artwork identification evaluation tools",
		Long: `Evaluation tools for measuring how often the vision model names the right
catalog artwork, and how often it wrongly matches photos of things that are not
in the catalog.`,
	}

	cmd.AddCommand(evalcmd.NewRunCmd())
	cmd.AddCommand(evalcmd.NewReportCmd())

	return cmd
}
