package evalcmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// NewRunCmd creates the run command: identify every photo in a labelled manifest
func NewRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Measure identification accuracy on labelled photos",
		Long: `Identify every photo in a labelled manifest and compare the answers to the labels.

Each manifest row has an "image" (a path relative to the manifest, or a URL)
and an "expected_id": a catalog id, or UNKNOWN for photos of things that are
not in the catalog. Manifests may be JSONL or Parquet.`,
		Example: `  # Evaluate with Gemini against the built-in catalog
  artscan eval run --manifest ./photos/labelled.jsonl

  # Evaluate 20 photos with Ollama against a custom catalog
  artscan eval run --manifest labelled.parquet --catalog gallery.yaml --provider ollama --sample 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(opts.manifest); err != nil {
				return fmt.Errorf("manifest not found: %s", opts.manifest)
			}
			return executeRun(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.manifest, "manifest", "", "Path to labelled manifest (.jsonl or .parquet)")
	cmd.Flags().StringVar(&opts.catalogPath, "catalog", "", "Catalog file (defaults to the built-in catalog)")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "LLM provider (gemini, openai, or ollama)")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model name (defaults to provider's default)")
	cmd.Flags().IntVar(&opts.sampleSize, "sample", -1, "Number of photos to evaluate (-1 for all)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 4, "Identification calls in flight")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 60*time.Second, "Per-photo identification timeout")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "evals", "Directory for the YAML results file")
	cmd.Flags().StringVar(&opts.outputJSON, "output-json", "eval_results.json", "Path to JSON results (empty to skip)")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

// NewReportCmd creates the report command for a saved JSON run
func NewReportCmd() *cobra.Command {
	var resultsPath string
	var format string
	var onlyWrong bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a report from saved evaluation results",
		Example: `  artscan eval report --results eval_results.json
  artscan eval report --results eval_results.json --format csv > results.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeReport(cmd.OutOrStdout(), resultsPath, format, onlyWrong)
		},
	}

	cmd.Flags().StringVar(&resultsPath, "results", "eval_results.json", "Path to JSON results")
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text, json, csv)")
	cmd.Flags().BoolVar(&onlyWrong, "only-wrong", false, "List only photos that were not identified correctly")

	return cmd
}
