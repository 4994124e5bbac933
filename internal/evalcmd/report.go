package evalcmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/lehigh-university-libraries/artscan/internal/eval/metrics"
)

func executeReport(w io.Writer, resultsPath, format string, onlyWrong bool) error {
	agg, err := metrics.LoadFromJSON(resultsPath)
	if err != nil {
		return err
	}

	rows := agg.Results
	if onlyWrong {
		rows = make([]metrics.EvaluationResult, 0, len(agg.Results))
		for _, r := range agg.Results {
			if r.Verdict != metrics.VerdictCorrect {
				rows = append(rows, r)
			}
		}
	}

	switch format {
	case "text":
		return printTextReport(w, agg, rows)
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rows)
	case "csv":
		return printCSVReport(w, rows)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func printTextReport(w io.Writer, agg *metrics.AggregateResults, rows []metrics.EvaluationResult) error {
	fmt.Fprintln(w, strings.Repeat("=", 40))
	fmt.Fprintln(w, "Artwork Identification Report")
	fmt.Fprintln(w, strings.Repeat("=", 40))
	fmt.Fprintf(w, "Provider: %s\n", agg.Provider)
	fmt.Fprintf(w, "Model:    %s\n", agg.Model)
	fmt.Fprintf(w, "Accuracy: %.2f%% (%d/%d)\n", agg.Accuracy*100, agg.Correct, agg.TotalRecords)
	fmt.Fprintf(w, "False matches: %d  Misses: %d  Failures: %d\n", agg.FalseMatches, agg.Misses, agg.Failures)

	for i, r := range rows {
		fmt.Fprintf(w, "\n[%d] %s\n", i+1, r.Image)
		fmt.Fprintf(w, "  Expected: %s\n", r.ExpectedID)
		if r.PredictedID != "" {
			fmt.Fprintf(w, "  Predicted: %s\n", r.PredictedID)
		}
		fmt.Fprintf(w, "  Verdict: %s (%s)\n", r.Verdict, r.ProcessingTime)
		if r.Error != "" {
			fmt.Fprintf(w, "  Error: %s\n", truncate(r.Error, 120))
		}
	}
	return nil
}

func printCSVReport(w io.Writer, rows []metrics.EvaluationResult) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"Image", "Expected", "Predicted", "Outcome", "Verdict", "Seconds", "Error"}); err != nil {
		return err
	}
	for _, r := range rows {
		row := []string{
			r.Image,
			r.ExpectedID,
			r.PredictedID,
			r.Outcome,
			string(r.Verdict),
			fmt.Sprintf("%.3f", r.ProcessingTime.Seconds()),
			r.Error,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
