package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Verdict grades one identification against its label
type Verdict string

const (
	// VerdictCorrect is the right catalog id, or no match for a negative sample
	VerdictCorrect Verdict = "correct"
	// VerdictFalseMatch names a catalog artwork that is not the one photographed
	VerdictFalseMatch Verdict = "false_match"
	// VerdictMiss is no match for a photo of a catalog artwork
	VerdictMiss Verdict = "miss"
	// VerdictFailure is a provider or image error
	VerdictFailure Verdict = "failure"
)

// EvaluationResult is the outcome for one labelled photo
type EvaluationResult struct {
	Image          string        `json:"image"`
	ExpectedID     string        `json:"expected_id"`
	Negative       bool          `json:"negative,omitempty"`
	PredictedID    string        `json:"predicted_id,omitempty"`
	Outcome        string        `json:"outcome"`
	Verdict        Verdict       `json:"verdict"`
	ProcessingTime time.Duration `json:"processing_time"`
	Error          string        `json:"error,omitempty"`
}

// Grade sets the verdict from the expected id and what the identifier returned.
// expectedNegative marks a photo of something outside the catalog.
func Grade(expectedID string, expectedNegative bool, outcome, predictedID string, err error) Verdict {
	switch {
	case err != nil || outcome == "failed":
		return VerdictFailure
	case outcome == "no_match" && expectedNegative:
		return VerdictCorrect
	case outcome == "no_match":
		return VerdictMiss
	case !expectedNegative && predictedID == expectedID:
		return VerdictCorrect
	default:
		return VerdictFalseMatch
	}
}

// AggregateResults summarizes a run
type AggregateResults struct {
	TotalRecords int `json:"total_records"`
	Correct      int `json:"correct"`
	FalseMatches int `json:"false_matches"`
	Misses       int `json:"misses"`
	Failures     int `json:"failures"`
	Negatives    int `json:"negatives"`

	// Accuracy counts failures as wrong; AnsweredAccuracy leaves them out
	Accuracy         float64 `json:"accuracy"`
	AnsweredAccuracy float64 `json:"answered_accuracy"`

	AverageProcessingTime time.Duration `json:"average_processing_time"`
	TotalProcessingTime   time.Duration `json:"total_processing_time"`

	Results []EvaluationResult `json:"results"`

	EvaluationDate time.Time `json:"evaluation_date"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	SampleSize     int       `json:"sample_size"`
}

// AggregateEvaluationResults totals graded results
func AggregateEvaluationResults(results []EvaluationResult, provider, model string) *AggregateResults {
	agg := &AggregateResults{
		TotalRecords:   len(results),
		Results:        results,
		EvaluationDate: time.Now(),
		Provider:       provider,
		Model:          model,
		SampleSize:     len(results),
	}

	for _, r := range results {
		agg.TotalProcessingTime += r.ProcessingTime
		if r.Negative {
			agg.Negatives++
		}
		switch r.Verdict {
		case VerdictCorrect:
			agg.Correct++
		case VerdictFalseMatch:
			agg.FalseMatches++
		case VerdictMiss:
			agg.Misses++
		case VerdictFailure:
			agg.Failures++
		}
	}

	if agg.TotalRecords > 0 {
		agg.Accuracy = float64(agg.Correct) / float64(agg.TotalRecords)
		agg.AverageProcessingTime = agg.TotalProcessingTime / time.Duration(agg.TotalRecords)
	}
	if answered := agg.TotalRecords - agg.Failures; answered > 0 {
		agg.AnsweredAccuracy = float64(agg.Correct) / float64(answered)
	}
	return agg
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// PrintSummary prints a human-readable summary of the evaluation
func (a *AggregateResults) PrintSummary() {
	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Println("ARTSCAN IDENTIFICATION SUMMARY")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Evaluation Date: %s\n", a.EvaluationDate.Format("2006-01-02 15:04:05"))
	fmt.Printf("Provider: %s\n", a.Provider)
	fmt.Printf("Model: %s\n", a.Model)
	fmt.Printf("Sample Size: %d photos (%d negatives)\n", a.SampleSize, a.Negatives)
	fmt.Println()

	fmt.Println("OUTCOMES")
	fmt.Println(strings.Repeat("-", 70))
	fmt.Printf("Correct: %d (%.1f%%)\n", a.Correct, percent(a.Correct, a.TotalRecords))
	fmt.Printf("False matches: %d (%.1f%%)\n", a.FalseMatches, percent(a.FalseMatches, a.TotalRecords))
	fmt.Printf("Misses: %d (%.1f%%)\n", a.Misses, percent(a.Misses, a.TotalRecords))
	fmt.Printf("Failures: %d (%.1f%%)\n", a.Failures, percent(a.Failures, a.TotalRecords))
	fmt.Printf("Average Processing Time: %s\n", a.AverageProcessingTime)
	fmt.Printf("Total Processing Time: %s\n", a.TotalProcessingTime)
	fmt.Println()

	fmt.Println("ACCURACY")
	fmt.Println(strings.Repeat("-", 70))
	fmt.Printf("Overall: %.2f%%\n", a.Accuracy*100)
	fmt.Printf("Excluding failures: %.2f%%\n", a.AnsweredAccuracy*100)
	fmt.Println(strings.Repeat("=", 70))
}

// SaveToJSON saves the aggregate results to a JSON file
func (a *AggregateResults) SaveToJSON(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(a); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}

// LoadFromJSON reads results written by SaveToJSON
func LoadFromJSON(path string) (*AggregateResults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	var a AggregateResults
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}
	return &a, nil
}
