package results

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/artscan/internal/eval/metrics"
)

func TestSaveToYAML(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "evals")
	agg := metrics.AggregateEvaluationResults([]metrics.EvaluationResult{
		{Image: "a.jpg", ExpectedID: "great-wave", PredictedID: "great-wave", Outcome: "matched", Verdict: metrics.VerdictCorrect, ProcessingTime: 1500 * time.Millisecond},
		{Image: "b.jpg", ExpectedID: "milkmaid", Outcome: "no_match", Verdict: metrics.VerdictMiss},
	}, "ollama", "mistral-small3.2:24b")

	path, err := SaveToYAML(dir, EvalConfig{
		Provider:  "ollama",
		Model:     "mistral-small3.2:24b",
		Timestamp: "2026-01-02_03-04-05",
	}, agg)
	if err != nil {
		t.Fatalf("SaveToYAML: %v", err)
	}
	if want := filepath.Join(dir, "mistral-small3.2_24b-2026-01-02_03-04-05.yaml"); path != want {
		t.Errorf("path = %s, want %s", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc EvalSpec
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Config.SampleSize != 2 || doc.Summary.Correct != 1 || doc.Summary.Misses != 1 {
		t.Errorf("doc = %+v", doc)
	}
	if len(doc.Results) != 2 || doc.Results[0].Seconds != 1.5 || doc.Results[1].Verdict != "miss" {
		t.Errorf("results = %+v", doc.Results)
	}
}
