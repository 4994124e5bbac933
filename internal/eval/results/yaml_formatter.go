package results

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/artscan/internal/eval/metrics"
)

// EvalConfig is the configuration section of the eval YAML
type EvalConfig struct {
	Provider     string  `yaml:"provider"`
	Model        string  `yaml:"model"`
	Prompt       string  `yaml:"prompt"`
	Temperature  float64 `yaml:"temperature"`
	ManifestPath string  `yaml:"manifestpath"`
	SampleSize   int     `yaml:"samplesize"`
	CatalogSize  int     `yaml:"catalogsize"`
	Timestamp    string  `yaml:"timestamp"`
}

// EvalResult is one photo's line in the YAML file
type EvalResult struct {
	Image       string  `yaml:"image"`
	ExpectedID  string  `yaml:"expectedid"`
	PredictedID string  `yaml:"predictedid,omitempty"`
	Outcome     string  `yaml:"outcome"`
	Verdict     string  `yaml:"verdict"`
	Seconds     float64 `yaml:"seconds"`
	Error       string  `yaml:"error,omitempty"`
}

// EvalSummary repeats the headline numbers so runs can be compared by eye
type EvalSummary struct {
	Correct      int     `yaml:"correct"`
	FalseMatches int     `yaml:"falsematches"`
	Misses       int     `yaml:"misses"`
	Failures     int     `yaml:"failures"`
	Accuracy     float64 `yaml:"accuracy"`
}

// EvalSpec is the complete YAML document
type EvalSpec struct {
	Config  EvalConfig   `yaml:"config"`
	Summary EvalSummary  `yaml:"summary"`
	Results []EvalResult `yaml:"results"`
}

// SaveToYAML writes the run to <dir>/<model>-<timestamp>.yaml and returns the path
func SaveToYAML(dir string, cfg EvalConfig, agg *metrics.AggregateResults) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	if cfg.Timestamp == "" {
		cfg.Timestamp = time.Now().Format("2006-01-02_15-04-05")
	}
	cfg.SampleSize = agg.SampleSize

	doc := EvalSpec{
		Config: cfg,
		Summary: EvalSummary{
			Correct:      agg.Correct,
			FalseMatches: agg.FalseMatches,
			Misses:       agg.Misses,
			Failures:     agg.Failures,
			Accuracy:     agg.Accuracy,
		},
		Results: make([]EvalResult, 0, len(agg.Results)),
	}
	for _, r := range agg.Results {
		doc.Results = append(doc.Results, EvalResult{
			Image:       r.Image,
			ExpectedID:  r.ExpectedID,
			PredictedID: r.PredictedID,
			Outcome:     r.Outcome,
			Verdict:     string(r.Verdict),
			Seconds:     r.ProcessingTime.Seconds(),
			Error:       r.Error,
		})
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("%s-%s.yaml", safeName(cfg.Model), cfg.Timestamp))
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write YAML file: %w", err)
	}
	return filename, nil
}

// safeName keeps model ids like "mistral-small3.2:24b" usable as file names
func safeName(model string) string {
	out := []rune(model)
	for i, r := range out {
		switch r {
		case '/', ':', '\\', ' ':
			out[i] = '_'
		}
	}
	if len(out) == 0 {
		return "model"
	}
	return string(out)
}
