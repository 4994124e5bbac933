package evalcmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lehigh-university-libraries/artscan/internal/capture"
	"github.com/lehigh-university-libraries/artscan/internal/catalog"
	"github.com/lehigh-university-libraries/artscan/internal/eval/dataset"
	"github.com/lehigh-university-libraries/artscan/internal/eval/metrics"
	"github.com/lehigh-university-libraries/artscan/internal/eval/results"
	"github.com/lehigh-university-libraries/artscan/internal/identify"
	"github.com/lehigh-university-libraries/artscan/internal/models"
)

// Identifier names the catalog artwork in an image
type Identifier interface {
	Identify(ctx context.Context, img models.Image) identify.Result
}

// ImageSource reads sample images from disk or the web
type ImageSource interface {
	DecodeFile(path string) (models.Image, error)
	FromURL(ctx context.Context, url string) (models.Image, error)
}

type runOptions struct {
	manifest    string
	catalogPath string
	provider    string
	model       string
	sampleSize  int
	concurrency int
	timeout     time.Duration
	outputDir   string
	outputJSON  string
}

func executeRun(ctx context.Context, opts runOptions) error {
	slog.Info("Starting evaluation run", "manifest", opts.manifest, "provider", opts.provider, "model", opts.model)

	samples, err := dataset.NewLoader(opts.manifest).LoadSample(opts.sampleSize)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}
	slog.Info("Manifest loaded", "samples", len(samples))

	cat := catalog.Default()
	if opts.catalogPath != "" {
		cat, err = catalog.Load(opts.catalogPath)
		if err != nil {
			return err
		}
	}

	providerName := identify.ProviderName(opts.provider)
	provider, model, err := identify.NewProvider(providerName, opts.model)
	if err != nil {
		return err
	}
	client := identify.NewClient(provider, cat,
		identify.WithModel(model),
		identify.WithTimeout(opts.timeout),
	)

	graded := Evaluate(ctx, client, capture.NewFileSource(0), samples, opts.concurrency)

	agg := metrics.AggregateEvaluationResults(graded, providerName, model)
	agg.PrintSummary()

	if opts.outputJSON != "" {
		if err := agg.SaveToJSON(opts.outputJSON); err != nil {
			return err
		}
		fmt.Printf("\nJSON results saved to: %s\n", opts.outputJSON)
	}

	path, err := results.SaveToYAML(opts.outputDir, results.EvalConfig{
		Provider:     providerName,
		Model:        model,
		Prompt:       client.Prompt(),
		Temperature:  0.1,
		ManifestPath: opts.manifest,
		CatalogSize:  cat.Len(),
	}, agg)
	if err != nil {
		return err
	}
	absPath, _ := filepath.Abs(path)
	fmt.Printf("Evaluation results saved to: %s\n", absPath)
	return nil
}

// Evaluate identifies every sample with at most concurrency calls in flight.
// Results keep the manifest order.
func Evaluate(ctx context.Context, id Identifier, src ImageSource, samples []dataset.Sample, concurrency int) []metrics.EvaluationResult {
	if concurrency <= 0 {
		concurrency = 1
	}
	out := make([]metrics.EvaluationResult, len(samples))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, sample := range samples {
		g.Go(func() error {
			slog.Info("Processing sample", "image", sample.Image, "progress", fmt.Sprintf("%d/%d", i+1, len(samples)))
			out[i] = evaluateSample(ctx, id, src, sample)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func evaluateSample(ctx context.Context, id Identifier, src ImageSource, sample dataset.Sample) metrics.EvaluationResult {
	result := metrics.EvaluationResult{
		Image:      sample.Image,
		ExpectedID: sample.ExpectedID,
		Negative:   sample.Negative(),
	}
	start := time.Now()

	var (
		img models.Image
		err error
	)
	if sample.Remote() {
		img, err = src.FromURL(ctx, sample.Image)
	} else {
		img, err = src.DecodeFile(sample.Image)
	}
	if err != nil {
		result.Error = err.Error()
		result.Verdict = metrics.Grade(sample.ExpectedID, result.Negative, "", "", err)
		result.ProcessingTime = time.Since(start)
		return result
	}

	res := id.Identify(ctx, img)
	result.Outcome = res.Outcome.String()
	result.PredictedID = res.ArtworkID
	if res.Err != nil {
		result.Error = res.Err.Error()
	}
	result.Verdict = metrics.Grade(sample.ExpectedID, result.Negative, result.Outcome, res.ArtworkID, res.Err)
	result.ProcessingTime = time.Since(start)
	return result
}
