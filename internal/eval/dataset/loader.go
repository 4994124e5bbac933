package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Loader reads a labelled manifest (JSONL or Parquet)
type Loader struct {
	manifestPath string
}

func NewLoader(manifestPath string) *Loader {
	return &Loader{manifestPath: manifestPath}
}

// Load reads every sample. Relative image paths are resolved against the
// manifest's directory.
func (l *Loader) Load() ([]Sample, error) {
	return l.LoadSample(-1)
}

// LoadSample reads at most limit samples; a negative limit reads them all
func (l *Loader) LoadSample(limit int) ([]Sample, error) {
	var (
		samples []Sample
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(l.manifestPath)); ext {
	case ".parquet":
		samples, err = l.loadParquet(limit)
	case ".jsonl", ".json":
		samples, err = l.loadJSONL(limit)
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: .parquet, .jsonl)", ext)
	}
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(l.manifestPath)
	for i, s := range samples {
		if s.Image == "" {
			return nil, fmt.Errorf("sample %d has no image", i+1)
		}
		if !s.Remote() && !filepath.IsAbs(s.Image) {
			samples[i].Image = filepath.Join(base, s.Image)
		}
	}
	slog.Debug("Loaded manifest", "path", l.manifestPath, "samples", len(samples))
	return samples, nil
}

func (l *Loader) loadJSONL(limit int) ([]Sample, error) {
	file, err := os.Open(l.manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	var samples []Sample
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var s Sample
		if err := json.Unmarshal([]byte(line), &s); err != nil {
			return nil, fmt.Errorf("failed to parse JSON at line %d: %w", lineNum, err)
		}
		samples = append(samples, s)
		if limit >= 0 && len(samples) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading manifest: %w", err)
	}
	return samples, nil
}

func (l *Loader) loadParquet(limit int) ([]Sample, error) {
	file, err := os.Open(l.manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[Sample](pf)
	defer reader.Close()

	var samples []Sample
	rows := make([]Sample, 128)
	for {
		n, err := reader.Read(rows)
		samples = append(samples, rows[:n]...)
		if limit >= 0 && len(samples) >= limit {
			return samples[:limit], nil
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}
	return samples, nil
}
