package catalog

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

	"github.com/lehigh-university-libraries/artscan/internal/models"
	"github.com/parquet-go/parquet-go"
)

// Load reads a catalog file (YAML, JSONL or Parquet), choosing the format by extension
func Load(path string) (*Catalog, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var (
		records []models.Artwork
		err     error
	)
	switch ext {
	case ".yaml", ".yml":
		records, err = loadYAML(path)
	case ".jsonl", ".json":
		records, err = loadJSONL(path)
	case ".parquet":
		records, err = loadParquet(path)
	default:
		return nil, fmt.Errorf("unsupported catalog format: %s (supported: .yaml, .jsonl, .parquet)", ext)
	}
	if err != nil {
		return nil, err
	}

	c, err := New(records)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}

	slog.Info("Catalog loaded", "path", path, "artworks", c.Len())
	return c, nil
}

func loadYAML(path string) ([]models.Artwork, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return decodeYAML(data)
}

// loadJSONL reads one artwork per line
func loadJSONL(path string) ([]models.Artwork, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog file: %w", err)
	}
	defer file.Close()

	var records []models.Artwork
	scanner := bufio.NewScanner(file)

	const maxCapacity = 1024 * 1024 // 1MB per line
	scanner.Buffer(make([]byte, 64*1024), maxCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var record models.Artwork
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("failed to parse JSON at line %d: %w", lineNum, err)
		}
		records = append(records, record)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading catalog: %w", err)
	}

	return records, nil
}

func loadParquet(path string) ([]models.Artwork, error) {
	file, err := os.Open(path)
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

	reader := parquet.NewGenericReader[models.Artwork](pf)
	defer reader.Close()

	var records []models.Artwork
	rows := make([]models.Artwork, 64)
	for {
		n, err := reader.Read(rows)
		records = append(records, rows[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}

	slog.Debug("Finished reading Parquet catalog", "rows", len(records))
	return records, nil
}
