package providers

import (
	"context"
	"strings"
)

// Config represents the configuration for an LLM provider
type Config struct {
	Model       string
	Temperature float64
	Prompt      string

	// Image is sent alongside the prompt when non-empty
	Image     []byte
	MIMEType  string
	Structure *ResponseField
}

// ResponseField describes the single required string field the model must answer with
type ResponseField struct {
	Name        string
	Description string
}

// JSONSchema renders the field as a JSON schema object
func (f ResponseField) JSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			f.Name: map[string]any{
				"type":        "string",
				"description": f.Description,
			},
		},
		"required":             []string{f.Name},
		"additionalProperties": false,
	}
}

// Provider defines the interface for an LLM provider
type Provider interface {
	ExtractText(ctx context.Context, config Config) (string, error)
}

// ImageFormat returns the short format name of a MIME type ("image/jpeg" -> "jpeg")
func ImageFormat(mimeType string) string {
	format := strings.TrimPrefix(mimeType, "image/")
	if format == "" || format == mimeType {
		return "jpeg"
	}
	return format
}
