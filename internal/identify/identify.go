package identify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/artscan/internal/catalog"
	"github.com/lehigh-university-libraries/artscan/internal/gemini"
	"github.com/lehigh-university-libraries/artscan/internal/models"
	"github.com/lehigh-university-libraries/artscan/internal/ollama"
	"github.com/lehigh-university-libraries/artscan/internal/openai"
	"github.com/lehigh-university-libraries/artscan/internal/providers"
)

const (
	// UnknownSentinel is what the model answers when it is not confident
	UnknownSentinel = "UNKNOWN"
	// ResponseField is the single JSON field the model must fill in
	ResponseField = "artworkId"
)

// ErrEmptyImage is returned (inside a Failed result) for a capture with no bytes
var ErrEmptyImage = errors.New("image is empty")

// Client asks a vision model which catalog artwork an image shows
type Client struct {
	provider    providers.Provider
	catalog     *catalog.Catalog
	model       string
	temperature float64
	timeout     time.Duration
	prompt      string
}

// Option configures a Client
type Option func(*Client)

// WithModel overrides the provider's default model
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithTemperature sets the sampling temperature
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

// WithTimeout bounds each call; zero means no limit beyond the caller's context
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient creates a Client for the given provider and catalog
func NewClient(provider providers.Provider, cat *catalog.Catalog, opts ...Option) *Client {
	c := &Client{
		provider:    provider,
		catalog:     cat,
		temperature: 0.1, // Low temperature for consistent, factual output
	}
	for _, opt := range opts {
		opt(c)
	}
	c.prompt = buildPrompt(cat.Identities())
	return c
}

// Identify sends one image to the model and validates its answer against the catalog.
// It never returns partial matches: uncertainty must come back as the sentinel.
func (c *Client) Identify(ctx context.Context, img models.Image) Result {
	if img.Empty() {
		return Failed(ErrEmptyImage)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	start := time.Now()
	raw, err := c.provider.ExtractText(ctx, providers.Config{
		Model:       c.model,
		Temperature: c.temperature,
		Prompt:      c.prompt,
		Image:       img.Data,
		MIMEType:    mimeType,
		Structure: &providers.ResponseField{
			Name:        ResponseField,
			Description: "The unique ID of the identified artwork from the provided list, or '" + UnknownSentinel + "' if it cannot be confidently identified.",
		},
	})
	if err != nil {
		slog.Error("Identification request failed", "error", err, "elapsed", time.Since(start))
		return Failed(fmt.Errorf("failed to call vision model: %w", err))
	}

	artworkID, err := parseResponse(raw)
	if err != nil {
		slog.Error("Failed to parse identification response", "error", err, "response", raw)
		return Failed(err)
	}

	if strings.EqualFold(artworkID, UnknownSentinel) {
		slog.Info("Artwork not identified", "elapsed", time.Since(start))
		return NoMatch()
	}

	if !c.catalog.Contains(artworkID) {
		slog.Warn("Model returned an id that is not in the catalog", "artwork_id", artworkID)
		return NoMatch()
	}

	slog.Info("Artwork identified", "artwork_id", artworkID, "elapsed", time.Since(start))
	return Matched(artworkID)
}

// Prompt returns the prompt sent with every image
func (c *Client) Prompt() string {
	return c.prompt
}

// parseResponse extracts the artwork id from the model's JSON answer
func parseResponse(response string) (string, error) {
	// Trim any markdown code blocks
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	var result map[string]json.RawMessage
	if err := json.Unmarshal([]byte(response), &result); err != nil {
		return "", fmt.Errorf("failed to parse JSON response: %w", err)
	}

	field, ok := result[ResponseField]
	if !ok {
		return "", fmt.Errorf("response is missing required field %q", ResponseField)
	}

	var artworkID string
	if err := json.Unmarshal(field, &artworkID); err != nil {
		return "", fmt.Errorf("field %q is not a string: %w", ResponseField, err)
	}

	artworkID = strings.TrimSpace(artworkID)
	if artworkID == "" {
		return "", fmt.Errorf("field %q is empty", ResponseField)
	}

	return artworkID, nil
}

func buildPrompt(known []models.ArtworkIdentity) string {
	list, err := json.Marshal(known)
	if err != nil {
		// a slice of plain string structs always marshals
		panic("identify: failed to marshal catalog identities: " + err.Error())
	}

	return fmt.Sprintf(`You are a world-class art identification expert for a museum. Your task is to meticulously analyze the attached image of a painting or artifact.

Your goal is to identify which of the following known artworks it is. Be precise and confident in your identification.

List of known artworks:
%s

Carefully compare the visual features in the image (style, subject, colors, details) against the provided list. Respond with the single, most likely match.

If the image is not a clear match for any artwork in the list, or if you are not highly confident in the match, you must identify it as '%s'. Do not guess.

OUTPUT FORMAT:
Respond with ONLY a JSON object in the following format:

{"%s": "<id from the list or %s>"}`, list, UnknownSentinel, ResponseField, UnknownSentinel)
}

// NewProvider returns the named provider and the model to use with it.
// Empty values fall back to IDENTIFY_PROVIDER and the provider's *_MODEL variable.
func NewProvider(provider, model string) (providers.Provider, string, error) {
	provider = ProviderName(provider)

	if model == "" {
		model = DefaultModel(provider)
	}

	switch provider {
	case "gemini":
		return gemini.New(""), model, nil
	case "openai":
		return openai.New("", ""), model, nil
	case "ollama":
		return ollama.New(""), model, nil
	default:
		return nil, "", fmt.Errorf("unsupported provider: %s", provider)
	}
}

// ProviderName resolves an empty provider name from IDENTIFY_PROVIDER, defaulting to gemini
func ProviderName(provider string) string {
	if provider != "" {
		return provider
	}
	if provider = os.Getenv("IDENTIFY_PROVIDER"); provider != "" {
		return provider
	}
	return "gemini"
}

// DefaultModel returns the model used for a provider when none is configured
func DefaultModel(provider string) string {
	switch provider {
	case "gemini":
		model := os.Getenv("GEMINI_MODEL")
		if model == "" {
			return gemini.DefaultModel
		}
		return model
	case "openai":
		model := os.Getenv("OPENAI_MODEL")
		if model == "" {
			return "gpt-4o"
		}
		return model
	case "ollama":
		model := os.Getenv("OLLAMA_MODEL")
		if model == "" {
			return "mistral-small3.2:24b"
		}
		return model
	default:
		return ""
	}
}
