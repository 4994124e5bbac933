package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/artscan/internal/capture"
	"github.com/lehigh-university-libraries/artscan/internal/models"
)

type identifyOutput struct {
	Outcome   string          `json:"outcome"`
	ArtworkID string          `json:"artwork_id,omitempty"`
	Artwork   *models.Artwork `json:"artwork,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func newIdentifyCmd(root *rootOptions) *cobra.Command {
	var provider, model string

	cmd := &cobra.Command{
		Use:   "identify <image path or URL>",
		Short: "Identify the catalog artwork in a single photo",
		Example: `  artscan identify ./photos/wave.jpg
  artscan identify https://example.org/photo.jpg --provider ollama`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if provider != "" {
				cfg.Identify.Provider = provider
			}
			if model != "" {
				cfg.Identify.Model = model
			}

			cat, err := loadCatalog(cfg.Catalog.Path)
			if err != nil {
				return err
			}
			client, err := newIdentifier(cfg.Identify, cat)
			if err != nil {
				return err
			}

			files := capture.NewFileSource(cfg.App.HTTP.MaxUploadBytes)
			var img models.Image
			if src := args[0]; strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
				img, err = files.FromURL(cmd.Context(), src)
			} else {
				img, err = files.DecodeFile(src)
			}
			if err != nil {
				return err
			}

			res := client.Identify(cmd.Context(), img)
			out := identifyOutput{Outcome: res.Outcome.String(), ArtworkID: res.ArtworkID}
			if art, ok := cat.Find(res.ArtworkID); ok {
				out.Artwork = &art
			}
			if res.Err != nil {
				out.Error = res.Err.Error()
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if res.Err != nil {
				return fmt.Errorf("identification failed: %w", res.Err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "LLM provider (gemini, openai, or ollama)")
	cmd.Flags().StringVar(&model, "model", "", "Model name (defaults to provider's default)")

	return cmd
}
