package catalog

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/lehigh-university-libraries/artscan/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed artworks.yaml
var defaultCatalogYAML []byte

// ErrDuplicateID is returned when two records share an identifier
var ErrDuplicateID = errors.New("duplicate artwork id")

// Catalog is the fixed, read-only set of artworks the guide can identify.
// It is safe for concurrent use without synchronization.
type Catalog struct {
	records []models.Artwork
	byID    map[string]int
}

// New builds a catalog from records, preserving their order
func New(records []models.Artwork) (*Catalog, error) {
	c := &Catalog{
		records: make([]models.Artwork, 0, len(records)),
		byID:    make(map[string]int, len(records)),
	}

	for i, rec := range records {
		if rec.ID == "" {
			return nil, fmt.Errorf("artwork at position %d has no id", i)
		}
		if _, exists := c.byID[rec.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
		}
		rec.RelatedArtworkIDs = cloneIDs(rec.RelatedArtworkIDs)
		c.byID[rec.ID] = len(c.records)
		c.records = append(c.records, rec)
	}

	return c, nil
}

// Default returns the catalog compiled into the binary
func Default() *Catalog {
	records, err := decodeYAML(defaultCatalogYAML)
	if err != nil {
		panic("catalog: embedded artworks.yaml is invalid: " + err.Error())
	}
	c, err := New(records)
	if err != nil {
		panic("catalog: embedded artworks.yaml is invalid: " + err.Error())
	}
	return c
}

// Find looks up an artwork by id
func (c *Catalog) Find(id string) (models.Artwork, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return models.Artwork{}, false
	}
	rec := c.records[idx]
	rec.RelatedArtworkIDs = cloneIDs(rec.RelatedArtworkIDs)
	return rec, true
}

// FindAll resolves ids in order, silently dropping the ones not in the catalog
func (c *Catalog) FindAll(ids []string) []models.Artwork {
	found := make([]models.Artwork, 0, len(ids))
	for _, id := range ids {
		if rec, ok := c.Find(id); ok {
			found = append(found, rec)
		}
	}
	return found
}

// Contains reports whether id names a catalog artwork
func (c *Catalog) Contains(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Identities returns the (id, title, artist) triples in catalog order
func (c *Catalog) Identities() []models.ArtworkIdentity {
	ids := make([]models.ArtworkIdentity, 0, len(c.records))
	for _, rec := range c.records {
		ids = append(ids, rec.Identity())
	}
	return ids
}

// All returns a copy of every artwork in catalog order
func (c *Catalog) All() []models.Artwork {
	all := make([]models.Artwork, 0, len(c.records))
	for _, rec := range c.records {
		rec.RelatedArtworkIDs = cloneIDs(rec.RelatedArtworkIDs)
		all = append(all, rec)
	}
	return all
}

// Len returns the number of artworks
func (c *Catalog) Len() int {
	return len(c.records)
}

// DanglingRelations lists related ids that do not resolve, keyed by the referring artwork
func (c *Catalog) DanglingRelations() map[string][]string {
	dangling := make(map[string][]string)
	for _, rec := range c.records {
		for _, id := range rec.RelatedArtworkIDs {
			if !c.Contains(id) {
				dangling[rec.ID] = append(dangling[rec.ID], id)
			}
		}
	}
	return dangling
}

func cloneIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

func decodeYAML(data []byte) ([]models.Artwork, error) {
	var doc struct {
		Artworks []models.Artwork `yaml:"artworks"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}
	return doc.Artworks, nil
}
