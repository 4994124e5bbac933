package models

// Artwork represents a known artwork in the gallery catalog
type Artwork struct {
	ID                string   `json:"id" yaml:"id" parquet:"id"`
	Title             string   `json:"title" yaml:"title" parquet:"title"`
	Artist            string   `json:"artist" yaml:"artist" parquet:"artist"`
	Year              string   `json:"year" yaml:"year" parquet:"year"`
	Description       string   `json:"description" yaml:"description" parquet:"description"`
	ImageURL          string   `json:"image_url" yaml:"image_url" parquet:"image_url"`
	RelatedArtworkIDs []string `json:"related_artwork_ids,omitempty" yaml:"related_artwork_ids,omitempty" parquet:"related_artwork_ids,list"`
}

// Identity returns the identifying triple sent to the vision model
func (a Artwork) Identity() ArtworkIdentity {
	return ArtworkIdentity{ID: a.ID, Title: a.Title, Artist: a.Artist}
}

// ArtworkIdentity is the subset of an artwork the model needs to tell works apart
type ArtworkIdentity struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// Image is a single encoded still image
type Image struct {
	Data     []byte
	MIMEType string // "image/jpeg", "image/png", "image/webp"
}

// Empty reports whether the image carries no bytes
func (i Image) Empty() bool {
	return len(i.Data) == 0
}
