package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/lehigh-university-libraries/artscan/internal/models"
	"github.com/parquet-go/parquet-go"
)

func testRecords() []models.Artwork {
	return []models.Artwork{
		{ID: "a", Title: "Alpha", Artist: "Ann", RelatedArtworkIDs: []string{"c", "missing", "b"}},
		{ID: "b", Title: "Beta", Artist: "Bob"},
		{ID: "c", Title: "Gamma", Artist: "Cy", RelatedArtworkIDs: []string{"a"}},
	}
}

func TestFind(t *testing.T) {
	c, err := New(testRecords())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	tests := []struct {
		name  string
		id    string
		found bool
	}{
		{name: "known id", id: "a", found: true},
		{name: "unknown id", id: "nope", found: false},
		{name: "empty id", id: "", found: false},
		{name: "sentinel is not an artwork", id: "UNKNOWN", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := c.Find(tt.id)
			if ok != tt.found {
				t.Fatalf("Find(%q) found=%v, want %v", tt.id, ok, tt.found)
			}
			if ok && rec.ID != tt.id {
				t.Errorf("Find(%q) returned %q", tt.id, rec.ID)
			}
		})
	}
}

func TestFindAllKeepsOrderAndDropsMisses(t *testing.T) {
	c, err := New(testRecords())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	got := c.FindAll([]string{"c", "missing", "b", "also-missing", "a"})
	var ids []string
	for _, rec := range got {
		ids = append(ids, rec.ID)
	}

	expected := []string{"c", "b", "a"}
	if !reflect.DeepEqual(ids, expected) {
		t.Errorf("Expected %v, got %v", expected, ids)
	}

	if got := c.FindAll(nil); len(got) != 0 {
		t.Errorf("Expected no records for nil ids, got %d", len(got))
	}
}

func TestFindReturnsCopies(t *testing.T) {
	c, err := New(testRecords())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	rec, _ := c.Find("a")
	rec.RelatedArtworkIDs[0] = "mutated"
	rec.Title = "mutated"

	again, _ := c.Find("a")
	if again.RelatedArtworkIDs[0] != "c" || again.Title != "Alpha" {
		t.Errorf("catalog record was mutated through a lookup: %+v", again)
	}
}

func TestNewRejectsInvalidRecords(t *testing.T) {
	tests := []struct {
		name    string
		records []models.Artwork
	}{
		{name: "duplicate id", records: []models.Artwork{{ID: "a"}, {ID: "a"}}},
		{name: "empty id", records: []models.Artwork{{ID: "a"}, {Title: "nameless"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.records); err == nil {
				t.Fatal("Expected error, got nil")
			}
		})
	}

	_, err := New([]models.Artwork{{ID: "x"}, {ID: "x"}})
	if !errors.Is(err, ErrDuplicateID) {
		t.Errorf("Expected ErrDuplicateID, got %v", err)
	}
}

func TestIdentitiesFollowCatalogOrder(t *testing.T) {
	c, err := New(testRecords())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	expected := []models.ArtworkIdentity{
		{ID: "a", Title: "Alpha", Artist: "Ann"},
		{ID: "b", Title: "Beta", Artist: "Bob"},
		{ID: "c", Title: "Gamma", Artist: "Cy"},
	}
	if got := c.Identities(); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	if c.Len() == 0 {
		t.Fatal("embedded catalog is empty")
	}
	for _, rec := range c.All() {
		if rec.Title == "" || rec.Artist == "" || rec.Description == "" {
			t.Errorf("artwork %q is missing required text fields", rec.ID)
		}
	}
	if _, ok := c.Find("starry-night"); !ok {
		t.Error("Expected starry-night in the embedded catalog")
	}
}

func TestDanglingRelations(t *testing.T) {
	c, err := New(testRecords())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	expected := map[string][]string{"a": {"missing"}}
	if got := c.DanglingRelations(); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestLoadFormats(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "catalog.yaml")
	yamlDoc := "artworks:\n  - id: a\n    title: Alpha\n    artist: Ann\n    related_artwork_ids: [b]\n  - id: b\n    title: Beta\n    artist: Bob\n"
	if err := os.WriteFile(yamlPath, []byte(yamlDoc), 0644); err != nil {
		t.Fatal(err)
	}

	jsonlPath := filepath.Join(dir, "catalog.jsonl")
	jsonl := `{"id":"a","title":"Alpha","artist":"Ann","related_artwork_ids":["b"]}` + "\n\n" +
		`{"id":"b","title":"Beta","artist":"Bob"}` + "\n"
	if err := os.WriteFile(jsonlPath, []byte(jsonl), 0644); err != nil {
		t.Fatal(err)
	}

	parquetPath := filepath.Join(dir, "catalog.parquet")
	rows := []models.Artwork{
		{ID: "a", Title: "Alpha", Artist: "Ann", RelatedArtworkIDs: []string{"b"}},
		{ID: "b", Title: "Beta", Artist: "Bob"},
	}
	if err := parquet.WriteFile(parquetPath, rows); err != nil {
		t.Fatalf("failed to write parquet fixture: %v", err)
	}

	for _, path := range []string{yamlPath, jsonlPath, parquetPath} {
		t.Run(filepath.Ext(path), func(t *testing.T) {
			c, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if c.Len() != 2 {
				t.Fatalf("Expected 2 artworks, got %d", c.Len())
			}
			rec, ok := c.Find("a")
			if !ok {
				t.Fatal("Expected artwork a")
			}
			if rec.Title != "Alpha" || !reflect.DeepEqual(rec.RelatedArtworkIDs, []string{"b"}) {
				t.Errorf("unexpected record: %+v", rec)
			}
		})
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	if _, err := Load("catalog.csv"); err == nil {
		t.Error("Expected error for unsupported format")
	}
}
