package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewStaticCatalogAssignsIDs(t *testing.T) {
	c := NewStaticCatalog([]Asset{
		{ID: "keep-me", URL: "https://cdn.example.com/a.jpg"},
		{URL: "https://cdn.example.com/b.jpg"},
	})

	assets := c.ListAvailable()
	if len(assets) != 2 {
		t.Fatalf("got %d assets, want 2", len(assets))
	}
	if assets[0].ID != "keep-me" {
		t.Errorf("explicit ID was replaced: %q", assets[0].ID)
	}
	if assets[1].ID == "" {
		t.Error("missing ID was not generated")
	}
}

func TestListAvailableReturnsCopy(t *testing.T) {
	c := NewStaticCatalog([]Asset{{ID: "a", URL: "u"}})

	got := c.ListAvailable()
	got[0].ID = "mutated"
	if c.ListAvailable()[0].ID != "a" {
		t.Error("caller mutation leaked into the catalog")
	}
}

func TestReplaceSwapsPool(t *testing.T) {
	c := NewStaticCatalog([]Asset{{ID: "old", URL: "u"}})
	c.Replace([]Asset{{ID: "new-1", URL: "u"}, {ID: "new-2", URL: "u"}})

	assets := c.ListAvailable()
	if len(assets) != 2 || assets[0].ID != "new-1" {
		t.Errorf("pool not replaced: %+v", assets)
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := `assets:
  - id: sunset-01
    url: https://cdn.example.com/sunset.jpg
    caption: "caught this on my walk"
  - url: https://cdn.example.com/coffee.jpg
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	assets := c.ListAvailable()
	if len(assets) != 2 {
		t.Fatalf("got %d assets, want 2", len(assets))
	}
	if assets[0].ID != "sunset-01" || assets[0].Caption == "" {
		t.Errorf("first asset mismatch: %+v", assets[0])
	}
	if assets[1].ID == "" {
		t.Error("second asset should have a generated ID")
	}
}

func TestLoadCatalogRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte("assets: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCatalog(path); err == nil {
		t.Error("expected error for empty catalog")
	}
}
