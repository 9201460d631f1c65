// Package catalog provides the asset catalog collaborator: the static or
// slowly-changing pool of shareable media assets the engine selects from.
package catalog

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Asset is one shareable media asset. The engine treats IDs as opaque;
// URL and caption are passed through to the delivery layer untouched.
type Asset struct {
	ID      string `yaml:"id" json:"id"`
	URL     string `yaml:"url" json:"url"`
	Caption string `yaml:"caption,omitempty" json:"caption,omitempty"`
}

// AssetCatalog lists the assets currently available for delivery.
type AssetCatalog interface {
	// ListAvailable returns the current asset pool. Implementations must
	// return a slice the caller may read without further locking.
	ListAvailable() []Asset
}

// StaticCatalog is an in-memory AssetCatalog, optionally reloadable from
// a YAML file.
type StaticCatalog struct {
	mu     sync.RWMutex
	assets []Asset
}

// NewStaticCatalog creates a catalog from a fixed asset list. Assets
// without an ID are assigned a generated one.
func NewStaticCatalog(assets []Asset) *StaticCatalog {
	c := &StaticCatalog{}
	c.replace(assets)
	return c
}

// LoadCatalog reads an asset pool from a YAML file.
//
// File format:
//
//	assets:
//	  - id: sunset-01
//	    url: https://cdn.example.com/sunset.jpg
//	    caption: "caught this on my walk"
func LoadCatalog(path string) (*StaticCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to read %s: %w", path, err)
	}

	var doc struct {
		Assets []Asset `yaml:"assets"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: failed to parse %s: %w", path, err)
	}
	if len(doc.Assets) == 0 {
		return nil, fmt.Errorf("catalog: %s contains no assets", path)
	}

	return NewStaticCatalog(doc.Assets), nil
}

// ListAvailable returns a copy of the current pool.
func (c *StaticCatalog) ListAvailable() []Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Asset, len(c.assets))
	copy(out, c.assets)
	return out
}

// Replace swaps the pool contents (slowly-changing catalog updates).
func (c *StaticCatalog) Replace(assets []Asset) {
	c.replace(assets)
}

func (c *StaticCatalog) replace(assets []Asset) {
	cleaned := make([]Asset, 0, len(assets))
	for _, a := range assets {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		cleaned = append(cleaned, a)
	}

	c.mu.Lock()
	c.assets = cleaned
	c.mu.Unlock()
}
