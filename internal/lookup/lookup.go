// Package lookup maps registry owner ids to curated collection names. The
// mapping is maintained by hand in a YAML file alongside the data directory
// and can be reloaded without restarting the server.
package lookup

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// entry is one row of the collections file. The accepted name wins over the
// suggested one; "Unknown" marks an investigated but unidentified owner and
// is treated as no name.
type entry struct {
	OwnerID       string `yaml:"owner_id"`
	AcceptedName  string `yaml:"accepted_name"`
	SuggestedName string `yaml:"suggested_name"`
}

type collectionsFile struct {
	Collections []entry `yaml:"collections"`
}

// Collections is a reloadable owner-id to collection-name lookup. Safe for
// concurrent use.
type Collections struct {
	path string

	mu      sync.RWMutex
	byOwner map[string]string
}

// New creates a Collections lookup backed by the YAML file at path and loads
// it. A missing file is not an error; the lookup starts empty.
func New(path string) (*Collections, error) {
	c := &Collections{path: path, byOwner: map[string]string{}}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the collections file, replacing the mapping atomically.
func (c *Collections) Reload() error {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		log.Printf("lookup: collections file not found: %s", c.path)
		c.mu.Lock()
		c.byOwner = map[string]string{}
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup: failed to read %s: %w", c.path, err)
	}

	var file collectionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("lookup: failed to parse %s: %w", c.path, err)
	}

	mapping := make(map[string]string, len(file.Collections))
	for _, e := range file.Collections {
		ownerID := strings.TrimSpace(e.OwnerID)
		name := strings.TrimSpace(e.AcceptedName)
		if name == "" {
			name = strings.TrimSpace(e.SuggestedName)
		}
		if ownerID == "" || name == "" || strings.EqualFold(name, "unknown") {
			continue
		}
		mapping[ownerID] = name
	}

	c.mu.Lock()
	c.byOwner = mapping
	c.mu.Unlock()

	log.Printf("lookup: loaded %d collection names from %s", len(mapping), c.path)
	return nil
}

// Name returns the collection name for an owner id, if known.
func (c *Collections) Name(ownerID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.byOwner[ownerID]
	return name, ok
}

// All returns a copy of the full mapping.
func (c *Collections) All() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.byOwner))
	for k, v := range c.byOwner {
		out[k] = v
	}
	return out
}

// Len returns the number of known collection names.
func (c *Collections) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byOwner)
}
