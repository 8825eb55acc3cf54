package catalog

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Model carries per-million-token pricing for a watsonx model.
type Model struct {
	ID            string  `yaml:"id"`
	InputPerMTok  float64 `yaml:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok"`
}

// Catalog maps model IDs to pricing. Models without an entry resolve to zero
// pricing rather than an error.
type Catalog struct {
	mu     sync.RWMutex
	models map[string]Model
}

// builtin pricing for common watsonx models, USD per million tokens.
var builtin = []Model{
	{ID: "ibm/granite-13b-chat-v2", InputPerMTok: 0.60, OutputPerMTok: 0.60},
	{ID: "ibm/granite-13b-instruct-v2", InputPerMTok: 0.60, OutputPerMTok: 0.60},
	{ID: "ibm/granite-3-8b-instruct", InputPerMTok: 0.20, OutputPerMTok: 0.20},
	{ID: "meta-llama/llama-3-1-8b-instruct", InputPerMTok: 0.60, OutputPerMTok: 0.60},
	{ID: "meta-llama/llama-3-1-70b-instruct", InputPerMTok: 1.80, OutputPerMTok: 1.80},
	{ID: "meta-llama/llama-3-405b-instruct", InputPerMTok: 5.00, OutputPerMTok: 16.00},
	{ID: "mistralai/mistral-large", InputPerMTok: 3.00, OutputPerMTok: 10.00},
	{ID: "mistralai/mixtral-8x7b-instruct-v01", InputPerMTok: 0.60, OutputPerMTok: 0.60},
}

// New returns a catalog seeded with the builtin pricing table.
func New() *Catalog {
	c := &Catalog{models: make(map[string]Model, len(builtin))}
	for _, m := range builtin {
		c.models[m.ID] = m
	}
	return c
}

// Lookup resolves pricing for a model ID. Unknown models return a zero-priced
// entry so cost computation degrades to zero instead of failing.
func (c *Catalog) Lookup(id string) Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if m, ok := c.models[id]; ok {
		return m
	}
	return Model{ID: id}
}

// Add inserts or replaces a pricing entry.
func (c *Catalog) Add(m Model) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models[m.ID] = m
}

type catalogFile struct {
	Models []Model `yaml:"models"`
}

// LoadFile merges pricing entries from a YAML file into the catalog. File
// entries override builtin ones with the same ID.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range f.Models {
		if m.ID == "" {
			continue
		}
		c.models[m.ID] = m
	}
	return nil
}
