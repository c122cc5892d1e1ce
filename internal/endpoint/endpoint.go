// Package endpoint resolves configured tile-source names to concrete
// fetch definitions through an explicit registration table.
package endpoint

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"tilemosaic/internal/fetch"
)

// Params carries the configured per-endpoint settings a constructor
// may use or override.
type Params struct {
	URITemplate string
	Format      string
	Options     map[string]string
	Credentials *fetch.Credentials
}

// Definition is a fully resolved tile source: everything the pipeline
// needs to enumerate, fetch, and place its tiles.
type Definition struct {
	Type        string
	URITemplate string
	// Convention names the tile grid ("slippy" or "mercator") and is
	// resolved through tiler.ForName.
	Convention  string
	Format      string
	Options     map[string]string
	Credentials *fetch.Credentials
}

// Constructor builds a Definition from configured parameters.
type Constructor func(p Params) (Definition, error)

var (
	mu       sync.RWMutex
	registry = map[string]Constructor{}
)

// Register adds a constructor under name. Registering a duplicate name
// panics; endpoint types are wired at init time and a collision is a
// programming error.
func Register(name string, c Constructor) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("endpoint: duplicate registration of %q", name))
	}
	registry[name] = c
}

// Resolve constructs the Definition for the named endpoint type.
func Resolve(name string, p Params) (Definition, error) {
	mu.RLock()
	c, ok := registry[strings.ToLower(name)]
	mu.RUnlock()
	if !ok {
		return Definition{}, fmt.Errorf("endpoint: unknown type %q (registered: %s)",
			name, strings.Join(Names(), ", "))
	}
	return c(p)
}

// Names lists registered endpoint types, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	// xyz: generic slippy-map source, e.g. OSM-style {z}/{x}/{y} URLs.
	Register("xyz", func(p Params) (Definition, error) {
		return build("xyz", "slippy", p)
	})
	// wmts: generic WMTS-style source on the global-mercator grid.
	Register("wmts", func(p Params) (Definition, error) {
		return build("wmts", "mercator", p)
	})
}

func build(typ, convention string, p Params) (Definition, error) {
	if p.URITemplate == "" {
		return Definition{}, fmt.Errorf("endpoint %s: uri template is required", typ)
	}
	if !strings.Contains(p.URITemplate, "{x}") ||
		!strings.Contains(p.URITemplate, "{y}") ||
		!strings.Contains(p.URITemplate, "{z}") {
		return Definition{}, fmt.Errorf(
			"endpoint %s: uri template must contain {x}, {y} and {z} placeholders", typ)
	}
	format := p.Format
	if format == "" {
		format = "png"
	}
	return Definition{
		Type:        typ,
		URITemplate: p.URITemplate,
		Convention:  convention,
		Format:      format,
		Options:     p.Options,
		Credentials: p.Credentials,
	}, nil
}
