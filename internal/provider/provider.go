// Package provider defines the literature-search provider boundary and a
// rate-limited PubMed-style implementation.
package provider

import (
	"context"

	"github.com/litsift/litsift/internal/reference"
)

// Filters narrows a provider search.
type Filters struct {
	DateRange string `json:"date_range,omitempty"` // e.g. "2019:2024"
	Journal   string `json:"journal,omitempty"`
}

// Searcher is the capability interface a literature-search provider
// implements. Searches run in two phases: an ID-list phase and a batched
// detail fetch chunked to respect upstream limits.
type Searcher interface {
	// Name identifies the provider in job reports and cache keys.
	Name() string

	// SearchIDs returns up to limit natural IDs (accession numbers)
	// matching the query.
	SearchIDs(ctx context.Context, query string, limit int, f Filters) ([]string, error)

	// FetchDetails resolves IDs to records. Implementations chunk large ID
	// lists internally.
	FetchDetails(ctx context.Context, ids []string) ([]reference.Record, error)
}

// Registry holds the configured providers in registration order. Provider
// selection happens at construction time, not via runtime type checks.
type Registry struct {
	order     []string
	providers map[string]Searcher
}

// NewRegistry creates a registry from the given providers.
func NewRegistry(providers ...Searcher) *Registry {
	r := &Registry{providers: make(map[string]Searcher, len(providers))}
	for _, p := range providers {
		if _, dup := r.providers[p.Name()]; dup {
			continue
		}
		r.order = append(r.order, p.Name())
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Searcher, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// All returns providers in registration order.
func (r *Registry) All() []Searcher {
	out := make([]Searcher, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name])
	}
	return out
}
