// Package scenario holds the static table of weighted, tagged requests that
// simulated users issue against the coverages API.
package scenario

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"slices"

	"github.com/skorper/harmony/internal/client"
)

// Env carries the per-run values request builders need.
type Env struct {
	ShapefilePath string
}

// Builder produces the request for one scenario execution.
type Builder func(env Env) (client.Request, error)

// Scenario is one (weight, tags, request-builder) entry.
type Scenario struct {
	Name   string
	Weight int
	Tags   []string
	// Async scenarios submit a job and wait for it to finish.
	Async bool
	Build Builder
}

// HasTag returns true if the scenario carries tag.
func (s Scenario) HasTag(tag string) bool {
	return slices.Contains(s.Tags, tag)
}

// CoveragePath renders the OGC coverages rangeset route. The variable is
// path-escaped so hierarchical names stay a single path segment.
func CoveragePath(collection, variable string) string {
	return fmt.Sprintf("/%s/ogc-api-coverages/1.0.0/collections/%s/coverage/rangeset",
		url.PathEscape(collection), url.PathEscape(variable))
}

// Request builds the request for one execution, named after the scenario.
func (s Scenario) Request(env Env) (client.Request, error) {
	req, err := s.Build(env)
	if err != nil {
		return client.Request{}, fmt.Errorf("%s: %w", s.Name, err)
	}
	if req.Name == "" {
		req.Name = s.Name
	}
	return req, nil
}

func coverageGet(collection, variable string, query url.Values) Builder {
	return func(Env) (client.Request, error) {
		return client.Request{
			Method: http.MethodGet,
			Path:   CoveragePath(collection, variable),
			Query:  query,
		}, nil
	}
}

// Filter keeps scenarios carrying at least one of include (all when empty)
// and none of exclude.
func Filter(table []Scenario, include, exclude []string) []Scenario {
	var out []Scenario
	for _, s := range table {
		if len(include) > 0 && !slices.ContainsFunc(include, s.HasTag) {
			continue
		}
		if slices.ContainsFunc(exclude, s.HasTag) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Find returns the scenario with the given name.
func Find(table []Scenario, name string) (Scenario, bool) {
	for _, s := range table {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// Picker selects scenarios proportionally to their weight. A Picker is not
// safe for concurrent use; each simulated user owns one.
type Picker struct {
	table      []Scenario
	cumulative []int
	total      int
	rng        *rand.Rand
}

// NewPicker builds a picker over the scenarios with a positive weight.
func NewPicker(table []Scenario, rng *rand.Rand) (*Picker, error) {
	p := &Picker{rng: rng}
	for _, s := range table {
		if s.Weight <= 0 {
			continue
		}
		p.total += s.Weight
		p.table = append(p.table, s)
		p.cumulative = append(p.cumulative, p.total)
	}
	if p.total == 0 {
		return nil, fmt.Errorf("no scenario with a positive weight")
	}
	return p, nil
}

// Pick returns the next scenario.
func (p *Picker) Pick() Scenario {
	n := p.rng.IntN(p.total)
	idx, _ := slices.BinarySearch(p.cumulative, n+1)
	return p.table[idx]
}
