package group

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Group is a remote path whose chat UI serves a family of models
type Group string

// Registry holds the configured remote paths and builds their page URLs
type Registry struct {
	baseURL string
	groups  []Group
	index   map[Group]int
	mu      sync.RWMutex
}

// NewRegistry creates a registry for the given base URL and remote paths
func NewRegistry(baseURL string, paths []string) (*Registry, error) {
	base := strings.TrimRight(baseURL, "/")
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}

	r := &Registry{
		baseURL: base,
		index:   make(map[Group]int),
	}

	for _, p := range paths {
		g := Group(strings.Trim(strings.TrimSpace(p), "/"))
		if g == "" {
			continue
		}
		if _, exists := r.index[g]; exists {
			continue
		}
		r.index[g] = len(r.groups)
		r.groups = append(r.groups, g)
	}

	if len(r.groups) == 0 {
		return nil, fmt.Errorf("no remote paths configured")
	}

	return r, nil
}

// Has reports whether the group is configured
func (r *Registry) Has(g string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.index[Group(g)]
	return exists
}

// URL returns the chat page URL for a group
func (r *Registry) URL(g string) (string, error) {
	if !r.Has(g) {
		return "", fmt.Errorf("unsupported group: %s", g)
	}
	return r.baseURL + "/" + g, nil
}

// Groups returns all configured groups in configuration order
func (r *Registry) Groups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	groups := make([]string, 0, len(r.groups))
	for _, g := range r.groups {
		groups = append(groups, string(g))
	}

	return groups
}

// Matches reports whether a page location is the group's chat page.
// Query strings and fragments are ignored; the remote site appends
// conversation ids to them.
func (r *Registry) Matches(g, location string) bool {
	want, err := r.URL(g)
	if err != nil {
		return false
	}
	got, err := url.Parse(location)
	if err != nil {
		return false
	}
	got.RawQuery = ""
	got.Fragment = ""
	return strings.TrimRight(got.String(), "/") == want
}
