// Package registry resolves service names to OAuth2 client
// registrations from a YAML file. An entry may name an issuer instead
// of explicit endpoints, in which case the endpoints are filled in
// through metadata discovery at lookup time.
package registry

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"grantor/internal/discovery"
	"grantor/pkg/logging"
	"grantor/pkg/oauth"
)

// Entry is one registered service.
type Entry struct {
	Service      string `yaml:"service"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AuthURL      string `yaml:"auth_url,omitempty"`
	TokenURL     string `yaml:"token_url,omitempty"`

	// Issuer enables endpoint discovery when AuthURL or TokenURL is
	// empty.
	Issuer string `yaml:"issuer,omitempty"`
}

type registryFile struct {
	Services []Entry `yaml:"services"`
}

// Registry holds the registered services.
type Registry struct {
	entries    map[string]Entry
	discoverer *discovery.Discoverer
}

// Load reads the registry file at path.
func Load(path string, discoverer *discovery.Discoverer) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("malformed registry file %s: %w", path, err)
	}

	r := &Registry{
		entries:    make(map[string]Entry, len(file.Services)),
		discoverer: discoverer,
	}
	for _, entry := range file.Services {
		if entry.Service == "" {
			return nil, fmt.Errorf("registry entry without a service name in %s", path)
		}
		if entry.ClientID == "" {
			return nil, fmt.Errorf("registry entry %q without a client_id", entry.Service)
		}
		if _, dup := r.entries[entry.Service]; dup {
			return nil, fmt.Errorf("duplicate registry entry %q", entry.Service)
		}
		r.entries[entry.Service] = entry
	}

	logging.Debug("Registry", "loaded %d services from %s", len(r.entries), path)
	return r, nil
}

// NewFromEntries builds a registry without a backing file. Used in
// tests and by callers that assemble entries programmatically.
func NewFromEntries(entries []Entry, discoverer *discovery.Discoverer) *Registry {
	r := &Registry{
		entries:    make(map[string]Entry, len(entries)),
		discoverer: discoverer,
	}
	for _, entry := range entries {
		r.entries[entry.Service] = entry
	}
	return r
}

// Services returns the sorted registered service names.
func (r *Registry) Services() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves a service name to a client, running endpoint
// discovery when the entry names an issuer but lacks endpoint URLs.
func (r *Registry) Lookup(ctx context.Context, service string) (*oauth.Client, error) {
	entry, ok := r.entries[service]
	if !ok {
		return nil, fmt.Errorf("service %q is not registered", service)
	}

	client := &oauth.Client{
		Service:  entry.Service,
		ID:       entry.ClientID,
		Secret:   entry.ClientSecret,
		AuthURL:  entry.AuthURL,
		TokenURL: entry.TokenURL,
	}

	if (client.AuthURL == "" || client.TokenURL == "") && entry.Issuer != "" {
		if r.discoverer == nil {
			return nil, fmt.Errorf("service %q needs endpoint discovery but none is configured", service)
		}
		metadata, err := r.discoverer.Discover(ctx, entry.Issuer)
		if err != nil {
			return nil, fmt.Errorf("failed to discover endpoints for %q: %w", service, err)
		}
		if client.AuthURL == "" {
			client.AuthURL = metadata.AuthorizationEndpoint
		}
		if client.TokenURL == "" {
			client.TokenURL = metadata.TokenEndpoint
		}
	}

	if client.TokenURL == "" {
		return nil, fmt.Errorf("service %q has no token endpoint", service)
	}
	return client, nil
}
