// Package discovery fetches authorization server metadata from an
// issuer's well-known endpoints. RFC 8414 is tried first, with a
// fallback to OpenID Connect discovery. Results are cached per issuer
// with a TTL, and concurrent fetches for the same issuer are
// deduplicated.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"grantor/pkg/logging"
)

const (
	// DefaultHTTPTimeout bounds a single metadata fetch.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultCacheTTL is how long discovered metadata stays valid.
	DefaultCacheTTL = 30 * time.Minute
)

// Metadata is the subset of RFC 8414 authorization server metadata the
// engine uses.
type Metadata struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	RevocationEndpoint            string   `json:"revocation_endpoint,omitempty"`
	IntrospectionEndpoint         string   `json:"introspection_endpoint,omitempty"`
	ScopesSupported               []string `json:"scopes_supported,omitempty"`
	GrantTypesSupported           []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// SupportsS256 reports whether the server advertises the S256 PKCE
// transform. An empty advertisement is treated as support, since many
// servers omit the field.
func (m *Metadata) SupportsS256() bool {
	if len(m.CodeChallengeMethodsSupported) == 0 {
		return true
	}
	for _, method := range m.CodeChallengeMethodsSupported {
		if method == "S256" {
			return true
		}
	}
	return false
}

type cacheEntry struct {
	metadata  *Metadata
	fetchedAt time.Time
}

// Discoverer fetches and caches authorization server metadata.
type Discoverer struct {
	httpClient *http.Client
	ttl        time.Duration

	mu    sync.RWMutex
	cache map[string]*cacheEntry
	group singleflight.Group
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(d *Discoverer) {
		d.httpClient = httpClient
	}
}

// WithCacheTTL sets the metadata cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(d *Discoverer) {
		d.ttl = ttl
	}
}

// New creates a Discoverer.
func New(opts ...Option) *Discoverer {
	d := &Discoverer{
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		ttl:        DefaultCacheTTL,
		cache:      make(map[string]*cacheEntry),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover fetches the metadata for an issuer, serving from cache when
// fresh and collapsing concurrent fetches for the same issuer.
func (d *Discoverer) Discover(ctx context.Context, issuer string) (*Metadata, error) {
	issuer = strings.TrimSuffix(issuer, "/")

	if m := d.cached(issuer); m != nil {
		return m, nil
	}

	result, err, _ := d.group.Do(issuer, func() (interface{}, error) {
		// Re-check after winning the singleflight slot; a concurrent
		// caller may have populated the cache.
		if m := d.cached(issuer); m != nil {
			return m, nil
		}
		return d.discover(ctx, issuer)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Metadata), nil
}

func (d *Discoverer) cached(issuer string) *Metadata {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if entry, ok := d.cache[issuer]; ok && time.Since(entry.fetchedAt) < d.ttl {
		return entry.metadata
	}
	return nil
}

func (d *Discoverer) discover(ctx context.Context, issuer string) (*Metadata, error) {
	metadata, err := d.fetch(ctx, issuer+"/.well-known/oauth-authorization-server")
	if err != nil {
		logging.Debug("Discovery", "RFC 8414 fetch for %s failed, trying OIDC: %v", issuer, err)
		metadata, err = d.fetch(ctx, issuer+"/.well-known/openid-configuration")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to discover metadata for %s: %w", issuer, err)
	}

	d.mu.Lock()
	d.cache[issuer] = &cacheEntry{metadata: metadata, fetchedAt: time.Now()}
	d.mu.Unlock()

	logging.Debug("Discovery", "cached metadata for %s (token endpoint %s)", issuer, metadata.TokenEndpoint)
	return metadata, nil
}

func (d *Discoverer) fetch(ctx context.Context, metadataURL string) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var metadata Metadata
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &metadata, nil
}
