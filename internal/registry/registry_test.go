package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grantor/internal/discovery"
)

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadAndLookup(t *testing.T) {
	path := writeRegistry(t, `
services:
  - service: github
    client_id: id-1
    client_secret: sec-1
    auth_url: https://github.example.com/authorize
    token_url: https://github.example.com/token
  - service: gitlab
    client_id: id-2
    client_secret: sec-2
    token_url: https://gitlab.example.com/oauth/token
`)

	r, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"github", "gitlab"}, r.Services())

	client, err := r.Lookup(context.Background(), "github")
	require.NoError(t, err)
	assert.Equal(t, "id-1", client.ID)
	assert.Equal(t, "sec-1", client.Secret)
	assert.Equal(t, "https://github.example.com/token", client.TokenURL)

	_, err = r.Lookup(context.Background(), "missing")
	assert.Error(t, err)
}

func TestLoadRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"missing service name": "services:\n  - client_id: x\n",
		"missing client id":    "services:\n  - service: a\n",
		"duplicate service":    "services:\n  - service: a\n    client_id: x\n  - service: a\n    client_id: y\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeRegistry(t, content), nil)
			assert.Error(t, err)
		})
	}
}

func TestLookupDiscoversEndpoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/oauth-authorization-server" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(discovery.Metadata{
			AuthorizationEndpoint: "https://as.example.com/authorize",
			TokenEndpoint:         "https://as.example.com/token",
		})
	}))
	defer server.Close()

	r := NewFromEntries([]Entry{{
		Service:      "disc",
		ClientID:     "id",
		ClientSecret: "sec",
		Issuer:       server.URL,
	}}, discovery.New())

	client, err := r.Lookup(context.Background(), "disc")
	require.NoError(t, err)
	assert.Equal(t, "https://as.example.com/authorize", client.AuthURL)
	assert.Equal(t, "https://as.example.com/token", client.TokenURL)
}

func TestLookupNoEndpointsNoIssuer(t *testing.T) {
	r := NewFromEntries([]Entry{{Service: "bad", ClientID: "id"}}, nil)
	_, err := r.Lookup(context.Background(), "bad")
	assert.Error(t, err)
}
