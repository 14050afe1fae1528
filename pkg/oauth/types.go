package oauth

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultExpiryMargin is the default margin when checking token expiry.
// This accounts for clock skew and network latency.
const DefaultExpiryMargin = 30 * time.Second

// Client identifies an OAuth2 service. Instances are immutable once
// constructed; the client registry owns them.
type Client struct {
	// Service is the unique service name the client is registered under.
	Service string `yaml:"service" json:"service"`

	// ID is the OAuth2 client identifier.
	ID string `yaml:"client_id" json:"client_id"`

	// Secret is the confidential client secret. It is used for the HTTP
	// Basic authorization header on token endpoint requests and is never
	// logged.
	Secret string `yaml:"client_secret" json:"client_secret"`

	// AuthURL is the authorization endpoint.
	AuthURL string `yaml:"auth_url" json:"auth_url"`

	// TokenURL is the token endpoint.
	TokenURL string `yaml:"token_url" json:"token_url"`
}

// Token represents an OAuth2 access token with associated metadata.
// Tokens are immutable value objects; refreshing produces a new Token.
type Token struct {
	// AccessToken is the bearer token used for authorization.
	AccessToken string `json:"access_token"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type"`

	// RefreshToken is used to obtain new access tokens (optional).
	RefreshToken string `json:"refresh_token,omitempty"`

	// Audience is the audience the token was granted for (optional).
	Audience string `json:"audience,omitempty"`

	// Scopes is the ordered set of granted scopes.
	Scopes []string `json:"scopes,omitempty"`

	// ExpiresAt is the absolute expiration timestamp, computed from the
	// token response's expires_in at decode time. Zero means the token
	// does not expire.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// IsExpired checks if the token has expired, using the default margin.
func (t *Token) IsExpired() bool {
	return t.IsExpiredWithMargin(DefaultExpiryMargin)
}

// IsExpiredWithMargin checks if the token has expired or will expire
// within the given margin.
func (t *Token) IsExpiredWithMargin(margin time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false // Tokens without expiration don't expire
	}
	return time.Now().Add(margin).After(t.ExpiresAt)
}

// ScopeString returns the granted scopes as a space-joined string.
func (t *Token) ScopeString() string {
	return strings.Join(t.Scopes, " ")
}

// HasScope reports whether the given scope was granted.
func (t *Token) HasScope(scope string) bool {
	for _, s := range t.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ToOAuth2Token converts the Token to an oauth2.Token for compatibility
// with golang.org/x/oauth2 consumers.
func (t *Token) ToOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
}

// PKCEChallenge represents a PKCE (Proof Key for Code Exchange) challenge.
// PKCE binds an authorization request to its token exchange, preventing
// authorization code interception.
type PKCEChallenge struct {
	// CodeVerifier is the cryptographically random string (43-128
	// unreserved characters). It is kept secret until the token exchange.
	CodeVerifier string

	// CodeChallenge is the SHA256 hash of the verifier, base64url-encoded.
	// This is sent in the authorization request.
	CodeChallenge string

	// CodeChallengeMethod is always "S256". The "plain" transform is
	// intentionally unsupported.
	CodeChallengeMethod string
}

// TokenKind identifies which of a grant's tokens a revocation or
// introspection operation targets. It is a closed enumeration; any other
// value is rejected with ErrInvalidArgument by the exchange engine.
type TokenKind int

const (
	// TokenKindAccess targets the access token.
	TokenKindAccess TokenKind = iota

	// TokenKindRefresh targets the refresh token.
	TokenKindRefresh
)

// String returns the RFC 7009/7662 wire form of the token kind.
func (k TokenKind) String() string {
	switch k {
	case TokenKindAccess:
		return "access_token"
	case TokenKindRefresh:
		return "refresh_token"
	default:
		return "unknown"
	}
}

// Valid reports whether the kind is a member of the closed enumeration.
func (k TokenKind) Valid() bool {
	return k == TokenKindAccess || k == TokenKindRefresh
}
