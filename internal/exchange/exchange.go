// Package exchange implements the OAuth2 token endpoint operations:
// authorization-code exchange, resource-owner password and
// client-credentials grants, refresh, revocation (RFC 7009) and
// introspection (RFC 7662).
//
// Every operation funnels through one primitive that POSTs a
// form-encoded body with HTTP Basic client authentication over
// internal/httpwire. A non-200 answer is handed back to the caller as
// the raw wire result; only transport and protocol failures are errors.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"grantor/internal/httpwire"
	"grantor/pkg/logging"
	"grantor/pkg/oauth"
)

const formContentType = "application/x-www-form-urlencoded"

// ExchangeCode trades an authorization code for a token. codeVerifier is
// the PKCE verifier from the authorization request; pass "" when the
// request carried no challenge.
func ExchangeCode(ctx context.Context, client *oauth.Client, code, redirectURI, codeVerifier string) (*oauth.Token, *httpwire.Result, error) {
	if code == "" {
		return nil, nil, fmt.Errorf("empty authorization code: %w", oauth.ErrInvalidArgument)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("client_id", client.ID)
	if codeVerifier != "" {
		form.Set("code_verifier", codeVerifier)
	}

	return tokenRequest(ctx, client, form)
}

// ExchangePassword performs the resource owner password credentials
// grant.
func ExchangePassword(ctx context.Context, client *oauth.Client, username, password string, scopes []string) (*oauth.Token, *httpwire.Result, error) {
	if username == "" {
		return nil, nil, fmt.Errorf("empty username: %w", oauth.ErrInvalidArgument)
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", username)
	form.Set("password", password)
	form.Set("client_id", client.ID)
	if len(scopes) > 0 {
		form.Set("scope", strings.Join(scopes, " "))
	}

	return tokenRequest(ctx, client, form)
}

// ExchangeClientCredentials performs the client credentials grant. The
// client authenticates through the Basic header alone.
func ExchangeClientCredentials(ctx context.Context, client *oauth.Client, scopes []string) (*oauth.Token, *httpwire.Result, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	if len(scopes) > 0 {
		form.Set("scope", strings.Join(scopes, " "))
	}

	return tokenRequest(ctx, client, form)
}

// Refresh trades a refresh token for a new token.
func Refresh(ctx context.Context, client *oauth.Client, refreshToken string) (*oauth.Token, *httpwire.Result, error) {
	if refreshToken == "" {
		return nil, nil, fmt.Errorf("empty refresh token: %w", oauth.ErrInvalidArgument)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", client.ID)
	form.Set("client_secret", client.Secret)

	return tokenRequest(ctx, client, form)
}

// Revoke asks the server to revoke the given token per RFC 7009. The
// kind must be a member of the oauth.TokenKind enumeration. The caller
// inspects the returned result; RFC 7009 servers answer 200 even for
// unknown tokens.
func Revoke(ctx context.Context, client *oauth.Client, kind oauth.TokenKind, token string) (*httpwire.Result, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown token kind %d: %w", kind, oauth.ErrInvalidArgument)
	}
	if token == "" {
		return nil, fmt.Errorf("empty token: %w", oauth.ErrInvalidArgument)
	}

	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type", kind.String())

	logging.Debug("Exchange", "revoking %s for service %s", kind, client.Service)
	return post(ctx, client, revocationURL(client), form)
}

// Introspect queries the server for the state of the given token per
// RFC 7662 and returns the raw result; a 200 body is the introspection
// JSON document.
func Introspect(ctx context.Context, client *oauth.Client, kind oauth.TokenKind, token string) (*httpwire.Result, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown token kind %d: %w", kind, oauth.ErrInvalidArgument)
	}
	if token == "" {
		return nil, fmt.Errorf("empty token: %w", oauth.ErrInvalidArgument)
	}

	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", kind.String())

	logging.Debug("Exchange", "introspecting %s for service %s", kind, client.Service)
	return post(ctx, client, introspectionURL(client), form)
}

// tokenRequest posts the form to the client's token endpoint and, on
// 200, decodes the token response. On any other status the raw result is
// returned with a nil token so the caller can inspect the server's error
// document.
func tokenRequest(ctx context.Context, client *oauth.Client, form url.Values) (*oauth.Token, *httpwire.Result, error) {
	logging.Debug("Exchange", "token request grant_type=%s service=%s", form.Get("grant_type"), client.Service)

	result, err := post(ctx, client, client.TokenURL, form)
	if err != nil {
		return nil, nil, err
	}
	if result.StatusCode != 200 {
		logging.Info("Exchange", "token endpoint for %s answered %s", client.Service, result.Status)
		return nil, result, nil
	}

	token, err := decodeToken(result.Body)
	if err != nil {
		return nil, result, err
	}
	return token, result, nil
}

func post(ctx context.Context, client *oauth.Client, endpoint string, form url.Values) (*httpwire.Result, error) {
	headers := []httpwire.Header{
		{Name: "Authorization", Value: oauth.BasicAuth(client.ID, client.Secret)},
		{Name: "Accept", Value: "application/json"},
	}
	return httpwire.Post(ctx, endpoint, headers, formContentType, []byte(form.Encode()))
}

// revocationURL derives the revocation endpoint from the token endpoint
// when the registry carries none. "/token" becomes "/revoke"; anything
// else gets "/revoke" appended.
func revocationURL(client *oauth.Client) string {
	return siblingEndpoint(client.TokenURL, "revoke")
}

func introspectionURL(client *oauth.Client) string {
	return siblingEndpoint(client.TokenURL, "introspect")
}

func siblingEndpoint(tokenURL, name string) string {
	if strings.HasSuffix(tokenURL, "/token") {
		return strings.TrimSuffix(tokenURL, "token") + name
	}
	return strings.TrimRight(tokenURL, "/") + "/" + name
}

// tokenResponse is the wire shape of a successful token response.
// expires_in arrives as a JSON number from most servers but as a quoted
// string from some; both are accepted.
type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	TokenType    string        `json:"token_type"`
	RefreshToken string        `json:"refresh_token"`
	Audience     string        `json:"audience"`
	Scope        string        `json:"scope"`
	ExpiresIn    flexibleInt64 `json:"expires_in"`
}

type flexibleInt64 int64

func (f *flexibleInt64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("expires_in %q is not an integer: %w", s, err)
	}
	*f = flexibleInt64(n)
	return nil
}

func decodeToken(body []byte) (*oauth.Token, error) {
	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &oauth.ProtocolError{Reason: "undecodable token response", Err: err}
	}
	if resp.AccessToken == "" {
		return nil, &oauth.ProtocolError{Reason: "token response missing access_token"}
	}
	if resp.TokenType == "" {
		return nil, &oauth.ProtocolError{Reason: "token response missing token_type"}
	}

	token := &oauth.Token{
		AccessToken:  resp.AccessToken,
		TokenType:    resp.TokenType,
		RefreshToken: resp.RefreshToken,
		Audience:     resp.Audience,
		Scopes:       splitScopes(resp.Scope),
	}
	if resp.ExpiresIn > 0 {
		token.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return token, nil
}

// splitScopes splits a scope string on spaces and commas, preserving
// order. Some servers answer comma-separated scope lists even though
// RFC 6749 specifies spaces.
func splitScopes(scope string) []string {
	fields := strings.FieldsFunc(scope, func(r rune) bool {
		return r == ' ' || r == ','
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}
