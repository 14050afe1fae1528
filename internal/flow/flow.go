// Package flow coordinates complete OAuth2 grants: it obtains a token
// through the appropriate grant, stores it for the owning user, and
// persists the store. Each successful flow performs exactly one store
// write followed by one save.
package flow

import (
	"context"
	"fmt"
	"time"

	"grantor/internal/authorize"
	"grantor/internal/exchange"
	"grantor/internal/identity"
	"grantor/pkg/logging"
	"grantor/pkg/oauth"
)

// TokenStore is the slice of the token store the coordinator uses.
type TokenStore interface {
	Get(user, service string) (*oauth.Token, error)
	Set(user, service string, token *oauth.Token) error
	Save() error
}

// Options tune a single flow invocation. The zero value is fully
// usable: the token owner defaults to the current OS user and the state
// and PKCE verifier are generated.
type Options struct {
	// User owns the stored token. Empty means the current OS user.
	User string

	// State overrides the generated CSRF state parameter.
	State string

	// Verifier overrides the generated PKCE code verifier.
	Verifier string

	// Audience is an optional audience for the authorization request.
	Audience string

	// Timeout bounds the browser redirect wait; zero uses the
	// orchestrator default.
	Timeout time.Duration
}

// Coordinator runs grants end to end.
type Coordinator struct {
	listener authorize.RedirectListener
	launcher authorize.BrowserLauncher
	store    TokenStore
	identity identity.Provider
}

// New creates a Coordinator.
func New(listener authorize.RedirectListener, launcher authorize.BrowserLauncher, store TokenStore, provider identity.Provider) *Coordinator {
	return &Coordinator{
		listener: listener,
		launcher: launcher,
		store:    store,
		identity: provider,
	}
}

// InitiateCodeFlow runs the authorization code grant with PKCE:
// authorize in the browser, exchange the code, store the token.
func (c *Coordinator) InitiateCodeFlow(ctx context.Context, client *oauth.Client, scopes []string, opts Options) (*oauth.Token, error) {
	user, err := c.owner(opts)
	if err != nil {
		return nil, err
	}

	state := opts.State
	if state == "" {
		state, err = oauth.GenerateState(oauth.DefaultStateBytes)
		if err != nil {
			return nil, err
		}
	}

	challenge, err := oauth.NewPKCEChallenge(opts.Verifier)
	if err != nil {
		return nil, err
	}

	orchestrator := authorize.New(c.listener, c.launcher)
	code, err := orchestrator.RequestCode(ctx, &authorize.Request{
		Client:    client,
		Scopes:    scopes,
		State:     state,
		Challenge: challenge,
		Audience:  opts.Audience,
		Timeout:   opts.Timeout,
	})
	if err != nil {
		return nil, err
	}

	token, result, err := exchange.ExchangeCode(ctx, client, code, c.listener.RedirectURI(), challenge.CodeVerifier)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, fmt.Errorf("token endpoint for %s answered %s", client.Service, result.Status)
	}

	if err := c.persist(user, client.Service, token); err != nil {
		return nil, err
	}

	logging.Info("Flow", "authorization code flow completed for user %s service %s", user, client.Service)
	return token, nil
}

// InitiatePasswordFlow runs the resource owner password grant and
// stores the resulting token.
func (c *Coordinator) InitiatePasswordFlow(ctx context.Context, client *oauth.Client, username, password string, scopes []string, opts Options) (*oauth.Token, error) {
	user, err := c.owner(opts)
	if err != nil {
		return nil, err
	}

	token, result, err := exchange.ExchangePassword(ctx, client, username, password, scopes)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, fmt.Errorf("token endpoint for %s answered %s", client.Service, result.Status)
	}

	if err := c.persist(user, client.Service, token); err != nil {
		return nil, err
	}

	logging.Info("Flow", "password flow completed for user %s service %s", user, client.Service)
	return token, nil
}

// RefreshStored refreshes the stored token for (user, service) and
// persists the replacement. The new token keeps the old refresh token
// when the server does not rotate it.
func (c *Coordinator) RefreshStored(ctx context.Context, client *oauth.Client, opts Options) (*oauth.Token, error) {
	user, err := c.owner(opts)
	if err != nil {
		return nil, err
	}

	current, err := c.store.Get(user, client.Service)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("no stored token for user %s service %s", user, client.Service)
	}
	if current.RefreshToken == "" {
		return nil, fmt.Errorf("stored token for %s has no refresh token", client.Service)
	}

	token, result, err := exchange.Refresh(ctx, client, current.RefreshToken)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, fmt.Errorf("token endpoint for %s answered %s", client.Service, result.Status)
	}
	if token.RefreshToken == "" {
		token.RefreshToken = current.RefreshToken
	}

	if err := c.persist(user, client.Service, token); err != nil {
		return nil, err
	}

	logging.Info("Flow", "refreshed token for user %s service %s", user, client.Service)
	return token, nil
}

func (c *Coordinator) owner(opts Options) (string, error) {
	if opts.User != "" {
		return opts.User, nil
	}
	user, err := c.identity.CurrentUser()
	if err != nil {
		return "", err
	}
	return user, nil
}

func (c *Coordinator) persist(user, service string, token *oauth.Token) error {
	if err := c.store.Set(user, service, token); err != nil {
		return err
	}
	if err := c.store.Save(); err != nil {
		return fmt.Errorf("token obtained but not persisted: %w", err)
	}
	return nil
}
