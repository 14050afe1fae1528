// Package authorize drives the interactive half of the authorization
// code grant: it builds the authorization URL, opens the user's
// browser, and waits for the redirect carrying the authorization code.
//
// The orchestrator talks to two collaborators through small interfaces,
// RedirectListener and BrowserLauncher, so tests can run the whole flow
// without a browser or a real port.
package authorize

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"grantor/pkg/logging"
	"grantor/pkg/oauth"
)

// DefaultRedirectTimeout bounds how long the orchestrator waits for the
// user to finish authorizing in the browser.
const DefaultRedirectTimeout = 10 * time.Minute

// FlowState tracks where an authorization request is in its lifecycle.
type FlowState int

const (
	// StateIdle means no request has been made yet.
	StateIdle FlowState = iota

	// StateRequested means the authorization URL has been built.
	StateRequested

	// StateAwaitingRedirect means the browser is open and the
	// orchestrator is waiting for the redirect.
	StateAwaitingRedirect

	// StateCompleted means an authorization code was obtained.
	StateCompleted

	// StateFailed means the flow ended without a code.
	StateFailed
)

func (s FlowState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequested:
		return "requested"
	case StateAwaitingRedirect:
		return "awaiting_redirect"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Request describes one authorization code request.
type Request struct {
	// Client supplies the authorization endpoint and client id.
	Client *oauth.Client

	// Scopes to request, joined with spaces.
	Scopes []string

	// State is the CSRF state parameter. Required.
	State string

	// Challenge is the PKCE challenge to bind the request with.
	// Optional; nil sends no challenge.
	Challenge *oauth.PKCEChallenge

	// Audience is an optional audience parameter.
	Audience string

	// Timeout bounds the redirect wait. Zero means
	// DefaultRedirectTimeout.
	Timeout time.Duration
}

// Orchestrator runs authorization code requests against its
// collaborators.
type Orchestrator struct {
	listener RedirectListener
	launcher BrowserLauncher

	mu    sync.Mutex
	state FlowState
}

// New creates an Orchestrator.
func New(listener RedirectListener, launcher BrowserLauncher) *Orchestrator {
	return &Orchestrator{
		listener: listener,
		launcher: launcher,
		state:    StateIdle,
	}
}

// State returns the current flow state.
func (o *Orchestrator) State() FlowState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s FlowState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// RequestCode runs one authorization request end to end and returns the
// authorization code. On any failure the orchestrator lands in
// StateFailed and no partial state leaks to the caller.
func (o *Orchestrator) RequestCode(ctx context.Context, req *Request) (string, error) {
	if req == nil || req.Client == nil {
		return "", fmt.Errorf("nil request: %w", oauth.ErrInvalidArgument)
	}
	if req.State == "" {
		return "", fmt.Errorf("empty state parameter: %w", oauth.ErrInvalidArgument)
	}
	if req.Client.AuthURL == "" {
		return "", fmt.Errorf("client %s has no authorization endpoint: %w", req.Client.Service, oauth.ErrInvalidArgument)
	}

	requestID := uuid.NewString()
	o.setState(StateRequested)

	authURL, err := BuildAuthorizationURL(req, o.listener.RedirectURI())
	if err != nil {
		o.setState(StateFailed)
		return "", err
	}

	if err := o.listener.RegisterPendingState(req.State); err != nil {
		o.setState(StateFailed)
		return "", fmt.Errorf("failed to register pending state: %w", err)
	}

	logging.Info("Authorize", "request %s: opening browser for service %s", requestID, req.Client.Service)
	if diagnostic, err := o.launcher.Open(authURL); err != nil {
		o.setState(StateFailed)
		if diagnostic != "" {
			err = fmt.Errorf("%w: %s", err, diagnostic)
		}
		return "", &oauth.TransportError{Op: "launch browser", Err: err}
	}

	o.setState(StateAwaitingRedirect)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultRedirectTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := o.listener.AwaitResult(waitCtx, req.State)
	if err != nil {
		o.setState(StateFailed)
		return "", fmt.Errorf("authorization redirect did not arrive: %w", err)
	}

	if result.State != req.State {
		o.setState(StateFailed)
		return "", fmt.Errorf("state parameter mismatch, possible CSRF attack")
	}
	if result.IsError() {
		o.setState(StateFailed)
		logging.Warn("Authorize", "request %s denied: %s", requestID, result.Error)
		return "", &oauth.ProtocolError{Reason: fmt.Sprintf("authorization denied: %s: %s", result.Error, result.ErrorDescription)}
	}
	if result.Code == "" {
		o.setState(StateFailed)
		return "", &oauth.ProtocolError{Reason: "redirect carried neither code nor error"}
	}

	o.setState(StateCompleted)
	logging.Info("Authorize", "request %s completed for service %s", requestID, req.Client.Service)
	return result.Code, nil
}

// BuildAuthorizationURL assembles the authorization endpoint URL for a
// request.
func BuildAuthorizationURL(req *Request, redirectURI string) (string, error) {
	u, err := url.Parse(req.Client.AuthURL)
	if err != nil {
		return "", fmt.Errorf("malformed authorization endpoint: %w", err)
	}

	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", req.Client.ID)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", req.State)
	if len(req.Scopes) > 0 {
		q.Set("scope", strings.Join(req.Scopes, " "))
	}
	if req.Audience != "" {
		q.Set("audience", req.Audience)
	}
	if req.Challenge != nil {
		q.Set("code_challenge", req.Challenge.CodeChallenge)
		q.Set("code_challenge_method", req.Challenge.CodeChallengeMethod)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
