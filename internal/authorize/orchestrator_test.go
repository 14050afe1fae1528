package authorize

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grantor/pkg/oauth"
)

// fakeListener is a RedirectListener that delivers a scripted result.
type fakeListener struct {
	registered []string
	result     *Result
	err        error
}

func (f *fakeListener) RegisterPendingState(state string) error {
	f.registered = append(f.registered, state)
	return nil
}

func (f *fakeListener) AwaitResult(ctx context.Context, state string) (*Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.result, nil
}

func (f *fakeListener) RedirectURI() string {
	return "http://localhost:9999/callback"
}

// fakeBrowser records the opened URL.
type fakeBrowser struct {
	opened     string
	diagnostic string
	err        error
}

func (f *fakeBrowser) Open(url string) (string, error) {
	f.opened = url
	return f.diagnostic, f.err
}

func testRequest(state string) *Request {
	return &Request{
		Client: &oauth.Client{
			Service: "testsvc",
			ID:      "client-1",
			AuthURL: "https://as.example.com/authorize",
		},
		Scopes: []string{"read", "write"},
		State:  state,
	}
}

func TestRequestCodeSuccess(t *testing.T) {
	listener := &fakeListener{result: &Result{Code: "CODE1", State: "st"}}
	browser := &fakeBrowser{}
	o := New(listener, browser)

	code, err := o.RequestCode(context.Background(), testRequest("st"))
	require.NoError(t, err)
	assert.Equal(t, "CODE1", code)
	assert.Equal(t, StateCompleted, o.State())
	assert.Equal(t, []string{"st"}, listener.registered)

	u, err := url.Parse(browser.opened)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "http://localhost:9999/callback", q.Get("redirect_uri"))
	assert.Equal(t, "read write", q.Get("scope"))
	assert.Equal(t, "st", q.Get("state"))
}

func TestRequestCodeWithPKCEAndAudience(t *testing.T) {
	listener := &fakeListener{result: &Result{Code: "CODE1", State: "st"}}
	browser := &fakeBrowser{}
	o := New(listener, browser)

	challenge, err := oauth.NewPKCEChallenge("")
	require.NoError(t, err)

	req := testRequest("st")
	req.Challenge = challenge
	req.Audience = "https://api.example.com"

	_, err = o.RequestCode(context.Background(), req)
	require.NoError(t, err)

	u, _ := url.Parse(browser.opened)
	q := u.Query()
	assert.Equal(t, challenge.CodeChallenge, q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "https://api.example.com", q.Get("audience"))
}

func TestRequestCodeBrowserFailureIsFatal(t *testing.T) {
	listener := &fakeListener{result: &Result{Code: "CODE1", State: "st"}}
	browser := &fakeBrowser{diagnostic: "no display", err: fmt.Errorf("exec failed")}
	o := New(listener, browser)

	_, err := o.RequestCode(context.Background(), testRequest("st"))
	require.Error(t, err)
	assert.Equal(t, StateFailed, o.State())

	var te *oauth.TransportError
	require.True(t, errors.As(err, &te))
	assert.Contains(t, err.Error(), "no display")
}

func TestRequestCodeStateMismatch(t *testing.T) {
	listener := &fakeListener{result: &Result{Code: "CODE1", State: "other"}}
	o := New(listener, &fakeBrowser{})

	_, err := o.RequestCode(context.Background(), testRequest("st"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CSRF")
	assert.Equal(t, StateFailed, o.State())
}

func TestRequestCodeServerDenied(t *testing.T) {
	listener := &fakeListener{result: &Result{State: "st", Error: "access_denied", ErrorDescription: "user said no"}}
	o := New(listener, &fakeBrowser{})

	_, err := o.RequestCode(context.Background(), testRequest("st"))
	var pe *oauth.ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, StateFailed, o.State())
}

func TestRequestCodeTimeout(t *testing.T) {
	listener := &fakeListener{} // never delivers
	o := New(listener, &fakeBrowser{})

	req := testRequest("st")
	req.Timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := o.RequestCode(context.Background(), req)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, StateFailed, o.State())
}

func TestRequestCodeValidation(t *testing.T) {
	o := New(&fakeListener{}, &fakeBrowser{})

	_, err := o.RequestCode(context.Background(), nil)
	assert.True(t, errors.Is(err, oauth.ErrInvalidArgument))

	_, err = o.RequestCode(context.Background(), testRequest(""))
	assert.True(t, errors.Is(err, oauth.ErrInvalidArgument))

	req := testRequest("st")
	req.Client.AuthURL = ""
	_, err = o.RequestCode(context.Background(), req)
	assert.True(t, errors.Is(err, oauth.ErrInvalidArgument))
}

func TestFlowStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "awaiting_redirect", StateAwaitingRedirect.String())
	assert.Equal(t, "completed", StateCompleted.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", FlowState(42).String())
}
