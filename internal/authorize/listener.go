package authorize

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"grantor/pkg/logging"
)

// DefaultCallbackPort is the default port for the local redirect
// listener. Port 0 asks the OS for a free port.
const DefaultCallbackPort = 3000

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

// Result carries the query parameters of one authorization redirect.
type Result struct {
	// Code is the authorization code, empty on error redirects.
	Code string

	// State echoes the state parameter of the authorization request.
	State string

	// Error is the OAuth2 error code if the server denied the request.
	Error string

	// ErrorDescription is the server's human-readable explanation.
	ErrorDescription string
}

// IsError reports whether the redirect carried an error response.
func (r *Result) IsError() bool {
	return r.Error != ""
}

// RedirectListener receives authorization redirects. The orchestrator
// registers the state parameter before opening the browser, then awaits
// the matching redirect. Implementations deliver at most one result per
// registered state.
type RedirectListener interface {
	// RegisterPendingState announces that a redirect carrying the given
	// state parameter is expected. Registering the same state twice is
	// an error.
	RegisterPendingState(state string) error

	// AwaitResult blocks until the redirect for state arrives or the
	// context ends.
	AwaitResult(ctx context.Context, state string) (*Result, error)

	// RedirectURI is the URI the authorization server should redirect
	// to. Valid after the listener has started.
	RedirectURI() string
}

// CallbackServer is a loopback HTTP server implementing
// RedirectListener. It serves a small HTML page to the browser and
// hands the redirect parameters to the waiting flow. Each registered
// state is consumed exactly once; replayed redirects are rejected.
type CallbackServer struct {
	port      int
	server    *http.Server
	listener  net.Listener
	serverURL string

	mu      sync.Mutex
	pending map[string]chan *Result
}

var _ RedirectListener = (*CallbackServer)(nil)

// NewCallbackServer creates a callback server on the given port. Port 0
// binds an ephemeral port.
func NewCallbackServer(port int) *CallbackServer {
	return &CallbackServer{
		port:    port,
		pending: make(map[string]chan *Result),
	}
}

// Start binds the listener and begins serving. The server stops when
// the context is cancelled or Stop is called.
func (s *CallbackServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.serverURL = fmt.Sprintf("http://localhost:%d", s.port)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleCallback)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logging.Error("Callback", err, "callback server stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	logging.Debug("Callback", "listening on %s", s.serverURL)
	return nil
}

// Stop gracefully shuts down the server.
func (s *CallbackServer) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// RedirectURI implements RedirectListener.
func (s *CallbackServer) RedirectURI() string {
	return s.serverURL + "/callback"
}

// Port returns the bound port, valid after Start.
func (s *CallbackServer) Port() int {
	return s.port
}

// RegisterPendingState implements RedirectListener.
func (s *CallbackServer) RegisterPendingState(state string) error {
	if state == "" {
		return fmt.Errorf("empty state parameter")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pending[state]; exists {
		return fmt.Errorf("state already registered")
	}
	s.pending[state] = make(chan *Result, 1)
	return nil
}

// AwaitResult implements RedirectListener.
func (s *CallbackServer) AwaitResult(ctx context.Context, state string) (*Result, error) {
	s.mu.Lock()
	ch, ok := s.pending[state]
	s.mu.Unlock()
	if !ok || ch == nil {
		return nil, fmt.Errorf("state was never registered")
	}

	select {
	case result := <-ch:
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	query := r.URL.Query()
	result := &Result{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	s.mu.Lock()
	ch, registered := s.pending[result.State]
	if registered && ch != nil {
		// Mark consumed; a nil channel means the state was already used.
		s.pending[result.State] = nil
	}
	s.mu.Unlock()

	if !registered || ch == nil {
		http.Error(w, "Unknown or already processed callback", http.StatusBadRequest)
		return
	}

	renderCallbackPage(w, result)
	ch <- result
}

func renderCallbackPage(w http.ResponseWriter, result *Result) {
	var tmpl *template.Template
	var data interface{}

	if result.IsError() {
		tmpl = template.Must(template.New("error").Parse(callbackErrorHTML))
		data = map[string]string{
			"Error":       result.Error,
			"Description": result.ErrorDescription,
		}
	} else {
		tmpl = template.Must(template.New("success").Parse(callbackSuccessHTML))
		data = map[string]string{}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
