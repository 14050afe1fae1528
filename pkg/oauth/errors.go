package oauth

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument indicates a caller-supplied argument was outside the
// accepted domain (state length bounds, unknown token kind, empty token).
// Callers match it with errors.Is.
var ErrInvalidArgument = errors.New("invalid argument")

// TransportError indicates the request never produced an HTTP response:
// dial failures, TLS handshake failures, write/read errors, malformed
// framing from the peer, or a browser that could not be launched.
type TransportError struct {
	// Op names the failed operation ("dial", "write", "read status line",
	// "launch browser").
	Op string

	// Err is the underlying cause.
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IntegrityError indicates stored ciphertext failed authentication during
// decryption. It is distinct from a malformed store file: an IntegrityError
// means the file parsed but the data was tampered with, encrypted under a
// different key, or bound to a different user identity.
type IntegrityError struct {
	Err error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed: %v", e.Err)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// ProtocolError indicates the authorization server responded, but the
// response violated the OAuth2 protocol (2xx token response missing
// required fields, undecodable JSON body).
type ProtocolError struct {
	// Reason describes the violation.
	Reason string

	// Err is the underlying cause, if any.
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
