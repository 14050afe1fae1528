package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// DefaultStateBytes is the number of random bytes behind a default
	// state parameter.
	DefaultStateBytes = 16

	// verifierBytes is the number of random bytes behind a generated PKCE
	// code verifier. 48 bytes encode to 64 base64url characters, inside
	// the 43-128 range RFC 7636 requires.
	verifierBytes = 48
)

// GenerateState generates a random state parameter for CSRF protection.
// numBytes is the entropy in bytes; the returned string is its hex
// encoding, twice as long. numBytes must be greater than 8 and less than
// 128, otherwise ErrInvalidArgument is returned. Pass DefaultStateBytes
// for the standard size.
func GenerateState(numBytes int) (string, error) {
	if numBytes <= 8 || numBytes >= 128 {
		return "", fmt.Errorf("state size %d out of range (8, 128): %w", numBytes, ErrInvalidArgument)
	}

	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewPKCEChallenge builds a PKCE challenge from the given code verifier.
// If verifier is empty a fresh one is generated from crypto/rand. A
// caller-supplied verifier is used verbatim; it is the caller's job to
// meet the RFC 7636 character and length rules.
//
// The challenge is always the S256 transform. The plain transform is not
// supported.
func NewPKCEChallenge(verifier string) (*PKCEChallenge, error) {
	if verifier == "" {
		b := make([]byte, verifierBytes)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("failed to generate code verifier: %w", err)
		}
		verifier = base64.RawURLEncoding.EncodeToString(b)
	}

	sum := sha256.Sum256([]byte(verifier))
	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       base64.RawURLEncoding.EncodeToString(sum[:]),
		CodeChallengeMethod: "S256",
	}, nil
}
