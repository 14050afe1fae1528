// Package identity resolves the operating system user the engine is
// running as. The token store binds its ciphertext to this identity, so
// a store file copied to another account fails decryption.
package identity

import (
	"fmt"
	"os/user"
)

// Provider supplies the current user identity. The default
// implementation asks the OS; tests substitute a fixed identity.
type Provider interface {
	// CurrentUser returns the login name of the current user.
	CurrentUser() (string, error)
}

// OSProvider resolves the identity through os/user.
type OSProvider struct{}

func (OSProvider) CurrentUser() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("failed to resolve current user: %w", err)
	}
	return u.Username, nil
}

// StaticProvider always returns the same name. Used in tests and when
// the owner is set explicitly by configuration.
type StaticProvider struct {
	Name string
}

func (p StaticProvider) CurrentUser() (string, error) {
	return p.Name, nil
}
