package cmd

import "fmt"

// AuthRequiredError signals that a command needs a stored token that
// does not exist. Mapped to ExitCodeAuthRequired.
type AuthRequiredError struct {
	Service string
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("not logged in to %s, run: grantor login %s", e.Service, e.Service)
}

// AuthFailedError signals that an OAuth flow ran and failed. Mapped to
// ExitCodeAuthFailed.
type AuthFailedError struct {
	Service string
	Err     error
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf("authentication with %s failed: %v", e.Service, e.Err)
}

func (e *AuthFailedError) Unwrap() error {
	return e.Err
}
