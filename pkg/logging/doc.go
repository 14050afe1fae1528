// Package logging provides leveled, structured logging for grantor.
//
// It is a thin wrapper around log/slog that tags every entry with the
// subsystem that produced it, so that log output from the wire layer,
// the token store, and the flow coordinator can be filtered apart.
//
// Usage:
//
//	logging.Init(logging.LevelInfo, os.Stderr)
//	logging.Info("TokenStore", "loaded %d entries", n)
//
// Secret material (access tokens, refresh tokens, client secrets, PKCE
// verifiers) must never be passed to this package. Callers log user
// names, service names, and endpoint URLs only.
package logging
