package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"grantor/internal/exchange"
	"grantor/pkg/oauth"
)

var (
	revokeUser string
	revokeKind string
	revokeKeep bool
)

var revokeCmd = &cobra.Command{
	Use:   "revoke <service>",
	Short: "Revoke the stored token for a service",
	Long: `Ask the authorization server to revoke the stored token for a
service (RFC 7009), then remove it locally. Use --keep to revoke
server-side but keep the local copy.`,
	Args: cobra.ExactArgs(1),
	RunE: runRevoke,
}

func init() {
	revokeCmd.Flags().StringVar(&revokeUser, "user", "", "Token owner (default: current OS user)")
	revokeCmd.Flags().StringVar(&revokeKind, "kind", "access", "Which token to revoke: access or refresh")
	revokeCmd.Flags().BoolVar(&revokeKeep, "keep", false, "Keep the local token after revocation")
}

func parseKind(s string) (oauth.TokenKind, error) {
	switch s {
	case "access":
		return oauth.TokenKindAccess, nil
	case "refresh":
		return oauth.TokenKindRefresh, nil
	default:
		return 0, fmt.Errorf("unknown token kind %q (access or refresh): %w", s, oauth.ErrInvalidArgument)
	}
}

func runRevoke(cmd *cobra.Command, args []string) error {
	service := args[0]

	kind, err := parseKind(revokeKind)
	if err != nil {
		return err
	}

	env, err := loadEnvironment()
	if err != nil {
		return err
	}

	client, err := env.registry.Lookup(cmd.Context(), service)
	if err != nil {
		return err
	}

	user, err := env.tokenOwner(revokeUser)
	if err != nil {
		return err
	}

	token, err := env.store.Get(user, service)
	if err != nil {
		return err
	}
	if token == nil {
		return &AuthRequiredError{Service: service}
	}

	value := token.AccessToken
	if kind == oauth.TokenKindRefresh {
		value = token.RefreshToken
	}
	if value == "" {
		return fmt.Errorf("no %s stored for %s", kind, service)
	}

	result, err := exchange.Revoke(cmd.Context(), client, kind, value)
	if err != nil {
		return err
	}
	if !result.IsSuccess() {
		return fmt.Errorf("revocation endpoint for %s answered %s", service, result.Status)
	}

	if !revokeKeep {
		env.store.Delete(user, service)
		if err := env.store.Save(); err != nil {
			return err
		}
	}

	fmt.Printf("✓ Revoked %s for %s\n", kind, service)
	return nil
}
