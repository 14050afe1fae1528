package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"grantor/internal/exchange"
	"grantor/pkg/oauth"
)

var (
	introspectUser string
	introspectKind string
)

var introspectCmd = &cobra.Command{
	Use:   "introspect <service>",
	Short: "Query the server for the state of a stored token",
	Long: `Ask the authorization server whether the stored token for a service
is still active (RFC 7662) and print the server's answer.`,
	Args: cobra.ExactArgs(1),
	RunE: runIntrospect,
}

func init() {
	introspectCmd.Flags().StringVar(&introspectUser, "user", "", "Token owner (default: current OS user)")
	introspectCmd.Flags().StringVar(&introspectKind, "kind", "access", "Which token to introspect: access or refresh")
}

func runIntrospect(cmd *cobra.Command, args []string) error {
	service := args[0]

	kind, err := parseKind(introspectKind)
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

	user, err := env.tokenOwner(introspectUser)
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

	result, err := exchange.Introspect(cmd.Context(), client, kind, value)
	if err != nil {
		return err
	}
	if !result.IsSuccess() {
		return fmt.Errorf("introspection endpoint for %s answered %s", service, result.Status)
	}

	// Pretty-print the server's JSON document as-is.
	var doc map[string]interface{}
	if err := result.DecodeJSON(&doc); err != nil {
		return err
	}
	pretty, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}
