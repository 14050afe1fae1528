package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"grantor/internal/flow"
)

var refreshUser string

var refreshCmd = &cobra.Command{
	Use:   "refresh <service>",
	Short: "Refresh the stored token for a service",
	Long: `Refresh the stored token for a service using its refresh token.
The replacement token is stored in place of the old one.`,
	Args: cobra.ExactArgs(1),
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().StringVar(&refreshUser, "user", "", "Token owner (default: current OS user)")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	service := args[0]

	env, err := loadEnvironment()
	if err != nil {
		return err
	}

	client, err := env.registry.Lookup(cmd.Context(), service)
	if err != nil {
		return err
	}

	user, err := env.tokenOwner(refreshUser)
	if err != nil {
		return err
	}

	current, err := env.store.Get(user, service)
	if err != nil {
		return err
	}
	if current == nil {
		return &AuthRequiredError{Service: service}
	}

	coordinator := flow.New(nil, nil, env.store, env.identity)
	token, err := coordinator.RefreshStored(cmd.Context(), client, flow.Options{User: user})
	if err != nil {
		return &AuthFailedError{Service: service, Err: err}
	}

	fmt.Printf("✓ Refreshed token for %s", service)
	if !token.ExpiresAt.IsZero() {
		fmt.Printf(" (expires %s)", token.ExpiresAt.Format(time.RFC1123))
	}
	fmt.Println()
	return nil
}
