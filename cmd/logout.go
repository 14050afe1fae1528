package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutUser string

var logoutCmd = &cobra.Command{
	Use:   "logout <service>",
	Short: "Remove the stored token for a service",
	Long: `Remove the stored token for a service. The token is deleted locally;
use "grantor revoke" first to also invalidate it server-side.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogout,
}

func init() {
	logoutCmd.Flags().StringVar(&logoutUser, "user", "", "Token owner (default: current OS user)")
}

func runLogout(cmd *cobra.Command, args []string) error {
	service := args[0]

	env, err := loadEnvironment()
	if err != nil {
		return err
	}

	user, err := env.tokenOwner(logoutUser)
	if err != nil {
		return err
	}

	if !env.store.Delete(user, service) {
		return &AuthRequiredError{Service: service}
	}
	if err := env.store.Save(); err != nil {
		return err
	}

	fmt.Printf("✓ Logged out of %s\n", service)
	return nil
}
