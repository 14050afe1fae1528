package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"grantor/internal/authorize"
	"grantor/internal/flow"
)

var (
	loginScopes   []string
	loginUser     string
	loginAudience string
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login <service>",
	Short: "Log in to a service and store the token",
	Long: `Log in to a registered service. By default the browser-based
authorization code flow with PKCE is used; the command opens your
browser and waits for you to approve the request.

With --username and --password the resource owner password grant is
used instead and no browser is involved.

Examples:
  grantor login github --scope repo --scope read:org
  grantor login internal-api --username alice --password-stdin`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringSliceVar(&loginScopes, "scope", nil, "Scope to request (repeatable)")
	loginCmd.Flags().StringVar(&loginUser, "user", "", "Token owner (default: current OS user)")
	loginCmd.Flags().StringVar(&loginAudience, "audience", "", "Audience parameter for the authorization request")
	loginCmd.Flags().StringVar(&loginUsername, "username", "", "Use the password grant with this username")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Password for the password grant")
}

func runLogin(cmd *cobra.Command, args []string) error {
	service := args[0]

	env, err := loadEnvironment()
	if err != nil {
		return err
	}

	client, err := env.registry.Lookup(cmd.Context(), service)
	if err != nil {
		return err
	}

	opts := flow.Options{
		User:     loginUser,
		Audience: loginAudience,
		Timeout:  env.cfg.RedirectTimeout.Std(),
	}

	if loginUsername != "" {
		coordinator := flow.New(nil, nil, env.store, env.identity)
		token, err := coordinator.InitiatePasswordFlow(cmd.Context(), client, loginUsername, loginPassword, loginScopes, opts)
		if err != nil {
			return &AuthFailedError{Service: service, Err: err}
		}
		fmt.Printf("✓ Logged in to %s (token type %s)\n", service, token.TokenType)
		return nil
	}

	// Browser flow. The callback server lives for the duration of this
	// command only.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	callback := authorize.NewCallbackServer(env.cfg.CallbackPort)
	if err := callback.Start(ctx); err != nil {
		return err
	}
	defer callback.Stop()

	fmt.Println("Opening your browser to complete authorization.")
	fmt.Println("If the browser does not open, check the terminal running grantor for errors.")

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Waiting for browser authorization..."
	s.Start()

	coordinator := flow.New(callback, authorize.SystemBrowser{}, env.store, env.identity)
	token, err := coordinator.InitiateCodeFlow(ctx, client, loginScopes, opts)
	s.Stop()
	if err != nil {
		return &AuthFailedError{Service: service, Err: err}
	}

	fmt.Printf("✓ Logged in to %s", service)
	if !token.ExpiresAt.IsZero() {
		fmt.Printf(" (expires %s)", token.ExpiresAt.Format(time.RFC1123))
	}
	fmt.Println()
	return nil
}
