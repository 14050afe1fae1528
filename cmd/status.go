package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var statusUser string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored tokens and their expiry",
	Long: `Show the stored tokens for a user: which services have tokens, their
type, scopes, and when they expire. Token values are never printed.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusUser, "user", "", "Token owner (default: current OS user)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}

	user, err := env.tokenOwner(statusUser)
	if err != nil {
		return err
	}

	services := env.store.GetApplications(user)
	if len(services) == 0 {
		fmt.Printf("No stored tokens for %s\n", user)
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Service", "Type", "Scopes", "Refresh", "Expires"})

	for _, service := range services {
		token, err := env.store.Get(user, service)
		if err != nil {
			t.AppendRow(table.Row{service, text.FgRed.Sprint("unreadable"), "", "", ""})
			continue
		}

		expires := "never"
		if !token.ExpiresAt.IsZero() {
			if token.IsExpired() {
				expires = text.FgRed.Sprint("expired")
			} else {
				expires = text.FgGreen.Sprint(token.ExpiresAt.Format(time.RFC1123))
			}
		}

		refresh := "no"
		if token.RefreshToken != "" {
			refresh = "yes"
		}

		t.AppendRow(table.Row{service, token.TokenType, token.ScopeString(), refresh, expires})
	}

	fmt.Printf("Stored tokens for %s:\n", user)
	t.Render()
	return nil
}
