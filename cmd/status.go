package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/samsaffron/oauth-codex/auth"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		s := styles()
		if !client.IsAuthenticated() {
			fmt.Println(s.Error.Render("Not logged in.") + " Run 'oauth-codex login'.")
			return nil
		}

		creds := client.Credentials()
		fmt.Println(s.Success.Render("Logged in."))
		if creds.AccountID != "" {
			fmt.Printf("  %s %s\n", s.Muted.Render("account:"), creds.AccountID)
		}
		token := creds.IDToken
		if token == "" {
			token = creds.AccessToken
		}
		if claims, err := auth.ParseClaims(token); err == nil {
			if claims.Email != "" {
				fmt.Printf("  %s %s\n", s.Muted.Render("email:  "), claims.Email)
			}
			if claims.PlanType != "" {
				fmt.Printf("  %s %s\n", s.Muted.Render("plan:   "), claims.PlanType)
			}
		}
		if !creds.ExpiresAt.IsZero() {
			state := "valid"
			if creds.IsExpired(0) {
				state = "expired"
			}
			fmt.Printf("  %s %s (%s)\n", s.Muted.Render("token:  "),
				creds.ExpiresAt.Local().Format(time.RFC822), state)
		}
		return nil
	},
}
