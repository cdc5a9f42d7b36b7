package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newLoginCmd(a *App) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:         "login",
		Short:       "Sign in with a bearer token",
		Annotations: map[string]string{skipRestore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = a.Config.Token
			}
			if token == "" {
				return errors.New("--token is required")
			}
			if err := a.Engine.SignIn(token); err != nil {
				return err
			}
			a.restored = true

			a.Credentials.SetToken(token)
			if err := a.Credentials.Save(); err != nil {
				return err
			}

			s, _ := a.Engine.Session.Current()
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", s.OwnerID, s.Tier)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "bearer token issued by the server")
	return cmd
}

func newLogoutCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:         "logout",
		Short:       "Sign out and forget the saved session",
		Annotations: map[string]string{skipRestore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.Engine.Session.SignOut()
			a.restored = true

			a.Credentials.Clear()
			if err := a.Credentials.Save(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newGuestCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:         "guest",
		Short:       "Browse templates without an account",
		Annotations: map[string]string{skipRestore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.Engine.SignInGuest(); err != nil {
				return err
			}
			a.restored = true

			a.Credentials.SetGuest()
			if err := a.Credentials.Save(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Browsing as guest; plans you create stay on this device")
			return nil
		},
	}
}

func newUpgradeCmd(a *App) *cobra.Command {
	var order string

	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade to PRO with a payment receipt",
		RunE: func(cmd *cobra.Command, args []string) error {
			if order == "" {
				return errors.New("--order is required")
			}
			if _, err := a.currentSession(); err != nil {
				return explain(err)
			}
			s, err := a.Engine.Upgrade(cmd.Context(), order)
			if err != nil {
				return explain(err)
			}

			if s.Token != "" && !s.Guest {
				a.Credentials.SetToken(s.Token)
				if err := a.Credentials.Save(); err != nil {
					return err
				}
			}
			limit := a.Config.QuotaPolicy().Limit(s.Tier)
			fmt.Fprintf(cmd.OutOrStdout(), "Upgraded %s to %s (up to %d plans)\n", s.OwnerID, s.Tier, limit)
			return nil
		},
	}

	cmd.Flags().StringVar(&order, "order", "", "payment receipt of the PRO order")
	return cmd
}

func newWhoamiCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			s, ok := a.Engine.Session.Current()
			switch {
			case !ok:
				fmt.Fprintln(out, "Not signed in")
			case s.Guest:
				fmt.Fprintln(out, "guest")
			default:
				limit := a.Config.QuotaPolicy().Limit(s.Tier)
				owned := a.Engine.Store.OwnedCount(s.OwnerID)
				fmt.Fprintf(out, "%s (%s, %d of %d plans)\n", s.OwnerID, s.Tier, owned, limit)
			}
			return nil
		},
	}
}
