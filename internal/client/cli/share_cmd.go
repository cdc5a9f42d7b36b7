package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newShareCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "share ID",
		Short: "Make a plan public and print its share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.Engine.Pipeline.SetVisibility(cmd.Context(), args[0], true)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Plan %s is public\nShare link: %s%s\n", p.ID, p.ShareToken, expiry(p.ShareExpiry))
			return nil
		},
	}
}

func newUnshareCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "unshare ID",
		Short: "Make a plan private and revoke its share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.Engine.Pipeline.SetVisibility(cmd.Context(), args[0], false)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Plan %s is private\n", p.ID)
			return nil
		},
	}
}

func newResolveCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve TOKEN",
		Short: "Open a plan shared with you",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.Engine.Share.Resolve(cmd.Context(), args[0])
			if err != nil {
				return explain(fmt.Errorf("share link %s: %w", args[0], err))
			}
			a.renderPlan(cmd.OutOrStdout(), p, false)
			return nil
		},
	}
}
