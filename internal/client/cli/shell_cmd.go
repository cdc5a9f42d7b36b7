package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/atinyakov/learnpath/internal/client/storage"
	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shellPrompt = "learnpath> "

func newShellCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run commands interactively while plans refresh in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			log := a.Log
			if log == nil {
				log = zap.NewNop()
			}
			if interval := a.Config.RefreshInterval.Duration; interval > 0 {
				storage.StartAutoRefresh(ctx, a.Engine.Store, a.Engine.Owner, interval, log)
			}

			a.lines = bufio.NewScanner(cmd.InOrStdin())
			defer func() { a.lines = nil }()

			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
			fmt.Fprintln(out, "Type help for commands, exit to quit.")
			for {
				fmt.Fprint(out, shellPrompt)
				if !a.lines.Scan() {
					fmt.Fprintln(out)
					return a.lines.Err()
				}
				line := strings.TrimSpace(a.lines.Text())
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					fmt.Fprintln(out, "Bye")
					return nil
				}

				words, err := shellquote.Split(line)
				if err != nil {
					fmt.Fprintln(errOut, "Error:", err)
					continue
				}
				if words[0] == "shell" {
					fmt.Fprintln(errOut, "Error: already in the shell")
					continue
				}

				sub := NewRootCmd(a)
				sub.SetArgs(words)
				sub.SetIn(cmd.InOrStdin())
				sub.SetOut(out)
				sub.SetErr(errOut)
				if err := sub.ExecuteContext(ctx); err != nil {
					fmt.Fprintln(errOut, "Error:", err)
				}
			}
		},
	}
}
