// Package cli implements the learnpath command line on top of the client
// engine.
package cli

import (
	"bufio"
	"errors"
	"fmt"

	"github.com/atinyakov/learnpath/internal/client/app"
	"github.com/atinyakov/learnpath/internal/client/pipeline"
	"github.com/atinyakov/learnpath/internal/client/session"
	"github.com/atinyakov/learnpath/internal/client/storage"
	"github.com/atinyakov/learnpath/internal/config"
	"github.com/atinyakov/learnpath/internal/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// skipRestore marks commands that manage the saved session themselves.
const skipRestore = "skip-restore"

// App holds what the commands need.
type App struct {
	Engine      *app.App
	Credentials *storage.LocalStorage
	Config      *config.Options
	Log         *zap.Logger
	// Interactive reports whether stdin can answer prompts.
	Interactive func() bool
	// Version is printed by --version.
	Version string

	restored bool
	lines    *bufio.Scanner
}

// NewRootCmd creates the top-level "learnpath" command and registers all
// subcommands against the provided App.
func NewRootCmd(a *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "learnpath",
		Short:         "Learning plans with steps, resources and progress",
		Version:       a.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !needsSession(cmd) {
				return nil
			}
			return a.restore(cmd)
		},
	}

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newGuestCmd(a),
		newWhoamiCmd(a),
		newTemplatesCmd(a),
		newPlansCmd(a),
		newShowCmd(a),
		newCreateCmd(a),
		newEditCmd(a),
		newDeleteCmd(a),
		newCopyCmd(a),
		newDraftCmd(a),
		newCompleteCmd(a),
		newShareCmd(a),
		newUnshareCmd(a),
		newResolveCmd(a),
		newUpgradeCmd(a),
		newShellCmd(a),
	)

	return root
}

// restore signs in from the configured token, then the saved credentials.
// Without either it loads the templates only.
func (a *App) restore(cmd *cobra.Command) error {
	if a.restored {
		return nil
	}
	cred := a.Credentials.Get()
	token := a.Config.Token
	if token == "" {
		token = cred.Token
	}

	var err error
	switch {
	case token != "":
		err = a.Engine.SignIn(token)
	case cred.Guest:
		err = a.Engine.SignInGuest()
	default:
		err = a.Engine.Reload(cmd.Context())
	}
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	a.restored = true
	return nil
}

// needsSession is false for commands that manage the session themselves and
// for cobra's help and completion commands.
func needsSession(cmd *cobra.Command) bool {
	if cmd.Annotations[skipRestore] != "" || cmd.Name() == "help" {
		return false
	}
	return !cmd.HasParent() || cmd.Parent().Name() != "completion"
}

// scanner returns the line reader prompts read from. Inside the shell it is
// the shell's own reader.
func (a *App) scanner(cmd *cobra.Command) *bufio.Scanner {
	if a.lines != nil {
		return a.lines
	}
	return bufio.NewScanner(cmd.InOrStdin())
}

func (a *App) interactive() bool {
	if a.lines != nil {
		return true
	}
	return a.Interactive != nil && a.Interactive()
}

// currentSession returns the active session or ErrNotAuthenticated.
func (a *App) currentSession() (session.Session, error) {
	s, ok := a.Engine.Session.Current()
	if !ok {
		return session.Session{}, models.ErrNotAuthenticated
	}
	return s, nil
}

// explain adds a hint on how to recover from the errors users hit most.
func explain(err error) error {
	var quotaErr *models.QuotaExceededError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &quotaErr):
		return fmt.Errorf("%w (delete a plan or run `learnpath upgrade --order <receipt>`)", err)
	case errors.Is(err, models.ErrNotAuthenticated):
		return fmt.Errorf("%w: run `learnpath login --token <token>` or `learnpath guest`", err)
	case errors.Is(err, models.ErrLookupTimeout):
		return fmt.Errorf("%w: the server did not answer in time, try again", err)
	case errors.Is(err, pipeline.ErrEmptyDraft):
		return fmt.Errorf("%w: try a more specific topic", err)
	}
	return err
}
