package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/atinyakov/learnpath/internal/client/cli/formatter"
	"github.com/atinyakov/learnpath/internal/client/pipeline"
	"github.com/atinyakov/learnpath/internal/client/storage"
	"github.com/atinyakov/learnpath/internal/models"
	"github.com/spf13/cobra"
)

func newTemplatesCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the built-in plan templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			headers := []string{"ID", "Title", "Category", "Steps"}
			rows := [][]string{}
			for _, t := range a.Engine.Templates.All() {
				rows = append(rows, []string{t.ID, t.Title, t.Category, strconv.Itoa(len(t.Steps))})
			}
			fmt.Fprint(cmd.OutOrStdout(), formatter.RenderTable(headers, rows))
			return nil
		},
	}
}

func newPlansCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List your plans with their progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.currentSession()
			if err != nil {
				return explain(err)
			}
			plans := a.Engine.Store.List(func(p *models.Plan) bool {
				return !p.IsTemplate && p.OwnerID == s.OwnerID
			})

			out := cmd.OutOrStdout()
			if len(plans) == 0 {
				fmt.Fprintln(out, "No plans yet. Create one with `learnpath create` or copy a template.")
				return nil
			}

			headers := []string{"ID", "Title", "Category", "Visibility", "Progress"}
			rows := make([][]string, 0, len(plans))
			for i := range plans {
				p := &plans[i]
				rows = append(rows, []string{p.ID, p.Title, p.Category, a.visibility(p), a.progressBar(p.ID, 10)})
			}
			fmt.Fprint(out, formatter.RenderTable(headers, rows))
			return nil
		},
	}
}

func newShowCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a plan or template with its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, ok := a.Engine.Store.Get(a.Engine.Pipeline.Canonical(args[0]))
			if !ok {
				return fmt.Errorf("plan %s: %w", args[0], models.ErrNotFound)
			}
			_, signedIn := a.Engine.Session.Current()
			a.renderPlan(cmd.OutOrStdout(), p, signedIn)
			return nil
		},
	}
}

func newCreateCmd(a *App) *cobra.Command {
	var (
		title, description, category string
		steps                        []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a plan",
		Long: `Create a plan from flags, or answer prompts when no --title is given.
Steps are written as "title|description|url"; description and url are optional.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var input *models.Plan
			if title == "" {
				if !a.interactive() {
					return errors.New("--title is required")
				}
				p, err := storage.PromptForPlan(a.scanner(cmd), cmd.OutOrStdout())
				if err != nil {
					return err
				}
				input = p
			} else {
				input = &models.Plan{Title: title, Description: description, Category: category, Steps: parseSteps(steps)}
			}

			created, err := a.Engine.Pipeline.CreatePlan(cmd.Context(), input)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created plan %s: %s\n", created.ID, created.Title)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "plan title")
	cmd.Flags().StringVar(&description, "description", "", "plan description")
	cmd.Flags().StringVar(&category, "category", "", "plan category")
	cmd.Flags().StringArrayVar(&steps, "step", nil, `step as "title|description|url" (repeatable)`)
	return cmd
}

func newEditCmd(a *App) *cobra.Command {
	var (
		title, description, category string
		steps, addSteps              []string
		clearSteps                   bool
	)

	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change a plan's fields or steps",
		Long: `Change the fields given as flags. --step replaces every step,
--add-step appends to the existing ones and --clear-steps removes them all.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var edit pipeline.Edit
			flags := cmd.Flags()
			if flags.Changed("title") {
				edit.Title = &title
			}
			if flags.Changed("description") {
				edit.Description = &description
			}
			if flags.Changed("category") {
				edit.Category = &category
			}

			switch {
			case clearSteps:
				edit.Steps = []models.Step{}
			case len(steps) > 0:
				edit.Steps = parseSteps(steps)
			case len(addSteps) > 0:
				p, ok := a.Engine.Store.Get(a.Engine.Pipeline.Canonical(args[0]))
				if !ok {
					return fmt.Errorf("plan %s: %w", args[0], models.ErrNotFound)
				}
				edit.Steps = append(p.Steps, parseSteps(addSteps)...)
			}

			updated, err := a.Engine.Pipeline.UpdatePlan(cmd.Context(), args[0], edit)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated plan %s\n", updated.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&category, "category", "", "new category")
	cmd.Flags().StringArrayVar(&steps, "step", nil, "replacement step (repeatable)")
	cmd.Flags().StringArrayVar(&addSteps, "add-step", nil, "step to append (repeatable)")
	cmd.Flags().BoolVar(&clearSteps, "clear-steps", false, "remove every step")
	cmd.MarkFlagsMutuallyExclusive("step", "add-step", "clear-steps")
	return cmd
}

func newDeleteCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a plan and its progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.Engine.Pipeline.DeletePlan(cmd.Context(), args[0]); err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted plan %s\n", args[0])
			return nil
		},
	}
}

func newCopyCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "copy TEMPLATE-ID",
		Short: "Start a personal plan from a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := a.Engine.Pipeline.CopyTemplate(cmd.Context(), args[0])
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created plan %s: %s\n", created.ID, created.Title)
			return nil
		},
	}
}

func newDraftCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "draft TOPIC...",
		Short: "Create a plan drafted by AI for a topic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := a.Engine.RequireGenerator()
			if err != nil {
				return err
			}
			created, err := a.Engine.Pipeline.CreateFromDraft(cmd.Context(), gen, strings.Join(args, " "))
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created plan %s: %s (%d steps)\n", created.ID, created.Title, len(created.Steps))
			return nil
		},
	}
}

func newCompleteCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "complete STEP-ID",
		Short: "Toggle a step between done and not done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.Engine.Pipeline.ToggleCompletion(cmd.Context(), args[0])
			if err != nil {
				return explain(err)
			}
			state := "not done"
			if rec.Completed {
				state = "done"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Step %s marked %s\n", rec.StepID, state)
			if p, ok := a.Engine.Store.FindStep(rec.StepID); ok {
				fmt.Fprintf(out, "%s %s\n", p.Title, a.progressBar(p.ID, barWidth))
			}
			return nil
		},
	}
}

func parseSteps(raw []string) []models.Step {
	steps := make([]models.Step, 0, len(raw))
	for _, s := range raw {
		steps = append(steps, storage.ParseStep(s))
	}
	return steps
}
