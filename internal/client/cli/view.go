package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/atinyakov/learnpath/internal/client/cli/formatter"
	"github.com/atinyakov/learnpath/internal/client/progress"
	"github.com/atinyakov/learnpath/internal/models"
)

const barWidth = 20

func (a *App) progressBar(planID string, width int) string {
	pct := a.Engine.Progress.Progress(planID)
	return formatter.RenderProgress(pct, progress.Percent(pct), width)
}

func (a *App) visibility(p *models.Plan) string {
	if !p.IsPublic() {
		return string(models.VisibilityPrivate)
	}
	if !a.Engine.Share.IsAccessible(p) {
		return "public (link expired)"
	}
	return string(models.VisibilityPublic)
}

// renderPlan prints the plan with its steps and resources. withProgress adds
// the completion marks of the signed-in owner.
func (a *App) renderPlan(w io.Writer, p *models.Plan, withProgress bool) {
	kind := "plan"
	if p.IsTemplate {
		kind = "template"
	}
	fmt.Fprintf(w, "%s  %s\n", formatter.Header(p.Title), formatter.Dim("("+p.ID+", "+kind+")"))
	if p.Description != "" {
		fmt.Fprintln(w, p.Description)
	}
	if p.Category != "" {
		fmt.Fprintf(w, "  Category:   %s\n", p.Category)
	}
	fmt.Fprintf(w, "  Visibility: %s\n", a.visibility(p))
	if p.IsPublic() && p.ShareToken != "" {
		fmt.Fprintf(w, "  Share link: %s%s\n", p.ShareToken, expiry(p.ShareExpiry))
	}
	if withProgress {
		fmt.Fprintf(w, "  Progress:   %s\n", a.progressBar(p.ID, barWidth))
	}
	fmt.Fprintln(w)

	for _, s := range p.Steps {
		mark := ""
		if withProgress {
			mark = "[ ] "
			if rec, ok := a.Engine.Store.Completion(s.ID); ok && rec.Completed {
				mark = formatter.StyleGreen.Render("[x]") + " "
			}
		}
		fmt.Fprintf(w, "%3s. %s%s  %s\n", strconv.Itoa(s.Order), mark, s.Title, formatter.Dim(s.ID))
		if s.Description != "" {
			fmt.Fprintf(w, "       %s\n", s.Description)
		}
		for _, r := range s.Resources {
			fmt.Fprintf(w, "       - %s: %s %s\n", r.Kind, r.Title, formatter.StyleBlue.Render(r.URL))
		}
	}
}

func expiry(t *time.Time) string {
	if t == nil {
		return ""
	}
	return " (expires " + t.Local().Format(time.RFC3339) + ")"
}
