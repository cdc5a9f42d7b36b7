package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/atinyakov/learnpath/internal/models"
)

// PromptForPlan asks for a plan on out and reads the answers from scanner.
// Steps are entered one per line as "title|description|url" until an empty
// line; description and url are optional.
func PromptForPlan(scanner *bufio.Scanner, out io.Writer) (*models.Plan, error) {
	ask := func(q string) (string, bool) {
		fmt.Fprint(out, q)
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	title, ok := ask("Enter title: ")
	if !ok {
		return nil, errors.New("no input")
	}
	description, _ := ask("Enter description: ")
	category, _ := ask("Enter category (optional): ")

	p := &models.Plan{Title: title, Description: description, Category: category}
	fmt.Fprintln(out, "Enter steps as title|description|url, empty line to finish:")
	for {
		line, ok := ask("> ")
		if !ok || line == "" {
			break
		}
		p.Steps = append(p.Steps, ParseStep(line))
	}
	return p, scanner.Err()
}

// ParseStep reads "title|description|url". A url becomes an article resource,
// or a video when it points at a known video host.
func ParseStep(s string) models.Step {
	parts := strings.SplitN(s, "|", 3)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	step := models.Step{Title: parts[0]}
	if len(parts) > 1 {
		step.Description = parts[1]
	}
	if len(parts) > 2 && parts[2] != "" {
		kind := models.ResourceArticle
		if strings.Contains(parts[2], "youtube.com") || strings.Contains(parts[2], "youtu.be") || strings.Contains(parts[2], "vimeo.com") {
			kind = models.ResourceVideo
		}
		step.Resources = []models.Resource{{Title: step.Title, URL: parts[2], Kind: kind}}
	}
	return step
}
