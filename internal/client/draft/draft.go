// Package draft asks a language model for a plan outline on a topic.
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/atinyakov/learnpath/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = openai.GPT4oMini

const systemPrompt = `You design learning plans. Answer with a single JSON object:
{"title": string, "description": string, "category": string,
 "steps": [{"title": string, "description": string,
            "resources": [{"title": string, "url": string, "kind": "video" | "article"}]}]}
Use 3 to 8 ordered steps and only real, well-known resources.
Answer with null if the topic is not something a person can learn.`

// PlanDraft is a generated plan outline.
type PlanDraft struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Steps       []StepDraft `json:"steps"`
}

// StepDraft is one generated step.
type StepDraft struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Resources   []ResourceDraft `json:"resources"`
}

// ResourceDraft is one generated link.
type ResourceDraft struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Kind  string `json:"kind"`
}

// ToPlan converts the draft into plan input. Ids, owner and timestamps are
// left for the caller to assign. Resources without a url are dropped and
// unknown kinds become articles.
func (d *PlanDraft) ToPlan() *models.Plan {
	p := &models.Plan{
		Title:       strings.TrimSpace(d.Title),
		Description: strings.TrimSpace(d.Description),
		Category:    strings.TrimSpace(d.Category),
		Visibility:  models.VisibilityPrivate,
	}
	for _, s := range d.Steps {
		step := models.Step{Title: strings.TrimSpace(s.Title), Description: strings.TrimSpace(s.Description)}
		for _, r := range s.Resources {
			if strings.TrimSpace(r.URL) == "" {
				continue
			}
			kind := models.ResourceArticle
			if strings.EqualFold(r.Kind, string(models.ResourceVideo)) {
				kind = models.ResourceVideo
			}
			step.Resources = append(step.Resources, models.Resource{Title: r.Title, URL: strings.TrimSpace(r.URL), Kind: kind})
		}
		p.Steps = append(p.Steps, step)
	}
	return p
}

// Generator produces a draft for topic. A nil draft with a nil error means
// nothing was generated.
type Generator interface {
	GenerateDraft(ctx context.Context, topic string) (*PlanDraft, error)
}

// ChatClient abstracts the OpenAI client for testing.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIGenerator implements Generator with the chat completions API in JSON mode.
type OpenAIGenerator struct {
	client ChatClient
	model  string
}

// NewOpenAIGenerator creates a generator authenticated with apiKey.
func NewOpenAIGenerator(apiKey, model string) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	return NewOpenAIGeneratorWithClient(openai.NewClient(apiKey), model), nil
}

// NewOpenAIGeneratorWithClient creates a generator over a custom client.
func NewOpenAIGeneratorWithClient(client ChatClient, model string) *OpenAIGenerator {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIGenerator{client: client, model: model}
}

// GenerateDraft asks the model for a plan on topic. Failures are returned as
// is; the call is never retried.
func (g *OpenAIGenerator) GenerateDraft(ctx context.Context, topic string) (*PlanDraft, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, &models.ValidationError{Field: "topic", Reason: "must not be empty"}
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Topic: " + topic},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return nil, fmt.Errorf("generate draft: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" || content == "null" {
		return nil, nil
	}

	var d PlanDraft
	if err := json.Unmarshal([]byte(content), &d); err != nil {
		return nil, fmt.Errorf("generate draft: decode response: %w", err)
	}
	if strings.TrimSpace(d.Title) == "" {
		return nil, nil
	}
	return &d, nil
}
