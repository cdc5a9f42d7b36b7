package draft

import (
	"context"
	"errors"
	"testing"

	"github.com/atinyakov/learnpath/internal/models"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockChatClient implements ChatClient for testing.
type mockChatClient struct {
	content string
	noReply bool
	err     error
	lastReq openai.ChatCompletionRequest
}

func (m *mockChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return openai.ChatCompletionResponse{}, m.err
	}
	if m.noReply {
		return openai.ChatCompletionResponse{}, nil
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: m.content}}},
	}, nil
}

const goDraft = `{"title":"Learn Go","description":"From zero","category":"Backend",
 "steps":[{"title":"Tour","description":"","resources":[
   {"title":"A Tour of Go","url":"https://go.dev/tour","kind":"article"},
   {"title":"talk","url":"https://youtu.be/x","kind":"VIDEO"},
   {"title":"no url","url":"","kind":"article"},
   {"title":"podcast","url":"https://example.com/p","kind":"podcast"}]},
  {"title":"Concurrency","description":"channels"}]}`

func TestNewOpenAIGenerator_RequiresKey(t *testing.T) {
	_, err := NewOpenAIGenerator("", "")
	assert.EqualError(t, err, "OpenAI API key is required")

	g, err := NewOpenAIGenerator("key", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, g.model)
}

func TestGenerateDraft_Success(t *testing.T) {
	client := &mockChatClient{content: goDraft}
	g := NewOpenAIGeneratorWithClient(client, "gpt-4o")

	d, err := g.GenerateDraft(context.Background(), "  golang ")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "Learn Go", d.Title)
	assert.Len(t, d.Steps, 2)

	assert.Equal(t, "gpt-4o", client.lastReq.Model)
	require.NotNil(t, client.lastReq.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, client.lastReq.ResponseFormat.Type)
	assert.Equal(t, "Topic: golang", client.lastReq.Messages[1].Content)
}

func TestGenerateDraft_NothingGenerated(t *testing.T) {
	for name, client := range map[string]*mockChatClient{
		"no choices": {noReply: true},
		"null":       {content: "null"},
		"empty":      {content: "  "},
		"no title":   {content: `{"title":"","steps":[]}`},
	} {
		t.Run(name, func(t *testing.T) {
			d, err := NewOpenAIGeneratorWithClient(client, "").GenerateDraft(context.Background(), "x")
			assert.NoError(t, err)
			assert.Nil(t, d)
		})
	}
}

func TestGenerateDraft_Failures(t *testing.T) {
	_, err := NewOpenAIGeneratorWithClient(&mockChatClient{err: errors.New("rate limited")}, "").GenerateDraft(context.Background(), "x")
	assert.ErrorContains(t, err, "rate limited")

	_, err = NewOpenAIGeneratorWithClient(&mockChatClient{content: "not json"}, "").GenerateDraft(context.Background(), "x")
	assert.ErrorContains(t, err, "decode response")

	_, err = NewOpenAIGeneratorWithClient(&mockChatClient{}, "").GenerateDraft(context.Background(), " ")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestPlanDraft_ToPlan(t *testing.T) {
	d, err := NewOpenAIGeneratorWithClient(&mockChatClient{content: goDraft}, "").GenerateDraft(context.Background(), "go")
	require.NoError(t, err)

	p := d.ToPlan()
	assert.Equal(t, "Learn Go", p.Title)
	assert.Equal(t, "Backend", p.Category)
	assert.Equal(t, models.VisibilityPrivate, p.Visibility)
	require.Len(t, p.Steps, 2)

	res := p.Steps[0].Resources
	require.Len(t, res, 3)
	assert.Equal(t, models.ResourceArticle, res[0].Kind)
	assert.Equal(t, models.ResourceVideo, res[1].Kind)
	assert.Equal(t, models.ResourceArticle, res[2].Kind)
	assert.Empty(t, p.Steps[1].Resources)

	assert.NoError(t, p.Validate())
}
