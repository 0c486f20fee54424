package textgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/unclebandit/leadreach-backend/internal/model"
	"github.com/unclebandit/leadreach-backend/internal/observability"
)

const systemPrompt = `You are a polite trade sales assistant replying to a prospective
customer on their preferred messaging channel. Keep replies short, concrete and in the
language of the customer's last message. Never promise prices or delivery dates.`

// OpenAIGenerator implements Generator on the OpenAI chat completions API.
type OpenAIGenerator struct {
	client *openai.Client
	logger *observability.Logger
}

func NewOpenAIGenerator(apiKey string, logger *observability.Logger) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIGenerator{
		client: &client,
		logger: logger,
	}, nil
}

func (g *OpenAIGenerator) GenerateMessage(ctx context.Context, lead *model.Lead, history []model.Message, template string, ch model.Channel) (string, error) {
	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModelGPT4oMini,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildPrompt(lead, history, template, ch)),
		},
	})
	if err != nil {
		return translateResult("", err)
	}
	if len(completion.Choices) == 0 {
		return translateResult("", fmt.Errorf("no completion choices returned"))
	}
	return translateResult(completion.Choices[0].Message.Content, nil)
}

func buildPrompt(lead *model.Lead, history []model.Message, template string, ch model.Channel) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lead: %s %s, company %s, channel %s.\n", lead.FirstName, lead.LastName, lead.Company, ch)
	if template != "" {
		fmt.Fprintf(&b, "Campaign context: %s\n", template)
	}
	b.WriteString("Conversation so far:\n")
	for _, m := range history {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	b.WriteString("Write the next reply from the sales assistant.")
	return b.String()
}

var _ Generator = (*OpenAIGenerator)(nil)
