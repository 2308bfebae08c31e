package memory

import (
	"context"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"

	contractx "github.com/velaline/booking-agent/agent/contract"
)

const summarizerSystemPrompt = `You compress chat transcript fragments from a
beauty-studio booking assistant into a short running summary. Keep customer
preferences, agreed services, dates, and unresolved questions. Drop
pleasantries. Reply with the updated summary only, at most four sentences.`

// Summarizer folds transcript lines that fell out of the bounded history
// window into the session's running summary, so old context survives
// pruning without growing the prompt.
type Summarizer struct {
	client *openaisdk.Client
	model  string
}

var _ contractx.Summarizer = (*Summarizer)(nil)

func NewSummarizer(client *openaisdk.Client, model string) (*Summarizer, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: openai client is required", contractx.ErrValidation)
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, fmt.Errorf("%w: summarizer model is required", contractx.ErrValidation)
	}
	return &Summarizer{client: client, model: model}, nil
}

func (s *Summarizer) Summarize(ctx context.Context, previousSummary string, pruned []string) (string, error) {
	if len(pruned) == 0 {
		return previousSummary, nil
	}

	var input strings.Builder
	if previousSummary != "" {
		input.WriteString("Current summary:\n")
		input.WriteString(previousSummary)
		input.WriteString("\n\n")
	}
	input.WriteString("New transcript fragment:\n")
	input.WriteString(strings.Join(pruned, "\n"))

	completion, err := s.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(s.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(summarizerSystemPrompt),
			openaisdk.UserMessage(input.String()),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: summarize history: %v", contractx.ErrModelInvoke, err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: summarizer returned no choices", contractx.ErrModelInvoke)
	}

	summary := strings.TrimSpace(completion.Choices[0].Message.Content)
	if summary == "" {
		return previousSummary, nil
	}
	return summary, nil
}
