package kin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAISender voices personas through a chat completion model. The kin name
// and channel become part of the system prompt; there is no remote memory.
type OpenAISender struct {
	client *openai.Client
	model  string
}

// NewOpenAISender returns nil if apiKey is empty.
func NewOpenAISender(apiKey, model string) *OpenAISender {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = openai.GPT3Dot5Turbo1106
	}
	return &OpenAISender{client: openai.NewClient(apiKey), model: model}
}

// Send runs one chat completion.
func (s *OpenAISender) Send(ctx context.Context, kin, channel, prompt string, addSystem map[string]any) (string, error) {
	system := fmt.Sprintf("You are %s, a citizen of Renaissance Venice, thinking about %s.", kin, channel)
	if len(addSystem) > 0 {
		extra, err := json.Marshal(addSystem)
		if err != nil {
			return "", fmt.Errorf("marshal context: %w", err)
		}
		system += "\n\nWhat you know right now:\n" + string(extra)
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: 400,
	})
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}
