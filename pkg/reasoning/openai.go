package reasoning

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/agentgate-io/agentgate-engine/pkg/types"
)

type OpenAIService struct {
	logger *zap.Logger
	client *openai.Client
	model  string
}

func NewOpenAIService(logger *zap.Logger, token, baseURL, model string) *OpenAIService {
	config := openai.DefaultConfig(token)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIService{
		logger: logger.Named("reasoning"),
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

const systemPrompt = `You plan actions against external SaaS APIs on behalf of an automation engine.
Respond with a single JSON object matching the requested output schema. Do not include prose.`

func (s *OpenAIService) Generate(ctx context.Context, prompt string, taskContext json.RawMessage) (json.RawMessage, error) {
	userPrompt := prompt
	if len(taskContext) > 0 {
		userPrompt = fmt.Sprintf("%s\n\nContext:\n%s", prompt, string(taskContext))
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return nil, types.WrapFault(types.KindTransient, "reasoning request failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, types.NewFault(types.KindTaskExecution, "reasoning returned no choices")
	}

	content := resp.Choices[0].Message.Content
	if !json.Valid([]byte(content)) {
		s.logger.Warn("reasoning output is not valid JSON", zap.String("model", s.model))
		return nil, types.NewFault(types.KindTaskExecution, "reasoning output is not valid JSON")
	}
	return json.RawMessage(content), nil
}
