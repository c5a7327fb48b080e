// Package openai implements the categorical LLM backend using the hosted
// OpenAI chat API.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mikey/inbox-triage/internal/config"
	"github.com/mikey/inbox-triage/internal/core"
	"github.com/mikey/inbox-triage/internal/utils"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const systemPrompt = `You are an email triage assistant. Classify each email into exactly one category.

Categories:
- action_needed: requires a reply, decision, or task from the recipient
- fyi: worth reading but no action needed (updates from known contacts, relevant news)
- noise: transactional receipts, automated notifications, marketing, newsletters, shipping updates

Respond with JSON: {"category": "...", "reason": "brief explanation"}`

const promptPreviewLimit = 300

// OpenAIClient is an implementation of the LLMClient interface using OpenAI
type OpenAIClient struct {
	client      *openai.Client
	modelName   string
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(cfg config.OpenAIConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, &core.ConfigError{Reason: "openai.api_key must be set"}
	}
	return &OpenAIClient{
		client:      openai.NewClient(cfg.APIKey),
		modelName:   cfg.ModelName,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}, nil
}

// ModelID identifies the underlying model for cache keying
func (c *OpenAIClient) ModelID() string {
	return c.modelName
}

// ClassifyMessage assigns a triage category to a single message
func (c *OpenAIClient) ClassifyMessage(ctx context.Context, msg *core.Message) (*core.LLMResult, error) {
	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserMessage(msg)},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	parsed, err := parseTriageResponse(resp.Choices[0].Message.Content)
	if err != nil {
		c.logger.Warn("Unparseable model response, defaulting to fyi",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return &core.LLMResult{Category: core.CategoryFYI, Reason: "unparseable model response"}, nil
	}

	return &core.LLMResult{
		Category: core.Category(parsed.Category),
		Reason:   parsed.Reason,
	}, nil
}

func buildUserMessage(msg *core.Message) string {
	subject := msg.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	out := fmt.Sprintf("From: %s\nSubject: %s", msg.DisplaySender(), subject)
	if msg.Preview != "" {
		out += "\nPreview: " + utils.TruncateRunes(msg.Preview, promptPreviewLimit)
	}
	return out
}

type triageResponse struct {
	Category string `json:"category"`
	Reason   string `json:"reason"`
}

func parseTriageResponse(text string) (*triageResponse, error) {
	var parsed triageResponse
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		return &parsed, nil
	}

	start := -1
	end := -1
	for i := 0; i < len(text); i++ {
		if text[i] == '{' {
			start = i
			break
		}
	}
	for i := len(text) - 1; i >= 0; i-- {
		if text[i] == '}' {
			end = i + 1
			break
		}
	}
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model response")
	}
	if err := json.Unmarshal([]byte(text[start:end]), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse model response as JSON: %w", err)
	}
	return &parsed, nil
}
