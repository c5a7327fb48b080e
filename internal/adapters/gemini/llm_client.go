// Package gemini implements the categorical LLM backend using Google
// Gemini.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/inbox-triage/internal/config"
	"github.com/mikey/inbox-triage/internal/core"
	"github.com/mikey/inbox-triage/internal/utils"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const systemPrompt = `You are an email triage assistant. Classify the email into exactly one category.

Categories:
- action_needed: requires a reply, decision, or task from the recipient
- fyi: worth reading but no action needed (updates from known contacts, relevant news)
- noise: transactional receipts, automated notifications, marketing, newsletters, shipping updates

Respond only with JSON: {"category": "...", "reason": "brief explanation"}`

const promptPreviewLimit = 300

// GeminiClient is an implementation of the LLMClient interface using
// Google Gemini
type GeminiClient struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
	logger    *zap.Logger
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(cfg config.GeminiConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, &core.ConfigError{Reason: "gemini.api_key must be set"}
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.ModelName)
	model.SetTemperature(cfg.Temperature)
	model.SetMaxOutputTokens(int32(cfg.MaxTokens))

	return &GeminiClient{
		client:    client,
		model:     model,
		modelName: cfg.ModelName,
		logger:    logger,
	}, nil
}

// Close closes the Gemini client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// ModelID identifies the underlying model for cache keying
func (c *GeminiClient) ModelID() string {
	return c.modelName
}

// ClassifyMessage assigns a triage category to a single message
func (c *GeminiClient) ClassifyMessage(ctx context.Context, msg *core.Message) (*core.LLMResult, error) {
	subject := msg.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	prompt := fmt.Sprintf("%s\n\nEmail:\nFrom: %s\nSubject: %s\nPreview: %s",
		systemPrompt, msg.DisplaySender(), subject,
		utils.TruncateRunes(msg.Preview, promptPreviewLimit))

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}

	parsed, err := parseTriageResponse(b.String())
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

type triageResponse struct {
	Category string `json:"category"`
	Reason   string `json:"reason"`
}

func parseTriageResponse(text string) (*triageResponse, error) {
	var parsed triageResponse
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		return &parsed, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in model response")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse model response as JSON: %w", err)
	}
	return &parsed, nil
}
