package factory

import (
	"fmt"

	"github.com/mikey/inbox-triage/internal/adapters/bedrock"
	"github.com/mikey/inbox-triage/internal/adapters/gemini"
	"github.com/mikey/inbox-triage/internal/adapters/ollama"
	"github.com/mikey/inbox-triage/internal/adapters/openai"
	"github.com/mikey/inbox-triage/internal/adapters/statistical"
	"github.com/mikey/inbox-triage/internal/config"
	"github.com/mikey/inbox-triage/internal/core"
	"go.uber.org/zap"
)

// PolicyFactory creates the triage policy selected by configuration
type PolicyFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewPolicyFactory creates a new policy factory
func NewPolicyFactory(cfg *config.Config, logger *zap.Logger) *PolicyFactory {
	return &PolicyFactory{cfg: cfg, logger: logger}
}

// CreatePolicy builds the configured backend once at startup. cache is
// only consulted by the categorical backend and may be nil.
func (f *PolicyFactory) CreatePolicy(cache core.CacheRepository) (core.TriagePolicy, error) {
	backend := f.cfg.GetString("classifier.backend")
	switch backend {
	case "llm":
		llmClient, err := f.CreateLLMClient()
		if err != nil {
			return nil, err
		}
		return core.NewCategoricalPolicy(llmClient, cache, f.logger), nil
	case "statistical":
		model, err := statistical.Load(f.cfg.GetString("model.path"))
		if err != nil {
			return nil, err
		}
		triage := f.cfg.GetTriage()
		return core.NewProbabilisticPolicy(model, triage.ArchiveThreshold, triage.ReviewLow, f.logger)
	default:
		return nil, fmt.Errorf("unsupported classifier backend: %s", backend)
	}
}

// CreateLLMClient creates the configured LLM provider
func (f *PolicyFactory) CreateLLMClient() (core.LLMClient, error) {
	provider := f.cfg.GetString("llm.provider")
	switch provider {
	case "ollama":
		return ollama.NewOllamaClient(f.cfg.GetOllama(), f.logger), nil
	case "openai":
		return openai.NewOpenAIClient(f.cfg.GetOpenAI(), f.logger)
	case "bedrock":
		return bedrock.NewBedrockClient(f.cfg.GetBedrock(), f.logger)
	case "gemini":
		return gemini.NewGeminiClient(f.cfg.GetGemini(), f.logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}
