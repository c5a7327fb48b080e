package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())

	assert.Equal(t, "llm", cfg.GetString("classifier.backend"))
	assert.Equal(t, "ollama", cfg.GetString("llm.provider"))
	assert.Equal(t, "model.gob", cfg.GetString("model.path"))

	jmap := cfg.GetJMAP()
	assert.Equal(t, "https://api.fastmail.com/.well-known/jmap", jmap.SessionURL)
	assert.Equal(t, 30*time.Second, jmap.Timeout)
	assert.Equal(t, 500, jmap.QueryPageSize)
	assert.Equal(t, 100, jmap.FetchChunkSize)
	assert.Equal(t, 50, jmap.UpdateBatchSize)

	triage := cfg.GetTriage()
	assert.Equal(t, 0.9, triage.ArchiveThreshold)
	assert.Equal(t, 0.5, triage.ReviewLow)
	assert.Empty(t, triage.ProtectedDomains)

	cache := cfg.GetCache()
	assert.True(t, cache.Enabled)
	assert.Equal(t, "file", cache.Type)
}

func TestOverrides(t *testing.T) {
	v := NewEmptyViper()
	v.Set("triage.archive_threshold", 0.75)
	v.Set("triage.protected_domains", []string{"bank.com", "work.org"})
	v.Set("jmap.timeout", "caught-fire")
	cfg := NewFromViper(v)

	triage := cfg.GetTriage()
	assert.Equal(t, 0.75, triage.ArchiveThreshold)
	assert.Equal(t, []string{"bank.com", "work.org"}, triage.ProtectedDomains)

	// An unparseable timeout falls back to the default.
	assert.Equal(t, 30*time.Second, cfg.GetJMAP().Timeout)
}

func TestProviderConfigs(t *testing.T) {
	v := NewEmptyViper()
	v.Set("openai.api_key", "sk-test")
	v.Set("ollama.temperature", 0.3)
	cfg := NewFromViper(v)

	assert.Equal(t, "sk-test", cfg.GetOpenAI().APIKey)
	assert.Equal(t, float32(0.3), cfg.GetOllama().Temperature)
	assert.Equal(t, "http://localhost:11434/v1", cfg.GetOllama().BaseURL)
	assert.Equal(t, "us-east-1", cfg.GetBedrock().Region)
	assert.Equal(t, "gemini-pro", cfg.GetGemini().ModelName)
}
