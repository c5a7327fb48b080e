package config

import "time"

// JMAPConfig represents the configuration for the remote JMAP mail store
type JMAPConfig struct {
	SessionURL      string
	Token           string
	Timeout         time.Duration
	QueryPageSize   int
	FetchChunkSize  int
	UpdateBatchSize int
}

// OllamaConfig represents the configuration for a local Ollama server
// (consumed through its OpenAI-compatible endpoint)
type OllamaConfig struct {
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
}

// TriageConfig represents the triage policy thresholds
type TriageConfig struct {
	ArchiveThreshold float64
	ReviewLow        float64
	ProtectedDomains []string
}

// CacheConfig represents the classification result cache configuration
type CacheConfig struct {
	Type       string
	Enabled    bool
	SQLitePath string
	MySQLDSN   string
}

// GetJMAP returns the JMAP configuration
func (c *Config) GetJMAP() JMAPConfig {
	timeout, err := c.GetDuration("jmap.timeout")
	if err != nil {
		timeout = 30 * time.Second
	}
	return JMAPConfig{
		SessionURL:      c.GetString("jmap.session_url"),
		Token:           c.GetString("jmap.token"),
		Timeout:         timeout,
		QueryPageSize:   c.GetInt("jmap.query_page_size"),
		FetchChunkSize:  c.GetInt("jmap.fetch_chunk_size"),
		UpdateBatchSize: c.GetInt("jmap.update_batch_size"),
	}
}

// GetOllama returns the Ollama configuration
func (c *Config) GetOllama() OllamaConfig {
	return OllamaConfig{
		BaseURL:     c.GetString("ollama.base_url"),
		ModelName:   c.GetString("ollama.model_name"),
		MaxTokens:   c.GetInt("ollama.max_tokens"),
		Temperature: float32(c.GetFloat64("ollama.temperature")),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
	}
}

// GetTriage returns the triage policy configuration
func (c *Config) GetTriage() TriageConfig {
	return TriageConfig{
		ArchiveThreshold: c.GetFloat64("triage.archive_threshold"),
		ReviewLow:        c.GetFloat64("triage.review_low"),
		ProtectedDomains: c.GetStringSlice("triage.protected_domains"),
	}
}

// GetCache returns the cache configuration
func (c *Config) GetCache() CacheConfig {
	return CacheConfig{
		Type:       c.GetString("cache.type"),
		Enabled:    c.GetBool("cache.enabled"),
		SQLitePath: c.GetString("cache.sqlite_path"),
		MySQLDSN:   c.GetString("cache.mysql_dsn"),
	}
}
