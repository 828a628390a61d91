package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port        int  `yaml:"port"`
	Prod        bool `yaml:"prod"`
	MaxUploadMB int  `yaml:"max_upload_mb"`
}

type AuthConfig struct {
	Secret          string `yaml:"secret"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
}

type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	EmbedModel  string  `yaml:"embed_model"`
	AnswerModel string  `yaml:"answer_model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type DatabaseConfig struct {
	URL       string `yaml:"url"`
	TableName string `yaml:"table_name"`
	VectorDim int    `yaml:"vector_dim"`
}

type IngestConfig struct {
	ChunkSize         int      `yaml:"chunk_size"`
	ChunkOverlap      int      `yaml:"chunk_overlap"`
	MaxChunksPerDoc   int      `yaml:"max_chunks_per_doc"`
	SensitivePatterns []string `yaml:"sensitive_patterns"`
}

type QueryConfig struct {
	TopK int `yaml:"top_k"`
}

type ExtractConfig struct {
	RateLimit   float64 `yaml:"rate_limit"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	LLM      LLMConfig      `yaml:"llm"`
	Database DatabaseConfig `yaml:"database"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Query    QueryConfig    `yaml:"query"`
	Extract  ExtractConfig  `yaml:"extract"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/ragfence/config.yaml"),
			"/etc/ragfence/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.MaxUploadMB == 0 {
		config.Server.MaxUploadMB = 15
	}

	if config.Auth.Secret == "" {
		config.Auth.Secret = "dev_secret"
	}
	if config.Auth.TokenTTLMinutes == 0 {
		config.Auth.TokenTTLMinutes = 240
	}

	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.EmbedModel == "" {
		config.LLM.EmbedModel = "nomic-embed-text:latest"
	}
	if config.LLM.AnswerModel == "" {
		config.LLM.AnswerModel = "mistral"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 384
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.2
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "enterprise_chunks"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}

	if config.Ingest.ChunkSize == 0 {
		config.Ingest.ChunkSize = 900
	}
	if config.Ingest.ChunkOverlap == 0 {
		config.Ingest.ChunkOverlap = 150
	}
	if config.Ingest.MaxChunksPerDoc == 0 {
		config.Ingest.MaxChunksPerDoc = 400
	}

	if config.Query.TopK == 0 {
		config.Query.TopK = 6
	}

	if config.Extract.RateLimit == 0 {
		config.Extract.RateLimit = 2.0
	}
	if config.Extract.TimeoutSecs == 0 {
		config.Extract.TimeoutSecs = 20
	}
}

func mergeWithEnv(config *Config) {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if secret := os.Getenv("APP_SECRET"); secret != "" {
		config.Auth.Secret = secret
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
}
