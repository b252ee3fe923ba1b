package config

// Config is the root configuration for the mcpress core. Values are loaded
// from YAML, then overridden by MCPRESS_* environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Embedding EmbeddingConfig `yaml:"embeddings"`
	LLM       LLMConfig       `yaml:"llm"`
	OCR       OCRConfig       `yaml:"ocr"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

type DatabaseConfig struct {
	ConnectionString string `yaml:"connection_string"`
	MaxConns         int32  `yaml:"max_conns"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// EmbeddingConfig points at an OpenAI-compatible /v1/embeddings endpoint.
type EmbeddingConfig struct {
	BaseURL        string `yaml:"base_url"`
	Path           string `yaml:"path"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	Dimensions     int    `yaml:"dimensions"`
	BatchSize      int    `yaml:"batch_size"`
	MaxConcurrency int64  `yaml:"max_concurrency"`
	TimeoutSecs    int    `yaml:"timeout_seconds"`
}

type LLMConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKey            string  `yaml:"api_key"`
	Model             string  `yaml:"model"`
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	ContextWindow     int     `yaml:"context_window"`
	ContextCharBudget int     `yaml:"context_char_budget"`
}

type OCRConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

type IngestionConfig struct {
	ChunkTargetChars  int   `yaml:"chunk_target_chars"`
	ChunkOverlapChars int   `yaml:"chunk_overlap_chars"`
	MaxUploadBytes    int64 `yaml:"max_upload_bytes"`
	MaxWorkers        int   `yaml:"max_workers"`
}

type RetrievalConfig struct {
	InitialCandidates      int     `yaml:"initial_candidates"`
	MaxSources             int     `yaml:"max_sources"`
	DistanceCeiling        float64 `yaml:"distance_ceiling"`
	DistanceCeilingHardMax float64 `yaml:"distance_ceiling_hard_max"`
}

// Default returns the configuration used when a field is absent from the
// YAML file. The numbers mirror production settings.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			ConnectionString: "postgres://localhost:5432/mcpress",
			MaxConns:         8,
		},
		Logging: LoggingConfig{Level: "info"},
		Metrics: MetricsConfig{Enabled: true, Addr: ":9090"},
		Embedding: EmbeddingConfig{
			BaseURL:        "http://localhost:8081",
			Path:           "/v1/embeddings",
			Model:          "all-MiniLM-L6-v2",
			Dimensions:     384,
			BatchSize:      64,
			MaxConcurrency: 4,
			TimeoutSecs:    30,
		},
		LLM: LLMConfig{
			BaseURL:       "https://api.openai.com/v1",
			Model:         "gpt-4o-mini",
			Temperature:   0.2,
			MaxTokens:     1024,
			ContextWindow: 16384,
		},
		OCR: OCRConfig{Enabled: true, Model: "gpt-4o-mini"},
		Ingestion: IngestionConfig{
			ChunkTargetChars:  1000,
			ChunkOverlapChars: 200,
			MaxUploadBytes:    100 << 20,
			MaxWorkers:        4,
		},
		Retrieval: RetrievalConfig{
			InitialCandidates:      30,
			MaxSources:             12,
			DistanceCeiling:        0.45,
			DistanceCeilingHardMax: 0.65,
		},
	}
}
