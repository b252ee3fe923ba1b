package config

import (
	"fmt"
	"os"
	"strconv"

	yaml "gopkg.in/yaml.v3"
)

// Load reads the YAML file at path (if it exists), layers it over Default,
// applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides secrets and connection targets from the environment so
// deployments never need credentials in the YAML file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MCPRESS_DATABASE_URL"); v != "" {
		cfg.Database.ConnectionString = v
	}
	if v := os.Getenv("MCPRESS_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("MCPRESS_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("MCPRESS_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("MCPRESS_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("MCPRESS_OCR_API_KEY"); v != "" {
		cfg.OCR.APIKey = v
	}
	if v := os.Getenv("MCPRESS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MCPRESS_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Ingestion.MaxUploadBytes = n
		}
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Ingestion.ChunkTargetChars <= 0 {
		return fmt.Errorf("ingestion.chunk_target_chars must be positive, got %d", c.Ingestion.ChunkTargetChars)
	}
	if c.Ingestion.ChunkOverlapChars < 0 || c.Ingestion.ChunkOverlapChars >= c.Ingestion.ChunkTargetChars {
		return fmt.Errorf("ingestion.chunk_overlap_chars must be in [0, chunk_target_chars)")
	}
	if c.Retrieval.DistanceCeilingHardMax <= 0 || c.Retrieval.DistanceCeilingHardMax > 2 {
		return fmt.Errorf("retrieval.distance_ceiling_hard_max must be in (0, 2]")
	}
	if c.Retrieval.DistanceCeiling > c.Retrieval.DistanceCeilingHardMax {
		return fmt.Errorf("retrieval.distance_ceiling %.2f exceeds hard max %.2f",
			c.Retrieval.DistanceCeiling, c.Retrieval.DistanceCeilingHardMax)
	}
	if c.Retrieval.InitialCandidates < c.Retrieval.MaxSources {
		return fmt.Errorf("retrieval.initial_candidates must be >= max_sources")
	}
	return nil
}

// ContextCharBudget resolves the passage byte budget for prompts. An explicit
// llm.context_char_budget wins; otherwise the budget is derived from the model
// window minus the reserved response tokens, at roughly four chars per token.
func (c *Config) ContextCharBudget() int {
	if c.LLM.ContextCharBudget > 0 {
		return c.LLM.ContextCharBudget
	}
	reserved := c.LLM.MaxTokens
	window := c.LLM.ContextWindow
	if window <= reserved {
		return 4000
	}
	return (window - reserved) * 4
}
