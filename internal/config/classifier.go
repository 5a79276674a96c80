package config

// ClassifierConfig configures the model-backed contradiction classifier.
// The endpoint speaks the local chat protocol (POST /api/chat with a
// messages array and stream=false); when it is unreachable the drift job
// degrades to the heuristic classifier.
type ClassifierConfig struct {
	Endpoint    string  `yaml:"endpoint"` // Default: "http://localhost:11434"
	Model       string  `yaml:"model"`    // Default: "qwen3:4b"
	Timeout     string  `yaml:"timeout"`  // Per-request timeout, e.g. "120s"
	Temperature float64 `yaml:"temperature"`

	// Cache bounds. Rebuilt per process; the on-disk checkpoint is the only
	// persistence across runs.
	CacheSize       int    `yaml:"cache_size"`
	CacheTTL        string `yaml:"cache_ttl"`
	UseLLM          bool   `yaml:"use_llm"`
	FallbackOnError bool   `yaml:"fallback_on_error"`
}

// DefaultClassifierConfig returns the classifier defaults.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Endpoint:        "http://localhost:11434",
		Model:           "qwen3:4b",
		Timeout:         "120s",
		Temperature:     0.3,
		CacheSize:       1000,
		CacheTTL:        "1h",
		UseLLM:          true,
		FallbackOnError: true,
	}
}

// OracleConfig configures the external similarity oracle subprocess used to
// refine candidate scores. Absence, non-zero exit, or timeout all degrade to
// the local token-similarity fallback.
type OracleConfig struct {
	Command             string  `yaml:"command"`    // Default: "qmd"
	Collection          string  `yaml:"collection"` // Default: "clawmem-memory"
	Limit               int     `yaml:"limit"`
	Timeout             string  `yaml:"timeout"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"` // 0 disables refinement
	CacheSize           int     `yaml:"cache_size"`
}

// DefaultOracleConfig returns the oracle defaults.
func DefaultOracleConfig() OracleConfig {
	return OracleConfig{
		Command:             "qmd",
		Collection:          "clawmem-memory",
		Limit:               50,
		Timeout:             "30s",
		SimilarityThreshold: 0,
		CacheSize:           500,
	}
}

// RecallConfig configures ordered recall, the confidence gate, and the
// transcript lookup bounds.
type RecallConfig struct {
	MaxResults     int `yaml:"max_results"`
	MaxPerLayer    int `yaml:"max_per_layer"`
	MaxChars       int `yaml:"max_chars"`
	EpisodicDays   int `yaml:"episodic_days"`
	SemanticMonths int `yaml:"semantic_months"`

	MinSimilarity float64 `yaml:"min_similarity"`
	MinResults    int     `yaml:"min_results"`
	MinConfidence float64 `yaml:"min_confidence"`

	LookupLastNDays        int `yaml:"lookup_last_n_days"`
	LookupMaxExcerpts      int `yaml:"lookup_max_excerpts"`
	LookupMaxCharsPerMatch int `yaml:"lookup_max_chars_per_excerpt"`
}

// DefaultRecallConfig returns the recall defaults.
func DefaultRecallConfig() RecallConfig {
	return RecallConfig{
		MaxResults:     12,
		MaxPerLayer:    4,
		MaxChars:       240,
		EpisodicDays:   30,
		SemanticMonths: 6,

		MinSimilarity: 0.72,
		MinResults:    5,
		MinConfidence: 0.65,

		LookupLastNDays:        7,
		LookupMaxExcerpts:      5,
		LookupMaxCharsPerMatch: 1200,
	}
}
