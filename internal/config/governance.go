package config

// GovernanceConfig bundles the per-job knobs of the cadence pipeline. Every
// bound here is a hard per-run cap; jobs checkpoint and resume rather than
// looping until done.
type GovernanceConfig struct {
	// Episodic -> semantic extraction (hourly)
	LookbackHours     int     `yaml:"lookback_hours"`
	SemanticThreshold float64 `yaml:"semantic_threshold"`

	// Importance scoring (hourly)
	ScoreWindowDays int     `yaml:"score_window_days"`
	HalfLifeDays    int     `yaml:"half_life_days"`
	Alpha           float64 `yaml:"alpha"`
	MaxUpdates      int     `yaml:"max_updates"`
	AliasFile       string  `yaml:"alias_file"`
	CheckpointFile  string  `yaml:"checkpoint_file"`

	// Daily consolidation
	EpisodicRetentionDays   int    `yaml:"episodic_retention_days"`
	TranscriptRetentionDays int    `yaml:"transcript_retention_days"`
	TranscriptRoot          string `yaml:"transcript_root"`
	TranscriptMode          string `yaml:"transcript_mode"` // sanitized | full | off

	// Drift review (weekly)
	DriftWindowDays    int     `yaml:"drift_window_days"`
	MaxCandidates      int     `yaml:"max_candidates"`
	MinConfidence      float64 `yaml:"min_confidence"`
	ClassifyWorkers    int     `yaml:"classify_workers"`
	DriftCheckpoint    string  `yaml:"drift_checkpoint"`
	SimilarityUseLocal bool    `yaml:"similarity_use_local"`

	// Identity promotion (weekly)
	PromoteWindowDays int     `yaml:"promote_window_days"`
	MinImportance     float64 `yaml:"min_importance"`
	MinRecurrence     int     `yaml:"min_recurrence"`
	MinDistinctDays   int     `yaml:"min_distinct_days"`
	MinAgeDays        int     `yaml:"min_age_days"`
	MaxGroups         int     `yaml:"max_groups"`
}

// DefaultGovernanceConfig returns the cadence defaults.
func DefaultGovernanceConfig() GovernanceConfig {
	return GovernanceConfig{
		LookbackHours:     24,
		SemanticThreshold: 0.70,

		ScoreWindowDays: 30,
		HalfLifeDays:    30,
		Alpha:           0.30,
		MaxUpdates:      400,
		AliasFile:       "memory/config/concept_aliases.json",
		CheckpointFile:  "memory/state/importance-score.json",

		EpisodicRetentionDays:   45,
		TranscriptRetentionDays: 7,
		TranscriptRoot:          "archive/transcripts",
		TranscriptMode:          "sanitized",

		DriftWindowDays: 7,
		MaxCandidates:   200,
		MinConfidence:   0.5,
		ClassifyWorkers: 4,
		DriftCheckpoint: "memory/state/drift-review-checkpoint.json",

		PromoteWindowDays: 30,
		MinImportance:     0.85,
		MinRecurrence:     3,
		MinDistinctDays:   2,
		MinAgeDays:        5,
		MaxGroups:         400,
	}
}
