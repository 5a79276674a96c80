package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"clawmem/internal/config"
	"clawmem/internal/drift"
)

var (
	driftWindowDays    int
	driftMaxCandidates int
	driftMinConfidence float64
	driftUseLLM        bool
	driftFallback      bool
	driftSliding       bool
	driftSimThreshold  float64
	driftWorkers       int
)

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Weekly contradiction review over the semantic layer",
	Long: `Generates a bounded, diverse candidate pair set, classifies each pair
(REINFORCES / REFINES / SUPERSEDES / UNRELATED), applies SUPERSEDES
transitions atomically, and appends every decision to memory/drift-log.md.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, cfg, err := openWorkspace()
		if err != nil {
			return err
		}
		gov := cfg.Governance
		if !cmd.Flags().Changed("window-days") {
			driftWindowDays = gov.DriftWindowDays
		}
		if !cmd.Flags().Changed("max-candidates") {
			driftMaxCandidates = gov.MaxCandidates
		}
		if !cmd.Flags().Changed("min-confidence") {
			driftMinConfidence = gov.MinConfidence
		}
		if !cmd.Flags().Changed("use-llm") {
			driftUseLLM = cfg.Classifier.UseLLM
		}
		if !cmd.Flags().Changed("fallback-on-error") {
			driftFallback = cfg.Classifier.FallbackOnError
		}
		if !cmd.Flags().Changed("similarity-threshold") {
			driftSimThreshold = cfg.Oracle.SimilarityThreshold
		}
		if !cmd.Flags().Changed("workers") {
			driftWorkers = gov.ClassifyWorkers
		}

		return runLocked("weekly_drift_review", ws, func() error {
			classifier, mode := buildClassifier(cfg)
			opts := drift.ReviewOptions{
				WindowDays:          driftWindowDays,
				MaxCandidates:       driftMaxCandidates,
				MinConfidence:       driftMinConfidence,
				Workers:             driftWorkers,
				SlidingWindow:       driftSliding,
				SimilarityThreshold: driftSimThreshold,
				Classifier:          classifier,
				FallbackOnError:     driftFallback,
				CheckpointFile:      gov.DriftCheckpoint,
				DryRun:              dryRun,
			}
			if driftSimThreshold > 0 {
				opts.Oracle = buildOracle(cfg)
			}

			res, err := drift.Review(ws, opts)
			if err != nil {
				return err
			}
			rep := res.Report
			fmt.Printf("weekly_drift_review supersedes=%d refines=%d reinforces=%d unrelated=%d changed=%d mode=%s\n",
				rep.ByRelation[drift.RelationSupersedes],
				rep.ByRelation[drift.RelationRefines],
				rep.ByRelation[drift.RelationReinforces],
				rep.ByRelation[drift.RelationUnrelated],
				res.Changed, mode)
			return nil
		})
	},
}

// buildClassifier wires the cached classifier chain: the model-backed client
// when enabled, otherwise the heuristic directly.
func buildClassifier(cfg *config.Config) (drift.Classifier, string) {
	ttl, err := time.ParseDuration(cfg.Classifier.CacheTTL)
	if err != nil || ttl <= 0 {
		ttl = time.Hour
	}
	if !driftUseLLM {
		return drift.NewCachedClassifier(drift.HeuristicClassifier{}, cfg.Classifier.CacheSize, ttl), "heuristic"
	}
	timeout, err := time.ParseDuration(cfg.Classifier.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 120 * time.Second
	}
	llm := drift.NewLLMClassifier(cfg.Classifier.Endpoint, cfg.Classifier.Model, cfg.Classifier.Temperature, timeout)
	return drift.NewCachedClassifier(llm, cfg.Classifier.CacheSize, ttl), "llm"
}

func buildOracle(cfg *config.Config) drift.SimilarityOracle {
	timeout, err := time.ParseDuration(cfg.Oracle.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 30 * time.Second
	}
	return drift.NewQmdOracle(cfg.Oracle.Command, cfg.Oracle.Collection, timeout, cfg.Oracle.CacheSize)
}

func init() {
	driftCmd.Flags().IntVar(&driftWindowDays, "window-days", 7, "recent window in days")
	driftCmd.Flags().IntVar(&driftMaxCandidates, "max-candidates", 200, "maximum candidate pairs to evaluate")
	driftCmd.Flags().Float64Var(&driftMinConfidence, "min-confidence", 0.5, "minimum confidence threshold")
	driftCmd.Flags().BoolVar(&driftUseLLM, "use-llm", true, "use model-backed classification")
	driftCmd.Flags().BoolVar(&driftFallback, "fallback-on-error", true, "fall back to heuristics on classifier error")
	driftCmd.Flags().BoolVar(&driftSliding, "sliding-window", false, "compare all newer/older pairs (historical analysis)")
	driftCmd.Flags().Float64Var(&driftSimThreshold, "similarity-threshold", 0, "semantic similarity threshold (0 disables the oracle)")
	driftCmd.Flags().IntVar(&driftWorkers, "workers", 4, "bounded classification worker pool size")
}
