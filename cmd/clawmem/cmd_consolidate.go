package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clawmem/internal/consolidate"
)

var (
	consEpisodicRetention   int
	consTranscriptRetention int
	consTranscriptRoot      string
	consTranscriptMode      string
	consSessionsDir         string
	consAllowUnderMemory    bool
	consAllowExternalRoot   bool
	consAcknowledgeRisk     bool
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Daily dedup, pruning, expiry sweep, and transcript mirror rebuild",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, cfg, err := openWorkspace()
		if err != nil {
			return err
		}
		gov := cfg.Governance
		if !cmd.Flags().Changed("episodic-retention-days") {
			consEpisodicRetention = gov.EpisodicRetentionDays
		}
		if !cmd.Flags().Changed("transcript-retention-days") {
			consTranscriptRetention = gov.TranscriptRetentionDays
		}
		if !cmd.Flags().Changed("transcript-root") {
			consTranscriptRoot = gov.TranscriptRoot
		}
		if !cmd.Flags().Changed("transcript-mode") {
			consTranscriptMode = gov.TranscriptMode
		}

		opts := consolidate.Options{
			EpisodicRetentionDays:   consEpisodicRetention,
			TranscriptRetentionDays: consTranscriptRetention,
			TranscriptRoot:          consTranscriptRoot,
			TranscriptMode:          consTranscriptMode,
			SessionsDir:             consSessionsDir,
			AllowUnderMemory:        consAllowUnderMemory,
			AllowExternalRoot:       consAllowExternalRoot,
			AcknowledgeRisk:         consAcknowledgeRisk,
			DryRun:                  dryRun,
		}
		// Root-safety violations are fatal before the lock is taken and
		// before any file is touched.
		if _, err := opts.Validate(ws); err != nil {
			return err
		}

		return runLocked("daily_consolidate", ws, func() error {
			res, err := consolidate.Run(ws, opts)
			if err != nil {
				return err
			}
			fmt.Printf("daily_consolidate semantic_deduped=%d episodic_pruned=%d expired_episodic=%d expired_semantic=%d transcript_root=%s transcript_mode=%s transcripts_written=%d transcripts_removed=%d legacy_migrated=%d legacy_conflicts=%d\n",
				res.SemanticDeduped, res.EpisodicPruned, res.ExpiredEpisodic, res.ExpiredSemantic,
				res.TranscriptRoot, consTranscriptMode, res.TranscriptsWritten, res.TranscriptsRemoved,
				res.LegacyMigrated, res.LegacyConflicts)
			return nil
		})
	},
}

func init() {
	consolidateCmd.Flags().IntVar(&consEpisodicRetention, "episodic-retention-days", 45, "episodic retention window")
	consolidateCmd.Flags().IntVar(&consTranscriptRetention, "transcript-retention-days", 7, "transcript mirror retention window")
	consolidateCmd.Flags().StringVar(&consTranscriptRoot, "transcript-root", "archive/transcripts", "transcript mirror root (relative paths resolve from workspace)")
	consolidateCmd.Flags().StringVar(&consTranscriptMode, "transcript-mode", "sanitized", "sanitized=redact likely secrets, full=raw text, off=disable mirror")
	consolidateCmd.Flags().StringVar(&consSessionsDir, "sessions-dir", "", "session JSONL directory to mirror")
	consolidateCmd.Flags().BoolVar(&consAllowUnderMemory, "allow-transcripts-under-memory", false, "allow transcript root under memory/")
	consolidateCmd.Flags().BoolVar(&consAllowExternalRoot, "allow-external-transcript-root", false, "allow transcript root outside the workspace")
	consolidateCmd.Flags().BoolVar(&consAcknowledgeRisk, "acknowledge-transcript-risk", false, "required for risky transcript options")
}
