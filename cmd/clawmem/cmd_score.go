package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clawmem/internal/scoring"
)

var (
	scoreWindowDays   int
	scoreHalfLifeDays int
	scoreAlpha        float64
	scoreMaxUpdates   int
	scoreAliasFile    string
	scoreCheckpoint   string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Re-score entry importance with bounded incremental work",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, cfg, err := openWorkspace()
		if err != nil {
			return err
		}
		gov := cfg.Governance
		if !cmd.Flags().Changed("window-days") {
			scoreWindowDays = gov.ScoreWindowDays
		}
		if !cmd.Flags().Changed("half-life-days") {
			scoreHalfLifeDays = gov.HalfLifeDays
		}
		if !cmd.Flags().Changed("alpha") {
			scoreAlpha = gov.Alpha
		}
		if !cmd.Flags().Changed("max-updates") {
			scoreMaxUpdates = gov.MaxUpdates
		}
		if !cmd.Flags().Changed("alias-file") {
			scoreAliasFile = gov.AliasFile
		}
		if !cmd.Flags().Changed("checkpoint-file") {
			scoreCheckpoint = gov.CheckpointFile
		}

		return runLocked("importance_score", ws, func() error {
			res, err := scoring.Run(ws, scoring.Options{
				WindowDays:     scoreWindowDays,
				HalfLifeDays:   scoreHalfLifeDays,
				Alpha:          scoreAlpha,
				MaxUpdates:     scoreMaxUpdates,
				AliasFile:      scoreAliasFile,
				CheckpointFile: scoreCheckpoint,
				DryRun:         dryRun,
			})
			if err != nil {
				return err
			}
			fmt.Printf("importance_score window_days=%d max_updates=%d candidates=%d updated=%d\n",
				scoreWindowDays, scoreMaxUpdates, res.Candidates, res.Updated)
			return nil
		})
	},
}

func init() {
	scoreCmd.Flags().IntVar(&scoreWindowDays, "window-days", 30, "candidate window in days")
	scoreCmd.Flags().IntVar(&scoreHalfLifeDays, "half-life-days", 30, "importance decay half-life")
	scoreCmd.Flags().Float64Var(&scoreAlpha, "alpha", 0.30, "smoothing factor for importance updates")
	scoreCmd.Flags().IntVar(&scoreMaxUpdates, "max-updates", 400, "bounded updates per run")
	scoreCmd.Flags().StringVar(&scoreAliasFile, "alias-file", "memory/config/concept_aliases.json", "alias map for concept canonicalization")
	scoreCmd.Flags().StringVar(&scoreCheckpoint, "checkpoint-file", "memory/state/importance-score.json", "checkpoint metadata file")
}
