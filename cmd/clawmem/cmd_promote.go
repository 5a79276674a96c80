package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"clawmem/internal/promote"
	"clawmem/internal/scoring"
)

var (
	promoteWindowDays      int
	promoteMinImportance   float64
	promoteMinRecurrence   int
	promoteMinDistinctDays int
	promoteMinAgeDays      int
	promoteMaxGroups       int
)

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Promote recurring durable semantic facts into the identity layer",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, cfg, err := openWorkspace()
		if err != nil {
			return err
		}
		gov := cfg.Governance
		if !cmd.Flags().Changed("window-days") {
			promoteWindowDays = gov.PromoteWindowDays
		}
		if !cmd.Flags().Changed("min-importance") {
			promoteMinImportance = gov.MinImportance
		}
		if !cmd.Flags().Changed("min-recurrence") {
			promoteMinRecurrence = gov.MinRecurrence
		}
		if !cmd.Flags().Changed("min-distinct-days") {
			promoteMinDistinctDays = gov.MinDistinctDays
		}
		if !cmd.Flags().Changed("min-age-days") {
			promoteMinAgeDays = gov.MinAgeDays
		}
		if !cmd.Flags().Changed("max-groups") {
			promoteMaxGroups = gov.MaxGroups
		}

		return runLocked("weekly_identity_promote", ws, func() error {
			aliases := scoring.LoadAliases(filepath.Join(ws.Root, gov.AliasFile))
			res, err := promote.Run(ws, promote.Options{
				WindowDays:      promoteWindowDays,
				MinImportance:   promoteMinImportance,
				MinRecurrence:   promoteMinRecurrence,
				MinDistinctDays: promoteMinDistinctDays,
				MinAgeDays:      promoteMinAgeDays,
				MaxGroups:       promoteMaxGroups,
				Aliases:         aliases,
				DryRun:          dryRun,
			})
			if err != nil {
				return err
			}
			fmt.Printf("weekly_identity_promote promoted_identity=%d promoted_preferences=%d promoted_decisions=%d skipped_threshold=%d skipped_duplicate=%d skipped_durability=%d skipped_recurrence_shape=%d skipped_young=%d skipped_expired=%d\n",
				res.PromotedIdentity, res.PromotedPreferences, res.PromotedDecisions,
				res.SkippedThreshold, res.SkippedDuplicate, res.SkippedDurability,
				res.SkippedRecurrenceShape, res.SkippedYoung, res.SkippedExpired)
			return nil
		})
	},
}

func init() {
	promoteCmd.Flags().IntVar(&promoteWindowDays, "window-days", 30, "semantic promotion window in days")
	promoteCmd.Flags().Float64Var(&promoteMinImportance, "min-importance", 0.85, "minimum best importance per group")
	promoteCmd.Flags().IntVar(&promoteMinRecurrence, "min-recurrence", 3, "minimum recurrence per concept group")
	promoteCmd.Flags().IntVar(&promoteMinDistinctDays, "min-distinct-days", 2, "require recurrence across at least this many days")
	promoteCmd.Flags().IntVar(&promoteMinAgeDays, "min-age-days", 5, "require earliest evidence at least this old")
	promoteCmd.Flags().IntVar(&promoteMaxGroups, "max-groups", 400, "bounded concept groups per run")
}
