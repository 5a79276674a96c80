package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clawmem/internal/extract"
)

var (
	extractLookbackHours int
	extractThreshold     float64
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Promote high-importance episodic entries to the semantic layer",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, cfg, err := openWorkspace()
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("lookback-hours") {
			extractLookbackHours = cfg.Governance.LookbackHours
		}
		if !cmd.Flags().Changed("semantic-threshold") {
			extractThreshold = cfg.Governance.SemanticThreshold
		}

		return runLocked("hourly_semantic_extract", ws, func() error {
			res, err := extract.Run(ws, extract.Options{
				LookbackHours: extractLookbackHours,
				Threshold:     extractThreshold,
				DryRun:        dryRun,
			})
			if err != nil {
				return err
			}
			fmt.Printf("hourly_semantic_extract promoted=%d\n", res.Promoted)
			return nil
		})
	},
}

func init() {
	extractCmd.Flags().IntVar(&extractLookbackHours, "lookback-hours", 24, "episodic lookback window in hours")
	extractCmd.Flags().Float64Var(&extractThreshold, "semantic-threshold", 0.70, "minimum importance for promotion")
}
