package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"clawmem/internal/recall"
)

var (
	recallTopic             string
	recallMaxResults        int
	recallMaxPerLayer       int
	recallMaxChars          int
	recallEpisodicDays      int
	recallSemanticMonths    int
	recallIncludeHistorical bool
)

var recallCmd = &cobra.Command{
	Use:   "recall",
	Short: "Deterministic layered recall: identity, then semantic, then episodic",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, cfg, err := openWorkspace()
		if err != nil {
			return err
		}
		rc := cfg.Recall
		if !cmd.Flags().Changed("max-results") {
			recallMaxResults = rc.MaxResults
		}
		if !cmd.Flags().Changed("max-per-layer") {
			recallMaxPerLayer = rc.MaxPerLayer
		}
		if !cmd.Flags().Changed("max-chars") {
			recallMaxChars = rc.MaxChars
		}
		if !cmd.Flags().Changed("episodic-days") {
			recallEpisodicDays = rc.EpisodicDays
		}
		if !cmd.Flags().Changed("semantic-months") {
			recallSemanticMonths = rc.SemanticMonths
		}

		// Read path: no cadence lock, best-effort.
		resp, err := recall.Ordered(ws, recall.Options{
			Topic:             recallTopic,
			MaxResults:        recallMaxResults,
			MaxPerLayer:       recallMaxPerLayer,
			MaxChars:          recallMaxChars,
			EpisodicDays:      recallEpisodicDays,
			SemanticMonths:    recallSemanticMonths,
			IncludeHistorical: recallIncludeHistorical,
		})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func init() {
	recallCmd.Flags().StringVar(&recallTopic, "topic", "", "recall topic string")
	recallCmd.MarkFlagRequired("topic")
	recallCmd.Flags().IntVar(&recallMaxResults, "max-results", 12, "global result cap")
	recallCmd.Flags().IntVar(&recallMaxPerLayer, "max-per-layer", 4, "result cap per layer")
	recallCmd.Flags().IntVar(&recallMaxChars, "max-chars", 240, "max excerpt size per hit")
	recallCmd.Flags().IntVar(&recallEpisodicDays, "episodic-days", 30, "episodic lookback window in days")
	recallCmd.Flags().IntVar(&recallSemanticMonths, "semantic-months", 6, "semantic lookback window in months")
	recallCmd.Flags().BoolVar(&recallIncludeHistorical, "include-historical", false, "include historical entries")
}
