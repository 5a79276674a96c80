package main

import (
	"github.com/spf13/cobra"

	"clawmem/internal/recall"
)

var (
	lookupTopic          string
	lookupTranscriptRoot string
	lookupLastNDays      int
	lookupMaxExcerpts    int
	lookupMaxChars       int
	lookupAllowExternal  bool
)

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Search the redacted transcript mirror for bounded excerpts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, cfg, err := openWorkspace()
		if err != nil {
			return err
		}
		rc := cfg.Recall
		if !cmd.Flags().Changed("last-n-days") {
			lookupLastNDays = rc.LookupLastNDays
		}
		if !cmd.Flags().Changed("max-excerpts") {
			lookupMaxExcerpts = rc.LookupMaxExcerpts
		}
		if !cmd.Flags().Changed("max-chars-per-excerpt") {
			lookupMaxChars = rc.LookupMaxCharsPerMatch
		}

		resp, err := recall.Lookup(ws, recall.LookupOptions{
			TranscriptRoot:     lookupTranscriptRoot,
			Topic:              lookupTopic,
			LastNDays:          lookupLastNDays,
			MaxExcerpts:        lookupMaxExcerpts,
			MaxCharsPerExcerpt: lookupMaxChars,
			AllowExternalRoot:  lookupAllowExternal,
		})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

func init() {
	lookupCmd.Flags().StringVar(&lookupTopic, "topic", "", "lookup topic string")
	lookupCmd.MarkFlagRequired("topic")
	lookupCmd.Flags().StringVar(&lookupTranscriptRoot, "transcript-root", "archive/transcripts", "transcript mirror root")
	lookupCmd.Flags().IntVar(&lookupLastNDays, "last-n-days", 7, "lookup window in days")
	lookupCmd.Flags().IntVar(&lookupMaxExcerpts, "max-excerpts", 5, "max excerpts returned")
	lookupCmd.Flags().IntVar(&lookupMaxChars, "max-chars-per-excerpt", 1200, "max chars per excerpt")
	lookupCmd.Flags().BoolVar(&lookupAllowExternal, "allow-external-transcript-root", false, "allow transcript root outside the workspace")
}
