package main

import (
	"github.com/spf13/cobra"

	"clawmem/internal/recall"
)

var (
	gateAvgSimilarity float64
	gateResultCount   int
	gateRetrievalConf float64
	gateContinuation  bool
	gateMinSimilarity float64
	gateMinResults    int
	gateMinConfidence float64

	flowTopic          string
	flowLookupApproved bool
	flowTranscriptRoot string
	flowLastNDays      int
	flowMaxExcerpts    int
	flowMaxChars       int
	flowAllowExternal  bool
)

func gateInputs() recall.GateInputs {
	return recall.GateInputs{
		AvgSimilarity:       gateAvgSimilarity,
		ResultCount:         gateResultCount,
		RetrievalConfidence: gateRetrievalConf,
		ContinuationIntent:  gateContinuation,
	}
}

func gateThresholds() recall.GateThresholds {
	return recall.GateThresholds{
		MinSimilarity: gateMinSimilarity,
		MinResults:    gateMinResults,
		MinConfidence: gateMinConfidence,
	}
}

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Evaluate retrieval confidence and suggest transcript lookup",
	RunE: func(cmd *cobra.Command, args []string) error {
		decision := recall.EvaluateGate(gateInputs(), gateThresholds())
		return printJSON(decision)
	},
}

var gateFlowCmd = &cobra.Command{
	Use:   "gate-flow",
	Short: "Run the confidence gate and optional transcript lookup as one flow",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, cfg, err := openWorkspace()
		if err != nil {
			return err
		}
		rc := cfg.Recall
		if !cmd.Flags().Changed("last-n-days") {
			flowLastNDays = rc.LookupLastNDays
		}
		if !cmd.Flags().Changed("max-excerpts") {
			flowMaxExcerpts = rc.LookupMaxExcerpts
		}
		if !cmd.Flags().Changed("max-chars-per-excerpt") {
			flowMaxChars = rc.LookupMaxCharsPerMatch
		}

		resp, err := recall.Flow(ws, recall.FlowOptions{
			Gate:           gateInputs(),
			Thresholds:     gateThresholds(),
			Topic:          flowTopic,
			LookupApproved: flowLookupApproved,
			Lookup: recall.LookupOptions{
				TranscriptRoot:     flowTranscriptRoot,
				LastNDays:          flowLastNDays,
				MaxExcerpts:        flowMaxExcerpts,
				MaxCharsPerExcerpt: flowMaxChars,
				AllowExternalRoot:  flowAllowExternal,
			},
		})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

func addGateFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&gateAvgSimilarity, "avg-similarity", 0, "average retrieval similarity")
	cmd.MarkFlagRequired("avg-similarity")
	cmd.Flags().IntVar(&gateResultCount, "result-count", 0, "retrieval result count")
	cmd.MarkFlagRequired("result-count")
	cmd.Flags().Float64Var(&gateRetrievalConf, "retrieval-confidence", -1, "retrieval confidence (negative defaults to avg similarity)")
	cmd.Flags().BoolVar(&gateContinuation, "continuation-intent", false, "query continues an earlier conversation")
	cmd.Flags().Float64Var(&gateMinSimilarity, "min-similarity", 0.72, "weak-similarity floor")
	cmd.Flags().IntVar(&gateMinResults, "min-results", 5, "sparse-results floor")
	cmd.Flags().Float64Var(&gateMinConfidence, "min-confidence", 0.65, "continuation-gap confidence floor")
}

func init() {
	addGateFlags(gateCmd)
	addGateFlags(gateFlowCmd)

	gateFlowCmd.Flags().StringVar(&flowTopic, "topic", "", "transcript lookup topic when lookup is approved")
	gateFlowCmd.Flags().BoolVar(&flowLookupApproved, "lookup-approved", false, "caller approved the transcript lookup")
	gateFlowCmd.Flags().StringVar(&flowTranscriptRoot, "transcript-root", "archive/transcripts", "transcript mirror root")
	gateFlowCmd.Flags().IntVar(&flowLastNDays, "last-n-days", 7, "lookup window in days")
	gateFlowCmd.Flags().IntVar(&flowMaxExcerpts, "max-excerpts", 5, "max excerpts returned")
	gateFlowCmd.Flags().IntVar(&flowMaxChars, "max-chars-per-excerpt", 1200, "max chars per excerpt")
	gateFlowCmd.Flags().BoolVar(&flowAllowExternal, "allow-external-transcript-root", false, "allow transcript root outside the workspace")
}
