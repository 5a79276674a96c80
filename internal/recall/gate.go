package recall

import (
	"math"
)

// Gate actions.
const (
	ActionRespondNormally  = "respond_normally"
	ActionPartialAskLookup = "partial_and_ask_lookup"
	ActionLookupPerformed  = "lookup_performed"
)

// Gate trigger reasons.
const (
	TriggerWeakSimilarity  = "weak_similarity"
	TriggerSparseResults   = "sparse_results"
	TriggerContinuationGap = "continuation_gap"
)

// LookupPrompt is the fixed user-facing question emitted when the gate asks
// for a transcript lookup.
const LookupPrompt = "I can give a safe partial answer from current memory. " +
	"Do you want me to check transcript archives for specific details?"

// GateInputs are the retrieval metrics feeding the confidence gate. A
// negative RetrievalConfidence defaults to the average similarity.
type GateInputs struct {
	AvgSimilarity       float64
	ResultCount         int
	RetrievalConfidence float64
	ContinuationIntent  bool
}

// GateThresholds are the gate's decision floors.
type GateThresholds struct {
	MinSimilarity float64
	MinResults    int
	MinConfidence float64
}

// GateDecision is the gate output.
type GateDecision struct {
	Action          string   `json:"action"`
	ConfidenceScore float64  `json:"confidence_score"`
	TriggerReasons  []string `json:"trigger_reasons"`
	SuggestedPrompt string   `json:"suggested_prompt"`
}

func clamp01(v float64) float64 { return math.Max(0, math.Min(1, v)) }

// EvaluateGate decides between answering from memory and requesting a
// transcript lookup. The decision is monotone in AvgSimilarity and
// ResultCount: raising either with everything else fixed never flips a
// normal response into a lookup request.
func EvaluateGate(in GateInputs, th GateThresholds) GateDecision {
	avgSim := clamp01(in.AvgSimilarity)
	count := in.ResultCount
	if count < 0 {
		count = 0
	}
	retrieval := in.RetrievalConfidence
	if retrieval < 0 {
		retrieval = avgSim
	} else {
		retrieval = clamp01(retrieval)
	}

	minResults := th.MinResults
	if minResults < 1 {
		minResults = 1
	}
	resultStrength := clamp01(float64(count) / float64(minResults))
	confidence := clamp01(0.7*retrieval + 0.3*resultStrength)

	var triggers []string
	if avgSim < th.MinSimilarity {
		triggers = append(triggers, TriggerWeakSimilarity)
	}
	if count < th.MinResults {
		triggers = append(triggers, TriggerSparseResults)
	}
	if in.ContinuationIntent && confidence < th.MinConfidence {
		triggers = append(triggers, TriggerContinuationGap)
	}

	decision := GateDecision{
		Action:          ActionRespondNormally,
		ConfidenceScore: math.Round(confidence*10000) / 10000,
		TriggerReasons:  triggers,
	}
	if len(triggers) > 0 {
		decision.Action = ActionPartialAskLookup
		decision.SuggestedPrompt = LookupPrompt
	}
	return decision
}
