package recall

import (
	"fmt"
	"strings"

	"clawmem/internal/memstore"
)

// FlowOptions compose the gate with an optional transcript lookup.
type FlowOptions struct {
	Gate       GateInputs
	Thresholds GateThresholds

	Topic          string
	LookupApproved bool
	Lookup         LookupOptions
}

// FlowResponse is the combined gate-flow payload.
type FlowResponse struct {
	Decision        string          `json:"decision"`
	Gate            GateDecision    `json:"gate"`
	LookupPerformed bool            `json:"lookup_performed"`
	Lookup          *LookupResponse `json:"lookup"`
	MessageToUser   string          `json:"message_to_user"`
}

// Flow evaluates the gate and, when a lookup is requested, approved, and
// given a topic, performs it. An approved lookup without a topic is a
// config error.
func Flow(ws *memstore.Workspace, opts FlowOptions) (*FlowResponse, error) {
	gate := EvaluateGate(opts.Gate, opts.Thresholds)

	resp := &FlowResponse{
		Decision: gate.Action,
		Gate:     gate,
	}
	if gate.Action == ActionRespondNormally {
		return resp, nil
	}

	resp.Decision = ActionPartialAskLookup
	resp.MessageToUser = gate.SuggestedPrompt
	if !opts.LookupApproved {
		return resp, nil
	}

	topic := strings.TrimSpace(opts.Topic)
	if topic == "" {
		return nil, fmt.Errorf("topic is required when lookup is approved")
	}

	lookupOpts := opts.Lookup
	lookupOpts.Topic = topic
	lookup, err := Lookup(ws, lookupOpts)
	if err != nil {
		return nil, err
	}
	resp.Decision = ActionLookupPerformed
	resp.LookupPerformed = true
	resp.Lookup = lookup
	resp.MessageToUser = ""
	return resp, nil
}
