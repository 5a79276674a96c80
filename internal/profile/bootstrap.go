// Package profile performs the one-shot memory backend selection: probe for
// the external qmd similarity binary and record which backend the workspace
// should use. The result is persisted so later runs skip the probe.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"clawmem/internal/memstore"
)

// Backends.
const (
	BackendBuiltin = "builtin"
	BackendQmd     = "qmd"
)

// Options bound one bootstrap run.
type Options struct {
	StateFile  string // workspace-relative; must stay under workspace
	QmdCommand string
	QmdTimeout time.Duration
	Force      bool
	DryRun     bool
	Now        time.Time
}

// State mirrors memory/state/profile-bootstrap.json.
type State struct {
	BootstrappedAt     string `json:"bootstrapped_at"`
	SelectedBackend    string `json:"selected_backend"`
	QmdDetected        bool   `json:"qmd_detected"`
	QmdDetectionReason string `json:"qmd_detection_reason"`
}

// Result reports whether the bootstrap ran or was skipped.
type Result struct {
	Status string `json:"status"` // applied | skipped
	Reason string `json:"reason,omitempty"`
	State  *State `json:"state,omitempty"`
}

// Run selects the backend once. An existing state file short-circuits
// unless Force is set.
func Run(ws *memstore.Workspace, opts Options) (*Result, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	stateFile := opts.StateFile
	if stateFile == "" {
		stateFile = "memory/state/profile-bootstrap.json"
	}
	statePath := stateFile
	if !filepath.IsAbs(statePath) {
		statePath = filepath.Join(ws.Root, stateFile)
	}
	if !ws.Contains(statePath) {
		return nil, fmt.Errorf("refusing state file outside workspace: %s", statePath)
	}

	if _, err := os.Stat(statePath); err == nil && !opts.Force {
		return &Result{Status: "skipped", Reason: "already_bootstrapped"}, nil
	}

	detected, reason := DetectQmd(opts.QmdCommand, opts.QmdTimeout)
	backend := BackendBuiltin
	if detected {
		backend = BackendQmd
	}
	state := &State{
		BootstrappedAt:     memstore.FormatTime(now),
		SelectedBackend:    backend,
		QmdDetected:        detected,
		QmdDetectionReason: reason,
	}

	if !opts.DryRun {
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal state: %w", err)
		}
		if err := memstore.WriteFileAtomic(statePath, append(data, '\n'), 0o644); err != nil {
			return nil, err
		}
	}
	return &Result{Status: "applied", State: state}, nil
}

// DetectQmd probes the similarity binary with a bounded version check. The
// reason string carries either the failure class or the reported version.
func DetectQmd(command string, timeout time.Duration) (bool, string) {
	if command == "" {
		command = "qmd"
	}
	resolved, err := exec.LookPath(command)
	if err != nil {
		return false, "binary_not_found"
	}
	if timeout < time.Second {
		timeout = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, resolved, "--version").CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return false, "version_check_timeout"
	}
	if err != nil {
		return false, fmt.Sprintf("version_check_failed:%v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return true, "detected_no_version_output"
	}
	return true, strings.TrimSpace(lines[0])
}
