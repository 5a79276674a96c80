// Package main implements the clawmem CLI - the memory governance engine
// for a long-running conversational agent.
//
// This file serves as the entry point and command registration hub. The
// command implementations are split across cmd_*.go files:
//
//   - cmd_extract.go     - extractCmd (hourly episodic -> semantic)
//   - cmd_score.go       - scoreCmd (bounded importance re-scoring)
//   - cmd_consolidate.go - consolidateCmd (daily dedup, prune, mirror)
//   - cmd_drift.go       - driftCmd (weekly contradiction review)
//   - cmd_promote.go     - promoteCmd (weekly identity promotion)
//   - cmd_recall.go      - recallCmd (layered recall)
//   - cmd_gate.go        - gateCmd, gateFlowCmd (confidence gate)
//   - cmd_lookup.go      - lookupCmd (transcript lookup)
//   - cmd_bootstrap.go   - bootstrapCmd (backend profile selection)
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"clawmem/internal/config"
	"clawmem/internal/lockfile"
	"clawmem/internal/logging"
	"clawmem/internal/memstore"
)

var (
	// Global flags
	workspacePath string
	verbose       bool
	dryRun        bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "clawmem",
	Short: "clawmem - personal memory governance engine",
	Long: `clawmem governs the layered memory store of a long-running agent.

Episodic observations are distilled into semantic facts, contradictions are
detected and retired, durable facts are promoted into the identity layer,
and recall is confidence-gated with a redacted transcript fallback.

Cadence jobs (extract, score, consolidate, drift, promote) are short-lived
processes meant to be run from cron; they serialize on a per-workspace
advisory lock and exit 0 with skipped=lock_held when another writer holds
it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspacePath
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&workspacePath, "workspace", ".", "workspace root directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose diagnostics on stderr")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "report without writing any files")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(driftCmd)
	rootCmd.AddCommand(promoteCmd)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(gateCmd)
	rootCmd.AddCommand(gateFlowCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(bootstrapCmd)
}

// openWorkspace resolves the workspace, ensures its layout, and loads the
// workspace config.
func openWorkspace() (*memstore.Workspace, *config.Config, error) {
	ws, err := memstore.Open(workspacePath)
	if err != nil {
		return nil, nil, err
	}
	if err := ws.EnsureLayout(); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(ws.Root)
	if err != nil {
		return nil, nil, err
	}
	return ws, cfg, nil
}

// runLocked runs a cadence job body under the workspace cadence lock. When
// the lock is held elsewhere the job prints its skip line and exits 0.
func runLocked(jobName string, ws *memstore.Workspace, body func() error) error {
	guard, acquired, err := lockfile.Acquire(ws.LockPath())
	if err != nil {
		return err
	}
	if !acquired {
		fmt.Printf("%s skipped=lock_held\n", jobName)
		return nil
	}
	defer guard.Release()
	return body()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
