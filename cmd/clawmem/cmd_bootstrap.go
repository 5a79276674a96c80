package main

import (
	"time"

	"github.com/spf13/cobra"

	"clawmem/internal/profile"
)

var (
	bootstrapStateFile  string
	bootstrapQmdCommand string
	bootstrapQmdTimeout int
	bootstrapForce      bool
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Select the similarity backend once and record the choice",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, cfg, err := openWorkspace()
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("qmd-command") {
			bootstrapQmdCommand = cfg.Oracle.Command
		}

		res, err := profile.Run(ws, profile.Options{
			StateFile:  bootstrapStateFile,
			QmdCommand: bootstrapQmdCommand,
			QmdTimeout: time.Duration(bootstrapQmdTimeout) * time.Second,
			Force:      bootstrapForce,
			DryRun:     dryRun,
		})
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

func init() {
	bootstrapCmd.Flags().StringVar(&bootstrapStateFile, "state-file", "memory/state/profile-bootstrap.json", "workspace-relative bootstrap state file")
	bootstrapCmd.Flags().StringVar(&bootstrapQmdCommand, "qmd-command", "qmd", "command used for qmd detection")
	bootstrapCmd.Flags().IntVar(&bootstrapQmdTimeout, "qmd-timeout-seconds", 4, "qmd detection timeout")
	bootstrapCmd.Flags().BoolVar(&bootstrapForce, "force", false, "re-run bootstrap even if state exists")
}
