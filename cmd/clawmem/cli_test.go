package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRegistration(t *testing.T) {
	expected := []string{
		"extract", "score", "consolidate", "drift", "promote",
		"recall", "gate", "gate-flow", "lookup", "bootstrap",
	}
	registered := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		registered[cmd.Name()] = true
	}
	for _, name := range expected {
		assert.True(t, registered[name], "missing command %s", name)
	}
}

func TestGlobalFlags(t *testing.T) {
	for _, name := range []string{"workspace", "dry-run", "verbose"} {
		require.NotNil(t, rootCmd.PersistentFlags().Lookup(name), name)
	}
}

func TestJobFlagSurface(t *testing.T) {
	assert.NotNil(t, consolidateCmd.Flags().Lookup("transcript-root"))
	assert.NotNil(t, consolidateCmd.Flags().Lookup("acknowledge-transcript-risk"))
	assert.NotNil(t, scoreCmd.Flags().Lookup("max-updates"))
	assert.NotNil(t, driftCmd.Flags().Lookup("max-candidates"))
	assert.NotNil(t, promoteCmd.Flags().Lookup("max-groups"))
	assert.NotNil(t, gateCmd.Flags().Lookup("avg-similarity"))
	assert.NotNil(t, lookupCmd.Flags().Lookup("max-excerpts"))
}
