package profile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawmem/internal/memstore"
)

func newWorkspace(t *testing.T) *memstore.Workspace {
	t.Helper()
	ws, err := memstore.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, ws.EnsureLayout())
	return ws
}

func TestRunSelectsBuiltinWhenQmdMissing(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)

	res, err := Run(ws, Options{
		QmdCommand: "definitely-not-a-real-binary-qmd",
		QmdTimeout: 2 * time.Second,
		Now:        now,
	})
	require.NoError(t, err)
	assert.Equal(t, "applied", res.Status)
	require.NotNil(t, res.State)
	assert.Equal(t, BackendBuiltin, res.State.SelectedBackend)
	assert.False(t, res.State.QmdDetected)
	assert.Equal(t, "binary_not_found", res.State.QmdDetectionReason)

	data, err := os.ReadFile(filepath.Join(ws.Root, "memory", "state", "profile-bootstrap.json"))
	require.NoError(t, err)
	var state State
	require.NoError(t, json.Unmarshal(data, &state))
	assert.Equal(t, memstore.FormatTime(now), state.BootstrappedAt)
}

func TestRunSkipsWhenAlreadyBootstrapped(t *testing.T) {
	ws := newWorkspace(t)
	opts := Options{QmdCommand: "definitely-not-a-real-binary-qmd", QmdTimeout: 2 * time.Second}

	first, err := Run(ws, opts)
	require.NoError(t, err)
	assert.Equal(t, "applied", first.Status)

	second, err := Run(ws, opts)
	require.NoError(t, err)
	assert.Equal(t, "skipped", second.Status)
	assert.Equal(t, "already_bootstrapped", second.Reason)

	opts.Force = true
	third, err := Run(ws, opts)
	require.NoError(t, err)
	assert.Equal(t, "applied", third.Status)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	ws := newWorkspace(t)
	res, err := Run(ws, Options{
		QmdCommand: "definitely-not-a-real-binary-qmd",
		QmdTimeout: 2 * time.Second,
		DryRun:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "applied", res.Status)

	_, err = os.Stat(filepath.Join(ws.Root, "memory", "state", "profile-bootstrap.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunRejectsStateFileOutsideWorkspace(t *testing.T) {
	ws := newWorkspace(t)
	_, err := Run(ws, Options{StateFile: "/tmp/clawmem-bootstrap-state.json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside workspace")
}

func TestDetectQmdMissingBinary(t *testing.T) {
	detected, reason := DetectQmd("clawmem-binary-that-does-not-exist", time.Second)
	assert.False(t, detected)
	assert.Equal(t, "binary_not_found", reason)
}
