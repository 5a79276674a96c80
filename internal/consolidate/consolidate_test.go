package consolidate

import (
	"fmt"
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

func semEntry(id string, importance float64, status, body string, ts time.Time) *memstore.Entry {
	entry := memstore.NewEntry(id)
	entry.Meta["time"] = memstore.FormatTime(ts)
	entry.Meta["layer"] = "semantic"
	entry.Meta["importance"] = fmt.Sprintf("%.2f", importance)
	entry.Meta["confidence"] = "0.70"
	entry.Meta["status"] = status
	entry.Meta["source"] = "agent"
	entry.Meta["tags"] = "[]"
	entry.Meta["supersedes"] = "none"
	entry.Body = body
	return entry
}

func defaultOptions(now time.Time) Options {
	return Options{
		EpisodicRetentionDays:   45,
		TranscriptRetentionDays: 7,
		TranscriptRoot:          "archive/transcripts",
		TranscriptMode:          "sanitized",
		Now:                     now,
	}
}

func TestDedupSemanticKeepsHighestImportance(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)

	// Three entries, two sharing a canonical body.
	winner := semEntry("dd0001aaaa01", 0.90, "active", "User prefers dark mode.", now)
	loser := semEntry("dd0002aaaa02", 0.40, "active", "user prefers DARK mode!!", now)
	loser.SetSupersedes("ancient01")
	other := semEntry("dd0003aaaa03", 0.50, "active", "Unrelated distinct fact.", now)
	path := ws.SemanticFile(now)
	require.NoError(t, memstore.SaveFile(path, "", []*memstore.Entry{winner, loser, other}))

	res, err := Run(ws, defaultOptions(now))
	require.NoError(t, err)

	// Removed exactly input_count - distinct_canonical_body_count.
	assert.Equal(t, 1, res.SemanticDeduped)

	_, entries, err := memstore.ParseFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "dd0001aaaa01", entries[0].ID)
	// Winner inherits the loser's supersedes pointer.
	assert.Equal(t, "ancient01", entries[0].Supersedes())
}

func TestDedupTieBreaksByStatusRank(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)

	historical := semEntry("dd1001bbbb01", 0.80, "historical", "Same canonical body here.", now)
	active := semEntry("dd1002bbbb02", 0.80, "active", "Same canonical body here.", now)
	path := ws.SemanticFile(now)
	require.NoError(t, memstore.SaveFile(path, "", []*memstore.Entry{historical, active}))

	_, err := Run(ws, defaultOptions(now))
	require.NoError(t, err)

	_, entries, err := memstore.ParseFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dd1002bbbb02", entries[0].ID)
}

func TestPruneEpisodicRetention(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)

	oldDay := now.AddDate(0, 0, -50)
	keepDay := now.AddDate(0, 0, -10)
	require.NoError(t, memstore.SaveFile(ws.EpisodicFile(oldDay), "", []*memstore.Entry{
		semEntry("pr0001cccc01", 0.5, "active", "old observation", oldDay)}))
	require.NoError(t, memstore.SaveFile(ws.EpisodicFile(keepDay), "", []*memstore.Entry{
		semEntry("pr0002cccc02", 0.5, "active", "recent observation", keepDay)}))

	res, err := Run(ws, defaultOptions(now))
	require.NoError(t, err)
	assert.Equal(t, 1, res.EpisodicPruned)

	_, err = os.Stat(ws.EpisodicFile(oldDay))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(ws.EpisodicFile(keepDay))
	assert.NoError(t, err)
}

func TestExpirySweepDateOnly(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)

	expired := semEntry("ex0001dddd01", 0.9, "active", "Expired decision.", now)
	expired.Meta["valid_until"] = "2025-11-01"
	// Same-day timestamps must not expire: comparison is date-only.
	today := semEntry("ex0002dddd02", 0.9, "active", "Expires today, still valid.", now)
	today.Meta["valid_until"] = "2025-11-02T00:30:00Z"
	open := semEntry("ex0003dddd03", 0.9, "active", "No expiry.", now)
	open.Meta["valid_until"] = "none"
	path := ws.SemanticFile(now)
	require.NoError(t, memstore.SaveFile(path, "", []*memstore.Entry{expired, today, open}))

	res, err := Run(ws, defaultOptions(now))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpiredSemantic)
	assert.Equal(t, 0, res.ExpiredEpisodic)

	_, entries, err := memstore.ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, memstore.StatusHistorical, entries[0].Status())
	assert.Equal(t, memstore.StatusActive, entries[1].Status())
	assert.Equal(t, memstore.StatusActive, entries[2].Status())
}

func TestMirrorRedactsSessionEvents(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)

	sessionsDir := filepath.Join(ws.Root, "sessions")
	require.NoError(t, os.MkdirAll(sessionsDir, 0o755))
	lines := `{"timestamp": "2025-11-02T08:00:00Z", "role": "user", "content": "token=supersecretvalue and api_key=sk-ABCDEF1234567890ZXCV"}
{"timestamp": "2025-11-02T08:01:00Z", "role": "assistant", "content": "Understood."}
{"timestamp": "2025-11-02T08:02:00Z", "role": "assistant", "content": ""}
`
	require.NoError(t, os.WriteFile(filepath.Join(sessionsDir, "session-a.jsonl"), []byte(lines), 0o644))

	opts := defaultOptions(now)
	opts.SessionsDir = sessionsDir
	res, err := Run(ws, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TranscriptsWritten)

	mirrorPath := filepath.Join(res.TranscriptRoot, "2025-11-02.md")
	data, err := os.ReadFile(mirrorPath)
	require.NoError(t, err)
	content := string(data)
	assert.NotContains(t, content, "supersecretvalue")
	assert.NotContains(t, content, "sk-ABCDEF1234567890ZXCV")
	assert.Contains(t, content, "<REDACTED>")
	assert.Contains(t, content, "## 08:00:00 - user (session-a.jsonl)")
	assert.Contains(t, content, "Understood.")

	info, err := os.Stat(mirrorPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	dirInfo, err := os.Stat(res.TranscriptRoot)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())
}

func TestMirrorRotation(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)
	root := ws.ResolveTranscriptRoot("archive/transcripts")

	stale := filepath.Join(root, now.AddDate(0, 0, -30).Format("2006-01-02")+".md")
	fresh := filepath.Join(root, now.Format("2006-01-02")+".md")
	require.NoError(t, os.WriteFile(stale, []byte("# old\n"), 0o600))
	require.NoError(t, os.WriteFile(fresh, []byte("# fresh\n"), 0o600))

	res, err := Run(ws, defaultOptions(now))
	require.NoError(t, err)
	assert.Equal(t, 1, res.TranscriptsRemoved)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

func TestValidateRefusesExternalRoot(t *testing.T) {
	ws := newWorkspace(t)
	opts := defaultOptions(time.Now().UTC())
	opts.TranscriptRoot = "/tmp/clawmem-external-transcripts"

	_, err := opts.Validate(ws)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside workspace")
}

func TestValidateRefusesRootUnderMemory(t *testing.T) {
	ws := newWorkspace(t)
	opts := defaultOptions(time.Now().UTC())
	opts.TranscriptRoot = "memory/transcripts"

	_, err := opts.Validate(ws)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "under memory/")
}

func TestValidateRequiresAcknowledgmentForRiskyOptions(t *testing.T) {
	ws := newWorkspace(t)
	opts := defaultOptions(time.Now().UTC())
	opts.TranscriptMode = "full"

	_, err := opts.Validate(ws)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acknowledgment")

	opts.AcknowledgeRisk = true
	_, err = opts.Validate(ws)
	assert.NoError(t, err)
}

func TestLegacyMigration(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)

	legacyDir := filepath.Join(ws.Root, "memory", "transcripts")
	require.NoError(t, os.MkdirAll(legacyDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(legacyDir, now.Format("2006-01-02")+".md"), []byte("# legacy\n"), 0o600))

	res, err := Run(ws, defaultOptions(now))
	require.NoError(t, err)
	assert.Equal(t, 1, res.LegacyMigrated)
	assert.Equal(t, 0, res.LegacyConflicts)

	_, err = os.Stat(filepath.Join(res.TranscriptRoot, now.Format("2006-01-02")+".md"))
	assert.NoError(t, err)
}

func TestLegacyMigrationConflict(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)
	root := ws.ResolveTranscriptRoot("archive/transcripts")

	legacyDir := filepath.Join(ws.Root, "memory", "transcripts")
	require.NoError(t, os.MkdirAll(legacyDir, 0o755))
	legacyFile := filepath.Join(legacyDir, "2025-10-01.md")
	require.NoError(t, os.WriteFile(legacyFile, []byte("# legacy\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, now.Format("2006-01-02")+".md"), []byte("# existing\n"), 0o600))

	res, err := Run(ws, defaultOptions(now))
	require.NoError(t, err)
	assert.Equal(t, 0, res.LegacyMigrated)
	assert.Equal(t, 1, res.LegacyConflicts)
	_, err = os.Stat(legacyFile)
	assert.NoError(t, err)
}

func TestRunIdempotent(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)
	path := ws.SemanticFile(now)
	require.NoError(t, memstore.SaveFile(path, "", []*memstore.Entry{
		semEntry("id0001eeee01", 0.9, "active", "Duplicate body.", now),
		semEntry("id0002eeee02", 0.4, "active", "Duplicate body.", now),
	}))

	first, err := Run(ws, defaultOptions(now))
	require.NoError(t, err)
	assert.Equal(t, 1, first.SemanticDeduped)

	second, err := Run(ws, defaultOptions(now))
	require.NoError(t, err)
	assert.Equal(t, 0, second.SemanticDeduped)
	assert.Equal(t, 0, second.EpisodicPruned)
	assert.Equal(t, 0, second.ExpiredSemantic)
}
