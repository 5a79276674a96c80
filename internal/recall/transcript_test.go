package recall

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMirrorDay(t *testing.T, root, date, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(root, 0o700))
	path := filepath.Join(root, date+".md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func defaultLookupOptions(topic string, now time.Time) LookupOptions {
	return LookupOptions{
		TranscriptRoot:     "archive/transcripts",
		Topic:              topic,
		LastNDays:          7,
		MaxExcerpts:        5,
		MaxCharsPerExcerpt: 1200,
		Now:                now,
	}
}

const mirrorDayContent = `# 2025-11-02

## 08:00:00 - user (session-a.jsonl)
Asked about the governance deployment rollout plan.

## 09:00:00 - assistant (session-a.jsonl)
Unrelated smalltalk section.

## 10:00:00 - user (session-a.jsonl)
Deployment blocked; governance rollout deferred to next week.
`

func TestLookupScoresSections(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)
	root := ws.ResolveTranscriptRoot("archive/transcripts")
	writeMirrorDay(t, root, "2025-11-02", mirrorDayContent)

	resp, err := Lookup(ws, defaultLookupOptions("governance rollout deployment", now))
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	// Both matching sections score 3; order then falls back to date.
	assert.Equal(t, 3, resp.Results[0].Score)
	assert.Equal(t, "2025-11-02", resp.Results[0].Date)
	assert.Equal(t, filepath.Join("archive", "transcripts", "2025-11-02.md"), resp.Results[0].SourceRef)
}

func TestLookupWindowAndCaps(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)
	root := ws.ResolveTranscriptRoot("archive/transcripts")
	writeMirrorDay(t, root, "2025-11-02", mirrorDayContent)
	writeMirrorDay(t, root, "2025-10-01", mirrorDayContent) // outside the 7-day window

	opts := defaultLookupOptions("governance", now)
	opts.MaxExcerpts = 1
	resp, err := Lookup(ws, opts)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
	assert.Equal(t, "2025-11-02", resp.Results[0].Date)
}

func TestLookupTruncatesAndRedacts(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)
	root := ws.ResolveTranscriptRoot("archive/transcripts")
	writeMirrorDay(t, root, "2025-11-02", `# 2025-11-02

## 08:00:00 - user (session-a.jsonl)
The rollout used api_key=sk-ABCDEF1234567890ZXCV during testing of the rollout procedure.
`)

	opts := defaultLookupOptions("rollout", now)
	opts.MaxCharsPerExcerpt = 60
	resp, err := Lookup(ws, opts)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.LessOrEqual(t, len(resp.Results[0].Excerpt), 60+len("<REDACTED>"))
	assert.NotContains(t, resp.Results[0].Excerpt, "sk-ABCDEF1234567890ZXCV")
}

func TestLookupSkipsSymlinks(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)
	root := ws.ResolveTranscriptRoot("archive/transcripts")
	require.NoError(t, os.MkdirAll(root, 0o700))

	outside := filepath.Join(t.TempDir(), "2025-11-02.md")
	require.NoError(t, os.WriteFile(outside, []byte(mirrorDayContent), 0o600))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "2025-11-02.md")))

	resp, err := Lookup(ws, defaultLookupOptions("governance", now))
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestLookupRefusesExternalRoot(t *testing.T) {
	ws := newWorkspace(t)
	opts := defaultLookupOptions("governance", time.Now().UTC())
	opts.TranscriptRoot = "/tmp/clawmem-lookup-external"
	_, err := Lookup(ws, opts)
	require.Error(t, err)

	opts.AllowExternalRoot = true
	_, err = Lookup(ws, opts)
	assert.NoError(t, err)
}

func TestFlowRespondNormally(t *testing.T) {
	ws := newWorkspace(t)
	resp, err := Flow(ws, FlowOptions{
		Gate:       GateInputs{AvgSimilarity: 0.9, ResultCount: 10, RetrievalConfidence: 0.9},
		Thresholds: defaultThresholds(),
	})
	require.NoError(t, err)
	assert.Equal(t, ActionRespondNormally, resp.Decision)
	assert.False(t, resp.LookupPerformed)
}

func TestFlowAsksBeforeLookup(t *testing.T) {
	ws := newWorkspace(t)
	resp, err := Flow(ws, FlowOptions{
		Gate:       GateInputs{AvgSimilarity: 0.2, ResultCount: 1, RetrievalConfidence: -1},
		Thresholds: defaultThresholds(),
	})
	require.NoError(t, err)
	assert.Equal(t, ActionPartialAskLookup, resp.Decision)
	assert.Equal(t, LookupPrompt, resp.MessageToUser)
	assert.False(t, resp.LookupPerformed)
}

func TestFlowPerformsApprovedLookup(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)
	root := ws.ResolveTranscriptRoot("archive/transcripts")
	writeMirrorDay(t, root, "2025-11-02", mirrorDayContent)

	resp, err := Flow(ws, FlowOptions{
		Gate:           GateInputs{AvgSimilarity: 0.2, ResultCount: 1, RetrievalConfidence: -1},
		Thresholds:     defaultThresholds(),
		Topic:          "governance rollout",
		LookupApproved: true,
		Lookup:         defaultLookupOptions("", now),
	})
	require.NoError(t, err)
	assert.Equal(t, ActionLookupPerformed, resp.Decision)
	assert.True(t, resp.LookupPerformed)
	require.NotNil(t, resp.Lookup)
	assert.NotEmpty(t, resp.Lookup.Results)
	assert.Empty(t, resp.MessageToUser)
}

func TestFlowRequiresTopicWhenApproved(t *testing.T) {
	ws := newWorkspace(t)
	_, err := Flow(ws, FlowOptions{
		Gate:           GateInputs{AvgSimilarity: 0.2, ResultCount: 1, RetrievalConfidence: -1},
		Thresholds:     defaultThresholds(),
		LookupApproved: true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic is required")
}
