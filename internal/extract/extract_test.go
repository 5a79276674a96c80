package extract

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawmem/internal/memstore"
)

func seedEpisodic(t *testing.T, ws *memstore.Workspace, day time.Time, entries []*memstore.Entry) {
	t.Helper()
	require.NoError(t, memstore.SaveFile(ws.EpisodicFile(day), "", entries))
}

func makeEntry(id string, importance float64, tags []string, body string, ts time.Time) *memstore.Entry {
	entry := memstore.NewEntry(id)
	entry.Meta["time"] = memstore.FormatTime(ts)
	entry.Meta["layer"] = "episodic"
	entry.Meta["importance"] = fmt.Sprintf("%.2f", importance)
	entry.Meta["confidence"] = "0.70"
	entry.Meta["status"] = "active"
	entry.Meta["source"] = "agent"
	entry.SetTags(tags)
	entry.Meta["supersedes"] = "none"
	entry.Body = body
	return entry
}

func newWorkspace(t *testing.T) *memstore.Workspace {
	t.Helper()
	ws, err := memstore.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, ws.EnsureLayout())
	return ws
}

func TestRunPromotesAboveThreshold(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)

	high := makeEntry("epi0001high1", 0.82, []string{"project"},
		"User prefers local-first architecture for OpenClaw memory.", now.Add(-2*time.Hour))
	low := makeEntry("epi0002low22", 0.20, []string{"misc"}, "Low importance aside.", now.Add(-1*time.Hour))
	seedEpisodic(t, ws, now, []*memstore.Entry{high, low})

	res, err := Run(ws, Options{LookbackHours: 24, Threshold: 0.70, Now: now})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Promoted)

	_, semantic, err := memstore.ParseFile(ws.SemanticFile(now))
	require.NoError(t, err)
	require.Len(t, semantic, 1)

	derived := semantic[0]
	assert.True(t, strings.HasPrefix(derived.Body, "Derived from mem:epi0001high1. User prefers local-first"), derived.Body)
	assert.Equal(t, "epi0001high1", derived.Meta["origin_id"])
	assert.Equal(t, SourceTag, derived.Meta["source"])
	assert.Equal(t, "0.82", derived.Meta["importance"])
	assert.Equal(t, []string{"project"}, derived.Tags())
	assert.Equal(t, memstore.LayerSemantic, derived.Layer())
}

func TestRunIdempotent(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)
	seedEpisodic(t, ws, now, []*memstore.Entry{
		makeEntry("epi0003repeat", 0.90, []string{"project"}, "Repeated high-importance fact.", now),
	})

	opts := Options{LookbackHours: 24, Threshold: 0.70, Now: now}
	first, err := Run(ws, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Promoted)

	second, err := Run(ws, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Promoted)

	_, semantic, err := memstore.ParseFile(ws.SemanticFile(now))
	require.NoError(t, err)
	assert.Len(t, semantic, 1)
}

func TestRunFloorsImportanceAtThreshold(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)
	seedEpisodic(t, ws, now, []*memstore.Entry{
		makeEntry("epi0004exact", 0.70, nil, "Exactly at the threshold.", now),
	})

	_, err := Run(ws, Options{LookbackHours: 24, Threshold: 0.70, Now: now})
	require.NoError(t, err)

	_, semantic, err := memstore.ParseFile(ws.SemanticFile(now))
	require.NoError(t, err)
	require.Len(t, semantic, 1)
	assert.Equal(t, "0.70", semantic[0].Meta["importance"])
}

func TestRunDryRunWritesNothing(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)
	seedEpisodic(t, ws, now, []*memstore.Entry{
		makeEntry("epi0005dry00", 0.95, nil, "Would be promoted.", now),
	})

	res, err := Run(ws, Options{LookbackHours: 24, Threshold: 0.70, DryRun: true, Now: now})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Promoted)

	_, semantic, err := memstore.ParseFile(ws.SemanticFile(now))
	require.NoError(t, err)
	assert.Empty(t, semantic)
}

func TestSummarizeTruncates(t *testing.T) {
	assert.Equal(t, "short body", Summarize("  short   body "))

	long := strings.Repeat("word ", 100)
	got := Summarize(long)
	assert.LessOrEqual(t, len(got), 280)
	assert.True(t, strings.HasSuffix(got, "..."))
}
