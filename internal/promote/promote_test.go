package promote

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawmem/internal/memstore"
	"clawmem/internal/scoring"
)

func newWorkspace(t *testing.T) *memstore.Workspace {
	t.Helper()
	ws, err := memstore.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, ws.EnsureLayout())
	return ws
}

func semEntry(id string, importance float64, body string, ts time.Time, tags ...string) *memstore.Entry {
	entry := memstore.NewEntry(id)
	entry.Meta["time"] = memstore.FormatTime(ts)
	entry.Meta["layer"] = "semantic"
	entry.Meta["importance"] = fmt.Sprintf("%.2f", importance)
	entry.Meta["confidence"] = "0.75"
	entry.Meta["status"] = "active"
	entry.Meta["source"] = "agent"
	entry.SetTags(tags)
	entry.Meta["supersedes"] = "none"
	entry.Body = body
	return entry
}

func defaultOptions(now time.Time) Options {
	return Options{
		WindowDays:      30,
		MinImportance:   0.85,
		MinRecurrence:   3,
		MinDistinctDays: 2,
		MinAgeDays:      5,
		MaxGroups:       400,
		Aliases:         scoring.LoadAliases(""),
		Now:             now,
	}
}

// The literal promotion scenario: three recurrences across three days land
// one entry in preferences.md.
func TestRunPromotesRecurringPreference(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)
	body := "User prefers concise status updates for memory review."

	first := semEntry("pm0001aaaa01", 0.92, body, now.AddDate(0, 0, -12), "preference")
	second := semEntry("pm0002aaaa02", 0.92, body, now.AddDate(0, 0, -8), "preference")
	third := semEntry("pm0003aaaa03", 0.92, body, now.AddDate(0, 0, -4), "preference")
	require.NoError(t, memstore.SaveFile(ws.SemanticFile(now), "", []*memstore.Entry{first, second, third}))

	res, err := Run(ws, defaultOptions(now))
	require.NoError(t, err)
	assert.Equal(t, 1, res.PromotedPreferences)
	assert.Equal(t, 0, res.PromotedIdentity)
	assert.Equal(t, 0, res.PromotedDecisions)

	_, prefs, err := memstore.ParseFile(ws.IdentityFile("preferences"))
	require.NoError(t, err)
	require.Len(t, prefs, 1)
	promoted := prefs[0]
	assert.Equal(t, "3", promoted.Meta["recurrence"])
	assert.NotEqual(t, "transient", promoted.Meta["durability"])
	assert.Equal(t, "pm0001aaaa01", promoted.Meta["origin_id"])
	assert.Equal(t, memstore.LayerIdentity, promoted.Layer())
	assert.Equal(t, SourceTag, promoted.Meta["source"])
	assert.Equal(t, body, promoted.Body)
}

func TestRunSkipsExpiredCandidate(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)
	body := "Adopt the new deployment pipeline for all services."

	var entries []*memstore.Entry
	for i := 0; i < 3; i++ {
		entry := semEntry(fmt.Sprintf("pm10%02dbbbb", i), 0.92, body, now.AddDate(0, 0, -12+i*3), "decision")
		entry.Meta["valid_until"] = now.AddDate(0, 0, -1).Format("2006-01-02")
		entries = append(entries, entry)
	}
	require.NoError(t, memstore.SaveFile(ws.SemanticFile(now), "", entries))

	res, err := Run(ws, defaultOptions(now))
	require.NoError(t, err)
	assert.Equal(t, 0, res.PromotedDecisions)
	assert.Equal(t, 1, res.SkippedExpired)
}

func TestRunSkipsDuplicateByBodyOrOrigin(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)
	body := "User prefers dark themes in every editor."

	existing := semEntry("pm2000cccc00", 0.95, body, now.AddDate(0, 0, -40), "preference")
	existing.Meta["layer"] = "identity"
	require.NoError(t, memstore.SaveFile(ws.IdentityFile("preferences"), "", []*memstore.Entry{existing}))

	var entries []*memstore.Entry
	for i := 0; i < 3; i++ {
		entries = append(entries, semEntry(fmt.Sprintf("pm20%02dcccc", i+1), 0.92, body, now.AddDate(0, 0, -10+i*2), "preference"))
	}
	require.NoError(t, memstore.SaveFile(ws.SemanticFile(now), "", entries))

	res, err := Run(ws, defaultOptions(now))
	require.NoError(t, err)
	assert.Equal(t, 0, res.PromotedPreferences)
	assert.Equal(t, 1, res.SkippedDuplicate)

	// Identity invariant: still one entry for that canonical body.
	_, prefs, err := memstore.ParseFile(ws.IdentityFile("preferences"))
	require.NoError(t, err)
	assert.Len(t, prefs, 1)
}

func TestRunRoutesDecisionTags(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)
	body := "All storage goes through the new consolidation layer."

	var entries []*memstore.Entry
	for i := 0; i < 3; i++ {
		entries = append(entries, semEntry(fmt.Sprintf("pm30%02ddddd", i), 0.92, body, now.AddDate(0, 0, -12+i*3), "architecture"))
	}
	require.NoError(t, memstore.SaveFile(ws.SemanticFile(now), "", entries))

	res, err := Run(ws, defaultOptions(now))
	require.NoError(t, err)
	assert.Equal(t, 1, res.PromotedDecisions)

	_, decisions, err := memstore.ParseFile(ws.IdentityFile("decisions"))
	require.NoError(t, err)
	assert.Len(t, decisions, 1)
}

func TestRunSkipsGroupsBelowThresholds(t *testing.T) {
	ws := newWorkspace(t)
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)

	// Recurrence 2 < 3.
	few := []*memstore.Entry{
		semEntry("pm4001eeee01", 0.92, "Recurs only twice.", now.AddDate(0, 0, -10), "preference"),
		semEntry("pm4002eeee02", 0.92, "Recurs only twice.", now.AddDate(0, 0, -8), "preference"),
	}
	// Importance below the floor.
	weak := []*memstore.Entry{
		semEntry("pm4003eeee03", 0.50, "Weak recurring fact.", now.AddDate(0, 0, -10), "preference"),
		semEntry("pm4004eeee04", 0.50, "Weak recurring fact.", now.AddDate(0, 0, -8), "preference"),
		semEntry("pm4005eeee05", 0.50, "Weak recurring fact.", now.AddDate(0, 0, -6), "preference"),
	}
	// All on one day.
	sameDay := []*memstore.Entry{
		semEntry("pm4006eeee06", 0.92, "Single day burst of a fact.", now.AddDate(0, 0, -10).Add(1*time.Hour), "preference"),
		semEntry("pm4007eeee07", 0.92, "Single day burst of a fact.", now.AddDate(0, 0, -10).Add(2*time.Hour), "preference"),
		semEntry("pm4008eeee08", 0.92, "Single day burst of a fact.", now.AddDate(0, 0, -10).Add(3*time.Hour), "preference"),
	}
	// Too young.
	young := []*memstore.Entry{
		semEntry("pm4009eeee09", 0.92, "Very recent recurring fact.", now.AddDate(0, 0, -3), "preference"),
		semEntry("pm4010eeee10", 0.92, "Very recent recurring fact.", now.AddDate(0, 0, -2), "preference"),
		semEntry("pm4011eeee11", 0.92, "Very recent recurring fact.", now.AddDate(0, 0, -1), "preference"),
	}
	// Transient durability (no durable tags, no utility vocabulary).
	transient := []*memstore.Entry{
		semEntry("pm4012eeee12", 0.92, "Fleeting observation body.", now.AddDate(0, 0, -10)),
		semEntry("pm4013eeee13", 0.92, "Fleeting observation body.", now.AddDate(0, 0, -8)),
		semEntry("pm4014eeee14", 0.92, "Fleeting observation body.", now.AddDate(0, 0, -6)),
	}

	all := append(append(append(append(few, weak...), sameDay...), young...), transient...)
	require.NoError(t, memstore.SaveFile(ws.SemanticFile(now), "", all))

	res, err := Run(ws, defaultOptions(now))
	require.NoError(t, err)
	assert.Equal(t, 0, res.PromotedIdentity+res.PromotedPreferences+res.PromotedDecisions)
	assert.Equal(t, 2, res.SkippedThreshold) // few + weak
	assert.Equal(t, 1, res.SkippedRecurrenceShape)
	assert.Equal(t, 1, res.SkippedYoung)
	assert.Equal(t, 1, res.SkippedDurability)
}

func TestStripDerivedPrefix(t *testing.T) {
	assert.Equal(t, "User prefers X.", StripDerivedPrefix("Derived from mem:abc123. User prefers X."))
	assert.Equal(t, "Plain body.", StripDerivedPrefix("Plain body."))
}

// Derived semantic entries group with their plain-bodied duplicates.
func TestConceptKeyStripsDerivedPrefix(t *testing.T) {
	aliases := scoring.LoadAliases("")
	plain := semEntry("pm5001ffff01", 0.9, "User prefers X.", time.Now().UTC(), "preference")
	derived := semEntry("pm5002ffff02", 0.9, "Derived from mem:abc123. User prefers X.", time.Now().UTC(), "preference")
	assert.Equal(t, ConceptKey(plain, aliases), ConceptKey(derived, aliases))
}

// Randomized groups must satisfy every threshold simultaneously to promote.
func TestRunRandomizedThresholds(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	now := time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC)

	for trial := 0; trial < 10; trial++ {
		ws := newWorkspace(t)
		recurrence := 1 + rng.Intn(5)
		importance := 0.5 + rng.Float64()*0.5
		spreadDays := 1 + rng.Intn(4)
		ageDays := 1 + rng.Intn(20)

		body := fmt.Sprintf("Randomized concept %d body text.", trial)
		var entries []*memstore.Entry
		for i := 0; i < recurrence; i++ {
			day := ageDays - (i*spreadDays)/max(recurrence-1, 1)
			if day < 0 {
				day = 0
			}
			entries = append(entries, semEntry(
				fmt.Sprintf("pm9%03d%02dgggg", trial, i)[:12], importance, body,
				now.AddDate(0, 0, -day), "preference"))
		}
		require.NoError(t, memstore.SaveFile(ws.SemanticFile(now), "", entries))

		res, err := Run(ws, defaultOptions(now))
		require.NoError(t, err)

		distinct := make(map[string]bool)
		earliest := now
		for _, e := range entries {
			ts, _ := e.Time()
			distinct[ts.Format("2006-01-02")] = true
			if ts.Before(earliest) {
				earliest = ts
			}
		}
		qualifies := recurrence >= 3 &&
			importance >= 0.85 &&
			len(distinct) >= 2 &&
			now.Sub(earliest) >= 5*24*time.Hour

		promoted := res.PromotedIdentity + res.PromotedPreferences + res.PromotedDecisions
		if qualifies {
			assert.Equal(t, 1, promoted, "trial %d should promote", trial)
		} else {
			assert.Equal(t, 0, promoted, "trial %d should not promote", trial)
		}
	}
}
