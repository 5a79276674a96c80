package drift

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"clawmem/internal/memstore"
)

// Relation is the classified relationship between an ordered (newer, older)
// entry pair. Serialization to the canonical uppercase strings happens at
// the log and wire boundaries only.
type Relation int

const (
	RelationUnrelated Relation = iota
	RelationReinforces
	RelationRefines
	RelationSupersedes
)

func (r Relation) String() string {
	switch r {
	case RelationReinforces:
		return "REINFORCES"
	case RelationRefines:
		return "REFINES"
	case RelationSupersedes:
		return "SUPERSEDES"
	default:
		return "UNRELATED"
	}
}

// ParseRelation maps a wire token to a Relation; unknown tokens report
// ok=false and default to UNRELATED.
func ParseRelation(s string) (Relation, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "REINFORCES":
		return RelationReinforces, true
	case "REFINES":
		return RelationRefines, true
	case "SUPERSEDES":
		return RelationSupersedes, true
	case "UNRELATED":
		return RelationUnrelated, true
	}
	return RelationUnrelated, false
}

// Result is a classification outcome. Err is set on transport failures; the
// relation is only meaningful when Err is nil.
type Result struct {
	Relation   Relation
	Confidence float64
	Reasoning  string
	Cached     bool
	Err        error
}

// Classifier maps an ordered (newer, older) pair to a relation. Both the
// model-backed and the heuristic implementation satisfy this contract.
type Classifier interface {
	Classify(ctx context.Context, newer, older *SemanticEntry) Result
}

// SupersedeHints are the phrases whose presence in the newer body signals a
// replacement, paired with a low token-overlap floor.
var SupersedeHints = []string{
	"no longer",
	"replaced",
	"supersede",
	"superseded",
	"instead",
	"changed to",
	"moved from",
	"switched to",
	"switched from",
	"switched",
	"changed",
	"moved",
	"updated",
	"migrated",
	"deprecated",
	"outdated",
	"obsolete",
}

// HeuristicClassifier classifies with token Jaccard similarity plus hint
// phrases. It needs no external service and is the fallback when the model
// endpoint is unavailable.
//
// The SUPERSEDES floor is deliberately low (0.05): contradictions naturally
// have little token overlap because they state different information.
type HeuristicClassifier struct{}

// Classify implements Classifier.
func (HeuristicClassifier) Classify(_ context.Context, newer, older *SemanticEntry) Result {
	sim := memstore.Jaccard(newer.TokenSet(), older.TokenSet())
	body := strings.ToLower(newer.Content)

	if sim >= 0.05 {
		for _, hint := range SupersedeHints {
			if strings.Contains(body, hint) {
				return Result{Relation: RelationSupersedes, Confidence: 0.7, Reasoning: "hint phrase with token overlap"}
			}
		}
	}
	switch {
	case sim >= 0.85:
		return Result{Relation: RelationReinforces, Confidence: 0.8, Reasoning: "high token overlap"}
	case sim >= 0.55:
		return Result{Relation: RelationRefines, Confidence: 0.65, Reasoning: "moderate token overlap"}
	}
	return Result{Relation: RelationUnrelated, Confidence: 0.6, Reasoning: "low token overlap"}
}

// CachedClassifier wraps another classifier with a bounded LRU whose entries
// expire after a TTL. Keys hash the sorted id pair, so (a,b) and (b,a) share
// one slot. The cache is per-process and safe for concurrent use.
type CachedClassifier struct {
	Inner Classifier
	TTL   time.Duration

	cache *lru.Cache[string, cachedResult]
}

type cachedResult struct {
	result   Result
	storedAt time.Time
}

// NewCachedClassifier builds the caching wrapper.
func NewCachedClassifier(inner Classifier, size int, ttl time.Duration) *CachedClassifier {
	if size <= 0 {
		size = 1000
	}
	cache, _ := lru.New[string, cachedResult](size)
	return &CachedClassifier{Inner: inner, TTL: ttl, cache: cache}
}

// Classify implements Classifier with caching. Error results are never
// cached.
func (c *CachedClassifier) Classify(ctx context.Context, newer, older *SemanticEntry) Result {
	key := pairHash(newer.ID, older.ID)
	if hit, ok := c.cache.Get(key); ok {
		if c.TTL <= 0 || time.Since(hit.storedAt) < c.TTL {
			out := hit.result
			out.Cached = true
			return out
		}
		c.cache.Remove(key)
	}

	res := c.Inner.Classify(ctx, newer, older)
	if res.Err == nil {
		c.cache.Add(key, cachedResult{result: res, storedAt: time.Now()})
	}
	return res
}

func pairHash(a, b string) string {
	if a > b {
		a, b = b, a
	}
	sum := sha256.Sum256([]byte(a + b))
	return hex.EncodeToString(sum[:])[:32]
}
