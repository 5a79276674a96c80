package drift

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"clawmem/internal/logging"
)

var memIDRe = regexp.MustCompile(`mem:([A-Za-z0-9_-]+)`)

// QmdOracle shells out to the qmd similarity search binary. Any failure
// mode (missing binary, non-zero exit, timeout, bad JSON) yields an empty
// result so the caller falls back to local similarity. Results are cached
// per process in a bounded LRU keyed on a hash of the query.
type QmdOracle struct {
	Command    string
	Collection string
	Timeout    time.Duration

	cache *lru.Cache[string, []SimilarityMatch]
}

// NewQmdOracle builds an oracle client with a bounded result cache.
func NewQmdOracle(command, collection string, timeout time.Duration, cacheSize int) *QmdOracle {
	if cacheSize <= 0 {
		cacheSize = 500
	}
	cache, _ := lru.New[string, []SimilarityMatch](cacheSize)
	return &QmdOracle{
		Command:    command,
		Collection: collection,
		Timeout:    timeout,
		cache:      cache,
	}
}

// oracleResult is one element of the oracle's JSON output. The entry id is
// recovered from the snippet, file path, or metadata.
type oracleResult struct {
	Score    float64 `json:"score"`
	Snippet  string  `json:"snippet"`
	File     string  `json:"file"`
	Metadata struct {
		EntryID string `json:"entry_id"`
	} `json:"metadata"`
}

// FindSimilar runs `<command> search <query> -c <collection> --limit N
// --json` and parses matches out of stdout.
func (o *QmdOracle) FindSimilar(query string, limit int) []SimilarityMatch {
	sum := sha256.Sum256([]byte(query))
	cacheKey := hex.EncodeToString(sum[:])[:32]
	if cached, ok := o.cache.Get(cacheKey); ok {
		return cached
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, o.Command,
		"search", query,
		"-c", o.Collection,
		"--limit", strconv.Itoa(limit),
		"--json",
	)
	out, err := cmd.Output()
	if err != nil {
		logging.DriftDebug("oracle unavailable: %v", err)
		return nil
	}

	var results []oracleResult
	if err := json.Unmarshal(out, &results); err != nil {
		// Some versions emit a single object instead of an array.
		var single oracleResult
		if err := json.Unmarshal(out, &single); err != nil {
			logging.DriftDebug("oracle JSON parse error: %v", err)
			return nil
		}
		results = []oracleResult{single}
	}

	var matches []SimilarityMatch
	for _, r := range results {
		id := extractEntryID(r)
		if id != "" && r.Score > 0 {
			matches = append(matches, SimilarityMatch{EntryID: id, Score: r.Score})
		}
	}
	o.cache.Add(cacheKey, matches)
	return matches
}

func extractEntryID(r oracleResult) string {
	if m := memIDRe.FindStringSubmatch(r.Snippet); m != nil {
		return m[1]
	}
	if m := memIDRe.FindStringSubmatch(r.File); m != nil {
		return m[1]
	}
	return r.Metadata.EntryID
}
