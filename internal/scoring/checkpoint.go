package scoring

import (
	"encoding/json"
	"fmt"
	"os"

	"clawmem/internal/memstore"
)

// Checkpoint records the metadata of the last scoring run. It lives at
// memory/state/importance-score.json and is the only scorer state that
// survives across processes.
type Checkpoint struct {
	LastRunAt  string `json:"last_run_at"`
	Updated    int    `json:"updated"`
	MaxUpdates int    `json:"max_updates"`
	WindowDays int    `json:"window_days"`
	AliasFile  string `json:"alias_file"`
}

// Save writes the checkpoint atomically.
func (c Checkpoint) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return memstore.WriteFileAtomic(path, append(data, '\n'), 0o644)
}

// LoadCheckpoint reads a checkpoint file; a missing file returns a zero
// checkpoint.
func LoadCheckpoint(path string) (Checkpoint, error) {
	var c Checkpoint
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}
	return c, nil
}
