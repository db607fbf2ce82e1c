package scanner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Cursor tracks the last successfully synced modification time per file
// path. It only advances after the server acknowledges an upload, and
// entries are removed once a deletion is confirmed server-side.
type Cursor struct {
	Synced      map[string]int64 `json:"synced"`
	LastUpdated time.Time        `json:"last_updated"`
}

const cursorFile = "cursor.json"

// LoadCursor reads the cursor from <stateDir>/cursor.json. A missing file
// yields an empty cursor, which makes every tracked file eligible for
// upload.
func LoadCursor(stateDir string) (*Cursor, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, cursorFile))
	if err != nil {
		if os.IsNotExist(err) {
			return &Cursor{Synced: make(map[string]int64)}, nil
		}
		return nil, err
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Synced == nil {
		c.Synced = make(map[string]int64)
	}
	return &c, nil
}

// Save writes the cursor to <stateDir>/cursor.json.
func (c *Cursor) Save(stateDir string) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return err
	}
	c.LastUpdated = time.Now()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(stateDir, cursorFile), data, 0o644)
}

// Get returns the last synced timestamp for path and whether the path has
// ever been synced.
func (c *Cursor) Get(path string) (int64, bool) {
	ts, ok := c.Synced[path]
	return ts, ok
}

// Advance records a successful upload of path at the given scan timestamp.
func (c *Cursor) Advance(path string, modTime int64) {
	c.Synced[path] = modTime
}

// Forget removes a path after its deletion was confirmed.
func (c *Cursor) Forget(path string) {
	delete(c.Synced, path)
}

// Paths returns all known paths in sorted order.
func (c *Cursor) Paths() []string {
	paths := make([]string, 0, len(c.Synced))
	for p := range c.Synced {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
