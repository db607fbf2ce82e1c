package scanner

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"corpusd/internal/content"
)

// TrackedFile is one file selected for synchronization. It is rebuilt on
// every scan; identity is the slash-normalized path relative to its root.
type TrackedFile struct {
	Path    string       // relative, forward-slash normalized
	AbsPath string       // absolute path on disk
	Type    content.Type // classified content type
	ModTime int64        // modification time, unix seconds
	Size    int64        // size in bytes
}

// ScanConfig controls which files a scan selects.
type ScanConfig struct {
	Roots   []string       // directories to walk
	Include []string       // glob patterns; empty means include everything
	Exclude []string       // glob patterns; exclude wins over include
	Types   []content.Type // enabled content types; empty means all
	Logger  *slog.Logger   // skip warnings; nil uses slog.Default
}

// Scan walks every configured root and returns the tracked files that pass
// the include/exclude and type filters, ordered by content-type priority
// then path. Unreadable entries are skipped with a warning rather than
// failing the scan.
func Scan(cfg ScanConfig) ([]TrackedFile, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled := make(map[content.Type]bool, len(cfg.Types))
	for _, t := range cfg.Types {
		enabled[t] = true
	}

	var files []TrackedFile
	seen := make(map[string]bool)

	for _, root := range cfg.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("scanner: resolve root %s: %w", root, err)
		}

		walkErr := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logger.Warn("skipping unreadable path", "path", path, "error", err)
				return nil
			}
			if d.IsDir() {
				if shouldExcludeDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}

			rel, err := filepath.Rel(abs, path)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)

			// Exclude takes precedence over include.
			if MatchesExclude(rel, cfg.Exclude) {
				return nil
			}
			if !MatchesInclude(rel, cfg.Include) {
				return nil
			}

			ct := content.ForPath(rel)
			if len(enabled) > 0 && !enabled[ct] {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				logger.Warn("skipping file", "path", rel, "error", err)
				return nil
			}
			if seen[rel] {
				return nil
			}
			seen[rel] = true

			files = append(files, TrackedFile{
				Path:    rel,
				AbsPath: path,
				Type:    ct,
				ModTime: info.ModTime().Unix(),
				Size:    info.Size(),
			})
			return nil
		})
		if walkErr != nil {
			return nil, fmt.Errorf("scanner: walk %s: %w", root, walkErr)
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		pi, pj := files[i].Type.Priority(), files[j].Type.Priority()
		if pi != pj {
			return pi < pj
		}
		return files[i].Path < files[j].Path
	})

	return files, nil
}

// ReadFile loads the content of a tracked file from disk.
func (f TrackedFile) ReadFile() ([]byte, error) {
	data, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return nil, fmt.Errorf("scanner: read %s: %w", f.Path, err)
	}
	return data, nil
}
