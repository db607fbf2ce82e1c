package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"corpusd/internal/api"
	"corpusd/internal/scanner"
)

// ErrSyncInFlight is returned when a cycle is requested while another one
// is still running. Cycles never overlap; callers simply try again later.
var ErrSyncInFlight = errors.New("a sync cycle is already running")

// ProgressFunc is called after each batch completes, with 1-based batch
// numbers.
type ProgressFunc func(batch, total int)

// Options configures a Syncer.
type Options struct {
	Scan       scanner.ScanConfig
	StateDir   string
	MaxBytes   int64
	MaxItems   int
	TypeFilter string // restrict a cycle to one content type; empty = all
	OnProgress ProgressFunc
}

// Summary describes the outcome of one sync cycle.
type Summary struct {
	Scanned  int
	Uploaded int
	Deleted  int
	Failed   int
	Batches  int
}

func (s Summary) String() string {
	return fmt.Sprintf("scanned %d, uploaded %d, deleted %d, failed %d (%d batches)",
		s.Scanned, s.Uploaded, s.Deleted, s.Failed, s.Batches)
}

// Syncer runs sync cycles against a corpusd server. The zero-or-one
// in-flight cycle invariant is enforced with an atomic flag so the periodic
// timer and a manual "sync now" cannot race.
type Syncer struct {
	client  *Client
	opts    Options
	running atomic.Bool
}

// New creates a Syncer.
func New(client *Client, opts Options) *Syncer {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 10 << 20
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = 50
	}
	return &Syncer{client: client, opts: opts}
}

// Run executes one sync cycle: scan, delta against the cursor, batch, and
// upload sequentially. Batches after a failed one are not sent (fail-fast),
// but cursor advances already confirmed are kept. The cursor moves only for
// files the server explicitly reported successful.
func (s *Syncer) Run(ctx context.Context, force bool) (*Summary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInFlight
	}
	defer s.running.Store(false)

	files, err := scanner.Scan(s.opts.Scan)
	if err != nil {
		return nil, err
	}

	cursor, err := scanner.LoadCursor(s.opts.StateDir)
	if err != nil {
		return nil, fmt.Errorf("load cursor: %w", err)
	}

	uploads, deletes := scanner.Delta(files, cursor, force)
	summary := &Summary{Scanned: len(files)}

	if len(uploads) == 0 && len(deletes) == 0 {
		return summary, nil
	}

	// Scan snapshot mtimes, for advancing the cursor on acknowledgment.
	modTimes := make(map[string]int64, len(uploads))
	for _, f := range uploads {
		modTimes[f.Path] = f.ModTime
	}

	batches := BuildBatches(uploads, deletes, s.opts.MaxBytes, s.opts.MaxItems)
	summary.Batches = len(batches)

	var cycleErr error
	for i, batch := range batches {
		statuses, err := s.client.Upload(ctx, batch, s.opts.TypeFilter, force)
		if err != nil {
			cycleErr = fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
			break
		}

		for _, st := range statuses {
			switch {
			case st.Status == api.StatusDeleted:
				cursor.Forget(st.Path)
				summary.Deleted++
			case st.Success():
				if mt, ok := modTimes[st.Path]; ok {
					cursor.Advance(st.Path, mt)
				}
				summary.Uploaded++
			default:
				summary.Failed++
			}
		}

		if s.opts.OnProgress != nil {
			s.opts.OnProgress(i+1, len(batches))
		}
	}

	if err := cursor.Save(s.opts.StateDir); err != nil {
		if cycleErr == nil {
			cycleErr = fmt.Errorf("save cursor: %w", err)
		}
	}

	return summary, cycleErr
}
