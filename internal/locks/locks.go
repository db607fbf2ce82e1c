// Package locks implements lease-based mutual exclusion for named jobs.
// One row per job name lives in shared SQLite storage; the conditional
// UPDATE that claims a row executes atomically under the database's writer
// lock, so two racing workers can never both observe success.
package locks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"corpusd/internal/db"
)

// ErrNotAcquired is returned when another holder owns an unexpired lease.
// Contention is expected steady-state behavior, not a failure; callers skip
// their tick and never log it as an error.
var ErrNotAcquired = errors.New("lock held by another worker")

// ErrNotHeld is returned by Renew and Release when the caller no longer
// owns the lock, typically because its lease expired and was reassigned.
var ErrNotHeld = errors.New("lock not held by this worker")

// Status describes a job lock row for observability.
type Status struct {
	Job       string
	Holder    string
	ExpiresAt time.Time
}

// Held reports whether the lock has an unexpired holder at time now.
func (s Status) Held(now time.Time) bool {
	return s.Holder != "" && s.ExpiresAt.After(now)
}

// Manager performs lock operations against the shared store.
type Manager struct {
	db  *db.DB
	now func() time.Time // injectable for tests
}

// NewManager creates a lock manager backed by the given database.
func NewManager(database *db.DB) *Manager {
	return &Manager{db: database, now: time.Now}
}

// Acquire claims the lock for job on behalf of holder for one lease
// duration. It succeeds only when the row is unheld or its lease has
// expired; otherwise ErrNotAcquired. The row is created lazily on the
// first attempt and never deleted afterwards, only re-acquired.
func (m *Manager) Acquire(ctx context.Context, job, holder string, lease time.Duration) error {
	if _, err := m.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO job_locks (job, holder, expires_at) VALUES (?, '', 0)`, job); err != nil {
		return fmt.Errorf("locks: ensure row %s: %w", job, err)
	}

	now := m.now()
	res, err := m.db.ExecContext(ctx, `
		UPDATE job_locks
		SET holder = ?, expires_at = ?
		WHERE job = ? AND (holder = '' OR expires_at <= ?)`,
		holder, now.Add(lease).UnixMilli(), job, now.UnixMilli())
	if err != nil {
		return fmt.Errorf("locks: acquire %s: %w", job, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("locks: acquire %s: %w", job, err)
	}
	if n == 0 {
		return ErrNotAcquired
	}
	return nil
}

// Renew extends the lease for a lock the caller still holds. A renewal
// after expiry fails with ErrNotHeld even if no one else has claimed the
// lock yet; the holder must stop assuming leadership.
func (m *Manager) Renew(ctx context.Context, job, holder string, lease time.Duration) error {
	now := m.now()
	res, err := m.db.ExecContext(ctx, `
		UPDATE job_locks
		SET expires_at = ?
		WHERE job = ? AND holder = ? AND expires_at > ?`,
		now.Add(lease).UnixMilli(), job, holder, now.UnixMilli())
	if err != nil {
		return fmt.Errorf("locks: renew %s: %w", job, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("locks: renew %s: %w", job, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Release clears the lock, but only when the caller still holds it. This
// prevents a worker whose lease already expired and was reassigned from
// releasing the new holder's lock.
func (m *Manager) Release(ctx context.Context, job, holder string) error {
	res, err := m.db.ExecContext(ctx, `
		UPDATE job_locks
		SET holder = '', expires_at = 0
		WHERE job = ? AND holder = ?`,
		job, holder)
	if err != nil {
		return fmt.Errorf("locks: release %s: %w", job, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("locks: release %s: %w", job, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Status returns the current row for a job. A job never attempted has an
// empty holder and zero expiry.
func (m *Manager) Status(ctx context.Context, job string) (Status, error) {
	var holder string
	var expiresAt int64
	err := m.db.QueryRowContext(ctx,
		`SELECT holder, expires_at FROM job_locks WHERE job = ?`, job).
		Scan(&holder, &expiresAt)
	if err == sql.ErrNoRows {
		return Status{Job: job}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("locks: status %s: %w", job, err)
	}
	return Status{Job: job, Holder: holder, ExpiresAt: time.UnixMilli(expiresAt)}, nil
}

// List returns the status of every known job lock, for observability.
func (m *Manager) List(ctx context.Context) ([]Status, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT job, holder, expires_at FROM job_locks ORDER BY job`)
	if err != nil {
		return nil, fmt.Errorf("locks: list: %w", err)
	}
	defer rows.Close()

	var out []Status
	for rows.Next() {
		var job, holder string
		var expiresAt int64
		if err := rows.Scan(&job, &holder, &expiresAt); err != nil {
			return nil, fmt.Errorf("locks: list: %w", err)
		}
		out = append(out, Status{Job: job, Holder: holder, ExpiresAt: time.UnixMilli(expiresAt)})
	}
	return out, rows.Err()
}
