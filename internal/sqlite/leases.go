package sqlite

import (
	"context"
	"fmt"
	"time"
)

const (
	// The DO UPDATE only fires when the current lease has expired or is
	// already held by the caller, so RowsAffected tells us who won.
	acquireLeaseQuery = `INSERT INTO scheduler_leases (name, holder, acquired_at, expires_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
    holder = excluded.holder,
    acquired_at = excluded.acquired_at,
    expires_at = excluded.expires_at
WHERE scheduler_leases.expires_at <= excluded.acquired_at
   OR scheduler_leases.holder = excluded.holder`

	releaseLeaseQuery = `DELETE FROM scheduler_leases WHERE name = ? AND holder = ?`
)

// TryAcquireLease claims the named lease for holder until now+ttl. It returns
// false without error when another holder owns an unexpired lease.
func (db *DB) TryAcquireLease(ctx context.Context, name, holder string, ttl time.Duration, now time.Time) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("lease ttl must be positive")
	}
	res, err := db.writeDB.ExecContext(ctx, acquireLeaseQuery,
		name,
		holder,
		formatTime(now),
		formatTime(now.Add(ttl)),
	)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read lease result: %w", err)
	}
	return rows > 0, nil
}

// ReleaseLease drops the lease if holder still owns it.
func (db *DB) ReleaseLease(ctx context.Context, name, holder string) error {
	if _, err := db.writeDB.ExecContext(ctx, releaseLeaseQuery, name, holder); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}
