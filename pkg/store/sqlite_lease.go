package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// acquireLease inserts the lease or takes over a row that is expired or
// already ours. A change of holder opens a new epoch.
const acquireLease = `
	INSERT INTO leases (name, holder_id, expires_at, version, epoch)
	VALUES (?, ?, ?, 1, 1)
	ON CONFLICT(name) DO UPDATE SET
		epoch = CASE WHEN leases.holder_id = excluded.holder_id THEN leases.epoch ELSE leases.epoch + 1 END,
		holder_id = excluded.holder_id,
		expires_at = excluded.expires_at,
		version = leases.version + 1
	WHERE leases.holder_id = excluded.holder_id OR leases.expires_at < ?
`

// Acquire takes or renews the lease for holderID.
func (s *Store) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, acquireLease, name, holderID, now.Add(ttl), now)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	return affected(res)
}

// Renew extends a lease holderID still holds, or fails with ErrLeaseLost.
func (s *Store) Renew(ctx context.Context, name, holderID string, ttl time.Duration) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE leases SET expires_at = ?, version = version + 1
		WHERE name = ? AND holder_id = ?
	`, time.Now().UTC().Add(ttl), name, holderID)
	if err != nil {
		return fmt.Errorf("failed to renew lease %s: %w", name, err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("renew %s as %s: %w", name, holderID, ErrLeaseLost)
	}
	return nil
}

// Release drops the lease if holderID holds it.
func (s *Store) Release(ctx context.Context, name, holderID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM leases WHERE name = ? AND holder_id = ?`, name, holderID); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}

// Get returns the lease, or nil when nobody holds it.
func (s *Store) Get(ctx context.Context, name string) (*Lease, error) {
	var l Lease
	err := s.db.QueryRowContext(ctx, `
		SELECT name, holder_id, expires_at, version, epoch FROM leases WHERE name = ?
	`, name).Scan(&l.Name, &l.HolderID, &l.ExpiresAt, &l.Version, &l.Epoch)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get lease %s: %w", name, err)
	}
	return &l, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n > 0, nil
}
