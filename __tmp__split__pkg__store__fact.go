package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/omegacortex/omega/pkg/omegaerr"
)

// UpsertFact writes (or overwrites) one fact for a sender.
func (s *Store) UpsertFact(ctx context.Context, senderID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO facts (sender_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(sender_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		senderID, key, value, time.Now())
	if err != nil {
		return omegaerr.Memoryf(err, "upsert fact %s for %s", key, senderID)
	}
	return nil
}

// GetFact returns the value of one fact, or "", false if unset.
func (s *Store) GetFact(ctx context.Context, senderID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM facts WHERE sender_id = ? AND key = ?`, senderID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, omegaerr.Memoryf(err, "get fact %s for %s", key, senderID)
	}
	return value, true, nil
}

// DeleteFact removes one fact, if present.
func (s *Store) DeleteFact(ctx context.Context, senderID, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM facts WHERE sender_id = ? AND key = ?`, senderID, key)
	if err != nil {
		return omegaerr.Memoryf(err, "delete fact %s for %s", key, senderID)
	}
	return nil
}

// AllFacts returns every fact stored for a sender.
func (s *Store) AllFacts(ctx context.Context, senderID string) ([]*Fact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sender_id, key, value, updated_at FROM facts WHERE sender_id = ? ORDER BY key`, senderID)
	if err != nil {
		return nil, omegaerr.Memoryf(err, "list facts for %s", senderID)
	}
	defer rows.Close()

	var out []*Fact
	for rows.Next() {
		var f Fact
		if err := rows.Scan(&f.SenderID, &f.Key, &f.Value, &f.UpdatedAt); err != nil {
			return nil, omegaerr.Memoryf(err, "scan fact")
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// CountUserFacts returns the number of user-authored (non-reserved)
// facts for a sender — the gate the onboarding ladder (§4.12) checks.
func (s *Store) CountUserFacts(ctx context.Context, senderID string) (int, error) {
	facts, err := s.AllFacts(ctx, senderID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range facts {
		if !IsReservedFactKey(f.Key) {
			n++
		}
	}
	return n, nil
}


