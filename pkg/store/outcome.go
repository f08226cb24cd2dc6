package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/omegacortex/omega/pkg/id"
	"github.com/omegacortex/omega/pkg/omegaerr"
)

// RecordOutcome appends a reward/penalty event; score may be negative.
func (s *Store) RecordOutcome(ctx context.Context, senderID, domain string, score int, lesson, source, project string) (*Outcome, error) {
	o := &Outcome{
		ID:        id.New(),
		SenderID:  senderID,
		Domain:    domain,
		Score:     score,
		Lesson:    lesson,
		Source:    source,
		Project:   project,
		Timestamp: time.Now(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes (id, sender_id, domain, score, lesson, source, project, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.SenderID, o.Domain, o.Score, o.Lesson, o.Source, o.Project, o.Timestamp)
	if err != nil {
		return nil, omegaerr.Memoryf(err, "record outcome")
	}
	return o, nil
}

// RecentOutcomes returns the `limit` most recent outcomes for a sender,
// optionally scoped to a project (empty project means "no scope filter").
func (s *Store) RecentOutcomes(ctx context.Context, senderID, project string, limit int) ([]*Outcome, error) {
	var r *sql.Rows
	var err error
	if project == "" {
		r, err = s.db.QueryContext(ctx, `
			SELECT id, sender_id, domain, score, lesson, source, project, timestamp
			FROM outcomes WHERE sender_id = ? ORDER BY timestamp DESC LIMIT ?`, senderID, limit)
	} else {
		r, err = s.db.QueryContext(ctx, `
			SELECT id, sender_id, domain, score, lesson, source, project, timestamp
			FROM outcomes WHERE sender_id = ? AND project = ? ORDER BY timestamp DESC LIMIT ?`, senderID, project, limit)
	}
	if err != nil {
		return nil, omegaerr.Memoryf(err, "query outcomes")
	}
	defer r.Close()

	var out []*Outcome
	for r.Next() {
		var o Outcome
		if err := r.Scan(&o.ID, &o.SenderID, &o.Domain, &o.Score, &o.Lesson, &o.Source, &o.Project, &o.Timestamp); err != nil {
			return nil, omegaerr.Memoryf(err, "scan outcome")
		}
		out = append(out, &o)
	}
	return out, r.Err()
}
