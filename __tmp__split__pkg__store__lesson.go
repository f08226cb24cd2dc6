package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/omegacortex/omega/pkg/id"
	"github.com/omegacortex/omega/pkg/omegaerr"
)

// MaxLessonsPerScope is the retention cap per (sender_id, domain, project);
// the oldest lesson beyond this count is pruned whenever a new one is
// stored for that scope.
const MaxLessonsPerScope = 10

// StoreLesson upserts a lesson: an exact-text duplicate within
// (senderID, domain, project) bumps occurrences instead of inserting a
// second row, then enforces MaxLessonsPerScope in the same transaction.
func (s *Store) StoreLesson(ctx context.Context, senderID, domain, rule, project string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		res, err := tx.ExecContext(ctx, `
			UPDATE lessons SET occurrences = occurrences + 1, updated_at = ?
			WHERE sender_id = ? AND domain = ? AND project = ? AND rule = ?`,
			now, senderID, domain, project, rule)
		if err != nil {
			return omegaerr.Memoryf(err, "bump lesson occurrences")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return omegaerr.Memoryf(err, "read lesson update result")
		}
		if n == 0 {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO lessons (id, sender_id, domain, rule, project, occurrences, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
				id.New(), senderID, domain, rule, project, now, now)
			if err != nil {
				return omegaerr.Memoryf(err, "insert lesson")
			}
		}

		// Enforce the retention cap: delete the oldest rows beyond MaxLessonsPerScope.
		_, err = tx.ExecContext(ctx, `
			DELETE FROM lessons WHERE id IN (
				SELECT id FROM lessons
				WHERE sender_id = ? AND domain = ? AND project = ?
				ORDER BY created_at DESC
				LIMIT -1 OFFSET ?
			)`, senderID, domain, project, MaxLessonsPerScope)
		if err != nil {
			return omegaerr.Memoryf(err, "enforce lesson retention cap")
		}
		return nil
	})
}

// LessonsFor returns the lessons retained for (senderID, domain, project),
// newest first.
func (s *Store) LessonsFor(ctx context.Context, senderID, domain, project string) ([]*Lesson, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, domain, rule, project, occurrences, created_at, updated_at
		FROM lessons WHERE sender_id = ? AND domain = ? AND project = ?
		ORDER BY created_at DESC`, senderID, domain, project)
	if err != nil {
		return nil, omegaerr.Memoryf(err, "list lessons")
	}
	defer rows.Close()

	var out []*Lesson
	for rows.Next() {
		var l Lesson
		if err := rows.Scan(&l.ID, &l.SenderID, &l.Domain, &l.Rule, &l.Project, &l.Occurrences, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, omegaerr.Memoryf(err, "scan lesson")
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

// AllLessonsForSender returns every lesson across all domains/projects for
// a sender, used when composing a general-purpose system prompt.
func (s *Store) AllLessonsForSender(ctx context.Context, senderID string) ([]*Lesson, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, domain, rule, project, occurrences, created_at, updated_at
		FROM lessons WHERE sender_id = ? ORDER BY updated_at DESC`, senderID)
	if err != nil {
		return nil, omegaerr.Memoryf(err, "list all lessons")
	}
	defer rows.Close()

	var out []*Lesson
	for rows.Next() {
		var l Lesson
		if err := rows.Scan(&l.ID, &l.SenderID, &l.Domain, &l.Rule, &l.Project, &l.Occurrences, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, omegaerr.Memoryf(err, "scan lesson")
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}


