package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/omegacortex/omega/pkg/omegaerr"
)

// SetProjectSession upserts the provider-owned session token for a
// (channel, sender_id, project) scope.
func (s *Store) SetProjectSession(ctx context.Context, channel, senderID, project, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_sessions (channel, sender_id, project, session_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(channel, sender_id, project) DO UPDATE SET session_id = excluded.session_id, updated_at = excluded.updated_at`,
		channel, senderID, project, sessionID, time.Now())
	if err != nil {
		return omegaerr.Memoryf(err, "set project session")
	}
	return nil
}

// GetProjectSession returns the stored session id, or "", false if unset.
func (s *Store) GetProjectSession(ctx context.Context, channel, senderID, project string) (string, bool, error) {
	var sid string
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id FROM project_sessions WHERE channel = ? AND sender_id = ? AND project = ?`,
		channel, senderID, project).Scan(&sid)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, omegaerr.Memoryf(err, "get project session")
	}
	return sid, true, nil
}

// ClearProjectSession drops the stored session id for a scope. /forget
// calls it (through the summarizer); switching projects does not.
func (s *Store) ClearProjectSession(ctx context.Context, channel, senderID, project string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM project_sessions WHERE channel = ? AND sender_id = ? AND project = ?`,
		channel, senderID, project)
	if err != nil {
		return omegaerr.Memoryf(err, "clear project session")
	}
	return nil
}
