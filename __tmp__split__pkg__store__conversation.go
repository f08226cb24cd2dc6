package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/omegacortex/omega/pkg/id"
	"github.com/omegacortex/omega/pkg/omegaerr"
)

// IdleAfter is the inactivity window after which an active conversation is
// considered idle and eligible for background summarization (§3, §4.9).
const IdleAfter = 30 * time.Minute

// GetOrCreateConversation returns the active conversation for
// (channel, senderID, project) if one exists and was active within
// IdleAfter, otherwise creates a new row. Hitting an existing row bumps
// its last_activity.
func (s *Store) GetOrCreateConversation(ctx context.Context, channel, senderID, project string) (*Conversation, error) {
	var c Conversation
	var summary sql.NullString
	row := s.db.QueryRowContext(ctx, `
		SELECT id, channel, sender_id, project, status, last_activity, summary, created_at, updated_at
		FROM conversations
		WHERE channel = ? AND sender_id = ? AND project = ? AND status = ?
		ORDER BY last_activity DESC LIMIT 1`,
		channel, senderID, project, ConversationActive)
	err := row.Scan(&c.ID, &c.Channel, &c.SenderID, &c.Project, &c.Status, &c.LastActivity, &summary, &c.CreatedAt, &c.UpdatedAt)

	switch {
	case err == nil:
		c.Summary = summary.String
		if time.Since(c.LastActivity) <= IdleAfter {
			now := time.Now()
			if _, err := s.db.ExecContext(ctx, `UPDATE conversations SET last_activity = ?, updated_at = ? WHERE id = ?`, now, now, c.ID); err != nil {
				return nil, omegaerr.Memoryf(err, "touch conversation %s", c.ID)
			}
			c.LastActivity = now
			return &c, nil
		}
		// Found but stale: close it out (with an empty summary) before
		// creating a fresh one. FindIdleConversations returns only active
		// rows, so a row closed here is not picked up by the idle sweep.
		if err := s.CloseConversation(ctx, c.ID, ""); err != nil {
			return nil, err
		}
	case errors.Is(err, sql.ErrNoRows):
		// fall through to create
	default:
		return nil, omegaerr.Memoryf(err, "lookup active conversation")
	}

	now := time.Now()
	nc := &Conversation{
		ID:           id.New(),
		Channel:      channel,
		SenderID:     senderID,
		Project:      project,
		Status:       ConversationActive,
		LastActivity: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, channel, sender_id, project, status, last_activity, summary, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		nc.ID, nc.Channel, nc.SenderID, nc.Project, nc.Status, nc.LastActivity, nc.CreatedAt, nc.UpdatedAt)
	if err != nil {
		return nil, omegaerr.Memoryf(err, "create conversation")
	}
	return nc, nil
}

// FindIdleConversations returns all active conversations whose
// last_activity predates IdleAfter — the idle-summarization sweep target.
func (s *Store) FindIdleConversations(ctx context.Context) ([]*Conversation, error) {
	return s.queryConversations(ctx, `
		SELECT id, channel, sender_id, project, status, last_activity, summary, created_at, updated_at
		FROM conversations WHERE status = ? AND last_activity < ?`,
		ConversationActive, time.Now().Add(-IdleAfter))
}

// FindAllActiveConversations returns every active conversation — the
// shutdown-summarization sweep target.
func (s *Store) FindAllActiveConversations(ctx context.Context) ([]*Conversation, error) {
	return s.queryConversations(ctx, `
		SELECT id, channel, sender_id, project, status, last_activity, summary, created_at, updated_at
		FROM conversations WHERE status = ?`, ConversationActive)
}

func (s *Store) queryConversations(ctx context.Context, query string, args ...any) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, omegaerr.Memoryf(err, "query conversations")
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		var c Conversation
		var summary sql.NullString
		if err := rows.Scan(&c.ID, &c.Channel, &c.SenderID, &c.Project, &c.Status, &c.LastActivity, &summary, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, omegaerr.Memoryf(err, "scan conversation")
		}
		c.Summary = summary.String
		out = append(out, &c)
	}
	return out, rows.Err()
}

// CloseConversation marks a conversation closed and stores its final
// summary text (possibly empty, e.g. for the stale-handoff path above).
func (s *Store) CloseConversation(ctx context.Context, convID, summary string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET status = ?, summary = ?, updated_at = ? WHERE id = ?`,
		ConversationClosed, summary, time.Now(), convID)
	if err != nil {
		return omegaerr.Memoryf(err, "close conversation %s", convID)
	}
	return nil
}

// GetConversation fetches a single conversation by id.
func (s *Store) GetConversation(ctx context.Context, convID string) (*Conversation, error) {
	var c Conversation
	var summary sql.NullString
	row := s.db.QueryRowContext(ctx, `
		SELECT id, channel, sender_id, project, status, last_activity, summary, created_at, updated_at
		FROM conversations WHERE id = ?`, convID)
	err := row.Scan(&c.ID, &c.Channel, &c.SenderID, &c.Project, &c.Status, &c.LastActivity, &summary, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, omegaerr.Memoryf(err, "conversation %s not found", convID)
	}
	if err != nil {
		return nil, omegaerr.Memoryf(err, "get conversation %s", convID)
	}
	c.Summary = summary.String
	return &c, nil
}


