package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/omegacortex/omega/pkg/id"
	"github.com/omegacortex/omega/pkg/omegaerr"
)

// AddMessage appends a message to a conversation and indexes it for
// recall search. Messages are append-only; they are deleted only by
// cascade when their parent conversation row is removed.
func (s *Store) AddMessage(ctx context.Context, convID string, role MessageRole, content, metadataJSON string) (*Message, error) {
	m := &Message{
		ID:             id.New(),
		ConversationID: convID,
		Role:           role,
		Content:        content,
		MetadataJSON:   metadataJSON,
		Timestamp:      time.Now(),
	}
	return m, s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, role, content, metadata_json, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID, m.ConversationID, m.Role, m.Content, nullableString(m.MetadataJSON), m.Timestamp)
		if err != nil {
			return omegaerr.Memoryf(err, "insert message")
		}
		rowID, err := res.LastInsertId()
		if err != nil {
			return omegaerr.Memoryf(err, "read inserted message rowid")
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO messages_fts(rowid, content) VALUES (?, ?)`, rowID, m.Content)
		if err != nil {
			return omegaerr.Memoryf(err, "index message for recall search")
		}
		return nil
	})
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// RecentMessages returns the `limit` newest messages of a conversation in
// chronological order, the history window used by BuildContext.
func (s *Store) RecentMessages(ctx context.Context, convID string, limit int) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, metadata_json, timestamp
		FROM (
			SELECT id, conversation_id, role, content, metadata_json, timestamp
			FROM messages WHERE conversation_id = ?
			ORDER BY timestamp DESC LIMIT ?
		) ORDER BY timestamp ASC`, convID, limit)
	if err != nil {
		return nil, omegaerr.Memoryf(err, "query recent messages")
	}
	defer rows.Close()
	return scanMessages(rows)
}

// AllMessages returns every message of a conversation in chronological
// order, used by the summarizer to build a full transcript.
func (s *Store) AllMessages(ctx context.Context, convID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, metadata_json, timestamp
		FROM messages WHERE conversation_id = ? ORDER BY timestamp ASC`, convID)
	if err != nil {
		return nil, omegaerr.Memoryf(err, "query all messages")
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecallMessages performs an FTS5 keyword search over prior message
// content for this sender's conversations, newest matches first.
func (s *Store) RecallMessages(ctx context.Context, senderID, query string, limit int) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.conversation_id, m.role, m.content, m.metadata_json, m.timestamp
		FROM messages_fts f
		JOIN messages m ON m.rowid = f.rowid
		JOIN conversations c ON c.id = m.conversation_id
		WHERE f.content MATCH ? AND c.sender_id = ?
		ORDER BY m.timestamp DESC LIMIT ?`, ftsQuery(query), senderID, limit)
	if err != nil {
		return nil, omegaerr.Memoryf(err, "recall search")
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ftsQuery turns free text into a permissive FTS5 MATCH expression: each
// token becomes a prefix match, ORed together.
func ftsQuery(text string) string {
	var b []byte
	first := true
	word := make([]byte, 0, 16)
	flush := func() {
		if len(word) == 0 {
			return
		}
		if !first {
			b = append(b, " OR "...)
		}
		b = append(b, '"')
		b = append(b, word...)
		b = append(b, '"', '*')
		first = false
		word = word[:0]
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		isAlnum := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if isAlnum {
			word = append(word, c)
		} else {
			flush()
		}
	}
	flush()
	if len(b) == 0 {
		return `""`
	}
	return string(b)
}

func scanMessages(rows *sql.Rows) ([]*Message, error) {
	var out []*Message
	for rows.Next() {
		var m Message
		var meta sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &meta, &m.Timestamp); err != nil {
			return nil, omegaerr.Memoryf(err, "scan message")
		}
		m.MetadataJSON = meta.String
		out = append(out, &m)
	}
	return out, rows.Err()
}
