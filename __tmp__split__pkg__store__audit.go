package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/omegacortex/omega/pkg/id"
	"github.com/omegacortex/omega/pkg/omegaerr"
)

// WriteAudit appends one row to the audit log. Every inbound interaction
// yields exactly one row, denial audits distinguished from errors so auth
// trails stay searchable (§7).
func (s *Store) WriteAudit(ctx context.Context, a *AuditLog) error {
	if a.ID == "" {
		a.ID = id.New()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, channel, sender_id, sender_name, input_text, output_text, provider_used, model, processing_ms, status, denial_reason, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Channel, a.SenderID, nullableString(a.SenderName), a.InputText, nullableString(a.OutputText),
		nullableString(a.ProviderUsed), nullableString(a.Model), a.ProcessingMs, a.Status, nullableString(a.DenialReason), a.Timestamp)
	if err != nil {
		return omegaerr.Memoryf(err, "write audit log")
	}
	return nil
}

// RecentAudit returns the `limit` most recent audit rows for a sender, used
// by the /status and /history commands.
func (s *Store) RecentAudit(ctx context.Context, senderID string, limit int) ([]*AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel, sender_id, sender_name, input_text, output_text, provider_used, model, processing_ms, status, denial_reason, timestamp
		FROM audit_log WHERE sender_id = ? ORDER BY timestamp DESC LIMIT ?`, senderID, limit)
	if err != nil {
		return nil, omegaerr.Memoryf(err, "query audit log")
	}
	defer rows.Close()

	var out []*AuditLog
	for rows.Next() {
		var a AuditLog
		var senderName, output, provider, model, denial sqlNullable
		if err := rows.Scan(&a.ID, &a.Channel, &a.SenderID, &senderName, &a.InputText, &output, &provider, &model, &a.ProcessingMs, &a.Status, &denial, &a.Timestamp); err != nil {
			return nil, omegaerr.Memoryf(err, "scan audit row")
		}
		a.SenderName, a.OutputText, a.ProviderUsed, a.Model, a.DenialReason = senderName.s, output.s, provider.s, model.s, denial.s
		out = append(out, &a)
	}
	return out, rows.Err()
}

// LastAuditTimestamp returns the timestamp of the most recent audit row
// across all senders and channels, used by `omega status` to report
// last-activity age. Returns the zero Time if no audit rows exist yet.
func (s *Store) LastAuditTimestamp(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx, `SELECT timestamp FROM audit_log ORDER BY timestamp DESC LIMIT 1`).Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, omegaerr.Memoryf(err, "query last audit timestamp")
	}
	return t, nil
}

// sqlNullable adapts sql.Scan to a plain string without importing
// database/sql's NullString at every call site above.
type sqlNullable struct{ s string }

func (n *sqlNullable) Scan(src any) error {
	if src == nil {
		n.s = ""
		return nil
	}
	switch v := src.(type) {
	case string:
		n.s = v
	case []byte:
		n.s = string(v)
	}
	return nil
}


