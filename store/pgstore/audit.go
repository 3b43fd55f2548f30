package pgstore

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrEthical07/authcore/audit"
)

// AuditSink persists audit events to the audit_events table. Write
// failures are logged and dropped.
type AuditSink struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ audit.Sink = (*AuditSink)(nil)

// NewAuditSink returns a sink writing through pool.
func NewAuditSink(pool *pgxpool.Pool, logger *slog.Logger) *AuditSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditSink{pool: pool, logger: logger}
}

func (s *AuditSink) Emit(ctx context.Context, e audit.Event) {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	data, err := json.Marshal(meta)
	if err != nil {
		s.logger.Error("audit metadata encode failed", "event_type", e.EventType, "err", err)
		return
	}

	_, err = s.pool.Exec(ctx, `INSERT INTO audit_events
		(id, ts, event_type, description, account_id, session_id, severity, ip, user_agent, success, error, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.Timestamp, e.EventType, e.Description, e.AccountID, e.SessionID,
		string(e.Severity), e.IP, e.UserAgent, e.Success, e.Error, data)
	if err != nil {
		s.logger.Error("audit event write failed", "event_type", e.EventType, "event_id", e.ID, "err", err)
	}
}

// ListAuditEvents returns an account's audit trail, newest first.
func (s *AuditSink) ListAuditEvents(ctx context.Context, accountID string, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `SELECT id, ts, event_type, description, account_id, session_id,
			severity, ip, user_agent, success, error, metadata
		FROM audit_events WHERE account_id = $1
		ORDER BY ts DESC LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e        audit.Event
			severity string
			meta     []byte
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &e.Description, &e.AccountID, &e.SessionID,
			&severity, &e.IP, &e.UserAgent, &e.Success, &e.Error, &meta); err != nil {
			return nil, err
		}
		e.Severity = audit.Severity(severity)
		e.Timestamp = e.Timestamp.UTC()
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, err
			}
		}
		if len(e.Metadata) == 0 {
			e.Metadata = nil
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
