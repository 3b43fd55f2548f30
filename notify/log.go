package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes a structured log line per notification. Tokens are
// never logged.
type LogNotifier struct {
	sender
	logger *slog.Logger
}

// NewLogNotifier returns a LogNotifier writing to logger, or slog.Default
// when logger is nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &LogNotifier{logger: logger}
	n.sender = n.log
	return n
}

func (n *LogNotifier) log(ctx context.Context, m Message) error {
	attrs := []any{
		"kind", string(m.Kind),
		"account_id", m.To.AccountID,
		"email", m.To.Email,
	}
	if m.Token != "" {
		attrs = append(attrs, "token_issued", true, "expires_at", m.ExpiresAt)
	}
	if m.Kind == KindLogin {
		attrs = append(attrs, "ip", m.Device.IP, "device", m.Device.DeviceName)
	}
	if m.Kind == KindSecurityAlert {
		attrs = append(attrs, "reason", m.Alert.Reason)
	}
	n.logger.InfoContext(ctx, "notification", attrs...)
	return nil
}
