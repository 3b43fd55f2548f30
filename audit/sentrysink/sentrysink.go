// Package sentrysink forwards serious audit events to Sentry.
package sentrysink

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/MrEthical07/authcore/audit"
)

// Sink captures events at or above MinSeverity as Sentry messages. Events
// below the threshold are ignored.
type Sink struct {
	hub         *sentry.Hub
	minSeverity audit.Severity
}

// New returns a Sink bound to hub, or to the current hub when hub is nil.
func New(hub *sentry.Hub, minSeverity audit.Severity) *Sink {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if minSeverity == "" {
		minSeverity = audit.SeverityHigh
	}
	return &Sink{hub: hub, minSeverity: minSeverity}
}

func (s *Sink) Emit(_ context.Context, event audit.Event) {
	if !event.Severity.AtLeast(s.minSeverity) {
		return
	}

	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level(event.Severity))
		scope.SetTag("event_type", event.EventType)
		scope.SetTag("severity", string(event.Severity))
		if event.AccountID != "" {
			scope.SetUser(sentry.User{ID: event.AccountID, IPAddress: event.IP})
		}
		extra := map[string]interface{}{
			"event_id":  event.ID,
			"timestamp": event.Timestamp.Format(time.RFC3339Nano),
			"success":   event.Success,
		}
		for k, v := range event.Metadata {
			extra[k] = v
		}
		scope.SetContext("audit", extra)

		msg := event.Description
		if msg == "" {
			msg = event.EventType
		}
		s.hub.CaptureMessage(msg)
	})
}

func level(s audit.Severity) sentry.Level {
	switch s {
	case audit.SeverityCritical:
		return sentry.LevelFatal
	case audit.SeverityHigh:
		return sentry.LevelError
	case audit.SeverityMedium:
		return sentry.LevelWarning
	default:
		return sentry.LevelInfo
	}
}
