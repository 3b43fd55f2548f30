package audit

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

type countingSink struct {
	n atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.n.Add(1)
}

type panicSink struct{}

func (panicSink) Emit(context.Context, Event) { panic("boom") }

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Contains(s string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Contains(b.buf.String(), s)
}

func TestDispatcherDeliversStampedEvents(t *testing.T) {
	sink := NewChannelSink(4)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink, WithClock(func() time.Time { return fixed }))
	defer d.Close()

	d.Emit(context.Background(), Event{EventType: "account_locked", Severity: SeverityHigh, AccountID: "a1"})

	select {
	case ev := <-sink.Events():
		if ev.ID == "" || !ev.Timestamp.Equal(fixed) {
			t.Fatalf("event not stamped: %+v", ev)
		}
		if ev.Severity != SeverityHigh || ev.AccountID != "a1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected audit event to be received")
	}
}

func TestDispatcherDisabledIsNilAndSafe(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("disabled dispatcher must be nil")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reports zero drops")
	}
}

func TestDispatcherDropIfFullDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	start := time.Now()
	d.Emit(context.Background(), Event{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestDispatcherBlockingUntilSpace(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	done := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Event{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, panicSink{},
		WithLogger(slog.New(slog.NewTextHandler(&syncBuffer{}, nil))))
	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})
	d.Close()
}

func TestDispatcherCloseIdempotentAndDrains(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "e"})
	}
	d.Close()
	d.Close()
	d.Emit(context.Background(), Event{EventType: "after-close"})

	if got := sink.n.Load(); got != 5 {
		t.Fatalf("expected 5 delivered events, got %d", got)
	}
	if d.Delivered() != 5 {
		t.Fatalf("Delivered = %d", d.Delivered())
	}
}

func TestJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{
		EventType: "login_success",
		AccountID: "u1",
		Severity:  SeverityLow,
		Success:   true,
	})

	if !buf.Contains(`"event_type":"login_success"`) {
		t.Fatal("expected JSON line to contain event type")
	}
	if !buf.Contains(`"account_id":"u1"`) {
		t.Fatal("expected JSON line to contain account id")
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf syncBuffer
	sink := NewSlogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	sink.Emit(context.Background(), Event{EventType: "mfa_disabled", Severity: SeverityHigh, Description: "MFA disabled"})
	sink.Emit(context.Background(), Event{EventType: "login_success", Severity: SeverityLow})

	if !buf.Contains("level=WARN msg=\"MFA disabled\"") {
		t.Fatal("high severity events must log at warn")
	}
	if !buf.Contains("level=INFO msg=login_success") {
		t.Fatal("low severity events must log at info with the event type as message")
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	MultiSink{a, nil, b}.Emit(context.Background(), Event{EventType: "x"})
	if a.n.Load() != 1 || b.n.Load() != 1 {
		t.Fatal("every sink must receive the event")
	}
}

func TestSeverityAtLeast(t *testing.T) {
	if !SeverityCritical.AtLeast(SeverityHigh) || SeverityMedium.AtLeast(SeverityHigh) {
		t.Fatal("severity ordering broken")
	}
}
