package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

var at = time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)

var jane = Recipient{AccountID: "acc-1", Email: "jane@example.com", Name: "Jane"}

func TestRendererBuildsLinks(t *testing.T) {
	r, err := NewRenderer("People Portal", "https://hr.example.com/", nil)
	require.NoError(t, err)

	out, err := r.Render(Message{Kind: KindPasswordReset, To: jane, Token: "tok+/=", ExpiresAt: at})
	require.NoError(t, err)

	assert.Equal(t, "Reset your password", out.Subject)
	assert.Contains(t, out.Text, "https://hr.example.com/reset-password?token=tok%2B%2F%3D")
	assert.Contains(t, out.Text, "2026-02-01 08:30 UTC")
	assert.Contains(t, out.HTML, `href="https://hr.example.com/reset-password?token=tok%2B%2F%3D"`)
}

func TestRendererEscapesHTML(t *testing.T) {
	r, err := NewRenderer("Portal", "", nil)
	require.NoError(t, err)

	out, err := r.Render(Message{
		Kind:   KindLogin,
		To:     Recipient{Email: "x@example.com", Name: "<b>x</b>"},
		Device: Device{IP: "10.0.0.1", DeviceName: "laptop", At: at},
		At:     at,
	})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "Hello <b>x</b>")
	assert.NotContains(t, out.HTML, "<b>x</b>")
	assert.Contains(t, out.HTML, "&lt;b&gt;x&lt;/b&gt;")
}

func TestRendererEveryKind(t *testing.T) {
	r, err := NewRenderer("Portal", "https://p", nil)
	require.NoError(t, err)

	for _, k := range []Kind{
		KindWelcome, KindVerification, KindPasswordReset, KindPasswordChanged,
		KindLogin, KindSecurityAlert, KindAccountLocked,
	} {
		out, err := r.Render(Message{Kind: k, To: jane, Token: "t", At: at, ExpiresAt: at,
			Alert: Alert{Reason: "New sign-in from an unfamiliar location", Details: []string{"IP 10.0.0.9"}}})
		require.NoError(t, err, k)
		assert.NotEmpty(t, out.Subject, k)
		assert.Contains(t, out.Text, "Jane", k)
	}

	_, err = r.Render(Message{Kind: "bogus", To: jane})
	assert.Error(t, err)
}

func TestOutboxRecordsAndFails(t *testing.T) {
	ctx := context.Background()
	o := NewOutbox()
	var n Notifier = o

	require.NoError(t, n.SendVerification(ctx, jane, "tok-1", at))
	require.NoError(t, n.SendVerification(ctx, jane, "tok-2", at))
	require.NoError(t, n.SendAccountLocked(ctx, jane, at))

	m, ok := o.Last(KindVerification, jane.Email)
	require.True(t, ok)
	assert.Equal(t, "tok-2", m.Token)
	assert.Equal(t, 2, o.Count(KindVerification))
	assert.Len(t, o.Messages(), 3)

	boom := errors.New("down")
	o.FailWith(boom)
	assert.ErrorIs(t, n.SendWelcome(ctx, jane), boom)
	o.FailWith(nil)

	o.Reset()
	assert.Empty(t, o.Messages())
}

func TestLogNotifierNeverLogsTokens(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, n.SendPasswordReset(context.Background(), jane, "super-secret-token", at))
	assert.Contains(t, buf.String(), `"kind":"password_reset"`)
	assert.Contains(t, buf.String(), `"token_issued":true`)
	assert.NotContains(t, buf.String(), "super-secret-token")
}

func TestSMTPNotifierBuild(t *testing.T) {
	n, err := NewSMTPNotifier(SMTPConfig{
		Host:    "localhost",
		From:    "no-reply@example.com",
		Product: "People Portal",
		BaseURL: "https://hr.example.com",
	}, nil)
	require.NoError(t, err)

	msg, err := n.Build(Message{Kind: KindWelcome, To: jane})
	require.NoError(t, err)
	assert.Equal(t, []string{"Welcome to People Portal"}, msg.GetGenHeader(mail.HeaderSubject))

	to, err := msg.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"jane@example.com"}, to)

	var raw bytes.Buffer
	_, err = msg.WriteTo(&raw)
	require.NoError(t, err)
	assert.Contains(t, raw.String(), "text/plain")
	assert.Contains(t, raw.String(), "text/html")

	_, err = n.Build(Message{Kind: KindWelcome})
	assert.Error(t, err)
}

func TestSMTPNotifierDeliveryFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	n, err := NewSMTPNotifier(SMTPConfig{
		Host:    "127.0.0.1",
		Port:    port,
		From:    "no-reply@example.com",
		Timeout: time.Second,
	}, slog.New(slog.NewTextHandler(&strings.Builder{}, nil)))
	require.NoError(t, err)

	err = n.SendWelcome(context.Background(), jane)
	assert.ErrorIs(t, err, ErrDelivery)
}

func TestNewSMTPNotifierRequiresHostAndFrom(t *testing.T) {
	_, err := NewSMTPNotifier(SMTPConfig{Host: "localhost"}, nil)
	assert.Error(t, err)
}
