package notify

import (
	"context"
	"time"
)

// Kind names a notification template.
type Kind string

const (
	KindWelcome         Kind = "welcome"
	KindVerification    Kind = "verification"
	KindPasswordReset   Kind = "password_reset"
	KindPasswordChanged Kind = "password_changed"
	KindLogin           Kind = "login"
	KindSecurityAlert   Kind = "security_alert"
	KindAccountLocked   Kind = "account_locked"
)

// Recipient identifies who a notification is for.
type Recipient struct {
	AccountID string
	Email     string
	Name      string
}

// Device describes the client behind a login notification.
type Device struct {
	IP         string
	UserAgent  string
	DeviceName string
	Country    string
	At         time.Time
}

// Alert is a security alert payload.
type Alert struct {
	Reason  string
	Details []string
	At      time.Time
}

// Notifier is the outbound notification contract.
//
// Token arguments are raw single-use secrets; implementations must deliver
// them only to the recipient and never log them.
type Notifier interface {
	SendWelcome(ctx context.Context, to Recipient) error
	SendVerification(ctx context.Context, to Recipient, token string, expiresAt time.Time) error
	SendPasswordReset(ctx context.Context, to Recipient, token string, expiresAt time.Time) error
	SendPasswordChangedConfirmation(ctx context.Context, to Recipient, at time.Time) error
	SendLoginNotification(ctx context.Context, to Recipient, device Device) error
	SendSecurityAlert(ctx context.Context, to Recipient, alert Alert) error
	SendAccountLocked(ctx context.Context, to Recipient, until time.Time) error
}

// Message is the structured form of one notification. Token is empty for
// kinds that carry none.
type Message struct {
	Kind      Kind
	To        Recipient
	Token     string
	ExpiresAt time.Time
	At        time.Time
	Device    Device
	Alert     Alert
}

// sender adapts a single send function to the full Notifier interface.
type sender func(ctx context.Context, m Message) error

func (s sender) SendWelcome(ctx context.Context, to Recipient) error {
	return s(ctx, Message{Kind: KindWelcome, To: to})
}

func (s sender) SendVerification(ctx context.Context, to Recipient, token string, expiresAt time.Time) error {
	return s(ctx, Message{Kind: KindVerification, To: to, Token: token, ExpiresAt: expiresAt})
}

func (s sender) SendPasswordReset(ctx context.Context, to Recipient, token string, expiresAt time.Time) error {
	return s(ctx, Message{Kind: KindPasswordReset, To: to, Token: token, ExpiresAt: expiresAt})
}

func (s sender) SendPasswordChangedConfirmation(ctx context.Context, to Recipient, at time.Time) error {
	return s(ctx, Message{Kind: KindPasswordChanged, To: to, At: at})
}

func (s sender) SendLoginNotification(ctx context.Context, to Recipient, device Device) error {
	return s(ctx, Message{Kind: KindLogin, To: to, Device: device, At: device.At})
}

func (s sender) SendSecurityAlert(ctx context.Context, to Recipient, alert Alert) error {
	return s(ctx, Message{Kind: KindSecurityAlert, To: to, Alert: alert, At: alert.At})
}

func (s sender) SendAccountLocked(ctx context.Context, to Recipient, until time.Time) error {
	return s(ctx, Message{Kind: KindAccountLocked, To: to, ExpiresAt: until})
}

// NoOp discards every notification.
type NoOp struct{}

func (NoOp) SendWelcome(context.Context, Recipient) error                                { return nil }
func (NoOp) SendVerification(context.Context, Recipient, string, time.Time) error        { return nil }
func (NoOp) SendPasswordReset(context.Context, Recipient, string, time.Time) error       { return nil }
func (NoOp) SendPasswordChangedConfirmation(context.Context, Recipient, time.Time) error { return nil }
func (NoOp) SendLoginNotification(context.Context, Recipient, Device) error              { return nil }
func (NoOp) SendSecurityAlert(context.Context, Recipient, Alert) error                   { return nil }
func (NoOp) SendAccountLocked(context.Context, Recipient, time.Time) error               { return nil }
