package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
)

// ErrDelivery wraps every transport failure of SMTPNotifier.
var ErrDelivery = errors.New("notify: delivery failed")

/*
====================================
SMTP CONFIG
====================================
*/

// SMTPConfig configures SMTPNotifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS requires STARTTLS when true and disables it otherwise.
	TLS     bool
	From    string
	Timeout time.Duration

	// Product is used in subjects and bodies.
	Product string
	// BaseURL prefixes verification and password reset links.
	BaseURL  string
	Location *time.Location
}

// SMTPNotifier sends multipart text/HTML mail.
type SMTPNotifier struct {
	sender

	cfg      SMTPConfig
	client   *mail.Client
	renderer *Renderer
	logger   *slog.Logger
}

// NewSMTPNotifier builds the mail client and parses the templates.
func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) (*SMTPNotifier, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("notify: smtp host and from address are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Product == "" {
		cfg.Product = "authcore"
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	if cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: mail client: %w", err)
	}

	renderer, err := NewRenderer(cfg.Product, cfg.BaseURL, cfg.Location)
	if err != nil {
		return nil, err
	}

	n := &SMTPNotifier{cfg: cfg, client: client, renderer: renderer, logger: logger}
	n.sender = n.send
	return n, nil
}

// Build renders m into a mail message without sending it.
func (n *SMTPNotifier) Build(m Message) (*mail.Msg, error) {
	if m.To.Email == "" {
		return nil, errors.New("notify: recipient email is required")
	}
	r, err := n.renderer.Render(m)
	if err != nil {
		return nil, err
	}

	msg := mail.NewMsg()
	if err := msg.From(n.cfg.From); err != nil {
		return nil, fmt.Errorf("notify: from address: %w", err)
	}
	if err := msg.To(m.To.Email); err != nil {
		return nil, fmt.Errorf("notify: to address: %w", err)
	}
	msg.Subject(r.Subject)
	msg.SetBodyString(mail.TypeTextPlain, r.Text)
	msg.AddAlternativeString(mail.TypeTextHTML, r.HTML)
	return msg, nil
}

func (n *SMTPNotifier) send(ctx context.Context, m Message) error {
	msg, err := n.Build(m)
	if err != nil {
		return err
	}
	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		n.logger.Warn("notification delivery failed",
			"kind", string(m.Kind),
			"account_id", m.To.AccountID,
			"host", n.cfg.Host,
			"error", err,
		)
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	n.logger.Debug("notification sent", "kind", string(m.Kind), "account_id", m.To.AccountID)
	return nil
}
