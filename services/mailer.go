package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/kendall-kelly/jersey-repair-api/config"
)

// Email is one outbound message
type Email struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends email. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// NewMailer builds the mailer selected by MAIL_DRIVER. It returns nil when mail is
// disabled; callers treat a nil Mailer as "no transport configured".
func NewMailer(cfg *config.Config, logger *zap.Logger) (Mailer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.MailDriver {
	case "smtp":
		return &SMTPMailer{
			host:     cfg.SMTPHost,
			port:     cfg.SMTPPort,
			username: cfg.SMTPUsername,
			password: cfg.SMTPPassword,
			from:     cfg.MailFrom,
			timeout:  cfg.MailTimeout,
		}, nil
	case "http":
		return &HTTPMailer{
			url:    cfg.MailAPIURL,
			apiKey: cfg.MailAPIKey,
			from:   cfg.MailFrom,
			client: &http.Client{Timeout: cfg.MailTimeout},
		}, nil
	case "log", "":
		return &LogMailer{logger: logger}, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.MailDriver)
	}
}

// SMTPMailer delivers through an SMTP relay. STARTTLS is used when the relay offers it.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	timeout  time.Duration
}

// Send delivers the email
func (m *SMTPMailer) Send(ctx context.Context, email Email) error {
	msg, err := m.message(email)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(m.port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.timeout > 0 {
		opts = append(opts, mail.WithTimeout(m.timeout))
	}
	if m.username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.username),
			mail.WithPassword(m.password))
	}
	client, err := mail.NewClient(m.host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// message builds the MIME message. Addresses that do not parse are rejected here,
// so nothing reaches the relay's envelope unchecked.
func (m *SMTPMailer) message(email Email) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.from, err)
	}
	if err := msg.To(email.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", email.To, err)
	}
	msg.Subject(email.Subject)
	msg.SetBodyString(mail.TypeTextPlain, email.Body)
	return msg, nil
}

// HTTPMailer posts the email as JSON to a transactional mail API
type HTTPMailer struct {
	url    string
	apiKey string
	from   string
	client *http.Client
}

type httpMailPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// Send posts the email
func (m *HTTPMailer) Send(ctx context.Context, email Email) error {
	body, err := json.Marshal(httpMailPayload{
		From:    m.from,
		To:      email.To,
		Subject: email.Subject,
		Text:    email.Body,
	})
	if err != nil {
		return fmt.Errorf("failed to encode email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call mail api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mail api returned status %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}

// LogMailer writes emails to the log instead of sending them
type LogMailer struct {
	logger *zap.Logger
}

// Send logs the email
func (m *LogMailer) Send(ctx context.Context, email Email) error {
	m.logger.Info("email",
		zap.String("to", email.To),
		zap.String("subject", email.Subject),
		zap.Int("body_bytes", len(email.Body)))
	return nil
}
