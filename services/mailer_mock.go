package services

import (
	"context"
	"sync"
	"time"
)

// MockMailer records sent emails for testing. Err, when set, is returned by every Send.
// Delay makes every Send take that long, like a slow relay.
type MockMailer struct {
	mu    sync.Mutex
	sent  []Email
	Err   error
	Delay time.Duration
}

// NewMockMailer creates a new mock mailer
func NewMockMailer() *MockMailer {
	return &MockMailer{}
}

// Send records the email
func (m *MockMailer) Send(ctx context.Context, email Email) error {
	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, email)
	return nil
}

// Sent returns a copy of the recorded emails
func (m *MockMailer) Sent() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Email(nil), m.sent...)
}

// SentTo returns the recorded emails addressed to recipient
func (m *MockMailer) SentTo(recipient string) []Email {
	var out []Email
	for _, email := range m.Sent() {
		if email.To == recipient {
			out = append(out, email)
		}
	}
	return out
}
