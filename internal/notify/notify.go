// Package notify delivers account emails by publishing message payloads to
// the mailer service over NATS.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Kinds of outbound messages understood by the mailer.
const (
	KindVerification  = "verification"
	KindPasswordReset = "password_reset"
)

// Message is the payload published for the mailer service.
type Message struct {
	Kind        string    `json:"kind"`
	To          string    `json:"to"`
	DisplayName string    `json:"display_name,omitempty"`
	Token       string    `json:"token"`
	SentAt      time.Time `json:"sent_at"`
}

// NATSSender publishes email messages to a NATS subject. Publishing is
// retried with exponential backoff because the broker connection may be
// mid-reconnect when a request arrives.
type NATSSender struct {
	nc      *nats.Conn
	subject string
	log     zerolog.Logger
}

// NewNATSSender wires a sender to the given connection and subject.
func NewNATSSender(nc *nats.Conn, subject string, log zerolog.Logger) *NATSSender {
	return &NATSSender{nc: nc, subject: subject, log: log}
}

func (s *NATSSender) publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	op := func() error {
		return s.nc.Publish(s.subject, payload)
	}
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("publish %s message: %w", msg.Kind, err)
	}
	s.log.Debug().Str("kind", msg.Kind).Str("to", msg.To).Msg("email message published")
	return nil
}

// SendVerificationEmail publishes an email-verification message.
func (s *NATSSender) SendVerificationEmail(ctx context.Context, to, token, displayName string) error {
	return s.publish(ctx, Message{
		Kind:        KindVerification,
		To:          to,
		DisplayName: displayName,
		Token:       token,
		SentAt:      time.Now().UTC(),
	})
}

// SendPasswordResetEmail publishes a password-reset message.
func (s *NATSSender) SendPasswordResetEmail(ctx context.Context, to, token, displayName string) error {
	return s.publish(ctx, Message{
		Kind:        KindPasswordReset,
		To:          to,
		DisplayName: displayName,
		Token:       token,
		SentAt:      time.Now().UTC(),
	})
}

// LogSender writes would-be emails to the log. Used in local development
// when no broker is configured.
type LogSender struct {
	log zerolog.Logger
}

// NewLogSender returns a sender backed by the given logger.
func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) SendVerificationEmail(_ context.Context, to, token, displayName string) error {
	s.log.Info().Str("to", to).Str("name", displayName).Str("token", token).Msg("verification email")
	return nil
}

func (s *LogSender) SendPasswordResetEmail(_ context.Context, to, token, displayName string) error {
	s.log.Info().Str("to", to).Str("name", displayName).Str("token", token).Msg("password reset email")
	return nil
}
