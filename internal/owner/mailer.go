package owner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"
)

// ErrMailerNotConfigured is returned when no Resend API key is set.
var ErrMailerNotConfigured = errors.New("Missing RESEND_API_KEY in backend environment.")

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
	ReplyTo string
}

// Mailer delivers an email and returns the provider's message id.
type Mailer interface {
	Send(ctx context.Context, email Email) (string, error)
}

// ResendMailer sends mail through the Resend API.
type ResendMailer struct {
	apiKey string
	from   string
	client *resend.Client
}

func NewResendMailer(apiKey, from string) *ResendMailer {
	return &ResendMailer{
		apiKey: apiKey,
		from:   from,
		client: resend.NewClient(apiKey),
	}
}

func (m *ResendMailer) Send(ctx context.Context, email Email) (string, error) {
	if strings.TrimSpace(m.apiKey) == "" {
		return "", ErrMailerNotConfigured
	}

	sent, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{email.To},
		Subject: email.Subject,
		Text:    email.Text,
		Html:    email.HTML,
		ReplyTo: email.ReplyTo,
	})
	if err != nil {
		return "", fmt.Errorf("email provider request failed: %w", err)
	}
	if sent == nil || sent.Id == "" {
		return "", errors.New("Email provider returned no message id.")
	}
	return sent.Id, nil
}
