package channel

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/resendlabs/resend-go"

	appErrors "github.com/unclebandit/leadreach-backend/internal/errors"
	"github.com/unclebandit/leadreach-backend/internal/model"
)

const defaultEmailSubject = "Following up on your trade inquiry"

// ResendAdapter sends email through the Resend API. Message content may carry
// its subject on the first line separated by a blank line; otherwise a
// default outreach subject is used.
type ResendAdapter struct {
	client *resend.Client
	from   string
}

func NewResendAdapter(apiKey, from string) *ResendAdapter {
	return &ResendAdapter{client: resend.NewClient(apiKey), from: from}
}

func (a *ResendAdapter) Channel() model.Channel { return model.ChannelEmail }
func (a *ResendAdapter) TransportMethod() model.TransportMethod { return model.TransportAPI }

func (a *ResendAdapter) Send(ctx context.Context, contact, content string) (string, error) {
	if _, err := mail.ParseAddress(contact); err != nil {
		return "", appErrors.NewValidationError(string(model.ChannelEmail), "malformed email address: "+contact)
	}

	subject, body := splitSubject(content)

	params := &resend.SendEmailRequest{
		From:    a.from,
		To:      []string{contact},
		Subject: subject,
		Text:    body,
	}

	res, err := a.client.Emails.Send(params)
	if err != nil {
		return "", a.classify(err)
	}
	return res.Id, nil
}

func splitSubject(content string) (string, string) {
	head, rest, found := strings.Cut(content, "\n\n")
	if found && len(head) <= 120 && !strings.Contains(head, "\n") {
		return strings.TrimSpace(head), rest
	}
	return defaultEmailSubject, content
}

// The resend client surfaces HTTP failures as flat errors, so classification
// falls back to substring checks on the status text.
func (a *ResendAdapter) classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "api key"):
		return appErrors.NewAuthError(string(model.ChannelEmail), err)
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return appErrors.NewRateLimited(string(model.ChannelEmail), time.Minute, err)
	case strings.Contains(msg, "422") || strings.Contains(msg, "invalid"):
		return appErrors.NewValidationError(string(model.ChannelEmail), err.Error())
	}
	return appErrors.NewTransportError(string(model.ChannelEmail), err)
}

var _ Adapter = (*ResendAdapter)(nil)
