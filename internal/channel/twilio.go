package channel

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	appErrors "github.com/unclebandit/leadreach-backend/internal/errors"
	"github.com/unclebandit/leadreach-backend/internal/model"
)

// TwilioAdapter sends over Twilio's messaging API. One instance serves one
// channel: WhatsApp (contacts prefixed "whatsapp:") or plain SMS.
type TwilioAdapter struct {
	client  *twilio.RestClient
	from    string
	channel model.Channel
}

func NewTwilioAdapter(accountSID, authToken, from string, ch model.Channel) *TwilioAdapter {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioAdapter{client: client, from: from, channel: ch}
}

func (a *TwilioAdapter) Channel() model.Channel { return a.channel }

// Both Twilio channels go through the managed REST API.
func (a *TwilioAdapter) TransportMethod() model.TransportMethod { return model.TransportAPI }

func (a *TwilioAdapter) Send(ctx context.Context, contact, content string) (string, error) {
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(a.address(contact))
	params.SetFrom(a.address(a.from))
	params.SetBody(content)

	resp, err := a.client.Api.CreateMessage(params)
	if err != nil {
		return "", a.classify(err)
	}
	if resp.Sid == nil {
		return "", appErrors.NewTransportError(string(a.channel), errors.New("twilio returned no message sid"))
	}
	return *resp.Sid, nil
}

func (a *TwilioAdapter) address(number string) string {
	if a.channel == model.ChannelWhatsApp {
		return "whatsapp:" + number
	}
	return number
}

func (a *TwilioAdapter) classify(err error) error {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		switch {
		case restErr.Status == http.StatusUnauthorized || restErr.Status == http.StatusForbidden:
			return appErrors.NewAuthError(string(a.channel), err)
		case restErr.Status == http.StatusTooManyRequests:
			return appErrors.NewRateLimited(string(a.channel), time.Minute, err)
		case restErr.Code == 21211 || restErr.Code == 21614: // invalid / not-a-mobile 'To' number
			return appErrors.NewValidationError(string(a.channel), restErr.Message)
		}
	}
	return appErrors.NewTransportError(string(a.channel), err)
}

var _ Adapter = (*TwilioAdapter)(nil)
