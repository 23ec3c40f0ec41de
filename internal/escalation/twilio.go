package escalation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is the part of the Twilio API the notifier uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// SMSNotifier sends the alert as a text message through Twilio.
type SMSNotifier struct {
	api    messageCreator
	from   string
	to     string
	logger *slog.Logger
}

// NewSMSNotifier creates a Twilio-backed notifier.
func NewSMSNotifier(accountSID, authToken, from, to string) (*SMSNotifier, error) {
	if accountSID == "" || authToken == "" {
		return nil, errors.New("twilio account SID and auth token are required")
	}
	if from == "" || to == "" {
		return nil, errors.New("twilio sender and recipient numbers are required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &SMSNotifier{api: client.Api, from: from, to: to, logger: slog.Default()}, nil
}

// Name identifies the notifier in logs.
func (n *SMSNotifier) Name() string {
	return "sms"
}

// Notify sends one SMS. The Twilio client has no context support, so ctx is
// only checked before sending; the service bounds the call with a timeout.
func (n *SMSNotifier) Notify(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(n.from)
	params.SetTo(n.to)
	params.SetBody(alert.Message())

	resp, err := n.api.CreateMessage(params)
	if err != nil {
		return err
	}
	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	n.logger.Debug("sms accepted", "sid", sid, "cycle_id", alert.CycleID)
	return nil
}
