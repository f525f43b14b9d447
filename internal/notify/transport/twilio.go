package transport

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// MessageCreator is the part of the Twilio REST API the SMS transport uses.
type MessageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

type TwilioTransport struct {
	client     MessageCreator
	fromNumber string
}

// NewTwilioClient builds the REST client from account credentials.
func NewTwilioClient(accountSID, authToken string) MessageCreator {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return client.Api
}

func NewTwilioTransport(client MessageCreator, fromNumber string) *TwilioTransport {
	return &TwilioTransport{client: client, fromNumber: fromNumber}
}

func (t *TwilioTransport) Name() string { return "twilio" }

// Send honours ctx even though the Twilio client takes none; an expired
// context is reported as a failure while the request finishes in the
// background.
func (t *TwilioTransport) Send(ctx context.Context, msg Message) (*Result, error) {
	params := &api.CreateMessageParams{}
	params.SetBody(msg.Body)
	params.SetFrom(t.fromNumber)
	params.SetTo(msg.To)

	type outcome struct {
		resp *api.ApiV2010Message
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := t.client.CreateMessage(params)
		done <- outcome{resp, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("twilio create message: %w", ctx.Err())
	case o := <-done:
		if o.err != nil {
			return nil, fmt.Errorf("twilio create message: %w", o.err)
		}
		if o.resp == nil || o.resp.Sid == nil {
			return nil, fmt.Errorf("twilio create message: response without sid")
		}
		return &Result{Provider: t.Name(), ProviderReference: *o.resp.Sid}, nil
	}
}
