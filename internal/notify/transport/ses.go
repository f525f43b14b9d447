package transport

import (
	"context"
	"fmt"

	awsx "course-notify/internal/common/aws"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

type SESTransport struct {
	client    awsx.SESAPI
	fromEmail string
}

func NewSESTransport(client awsx.SESAPI, fromEmail string) *SESTransport {
	return &SESTransport{client: client, fromEmail: fromEmail}
}

func (t *SESTransport) Name() string { return "ses" }

func (t *SESTransport) Send(ctx context.Context, msg Message) (*Result, error) {
	out, err := t.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(msg.Body)},
			},
		},
		Source: aws.String(t.fromEmail),
	})
	if err != nil {
		return nil, fmt.Errorf("ses send email: %w", err)
	}
	return &Result{Provider: t.Name(), ProviderReference: stringValue(out.MessageId)}, nil
}
