package transport

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// MailSender is satisfied by *sendgrid.Client.
type MailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type SendGridTransport struct {
	client   MailSender
	fromName string
	fromMail string
}

func NewSendGridClient(apiKey string) MailSender {
	return sendgrid.NewSendClient(apiKey)
}

func NewSendGridTransport(client MailSender, fromName, fromMail string) *SendGridTransport {
	return &SendGridTransport{client: client, fromName: fromName, fromMail: fromMail}
}

func (t *SendGridTransport) Name() string { return "sendgrid" }

func (t *SendGridTransport) Send(ctx context.Context, msg Message) (*Result, error) {
	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(t.fromName, t.fromMail))
	message.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail("", msg.To))
	message.AddPersonalizations(p)
	message.AddContent(mail.NewContent("text/plain", msg.Body))

	resp, err := t.client.SendWithContext(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("sendgrid send error: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("sendgrid API error: %d %s", resp.StatusCode, resp.Body)
	}

	var ref string
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		ref = ids[0]
	}
	return &Result{Provider: t.Name(), ProviderReference: ref}, nil
}
