package transport

import (
	"context"
	"fmt"

	awsx "course-notify/internal/common/aws"
	"course-notify/internal/common/config"
	"course-notify/internal/models"
)

// Registry holds one transport per channel.
type Registry struct {
	transports map[models.Channel]Transport
}

func NewRegistry(transports map[models.Channel]Transport) *Registry {
	return &Registry{transports: transports}
}

func (r *Registry) For(channel models.Channel) (Transport, error) {
	t, ok := r.transports[channel]
	if !ok {
		return nil, fmt.Errorf("no transport configured for channel %q", channel)
	}
	return t, nil
}

// FromConfig builds the providers selected by notifications.email.provider
// and notifications.sms.provider.
func FromConfig(ctx context.Context, cfg *config.Config) (*Registry, error) {
	transports := make(map[models.Channel]Transport, 2)
	integrations := cfg.Integrations

	switch cfg.Notifications.Email.Provider {
	case "sendgrid":
		transports[models.ChannelEmail] = NewSendGridTransport(
			NewSendGridClient(integrations.SendGrid.APIKey),
			integrations.SendGrid.FromName,
			integrations.SendGrid.FromEmail,
		)
	default:
		client, err := awsx.NewSESClient(ctx, integrations.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("ses client: %w", err)
		}
		transports[models.ChannelEmail] = NewSESTransport(client, integrations.AWS.SES.FromEmail)
	}

	switch cfg.Notifications.SMS.Provider {
	case "twilio":
		transports[models.ChannelSMS] = NewTwilioTransport(
			NewTwilioClient(integrations.Twilio.AccountSID, integrations.Twilio.AuthToken),
			integrations.Twilio.FromNumber,
		)
	default:
		client, err := awsx.NewSNSClient(ctx, integrations.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("sns client: %w", err)
		}
		transports[models.ChannelSMS] = NewSNSTransport(client, integrations.AWS.SNS.SenderID)
	}

	return NewRegistry(transports), nil
}
