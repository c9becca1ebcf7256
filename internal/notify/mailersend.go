package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/Shivanand-hulikatti/club-ride-registration/internal/model"
	"github.com/mailersend/mailersend-go"
)

// MailerSend delivers messages through the MailerSend API.
type MailerSend struct {
	client    *mailersend.Mailersend
	fromEmail string
	fromName  string
}

// NewMailerSend returns a Mailer for the given API key and sender.
func NewMailerSend(apiKey, fromName, fromEmail string) *MailerSend {
	return &MailerSend{
		client:    mailersend.NewMailersend(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

// Send delivers msg through the MailerSend API.
func (m *MailerSend) Send(ctx context.Context, msg Message) error {
	message := m.client.Email.NewMessage()
	message.SetFrom(mailersend.From{Name: m.fromName, Email: m.fromEmail})
	message.SetRecipients([]mailersend.Recipient{{Name: msg.ToName, Email: msg.To}})
	message.SetSubject(msg.Subject)
	message.SetText(msg.Text)
	message.SetHTML(msg.HTML)
	message.SetTags([]string{"waitlist-promotion"})

	res, err := m.client.Email.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("%w: mailersend: %v", model.ErrUpstreamUnavailable, err)
	}
	log.Printf("promotion email queued message_id=%s registration=%s", res.Header.Get("X-Message-Id"), msg.Metadata["registration_id"])
	return nil
}
