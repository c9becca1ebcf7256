// Package notify tells a waitlisted rider they have been moved into a
// confirmed seat. Delivery is best effort: callers log failures and move on.
package notify

import (
	"context"
	"fmt"
	"html"
	"log"
	"net/url"
	"strings"

	"github.com/Shivanand-hulikatti/club-ride-registration/internal/model"
)

// Notifier delivers a promotion notice.
type Notifier interface {
	NotifyPromotion(ctx context.Context, p model.Promotion) error
}

// ContactLookup resolves a user's email address.
type ContactLookup interface {
	Contact(ctx context.Context, userID string) (model.Contact, error)
}

// TitleLookup resolves an event's display title.
type TitleLookup interface {
	EventTitle(ctx context.Context, eventID int64) (string, error)
}

// TokenIssuer signs the cancellation link for a promoted registration.
type TokenIssuer interface {
	Issue(p model.Promotion) (string, error)
}

// Message is one transactional email.
type Message struct {
	To       string
	ToName   string
	Subject  string
	Text     string
	HTML     string
	Metadata map[string]string
}

// Mailer delivers a Message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// EmailNotifier gathers recipient, event title and cancel link, then mails
// the promotion notice.
type EmailNotifier struct {
	contacts ContactLookup
	titles   TitleLookup
	tokens   TokenIssuer
	mailer   Mailer
	siteURL  string
}

// NewEmailNotifier wires an EmailNotifier.
func NewEmailNotifier(contacts ContactLookup, titles TitleLookup, tokens TokenIssuer, mailer Mailer, siteURL string) *EmailNotifier {
	return &EmailNotifier{
		contacts: contacts,
		titles:   titles,
		tokens:   tokens,
		mailer:   mailer,
		siteURL:  strings.TrimRight(siteURL, "/"),
	}
}

// NotifyPromotion emails the promoted rider with a cancellation link.
func (n *EmailNotifier) NotifyPromotion(ctx context.Context, p model.Promotion) error {
	contact, err := n.contacts.Contact(ctx, p.UserID)
	if err != nil {
		return fmt.Errorf("%w: resolve contact: %w", model.ErrUpstreamUnavailable, err)
	}
	if contact.Email == "" {
		return fmt.Errorf("%w: user has no email address", model.ErrUpstreamUnavailable)
	}

	title, err := n.titles.EventTitle(ctx, p.EventID)
	if err != nil {
		return fmt.Errorf("resolve event title: %w", err)
	}

	token, err := n.tokens.Issue(p)
	if err != nil {
		return fmt.Errorf("issue cancel token: %w", err)
	}

	msg := BuildPromotionMessage(contact, title, p, n.cancelURL(token))
	if err := n.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send promotion email: %w", err)
	}
	return nil
}

func (n *EmailNotifier) cancelURL(token string) string {
	return n.siteURL + "/rides/cancel?token=" + url.QueryEscape(token)
}

// BuildPromotionMessage renders the promotion notice.
func BuildPromotionMessage(c model.Contact, eventTitle string, p model.Promotion, cancelURL string) Message {
	greeting := "Hi"
	if c.FullName != "" {
		greeting = "Hi " + c.FullName
	}
	level := model.NormalizeRideLevel(p.RideLevel)
	subject := fmt.Sprintf("You're in: %s (%s ride)", eventTitle, level)

	text := fmt.Sprintf("%s,\n\nA spot opened up and you've been moved off the waitlist for %s, %s ride. "+
		"Your place is confirmed.\n\nCan't make it any more? Cancel here so the next rider gets your spot:\n%s\n",
		greeting, eventTitle, level, cancelURL)

	body := fmt.Sprintf("<p>%s,</p><p>A spot opened up and you've been moved off the waitlist for "+
		"<strong>%s</strong>, <strong>%s</strong> ride. Your place is confirmed.</p>"+
		"<p>Can't make it any more? <a href=\"%s\">Cancel your spot</a> so the next rider gets it.</p>",
		html.EscapeString(greeting), html.EscapeString(eventTitle), html.EscapeString(level), html.EscapeString(cancelURL))

	return Message{
		To:      c.Email,
		ToName:  c.FullName,
		Subject: subject,
		Text:    text,
		HTML:    body,
		Metadata: map[string]string{
			"registration_id": p.RegistrationID,
			"event_id":        fmt.Sprint(p.EventID),
			"ride_level":      level,
		},
	}
}

// LogNotifier only logs promotions; used when no mail provider is set up.
type LogNotifier struct {
	Logger *log.Logger
}

// NotifyPromotion logs the promotion and never fails.
func (n LogNotifier) NotifyPromotion(_ context.Context, p model.Promotion) error {
	logger := n.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("promotion event=%d level=%s registration=%s", p.EventID, p.RideLevel, p.RegistrationID)
	return nil
}
