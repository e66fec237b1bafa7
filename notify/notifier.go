package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-accounts"
)

const (
	DefaultExchange = "accounts.notifications"
	RoutingKeyEmail = "notification.email"
	RoutingKeySMS   = "notification.sms"
)

// EmailEvent is consumed by the mail delivery service
type EmailEvent struct {
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	Token      string    `json:"token"`
	Link       string    `json:"link,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SMSEvent is consumed by the SMS delivery service
type SMSEvent struct {
	To         string    `json:"to"`
	Token      string    `json:"token"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier turns confirmation and reset tokens into broker events
type Notifier struct {
	publisher Publisher
	exchange  string
	links     map[string]string
}

var _ accounts.Notifier = (*Notifier)(nil)

type Option func(*Notifier)

func WithExchange(exchange string) Option {
	return func(n *Notifier) {
		if exchange != "" {
			n.exchange = exchange
		}
	}
}

// WithFrontendAddress adds a link to email events so the delivery service
// does not need to know the frontend routes
func WithFrontendAddress(address string) Option {
	return func(n *Notifier) {
		address = strings.TrimRight(address, "/")
		if address == "" {
			return
		}
		n.links = map[string]string{
			accounts.SubjectConfirmEmail:  address + "/confirm-email?token=",
			accounts.SubjectPasswordReset: address + "/reset-password?token=",
		}
	}
}

func NewNotifier(publisher Publisher, opts ...Option) *Notifier {
	n := &Notifier{
		publisher: publisher,
		exchange:  DefaultExchange,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

func (n *Notifier) SendEmail(ctx context.Context, to, subject, token string) error {
	if to == "" || token == "" {
		return errors.New("email recipient and token are required")
	}

	event := EmailEvent{
		To:         to,
		Subject:    subject,
		Token:      token,
		OccurredAt: time.Now().UTC(),
	}
	if prefix, ok := n.links[subject]; ok {
		event.Link = prefix + token
	}

	return n.publisher.Publish(ctx, n.exchange, RoutingKeyEmail, event)
}

func (n *Notifier) SendSMS(ctx context.Context, to, token string) error {
	if to == "" || token == "" {
		return errors.New("sms recipient and token are required")
	}

	return n.publisher.Publish(ctx, n.exchange, RoutingKeySMS, SMSEvent{
		To:         to,
		Token:      token,
		OccurredAt: time.Now().UTC(),
	})
}
