package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-accounts"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes JSON events to an exchange
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body any) error
	Close()
}

// AMQPPublisher publishes to a durable topic exchange. The channel is
// reopened once when a publish fails.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	declared map[string]bool
	logger   accounts.Logger
}

var _ Publisher = (*AMQPPublisher)(nil)

// NewAMQPPublisher dials rawURL with a bounded timeout
func NewAMQPPublisher(rawURL string, dialTimeout time.Duration, logger accounts.Logger) (*AMQPPublisher, error) {
	cleanURL, err := sanitizeAMQPURL(rawURL)
	if err != nil {
		return nil, err
	}
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	if logger == nil {
		logger = noopLogger{}
	}

	return &AMQPPublisher{
		conn:     conn,
		channel:  ch,
		declared: map[string]bool{},
		logger:   logger,
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, exchange, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publish(ctx, exchange, routingKey, payload)
	if err == nil {
		return nil
	}

	p.logger.Warn("amqp publish failed, reopening channel", "exchange", exchange, "routing_key", routingKey, "error", err)
	if reopenErr := p.reopen(); reopenErr != nil {
		return errors.Join(err, reopenErr)
	}
	return p.publish(ctx, exchange, routingKey, payload)
}

func (p *AMQPPublisher) publish(ctx context.Context, exchange, routingKey string, payload []byte) error {
	if !p.declared[exchange] {
		if err := p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", exchange, err)
		}
		p.declared[exchange] = true
	}

	return p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	})
}

func (p *AMQPPublisher) reopen() error {
	if p.conn == nil || p.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("reopen amqp channel: %w", err)
	}
	if p.channel != nil {
		_ = p.channel.Close()
	}
	p.channel = ch
	p.declared = map[string]bool{}
	return nil
}

func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// LogPublisher logs events instead of publishing them. Used when no broker
// is configured.
type LogPublisher struct {
	Logger accounts.Logger
}

var _ Publisher = LogPublisher{}

func (p LogPublisher) Publish(_ context.Context, exchange, routingKey string, body any) error {
	logger := p.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	logger.Info("notification not published, no broker configured", "exchange", exchange, "routing_key", routingKey, "body", body)
	return nil
}

func (LogPublisher) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}

	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("parse amqp url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("amqp url scheme must be amqp:// or amqps://")
	}
	return clean, nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
