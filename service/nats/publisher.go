package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/neardonate/service/metrics"
	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher defines the interface for publishing donation events to NATS.
type Publisher interface {
	// PublishDonation publishes a single donation event to JetStream.
	// The event is published to the subject "donations.{account_id}".
	PublishDonation(ctx context.Context, event *DonationEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// Subscriber delivers donation events as they are published.
type Subscriber interface {
	// Subscribe calls handler for every new event for accountID (all donors
	// when empty) until ctx is done. Only events published after the call
	// are delivered.
	Subscribe(ctx context.Context, accountID string, handler func(*DonationEvent)) error
}

// JetStreamPublisher publishes donation events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for donations.
	StreamName = "DONATIONS"

	// StreamSubjects is the subject pattern for the stream. Account ids
	// contain dots, so the full wildcard is needed.
	StreamSubjects = "donations.>"

	// StreamRetention is how long messages are retained (30 days by default).
	StreamRetention = 30 * 24 * time.Hour
)

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists. If metrics is nil, no
// metrics are recorded.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("neardonate"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	_, err = p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Confirmed donations to NEAR donation contracts",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishDonation publishes a single donation event.
func (p *JetStreamPublisher) PublishDonation(ctx context.Context, event *DonationEvent) error {
	if event.AccountID == "" {
		return fmt.Errorf("%w: %s", ErrMissingAccount, event.TxHash)
	}
	subject := Subject(event.AccountID)
	start := time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal donation event: %w", err)
	}

	// The tx hash doubles as the message id so retried publishes are deduplicated
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.TxHash)); err != nil {
		p.recordPublish(subject, "error", start)
		return fmt.Errorf("failed to publish donation: %w", err)
	}
	p.recordPublish(subject, "success", start)

	p.logger.Debug("published donation event",
		"subject", subject,
		"tx_hash", event.TxHash,
		"account_id", event.AccountID,
	)

	return nil
}

// Subscribe creates an ephemeral consumer that delivers new events only.
func (p *JetStreamPublisher) Subscribe(ctx context.Context, accountID string, handler func(*DonationEvent)) error {
	cons, err := p.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: Subject(accountID),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		var event DonationEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			p.logger.Warn("failed to unmarshal donation event",
				"subject", msg.Subject(),
				"error", err,
			)
			_ = msg.Ack()
			return
		}
		handler(&event)
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	<-ctx.Done()
	cc.Stop()
	return nil
}

func (p *JetStreamPublisher) recordPublish(subject, status string, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	}
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
