package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"smartpdf-web/internal/pkg/logger"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	natsStream        = "EVENTS"
	natsSubjectPrefix = "events"
)

// NatsPublisher mirrors lifecycle events to a JetStream stream.
type NatsPublisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewNatsPublisher(url string, log logger.ILogger) (*NatsPublisher, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      natsStream,
		Subjects:  []string{natsSubjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		// It may already exist with other settings, or NATS is still starting.
		log.Warn("NatsPublisher", "Failed to ensure stream", map[string]interface{}{
			"stream": natsStream,
			"error":  err.Error(),
		})
	}

	return &NatsPublisher{nc: nc, js: js}, nil
}

// Publish sends the event payload to events.<type>.
func (p *NatsPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event.Payload())
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	subject := Subject(event)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", subject, err)
	}
	return nil
}

func (p *NatsPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// Subject is the NATS subject an event is mirrored to.
func Subject(event Event) string {
	return fmt.Sprintf("%s.%s", natsSubjectPrefix, event.EventType())
}
