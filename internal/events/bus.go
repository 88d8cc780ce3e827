package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"smartpdf-web/internal/pkg/logger"
	"smartpdf-web/internal/session"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Mirror receives a copy of every event, e.g. the NATS publisher.
type Mirror interface {
	Publish(ctx context.Context, event Event) error
}

// Bus publishes Store changes on an in-process watermill Pub/Sub. Delivery
// order across messages is not guaranteed; consumers order by
// Snapshot.Version.
type Bus struct {
	pubSub *gochannel.GoChannel
	logger logger.ILogger
}

func NewBus(log logger.ILogger) *Bus {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Bus{
		pubSub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, newWatermillLogger(log)),
		logger: log,
	}
}

// Notifier returns the session.Notifier for one workspace's Store.
func (b *Bus) Notifier(workspaceID string) session.Notifier {
	return session.NotifierFunc(func(change session.Change) {
		evt := SessionChanged{
			WorkspaceID: workspaceID,
			Reason:      change.Reason,
			Snapshot:    change.Snapshot,
			OccurredAt:  time.Now(),
		}
		if err := b.Publish(evt); err != nil {
			b.logger.Error("EventBus", "Failed to publish session change", map[string]interface{}{
				"workspace_id": workspaceID,
				"reason":       string(change.Reason),
				"error":        err.Error(),
			})
		}
	})
}

func (b *Bus) Publish(evt SessionChanged) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal session change: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("workspace_id", evt.WorkspaceID)
	msg.Metadata.Set("event_type", evt.EventType())

	return b.pubSub.Publish(TopicSessionChanged, msg)
}

// Subscribe decodes session changes until ctx is cancelled or the bus closes.
func (b *Bus) Subscribe(ctx context.Context) (<-chan SessionChanged, error) {
	messages, err := b.pubSub.Subscribe(ctx, TopicSessionChanged)
	if err != nil {
		return nil, err
	}

	out := make(chan SessionChanged, 64)
	go func() {
		defer close(out)
		for msg := range messages {
			var evt SessionChanged
			if err := json.Unmarshal(msg.Payload, &evt); err != nil {
				b.logger.Error("EventBus", "Failed to unmarshal session change", map[string]interface{}{
					"message_id": msg.UUID,
					"error":      err.Error(),
				})
				msg.Ack() // Ack invalid messages to prevent redelivery
				continue
			}
			msg.Ack()

			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// StartMirror forwards every event to mirror. A failing mirror is logged
// and never slows the Stores.
func (b *Bus) StartMirror(ctx context.Context, mirror Mirror) error {
	changes, err := b.Subscribe(ctx)
	if err != nil {
		return err
	}

	go func() {
		for evt := range changes {
			pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := mirror.Publish(pubCtx, evt); err != nil {
				b.logger.Warn("EventBus", "Mirror publish failed", map[string]interface{}{
					"event_type": evt.EventType(),
					"error":      err.Error(),
				})
			}
			cancel()
		}
	}()
	return nil
}

func (b *Bus) Close() error {
	return b.pubSub.Close()
}
