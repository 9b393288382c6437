package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/progress-overlay/internal/event"
)

// PubSubSink publishes each display as a JSON message on a topic. Messages
// share one ordering key so subscribers observe them in emission order.
type PubSubSink struct {
	topic       *pubsub.Topic
	orderingKey string
}

// PubSubConfig selects the ordering key; empty disables ordering.
type PubSubConfig struct {
	OrderingKey string
}

// NewPubSubSink wraps an existing topic handle.
func NewPubSubSink(topic *pubsub.Topic, cfg PubSubConfig) (*PubSubSink, error) {
	if topic == nil {
		return nil, errors.New("pubsub topic is required")
	}
	if cfg.OrderingKey != "" {
		topic.EnableMessageOrdering = true
	}
	return &PubSubSink{topic: topic, orderingKey: cfg.OrderingKey}, nil
}

// Consume publishes the batch and waits for every server ack.
func (s *PubSubSink) Consume(ctx context.Context, batch []event.Display) error {
	results := make([]*pubsub.PublishResult, 0, len(batch))
	for _, d := range batch {
		data, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal display: %w", err)
		}
		results = append(results, s.topic.Publish(ctx, &pubsub.Message{
			Data: data,
			Attributes: map[string]string{
				"source_id":  d.ID,
				"package_id": d.PackageID,
				"kind":       string(d.Kind),
				"removal":    strconv.FormatBool(d.Removal),
			},
			OrderingKey: s.orderingKey,
		}))
	}
	var errs []error
	for _, res := range results {
		if _, err := res.Get(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		if s.orderingKey != "" {
			s.topic.ResumePublish(s.orderingKey)
		}
		return fmt.Errorf("publish displays: %w", errors.Join(errs...))
	}
	return nil
}

// Close flushes outstanding messages and stops the topic's goroutines.
func (s *PubSubSink) Close(context.Context) error {
	s.topic.Stop()
	return nil
}
