package ingestion

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"moxie-indexer/internal/watch"
)

// WatchPublisher publishes watch requests to a JetStream subject.
// The message id is derived from the request, so the stream's duplicate
// window drops re-registrations.
type WatchPublisher struct {
	js      jetstream.JetStream
	subject string
}

// NewWatchPublisher ensures the watch stream exists and returns a publisher on subject.
func NewWatchPublisher(ctx context.Context, js jetstream.JetStream, stream, subject string) (*WatchPublisher, error) {
	if err := EnsureStream(ctx, js, stream, []string{subject}); err != nil {
		return nil, err
	}
	return &WatchPublisher{js: js, subject: subject}, nil
}

// Register publishes req.
func (p *WatchPublisher) Register(ctx context.Context, req watch.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal watch request: %w", err)
	}

	msgID := string(req.Template) + ":" + req.Address
	if _, err := p.js.Publish(ctx, p.subject, data, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("publish watch %s: %w", msgID, err)
	}
	return nil
}

var _ watch.Registry = (*WatchPublisher)(nil)
