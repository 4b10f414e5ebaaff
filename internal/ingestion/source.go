package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"moxie-indexer/internal/config"
	"moxie-indexer/internal/event"
)

const ackTimeout = 5 * time.Second

// Handler applies one decoded event. processor.Processor implements it.
type Handler interface {
	OnEvent(ctx context.Context, ev event.Event) error
}

// Source pulls events from a durable JetStream consumer and hands them to a
// Handler one at a time, in stream order.
type Source struct {
	consumer jetstream.Consumer
	handler  Handler
	log      zerolog.Logger
}

// NewSource ensures the event stream and its durable consumer exist.
// The consumer allows a single unacknowledged message so events are never
// applied out of order.
func NewSource(ctx context.Context, js jetstream.JetStream, cfg config.NATSConfig, handler Handler, log zerolog.Logger) (*Source, error) {
	if err := EnsureStream(ctx, js, cfg.Stream, cfg.Subjects); err != nil {
		return nil, err
	}

	ackWait := cfg.AckWait
	if ackWait == 0 {
		ackWait = 30 * time.Second
	}
	consumerCfg := jetstream.ConsumerConfig{
		Durable:       cfg.Durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		MaxAckPending: 1,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}
	if len(cfg.Subjects) == 1 {
		consumerCfg.FilterSubject = cfg.Subjects[0]
	} else {
		consumerCfg.FilterSubjects = cfg.Subjects
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, cfg.Stream, consumerCfg)
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", cfg.Durable, err)
	}

	log.Info().
		Str("stream", cfg.Stream).
		Strs("subjects", cfg.Subjects).
		Str("consumer", cfg.Durable).
		Msg("subscribed")

	return &Source{consumer: consumer, handler: handler, log: log}, nil
}

// Run consumes until ctx is cancelled or an event fails.
//
// A message that cannot be decoded is terminated and a message whose event
// fails is nacked; both stop the run, since applying later events would
// break ordering. Returns nil when ctx is cancelled.
func (s *Source) Run(ctx context.Context) error {
	it, err := s.consumer.Messages()
	if err != nil {
		return fmt.Errorf("open message iterator: %w", err)
	}
	defer it.Stop()

	// Cancellation unblocks Next.
	release := context.AfterFunc(ctx, it.Stop)
	defer release()

	for {
		msg, err := it.Next()
		if err != nil {
			if errors.Is(err, jetstream.ErrMsgIteratorClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("next message: %w", err)
		}

		if err := s.handle(ctx, msg); err != nil {
			return err
		}
	}
}

func (s *Source) handle(ctx context.Context, msg jetstream.Msg) error {
	ev, err := event.Decode(msg.Data())
	if err != nil {
		if termErr := msg.Term(); termErr != nil {
			s.log.Warn().Err(termErr).Str("subject", msg.Subject()).Msg("term failed")
		}
		return fmt.Errorf("decode message on %s: %w", msg.Subject(), err)
	}

	if err := s.handler.OnEvent(ctx, ev); err != nil {
		if nakErr := msg.Nak(); nakErr != nil {
			s.log.Warn().Err(nakErr).Str("subject", msg.Subject()).Msg("nak failed")
		}
		return err
	}

	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()
	if err := msg.DoubleAck(ackCtx); err != nil {
		// The event is committed; a redelivery is skipped by the checkpoint.
		s.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("ack failed")
	}
	return nil
}
