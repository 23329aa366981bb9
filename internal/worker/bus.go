// Package worker runs the eager promotion path: promotion events published
// by the booking service are consumed here and trigger a waitlist sweep of
// the affected conference.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/conference-booking/internal/model"
	"github.com/Shivanand-hulikatti/conference-booking/internal/rabbit"
)

// ErrBusFull is returned by ChannelBus.Notify when its buffer is full.
var ErrBusFull = errors.New("promotion bus full")

// Bus carries promotion events from the booking service to the promoter.
type Bus interface {
	Notify(ctx context.Context, event model.PromotionEvent) error
	// Consume delivers events to handle until ctx is cancelled.
	Consume(ctx context.Context, handle func(context.Context, model.PromotionEvent) error) error
}

// ChannelBus is an in-process Bus backed by a buffered channel. Notify never
// blocks: when the buffer is full the event is dropped and the next lazy
// sweep picks the slot up instead.
type ChannelBus struct {
	events chan model.PromotionEvent
	log    *zerolog.Logger
}

// NewChannelBus constructs a ChannelBus holding up to size pending events.
func NewChannelBus(size int, log *zerolog.Logger) *ChannelBus {
	if size < 1 {
		size = 1
	}
	return &ChannelBus{events: make(chan model.PromotionEvent, size), log: log}
}

func (b *ChannelBus) Notify(ctx context.Context, event model.PromotionEvent) error {
	select {
	case b.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBusFull
	}
}

func (b *ChannelBus) Consume(ctx context.Context, handle func(context.Context, model.PromotionEvent) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-b.events:
			if err := handle(ctx, event); err != nil {
				b.log.Warn().Err(err).Str("conference", event.Conference).Msg("promotion event dropped")
			}
		}
	}
}

// AMQPBus carries promotion events over RabbitMQ so that any replica's worker
// can run the sweep.
type AMQPBus struct {
	client *rabbit.Client
	log    *zerolog.Logger
}

// NewAMQPBus wraps client.
func NewAMQPBus(client *rabbit.Client, log *zerolog.Logger) *AMQPBus {
	return &AMQPBus{client: client, log: log}
}

func (b *AMQPBus) Notify(ctx context.Context, event model.PromotionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal promotion event: %w", err)
	}
	return b.client.Publish(ctx, payload)
}

func (b *AMQPBus) Consume(ctx context.Context, handle func(context.Context, model.PromotionEvent) error) error {
	return b.client.Consume(ctx, func(body []byte) error {
		var event model.PromotionEvent
		if err := json.Unmarshal(body, &event); err != nil {
			// A malformed message would be requeued forever; drop it.
			b.log.Error().Err(err).Str("body", string(body)).Msg("failed to unmarshal promotion event")
			return nil
		}
		return handle(ctx, event)
	})
}
