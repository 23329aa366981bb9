package worker

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/conference-booking/internal/model"
	"github.com/Shivanand-hulikatti/conference-booking/internal/service"
)

// Maintainer sweeps one conference's waitlist.
type Maintainer interface {
	Maintain(ctx context.Context, conference string) (service.SweepReport, error)
}

// Promoter consumes promotion events and sweeps the named conference.
type Promoter struct {
	bus        Bus
	maintainer Maintainer
	log        *zerolog.Logger
	done       chan struct{}
	cancel     context.CancelFunc
}

// NewPromoter constructs a Promoter.
func NewPromoter(bus Bus, maintainer Maintainer, log *zerolog.Logger) *Promoter {
	return &Promoter{
		bus:        bus,
		maintainer: maintainer,
		log:        log,
		done:       make(chan struct{}),
	}
}

// Start consumes in the background until ctx is cancelled or Stop is called.
func (p *Promoter) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.log.Info().Msg("promotion worker started")
	go func() {
		defer close(p.done)
		if err := p.bus.Consume(cctx, p.handle); err != nil {
			p.log.Error().Err(err).Msg("promotion worker stopped consuming")
			return
		}
		p.log.Info().Msg("promotion worker stopped")
	}()
}

// Stop cancels consumption and waits for the worker to exit.
func (p *Promoter) Stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
}

func (p *Promoter) handle(ctx context.Context, event model.PromotionEvent) error {
	report, err := p.maintainer.Maintain(ctx, event.Conference)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			p.log.Warn().Str("conference", event.Conference).Msg("promotion event for unknown conference")
			return nil
		}
		p.log.Error().Err(err).
			Str("conference", event.Conference).
			Str("reason", string(event.Reason)).
			Msg("waitlist sweep failed")
		return err
	}

	p.log.Info().
		Str("conference", event.Conference).
		Str("reason", string(event.Reason)).
		Str("booking_id", event.BookingID).
		Int("granted", len(report.Granted)).
		Int("requeued", len(report.Requeued)).
		Msg("waitlist swept after promotion event")
	return nil
}
