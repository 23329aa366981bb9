package service

import (
	"context"
	"time"

	"github.com/Shivanand-hulikatti/conference-booking/internal/model"
)

// Notifier receives promotion events once the transaction that produced
// them has committed. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, event model.PromotionEvent) error
}

// Option customises a service.
type Option func(*options)

type options struct {
	now           func() time.Time
	confirmWindow time.Duration
	notifier      Notifier
}

func newOptions(opts []Option) options {
	o := options{
		now:           func() time.Time { return time.Now().UTC() },
		confirmWindow: DefaultConfirmWindow,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithConfirmWindow sets how long a granted confirmation window stays open.
func WithConfirmWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.confirmWindow = d
		}
	}
}

// WithNotifier publishes promotion events to n, enabling eager promotion.
func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}
