package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"flariki/internal/domain"
	"flariki/internal/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Dispatcher fans notification batches out to a Notifier with a bounded number
// of concurrent sends. Failures are logged and counted, never retried.
type Dispatcher struct {
	notifier domain.Notifier
	sem      chan struct{}
	limiter  *rate.Limiter
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	logger   *zerolog.Logger
}

// NewDispatcher creates a dispatcher with workers concurrent sends and at most
// perSecond messages per second overall (0 disables the limit).
func NewDispatcher(notifier domain.Notifier, workers int, perSecond float64, logger *zerolog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "dispatcher").Logger()

	var limiter *rate.Limiter
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), workers)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		notifier: notifier,
		sem:      make(chan struct{}, workers),
		limiter:  limiter,
		ctx:      ctx,
		cancel:   cancel,
		logger:   &l,
	}
}

// Dispatch starts delivering the batch and returns immediately.
func (d *Dispatcher) Dispatch(b domain.Batch) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn().Str("batch", b.Name).Int("size", len(b.Notifications)).Msg("dispatcher closed, batch dropped")
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(b)
	}()
}

func (d *Dispatcher) run(b domain.Batch) {
	var delivered, failed atomic.Int64
	var wg sync.WaitGroup

	for _, n := range b.Notifications {
		if d.limiter != nil {
			if err := d.limiter.Wait(d.ctx); err != nil {
				failed.Add(1)
				continue
			}
		}
		select {
		case d.sem <- struct{}{}:
		case <-d.ctx.Done():
			failed.Add(1)
			continue
		}

		wg.Add(1)
		go func(n domain.Notification) {
			defer wg.Done()
			defer func() { <-d.sem }()

			if err := d.notifier.Notify(d.ctx, n); err != nil {
				failed.Add(1)
				d.logger.Warn().Err(err).Str("batch", b.Name).Int64("telegram_id", n.TelegramID).Msg("notification failed")
				return
			}
			delivered.Add(1)
		}(n)
	}
	wg.Wait()

	ok, bad := int(delivered.Load()), int(failed.Load())
	metrics.AddNotifications(b.Name, ok, bad)
	d.logger.Debug().Str("batch", b.Name).Int("delivered", ok).Int("failed", bad).Msg("batch done")
	if b.OnDone != nil {
		b.OnDone(ok, bad)
	}
}

// Close stops accepting batches and waits for running ones until ctx is done;
// then pending sends are cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
