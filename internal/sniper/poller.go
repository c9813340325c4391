package sniper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nbenliogludev/go-ticket-sniper/internal/browser"
	"github.com/nbenliogludev/go-ticket-sniper/internal/detect"
)

// sleepFunc waits for d or until ctx is done. Injected in tests so polling
// scenarios run without real waiting.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Poller watches one page for availability. Transient session or detector
// errors back off exponentially up to backoffCap; a clean "not yet" read
// resets the interval. The backoff state is all local: interval, consecutive
// error count, nothing shared.
type Poller struct {
	interval   time.Duration
	backoffCap time.Duration
	maxErrors  int
	detector   detect.Detector
	sleep      sleepFunc
	log        *slog.Logger
}

func NewPoller(cfg Config, det detect.Detector, log *slog.Logger) *Poller {
	return &Poller{
		interval:   time.Duration(cfg.PollInterval),
		backoffCap: time.Duration(cfg.PollBackoffCap),
		maxErrors:  cfg.MaxPollErrors,
		detector:   det,
		sleep:      sleepCtx,
		log:        log,
	}
}

// Run polls until the page is available (nil), the context is cancelled
// (ctx.Err()), the session dies (SessionError{Closed}), or maxErrors
// transient failures happen in a row (ErrTooManyPollErrors).
func (p *Poller) Run(ctx context.Context, sess browser.Session) error {
	delay := p.interval
	consecutive := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := sess.ReadPage(ctx)
		if err == nil {
			var available bool
			available, err = p.detector.Detect(ctx, page)
			if err == nil && available {
				p.log.Info("availability detected", "url", page.URL, "title", page.Title)
				return nil
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if browser.IsClosed(err) {
				return err
			}
			consecutive++
			if consecutive >= p.maxErrors {
				return fmt.Errorf("%w (%d in a row): %v", ErrTooManyPollErrors, consecutive, err)
			}
			p.log.Warn("poll failed, backing off", "attempt", consecutive, "delay", delay, "err", err)
			if serr := p.sleep(ctx, delay); serr != nil {
				return serr
			}
			delay *= 2
			if delay > p.backoffCap {
				delay = p.backoffCap
			}
			continue
		}

		// Not yet available: clean read, reset the backoff.
		consecutive = 0
		delay = p.interval
		if serr := p.sleep(ctx, p.interval); serr != nil {
			return serr
		}
	}
}
