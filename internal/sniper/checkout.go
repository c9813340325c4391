package sniper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nbenliogludev/go-ticket-sniper/internal/browser"
)

type CheckoutState int

const (
	Detected CheckoutState = iota
	FormFilled
	Submitted
	Confirmed
	CheckoutAborted
	CheckoutFailed
)

func (s CheckoutState) String() string {
	switch s {
	case Detected:
		return "detected"
	case FormFilled:
		return "form_filled"
	case Submitted:
		return "submitted"
	case Confirmed:
		return "confirmed"
	case CheckoutAborted:
		return "aborted"
	case CheckoutFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const confirmPollEvery = 500 * time.Millisecond

// Checkout drives one session through fill -> submit -> confirm. The race
// flag is re-checked before every forward step: once another worker has won,
// no further fill/click ever reaches the page. Each step runs under its own
// deadline so a stalled page yields CheckoutFailed, never a hang.
type Checkout struct {
	plan        CheckoutPlan
	stepTimeout time.Duration
	flag        *Flag
	sleep       sleepFunc
	log         *slog.Logger
}

func NewCheckout(cfg Config, flag *Flag, log *slog.Logger) *Checkout {
	return &Checkout{
		plan:        cfg.Checkout,
		stepTimeout: time.Duration(cfg.CheckoutTimeout),
		flag:        flag,
		sleep:       sleepCtx,
		log:         log,
	}
}

// Run returns the terminal state and, for CheckoutFailed, the cause.
func (c *Checkout) Run(ctx context.Context, sess browser.Session) (CheckoutState, error) {
	state := Detected

	steps := []struct {
		next CheckoutState
		do   func(context.Context) error
	}{
		{FormFilled, func(stepCtx context.Context) error { return c.fillForm(stepCtx, sess) }},
		{Submitted, func(stepCtx context.Context) error { return sess.Click(stepCtx, c.plan.SubmitSelector) }},
		{Confirmed, func(stepCtx context.Context) error { return c.awaitConfirmation(stepCtx, sess) }},
	}

	for _, step := range steps {
		if c.cancelled(ctx) {
			c.log.Info("checkout aborted", "at", state.String())
			return CheckoutAborted, nil
		}

		stepCtx, cancel := context.WithTimeout(ctx, c.stepTimeout)
		err := step.do(stepCtx)
		cancel()

		if err != nil {
			// A failed call after the race was decided is just the abort
			// showing up through the session.
			if c.cancelled(ctx) {
				return CheckoutAborted, nil
			}
			if isTimeout(err) {
				return CheckoutFailed, fmt.Errorf("%w at %s: %v", ErrCheckoutTimeout, step.next, err)
			}
			return CheckoutFailed, fmt.Errorf("checkout %s failed: %w", step.next, err)
		}

		state = step.next
		c.log.Info("checkout advanced", "state", state.String())
	}

	return Confirmed, nil
}

var errRaceOver = errors.New("race already decided")

func (c *Checkout) fillForm(ctx context.Context, sess browser.Session) error {
	for _, f := range c.plan.Fields {
		if c.cancelled(ctx) {
			return errRaceOver
		}
		if err := sess.Fill(ctx, f.Selector, f.Value); err != nil {
			return err
		}
	}
	return nil
}

// awaitConfirmation re-reads the page until a confirm marker shows up or the
// step deadline kills it.
func (c *Checkout) awaitConfirmation(ctx context.Context, sess browser.Session) error {
	for {
		page, err := sess.ReadPage(ctx)
		if err != nil {
			return err
		}

		haystack := strings.ToLower(page.Title + "\n" + page.Text)
		for _, marker := range c.plan.ConfirmMarkers {
			if marker != "" && strings.Contains(haystack, strings.ToLower(marker)) {
				return nil
			}
		}

		if err := c.sleep(ctx, confirmPollEvery); err != nil {
			return err
		}
	}
}

func (c *Checkout) cancelled(ctx context.Context) bool {
	if c.flag != nil && c.flag.IsSet() {
		return true
	}
	return ctx.Err() != nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *browser.SessionError
	return errors.As(err, &se) && se.Kind == browser.ErrTimeout
}
