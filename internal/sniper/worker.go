package sniper

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/nbenliogludev/go-ticket-sniper/internal/browser"
)

type WorkerState int32

const (
	Polling WorkerState = iota
	CheckingOut
	Succeeded
	Aborted
	Failed
)

func (s WorkerState) String() string {
	switch s {
	case Polling:
		return "polling"
	case CheckingOut:
		return "checking_out"
	case Succeeded:
		return "succeeded"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Report is a worker's single terminal message to the orchestrator.
type Report struct {
	WorkerID int
	State    WorkerState
	Err      error
}

// Worker binds one session to one poller and one checkout machine. The
// session is exclusively its own: created for it, closed by it on every exit
// path. Only the worker writes its state; the orchestrator just reads it.
type Worker struct {
	id       int
	sess     browser.Session
	poller   *Poller
	checkout *Checkout
	flag     *Flag
	log      *slog.Logger

	state atomic.Int32
}

func NewWorker(id int, sess browser.Session, poller *Poller, checkout *Checkout, flag *Flag, log *slog.Logger) *Worker {
	return &Worker{
		id:       id,
		sess:     sess,
		poller:   poller,
		checkout: checkout,
		flag:     flag,
		log:      log.With("worker", id),
	}
}

func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

func (w *Worker) setState(s WorkerState) {
	w.state.Store(int32(s))
	w.log.Debug("worker state", "state", s.String())
}

// Run executes the worker's whole life: navigate, poll, check out, report.
// It always returns exactly one Report and always closes the session first.
func (w *Worker) Run(ctx context.Context, targetURL string) Report {
	defer func() {
		if err := w.sess.Close(); err != nil {
			w.log.Warn("session close failed", "err", err)
		}
	}()

	w.setState(Polling)

	if err := w.sess.Navigate(ctx, targetURL); err != nil {
		if w.raceOver(ctx) {
			return w.terminal(Aborted, nil)
		}
		return w.terminal(Failed, err)
	}

	if err := w.poller.Run(ctx, w.sess); err != nil {
		if w.raceOver(ctx) || errors.Is(err, context.Canceled) {
			return w.terminal(Aborted, nil)
		}
		return w.terminal(Failed, err)
	}

	// Availability seen. One last flag check before touching the form.
	if w.raceOver(ctx) {
		return w.terminal(Aborted, nil)
	}
	w.setState(CheckingOut)

	end, err := w.checkout.Run(ctx, w.sess)
	switch end {
	case Confirmed:
		return w.terminal(Succeeded, nil)
	case CheckoutAborted:
		return w.terminal(Aborted, nil)
	default:
		return w.terminal(Failed, err)
	}
}

func (w *Worker) raceOver(ctx context.Context) bool {
	if w.flag != nil && w.flag.IsSet() {
		return true
	}
	return ctx.Err() != nil
}

func (w *Worker) terminal(s WorkerState, err error) Report {
	w.setState(s)
	if err != nil {
		w.log.Warn("worker finished", "state", s.String(), "err", err)
	} else {
		w.log.Info("worker finished", "state", s.String())
	}
	return Report{WorkerID: w.id, State: s, Err: err}
}
