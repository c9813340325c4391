package sniper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nbenliogludev/go-ticket-sniper/internal/browser"
	"github.com/nbenliogludev/go-ticket-sniper/internal/detect"
)

type Result int

const (
	ResultSuccess Result = iota
	ResultNoWinner
	ResultFatal
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultNoWinner:
		return "no_worker_succeeded"
	case ResultFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ExitCode maps a result onto the CLI contract.
func (r Result) ExitCode() int {
	switch r {
	case ResultSuccess:
		return 0
	case ResultNoWinner:
		return 1
	default:
		return 2
	}
}

// Outcome is produced exactly once per run, after every worker has
// terminated.
type Outcome struct {
	RunID    string
	Result   Result
	WinnerID *int
	Err      error
}

// Orchestrator owns the worker pool, the race flag, and the single outcome.
type Orchestrator struct {
	cfg      Config
	factory  browser.Factory
	detector detect.Detector
	log      *slog.Logger
}

func NewOrchestrator(cfg Config, factory browser.Factory, detector detect.Detector, log *slog.Logger) *Orchestrator {
	if detector == nil {
		detector = detect.DefaultKeywords()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{cfg: cfg, factory: factory, detector: detector, log: log}
}

// Run races cfg.Workers workers against the target page and returns once
// every one of them has terminated, never earlier, so no browser session is
// left orphaned. The first success sets the flag and wins; a second success
// report means the invariant broke and the run is fatal.
func (o *Orchestrator) Run(ctx context.Context) Outcome {
	runID := uuid.NewString()
	log := o.log.With("run_id", runID)

	if err := o.cfg.Validate(); err != nil {
		log.Error("refusing run", "err", err)
		return Outcome{RunID: runID, Result: ResultFatal, Err: err}
	}

	flag := NewFlag()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Flag set -> run context cancelled, so pollers sleeping on the context
	// wake up instead of finishing their interval.
	go func() {
		select {
		case <-flag.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	log.Info("starting acquisition run",
		"url", o.cfg.TargetURL, "workers", o.cfg.Workers, "browser", o.cfg.Browser)

	reports := make(chan Report, o.cfg.Workers)
	var g errgroup.Group

	for i := 0; i < o.cfg.Workers; i++ {
		g.Go(func() error {
			sess, err := o.factory.NewSession(runCtx, i)
			if err != nil {
				// A worker that never got a browser fails alone; its
				// siblings keep racing.
				log.Warn("session launch failed", "worker", i, "err", err)
				reports <- Report{WorkerID: i, State: Failed, Err: fmt.Errorf("session launch: %w", err)}
				return nil
			}

			poller := NewPoller(o.cfg, o.detector, log.With("worker", i))
			checkout := NewCheckout(o.cfg, flag, log.With("worker", i))
			w := NewWorker(i, sess, poller, checkout, flag, log)

			reports <- w.Run(runCtx, o.cfg.TargetURL)
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(reports)
	}()

	return o.collect(reports, flag, runID, log)
}

// collect arbitrates the race: first Succeeded report wins and raises the
// flag, a duplicate Succeeded is an internal-consistency failure.
func (o *Orchestrator) collect(reports <-chan Report, flag *Flag, runID string, log *slog.Logger) Outcome {
	var winner *int
	var fatal error

	for rep := range reports {
		if rep.State != Succeeded {
			continue
		}
		if winner == nil {
			id := rep.WorkerID
			winner = &id
			flag.Set()
			log.Info("worker won the race", "worker", id)
			continue
		}
		fatal = fmt.Errorf("%w: worker %d after worker %d", ErrSecondWinner, rep.WorkerID, *winner)
		log.Error("single-winner invariant broken", "err", fatal)
	}

	switch {
	case fatal != nil:
		return Outcome{RunID: runID, Result: ResultFatal, WinnerID: winner, Err: fatal}
	case winner != nil:
		return Outcome{RunID: runID, Result: ResultSuccess, WinnerID: winner}
	default:
		log.Info("run ended with no winner")
		return Outcome{RunID: runID, Result: ResultNoWinner}
	}
}
