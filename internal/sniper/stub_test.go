package sniper

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nbenliogludev/go-ticket-sniper/internal/browser"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TargetURL = "https://tickets.example.com/event"
	cfg.Workers = 1
	cfg.PollInterval = Duration(10 * time.Millisecond)
	cfg.PollBackoffCap = Duration(80 * time.Millisecond)
	cfg.MaxPollErrors = 5
	cfg.CheckoutTimeout = Duration(200 * time.Millisecond)
	cfg.Checkout = CheckoutPlan{
		Fields: []FormField{
			{Selector: "#quantity", Value: "2"},
			{Selector: "#registration", Value: "12345678"},
		},
		SubmitSelector: "#submit",
		ConfirmMarkers: []string{"order confirmed"},
	}
	return cfg
}

var (
	pageNotYet  = &browser.PageState{URL: "https://tickets.example.com/event", Title: "Tickets", Text: "Tickets go on sale soon."}
	pageAvail   = &browser.PageState{URL: "https://tickets.example.com/event", Title: "Tickets", Text: "Book now — tickets available!"}
	pageConfirm = &browser.PageState{URL: "https://tickets.example.com/done", Title: "Thanks", Text: "Order confirmed. See you there."}
)

type readResult struct {
	page *browser.PageState
	err  error
}

// stubSession scripts page reads and records every call so tests can assert
// ordering properties (e.g. no fill/click after the race is decided).
type stubSession struct {
	mu         sync.Mutex
	calls      []string
	reads      []readResult
	readIdx    int
	onFill     func(ctx context.Context) error
	onClick    func(ctx context.Context) error
	closeCount int
}

func (s *stubSession) record(call string) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

// Calls returns a snapshot of the call log.
func (s *stubSession) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubSession) countCalls(prefixes ...string) int {
	n := 0
	for _, c := range s.Calls() {
		for _, p := range prefixes {
			if len(c) >= len(p) && c[:len(p)] == p {
				n++
			}
		}
	}
	return n
}

func (s *stubSession) Navigate(ctx context.Context, url string) error {
	s.record("navigate:" + url)
	return nil
}

func (s *stubSession) ReadPage(ctx context.Context) (*browser.PageState, error) {
	s.record("read")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reads) == 0 {
		return pageNotYet, nil
	}
	r := s.reads[s.readIdx]
	if s.readIdx < len(s.reads)-1 {
		s.readIdx++ // last scripted read repeats
	}
	return r.page, r.err
}

func (s *stubSession) Fill(ctx context.Context, selector, value string) error {
	s.record("fill:" + selector)
	if s.onFill != nil {
		return s.onFill(ctx)
	}
	return nil
}

func (s *stubSession) Click(ctx context.Context, selector string) error {
	s.record("click:" + selector)
	if s.onClick != nil {
		return s.onClick(ctx)
	}
	return nil
}

func (s *stubSession) Close() error {
	s.record("close")
	s.mu.Lock()
	s.closeCount++
	s.mu.Unlock()
	return nil
}

func (s *stubSession) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

// sleepRecorder replaces real waiting: it logs the requested delay and
// returns immediately unless the context is already done.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (r *sleepRecorder) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

// stubFactory hands out pre-built stub sessions by worker id.
type stubFactory struct {
	mu       sync.Mutex
	sessions map[int]*stubSession
	errs     map[int]error
}

func (f *stubFactory) NewSession(ctx context.Context, workerID int) (browser.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[workerID]; ok {
		return nil, err
	}
	if s, ok := f.sessions[workerID]; ok {
		return s, nil
	}
	s := &stubSession{}
	if f.sessions == nil {
		f.sessions = make(map[int]*stubSession)
	}
	f.sessions[workerID] = s
	return s, nil
}
