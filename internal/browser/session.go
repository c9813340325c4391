package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// PageState is what a worker sees of the target page: enough to decide
// availability (URL + visible text) without holding onto live DOM handles.
type PageState struct {
	URL   string
	Title string
	Text  string
}

// Session is one exclusively-owned browser tab. A session belongs to exactly
// one worker; nothing else may touch it. Close is safe to call more than once.
type Session interface {
	Navigate(ctx context.Context, url string) error
	ReadPage(ctx context.Context) (*PageState, error)
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Close() error
}

// Factory creates one Session per worker. Implementations position windows,
// pick user-data dirs etc. based on the worker id.
type Factory interface {
	NewSession(ctx context.Context, workerID int) (Session, error)
}

type ErrorKind string

const (
	ErrNetwork ErrorKind = "network"
	ErrTimeout ErrorKind = "timeout"
	ErrClosed  ErrorKind = "closed"
)

// SessionError wraps every failure coming out of a Session so callers can
// branch on the kind (transient network hiccup vs. a dead browser) without
// knowing which backend produced it.
type SessionError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

func sessionErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &SessionError{Kind: classify(err), Op: op, Err: err}
}

func classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrClosed
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return ErrTimeout
	case strings.Contains(msg, "closed") || strings.Contains(msg, "crashed"):
		return ErrClosed
	default:
		return ErrNetwork
	}
}

// IsClosed reports whether err means the underlying browser is gone for good.
func IsClosed(err error) bool {
	var se *SessionError
	return errors.As(err, &se) && se.Kind == ErrClosed
}
