package sniper

import "sync"

// Flag is the race-is-over signal: set once by the orchestrator when a worker
// wins, read by every worker at each poll/checkout step boundary. Setting is
// irreversible; later Set calls are no-ops.
type Flag struct {
	once sync.Once
	ch   chan struct{}
}

func NewFlag() *Flag {
	return &Flag{ch: make(chan struct{})}
}

func (f *Flag) Set() {
	f.once.Do(func() { close(f.ch) })
}

func (f *Flag) IsSet() bool {
	select {
	case <-f.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the flag is set, for select loops.
func (f *Flag) Done() <-chan struct{} {
	return f.ch
}
