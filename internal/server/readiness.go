package server

import (
	"context"
	"sync"
)

type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// Status is the /status payload. Error is null unless loading failed.
type Status struct {
	Loading bool    `json:"loading"`
	Ready   bool    `json:"ready"`
	Error   *string `json:"error"`
}

// Readiness moves from loading to ready or error exactly once. Done is
// closed on that transition.
type Readiness struct {
	mu          sync.RWMutex
	state       State
	err         error
	transcriber Transcriber
	done        chan struct{}
}

func NewReadiness() *Readiness {
	return &Readiness{state: StateLoading, done: make(chan struct{})}
}

// Complete records the load outcome. Later calls are ignored and report false.
func (r *Readiness) Complete(t Transcriber, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateLoading {
		return false
	}
	if err != nil {
		r.state, r.err = StateError, err
	} else {
		r.state, r.transcriber = StateReady, t
	}
	close(r.done)
	return true
}

func (r *Readiness) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Readiness) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Status{Loading: r.state == StateLoading, Ready: r.state == StateReady}
	if r.err != nil {
		msg := r.err.Error()
		s.Error = &msg
	}
	return s
}

// Transcriber returns the loaded pipeline once ready.
func (r *Readiness) Transcriber() (Transcriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transcriber, r.state == StateReady
}

func (r *Readiness) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until loading finishes and returns the load error, or ctx's.
func (r *Readiness) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}
