package probe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	errTimedOut    = errors.New("probe timed out")
	ErrProbePanics = errors.New("probe panicked")
)

// releaser collects cleanup funcs for the network resources a handler opens.
// They run exactly once, in reverse order, when the probe finishes or times
// out, whichever happens first. Registering after release runs the func
// immediately.
type releaser struct {
	mu   sync.Mutex
	fns  []func()
	done bool
}

func (r *releaser) onRelease(fn func()) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		fn()
		return
	}
	r.fns = append(r.fns, fn)
	r.mu.Unlock()
}

func (r *releaser) release() {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	r.done = true
	fns := r.fns
	r.fns = nil
	r.mu.Unlock()
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// timebox runs fn under timeout. On timeout it force-closes whatever fn
// registered and returns errTimedOut without waiting for fn to return.
func timebox(ctx context.Context, timeout time.Duration, fn func(context.Context, *releaser) Outcome) (Outcome, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rel := &releaser{}
	type result struct {
		out Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("%w: %v", ErrProbePanics, p)}
			}
		}()
		done <- result{out: fn(cctx, rel)}
	}()

	select {
	case r := <-done:
		rel.release()
		return r.out, r.err
	case <-cctx.Done():
		rel.release()
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		return Outcome{}, errTimedOut
	}
}
