package mandelring

import (
	"context"
	"os"
	ossignal "os/signal" // renamed so arguments can be called 'signal'
	"sync"

	"golang.org/x/exp/slices"
)

// InterruptRegister accepts cleanup callbacks for an interrupt. It is implemented by
// *InterruptHandler and by the wrappers returned from WithErrorHandler.
type InterruptRegister interface {
	On(immediateCtx context.Context, callbacks ...func(context.Context) error) error
	WithErrorHandler(handler func(context.Context, error) error) InterruptRegister
}

// InterruptHandler runs a set of cleanup callbacks exactly once, when the run is interrupted. The
// trigger is either an OS signal registered with Watch, or an explicit call to Trigger.
//
// Callbacks run sequentially in the reverse order of registration, so the first one registered is
// the last to run: register the final os.Exit first, the terminal colour reset after it, and the
// worker teardown last. An error from a callback, left unhandled by its error handler, stops the
// remaining callbacks and is returned from Trigger.
type InterruptHandler struct {
	mu sync.Mutex

	callbacks []interruptCallback
	triggered bool
	stopped   bool
	cause     any

	ctx    context.Context
	cancel context.CancelFunc

	watched []os.Signal
	sigCh   chan os.Signal
}

type interruptCallback struct {
	f     func(context.Context) error
	onErr func(context.Context, error) error
}

type interruptRegisterWithErrorHandler struct {
	h          *InterruptHandler
	errHandler func(context.Context, error) error
}

func NewInterruptHandler() *InterruptHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &InterruptHandler{ctx: ctx, cancel: cancel}
}

// Watch forwards the given OS signals to Trigger. Signals already watched are ignored.
func (h *InterruptHandler) Watch(signals ...os.Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return
	}

	var fresh []os.Signal
	for _, sig := range signals {
		if !slices.Contains(h.watched, sig) && !slices.Contains(fresh, sig) {
			fresh = append(fresh, sig)
		}
	}
	if len(fresh) == 0 {
		return
	}
	h.watched = append(h.watched, fresh...)

	if h.sigCh == nil {
		h.sigCh = make(chan os.Signal, 1)
		go func(ch <-chan os.Signal) {
			for sig := range ch {
				_ = h.Trigger(context.Background(), sig)
			}
		}(h.sigCh)
	}
	ossignal.Notify(h.sigCh, fresh...)
}

// On registers callbacks. If the handler has already been triggered, the callbacks are run right
// away with immediateCtx, in reverse order, and the first unhandled error is returned.
func (h *InterruptHandler) On(immediateCtx context.Context, callbacks ...func(context.Context) error) error {
	return h.on(immediateCtx, nil, callbacks...)
}

func (h *InterruptHandler) WithErrorHandler(handler func(context.Context, error) error) InterruptRegister {
	return &interruptRegisterWithErrorHandler{h: h, errHandler: handler}
}

func (r *interruptRegisterWithErrorHandler) On(ctx context.Context, callbacks ...func(context.Context) error) error {
	return r.h.on(ctx, r.errHandler, callbacks...)
}

// WithErrorHandler stacks handler in front of the existing one: errors go through handler first,
// and only what it returns reaches the outer handler.
func (r *interruptRegisterWithErrorHandler) WithErrorHandler(handler func(context.Context, error) error) InterruptRegister {
	outer := r.errHandler
	return &interruptRegisterWithErrorHandler{
		h: r.h,
		errHandler: func(ctx context.Context, err error) error {
			if err = handler(ctx, err); err != nil {
				err = outer(ctx, err)
			}
			return err
		},
	}
}

func (h *InterruptHandler) on(ctx context.Context, errHandler func(context.Context, error) error, callbacks ...func(context.Context) error) error {
	h.mu.Lock()

	if h.stopped {
		h.mu.Unlock()
		return nil
	}

	if !h.triggered {
		for _, f := range callbacks {
			h.callbacks = append(h.callbacks, interruptCallback{f: f, onErr: errHandler})
		}
		h.mu.Unlock()
		return nil
	}

	// already interrupted: run them ourselves, now
	h.mu.Unlock()
	for i := len(callbacks) - 1; i >= 0; i -= 1 {
		cb := interruptCallback{f: callbacks[i], onErr: errHandler}
		if err := cb.run(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (cb interruptCallback) run(ctx context.Context) error {
	err := cb.f(ctx)
	if err != nil && cb.onErr != nil {
		err = cb.onErr(ctx, err)
	}
	return err
}

// Trigger marks the handler interrupted by cause (usually an os.Signal) and runs the registered
// callbacks. Only the first call does anything; later calls return nil immediately.
func (h *InterruptHandler) Trigger(ctx context.Context, cause any) error {
	h.mu.Lock()
	if h.triggered || h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.triggered = true
	h.cause = cause
	h.cancel()

	callbacks := h.callbacks
	h.callbacks = nil
	h.mu.Unlock()

	Logger().Debug("interrupted", "cause", cause, "callbacks", len(callbacks))

	// callbacks run unlocked: they may register more callbacks, or call Stop
	for i := len(callbacks) - 1; i >= 0; i -= 1 {
		if err := callbacks[i].run(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Context returns a context that is canceled as soon as the handler is triggered, before any
// callback runs.
func (h *InterruptHandler) Context() context.Context {
	return h.ctx
}

// Cause returns what Trigger was called with, or nil if it hasn't been.
func (h *InterruptHandler) Cause() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cause
}

// Stop stops watching OS signals and drops every pending callback. It does not cancel Context.
func (h *InterruptHandler) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return
	}
	h.stopped = true
	h.callbacks = nil

	if h.sigCh != nil {
		ossignal.Stop(h.sigCh)
		close(h.sigCh)
	}
}
