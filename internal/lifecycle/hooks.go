package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// Hooks releases the resources of a running client. Hooks run in the reverse
// of the order they were registered, so a resource is released before the
// resources it was built from. A failing hook does not stop the others.
type Hooks struct {
	mu     sync.Mutex
	hooks  []hook
	closed bool
}

// OnClose registers fn to run when the hooks are closed. Nil hooks are
// ignored with a warning.
func (h *Hooks) OnClose(name string, fn func(context.Context) error) {
	if fn == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil close hook; ignoring")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	log.Debug().Str("hook", name).Msg("adding close hook")
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
}

// OnCloseFunc registers a hook that needs neither a context nor reports an
// error, such as (*http.Client).CloseIdleConnections.
func (h *Hooks) OnCloseFunc(name string, fn func()) {
	if fn == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil close hook; ignoring")
		return
	}

	h.OnClose(name, func(context.Context) error {
		fn()
		return nil
	})
}

// Close runs every hook once, newest first, and returns the joined errors of
// those that failed. Later calls do nothing.
func (h *Hooks) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	hooks := h.hooks
	h.hooks = nil
	h.mu.Unlock()

	l := log.Ctx(ctx)

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		hk := hooks[i]
		hookLog := l.With().Str("hook", hk.name).Logger()

		hookLog.Debug().Msg("close started")
		if err := hk.fn(ctx); err != nil {
			hookLog.Warn().Err(err).Msg("close failed")
			errs = append(errs, fmt.Errorf("%s: %w", hk.name, err))
		} else {
			hookLog.Debug().Msg("close complete")
		}
	}

	return errors.Join(errs...)
}
