package client

import (
	"fmt"
	"log/slog"

	"github.com/putto11262002/chatsync/ws"
)

type frameHandler func(*ws.Frame) error

// router dispatches each inbound frame to exactly one handler by its type
// tag. Handlers are registered once per client, not per connection: they read
// current state through the client's fields, so nothing captured at
// registration time can go stale across reconnects.
type router struct {
	handlers map[string]frameHandler
	logger   *slog.Logger
}

func newRouter(logger *slog.Logger) *router {
	return &router{
		handlers: make(map[string]frameHandler),
		logger:   logger,
	}
}

func (r *router) on(frameType string, h frameHandler) {
	if _, ok := r.handlers[frameType]; ok {
		panic(fmt.Sprintf("handler(%s): already exists", frameType))
	}
	r.handlers[frameType] = h
}

func (r *router) dispatch(frame *ws.Frame) {
	h, ok := r.handlers[frame.Type]
	if !ok {
		r.logger.Error(fmt.Sprintf("handler for %s not found", frame.Type))
		return
	}
	func() {
		defer func() {
			if _r := recover(); _r != nil {
				r.logger.Error(fmt.Sprintf("handler(%s): panic: %v", frame.Type, _r))
			}
		}()
		if err := h(frame); err != nil {
			r.logger.Error(fmt.Sprintf("handler(%s): %v", frame.Type, err))
		}
	}()
}
