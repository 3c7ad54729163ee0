package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/mrnavastar/mclaunch/util"
	"github.com/mrnavastar/mclaunch/util/errs"
	"github.com/pterm/pterm"
)

// Handler serves one channel. args is the raw JSON argument object and may be
// empty.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Router dispatches channel calls to handlers and normalises every outcome
// into an Envelope.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *pterm.Logger
}

func NewRouter(logger *pterm.Logger) *Router {
	if logger == nil {
		logger = util.NopLogger()
	}
	return &Router{handlers: map[string]Handler{}, logger: logger}
}

// Register binds channel to h. Registering a channel twice panics, like
// http.ServeMux.
func (r *Router) Register(channel string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[channel]; exists {
		panic("rpc: duplicate channel " + channel)
	}
	r.handlers[channel] = h
}

func (r *Router) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	channels := make([]string, 0, len(r.handlers))
	for channel := range r.handlers {
		channels = append(channels, channel)
	}
	sort.Strings(channels)
	return channels
}

// Call invokes channel with args, which may be nil, raw JSON or any value
// that encodes to a JSON object.
func (r *Router) Call(ctx context.Context, channel string, args any) (envelope Envelope) {
	r.mu.RLock()
	h, ok := r.handlers[channel]
	r.mu.RUnlock()
	if !ok {
		return Wrap(nil, errs.Newf(errs.KindNotFound, "unknown_channel", "unknown channel %s", channel))
	}

	raw, err := encodeArgs(args)
	if err != nil {
		return Wrap(nil, err)
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("handler panicked", r.logger.Args("channel", channel, "panic", fmt.Sprint(p)))
			envelope = Wrap(nil, errs.Newf(errs.KindInternal, "", "%s: internal error", channel))
		}
	}()
	data, err := h(ctx, raw)
	if err != nil {
		r.logger.Debug("call failed", r.logger.Args("channel", channel, "code", errs.CodeOf(err), "error", err))
	}
	return Wrap(data, err)
}

func encodeArgs(args any) (json.RawMessage, error) {
	switch v := args.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindInvalidArgument, "bad_request", "encode arguments")
	}
	return data, nil
}

// Bind adapts a typed handler. Empty args decode to the zero value; malformed
// args fail with bad_request before the handler runs.
func Bind[T any](fn func(ctx context.Context, args T) (any, error)) Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args T
		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
			if err := json.Unmarshal(trimmed, &args); err != nil {
				return nil, errs.Wrap(err, errs.KindInvalidArgument, "bad_request", "decode arguments")
			}
		}
		return fn(ctx, args)
	}
}
