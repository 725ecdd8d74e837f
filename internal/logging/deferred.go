package logging

import (
	"context"
	"log/slog"
)

// deferredHandler forwards to whatever handler the global logger has at call time.
type deferredHandler struct {
	attrs []slog.Attr
	chain []func(slog.Handler) slog.Handler
}

func (h *deferredHandler) resolve() slog.Handler {
	base := Logger().Handler()
	if len(h.attrs) > 0 {
		base = base.WithAttrs(h.attrs)
	}
	for _, apply := range h.chain {
		base = apply(base)
	}
	return base
}

func (h *deferredHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return Logger().Handler().Enabled(ctx, level)
}

func (h *deferredHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h *deferredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h *deferredHandler) WithGroup(name string) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h *deferredHandler) with(apply func(slog.Handler) slog.Handler) slog.Handler {
	chain := make([]func(slog.Handler) slog.Handler, len(h.chain), len(h.chain)+1)
	copy(chain, h.chain)
	return &deferredHandler{attrs: h.attrs, chain: append(chain, apply)}
}
