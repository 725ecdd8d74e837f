package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const (
	colorReset  = "\033[0m"
	colorDim    = "\033[2m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
	colorBlue   = "\033[34m"
)

// ColorHandler is a colored slog handler for terminal output.
type ColorHandler struct {
	opts   *slog.HandlerOptions
	out    io.Writer
	attrs  []slog.Attr
	prefix string
	mu     *sync.Mutex
}

// NewColorHandler creates a new colored log handler.
func NewColorHandler(out io.Writer, opts *slog.HandlerOptions) *ColorHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &ColorHandler{opts: opts, out: out, mu: &sync.Mutex{}}
}

func (h *ColorHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *ColorHandler) Handle(_ context.Context, r slog.Record) error {
	levelColor := colorGreen
	switch {
	case r.Level >= slog.LevelError:
		levelColor = colorRed
	case r.Level >= slog.LevelWarn:
		levelColor = colorYellow
	case r.Level < slog.LevelInfo:
		levelColor = colorBlue
	}

	var b strings.Builder

	// Format: time level msg key=value...
	fmt.Fprintf(&b, "%s%s%s %s%-5s%s %s",
		colorDim, r.Time.Format("15:04:05"), colorReset,
		levelColor, r.Level.String(), colorReset,
		r.Message)

	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix + a.Key + "."
		if a.Key == "" {
			groupPrefix = prefix
		}
		for _, ga := range a.Value.Group() {
			writeAttr(b, groupPrefix, ga)
		}
		return
	}
	fmt.Fprintf(b, " %s%s%s=%s%v%s", colorDim, prefix, a.Key, colorCyan, a.Value, colorReset)
}

func (h *ColorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	qualified := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	qualified = append(qualified, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		qualified = append(qualified, a)
	}
	return &ColorHandler{
		opts:   h.opts,
		out:    h.out,
		attrs:  qualified,
		prefix: h.prefix,
		mu:     h.mu, // Share mutex
	}
}

func (h *ColorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ColorHandler{
		opts:   h.opts,
		out:    h.out,
		attrs:  h.attrs,
		prefix: h.prefix + name + ".",
		mu:     h.mu, // Share mutex
	}
}
