package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Sink receives a flattened copy of each log record.
type Sink interface {
	PublishLog(component, level, message string)
}

// TeeHandler forwards every record to an inner handler and, at or above
// level, publishes a one-line summary to a Sink. A "component" attribute,
// if present, is lifted out of the summary.
type TeeHandler struct {
	inner     slog.Handler
	sink      Sink
	level     slog.Level
	attrs     []slog.Attr
	groups    []string
	component string
}

func NewTeeHandler(inner slog.Handler, sink Sink, level slog.Level) *TeeHandler {
	return &TeeHandler{inner: inner, sink: sink, level: level}
}

func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level) || level >= h.level
}

func (h *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.inner.Enabled(ctx, r.Level) {
		err = h.inner.Handle(ctx, r)
	}
	if r.Level >= h.level {
		h.publish(r)
	}
	return err
}

func (h *TeeHandler) publish(r slog.Record) {
	component := h.component
	var parts []string
	add := func(a slog.Attr) {
		if a.Key == "component" {
			component = a.Value.String()
			return
		}
		key := a.Key
		if len(h.groups) > 0 {
			key = strings.Join(h.groups, ".") + "." + key
		}
		parts = append(parts, fmt.Sprintf("%s=%s", key, a.Value))
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(a)
		return true
	})

	msg := r.Message
	if len(parts) > 0 {
		msg += " (" + strings.Join(parts, ", ") + ")"
	}
	h.sink.PublishLog(component, strings.ToLower(r.Level.String()), msg)
}

func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	c.inner = h.inner.WithAttrs(attrs)
	for _, a := range attrs {
		if a.Key == "component" && len(h.groups) == 0 {
			c.component = a.Value.String()
			continue
		}
		c.attrs = append(c.attrs, a)
	}
	return c
}

func (h *TeeHandler) WithGroup(name string) slog.Handler {
	c := h.clone()
	c.inner = h.inner.WithGroup(name)
	c.groups = append(c.groups, name)
	return c
}

func (h *TeeHandler) clone() *TeeHandler {
	return &TeeHandler{
		inner:     h.inner,
		sink:      h.sink,
		level:     h.level,
		attrs:     append([]slog.Attr(nil), h.attrs...),
		groups:    append([]string(nil), h.groups...),
		component: h.component,
	}
}
