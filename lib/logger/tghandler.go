package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Notifier delivers a formatted log line to the bot operators.
type Notifier interface {
	NotifyOperators(msg string)
}

// sink is shared by a handler and everything derived from it.
type sink struct {
	mu       sync.Mutex
	notifier Notifier
}

// OperatorHandler is a slog.Handler that mirrors records at or above minLevel
// to the bot operators, so failures that need manual repair reach a person.
type OperatorHandler struct {
	handler  slog.Handler
	sink     *sink
	minLevel slog.Level
	attrs    []slog.Attr
	group    string
}

func NewOperatorHandler(handler slog.Handler, notifier Notifier, minLevel slog.Level) *OperatorHandler {
	return &OperatorHandler{
		handler:  handler,
		sink:     &sink{notifier: notifier},
		minLevel: minLevel,
		attrs:    make([]slog.Attr, 0),
	}
}

// SetNotifier connects the notifier after the logger is in use; loggers
// already derived with With or WithGroup pick it up too.
func (h *OperatorHandler) SetNotifier(notifier Notifier) {
	h.sink.mu.Lock()
	h.sink.notifier = notifier
	h.sink.mu.Unlock()
}

func (h *OperatorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *OperatorHandler) Handle(ctx context.Context, record slog.Record) error {
	err := h.handler.Handle(ctx, record)
	if err != nil {
		return err
	}
	if record.Level < h.minLevel {
		return nil
	}

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	if h.sink.notifier == nil {
		return nil
	}

	var sb strings.Builder
	if h.group != "" {
		sb.WriteString(fmt.Sprintf("%s %s.%s", record.Level.String(), h.group, record.Message))
	} else {
		sb.WriteString(fmt.Sprintf("%s %s", record.Level.String(), record.Message))
	}
	for _, attr := range h.attrs {
		sb.WriteString(fmt.Sprintf("\n%s: %v", attr.Key, attr.Value))
	}
	record.Attrs(func(attr slog.Attr) bool {
		sb.WriteString(fmt.Sprintf("\n%s: %v", attr.Key, attr.Value))
		return true
	})

	h.sink.notifier.NotifyOperators(sb.String())
	return nil
}

func (h *OperatorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)

	return &OperatorHandler{
		handler:  h.handler.WithAttrs(attrs),
		sink:     h.sink,
		minLevel: h.minLevel,
		attrs:    newAttrs,
		group:    h.group,
	}
}

func (h *OperatorHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}

	return &OperatorHandler{
		handler:  h.handler.WithGroup(name),
		sink:     h.sink,
		minLevel: h.minLevel,
		attrs:    h.attrs,
		group:    group,
	}
}
