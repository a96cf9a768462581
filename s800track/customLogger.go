package main

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Logger sends progress messages to InfoLog and failures to ErrorLog.
type Logger struct {
	InfoLog  *slog.Logger
	ErrorLog *slog.Logger
}

func (l Logger) Info(message string, module string) {
	l.InfoLog.Info(message, moduleKey, module)
}

func (l Logger) Error(message string) {
	l.ErrorLog.Error(message)
}

func NewLogger(stdout io.Writer, stderr io.Writer) Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	return Logger{
		InfoLog:  slog.New(NewModuleHandler(stdout, opts.Level)),
		ErrorLog: slog.New(slog.NewJSONHandler(stderr, opts)),
	}
}

const moduleKey = "module"

// ModuleHandler writes "[time] LEVEL module: message key=value" lines.
// A top level "module" attribute becomes the prefix.
type ModuleHandler struct {
	level slog.Leveler
	attrs []string
	group string
	mu    *sync.Mutex
	out   io.Writer
	// module set through WithAttrs
	module string
}

func NewModuleHandler(out io.Writer, level slog.Leveler) *ModuleHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &ModuleHandler{level: level, mu: &sync.Mutex{}, out: out}
}

func (h *ModuleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ModuleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	child := *h
	child.attrs = slices.Clone(h.attrs)
	for _, a := range attrs {
		child.appendAttr(&child.attrs, &child.module, h.group, a)
	}
	return &child
}

func (h *ModuleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	child := *h
	child.group = h.group + name + "."
	return &child
}

func (h *ModuleHandler) Handle(_ context.Context, r slog.Record) error {
	module := h.module
	fields := slices.Clone(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&fields, &module, h.group, a)
		return true
	})

	var b strings.Builder
	b.WriteString(r.Time.Format("[2006/01/02 15:04:05] "))
	b.WriteString(r.Level.String())
	b.WriteByte(' ')
	if module != "" {
		b.WriteString(module)
		b.WriteString(": ")
	}
	b.WriteString(r.Message)
	for _, field := range fields {
		b.WriteByte(' ')
		b.WriteString(field)
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *ModuleHandler) appendAttr(fields *[]string, module *string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, member := range a.Value.Group() {
			h.appendAttr(fields, module, prefix, member)
		}
		return
	}
	if prefix == "" && a.Key == moduleKey {
		*module = a.Value.String()
		return
	}
	value := a.Value.String()
	if value == "" || strings.ContainsAny(value, " =\"") {
		value = strconv.Quote(value)
	}
	*fields = append(*fields, prefix+a.Key+"="+value)
}
