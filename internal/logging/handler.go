// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

// Package logging sets up structured logging. Every record is stamped with
// the service name and version, plus OpenTelemetry trace and span IDs when
// the context carries an active span.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// stampHandler decorates an inner handler with fixed service metadata and
// per-request trace context.
type stampHandler struct {
	inner   slog.Handler
	service string
	version string
}

func (h *stampHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(
		slog.String("service", h.service),
		slog.String("version", h.version),
	)
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		r.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}
	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.inner.Handle(ctx, r)
}

func (h *stampHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *stampHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &stampHandler{inner: h.inner.WithAttrs(attrs), service: h.service, version: h.version}
}

func (h *stampHandler) WithGroup(name string) slog.Handler {
	return &stampHandler{inner: h.inner.WithGroup(name), service: h.service, version: h.version}
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup builds a logger writing to w (os.Stderr when nil). format selects
// "text" or "json" output; json is the default.
func Setup(service, version, format string, level slog.Level, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	if format == "text" {
		inner = slog.NewTextHandler(w, opts)
	} else {
		inner = slog.NewJSONHandler(w, opts)
	}
	return slog.New(&stampHandler{inner: inner, service: service, version: version})
}
