// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

// Package errutil carries small helpers for working with coded errors in
// logs and tests.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level. Coded errors contribute their code and
// structured context as log attributes; plain errors log their string form.
func LogError(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, errorAttrs(err)...)
}

// LogWarn is LogError at warning level, for failures the caller recovers
// from.
func LogWarn(logger *slog.Logger, msg string, err error) {
	logger.Warn(msg, errorAttrs(err)...)
}

func errorAttrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	attrs := []any{"error", oopsErr.Error()}
	// Code() returns any; uncoded errors carry nil, not "".
	if code, ok := oopsErr.Code().(string); ok && code != "" {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	return attrs
}

// ErrorCode returns the code of a coded error, or "" for nil, plain and
// uncoded errors.
func ErrorCode(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		code, _ := oopsErr.Code().(string)
		return code
	}
	return ""
}

// HasCode reports whether err carries the given error code.
func HasCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}
