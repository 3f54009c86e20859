// Copyright 2018 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/Bluebear171/honggfuzz/internal/color"
)

func TestWithContext(t *testing.T) {
	l := NewLogger(DebugLevel, color.NewColor(color.ColorNever), nil, nil)
	ctx := context.Background()
	if v, ok := ctx.Value(globalLoggerKeyType{}).(*Logger); ok || v != nil {
		t.Fatalf("default context should not carry a logger, got %+v", v)
	}
	ctx = WithLogger(ctx, l)
	if got := loggerFromContext(ctx); got != l {
		t.Fatalf("expected attached logger back, got %+v", got)
	}
}

func TestLevelFiltering(t *testing.T) {
	var out bytes.Buffer
	l := NewLogger(WarningLevel, color.NewColor(color.ColorNever), &out, &out)
	l.Debugf("should not appear")
	l.Infof("should not appear either")
	l.Warningf("this should appear")

	got := out.String()
	if strings.Contains(got, "should not appear") {
		t.Fatalf("sub-threshold messages leaked into output: %q", got)
	}
	if !strings.Contains(got, "this should appear") {
		t.Fatalf("expected warning message in output: %q", got)
	}
}

func TestErrorGoesToStderrStream(t *testing.T) {
	var stdout, stderr bytes.Buffer
	l := NewLogger(DebugLevel, color.NewColor(color.ColorNever), &stdout, &stderr)
	l.Errorf("boom")
	l.Infof("fine")

	if !strings.Contains(stderr.String(), "boom") {
		t.Fatalf("expected error message on stderr stream, got %q", stderr.String())
	}
	if strings.Contains(stdout.String(), "boom") {
		t.Fatalf("error message leaked into stdout stream")
	}
	if !strings.Contains(stdout.String(), "fine") {
		t.Fatalf("expected info message on stdout stream, got %q", stdout.String())
	}
}
