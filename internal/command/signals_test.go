// Copyright 2019 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package command_test

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/Bluebear171/honggfuzz/internal/command"
)

func TestCancelOnSignals(t *testing.T) {
	ctx, received := command.CancelOnSignals(context.Background(), syscall.SIGUSR1)

	proc, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatalf("FindProcess: %s", err)
	}
	if err := proc.Signal(syscall.SIGUSR1); err != nil {
		t.Fatalf("Signal: %s", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not canceled after signal")
	}

	select {
	case s := <-received:
		if s != syscall.SIGUSR1 {
			t.Fatalf("got signal %v, want SIGUSR1", s)
		}
	default:
		t.Fatal("no signal recorded on the received channel")
	}
}

func TestCancelOnSignalsNoSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx, _ = command.CancelOnSignals(ctx, syscall.SIGUSR2)

	select {
	case <-ctx.Done():
		t.Fatal("context canceled without a signal being sent")
	case <-time.After(50 * time.Millisecond):
	}
}
