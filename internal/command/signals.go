// Copyright 2018 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.
package command

import (
	"context"
	"os"
	"os/signal"
)

// CancelOnSignals returns a Context that is canceled when any of the given
// signals is received, and a buffered channel on which the received signal
// is sent once that has happened (nothing is sent if the context is
// canceled for some other reason first; the channel is never closed).
//
// This is the cooperative-shutdown mechanism described for the supervisor:
// workers are never forcibly interrupted, they observe ctx.Done() at their
// next natural suspension point and finish the iteration they're in.
func CancelOnSignals(ctx context.Context, sigs ...os.Signal) (context.Context, <-chan os.Signal) {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	received := make(chan os.Signal, 1)
	signal.Notify(signals, sigs...)
	go func() {
		select {
		case s := <-signals:
			if s != nil {
				received <- s
				cancel()
			}
		case <-ctx.Done():
		}
	}()
	return ctx, received
}
