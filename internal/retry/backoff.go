// Copyright 2018 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package retry implements retry-with-backoff, the Go analogue of the
// `while (errno == EINTR) continue;` loops threaded through honggfuzz's
// files_readFromFd / files_writeToFd / external-mutator invocation.
package retry

import "time"

// Stop is returned by Backoff.Next to signal that retrying should stop.
const Stop time.Duration = -1

// Backoff computes successive retry delays.
type Backoff interface {
	Next() time.Duration
}

// ZeroBackoff retries immediately, forever.
type ZeroBackoff struct{}

func (*ZeroBackoff) Next() time.Duration { return 0 }

// ConstantBackoff retries after a fixed delay, forever.
type ConstantBackoff struct {
	interval time.Duration
}

// NewConstantBackoff constructs a ConstantBackoff with the given interval.
func NewConstantBackoff(interval time.Duration) *ConstantBackoff {
	return &ConstantBackoff{interval: interval}
}

func (b *ConstantBackoff) Next() time.Duration { return b.interval }

type maxTriesBackoff struct {
	backoff Backoff
	tries   int
	max     int
}

// WithMaxRetries wraps backoff so that Next returns Stop after max calls.
func WithMaxRetries(backoff Backoff, max int) Backoff {
	return &maxTriesBackoff{backoff: backoff, max: max}
}

func (b *maxTriesBackoff) Next() time.Duration {
	if b.tries >= b.max {
		return Stop
	}
	b.tries++
	return b.backoff.Next()
}
