// Copyright 2018 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package retry

import (
	"context"
	"time"
)

// Retry calls fn until it succeeds, the context is canceled, or backoff
// signals Stop, whichever comes first.
func Retry(ctx context.Context, backoff Backoff, fn func() error) error {
	for {
		err := fn()
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return err
		default:
		}

		wait := backoff.Next()
		if wait == Stop {
			return err
		}

		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
		}
	}
}
