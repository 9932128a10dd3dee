// Copyright 2021 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package util

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Backoff describes the delay between attempts of a failing operation.
type Backoff struct {
	// Delay after a successful attempt
	Min time.Duration
	// Upper limit of the delay
	Max time.Duration
	// Growth of the delay after every failed attempt
	Factor float64
}

// DefaultBackoff is used by UntilCanceled.
var DefaultBackoff = Backoff{
	Min:    time.Millisecond * 10,
	Max:    time.Second * 5,
	Factor: 1.5,
}

// Next returns the delay that follows a failed attempt after the given delay.
func (b Backoff) Next(delay time.Duration) time.Duration {
	next := time.Duration(float64(delay) * b.Factor)
	if next < b.Min {
		next = b.Min
	}
	return min(next, b.Max)
}

// UntilCanceled continues to call the given callback
// until the given context is canceled, using the default backoff.
func UntilCanceled(ctx context.Context, log zerolog.Logger, description string, cb func() error) error {
	return DefaultBackoff.UntilCanceled(ctx, log, description, cb)
}

// UntilCanceled continues to call the given callback
// until the given context is canceled.
// The delay between calls grows while the callback fails.
func (b Backoff) UntilCanceled(ctx context.Context, log zerolog.Logger, description string, cb func() error) error {
	delay := b.Min
	for ctx.Err() == nil {
		if err := cb(); err != nil {
			delay = b.Next(delay)
			log.Warn().Err(err).Dur("retry-in", delay).Msgf("%s failed", description)
		} else {
			delay = b.Min
		}
		if !Sleep(ctx, delay) {
			log.Info().Msgf("Stopping %s; context canceled", description)
		}
	}
	return nil
}

// Sleep waits for the given duration.
// Returns false when the context was canceled first.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
