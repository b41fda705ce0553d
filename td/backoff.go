// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package td

import (
	"math"
	"math/rand"
	"time"
)

// backoff computes waits between attempts of one logical call. Unlike
// gax.Backoff, whose full jitter may pause for close to zero, the jittered
// wait here stays within [0.5, 1.0] of the exponential interval.
type backoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64

	// jitter maps the unjittered interval to the actual wait; tests replace it.
	jitter func(time.Duration) time.Duration
}

func newBackoff(cfg Config) *backoff {
	return &backoff{
		initial:    cfg.RetryInitialInterval,
		max:        cfg.RetryMaxInterval,
		multiplier: cfg.RetryMultiplier,
		jitter:     halfJitter,
	}
}

// pause returns the wait before retry number attempt (0 for the first retry).
func (b *backoff) pause(attempt int) time.Duration {
	d := nextInterval(attempt, b.initial, b.max, b.multiplier)
	if b.jitter == nil {
		return d
	}
	return b.jitter(d)
}

// nextInterval returns min(max, initial * multiplier^attempt).
func nextInterval(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(initial) * math.Pow(multiplier, float64(attempt))
	if d > float64(max) || math.IsInf(d, 0) || math.IsNaN(d) {
		return max
	}
	return time.Duration(d)
}

// halfJitter returns a uniformly random duration in [d/2, d].
func halfJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	half := d / 2
	return d - time.Duration(rand.Int63n(int64(half)+1))
}
