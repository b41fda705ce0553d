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
	"errors"
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the executor's collectors. The zero registerer leaves them
// unregistered, so recording is always safe.
type metrics struct {
	// attempts counts requests sent, labelled by op and outcome code.
	attempts *prometheus.CounterVec
	// retries counts resends, labelled by op and error kind.
	retries *prometheus.CounterVec
	// outcomes counts finished logical calls, labelled by op and result.
	outcomes *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer, logger *slog.Logger) *metrics {
	m := &metrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "td_client_attempts_total",
				Help: "Total number of HTTP requests sent to the API",
			},
			[]string{"op", "code"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "td_client_retries_total",
				Help: "Total number of requests resent after a retryable failure",
			},
			[]string{"op", "kind"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "td_client_calls_total",
				Help: "Total number of logical calls by result",
			},
			[]string{"op", "result"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "td_client_attempt_latency_seconds",
				Help:    "Latency of a single HTTP attempt in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
	}
	if reg == nil {
		return m
	}
	m.attempts = register(reg, logger, m.attempts)
	m.retries = register(reg, logger, m.retries)
	m.outcomes = register(reg, logger, m.outcomes)
	m.latency = register(reg, logger, m.latency)
	return m
}

// register adds c to reg, reusing the collector already registered under the
// same name so several clients can share one registry. Any other failure is
// logged and c is used unregistered.
func register[C prometheus.Collector](reg prometheus.Registerer, logger *slog.Logger, c C) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	logger.Warn("td: metrics collector not registered", "error", err)
	return c
}

func (m *metrics) observeAttempt(op string, code int, seconds float64) {
	m.attempts.WithLabelValues(op, strconv.Itoa(code)).Inc()
	m.latency.WithLabelValues(op).Observe(seconds)
}

func (m *metrics) observeRetry(op string, kind ErrorKind) {
	m.retries.WithLabelValues(op, kind.String()).Inc()
}

func (m *metrics) observeOutcome(op string, err error) {
	m.outcomes.WithLabelValues(op, outcomeLabel(err)).Inc()
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsRetriesExhausted(err):
		return "exhausted"
	case IsAmbiguous(err):
		return "ambiguous"
	default:
		return KindOf(err).String()
	}
}
