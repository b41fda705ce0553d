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

package testutil

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// SpanRecorder captures the spans finished while a test runs.
type SpanRecorder struct {
	exporter *tracetest.InMemoryExporter
}

// RecordSpans installs an always-sampling tracer provider backed by an
// in-memory exporter as the global provider. The previous provider is
// restored when t finishes, so tests using it must not run in parallel.
func RecordSpans(t testing.TB) *SpanRecorder {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		tp.Shutdown(context.Background())
	})
	return &SpanRecorder{exporter: exporter}
}

// Spans returns the finished spans in completion order.
func (r *SpanRecorder) Spans() tracetest.SpanStubs {
	return r.exporter.GetSpans()
}

// Names returns the names of the finished spans in completion order.
func (r *SpanRecorder) Names() []string {
	var names []string
	for _, s := range r.exporter.GetSpans() {
		names = append(names, s.Name)
	}
	return names
}

// Attr returns the value of the attribute key on span s.
func Attr(s tracetest.SpanStub, key string) (attribute.Value, bool) {
	for _, kv := range s.Attributes {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}
