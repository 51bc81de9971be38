package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func recordedSpan(t *testing.T, fill func(span trace.Span)) sdktrace.ReadOnlySpan {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	_, span := tp.Tracer("test").Start(context.Background(), "op")
	fill(span)
	span.End()
	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	return spans[0]
}

func attrValue(s sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range s.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestRelaySpanAttrs(t *testing.T) {
	cases := []struct {
		kv   attribute.KeyValue
		key  string
		want string
	}{
		{StreamAttr("vid-1"), "relay.stream_id", "vid-1"},
		{SessionAttr("chat-1"), "relay.session_id", "chat-1"},
		{DestinationAttr("chan-1"), "relay.destination_id", "chan-1"},
	}
	for _, c := range cases {
		if string(c.kv.Key) != c.key {
			t.Errorf("key = %q, want %q", c.kv.Key, c.key)
		}
		if c.kv.Value.AsString() != c.want {
			t.Errorf("%s value = %q, want %q", c.key, c.kv.Value.AsString(), c.want)
		}
	}
}

func TestEndHTTPSpanFlagsServerErrors(t *testing.T) {
	s := recordedSpan(t, func(span trace.Span) { EndHTTPSpan(span, 503) })
	if v, ok := attrValue(s, "http.status_code"); !ok || v.AsInt64() != 503 {
		t.Errorf("http.status_code attr = %v (present=%v), want 503", v, ok)
	}
	if s.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", s.Status().Code)
	}
}

func TestEndHTTPSpanLeavesSuccessUnset(t *testing.T) {
	s := recordedSpan(t, func(span trace.Span) { EndHTTPSpan(span, 200) })
	if v, ok := attrValue(s, "http.status_code"); !ok || v.AsInt64() != 200 {
		t.Errorf("http.status_code attr = %v (present=%v), want 200", v, ok)
	}
	if s.Status().Code != codes.Unset {
		t.Errorf("status = %v, want Unset", s.Status().Code)
	}
}
