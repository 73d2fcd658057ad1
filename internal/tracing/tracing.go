// Package tracing implements the W3C traceparent propagation used across the
// HTTP API, the outbox relay and the Kafka consumer. A span context is a
// (trace_id, span_id, parent_span_id) triplet; parsing an inbound header mints
// a fresh span id and keeps the caller's span as parent, so every hop in a
// trace gets its own span.
package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	traceIDLen = 32 // 128-bit, lowercase hex
	spanIDLen  = 16 // 64-bit, lowercase hex

	// Header is the propagation header name on both HTTP and Kafka.
	Header = "traceparent"
)

// SpanContext carries the trace identity for one unit of work.
// ParentSpanID is empty at a trace root.
type SpanContext struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
}

// New starts a fresh trace with no parent.
func New() SpanContext {
	return SpanContext{TraceID: newID(traceIDLen), SpanID: newID(spanIDLen)}
}

// Child mints a new span within the same trace, with sc as parent.
func (sc SpanContext) Child() SpanContext {
	return SpanContext{
		TraceID:      sc.TraceID,
		SpanID:       newID(spanIDLen),
		ParentSpanID: sc.SpanID,
	}
}

// Continue rebuilds a span context from persisted ids (e.g. an outbox row).
// A new span id is minted when spanID is empty.
func Continue(traceID, spanID, parentSpanID string) SpanContext {
	if spanID == "" {
		spanID = newID(spanIDLen)
	}
	return SpanContext{TraceID: traceID, SpanID: spanID, ParentSpanID: parentSpanID}
}

// Parse extracts a span context from a traceparent header value:
//
//	00-{32 hex trace-id}-{16 hex span-id}-{2 hex flags}
//
// The caller's span id becomes ParentSpanID and a fresh SpanID is minted.
// Malformed headers (wrong shape, unsupported version, bad lengths, non-hex,
// all-zero ids) return ok=false; callers then start a fresh trace.
func Parse(header string) (SpanContext, bool) {
	parts := strings.Split(strings.TrimSpace(header), "-")
	if len(parts) != 4 {
		return SpanContext{}, false
	}
	version, traceID, parentID, flags := parts[0], parts[1], parts[2], parts[3]
	if version != "00" {
		return SpanContext{}, false
	}
	if len(traceID) != traceIDLen || len(parentID) != spanIDLen || len(flags) != 2 {
		return SpanContext{}, false
	}
	if !isHex(traceID) || !isHex(parentID) || !isHex(flags) {
		return SpanContext{}, false
	}
	if traceID == strings.Repeat("0", traceIDLen) || parentID == strings.Repeat("0", spanIDLen) {
		return SpanContext{}, false
	}
	return SpanContext{
		TraceID:      traceID,
		SpanID:       newID(spanIDLen),
		ParentSpanID: parentID,
	}, true
}

// ParseOrNew parses header, falling back to a fresh trace.
func ParseOrNew(header string) SpanContext {
	if sc, ok := Parse(header); ok {
		return sc
	}
	return New()
}

// Traceparent renders the header value for outbound propagation, always
// sampled.
func (sc SpanContext) Traceparent() string {
	return fmt.Sprintf("00-%s-%s-01", sc.TraceID, sc.SpanID)
}

func (sc SpanContext) Valid() bool {
	return len(sc.TraceID) == traceIDLen && len(sc.SpanID) == spanIDLen
}

type ctxKey struct{}

// With attaches sc to ctx.
func With(ctx context.Context, sc SpanContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, sc)
}

// From returns the span context attached to ctx, if any.
func From(ctx context.Context) (SpanContext, bool) {
	sc, ok := ctx.Value(ctxKey{}).(SpanContext)
	return sc, ok
}

func newID(hexLen int) string {
	b := make([]byte, hexLen/2)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b)
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
