package apm

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// TraceContext identifies a position inside a distributed trace: the trace
// the unit belongs to and the id of the unit itself. It crosses process
// boundaries as a W3C style traceparent header so that queued tasks and
// downstream services join the trace of whoever called them.
type TraceContext struct {
	TraceID string
	SpanID  string
}

// Valid reports whether both ids are present and well-formed.
func (tc TraceContext) Valid() bool {
	return isHex(tc.TraceID, 32) && isHex(tc.SpanID, 16)
}

// Traceparent renders the context in traceparent form:
// 00-<trace id>-<parent id>-01.
func (tc TraceContext) Traceparent() string {
	return fmt.Sprintf("00-%s-%s-01", tc.TraceID, tc.SpanID)
}

// ParseTraceparent decodes a traceparent header. The version and flag
// fields are accepted but ignored; only the ids matter to the agent.
func ParseTraceparent(header string) (TraceContext, error) {
	parts := strings.Split(strings.TrimSpace(header), "-")
	if len(parts) != 4 {
		return TraceContext{}, fmt.Errorf("apm: malformed traceparent %q", header)
	}
	tc := TraceContext{TraceID: strings.ToLower(parts[1]), SpanID: strings.ToLower(parts[2])}
	if !tc.Valid() {
		return TraceContext{}, fmt.Errorf("apm: malformed traceparent %q", header)
	}
	return tc, nil
}

func newTraceID() string { return randomHex(16) }

func newSpanID() string { return randomHex(8) }

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// Never panic inside instrumentation; a zero id marks the record
		// as invalid downstream.
		return strings.Repeat("0", n*2)
	}
	return hex.EncodeToString(buf)
}

func isHex(s string, length int) bool {
	if len(s) != length {
		return false
	}
	if s == strings.Repeat("0", length) {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
