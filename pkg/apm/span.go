package apm

import (
	"sync"
	"time"
)

// Span measures one operation inside a transaction. Spans nest: opening a
// span under a context whose current span is still running makes it a child
// of that span, otherwise a direct child of the transaction. Children are
// kept in the order they were opened.
//
// A span returned without an active (sampled) transaction is a dropped span:
// every method is a no-op. Callers never need to check.
type Span struct {
	tx     *Transaction
	parent *Span

	id       string
	name     string
	category string
	start    time.Time

	mu         sync.Mutex
	ended      bool
	duration   time.Duration
	outcome    Outcome
	outcomeSet bool
	labels     map[string]LabelValue
	children   []*Span

	dropped bool
}

func newDroppedSpan() *Span {
	return &Span{dropped: true}
}

// Dropped reports whether the span was discarded at creation because no
// sampled transaction was active or the transaction had already ended.
func (s *Span) Dropped() bool {
	return s == nil || s.dropped
}

// Name returns the span name.
func (s *Span) Name() string {
	if s.Dropped() {
		return ""
	}
	return s.name
}

// Category returns the span category, e.g. "db.query" or "external.http".
func (s *Span) Category() string {
	if s.Dropped() {
		return ""
	}
	return s.category
}

// TraceContext returns the ids to propagate to work performed on behalf of
// this span. The zero value is returned for dropped spans.
func (s *Span) TraceContext() TraceContext {
	if s.Dropped() {
		return TraceContext{}
	}
	return TraceContext{TraceID: s.tx.traceID, SpanID: s.id}
}

// AddLabels attaches labels to the span, last write per key winning.
func (s *Span) AddLabels(labels ...Label) {
	if s.Dropped() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.labels = labelMap(s.labels, labels)
}

// SetOutcome overrides the outcome that would otherwise be inferred at End.
func (s *Span) SetOutcome(outcome Outcome) {
	if s.Dropped() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.outcome = outcome
	s.outcomeSet = true
}

// Outcome returns the current outcome. Before End it reflects only explicit
// SetOutcome calls.
func (s *Span) Outcome() Outcome {
	if s.Dropped() {
		return OutcomeUnknown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.outcomeSet && !s.ended {
		return OutcomeUnknown
	}
	return s.outcome
}

// Duration returns the measured duration, zero until the span has ended.
func (s *Span) Duration() time.Duration {
	if s.Dropped() {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// End closes the span, recording its duration and final outcome. End is
// idempotent; only the first call has effect. A span ended after its
// transaction already shipped stays out of the reported tree.
func (s *Span) End() {
	if s.Dropped() {
		return
	}
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.duration = time.Since(s.start)
	if !s.outcomeSet {
		s.outcome = OutcomeSuccess
	}
	s.mu.Unlock()
}

// attachChild appends a freshly created span to the child list. The child is
// unshared at this point, so only the parent lock is needed.
func (s *Span) attachChild(child *Span) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	s.children = append(s.children, child)
	return true
}

// snapshot renders the span subtree for export. Spans still running when the
// transaction ends are left out; they are counted as dropped by the caller.
func (s *Span) snapshot(counter *int) *SpanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		*counter += 1 + countSpans(s.children)
		return nil
	}
	rec := &SpanRecord{
		ID:        s.id,
		Name:      s.name,
		Category:  s.category,
		Timestamp: s.start.UnixMicro(),
		Duration:  durationMillis(s.duration),
		Outcome:   s.outcome.String(),
		Labels:    copyLabels(s.labels),
	}
	for _, child := range s.children {
		if cs := child.snapshot(counter); cs != nil {
			rec.Children = append(rec.Children, cs)
		}
	}
	return rec
}

func countSpans(spans []*Span) int {
	n := 0
	for _, s := range spans {
		s.mu.Lock()
		children := s.children
		s.mu.Unlock()
		n += 1 + countSpans(children)
	}
	return n
}

func durationMillis(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
