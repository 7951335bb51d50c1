package apm

// Wire model for exported trace data. One batch is a metadata object plus
// the transaction records that completed since the previous batch. Span
// records nest, preserving open order, so the consumer sees the same tree
// the instrumented code produced.

// Metadata describes the reporting process. Sent once per batch.
type Metadata struct {
	Service ServiceMetadata `json:"service"`
	System  SystemMetadata  `json:"system"`
	Process ProcessMetadata `json:"process"`
}

// ServiceMetadata identifies the instrumented service.
type ServiceMetadata struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Environment string `json:"environment,omitempty"`
	Runtime     string `json:"runtime"`
	Language    string `json:"language"`
}

// SystemMetadata describes the host.
type SystemMetadata struct {
	Hostname    string `json:"hostname,omitempty"`
	Platform    string `json:"platform,omitempty"`
	NumCPU      int    `json:"num_cpu"`
	TotalMemory uint64 `json:"total_memory,omitempty"`
}

// ProcessMetadata describes the reporting process.
type ProcessMetadata struct {
	PID int `json:"pid"`
}

// TransactionRecord is one completed transaction with its span tree.
type TransactionRecord struct {
	ID        string                `json:"id"`
	TraceID   string                `json:"trace_id"`
	ParentID  string                `json:"parent_id,omitempty"`
	Name      string                `json:"name"`
	Type      string                `json:"type"`
	Timestamp int64                 `json:"timestamp"`
	Duration  float64               `json:"duration"`
	Outcome   string                `json:"outcome"`
	Result    string                `json:"result,omitempty"`
	Sampled   bool                  `json:"sampled"`
	Labels    map[string]LabelValue `json:"labels,omitempty"`
	Custom    map[string]LabelValue `json:"custom,omitempty"`
	Spans     []*SpanRecord         `json:"spans,omitempty"`
	Errors    []*ErrorRecordWire    `json:"errors,omitempty"`
	SpanCount SpanCount             `json:"span_count"`
}

// SpanCount summarizes how many spans the transaction started and how many
// were dropped (still running at End, or started after it).
type SpanCount struct {
	Started int `json:"started"`
	Dropped int `json:"dropped"`
}

// SpanRecord is one finished span. Children preserve open order.
type SpanRecord struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	Category  string                `json:"category"`
	Timestamp int64                 `json:"timestamp"`
	Duration  float64               `json:"duration"`
	Outcome   string                `json:"outcome"`
	Labels    map[string]LabelValue `json:"labels,omitempty"`
	Children  []*SpanRecord         `json:"children,omitempty"`
}

// ErrorRecordWire is one captured error or panic.
type ErrorRecordWire struct {
	Type      string       `json:"type"`
	Message   string       `json:"message"`
	Timestamp int64        `json:"timestamp"`
	SpanID    string       `json:"span_id,omitempty"`
	Stack     []StackFrame `json:"stack,omitempty"`
}

// Batch is what an Exporter receives: shared metadata plus completed
// transaction records.
type Batch struct {
	Metadata     *Metadata
	Transactions []*TransactionRecord
}
