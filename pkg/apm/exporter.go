package apm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// intakePath is where the collector accepts event batches.
const intakePath = "/intake/v2/events"

// Exporter ships completed batches out of the process. Implementations are
// called from the reporter goroutine only, one batch at a time.
type Exporter interface {
	SendBatch(ctx context.Context, batch Batch) error
}

// HTTPExporter posts batches to a Pulse collector as newline delimited JSON:
// one metadata line followed by one line per transaction.
type HTTPExporter struct {
	serverURL   string
	secretToken string
	client      *http.Client
}

// NewHTTPExporter builds an exporter for the given collector base URL. An
// optional secret token is sent as a bearer credential.
func NewHTTPExporter(serverURL, secretToken string, client *http.Client) *HTTPExporter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPExporter{
		serverURL:   strings.TrimRight(serverURL, "/"),
		secretToken: secretToken,
		client:      client,
	}
}

func (e *HTTPExporter) SendBatch(ctx context.Context, batch Batch) error {
	body, err := encodeNDJSON(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serverURL+intakePath, body)
	if err != nil {
		return fmt.Errorf("build intake request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	if e.secretToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.secretToken)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("collector rejected batch: %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	return nil
}

func encodeNDJSON(batch Batch) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(map[string]*Metadata{"metadata": batch.Metadata}); err != nil {
		return nil, err
	}
	for _, tx := range batch.Transactions {
		if err := enc.Encode(map[string]*TransactionRecord{"transaction": tx}); err != nil {
			return nil, err
		}
	}
	return &buf, nil
}

// LogExporter writes batches to the structured log instead of the network.
// It serves local development and the disabled-agent mode, where traces are
// still useful to eyeball.
type LogExporter struct {
	log *slog.Logger
}

// NewLogExporter builds an exporter that logs each transaction at debug
// level.
func NewLogExporter(log *slog.Logger) *LogExporter {
	if log == nil {
		log = slog.Default()
	}
	return &LogExporter{log: log}
}

func (e *LogExporter) SendBatch(ctx context.Context, batch Batch) error {
	for _, tx := range batch.Transactions {
		e.log.DebugContext(ctx, "transaction completed",
			slog.String("scope", "apm"),
			slog.String("trace_id", tx.TraceID),
			slog.String("transaction_id", tx.ID),
			slog.String("name", tx.Name),
			slog.String("type", tx.Type),
			slog.String("outcome", tx.Outcome),
			slog.Float64("duration_ms", tx.Duration),
			slog.Int("spans", len(tx.Spans)),
			slog.Int("errors", len(tx.Errors)),
		)
	}
	return nil
}
