// Package apmhttp traces outbound HTTP requests with the Pulse agent.
package apmhttp

import (
	"net/http"

	"github.com/pulsemetric/pulse/pkg/apm"
)

// WrapClient returns a client whose requests are recorded as external.http
// spans of the active transaction, with the trace context propagated through
// the traceparent header. Requests made without an active transaction pass
// through untouched.
//
// The given client is not modified; nil means http.DefaultClient.
func WrapClient(client *http.Client) *http.Client {
	if client == nil {
		client = http.DefaultClient
	}
	wrapped := *client
	wrapped.Transport = &roundTripper{next: transportOf(client)}
	return &wrapped
}

type roundTripper struct {
	next http.RoundTripper
}

func transportOf(client *http.Client) http.RoundTripper {
	if client.Transport != nil {
		return client.Transport
	}
	return http.DefaultTransport
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	tx := apm.TransactionFromContext(ctx)
	if tx == nil {
		return rt.next.RoundTrip(req)
	}

	ctx, span := apm.StartSpan(ctx, req.Method+" "+req.URL.Host, "external.http")
	defer span.End()

	span.AddLabels(
		apm.String("http.method", req.Method),
		apm.String("http.url", req.URL.String()),
	)

	req = req.Clone(ctx)
	if tc := apm.CurrentTraceContext(ctx); tc.Valid() {
		req.Header.Set("Traceparent", tc.Traceparent())
	}

	resp, err := rt.next.RoundTrip(req)
	if err != nil {
		span.SetOutcome(apm.OutcomeFailure)
		return resp, err
	}

	span.AddLabels(apm.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		span.SetOutcome(apm.OutcomeFailure)
	}
	return resp, nil
}
