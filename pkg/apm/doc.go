// Package apm implements the Pulse application performance monitoring agent.
//
// A Tracer owns the reporting pipeline. Instrumented code starts a
// Transaction per unit of work (an HTTP request, a queued task, a batch run),
// opens Spans inside it for the operations worth timing, and ends the
// transaction when the unit finishes. Completed transactions carry their full
// span tree and are handed to a background reporter that batches and exports
// them without ever blocking the instrumented code path.
//
// Transactions and spans travel through context.Context. The usual pattern:
//
//	tx := tracer.StartTransaction("GET /api/users", "request")
//	ctx := apm.ContextWithTransaction(req.Context(), tx)
//	defer tx.End()
//
//	ctx, span := apm.StartSpan(ctx, "fetch_users", "db.query")
//	defer span.End()
//
// All context-based helpers (StartSpan, AddLabels, CaptureError, ...) are
// safe to call when no transaction is active: they become no-ops so that
// instrumented library code never has to care whether monitoring is on.
package apm
