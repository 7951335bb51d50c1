package apm

import (
	"fmt"
	"runtime"
	"time"
)

const maxStackFrames = 50

// ErrorRecord is a captured error or panic, attached to the transaction it
// happened in.
type ErrorRecord struct {
	Type      string
	Message   string
	Timestamp time.Time
	SpanID    string
	Stack     []StackFrame
}

// StackFrame is one entry of a captured call stack.
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// PanicError wraps a recovered panic value so it can travel as an error.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func newErrorRecord(err error, skip int) *ErrorRecord {
	return &ErrorRecord{
		Type:      fmt.Sprintf("%T", err),
		Message:   err.Error(),
		Timestamp: time.Now(),
		Stack:     captureStack(skip + 1),
	}
}

func captureStack(skip int) []StackFrame {
	pcs := make([]uintptr, maxStackFrames)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	out := make([]StackFrame, 0, n)
	for {
		frame, more := frames.Next()
		out = append(out, StackFrame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more {
			break
		}
	}
	return out
}

func (er *ErrorRecord) wire() *ErrorRecordWire {
	return &ErrorRecordWire{
		Type:      er.Type,
		Message:   er.Message,
		Timestamp: er.Timestamp.UnixMicro(),
		SpanID:    er.SpanID,
		Stack:     er.Stack,
	}
}
