package apm

// Outcome describes how a transaction or span ended.
type Outcome string

const (
	// OutcomeUnknown is the zero value, used while a unit is still running
	// or when the instrumentation could not tell how it went.
	OutcomeUnknown Outcome = "unknown"

	// OutcomeSuccess marks a unit that completed normally.
	OutcomeSuccess Outcome = "success"

	// OutcomeFailure marks a unit that ended with an error or panic.
	OutcomeFailure Outcome = "failure"
)

func (o Outcome) String() string {
	if o == "" {
		return string(OutcomeUnknown)
	}
	return string(o)
}
