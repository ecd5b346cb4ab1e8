package webhook

import "time"

// Outcome is the dispatcher's structured verdict for one event.
type Outcome string

const (
	// OutcomeProcessed: a handler mutated state.
	OutcomeProcessed Outcome = "processed"
	// OutcomeIgnored: the event is irrelevant, a no-op by design.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeDeadLetter: the handler decided the event cannot be safely
	// applied (missing subscription/account, malformed payload). This is an
	// explicit handler decision, never a byproduct of an unexpected error.
	OutcomeDeadLetter Outcome = "dead_letter"
	// OutcomeSkipped: the event was already terminally handled.
	OutcomeSkipped Outcome = "skipped"
)

// Terminal reports whether the outcome closes the event for redelivery.
func (o Outcome) Terminal() bool {
	return o == OutcomeProcessed || o == OutcomeIgnored
}

// InboundEvent is a decoded gateway event as handed to the dispatcher.
// Payload is the full event JSON including the nested resource object.
type InboundEvent struct {
	ID         string
	Type       string
	Payload    []byte
	ReceivedAt time.Time
}

// Result pairs the outcome with the reason a handler gave for dead-lettering.
type Result struct {
	Outcome Outcome
	// Reason is set for OutcomeDeadLetter.
	Reason string
	// WorkspaceID is set when the handler resolved the owning workspace.
	WorkspaceID string
}

func processed() Result { return Result{Outcome: OutcomeProcessed} }
func ignored() Result   { return Result{Outcome: OutcomeIgnored} }
func deadLetter(reason string) Result {
	return Result{Outcome: OutcomeDeadLetter, Reason: reason}
}
