package model

// ActionKind discriminates the canonical participant action union. Every
// inbound event shape (command, button, form submission, menu selection,
// join event, timer tick) normalizes to exactly one of these.
type ActionKind int

const (
	// ActionIdentify evaluates a participant with no user data attached.
	ActionIdentify ActionKind = iota
	// ActionSubmit carries a structured field submission for one step.
	ActionSubmit
	// ActionSignal is a zero-payload affordance such as a button press.
	ActionSignal
	// ActionScheduled is a reminder tick, optionally scoped to one
	// participant.
	ActionScheduled
)

// Signal names recognized by the workflow engine.
const (
	SignalStarted         = "started"
	SignalLeave           = "leave"
	SignalEmailVerified   = "emailVerified"
	SignalContactVerified = "contactVerified"
	SignalRetry           = "retry"
	SignalView            = "view"
)

// Action is the canonical participant action handed to the workflow engine.
// Only the fields relevant to Kind are populated.
type Action struct {
	Kind ActionKind

	// Submit
	StepID string
	Fields map[string]string

	// Signal
	Signal string

	// Scheduled
	ChatID       int64
	TargetUserID int64
}
