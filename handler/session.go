package handler

import (
	"fmt"
	"strings"
	"sync"

	"OnboardBot/model"
	"OnboardBot/workflow"
)

// skipAnswer is what a participant sends to leave an optional form field
// blank.
const skipAnswer = "-"

// formSession collects one step's structured fields over sequential direct
// messages, then hands the completed set back as a single submission.
type formSession struct {
	ChatID  int64
	Step    model.Step
	Answers map[string]string
	Index   int
	Prefill map[string]string
}

// SessionManager tracks in-flight form sessions per user.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[int64]*formSession
}

// NewSessionManager creates an empty session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[int64]*formSession)}
}

// Begin opens a session for a user and returns the first field's prompt.
// Any prior session for the user is discarded.
func (m *SessionManager) Begin(userID, chatID int64, step model.Step, rec *model.MemberRecord) string {
	prefill := make(map[string]string)
	for _, input := range step.Form.Inputs {
		if v := rec.Field(input.Field); v != "" && !model.IsDeclined(v) {
			prefill[input.Field] = v
		}
	}
	s := &formSession{
		ChatID:  chatID,
		Step:    step,
		Answers: make(map[string]string),
		Prefill: prefill,
	}
	m.mu.Lock()
	m.sessions[userID] = s
	m.mu.Unlock()

	var b strings.Builder
	if step.Form.Title != "" {
		fmt.Fprintf(&b, "%s\n\n", step.Form.Title)
	}
	b.WriteString(s.inputPrompt())
	return b.String()
}

// Active reports whether a user has an open session.
func (m *SessionManager) Active(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[userID]
	return ok
}

// Abort drops a user's session.
func (m *SessionManager) Abort(userID int64) {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
}

// HandleMessage records one answer. It returns the next prompt to send, or
// the completed submission once every field is answered.
func (m *SessionManager) HandleMessage(userID int64, text string) (prompt string, done *workflow.Inbound) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok {
		return "", nil
	}

	input := s.Step.Form.Inputs[s.Index]
	answer := strings.TrimSpace(text)
	if answer == skipAnswer {
		answer = ""
		if v, ok := s.Prefill[input.Field]; ok {
			// keep the previously validated answer
			answer = v
		}
	}
	s.Answers[input.Field] = answer
	s.Index++

	if s.Index < len(s.Step.Form.Inputs) {
		return s.inputPrompt(), nil
	}

	m.Abort(userID)
	return "", &workflow.Inbound{
		Kind:        workflow.InboundFormSubmit,
		ChatID:      s.ChatID,
		StepID:      s.Step.Identifier,
		Fields:      s.Answers,
		CanShowForm: true,
	}
}

func (s *formSession) inputPrompt() string {
	input := s.Step.Form.Inputs[s.Index]
	var b strings.Builder
	b.WriteString(input.Label)
	if input.Placeholder != "" {
		fmt.Fprintf(&b, "\n(e.g. %s)", input.Placeholder)
	}
	if v, ok := s.Prefill[input.Field]; ok {
		fmt.Fprintf(&b, "\nCurrent answer: %s", v)
	}
	fmt.Fprintf(&b, "\nSend %q to keep or skip.", skipAnswer)
	return b.String()
}
