package workflow

import (
	"strings"

	"OnboardBot/model"
)

// CallbackPrefix tags button and menu callback data owned by onboarding.
const CallbackPrefix = "OnboardingAsset"

// InboundKind enumerates the raw event shapes that reach the normalizer.
type InboundKind int

const (
	// InboundCommand is a typed chat command.
	InboundCommand InboundKind = iota
	// InboundButton is a zero-payload button press.
	InboundButton
	// InboundFormSubmit is a completed structured form.
	InboundFormSubmit
	// InboundMenuSelect is a selection from an interactive menu.
	InboundMenuSelect
	// InboundJoin is an automatic community join event.
	InboundJoin
	// InboundTick is a scheduled reminder tick.
	InboundTick
)

// Inbound is one raw event, already reduced to platform-independent fields
// by the handler layer.
type Inbound struct {
	Kind     InboundKind
	UserID   int64
	ChatID   int64
	Username string

	// InboundButton / InboundMenuSelect
	CallbackData string

	// InboundFormSubmit
	StepID string
	Fields map[string]string

	// InboundTick
	TargetUserID int64

	CanShowForm bool
}

// Normalize maps a raw inbound event onto the canonical participant action.
// It is a pure mapping: engine code never branches on the original event
// shape. Events that carry no resolvable participant or community fail with
// model.ErrUnresolvableParticipant.
func Normalize(ev Inbound) (Actor, model.Action, error) {
	actor := Actor{
		UserID:      ev.UserID,
		ChatID:      ev.ChatID,
		Username:    ev.Username,
		CanShowForm: ev.CanShowForm,
	}

	if ev.Kind == InboundTick {
		if ev.ChatID == 0 {
			return actor, model.Action{}, model.ErrUnresolvableParticipant
		}
		return actor, model.Action{
			Kind:         model.ActionScheduled,
			ChatID:       ev.ChatID,
			TargetUserID: ev.TargetUserID,
		}, nil
	}

	if ev.UserID == 0 || ev.ChatID == 0 {
		return actor, model.Action{}, model.ErrUnresolvableParticipant
	}

	switch ev.Kind {
	case InboundCommand, InboundJoin:
		return actor, model.Action{Kind: model.ActionIdentify}, nil
	case InboundButton, InboundMenuSelect:
		signal, err := parseSignal(ev.CallbackData)
		if err != nil {
			return actor, model.Action{}, err
		}
		return actor, model.Action{Kind: model.ActionSignal, Signal: signal}, nil
	case InboundFormSubmit:
		return actor, model.Action{
			Kind:   model.ActionSubmit,
			StepID: ev.StepID,
			Fields: ev.Fields,
		}, nil
	default:
		return actor, model.Action{}, model.ErrUnhandledAction
	}
}

// parseSignal extracts the signal name from callback data shaped
// "OnboardingAsset.<step>.<signal>" or "OnboardingAsset.<signal>".
func parseSignal(data string) (string, error) {
	parts := strings.Split(data, ".")
	if len(parts) < 2 || parts[0] != CallbackPrefix {
		return "", model.ErrUnhandledAction
	}
	return parts[len(parts)-1], nil
}
