package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OnboardBot/model"
)

func TestNormalize(t *testing.T) {
	t.Run("command identifies", func(t *testing.T) {
		actor, act, err := Normalize(Inbound{Kind: InboundCommand, UserID: 42, ChatID: testChatID, Username: "alex", CanShowForm: true})
		require.NoError(t, err)
		assert.Equal(t, model.ActionIdentify, act.Kind)
		assert.Equal(t, int64(42), actor.UserID)
		assert.Equal(t, "alex", actor.Username)
		assert.True(t, actor.CanShowForm)
	})

	t.Run("join identifies", func(t *testing.T) {
		_, act, err := Normalize(Inbound{Kind: InboundJoin, UserID: 42, ChatID: testChatID})
		require.NoError(t, err)
		assert.Equal(t, model.ActionIdentify, act.Kind)
	})

	t.Run("button carries the trailing signal", func(t *testing.T) {
		_, act, err := Normalize(Inbound{
			Kind: InboundButton, UserID: 42, ChatID: testChatID,
			CallbackData: "OnboardingAsset.0000.started",
		})
		require.NoError(t, err)
		assert.Equal(t, model.ActionSignal, act.Kind)
		assert.Equal(t, model.SignalStarted, act.Signal)
	})

	t.Run("menu select without a step segment", func(t *testing.T) {
		_, act, err := Normalize(Inbound{
			Kind: InboundMenuSelect, UserID: 42, ChatID: testChatID,
			CallbackData: "OnboardingAsset.view",
		})
		require.NoError(t, err)
		assert.Equal(t, model.ActionSignal, act.Kind)
		assert.Equal(t, model.SignalView, act.Signal)
	})

	t.Run("foreign callback data rejected", func(t *testing.T) {
		_, _, err := Normalize(Inbound{
			Kind: InboundButton, UserID: 42, ChatID: testChatID,
			CallbackData: "EventAsset.0000.started",
		})
		assert.ErrorIs(t, err, model.ErrUnhandledAction)
	})

	t.Run("form submit carries step and fields", func(t *testing.T) {
		_, act, err := Normalize(Inbound{
			Kind: InboundFormSubmit, UserID: 42, ChatID: testChatID,
			StepID: "0001", Fields: map[string]string{"nickname": "Alex"},
		})
		require.NoError(t, err)
		assert.Equal(t, model.ActionSubmit, act.Kind)
		assert.Equal(t, "0001", act.StepID)
		assert.Equal(t, "Alex", act.Fields["nickname"])
	})

	t.Run("tick schedules for the community", func(t *testing.T) {
		_, act, err := Normalize(Inbound{Kind: InboundTick, ChatID: testChatID, TargetUserID: 7})
		require.NoError(t, err)
		assert.Equal(t, model.ActionScheduled, act.Kind)
		assert.Equal(t, testChatID, act.ChatID)
		assert.Equal(t, int64(7), act.TargetUserID)
	})

	t.Run("tick without a community is unresolvable", func(t *testing.T) {
		_, _, err := Normalize(Inbound{Kind: InboundTick})
		assert.ErrorIs(t, err, model.ErrUnresolvableParticipant)
	})

	t.Run("missing participant is unresolvable", func(t *testing.T) {
		for _, ev := range []Inbound{
			{Kind: InboundCommand, ChatID: testChatID},
			{Kind: InboundButton, UserID: 42},
			{Kind: InboundFormSubmit},
		} {
			_, _, err := Normalize(ev)
			assert.ErrorIs(t, err, model.ErrUnresolvableParticipant)
		}
	})
}
