package repo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedDoc = `
config:
  chatID: -100123
  channelID: -200456
  guestRoleID: guest
  completedRoleID: completed
  manageRoleID: manage
  promptTime: "09:00"
  mailerGroupID: grp-1
steps:
  - identifier: "0000"
    order: 0
    fields: [started]
    prompt:
      text: Welcome! Press Start to begin.
      buttons:
        - - label: Start
            data: OnboardingAsset.0000.started
  - identifier: "0001"
    order: 1
    fields: [nickname]
    form:
      title: About you
      inputs:
        - field: nickname
          label: Nickname
          placeholder: How should we address you?
reminder:
  text: Finish your application before $$promptTime$$.
viewTemplate:
  text: "Nickname: $$nickname$$"
`

func TestParseSeedFile(t *testing.T) {
	seed, err := ParseSeedFile(strings.NewReader(seedDoc))
	require.NoError(t, err)

	require.NotNil(t, seed.Config)
	assert.Equal(t, int64(-100123), seed.Config.ChatID)
	assert.Equal(t, "09:00", seed.Config.PromptTime)

	require.Len(t, seed.Steps, 2)
	assert.Equal(t, []string{"started"}, seed.Steps[0].Fields)
	assert.Equal(t, "OnboardingAsset.0000.started", seed.Steps[0].Prompt.Buttons[0][0].Data)
	assert.Equal(t, "nickname", seed.Steps[1].Form.Inputs[0].Field)

	require.NotNil(t, seed.Reminder)
	require.NotNil(t, seed.ViewTemplate)
}

func TestParseSeedFileInvariants(t *testing.T) {
	t.Run("config required", func(t *testing.T) {
		_, err := ParseSeedFile(strings.NewReader("steps: []\n"))
		assert.ErrorContains(t, err, "no config")
	})

	t.Run("duplicate order rejected", func(t *testing.T) {
		doc := `
config:
  chatID: -1
steps:
  - identifier: a
    order: 1
    fields: [nickname]
  - identifier: b
    order: 1
    fields: [email]
`
		_, err := ParseSeedFile(strings.NewReader(doc))
		assert.ErrorContains(t, err, "share order 1")
	})

	t.Run("overlapping field claim rejected", func(t *testing.T) {
		doc := `
config:
  chatID: -1
steps:
  - identifier: a
    order: 1
    fields: [nickname]
  - identifier: b
    order: 2
    fields: [nickname]
`
		_, err := ParseSeedFile(strings.NewReader(doc))
		assert.ErrorContains(t, err, `both claim field "nickname"`)
	})

	t.Run("form without inputs rejected", func(t *testing.T) {
		doc := `
config:
  chatID: -1
steps:
  - identifier: a
    order: 1
    fields: [nickname]
    form:
      title: About you
`
		_, err := ParseSeedFile(strings.NewReader(doc))
		assert.ErrorContains(t, err, `form with no inputs`)
	})

	t.Run("unknown keys rejected", func(t *testing.T) {
		_, err := ParseSeedFile(strings.NewReader("config:\n  chatID: -1\nbogus: true\n"))
		assert.ErrorContains(t, err, "decoding seed file")
	})
}
