package model

import "sort"

// Step is one ordered unit of the onboarding workflow, responsible for
// filling the record fields it declares. Steps are totally ordered by Order;
// order values need not be contiguous.
type Step struct {
	Identifier string   `firestore:"identifier" yaml:"identifier"`
	ChatID     int64    `firestore:"chatID" yaml:"-"`
	Order      int      `firestore:"order" yaml:"order"`
	Fields     []string `firestore:"fieldMapping" yaml:"fields"`

	Prompt *MessageAsset `firestore:"prompt,omitempty" yaml:"prompt,omitempty"`
	Form   *FormAsset    `firestore:"form,omitempty" yaml:"form,omitempty"`
}

// MessageAsset is a stored prompt: text plus optional signal buttons.
// Text may carry $$configKey$$ placeholders filled at render time.
type MessageAsset struct {
	Text    string         `firestore:"text" yaml:"text"`
	Buttons [][]StepButton `firestore:"buttons,omitempty" yaml:"buttons,omitempty"`
}

// StepButton is a zero-payload signal affordance attached to a prompt.
type StepButton struct {
	Label string `firestore:"label" yaml:"label"`
	Data  string `firestore:"data" yaml:"data"`
}

// FormAsset describes a structured multi-field input for a step.
type FormAsset struct {
	Title  string      `firestore:"title" yaml:"title"`
	Inputs []FormInput `firestore:"inputs" yaml:"inputs"`
}

// FormInput is one field of a form, keyed by a record field name.
type FormInput struct {
	Field       string `firestore:"field" yaml:"field"`
	Label       string `firestore:"label" yaml:"label"`
	Placeholder string `firestore:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Optional    bool   `firestore:"optional,omitempty" yaml:"optional,omitempty"`
}

// SortSteps orders a catalog by Order, in place.
func SortSteps(steps []Step) {
	sort.Slice(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
}

// CurrentStep returns the lowest-order step for which at least one declared
// field is missing or empty on the record, or nil when every step is
// satisfied. Pure: the result depends only on the record's filled fields.
func CurrentStep(rec *MemberRecord, steps []Step) (*Step, error) {
	if len(steps) == 0 {
		return nil, ErrNoStepsConfigured
	}
	ordered := make([]Step, len(steps))
	copy(ordered, steps)
	SortSteps(ordered)
	for i := range ordered {
		for _, f := range ordered[i].Fields {
			if !rec.Filled(f) {
				return &ordered[i], nil
			}
		}
	}
	return nil, nil
}

// StepByID finds a step by its identifier.
func StepByID(steps []Step, id string) *Step {
	for i := range steps {
		if steps[i].Identifier == id {
			return &steps[i]
		}
	}
	return nil
}

// FirstStep returns the lowest-order step of the catalog.
func FirstStep(steps []Step) *Step {
	if len(steps) == 0 {
		return nil
	}
	first := &steps[0]
	for i := range steps {
		if steps[i].Order < first.Order {
			first = &steps[i]
		}
	}
	return first
}
