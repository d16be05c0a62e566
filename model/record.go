package model

import (
	"fmt"
	"strings"
	"time"
)

// DeclinedPrefix marks a field the participant was asked about and chose to
// skip. Distinct from the empty string, which means "never asked".
const DeclinedPrefix = "Declined: "

// RecordFields lists every field a step catalog may claim, in display order.
var RecordFields = []string{
	"started",
	"nickname",
	"legalName",
	"legalAddress",
	"email",
	"emailVerified",
	"emailVerification",
	"sms",
	"voice",
	"social",
	"contactVerified",
	"feedback",
}

// MemberRecord is one participant's onboarding application for one community.
// The record's position in the step catalog is derived from which fields are
// still empty, never stored as a cursor, so clearing a field re-opens the
// workflow at that step.
type MemberRecord struct {
	ID       string `firestore:"id"`
	UserID   int64  `firestore:"userID"`
	ChatID   int64  `firestore:"chatID"`
	Revision int    `firestore:"revision"`
	// Version is bumped on every write and checked transactionally so a
	// racing double submission is rejected instead of silently lost.
	Version int64 `firestore:"version"`

	Started               int64    `firestore:"started"`
	Nickname              string   `firestore:"nickname"`
	LegalName             string   `firestore:"legalName"`
	LegalAddress          string   `firestore:"legalAddress"`
	Email                 string   `firestore:"email"`
	EmailVerificationCode string   `firestore:"emailVerificationCode"`
	EmailVerification     string   `firestore:"emailVerification"`
	EmailVerified         bool     `firestore:"emailVerified"`
	SMS                   string   `firestore:"sms"`
	Voice                 string   `firestore:"voice"`
	Social                []string `firestore:"social"`
	ContactVerified       int64    `firestore:"contactVerified"`
	Feedback              string   `firestore:"feedback"`
	Completed             int64    `firestore:"completed"`
}

// DeclinedValue builds the sentinel stored when a participant skips an
// optional field.
func DeclinedValue(now time.Time) string {
	return fmt.Sprintf("%s%d", DeclinedPrefix, now.UnixMilli())
}

// IsDeclined reports whether a stored value is a declined sentinel.
func IsDeclined(v string) bool {
	return strings.HasPrefix(v, DeclinedPrefix)
}

// Filled reports whether the named field is present and non-empty. A
// declined sentinel counts as filled.
func (r *MemberRecord) Filled(field string) bool {
	switch field {
	case "started":
		return r.Started > 0
	case "emailVerified":
		return r.EmailVerified
	case "contactVerified":
		return r.ContactVerified > 0
	case "social":
		return len(r.Social) > 0
	case "completed":
		return r.Completed > 0
	default:
		return r.Field(field) != ""
	}
}

// Field returns the named field rendered as a string, empty when unset or
// unknown. Social handles join with newlines.
func (r *MemberRecord) Field(field string) string {
	switch field {
	case "started":
		return unixField(r.Started)
	case "nickname":
		return r.Nickname
	case "legalName":
		return r.LegalName
	case "legalAddress":
		return r.LegalAddress
	case "email":
		return r.Email
	case "emailVerificationCode":
		return r.EmailVerificationCode
	case "emailVerification":
		return r.EmailVerification
	case "emailVerified":
		if r.EmailVerified {
			return "true"
		}
		return ""
	case "sms":
		return r.SMS
	case "voice":
		return r.Voice
	case "social":
		return strings.Join(r.Social, "\n")
	case "contactVerified":
		return unixField(r.ContactVerified)
	case "feedback":
		return r.Feedback
	case "completed":
		return unixField(r.Completed)
	default:
		return ""
	}
}

// SetField stores a validated value under the named field. Unknown fields
// are ignored; the validator registry only emits known ones.
func (r *MemberRecord) SetField(field, value string) {
	switch field {
	case "nickname":
		r.Nickname = value
	case "legalName":
		r.LegalName = value
	case "legalAddress":
		r.LegalAddress = value
	case "email":
		r.Email = value
	case "emailVerificationCode":
		r.EmailVerificationCode = value
	case "emailVerification":
		r.EmailVerification = value
	case "emailVerified":
		r.EmailVerified = value != ""
	case "sms":
		r.SMS = value
	case "voice":
		r.Voice = value
	case "social":
		if value == "" {
			r.Social = nil
		} else {
			r.Social = strings.Split(value, "\n")
		}
	case "feedback":
		r.Feedback = value
	}
}

// PercentComplete reports how much of the record's catalog-visible fields
// are filled, for the administrative list.
func (r *MemberRecord) PercentComplete() float64 {
	filled := 0
	for _, f := range RecordFields {
		if r.Filled(f) {
			filled++
		}
	}
	return float64(filled) / float64(len(RecordFields)) * 100
}

func unixField(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return fmt.Sprintf("%d", ms)
}
