// Package validate holds the per-field validators for onboarding
// submissions. Validators are pure or perform idempotent lookups only
// (address geocoding); notifications they request are dispatched by the
// engine after the record write commits.
package validate

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"OnboardBot/model"
	"OnboardBot/repo"
)

var (
	phonePattern = regexp.MustCompile(`^(\d{3})[\.\-]?(\d{3})[\.\-]?(\d{4})$`)
	emailPattern = regexp.MustCompile(`(?i)^[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}$`)
)

// NotificationKind discriminates post-commit notifications requested by a
// validator.
type NotificationKind int

const (
	// NotifyVerificationMail sends the minted code to the new address.
	NotifyVerificationMail NotificationKind = iota
	// NotifyListSync subscribes the verified address to the mailing list.
	NotifyListSync
)

// Notification is a side effect queued during validation and fired only
// after the record write commits. Delivery is best-effort; a failure is
// logged and never rolls back the write.
type Notification struct {
	Kind  NotificationKind
	Email string
	Code  string
}

// Result is a successful validation: the canonical value for the submitted
// field, any extra record fields it derives (a parsed legal name, a minted
// verification code), and an optional post-commit notification.
type Result struct {
	Value  string
	Extra  map[string]string
	Notify *Notification
}

// Geocoder resolves a free-text address to its best candidate.
type Geocoder interface {
	FindAddress(ctx context.Context, address string) (*repo.AddressCandidate, error)
}

// Registry validates submitted fields by name.
type Registry struct {
	geo  Geocoder
	now  func() time.Time
	code func() string
}

// NewRegistry builds a validator registry. The geocoder backs the address
// validator; now supplies declined-sentinel timestamps.
func NewRegistry(geo Geocoder, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{geo: geo, now: now, code: mintCode}
}

// mintCode produces a 6-digit email verification code.
func mintCode() string {
	return fmt.Sprintf("%06d", rand.Intn(1e6))
}

// Validate checks one submitted field against the record and community
// config. Failures are *model.FieldError; anything else is a structural
// problem with the validator itself.
func (r *Registry) Validate(ctx context.Context, field, raw string, rec *model.MemberRecord, cfg *model.OnboardingConfig) (Result, error) {
	switch field {
	case "nickname":
		return r.nickname(raw)
	case "legalAddress":
		return r.address(ctx, raw)
	case "email":
		return r.email(raw, rec)
	case "emailVerification":
		return r.emailVerification(raw, rec)
	case "sms", "voice":
		return r.phone(field, raw)
	case "social":
		return r.optionalText(raw)
	case "feedback":
		return r.optionalText(raw)
	default:
		return Result{}, fmt.Errorf("no validator registered for field %q", field)
	}
}

func (r *Registry) nickname(raw string) (Result, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Result{}, model.NewFieldError("nickname", "a nickname is required")
	}
	return Result{Value: raw}, nil
}

// address expects three lines: legal name, street address, "City, ST Zip".
// The street portion is geocoded; anything short of an exact match is
// rejected with the closest candidate so the participant can correct it.
// A blank submission declines both the name and the address.
func (r *Registry) address(ctx context.Context, raw string) (Result, error) {
	if strings.TrimSpace(raw) == "" {
		declined := model.DeclinedValue(r.now())
		return Result{Value: declined, Extra: map[string]string{"legalName": declined}}, nil
	}

	parts := strings.Split(strings.TrimSpace(raw), "\n")
	if len(parts) != 3 {
		return Result{}, model.NewFieldError("legalAddress", "expected (3) lines, received (%d)", len(parts))
	}
	if len(strings.Fields(parts[1])) < 3 {
		return Result{}, model.NewFieldError("legalAddress", `street address expecting minimum: "{#} {Street} {Type}"`)
	}

	candidate, err := r.geo.FindAddress(ctx, strings.Join(parts[1:], ", "))
	if err != nil {
		return Result{}, model.NewFieldError("legalAddress", "address lookup failed: %v", err)
	}
	if candidate.Score < 100 {
		return Result{}, model.NewFieldError("legalAddress",
			"address not found, closest match: %s (%.0f%%)", candidate.Address, candidate.Score)
	}
	return Result{
		Value: candidate.Address,
		Extra: map[string]string{"legalName": strings.TrimSpace(parts[0])},
	}, nil
}

// email accepts a well-formed address. A new address mints a verification
// code, stores it on the record, and queues the verification mail for
// post-commit dispatch. Resubmitting the current address is a no-op.
func (r *Registry) email(raw string, rec *model.MemberRecord) (Result, error) {
	raw = strings.TrimSpace(raw)
	if raw == rec.Email && raw != "" {
		return Result{Value: raw}, nil
	}
	if !emailPattern.MatchString(raw) {
		return Result{}, model.NewFieldError("email", "invalid email address: %q", raw)
	}
	code := r.code()
	return Result{
		Value: raw,
		Extra: map[string]string{"emailVerificationCode": code},
		Notify: &Notification{
			Kind:  NotifyVerificationMail,
			Email: raw,
			Code:  code,
		},
	}, nil
}

// emailVerification matches the submitted code against the one stored on
// the record. A match marks the address verified, clears the transient code
// and queues the mailing-list sync.
func (r *Registry) emailVerification(raw string, rec *model.MemberRecord) (Result, error) {
	raw = strings.TrimSpace(raw)
	if rec.EmailVerificationCode == "" || raw != rec.EmailVerificationCode {
		return Result{}, model.NewFieldError("emailVerification", "your email verification code did not match")
	}
	return Result{
		Value: raw,
		Extra: map[string]string{"emailVerificationCode": "", "emailVerified": "true"},
		Notify: &Notification{
			Kind:  NotifyListSync,
			Email: rec.Email,
		},
	}, nil
}

func (r *Registry) phone(field, raw string) (Result, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Result{Value: model.DeclinedValue(r.now())}, nil
	}
	parts := phonePattern.FindStringSubmatch(raw)
	if parts == nil {
		return Result{}, model.NewFieldError(field, "invalid %s number: %q", field, raw)
	}
	return Result{Value: fmt.Sprintf("%s.%s.%s", parts[1], parts[2], parts[3])}, nil
}

func (r *Registry) optionalText(raw string) (Result, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Result{Value: model.DeclinedValue(r.now())}, nil
	}
	return Result{Value: raw}, nil
}
