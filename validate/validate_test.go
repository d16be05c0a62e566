package validate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OnboardBot/model"
	"OnboardBot/repo"
)

type fakeGeocoder struct {
	candidate *repo.AddressCandidate
	err       error
	lastQuery string
}

func (f *fakeGeocoder) FindAddress(_ context.Context, address string) (*repo.AddressCandidate, error) {
	f.lastQuery = address
	if f.err != nil {
		return nil, f.err
	}
	return f.candidate, nil
}

func fixedNow() time.Time { return time.UnixMilli(1700000000000) }

func newTestRegistry(geo Geocoder) *Registry {
	r := NewRegistry(geo, fixedNow)
	r.code = func() string { return "424242" }
	return r
}

func TestValidateNickname(t *testing.T) {
	r := newTestRegistry(nil)

	res, err := r.Validate(context.Background(), "nickname", "  Alex  ", &model.MemberRecord{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Alex", res.Value)

	_, err = r.Validate(context.Background(), "nickname", "   ", &model.MemberRecord{}, nil)
	var fe *model.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "nickname", fe.Field)
}

func TestValidateAddress(t *testing.T) {
	t.Run("blank declines name and address", func(t *testing.T) {
		r := newTestRegistry(nil)
		res, err := r.Validate(context.Background(), "legalAddress", "", &model.MemberRecord{}, nil)
		require.NoError(t, err)
		assert.True(t, model.IsDeclined(res.Value))
		assert.True(t, model.IsDeclined(res.Extra["legalName"]))
		assert.Nil(t, res.Notify)
	})

	t.Run("exact match stores candidate and derives name", func(t *testing.T) {
		geo := &fakeGeocoder{candidate: &repo.AddressCandidate{Address: "123 Main St, Springfield, IL, 62701", Score: 100}}
		r := newTestRegistry(geo)
		res, err := r.Validate(context.Background(), "legalAddress", "Alex Doe\n123 Main St\nSpringfield, IL 62701", &model.MemberRecord{}, nil)
		require.NoError(t, err)
		assert.Equal(t, "123 Main St, Springfield, IL, 62701", res.Value)
		assert.Equal(t, "Alex Doe", res.Extra["legalName"])
		assert.Equal(t, "123 Main St, Springfield, IL 62701", geo.lastQuery)
	})

	t.Run("inexact match rejected with closest candidate", func(t *testing.T) {
		geo := &fakeGeocoder{candidate: &repo.AddressCandidate{Address: "123 Maine St, Springfield, IL", Score: 87}}
		r := newTestRegistry(geo)
		_, err := r.Validate(context.Background(), "legalAddress", "Alex Doe\n123 Main St\nSpringfield, IL 62701", &model.MemberRecord{}, nil)
		var fe *model.FieldError
		require.ErrorAs(t, err, &fe)
		assert.Contains(t, fe.Message, "123 Maine St")
		assert.Contains(t, fe.Message, "87%")
	})

	t.Run("wrong line count rejected", func(t *testing.T) {
		r := newTestRegistry(nil)
		_, err := r.Validate(context.Background(), "legalAddress", "just one line", &model.MemberRecord{}, nil)
		var fe *model.FieldError
		require.ErrorAs(t, err, &fe)
		assert.Contains(t, fe.Message, "(3) lines")
	})

	t.Run("short street rejected before lookup", func(t *testing.T) {
		geo := &fakeGeocoder{err: errors.New("should not be called")}
		r := newTestRegistry(geo)
		_, err := r.Validate(context.Background(), "legalAddress", "Alex Doe\n123 Main\nSpringfield, IL 62701", &model.MemberRecord{}, nil)
		var fe *model.FieldError
		require.ErrorAs(t, err, &fe)
		assert.Empty(t, geo.lastQuery)
	})
}

func TestValidateEmail(t *testing.T) {
	t.Run("new address mints code and queues mail", func(t *testing.T) {
		r := newTestRegistry(nil)
		res, err := r.Validate(context.Background(), "email", "a@b.com", &model.MemberRecord{}, nil)
		require.NoError(t, err)
		assert.Equal(t, "a@b.com", res.Value)
		assert.Equal(t, "424242", res.Extra["emailVerificationCode"])
		require.NotNil(t, res.Notify)
		assert.Equal(t, NotifyVerificationMail, res.Notify.Kind)
		assert.Equal(t, "a@b.com", res.Notify.Email)
		assert.Equal(t, "424242", res.Notify.Code)
	})

	t.Run("resubmitting current address is a no-op", func(t *testing.T) {
		r := newTestRegistry(nil)
		rec := &model.MemberRecord{Email: "a@b.com"}
		res, err := r.Validate(context.Background(), "email", "a@b.com", rec, nil)
		require.NoError(t, err)
		assert.Equal(t, "a@b.com", res.Value)
		assert.Empty(t, res.Extra)
		assert.Nil(t, res.Notify)
	})

	t.Run("malformed address rejected", func(t *testing.T) {
		r := newTestRegistry(nil)
		for _, raw := range []string{"", "not-an-email", "a@b", "a b@c.com"} {
			_, err := r.Validate(context.Background(), "email", raw, &model.MemberRecord{}, nil)
			var fe *model.FieldError
			assert.ErrorAs(t, err, &fe, "raw=%q", raw)
		}
	})
}

func TestValidateEmailVerification(t *testing.T) {
	t.Run("match clears code and queues list sync", func(t *testing.T) {
		r := newTestRegistry(nil)
		rec := &model.MemberRecord{Email: "a@b.com", EmailVerificationCode: "424242"}
		res, err := r.Validate(context.Background(), "emailVerification", " 424242 ", rec, nil)
		require.NoError(t, err)
		assert.Equal(t, "424242", res.Value)
		assert.Equal(t, "", res.Extra["emailVerificationCode"])
		assert.Equal(t, "true", res.Extra["emailVerified"])
		require.NotNil(t, res.Notify)
		assert.Equal(t, NotifyListSync, res.Notify.Kind)
		assert.Equal(t, "a@b.com", res.Notify.Email)
	})

	t.Run("mismatch rejected", func(t *testing.T) {
		r := newTestRegistry(nil)
		rec := &model.MemberRecord{EmailVerificationCode: "424242"}
		_, err := r.Validate(context.Background(), "emailVerification", "111111", rec, nil)
		var fe *model.FieldError
		require.ErrorAs(t, err, &fe)
	})

	t.Run("no code on record rejected", func(t *testing.T) {
		r := newTestRegistry(nil)
		_, err := r.Validate(context.Background(), "emailVerification", "", &model.MemberRecord{}, nil)
		var fe *model.FieldError
		require.ErrorAs(t, err, &fe)
	})
}

func TestValidatePhone(t *testing.T) {
	r := newTestRegistry(nil)

	for raw, want := range map[string]string{
		"5551234567":   "555.123.4567",
		"555-123-4567": "555.123.4567",
		"555.123.4567": "555.123.4567",
	} {
		res, err := r.Validate(context.Background(), "sms", raw, &model.MemberRecord{}, nil)
		require.NoError(t, err, "raw=%q", raw)
		assert.Equal(t, want, res.Value)
	}

	_, err := r.Validate(context.Background(), "voice", "555 123 4567", &model.MemberRecord{}, nil)
	var fe *model.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "voice", fe.Field)

	res, err := r.Validate(context.Background(), "sms", "", &model.MemberRecord{}, nil)
	require.NoError(t, err)
	assert.True(t, model.IsDeclined(res.Value))
}

func TestValidateOptionalText(t *testing.T) {
	r := newTestRegistry(nil)

	res, err := r.Validate(context.Background(), "feedback", "great community", &model.MemberRecord{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "great community", res.Value)

	res, err = r.Validate(context.Background(), "social", "", &model.MemberRecord{}, nil)
	require.NoError(t, err)
	assert.True(t, model.IsDeclined(res.Value))
}

func TestMintCode(t *testing.T) {
	r := NewRegistry(nil, nil)
	for i := 0; i < 20; i++ {
		assert.Regexp(t, `^\d{6}$`, r.code())
	}
}

func TestValidateUnknownField(t *testing.T) {
	r := newTestRegistry(nil)
	_, err := r.Validate(context.Background(), "unknown", "x", &model.MemberRecord{}, nil)
	require.Error(t, err)
	var fe *model.FieldError
	assert.False(t, errors.As(err, &fe))
}
