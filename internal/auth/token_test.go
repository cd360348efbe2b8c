package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerRoundTrip(t *testing.T) {
	s := NewSigner("0123456789abcdef")

	tok := s.Issue("admin@airwave.test", time.Hour)
	subject, err := s.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "admin@airwave.test", subject)
}

func TestSignerSubjectWithSeparator(t *testing.T) {
	s := NewSigner("0123456789abcdef")

	subject, err := s.Verify(s.Issue("team|ops", time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "team|ops", subject)
}

func TestSignerExpiry(t *testing.T) {
	now := time.Date(2025, 5, 25, 12, 0, 0, 0, time.UTC)
	s := Signer{Secret: []byte("secret"), Now: func() time.Time { return now }}

	tok := s.Issue("ops", time.Minute)

	now = now.Add(59 * time.Second)
	_, err := s.Verify(tok)
	assert.NoError(t, err)

	now = now.Add(time.Second)
	_, err = s.Verify(tok)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestSignerRejectsForgery(t *testing.T) {
	s := NewSigner("secret")
	other := NewSigner("other")

	_, err := other.Verify(s.Issue("ops", time.Hour))
	assert.ErrorIs(t, err, ErrBadSig)

	tok := s.Issue("ops", time.Hour)
	parts := strings.SplitN(tok, ".", 2)
	forged := s.Issue("root", time.Hour)
	_, err = s.Verify(strings.SplitN(forged, ".", 2)[0] + "." + parts[1])
	assert.ErrorIs(t, err, ErrBadSig)
}

func TestSignerMalformed(t *testing.T) {
	s := NewSigner("secret")

	_, err := s.Verify("no-dot")
	assert.ErrorIs(t, err, ErrBadToken)

	_, err = s.Verify("!!!.sig")
	assert.ErrorIs(t, err, ErrBadToken)

	// valid signature over a payload without an expiry
	_, err = s.Verify(signRaw(s, "ops"))
	assert.ErrorIs(t, err, ErrBadPayload)
}

func signRaw(s Signer, msg string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(msg)) + "." + s.sig([]byte(msg))
}
