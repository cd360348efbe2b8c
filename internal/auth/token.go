// Package auth issues and verifies the signed admin tokens that guard the
// cache management API.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrBadToken   = errors.New("bad token")
	ErrBadSig     = errors.New("invalid signature")
	ErrExpired    = errors.New("expired")
	ErrBadPayload = errors.New("bad payload")
)

// Signer signs "subject|exp" payloads with HMAC-SHA256
type Signer struct {
	Secret []byte
	Now    func() time.Time
}

func NewSigner(secret string) Signer {
	return Signer{Secret: []byte(secret)}
}

func (s Signer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Sign returns payload.sig, both URL-safe base64 without padding
func (s Signer) Sign(subject string, exp time.Time) string {
	msg := subject + "|" + strconv.FormatInt(exp.Unix(), 10)
	payload := base64.RawURLEncoding.EncodeToString([]byte(msg))
	return payload + "." + s.sig([]byte(msg))
}

// Issue signs subject with an expiry ttl from now
func (s Signer) Issue(subject string, ttl time.Duration) string {
	return s.Sign(subject, s.now().Add(ttl))
}

// Verify checks the signature and expiry and returns the subject
func (s Signer) Verify(token string) (string, error) {
	parts := strings.SplitN(strings.TrimSpace(token), ".", 2)
	if len(parts) != 2 {
		return "", ErrBadToken
	}

	raw, err := decodeURLB64(parts[0])
	if err != nil {
		return "", ErrBadToken
	}
	if !hmac.Equal([]byte(s.sig(raw)), []byte(strings.TrimRight(parts[1], "="))) {
		return "", ErrBadSig
	}

	// the expiry never contains "|", the subject may
	i := strings.LastIndex(string(raw), "|")
	if i < 0 {
		return "", ErrBadPayload
	}
	subject := strings.TrimSpace(string(raw[:i]))
	ts, err := strconv.ParseInt(string(raw[i+1:]), 10, 64)
	if err != nil || subject == "" {
		return "", ErrBadPayload
	}
	if !s.now().Before(time.Unix(ts, 0)) {
		return "", ErrExpired
	}
	return subject, nil
}

func (s Signer) sig(msg []byte) string {
	mac := hmac.New(sha256.New, s.Secret)
	mac.Write(msg)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// decodeURLB64 tries raw (no padding) then padded
func decodeURLB64(v string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(v); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(v)
}
