// Package secrets encrypts small values at rest with AES-256-CBC and an
// HMAC-SHA256 tag over IV and ciphertext (encrypt-then-MAC).
package secrets

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidMAC = errors.New("secrets: message authentication failed")
	ErrMalformed  = errors.New("secrets: malformed ciphertext")
	ErrEmptyKey   = errors.New("secrets: empty master key")
)

const (
	keySize  = 32
	macSize  = sha256.Size
	hkdfInfo = "airwave secrets v1"
)

// Box seals and opens values with keys derived from one master secret
type Box struct {
	encKey []byte
	macKey []byte
}

// New derives independent encryption and MAC keys from master
func New(master string) (*Box, error) {
	if master == "" {
		return nil, ErrEmptyKey
	}
	kdf := hkdf.New(sha256.New, []byte(master), nil, []byte(hkdfInfo))
	keys := make([]byte, 2*keySize)
	if _, err := io.ReadFull(kdf, keys); err != nil {
		return nil, fmt.Errorf("derive keys: %w", err)
	}
	return &Box{encKey: keys[:keySize], macKey: keys[keySize:]}, nil
}

// Seal encrypts plaintext and returns base64(iv | ciphertext | tag)
func (b *Box) Seal(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(b.encKey)
	if err != nil {
		return "", err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	padded := pad(plaintext, aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded), aes.BlockSize+len(padded)+macSize)
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)

	out = append(out, b.tag(out)...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// SealString is Seal for strings
func (b *Box) SealString(s string) (string, error) {
	return b.Seal([]byte(s))
}

// Open verifies and decrypts a value produced by Seal
func (b *Box) Open(sealed string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, ErrMalformed
	}
	if len(raw) < aes.BlockSize+aes.BlockSize+macSize || (len(raw)-macSize)%aes.BlockSize != 0 {
		return nil, ErrMalformed
	}

	body, tag := raw[:len(raw)-macSize], raw[len(raw)-macSize:]
	if !hmac.Equal(tag, b.tag(body)) {
		return nil, ErrInvalidMAC
	}

	block, err := aes.NewCipher(b.encKey)
	if err != nil {
		return nil, err
	}
	iv, ct := body[:aes.BlockSize], body[aes.BlockSize:]
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)
	return unpad(plain, aes.BlockSize)
}

// OpenString is Open for strings
func (b *Box) OpenString(sealed string) (string, error) {
	p, err := b.Open(sealed)
	if err != nil {
		return "", err
	}
	return string(p), nil
}

func (b *Box) tag(data []byte) []byte {
	mac := hmac.New(sha256.New, b.macKey)
	mac.Write(data)
	return mac.Sum(nil)
}

// pad applies PKCS#7 padding
func pad(p []byte, size int) []byte {
	n := size - len(p)%size
	return append(bytes.Clone(p), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(p []byte, size int) ([]byte, error) {
	if len(p) == 0 || len(p)%size != 0 {
		return nil, ErrMalformed
	}
	n := int(p[len(p)-1])
	if n == 0 || n > size || n > len(p) {
		return nil, ErrMalformed
	}
	for _, c := range p[len(p)-n:] {
		if int(c) != n {
			return nil, ErrMalformed
		}
	}
	return p[:len(p)-n], nil
}
