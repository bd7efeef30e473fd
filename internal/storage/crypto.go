package storage

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gtank/cryptopasta"
)

var ErrSignatureMismatch = errors.New("stored credential failed signature check")

// Sealer encrypts secrets with AES-GCM and signs the ciphertext with
// HMAC-SHA512/256. Sealed values are "<ciphertext>.<signature>" in raw URL
// base64.
type Sealer struct {
	encKey  *[32]byte
	signKey *[32]byte
}

// NewSealer takes two keys of at least 32 characters; only the first 32 bytes
// of each are used.
func NewSealer(encKey, signKey string) (*Sealer, error) {
	ek, err := toKey(encKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	sk, err := toKey(signKey)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	return &Sealer{encKey: ek, signKey: sk}, nil
}

func (s *Sealer) Seal(plaintext []byte) (string, error) {
	ct, err := cryptopasta.Encrypt(plaintext, s.encKey)
	if err != nil {
		return "", err
	}
	sig := cryptopasta.GenerateHMAC(ct, s.signKey)
	return base64.RawURLEncoding.EncodeToString(ct) + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

func (s *Sealer) Open(sealed string) ([]byte, error) {
	ctPart, sigPart, ok := strings.Cut(sealed, ".")
	if !ok {
		return nil, errors.New("sealed value is malformed")
	}
	ct, err := base64.RawURLEncoding.DecodeString(ctPart)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	if !cryptopasta.CheckHMAC(ct, sig, s.signKey) {
		return nil, ErrSignatureMismatch
	}
	return cryptopasta.Decrypt(ct, s.encKey)
}

// NewRandomKey returns a fresh key suitable for NewSealer.
func NewRandomKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func toKey(s string) (*[32]byte, error) {
	if len(s) < 32 {
		return nil, errors.New("key must be at least 32 characters")
	}
	k := &[32]byte{}
	copy(k[:], s)
	return k, nil
}
