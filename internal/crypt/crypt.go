// Package crypt derives a key from a password with Argon2id and seals payloads
// with AES-256-GCM. Every decryption failure is reported as ErrAuthFailure.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	SaltSize  = 16
	NonceSize = 12
	TagSize   = 16
	KeySize   = 32
)

var ErrAuthFailure = errors.New("authentication failed")

// Params are the Argon2id cost parameters. They travel with the envelope so an
// image sealed under one configuration can be opened under another.
type Params struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultParams follows the RFC 9106 second recommended option scaled to 64 MiB.
var DefaultParams = Params{Time: 3, MemoryKiB: 64 * 1024, Threads: 4}

// MaxParams caps every cost parameter. Params arrive inside untrusted images, so
// anything above these is refused before argon2 allocates memory.
var MaxParams = Params{Time: 10, MemoryKiB: 1 << 20, Threads: 16}

// Validate rejects parameters argon2 cannot run with or that exceed MaxParams.
func (p Params) Validate() error {
	if p.Time == 0 || p.Threads == 0 || p.MemoryKiB < 8*uint32(p.Threads) {
		return fmt.Errorf("invalid kdf params t=%d m=%d p=%d", p.Time, p.MemoryKiB, p.Threads)
	}
	if p.Time > MaxParams.Time || p.MemoryKiB > MaxParams.MemoryKiB || p.Threads > MaxParams.Threads {
		return fmt.Errorf("kdf params t=%d m=%d p=%d exceed limit t=%d m=%d p=%d",
			p.Time, p.MemoryKiB, p.Threads, MaxParams.Time, MaxParams.MemoryKiB, MaxParams.Threads)
	}
	return nil
}

// Sealed is the output of Seal. Salt and Nonce are not secret.
type Sealed struct {
	Params     Params
	Salt       []byte
	Nonce      []byte
	Ciphertext []byte
	Tag        []byte
}

// Sealer encrypts payloads. The zero value uses DefaultParams and crypto/rand.
type Sealer struct {
	Params Params
	// Rand supplies salt and nonce. Tests pin it to get reproducible output.
	Rand io.Reader
}

// Seal encrypts plaintext under a key derived from password and a fresh salt.
// ad is authenticated but not encrypted.
func (s Sealer) Seal(plaintext, password, ad []byte) (*Sealed, error) {
	params := s.Params
	if params == (Params{}) {
		params = DefaultParams
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	rnd := s.Rand
	if rnd == nil {
		rnd = rand.Reader
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rnd, salt); err != nil {
		return nil, fmt.Errorf("salt generation failed: %w", err)
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rnd, nonce); err != nil {
		return nil, fmt.Errorf("nonce generation failed: %w", err)
	}

	gcm, err := newGCM(DeriveKey(password, salt, params))
	if err != nil {
		return nil, err
	}

	out := gcm.Seal(nil, nonce, plaintext, ad)
	split := len(out) - TagSize

	return &Sealed{
		Params:     params,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: out[:split:split],
		Tag:        out[split:],
	}, nil
}

// Open authenticates and decrypts s. Any malformed input, wrong password or
// tampered byte yields ErrAuthFailure and no plaintext.
func Open(s *Sealed, password, ad []byte) ([]byte, error) {
	if s == nil || len(s.Salt) != SaltSize || len(s.Nonce) != NonceSize || len(s.Tag) != TagSize {
		return nil, ErrAuthFailure
	}
	if err := s.Params.Validate(); err != nil {
		return nil, ErrAuthFailure
	}

	gcm, err := newGCM(DeriveKey(password, s.Salt, s.Params))
	if err != nil {
		return nil, ErrAuthFailure
	}

	buf := make([]byte, 0, len(s.Ciphertext)+TagSize)
	buf = append(buf, s.Ciphertext...)
	buf = append(buf, s.Tag...)

	plaintext, err := gcm.Open(nil, s.Nonce, buf, ad)
	if err != nil {
		return nil, ErrAuthFailure
	}
	return plaintext, nil
}

// DeriveKey runs Argon2id. It is deliberately expensive.
func DeriveKey(password, salt []byte, p Params) []byte {
	return argon2.IDKey(password, salt, p.Time, p.MemoryKiB, p.Threads, KeySize)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher creation failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("GCM creation failed: %w", err)
	}
	return gcm, nil
}
