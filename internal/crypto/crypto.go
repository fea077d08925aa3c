// Package crypto implements the session cipher protecting frame payloads.
//
// Key negotiation is out of scope: both ends are configured with the same 32-byte key.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the size of a session key.
const KeySize = chacha20poly1305.KeySize

var (
	ErrInvalidKey = errors.New("invalid session key")
	ErrEncrypt    = errors.New("encryption failed")
	ErrDecrypt    = errors.New("decryption failed")
)

// CryptoError is returned by every Cipher operation failure.
type CryptoError struct {
	Op  error
	Err error
}

func (e *CryptoError) Error() string {
	if e.Err == nil {
		return e.Op.Error()
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

// Is matches the operation sentinel, so errors.Is(err, ErrDecrypt) works.
func (e *CryptoError) Is(target error) bool {
	return target == e.Op
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// Cipher encrypts and decrypts frame payloads.
// The associated data is authenticated but not encrypted; Decrypt fails unless
// it is given the same associated data as Encrypt.
type Cipher interface {
	Encrypt(plaintext, ad []byte) ([]byte, error)
	Decrypt(ciphertext, ad []byte) ([]byte, error)
}

// Session is an XChaCha20-Poly1305 cipher bound to one session key.
//
// Ciphertexts are laid out as nonce || sealed payload. It is safe for concurrent use.
type Session struct {
	aead cipher.AEAD
}

func NewSession(key []byte) (*Session, error) {
	if len(key) != KeySize {
		return nil, &CryptoError{Op: ErrInvalidKey, Err: fmt.Errorf("got %d bytes, want %d", len(key), KeySize)}
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, &CryptoError{Op: ErrInvalidKey, Err: err}
	}
	return &Session{aead: aead}, nil
}

func (s *Session) Encrypt(plaintext, ad []byte) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	out := make([]byte, nonceSize, nonceSize+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, &CryptoError{Op: ErrEncrypt, Err: err}
	}
	return s.aead.Seal(out, out[:nonceSize], plaintext, ad), nil
}

func (s *Session) Decrypt(ciphertext, ad []byte) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	if len(ciphertext) < nonceSize+s.aead.Overhead() {
		return nil, &CryptoError{Op: ErrDecrypt, Err: errors.New("truncated ciphertext")}
	}
	plaintext, err := s.aead.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], ad)
	if err != nil {
		return nil, &CryptoError{Op: ErrDecrypt, Err: err}
	}
	return plaintext, nil
}

// GenerateKey returns a random session key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// ParseKey decodes a session key from its hex or base64 representation.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, &CryptoError{Op: ErrInvalidKey, Err: errors.New("empty key")}
	}

	if key, err := hex.DecodeString(s); err == nil && len(key) == KeySize {
		return key, nil
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if key, err := enc.DecodeString(s); err == nil && len(key) == KeySize {
			return key, nil
		}
	}
	return nil, &CryptoError{Op: ErrInvalidKey, Err: fmt.Errorf("expected %d bytes encoded in hex or base64", KeySize)}
}
