// Package vault encrypts message and comment bodies at rest.
package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length in bytes of a decoded key.
const KeySize = chacha20poly1305.KeySize

const formatV1 byte = 0x01

var (
	// ErrDecryption is returned when a ciphertext cannot be authenticated or decoded.
	ErrDecryption = errors.New("decryption failed")
	// ErrInvalidKey is returned when a key is not exactly KeySize bytes.
	ErrInvalidKey = errors.New("invalid encryption key")
)

// Cipher performs authenticated symmetric encryption with a single key.
// It holds no mutable state and is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// New builds a Cipher from a raw 32-byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &Cipher{aead: aead}, nil
}

// NewFromString parses an encoded key and builds a Cipher from it.
func NewFromString(encoded string) (*Cipher, error) {
	key, err := ParseKey(encoded)
	if err != nil {
		return nil, err
	}
	return New(key)
}

// ParseKey decodes a base64 key. URL-safe and standard alphabets are accepted,
// with or without padding.
func ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	encodings := []*base64.Encoding{
		base64.URLEncoding, base64.RawURLEncoding,
		base64.StdEncoding, base64.RawStdEncoding,
	}
	for _, enc := range encodings {
		key, err := enc.DecodeString(encoded)
		if err == nil {
			if len(key) != KeySize {
				return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
			}
			return key, nil
		}
	}
	return nil, fmt.Errorf("%w: not valid base64", ErrInvalidKey)
}

// GenerateKey returns a fresh random key in URL-safe base64.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to read random key: %w", err)
	}
	return base64.URLEncoding.EncodeToString(key), nil
}

// Encrypt seals plaintext under a random nonce.
// Output layout: version byte, nonce, then the sealed box.
func (c *Cipher) Encrypt(plaintext string) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	out := make([]byte, 1+nonceSize, 1+nonceSize+len(plaintext)+c.aead.Overhead())
	out[0] = formatV1
	if _, err := rand.Read(out[1 : 1+nonceSize]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.aead.Seal(out, out[1:1+nonceSize], []byte(plaintext), nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Any failure wraps ErrDecryption.
func (c *Cipher) Decrypt(ciphertext []byte) (string, error) {
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < 1+nonceSize+c.aead.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}
	if ciphertext[0] != formatV1 {
		return "", fmt.Errorf("%w: unknown format version %d", ErrDecryption, ciphertext[0])
	}
	nonce := ciphertext[1 : 1+nonceSize]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext[1+nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return string(plaintext), nil
}
