// Package cipher seals message bodies and attachments with a process-wide key.
//
// A Cipher is built once at startup and injected into the services that need
// it. Ciphertext layout is nonce || sealed, stored as raw bytes.
package cipher

import (
	stdcipher "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// MinKeyLength is the minimum length of the master secret.
const MinKeyLength = 32

const hkdfInfo = "agora/message-encryption/v1"

// emptySentinel stands in for an empty body so ciphertext always has content.
const emptySentinel = " "

var ErrDecrypt = errors.New("cipher: unable to decrypt")

// Cipher provides authenticated encryption for stored message content.
type Cipher struct {
	aead stdcipher.AEAD
}

// New derives an XChaCha20-Poly1305 key from secret.
func New(secret []byte) (*Cipher, error) {
	if len(secret) < MinKeyLength {
		return nil, fmt.Errorf("cipher: secret must be at least %d bytes (got %d)", MinKeyLength, len(secret))
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("cipher: derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: init aead: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts raw bytes.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+chacha20poly1305.Overhead)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cipher: nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts bytes produced by Seal.
func (c *Cipher) Open(ciphertext []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(ciphertext) < ns+chacha20poly1305.Overhead {
		return nil, ErrDecrypt
	}
	plaintext, err := c.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// EncryptText encrypts a message body. The empty string is stored as a
// single space; bodies made only of spaces get one extra space so that
// DecryptText can invert the mapping exactly.
func (c *Cipher) EncryptText(text string) ([]byte, error) {
	return c.Seal([]byte(encodeText(text)))
}

// DecryptText reverses EncryptText.
func (c *Cipher) DecryptText(ciphertext []byte) (string, error) {
	plaintext, err := c.Open(ciphertext)
	if err != nil {
		return "", err
	}
	return decodeText(string(plaintext)), nil
}

func encodeText(text string) string {
	if isSpaces(text) {
		return text + emptySentinel
	}
	return text
}

func decodeText(stored string) string {
	if stored != "" && isSpaces(stored) {
		return stored[:len(stored)-len(emptySentinel)]
	}
	return stored
}

// isSpaces reports whether s is empty or consists only of ASCII spaces.
func isSpaces(s string) bool {
	return strings.Trim(s, " ") == ""
}
