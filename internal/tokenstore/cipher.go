package tokenstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/text/unicode/norm"

	"grantor/pkg/oauth"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32

	// SaltSize is the scrypt salt length for passphrase-derived keys.
	SaltSize = 16

	// scrypt cost parameters. Interactive-use profile.
	scryptN = 32768
	scryptR = 8
	scryptP = 1

	// hkdfInfo separates the store key from other uses of the same
	// passphrase material.
	hkdfInfo = "grantor/tokenstore/v1"
)

// Cipher seals and opens token store entries. Implementations are
// authenticated: Decrypt fails if the ciphertext or the additional data
// were altered.
type Cipher interface {
	Encrypt(plaintext, aad []byte) ([]byte, error)
	Decrypt(ciphertext, aad []byte) ([]byte, error)
}

// gcmCipher is AES-256-GCM with a random nonce prepended to the
// ciphertext.
type gcmCipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a raw 32-byte key.
func NewCipher(key []byte) (Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d: %w", KeySize, len(key), oauth.ErrInvalidArgument)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}
	return &gcmCipher{aead: aead}, nil
}

func (c *gcmCipher) Encrypt(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, aad), nil
}

func (c *gcmCipher) Decrypt(ciphertext, aad []byte) ([]byte, error) {
	if len(ciphertext) < c.aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:c.aead.NonceSize()], ciphertext[c.aead.NonceSize():]

	plaintext, err := c.aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, &oauth.IntegrityError{Err: err}
	}
	return plaintext, nil
}

// DeriveKey derives a 32-byte key from a passphrase and salt. The
// passphrase is NFKC-normalized so that visually identical inputs typed
// on different platforms derive the same key, then stretched with
// scrypt, then expanded through HKDF-SHA256 bound to the store's info
// string.
func DeriveKey(passphrase string, salt []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("empty passphrase: %w", oauth.ErrInvalidArgument)
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d: %w", SaltSize, len(salt), oauth.ErrInvalidArgument)
	}

	normalized := norm.NFKC.String(passphrase)
	stretched, err := scrypt.Key([]byte(normalized), salt, scryptN, scryptR, scryptP, KeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to stretch passphrase: %w", err)
	}

	key := make([]byte, KeySize)
	reader := hkdf.New(sha256.New, stretched, salt, []byte(hkdfInfo))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to expand key: %w", err)
	}
	return key, nil
}

// NewSalt generates a fresh scrypt salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}
