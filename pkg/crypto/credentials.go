// Package crypto seals outbound mail tokens at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/ekaya-inc/ekaya-crm/pkg/models"
)

var (
	// ErrInvalidKey is returned when the encryption key is empty.
	ErrInvalidKey = errors.New("invalid encryption key: must not be empty")
	// ErrDecryptionFailed is returned for malformed ciphertext, a wrong key, or a token
	// sealed for a different owner.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or wrong key")
)

// TokenSealer encrypts tokens with AES-256-GCM. The owner id is bound as
// additional data, so a sealed token only opens for the user it was sealed for.
type TokenSealer struct {
	gcm cipher.AEAD
}

// NewTokenSealer creates a sealer from a key string. A base64 value decoding to
// exactly 32 bytes is used as the key; anything else is hashed with SHA-256.
func NewTokenSealer(keyInput string) (*TokenSealer, error) {
	if keyInput == "" {
		return nil, ErrInvalidKey
	}

	var key []byte
	if decoded, err := base64.StdEncoding.DecodeString(keyInput); err == nil && len(decoded) == 32 {
		key = decoded
	} else {
		hash := sha256.Sum256([]byte(keyInput))
		key = hash[:]
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &TokenSealer{gcm: gcm}, nil
}

// Seal returns base64(nonce || ciphertext || tag). Empty tokens stay empty.
func (s *TokenSealer) Seal(owner, token string) (string, error) {
	if token == "" {
		return "", nil
	}

	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.gcm.Seal(nonce, nonce, []byte(token), []byte(owner))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal for the same owner.
func (s *TokenSealer) Open(owner, sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", ErrDecryptionFailed)
	}
	nonceSize := s.gcm.NonceSize()
	if len(data) < nonceSize+s.gcm.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	plaintext, err := s.gcm.Open(nil, data[:nonceSize], data[nonceSize:], []byte(owner))
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}
	return string(plaintext), nil
}

// SealCredential returns a copy of cred with both tokens sealed for cred.UserID.
func (s *TokenSealer) SealCredential(cred models.MailCredential) (models.MailCredential, error) {
	owner := cred.UserID.String()
	var err error
	if cred.AccessToken, err = s.Seal(owner, cred.AccessToken); err != nil {
		return models.MailCredential{}, fmt.Errorf("seal access token: %w", err)
	}
	if cred.RefreshToken, err = s.Seal(owner, cred.RefreshToken); err != nil {
		return models.MailCredential{}, fmt.Errorf("seal refresh token: %w", err)
	}
	return cred, nil
}

// OpenCredential returns a copy of cred with both tokens in plaintext.
func (s *TokenSealer) OpenCredential(cred models.MailCredential) (models.MailCredential, error) {
	owner := cred.UserID.String()
	var err error
	if cred.AccessToken, err = s.Open(owner, cred.AccessToken); err != nil {
		return models.MailCredential{}, fmt.Errorf("open access token: %w", err)
	}
	if cred.RefreshToken, err = s.Open(owner, cred.RefreshToken); err != nil {
		return models.MailCredential{}, fmt.Errorf("open refresh token: %w", err)
	}
	return cred, nil
}
