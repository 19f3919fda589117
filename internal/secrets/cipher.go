// Package secrets implements the symmetric encryption used to protect stored
// connection secrets at rest.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/utils"
)

const (
	// fallbackSecret is used when no secret is configured. Operators should
	// set REPLICATOR_SECRET in any real deployment.
	fallbackSecret = "replicator-local-dev-secret"

	// keySalt is fixed so the derived key is stable across restarts; token
	// uniqueness comes from the per-call random nonce.
	keySalt = "replicator.credentials.v1"

	keyIterations = 120000
	keyLength     = 32
)

// Cipher encrypts and decrypts credential strings with AES-256-GCM. The key
// is derived once from the configured secret with PBKDF2-SHA256.
type Cipher struct {
	aead cipher.AEAD
}

// New derives the process-wide key and returns a ready cipher. An empty
// secret falls back to a fixed development value.
func New(secret string) (*Cipher, error) {
	if secret == "" {
		secret = fallbackSecret
	}

	key := pbkdf2.Key([]byte(secret), []byte(keySalt), keyIterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce and returns a portable
// base64 token of nonce‖ciphertext. Two encryptions of the same plaintext
// never produce identical tokens.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt splits a token back into nonce and ciphertext and opens it. Any
// malformed or tampered token yields utils.ErrCrypto; garbage is never
// returned as if it were valid plaintext.
func (c *Cipher) Decrypt(token string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: token is not valid base64", utils.ErrCrypto)
	}
	if len(data) < c.aead.NonceSize() {
		return "", fmt.Errorf("%w: token too short", utils.ErrCrypto)
	}

	nonce, ciphertext := data[:c.aead.NonceSize()], data[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: token integrity check failed", utils.ErrCrypto)
	}

	return string(plaintext), nil
}
