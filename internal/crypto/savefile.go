// Package crypto implements password-protected session save files:
// PBKDF2-HMAC-SHA256 key derivation and AES-256-GCM authenticated
// encryption over an opaque JSON payload.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/jchenlabs/marketdrive/internal/domain"
)

const (
	// kdfIterations follows the OWASP-recommended minimum for
	// PBKDF2-HMAC-SHA256. Stored in the envelope so it can be raised later
	// without breaking old saves.
	kdfIterations = 480_000

	saltLen   = 16
	aesKeyLen = 32

	// envelopeVersion is the save-file schema version.
	envelopeVersion = 1
)

// envelope is the on-disk format of an encrypted save file.
type envelope struct {
	Version    int    `json:"version"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// EncryptSave encrypts an arbitrary payload with the given password and
// returns the JSON envelope suitable for writing to disk or download.
func EncryptSave(payload []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	if len(payload) == 0 {
		return nil, errors.New("crypto: payload must not be empty")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}

	gcm, err := newGCM(password, salt, kdfIterations)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, payload, nil)

	out := envelope{
		Version:    envelopeVersion,
		Iterations: kdfIterations,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}
	return json.MarshalIndent(out, "", "  ")
}

// DecryptSave opens an envelope produced by EncryptSave. A wrong password or
// a tampered envelope yields domain.ErrBadSaveFile.
func DecryptSave(blob []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}

	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("crypto: parsing save envelope: %w", domain.ErrBadSaveFile)
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("crypto: unsupported save version %d", env.Version)
	}
	iterations := env.Iterations
	if iterations <= 0 {
		iterations = kdfIterations
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding salt: %w", domain.ErrBadSaveFile)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding nonce: %w", domain.ErrBadSaveFile)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding ciphertext: %w", domain.ErrBadSaveFile)
	}

	gcm, err := newGCM(password, salt, iterations)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("crypto: bad nonce length: %w", domain.ErrBadSaveFile)
	}

	payload, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed: %w", domain.ErrBadSaveFile)
	}
	return payload, nil
}

func newGCM(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}
