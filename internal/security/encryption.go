package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters, OWASP recommended minimums for interactive use.
const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltSize     = 32
)

// envelopeVersion identifies the at-rest encryption format.
const envelopeVersion = 1

// ErrNotEncrypted is returned by DecryptPayload when the input is not an
// encryption envelope. Callers use it to fall back to plaintext reads.
var ErrNotEncrypted = errors.New("payload is not an encryption envelope")

// encryptedEnvelope is the at-rest format for encrypted local files.
type encryptedEnvelope struct {
	Version    int    `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// EncryptPayload encrypts plaintext with AES-256-GCM under a key derived
// from the passphrase via scrypt, returning a JSON envelope.
func EncryptPayload(plaintext, passphrase []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	env := encryptedEnvelope{
		Version:    envelopeVersion,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, nil),
	}
	return json.Marshal(env)
}

// DecryptPayload reverses EncryptPayload. Inputs that do not parse as an
// envelope yield ErrNotEncrypted; a parsed envelope that fails to decrypt is
// a hard error (tampering or wrong device material).
func DecryptPayload(data, passphrase []byte) ([]byte, error) {
	var env encryptedEnvelope
	if err := json.Unmarshal(data, &env); err != nil || env.Version == 0 || len(env.Salt) == 0 {
		return nil, ErrNotEncrypted
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", env.Version)
	}

	gcm, err := newGCM(passphrase, env.Salt)
	if err != nil {
		return nil, err
	}
	if len(env.Nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("invalid nonce size %d", len(env.Nonce))
	}

	plaintext, err := gcm.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt payload: %w", err)
	}
	return plaintext, nil
}

func newGCM(passphrase, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
