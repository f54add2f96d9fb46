package license

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"licensegate/internal/security"
	"licensegate/pkg/contracts/domain"
)

// TokenStore persists the last activation response to the local token file.
// Writes are atomic (temp file, fsync, rename) so a crash mid-write cannot
// leave a document that reads back half-parsed.
type TokenStore struct {
	path       string
	passphrase []byte
	logger     *slog.Logger
}

// NewTokenStore creates a token store backed by the given file.
func NewTokenStore(path string, logger *slog.Logger) *TokenStore {
	return &TokenStore{
		path:   path,
		logger: logger.With(slog.String("component", "token_store")),
	}
}

// WithEncryption enables at-rest encryption of the token file. The
// passphrase should be derived from device-local material so a copied file
// is useless on another machine.
func (s *TokenStore) WithEncryption(passphrase []byte) *TokenStore {
	s.passphrase = passphrase
	return s
}

// Save overwrites the stored token unconditionally. Callers must not call
// this speculatively; the previous token is gone once Save returns.
func (s *TokenStore) Save(resp *domain.ActivationResponse) error {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal activation response: %w", err)
	}

	if len(s.passphrase) > 0 {
		data, err = security.EncryptPayload(data, s.passphrase)
		if err != nil {
			return fmt.Errorf("failed to encrypt token: %w", err)
		}
	}

	if err := security.WriteFileAtomic(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	s.logger.Info("license token saved",
		slog.String("path", s.path),
		slog.Int("size_bytes", len(data)),
		slog.Bool("encrypted", len(s.passphrase) > 0),
		slog.Time("token_expires_at", resp.ExpiresAt),
	)
	return nil
}

// Load reads the stored activation response. A missing file yields
// ErrNoToken; an unreadable or unparsable file yields ErrCorruptToken.
func (s *TokenStore) Load() (*domain.ActivationResponse, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("%w: %v", ErrCorruptToken, err)
	}

	if len(s.passphrase) > 0 {
		plain, err := security.DecryptPayload(data, s.passphrase)
		if err != nil && !errors.Is(err, security.ErrNotEncrypted) {
			return nil, fmt.Errorf("%w: %v", ErrCorruptToken, err)
		}
		if err == nil {
			data = plain
		}
		// ErrNotEncrypted falls through: the file predates encryption
		// being enabled and is read as plaintext.
	}

	var resp domain.ActivationResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptToken, err)
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("%w: empty token field", ErrCorruptToken)
	}
	return &resp, nil
}

// Clear destroys the stored token. Used only by explicit license reset.
func (s *TokenStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	s.logger.Info("license token cleared", slog.String("path", s.path))
	return nil
}

// Path returns the token file location, for watchers.
func (s *TokenStore) Path() string {
	return s.path
}
