package security

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// IdentityStore persists the device identity so it stays stable across
// restarts. A persisted value is never regenerated: regenerating would
// silently unbind every license already issued to this machine, so
// filesystem failures propagate to the caller instead.
type IdentityStore struct {
	path   string
	logger *slog.Logger
}

// NewIdentityStore creates an identity store backed by the given file.
func NewIdentityStore(path string, logger *slog.Logger) *IdentityStore {
	return &IdentityStore{
		path:   path,
		logger: logger.With(slog.String("component", "identity_store")),
	}
}

// GetOrCreate returns the persisted device ID, deriving and persisting a new
// one only when no identity file exists yet.
func (s *IdentityStore) GetOrCreate() (string, error) {
	data, err := os.ReadFile(s.path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
		// An empty identity file is treated as absent; fall through and
		// derive a fresh identity over it.
		s.logger.Warn("identity file is empty, regenerating",
			slog.String("path", s.path),
		)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read device identity file %s: %w", s.path, err)
	}

	fp, err := CollectFingerprint()
	if err != nil {
		return "", fmt.Errorf("failed to collect device fingerprint: %w", err)
	}
	id := fp.Digest()

	if err := WriteFileAtomic(s.path, []byte(id+"\n"), 0600); err != nil {
		return "", fmt.Errorf("failed to persist device identity: %w", err)
	}

	s.logger.Info("device identity created",
		slog.String("path", s.path),
		slog.String("device_id_prefix", id[:8]),
	)
	return id, nil
}

// Reset removes the persisted identity. Only an explicit license reset may
// call this; every license bound to the old identity stops verifying.
func (s *IdentityStore) Reset() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove device identity file: %w", err)
	}
	return nil
}
