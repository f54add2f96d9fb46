package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// appDirName is the per-platform application-data subdirectory.
const appDirName = "licensegate"

// Paths contains the client-side file locations.
// This is the single source of truth for ALL local files the client touches.
type Paths struct {
	DataDir      string
	DeviceIDFile string
	TokenFile    string
}

// GetPaths resolves the client file locations under the per-platform
// application-data directory (APPDATA on Windows, ~/Library/Application
// Support on macOS, XDG config dir on Linux), creating the directory when
// missing.
func GetPaths() (*Paths, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user config dir: %w", err)
	}

	dataDir := filepath.Join(base, appDirName)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", dataDir, err)
	}

	return &Paths{
		DataDir:      dataDir,
		DeviceIDFile: filepath.Join(dataDir, "device.id"),
		TokenFile:    filepath.Join(dataDir, "license.json"),
	}, nil
}

// PathsIn returns Paths rooted at an explicit directory. Used by tests and
// by deployments that cannot rely on a user profile.
func PathsIn(dir string) *Paths {
	return &Paths{
		DataDir:      dir,
		DeviceIDFile: filepath.Join(dir, "device.id"),
		TokenFile:    filepath.Join(dir, "license.json"),
	}
}

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
