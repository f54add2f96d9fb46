package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/user"
	"runtime"
	"strings"
)

// fingerprintSalt is mixed into the device hash so the raw hardware signals
// cannot be recovered from a leaked device ID.
const fingerprintSalt = "licensegate-device-fingerprint-v1"

// macSentinel is used when no usable network interface exists (e.g. inside
// minimal containers). The identity is still stable because it is persisted
// on first run.
const macSentinel = "no-mac"

// DeviceFingerprint represents the raw signals a device identity is derived
// from. The signals themselves never leave the machine; only the digest does.
type DeviceFingerprint struct {
	Hostname     string
	Username     string
	Platform     string
	Architecture string
	MACAddress   string
}

// CollectFingerprint gathers the hardware/OS signals for this machine.
// It makes no network calls; interface enumeration is local.
func CollectFingerprint() (*DeviceFingerprint, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to get hostname: %w", err)
	}
	hostname = strings.ToLower(strings.TrimSpace(hostname))

	mac, err := primaryMACAddress()
	if err != nil {
		slog.Warn("no usable MAC address, using sentinel",
			slog.String("error", err.Error()),
		)
		mac = macSentinel
	}

	return &DeviceFingerprint{
		Hostname:     hostname,
		Username:     osUsername(),
		Platform:     runtime.GOOS,
		Architecture: runtime.GOARCH,
		MACAddress:   mac,
	}, nil
}

// Digest returns the device ID: the hex SHA-256 of the joined signals plus
// the fixed client-side salt.
func (f *DeviceFingerprint) Digest() string {
	material := strings.Join([]string{
		f.Hostname,
		f.Username,
		f.Platform,
		f.Architecture,
		f.MACAddress,
		fingerprintSalt,
	}, "|")
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

// primaryMACAddress returns the hardware address of the first up,
// non-loopback interface with a non-zero MAC, falling back to any interface
// carrying a MAC at all.
func primaryMACAddress() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to get network interfaces: %w", err)
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return mac, nil
		}
	}

	// Fallback: any interface with a MAC address
	for _, iface := range interfaces {
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return mac, nil
		}
	}

	return "", fmt.Errorf("no valid MAC address found")
}

func osUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return strings.ToLower(u.Username)
	}
	for _, env := range []string{"USER", "USERNAME"} {
		if v := os.Getenv(env); v != "" {
			return strings.ToLower(v)
		}
	}
	return "unknown"
}
