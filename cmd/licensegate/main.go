// Command licensegate is the client-side companion to licensegate-server.
// It manages the local device identity and signed license token:
//
//	licensegate activate <license-key>   bind this device and fetch a token
//	licensegate status                   offline verification of the stored token
//	licensegate checkin                  renew the token before it expires
//	licensegate guard                    keep verifying until the license fails
//	licensegate reset                    remove the stored token and identity
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"licensegate/internal/config"
	"licensegate/internal/infrastructure"
	"licensegate/internal/license"
	"licensegate/internal/security"
	"licensegate/pkg/contracts/domain"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "licensegate: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: licensegate <activate|status|checkin|guard|reset> [args]")
}

// env holds the client-side pieces shared by every subcommand.
type env struct {
	cfg      *config.Config
	paths    *config.Paths
	logger   *slog.Logger
	deviceID string
	store    *license.TokenStore
}

func setup() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	paths, err := config.GetPaths()
	if err != nil {
		return nil, err
	}

	identity := security.NewIdentityStore(paths.DeviceIDFile, logger)
	deviceID, err := identity.GetOrCreate()
	if err != nil {
		return nil, fmt.Errorf("failed to establish device identity: %w", err)
	}

	store := license.NewTokenStore(paths.TokenFile, logger)
	if cfg.Client.EncryptToken {
		// The passphrase is the device identity itself. It keeps the token
		// opaque to casual copying; it is not a secret from this machine.
		store = store.WithEncryption([]byte(deviceID))
	}

	return &env{cfg: cfg, paths: paths, logger: logger, deviceID: deviceID, store: store}, nil
}

func run(cmd string, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer infrastructure.CloseLogFile()

	switch cmd {
	case "activate":
		if len(args) != 1 {
			return fmt.Errorf("usage: licensegate activate <license-key>")
		}
		return e.activate(args[0])
	case "status":
		return e.status()
	case "checkin":
		return e.checkin()
	case "guard":
		return e.guard()
	case "reset":
		return e.reset()
	case "version":
		fmt.Println(version)
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (e *env) client() *license.Client {
	return license.NewClient(license.ClientOptions{
		ServerURL:  e.cfg.Client.ServerURL,
		AppCode:    e.cfg.Client.AppCode,
		AppVersion: e.cfg.Client.AppVersion,
		DeviceID:   e.deviceID,
		Signer:     security.NewSigner(e.cfg.Client.SigningSecret),
		Store:      e.store,
		Timeout:    e.cfg.Client.Timeout,
	}, e.logger)
}

func (e *env) verifier() (*license.Verifier, error) {
	if e.cfg.Client.PublicKey == "" {
		return nil, fmt.Errorf("client public key is not configured")
	}
	keyBytes, err := base64.StdEncoding.DecodeString(e.cfg.Client.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key has invalid length %d", len(keyBytes))
	}
	return license.NewVerifier(e.store, ed25519.PublicKey(keyBytes), e.cfg.Client.AppCode, e.deviceID, e.logger), nil
}

func (e *env) activate(key string) error {
	ctx, cancel := signalContext()
	defer cancel()

	resp, err := e.client().Activate(ctx, key)
	if err != nil {
		return describeActivationFailure(err)
	}

	fmt.Printf("Activated %s for %s on this device.\n",
		license.MaskLicenseKey(key), e.cfg.Client.AppCode)
	fmt.Printf("Token valid until %s.\n", resp.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}

func (e *env) status() error {
	v, err := e.verifier()
	if err != nil {
		return err
	}

	result := v.Verify()
	if !result.Valid {
		fmt.Printf("License invalid: %s\n", result.Reason)
		os.Exit(1)
	}

	fmt.Println("License valid.")
	fmt.Printf("  app:     %s\n", result.Claims.AppCode)
	fmt.Printf("  status:  %s\n", result.Claims.LicenseStatus)
	fmt.Printf("  expires: %s\n", result.Claims.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}

func (e *env) checkin() error {
	ctx, cancel := signalContext()
	defer cancel()

	resp, err := e.client().CheckIn(ctx)
	if err != nil {
		return describeActivationFailure(err)
	}

	fmt.Printf("Check-in succeeded. Token renewed until %s.\n",
		resp.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}

// guard blocks while the license stays valid, re-verifying on the configured
// interval and whenever the token file changes on disk. It exits with an
// error as soon as verification fails, which makes it usable as a sidecar
// gate for another process.
func (e *env) guard() error {
	v, err := e.verifier()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	failed := make(chan license.Verification, 1)
	scheduler := license.NewRecheckScheduler(v, e.cfg.Client.RecheckInterval, func(result license.Verification) {
		select {
		case failed <- result:
		default:
		}
	}, e.logger)

	go func() {
		err := license.WatchTokenFile(ctx, e.store, func() {
			if result := v.Verify(); result.Valid {
				e.logger.Info("token file changed, still valid",
					slog.Time("expires_at", result.Claims.ExpiresAt.Time))
			}
		}, e.logger)
		if err != nil && ctx.Err() == nil {
			e.logger.Warn("token file watcher stopped", slog.String("error", err.Error()))
		}
	}()

	go scheduler.Run(ctx)

	select {
	case <-ctx.Done():
		return nil
	case result := <-failed:
		return fmt.Errorf("license verification failed: %s", result.Reason)
	}
}

func (e *env) reset() error {
	if err := e.store.Clear(); err != nil {
		return fmt.Errorf("failed to remove stored token: %w", err)
	}
	identity := security.NewIdentityStore(e.paths.DeviceIDFile, e.logger)
	if err := identity.Reset(); err != nil {
		return fmt.Errorf("failed to remove device identity: %w", err)
	}
	fmt.Println("Stored token and device identity removed.")
	return nil
}

// describeActivationFailure turns the client's typed errors into operator
// guidance instead of raw wire reasons.
func describeActivationFailure(err error) error {
	var actErr *license.ActivationError
	if !errors.As(err, &actErr) {
		var netErr *license.NetworkError
		if errors.As(err, &netErr) {
			return fmt.Errorf("could not reach the license server: %w", netErr.Err)
		}
		return err
	}

	switch actErr.Reason {
	case domain.RejectInvalidKey:
		return fmt.Errorf("license key not recognized for this application")
	case domain.RejectAlreadyActivated:
		return fmt.Errorf("this license is already activated on another device")
	case domain.RejectMaxDevicesReached:
		return fmt.Errorf("this license has no free device slots")
	case domain.RejectRevoked, domain.RejectSuspended, domain.RejectExpired:
		return fmt.Errorf("license is %s; contact support", actErr.Reason)
	case domain.RejectRateLimited:
		if actErr.RetryAfter > 0 {
			return fmt.Errorf("too many attempts; retry in %d seconds", actErr.RetryAfter)
		}
		return fmt.Errorf("too many attempts; retry later")
	default:
		if actErr.Message != "" {
			return fmt.Errorf("%s", actErr.Message)
		}
		return fmt.Errorf("activation rejected: %s", actErr.Reason)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
