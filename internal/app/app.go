package app

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"licensegate/internal/config"
	"licensegate/internal/infrastructure"
	custommw "licensegate/internal/middleware"
	"licensegate/internal/ratelimit"
	"licensegate/internal/security"
	"licensegate/internal/services"
	transport "licensegate/internal/transport/http"
)

// Version is set at build time.
var Version = "dev"

// Application owns the license server's wiring and lifecycle.
type Application struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *infrastructure.Metrics

	router   chi.Router
	server   *http.Server
	store    ratelimit.Store
	registry *prometheus.Registry
}

// NewApplication assembles the server. When issuer is nil a SigningIssuer
// over an empty in-memory key store is built from the configured private
// key; production deployments inject their own Issuer.
func NewApplication(issuer services.Issuer) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if cfg.Security.SigningSecret == "" {
		return nil, fmt.Errorf("security signing secret is not configured")
	}

	a := &Application{
		Config:   cfg,
		Logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.Metrics = infrastructure.NewMetrics(a.registry)

	if issuer == nil {
		issuer, err = a.buildSigningIssuer()
		if err != nil {
			return nil, err
		}
	}

	a.store = a.buildStore()
	limiter := ratelimit.NewLimiter(a.store, a.limitProfiles(), logger).
		WithFailOpenCallback(a.Metrics.RateLimitFailOpen.Inc)

	signer := security.NewSigner(cfg.Security.SigningSecret)
	signatureMW := custommw.SignatureVerify(signer, custommw.SignatureConfig{
		MaxAge:  cfg.Security.MaxTimestampAge,
		MaxSkew: cfg.Security.MaxClockSkew,
	}, logger, a.Metrics)

	licenseHandler := transport.NewLicenseHandler(issuer, limiter, signatureMW, a.Metrics, logger)
	a.setupRouter(licenseHandler)
	a.createServer()

	return a, nil
}

func (a *Application) buildSigningIssuer() (services.Issuer, error) {
	if a.Config.Issuer.PrivateKey == "" {
		return nil, fmt.Errorf("issuer private key is not configured")
	}
	keyBytes, err := base64.StdEncoding.DecodeString(a.Config.Issuer.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode issuer private key: %w", err)
	}
	var priv ed25519.PrivateKey
	switch len(keyBytes) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(keyBytes)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(keyBytes)
	default:
		return nil, fmt.Errorf("issuer private key has invalid length %d", len(keyBytes))
	}
	return services.NewSigningIssuer(services.NewMemoryKeyStore(), priv, a.Config.Issuer.TokenTTL, a.Logger), nil
}

// buildStore selects the rate-limit store: in-memory for a single instance,
// Redis when clustering requires shared counters.
func (a *Application) buildStore() ratelimit.Store {
	if addr := a.Config.Security.RateLimit.RedisAddr; addr != "" {
		a.Logger.Info("using redis rate-limit store", slog.String("addr", addr))
		client := redis.NewClient(&redis.Options{Addr: addr})
		return ratelimit.NewRedisStore(client, "rl")
	}
	return ratelimit.NewMemoryStore().
		WithSizeCallback(func(n int) { a.Metrics.RateLimitRecordCount.Set(float64(n)) })
}

func (a *Application) limitProfiles() map[ratelimit.EndpointClass]ratelimit.Profile {
	toProfile := func(p config.LimitProfile) ratelimit.Profile {
		return ratelimit.Profile{
			MaxAttempts:   p.MaxAttempts,
			Window:        p.Window,
			BlockDuration: p.BlockDuration,
		}
	}
	rl := a.Config.Security.RateLimit
	return map[ratelimit.EndpointClass]ratelimit.Profile{
		ratelimit.ClassActivate: toProfile(rl.Activate),
		ratelimit.ClassCheckIn:  toProfile(rl.CheckIn),
		ratelimit.ClassGlobal:   toProfile(rl.Global),
	}
}

func (a *Application) setupRouter(licenseHandler *transport.LicenseHandler) {
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(custommw.StructuredLogger(a.Logger))
	r.Use(custommw.Recoverer(a.Logger))
	if a.Config.Security.RateLimit.Enabled {
		r.Use(custommw.GlobalThrottle(a.Config.Security.RateLimit.RPS, a.Config.Security.RateLimit.Burst, a.Logger))
	}

	health := transport.NewHealthHandler(Version)
	r.Get("/healthz", health.Health)
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	r.Route("/api/license", func(r chi.Router) {
		r.Mount("/", licenseHandler.Routes())
	})

	a.router = r
}

func (a *Application) createServer() {
	cfg := a.Config.Server
	a.server = &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		Handler:        a.router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}
}

// Router exposes the assembled handler, mainly for tests.
func (a *Application) Router() http.Handler {
	return a.router
}

// Run starts the server and the rate-limit cleanup loop, blocking until a
// shutdown signal arrives or a component fails.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("license server starting",
			slog.String("addr", a.server.Addr),
			slog.String("version", Version),
		)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Background sweep bounding the in-memory rate-limit table. Advisory:
	// a skipped key is retried on the next tick.
	g.Go(func() error {
		ticker := time.NewTicker(a.Config.Security.RateLimit.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				a.store.Cleanup(now)
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		a.Logger.Info("license server shutting down")
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	infrastructure.CloseLogFile()
	return err
}
