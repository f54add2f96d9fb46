package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "licensegate/internal/errors"
	"licensegate/internal/infrastructure"
	custommw "licensegate/internal/middleware"
	"licensegate/internal/ratelimit"
	"licensegate/internal/services"
	"licensegate/pkg/contracts/domain"
)

// LicenseHandler exposes the activation and check-in endpoints behind the
// abuse-control middleware chain.
type LicenseHandler struct {
	issuer    services.Issuer
	limiter   *ratelimit.Limiter
	signature func(http.Handler) http.Handler
	metrics   *infrastructure.Metrics
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewLicenseHandler creates a license handler. signature is the configured
// SignatureVerify middleware; it is injected rather than built here so the
// handler stays testable without a signing secret.
func NewLicenseHandler(issuer services.Issuer, limiter *ratelimit.Limiter, signature func(http.Handler) http.Handler, metrics *infrastructure.Metrics, logger *slog.Logger) *LicenseHandler {
	v := validator.New()
	// Use JSON tag names in validation errors.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &LicenseHandler{
		issuer:    issuer,
		limiter:   limiter,
		signature: signature,
		metrics:   metrics,
		validate:  v,
		logger:    logger.With(slog.String("handler", "license")),
	}
}

// Routes returns a chi router for the protocol endpoints. Per the protocol,
// the rate limiter runs before the signature verifier; both run before any
// issuance logic.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Group(func(r chi.Router) {
		r.Use(custommw.RateLimit(h.limiter, ratelimit.ClassActivate, h.metrics))
		r.Use(h.signature)
		r.Post("/activate", h.Activate)
	})

	r.Group(func(r chi.Router) {
		r.Use(custommw.RateLimit(h.limiter, ratelimit.ClassCheckIn, h.metrics))
		r.Use(h.signature)
		r.Post("/checkin", h.CheckIn)
	})

	return r
}

// Activate handles POST /activate.
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.handleIssuance(w, r, "activate", h.issuer.Activate)
}

// CheckIn handles POST /checkin.
func (h *LicenseHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.handleIssuance(w, r, "checkin", h.issuer.CheckIn)
}

func (h *LicenseHandler) handleIssuance(
	w http.ResponseWriter,
	r *http.Request,
	endpoint string,
	issue func(ctx context.Context, req services.IssueRequest) (*domain.ActivationResponse, error),
) {
	ctx := r.Context()

	var req domain.ActivationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Render(w, r, apierrors.InvalidRequest("request body is not valid JSON"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		render.Render(w, r, apierrors.InvalidRequest(validationMessage(err)))
		return
	}

	resp, err := issue(ctx, services.IssueRequest{
		LicenseKey: req.LicenseKey,
		AppCode:    req.AppCode,
		DeviceID:   req.DeviceID,
		AppVersion: req.AppVersion,
	})
	if err != nil {
		var issueErr *services.IssueError
		if errors.As(err, &issueErr) {
			if h.metrics != nil {
				h.metrics.ActivationResults.WithLabelValues(endpoint, issueErr.Reason).Inc()
			}
			h.logger.WarnContext(ctx, "issuance rejected",
				slog.String("endpoint", endpoint),
				slog.String("reason", issueErr.Reason),
			)
			render.Render(w, r, apierrors.Rejection(issueErr.Reason, issueErr.Message))
			return
		}
		h.logger.ErrorContext(ctx, "issuance failed",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apierrors.Internal())
		return
	}

	if h.metrics != nil {
		h.metrics.ActivationResults.WithLabelValues(endpoint, "success").Inc()
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// validationMessage flattens a validator error into a user-readable message
// without leaking struct internals.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		return "invalid fields: " + strings.Join(fields, ", ")
	}
	return "request validation failed"
}
