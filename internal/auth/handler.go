package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/complysurvey/complysurvey/internal/observability"
	"github.com/complysurvey/complysurvey/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	metrics   *observability.Metrics
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	v := validator.New()
	_ = v.RegisterValidation("password", validPassword)
	return &Handler{logger: logger, service: service, validator: v, metrics: metrics}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/refresh", h.handleRefresh)
	r.Post("/revoke", h.handleRevoke)
	r.Post("/register", h.handleRegister)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	AccessToken  string `json:"accessToken" validate:"required"`
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type registerRequest struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6,password"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	FirstName       string `json:"firstName" validate:"required,max=100"`
	LastName        string `json:"lastName" validate:"required,max=100"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	resp, err := h.service.IssueOnLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		// A missing user after a passing credential check is an internal
		// inconsistency, but surfacing it would reveal whether the email
		// exists. Collapse it outward.
		if errors.Is(err, ErrUserNotFound) {
			err = ErrInvalidCredentials
		}
		h.respondAuthError(w, "login", err)
		return
	}
	h.count("login", "ok")
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	resp, err := h.service.RotateOnRefresh(r.Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		h.respondAuthError(w, "refresh", err)
		return
	}
	h.count("refresh", "ok")
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	if err := h.service.RevokeOnLogout(r.Context(), req.AccessToken, req.RefreshToken); err != nil {
		h.respondAuthError(w, "revoke", err)
		return
	}
	h.count("revoke", "ok")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(), RegisterRequest{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.respondAuthError(w, "register", err)
		return
	}
	h.count("register", "ok")
	httpx.JSON(w, http.StatusCreated, map[string]string{"userId": user.ID})
}

func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "request body is not valid JSON")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		detail := "request validation failed"
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			detail = "invalid field: " + fieldErrs[0].Field()
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", detail)
		return false
	}
	return true
}

// respondAuthError maps expected failures to their transport hint and lets
// everything else surface as a 500-class fault.
func (h *Handler) respondAuthError(w http.ResponseWriter, op string, err error) {
	var authErr *Error
	if errors.As(err, &authErr) {
		h.count(op, authErr.Code)
		httpx.Problem(w, authErr.Status, authErr.Code, authErr.Description)
		return
	}
	if h.logger != nil {
		h.logger.Error("auth operation failed", slog.String("op", op), slog.Any("error", err))
	}
	h.count(op, "fault")
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func (h *Handler) count(op, code string) {
	if h.metrics != nil {
		h.metrics.ObserveAuthDecision(op, code)
	}
}

// validPassword enforces the registration password policy: at least one
// uppercase letter, one lowercase letter, one digit and one symbol.
func validPassword(fl validator.FieldLevel) bool {
	var upper, lower, digit, symbol bool
	for _, r := range fl.Field().String() {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	return upper && lower && digit && symbol
}
