package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/markjakearzadon/schoolfee-gobackend/internal/models"
	"github.com/markjakearzadon/schoolfee-gobackend/internal/services"
)

type ctxKey int

const claimsKey ctxKey = iota

type AuthHandler struct {
	service *services.StaffService
	log     zerolog.Logger
}

func NewAuthHandler(service *services.StaffService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{service: service, log: log.With().Str("handler", "auth").Logger()}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type createStaffRequest struct {
	FullName string `json:"fullname" validate:"required,notblank"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=admin accountant"`
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	token, staff, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, "login successful", map[string]interface{}{
		"token": token,
		"staff": staff,
	})
}

// CreateStaff handles POST /auth/staff.
func (h *AuthHandler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var req createStaffRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	staff, err := h.service.CreateStaff(r.Context(), req.FullName, req.Email, req.Password, req.Role)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, "staff created", staff)
}

// ListStaff handles GET /auth/staff.
func (h *AuthHandler) ListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if staff == nil {
		staff = []models.Staff{}
	}
	writeJSON(w, http.StatusOK, "staff", staff)
}

// RequireRole rejects requests without a valid bearer token carrying one
// of roles. The parsed claims are stored on the request context.
func (h *AuthHandler) RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, h.log, fmt.Errorf("%w: authorization header required", services.ErrUnauthorized))
				return
			}
			tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			claims, err := h.service.ParseToken(tokenString)
			if err != nil {
				writeError(w, h.log, err)
				return
			}
			if !allowed[claims.Role] {
				writeError(w, h.log, fmt.Errorf("%w: role %q may not access this resource", services.ErrForbidden, claims.Role))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
		})
	}
}

// ClaimsFrom returns the claims RequireRole stored on ctx.
func ClaimsFrom(ctx context.Context) (*services.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*services.Claims)
	return claims, ok
}
