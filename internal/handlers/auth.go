package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/eventdesk/accounts/internal/logging"
	"github.com/eventdesk/accounts/internal/services"
	"github.com/eventdesk/accounts/types"
)

const resendAck = "if an unverified account exists for this email, a new verification link has been sent"

// AuthService is the account workflow surface the handlers drive.
type AuthService interface {
	Signup(ctx context.Context, req services.SignupRequest) (services.SignupResult, error)
	Verify(ctx context.Context, token string) (services.VerifyResult, error)
	ResendVerification(ctx context.Context, req services.ResendRequest) (services.ResendResult, error)
	Login(ctx context.Context, req services.LoginRequest) (services.LoginResult, error)
}

// TokenParser verifies bearer tokens.
type TokenParser interface {
	Parse(token string) (*services.Claims, error)
}

// AuthHandler provides signup, verification and login endpoints.
type AuthHandler struct {
	auth   AuthService
	tokens TokenParser
	log    logging.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(auth AuthService, tokens TokenParser, log logging.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, tokens: tokens, log: log}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, auth AuthService, tokens TokenParser, log logging.Logger) {
	handler := NewAuthHandler(auth, tokens, log)

	r.Post("/register", handler.Register)
	r.Post("/verify", handler.Verify)
	r.Get("/verify", handler.Verify)
	r.Post("/resend-verification", handler.ResendVerification)
	r.Post("/login", handler.Login)
	r.With(handler.RequireAuth).Get("/me", handler.Me)
}

// RequireAuth enforces bearer authentication and injects the claims into context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return RequireAuth(h.tokens)(next)
}

// RequireAuth constructs auth middleware for other routers.
func RequireAuth(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			claims, err := tokens.Parse(tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), contextClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Register creates an account, or attaches a role to a verified one.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	result, err := h.auth.Signup(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, SignupResponse{
		Outcome:   string(result.Outcome),
		IsNewUser: result.IsNewUser,
		EmailSent: result.EmailSent,
		Identity:  result.Identity,
		Roles:     result.Roles,
		Warnings:  result.Warnings,
	})
}

// Verify consumes a verification token supplied in the body or the query.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var token string
	if r.Method == http.MethodGet {
		token = r.URL.Query().Get("token")
	} else {
		var req VerifyRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}
		token = req.Token
	}

	result, err := h.auth.Verify(r.Context(), strings.TrimSpace(token))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, VerifyResponse{
		Outcome:         string(result.Outcome),
		AlreadyVerified: result.Outcome == services.VerifyAlreadyVerified,
		Identity:        result.Identity,
	})
}

// ResendVerification issues a new verification email. The response does not
// reveal whether the email belongs to an account.
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req services.ResendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	_, err := h.auth.ResendVerification(r.Context(), req)
	if err != nil && !errors.Is(err, services.ErrNotFoundOrAlreadyVerified) {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, MessageResponse{Message: resendAck})
}

// Login verifies credentials and returns a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	result, err := h.auth.Login(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:            result.Token,
		ExpiresAt:        result.ExpiresAt,
		Identity:         result.Identity,
		Roles:            result.Roles,
		HasMultipleRoles: result.HasMultipleRoles,
	})
}

// Me returns the identity behind the bearer token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	resp := MeResponse{
		ID:          claims.Subject,
		Email:       claims.Email,
		PrimaryRole: claims.Role,
		Roles:       claims.Roles,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch services.KindOf(err) {
	case services.KindValidation:
		var verr *services.ValidationError
		errors.As(err, &verr)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Fields: verr.Fields})
	case services.KindConflict:
		writeError(w, http.StatusConflict, err.Error())
	case services.KindToken:
		if errors.Is(err, services.ErrTokenExpired) {
			writeError(w, http.StatusGone, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
	case services.KindCredential:
		if errors.Is(err, services.ErrVerificationRequired) {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		writeError(w, http.StatusUnauthorized, services.ErrInvalidCredentials.Error())
	default:
		h.log.Error(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "something went wrong, please try again later")
	}
}

type VerifyRequest struct {
	Token string `json:"token"`
}

type SignupResponse struct {
	Outcome   string        `json:"outcome"`
	IsNewUser bool          `json:"is_new_user"`
	EmailSent bool          `json:"email_sent"`
	Identity  types.Summary `json:"identity"`
	Roles     []types.Role  `json:"roles"`
	Warnings  []string      `json:"warnings,omitempty"`
}

type VerifyResponse struct {
	Outcome         string        `json:"outcome"`
	AlreadyVerified bool          `json:"already_verified"`
	Identity        types.Summary `json:"identity"`
}

type LoginResponse struct {
	Token            string        `json:"token"`
	ExpiresAt        time.Time     `json:"expires_at"`
	Identity         types.Summary `json:"identity"`
	Roles            []types.Role  `json:"roles"`
	HasMultipleRoles bool          `json:"has_multiple_roles"`
}

type MeResponse struct {
	ID          string       `json:"id"`
	Email       string       `json:"email"`
	PrimaryRole types.Role   `json:"primary_role"`
	Roles       []types.Role `json:"roles"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
