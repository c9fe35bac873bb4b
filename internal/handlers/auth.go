package handlers

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/akmatori/article73/internal/api"
	"github.com/akmatori/article73/internal/middleware"
	"github.com/akmatori/article73/internal/ratelimit"
	"github.com/akmatori/article73/internal/utils"
)

// AuthHandler serves operator login and token verification
type AuthHandler struct {
	auth    *middleware.Authenticator
	limiter *ratelimit.KeyedLimiter
}

// NewAuthHandler creates a new authentication handler. A nil limiter
// disables login throttling.
func NewAuthHandler(auth *middleware.Authenticator, limiter *ratelimit.KeyedLimiter) *AuthHandler {
	return &AuthHandler{auth: auth, limiter: limiter}
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned for a successful login
type LoginResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int       `json:"expires_in"` // seconds
}

// VerifyResponse is returned by GET /auth/verify
type VerifyResponse struct {
	Valid    bool   `json:"valid"`
	Username string `json:"username"`
}

// SetupRoutes sets up authentication routes
func (h *AuthHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("GET /auth/verify", h.handleVerify)
}

// handleLogin handles POST /auth/login
func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	client := clientIP(r)
	if h.limiter != nil && !h.limiter.Allow(client) {
		log.Printf("Auth: Login rate limit exceeded for %s", client)
		api.RespondErrorWithCode(w, http.StatusTooManyRequests, api.CodeRateLimited, "Too many login attempts")
		return
	}

	var req LoginRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		api.RespondError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	if !h.auth.CheckCredentials(req.Username, req.Password) {
		log.Printf("Auth: Failed login for %q from %s", utils.EscapeForLogging(req.Username, 64), client)
		api.RespondError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, expiresAt, err := h.auth.IssueToken(req.Username)
	if err != nil {
		log.Printf("Auth: Failed to issue token for %q: %v", req.Username, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	log.Printf("Auth: Operator %q logged in from %s", req.Username, client)
	api.RespondJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		Username:  req.Username,
		ExpiresAt: expiresAt,
		ExpiresIn: int(h.auth.TokenTTL().Seconds()),
	})
}

// handleVerify handles GET /auth/verify
func (h *AuthHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	operator := middleware.OperatorFromContext(r.Context())
	if operator == "" {
		api.RespondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	api.RespondJSON(w, http.StatusOK, VerifyResponse{Valid: true, Username: operator})
}
