package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"crm-backend/internal/service"
	"crm-backend/internal/token"
	"crm-backend/internal/util"
)

// TokenVerifier validates bearer tokens presented on protected routes.
type TokenVerifier interface {
	Verify(tokenString, expectedTyp string) (*token.Claims, error)
}

// RevocationChecker rejects tokens whose session has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, sessionID string) bool
}

// AuthHandler handles HTTP requests for authentication and session management
type AuthHandler struct {
	authService         *service.AuthService
	sessionService      *service.SessionService
	registrationService *service.RegistrationService
	verifier            TokenVerifier
	revocations         RevocationChecker
	logger              *zap.Logger
}

func NewAuthHandler(
	authService *service.AuthService,
	sessionService *service.SessionService,
	registrationService *service.RegistrationService,
	verifier TokenVerifier,
	revocations RevocationChecker,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		authService:         authService,
		sessionService:      sessionService,
		registrationService: registrationService,
		verifier:            verifier,
		revocations:         revocations,
		logger:              logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

type loginRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	DeviceFingerprint string `json:"device_fingerprint,omitempty"`
	RememberMe        bool   `json:"remember_me,omitempty"`
}

type mfaVerifyRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

type registerRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	OrganizationID string `json:"organization_id,omitempty"`
}

type loginResponse struct {
	MfaRequired      bool      `json:"mfa_required"`
	ChallengeID      string    `json:"challenge_id,omitempty"`
	UserID           string    `json:"user_id"`
	SessionID        string    `json:"session_id,omitempty"`
	AccessToken      string    `json:"access_token,omitempty"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	AccessExpiresAt  time.Time `json:"access_expires_at,omitempty"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
	SessionExpiresAt time.Time `json:"session_expires_at,omitempty"`
	IsNewDevice      bool      `json:"is_new_device"`
}

type sessionResponse struct {
	SessionID    string    `json:"session_id"`
	DeviceID     string    `json:"device_id,omitempty"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	IsRemembered bool      `json:"is_remembered"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// RegisterRoutes registers all authentication routes
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		// Public routes
		r.Post("/login", h.Login)
		r.Post("/mfa/verify", h.VerifyMfa)
		r.Post("/register", h.Register)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(h.requireAccessToken)
			r.Get("/sessions", h.ListSessions)
			r.Delete("/sessions/{sessionID}", h.RevokeSession)
			r.Delete("/sessions", h.RevokeAllSessions)
		})
	})
}

// Login handles credential verification and session issuance
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("email and password are required"), "Missing credentials")
		return
	}

	result, err := h.authService.Login(ctx, &service.LoginRequest{
		Email:             req.Email,
		Password:          req.Password,
		IPAddress:         clientIP(r),
		UserAgent:         r.UserAgent(),
		DeviceFingerprint: req.DeviceFingerprint,
		RememberMe:        req.RememberMe,
	})
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Login failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(toLoginResponse(result), "Login successful"))
	h.logger.Info("Login via HTTP",
		util.Bool("mfa_required", result.MfaRequired),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Login"),
	)
}

// VerifyMfa completes an MFA-gated login
func (h *AuthHandler) VerifyMfa(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req mfaVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.ChallengeID == "" || req.Code == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("challenge_id and code are required"), "Missing challenge")
		return
	}

	result, err := h.authService.VerifyMfa(ctx, req.ChallengeID, req.Code, clientIP(r), r.UserAgent())
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "MFA verification failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(toLoginResponse(result), "MFA verification successful"))
}

// Register handles new account creation
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("email and password are required"), "Missing registration fields")
		return
	}

	identity, err := h.registrationService.Register(ctx, &service.RegisterRequest{
		Email:          req.Email,
		Password:       req.Password,
		OrganizationID: req.OrganizationID,
		IPAddress:      clientIP(r),
		UserAgent:      r.UserAgent(),
	})
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Registration failed")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(map[string]string{
		"user_id": identity.UserID,
		"status":  identity.Status,
	}, "Account created, verification email sent"))
}

// ListSessions returns the caller's active sessions, newest first
func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := claimsFrom(ctx)

	sessions, err := h.sessionService.ListActiveSessions(ctx, claims.Subject)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to list sessions")
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse{
			SessionID:    s.SessionID,
			DeviceID:     s.DeviceID,
			IPAddress:    s.IPAddress.String(),
			UserAgent:    s.UserAgent,
			IsRemembered: s.IsRemembered,
			CreatedAt:    s.CreatedAt,
			ExpiresAt:    s.ExpiresAt,
		})
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(out, "Sessions retrieved"))
}

// RevokeSession revokes one of the caller's sessions
func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := claimsFrom(ctx)

	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("session id is required"), "Missing session id")
		return
	}

	if err := h.sessionService.RevokeSession(ctx, claims.Subject, sessionID); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to revoke session")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Session revoked"))
}

// RevokeAllSessions revokes every active session of the caller
func (h *AuthHandler) RevokeAllSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := claimsFrom(ctx)

	revoked, err := h.sessionService.RevokeAllSessions(ctx, claims.Subject)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to revoke sessions")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]int{"revoked": revoked}, "Sessions revoked"))
}

func toLoginResponse(result *service.LoginResult) loginResponse {
	if result.MfaRequired {
		return loginResponse{
			MfaRequired: true,
			ChallengeID: result.ChallengeID,
			UserID:      result.UserID,
		}
	}
	return loginResponse{
		UserID:           result.UserID,
		SessionID:        result.Session.SessionID,
		AccessToken:      result.Tokens.AccessToken,
		RefreshToken:     result.Tokens.RefreshToken,
		AccessExpiresAt:  result.Tokens.AccessExpiresAt,
		RefreshExpiresAt: result.Tokens.RefreshExpiresAt,
		SessionExpiresAt: result.Session.ExpiresAt,
		IsNewDevice:      result.IsNewDevice,
	}
}

// clientIP extracts the caller IP. middleware.RealIP has already folded
// X-Forwarded-For into RemoteAddr.
func clientIP(r *http.Request) net.IP {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip
	}
	return net.IPv4zero
}

func (h *AuthHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *AuthHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

// getStatusCode determines the appropriate HTTP status code for an error
func (h *AuthHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrAccountLocked):
		return http.StatusForbidden
	case errors.Is(err, service.ErrAccountNotVerified), errors.Is(err, service.ErrAccountSuspended):
		return http.StatusForbidden
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrMfaChallengeInvalid), errors.Is(err, service.ErrMfaNotConfigured):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, service.ErrWeakPassword):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// bearerToken pulls the token out of the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
