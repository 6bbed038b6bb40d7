package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"worknest/internal/accounts"
	"worknest/internal/tokens"
)

// AuthRecorder counts signup and login outcomes.
type AuthRecorder interface {
	RecordLogin(method, outcome string)
	RecordSignup(outcome string)
}

type nopAuthRecorder struct{}

func (nopAuthRecorder) RecordLogin(string, string) {}
func (nopAuthRecorder) RecordSignup(string)        {}

// AuthHandler serves signup, login, refresh and logout.
type AuthHandler struct {
	accounts *accounts.Service
	tokens   *tokens.Service
	cookies  CookieConfig
	recorder AuthRecorder
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler. recorder may be nil.
func NewAuthHandler(accountSvc *accounts.Service, tokenSvc *tokens.Service, cookies CookieConfig, recorder AuthRecorder, logger *slog.Logger) *AuthHandler {
	if recorder == nil {
		recorder = nopAuthRecorder{}
	}
	return &AuthHandler{accounts: accountSvc, tokens: tokenSvc, cookies: cookies, recorder: recorder, logger: logger}
}

// Signup handles POST /signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
		Name            string `json:"name"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	if payload.Password != payload.ConfirmPassword {
		h.recorder.RecordSignup("invalid")
		writeValidationError(w, map[string]string{"confirm_password": "Passwords do not match."})
		return
	}

	user, err := h.accounts.CreateLocalAccount(r.Context(), payload.Email, payload.Password, payload.Name)
	if err != nil {
		switch {
		case errors.Is(err, accounts.ErrDuplicateEmail):
			h.recorder.RecordSignup("duplicate")
		case errors.Is(err, accounts.ErrValidation):
			h.recorder.RecordSignup("invalid")
		default:
			h.recorder.RecordSignup("error")
		}
		handleAccountError(w, err, h.logger)
		return
	}

	h.recorder.RecordSignup("success")
	h.logger.Info("account created", "user_id", user.ID)
	h.startSession(r.Context(), w, user, http.StatusCreated)
}

// Login handles POST /login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, accounts.ErrInvalidCredentials) {
			h.recorder.RecordLogin("password", "invalid")
			writeError(w, http.StatusBadRequest, "invalid email or password")
			return
		}
		h.recorder.RecordLogin("password", "error")
		handleAccountError(w, err, h.logger)
		return
	}

	h.recorder.RecordLogin("password", "success")
	h.startSession(r.Context(), w, user, http.StatusOK)
}

// Refresh handles POST /token/refresh. The refresh token is read from the cookie only.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := h.cookies.read(r)
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "refresh token missing")
		return
	}

	pair, err := h.tokens.Refresh(r.Context(), raw)
	if err != nil {
		http.SetCookie(w, h.cookies.clearedCookie())
		handleTokenError(w, err, h.logger)
		return
	}

	http.SetCookie(w, h.cookies.refreshCookie(pair.RefreshToken))
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": pair.AccessToken,
		"expires_at":   pair.AccessExpiresAt,
	})
}

// Logout handles POST /logout. Revocation is best effort; the cookie is always cleared.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if raw := h.cookies.read(r); raw != "" {
		ctx := context.WithoutCancel(r.Context())
		if err := h.tokens.Revoke(ctx, raw); err != nil {
			subject, _ := SubjectFromContext(r.Context())
			h.logger.Warn("logout: refresh token not revoked", "user_id", subject, "error", err)
		}
	}

	http.SetCookie(w, h.cookies.clearedCookie())
	writeJSON(w, http.StatusOK, map[string]string{"detail": "logged out"})
}

// startSession issues a token pair, sets the refresh cookie and writes the access token and user.
func (h *AuthHandler) startSession(ctx context.Context, w http.ResponseWriter, user accounts.User, status int) {
	writeSession(ctx, w, h.tokens, h.cookies, h.logger, user, status)
}

func writeSession(ctx context.Context, w http.ResponseWriter, tokenSvc *tokens.Service, cookies CookieConfig, logger *slog.Logger, user accounts.User, status int) {
	pair, err := tokenSvc.IssuePair(ctx, user.ID)
	if err != nil {
		logger.Error("issue token pair", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "unexpected error")
		return
	}

	http.SetCookie(w, cookies.refreshCookie(pair.RefreshToken))
	writeJSON(w, status, map[string]any{
		"access_token": pair.AccessToken,
		"expires_at":   pair.AccessExpiresAt,
		"user":         newUserResponse(user),
	})
}

func handleAccountError(w http.ResponseWriter, err error, logger *slog.Logger) {
	if writeFieldErrors(w, err) {
		return
	}
	switch {
	case errors.Is(err, accounts.ErrDuplicateEmail):
		writeError(w, http.StatusBadRequest, "a user with this email already exists")
	case errors.Is(err, accounts.ErrProfileExists):
		writeError(w, http.StatusBadRequest, "profile already exists")
	case errors.Is(err, accounts.ErrRoleConflict):
		writeError(w, http.StatusBadRequest, "account already has a different role")
	case errors.Is(err, accounts.ErrIdentityConflict):
		writeError(w, http.StatusConflict, "this login is linked to a different account")
	case errors.Is(err, accounts.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, accounts.ErrNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	default:
		logger.Error("account service error", "error", err)
		writeError(w, http.StatusInternalServerError, "unexpected error")
	}
}

func handleTokenError(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, tokens.ErrExpired):
		writeError(w, http.StatusUnauthorized, "refresh token expired")
	case errors.Is(err, tokens.ErrRevoked), errors.Is(err, tokens.ErrTokenReuseDetected):
		writeError(w, http.StatusUnauthorized, "refresh token revoked")
	case errors.Is(err, tokens.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
	default:
		logger.Error("token service error", "error", err)
		writeError(w, http.StatusInternalServerError, "unexpected error")
	}
}
