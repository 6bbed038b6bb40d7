package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"worknest/internal/accounts"
	"worknest/internal/oauth"
	"worknest/internal/tokens"
)

// OAuthHandler exchanges provider credentials for a WorkNest session.
type OAuthHandler struct {
	federation *oauth.Federation
	tokens     *tokens.Service
	cookies    CookieConfig
	recorder   AuthRecorder
	logger     *slog.Logger
}

// NewOAuthHandler creates an OAuthHandler. recorder may be nil.
func NewOAuthHandler(federation *oauth.Federation, tokenSvc *tokens.Service, cookies CookieConfig, recorder AuthRecorder, logger *slog.Logger) *OAuthHandler {
	if recorder == nil {
		recorder = nopAuthRecorder{}
	}
	return &OAuthHandler{federation: federation, tokens: tokenSvc, cookies: cookies, recorder: recorder, logger: logger}
}

type oauthLoginRequest struct {
	AccessToken string `json:"access_token"`
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
	IDToken     string `json:"id_token"`
}

// Login handles POST /oauth/{provider}. The body carries a provider access token, an
// authorization code with its redirect URI, or (Google only) an ID token.
func (h *OAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.providerParam(w, r)
	if !ok {
		return
	}

	var payload oauthLoginRequest
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	var (
		result oauth.LoginResult
		err    error
	)
	switch {
	case strings.TrimSpace(payload.AccessToken) != "":
		result, err = h.federation.CompleteLogin(r.Context(), kind, strings.TrimSpace(payload.AccessToken))
	case strings.TrimSpace(payload.Code) != "":
		result, err = h.federation.CompleteCodeLogin(r.Context(), kind, strings.TrimSpace(payload.Code), strings.TrimSpace(payload.RedirectURI))
	case strings.TrimSpace(payload.IDToken) != "" && kind == oauth.Google:
		result, err = h.federation.CompleteIDTokenLogin(r.Context(), strings.TrimSpace(payload.IDToken))
	default:
		writeError(w, http.StatusBadRequest, "access_token or code is required")
		return
	}
	if err != nil {
		h.recorder.RecordLogin(string(kind), "failure")
		handleOAuthError(w, err, h.logger)
		return
	}

	h.recorder.RecordLogin(string(kind), "success")
	writeSession(r.Context(), w, h.tokens, h.cookies, h.logger, result.User, http.StatusOK)
}

// Exchange handles POST /oauth/{provider}/exchange and returns the provider access token.
func (h *OAuthHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.providerParam(w, r)
	if !ok {
		return
	}

	var payload struct {
		Code        string `json:"code"`
		RedirectURI string `json:"redirect_uri"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}
	if strings.TrimSpace(payload.Code) == "" {
		writeValidationError(w, map[string]string{"code": "This field is required."})
		return
	}

	accessToken, err := h.federation.ExchangeCode(r.Context(), kind, strings.TrimSpace(payload.Code), strings.TrimSpace(payload.RedirectURI))
	if err != nil {
		handleOAuthError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": accessToken})
}

func (h *OAuthHandler) providerParam(w http.ResponseWriter, r *http.Request) (oauth.Kind, bool) {
	kind, err := oauth.ParseKind(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown provider")
		return "", false
	}
	return kind, true
}

func handleOAuthError(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, oauth.ErrUnknownProvider):
		writeError(w, http.StatusNotFound, "unknown provider")
	case errors.Is(err, oauth.ErrMissingCredentials):
		// Already logged at error level by the federation.
		writeError(w, http.StatusInternalServerError, "provider is not configured")
	case errors.Is(err, oauth.ErrUpstreamTimeout), errors.Is(err, oauth.ErrUpstreamUnavailable):
		writeError(w, http.StatusBadGateway, "provider unavailable, please try again")
	case errors.Is(err, oauth.ErrUpstreamRejected), errors.Is(err, oauth.ErrInvalidIDToken):
		writeError(w, http.StatusBadRequest, "invalid or expired provider token")
	case errors.Is(err, oauth.ErrNoEmailAvailable):
		writeError(w, http.StatusBadRequest, "provider account has no email address")
	case errors.Is(err, oauth.ErrUnverifiedEmail):
		writeError(w, http.StatusBadRequest, "provider email address is not verified")
	case errors.Is(err, accounts.ErrIdentityConflict),
		errors.Is(err, accounts.ErrValidation),
		errors.Is(err, accounts.ErrNotFound):
		handleAccountError(w, err, logger)
	default:
		logger.Error("oauth login error", "error", err)
		writeError(w, http.StatusInternalServerError, "unexpected error")
	}
}
