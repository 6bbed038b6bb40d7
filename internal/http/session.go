package http

import (
	"net/http"
	"strings"
	"time"

	"worknest/internal/accounts"
)

const defaultRefreshCookieName = "refresh_token"

// CookieConfig controls the refresh token cookie.
type CookieConfig struct {
	Name   string
	Domain string
	Secure bool
	MaxAge time.Duration
}

// NewCookieConfig derives cookie settings for the environment. Cookies are Secure everywhere
// except development.
func NewCookieConfig(name, domain, env string, maxAge time.Duration) CookieConfig {
	if strings.TrimSpace(name) == "" {
		name = defaultRefreshCookieName
	}
	return CookieConfig{
		Name:   name,
		Domain: strings.TrimSpace(domain),
		Secure: !strings.EqualFold(env, "development"),
		MaxAge: maxAge,
	}
}

func (c CookieConfig) refreshCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   c.Secure,
		MaxAge:   int(c.MaxAge.Seconds()),
	}
}

func (c CookieConfig) clearedCookie() *http.Cookie {
	cookie := c.refreshCookie("")
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	return cookie
}

func (c CookieConfig) read(r *http.Request) string {
	cookie, err := r.Cookie(c.Name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

type userResponse struct {
	ID                        string     `json:"id"`
	Email                     string     `json:"email"`
	Name                      string     `json:"name"`
	UserType                  *string    `json:"user_type"`
	OnboardingCompleted       bool       `json:"onboarding_completed"`
	LastOnboardingCompletedAt *time.Time `json:"last_onboarding_completed_at"`
	CreatedAt                 time.Time  `json:"created_at"`
}

func newUserResponse(user accounts.User) userResponse {
	var userType *string
	if user.Role != accounts.RoleNone {
		role := string(user.Role)
		userType = &role
	}
	return userResponse{
		ID:                        user.ID.String(),
		Email:                     user.Email,
		Name:                      user.Name,
		UserType:                  userType,
		OnboardingCompleted:       user.OnboardingCompleted,
		LastOnboardingCompletedAt: user.LastOnboardingCompletedAt,
		CreatedAt:                 user.CreatedAt,
	}
}
