package oauth

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2/google"
)

const googleAPIBase = "https://www.googleapis.com"

// GoogleProvider implements Provider for Google accounts.
type GoogleProvider struct {
	*client
}

// NewGoogleProvider creates the Google provider.
func NewGoogleProvider(creds Credentials, opts ...ProviderOption) *GoogleProvider {
	return &GoogleProvider{client: newClient(Google, creds, google.Endpoint, googleAPIBase, opts)}
}

func (p *GoogleProvider) Name() Kind {
	return Google
}

func (p *GoogleProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	return p.exchange(ctx, code, redirectURI)
}

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail *bool  `json:"verified_email"`
	Name          string `json:"name"`
}

// FetchProfile reads the v2 userinfo endpoint.
func (p *GoogleProvider) FetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	var info googleUserInfo
	body, err := p.getJSON(ctx, "/oauth2/v2/userinfo", accessToken, nil, &info)
	if err != nil {
		return Profile{}, err
	}

	if strings.TrimSpace(info.ID) == "" {
		return Profile{}, fmt.Errorf("%w: google userinfo has no id", ErrUpstreamRejected)
	}
	if strings.TrimSpace(info.Email) == "" {
		return Profile{}, ErrNoEmailAvailable
	}
	if info.VerifiedEmail != nil && !*info.VerifiedEmail {
		return Profile{}, ErrUnverifiedEmail
	}

	return Profile{
		Provider:   Google,
		ExternalID: info.ID,
		Email:      info.Email,
		Name:       info.Name,
		RawClaims:  claimsFromBody(body),
	}, nil
}
