package oauth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2/github"
)

const githubAPIBase = "https://api.github.com"

// GitHubProvider implements Provider for GitHub accounts.
type GitHubProvider struct {
	*client
}

// NewGitHubProvider creates the GitHub provider.
func NewGitHubProvider(creds Credentials, opts ...ProviderOption) *GitHubProvider {
	return &GitHubProvider{client: newClient(GitHub, creds, github.Endpoint, githubAPIBase, opts)}
}

func (p *GitHubProvider) Name() Kind {
	return GitHub
}

func (p *GitHubProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	return p.exchange(ctx, code, redirectURI)
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

var githubHeaders = http.Header{
	"Accept":               {"application/vnd.github+json"},
	"X-Github-Api-Version": {"2022-11-28"},
}

// FetchProfile reads the account from /user and its verified address from /user/emails.
func (p *GitHubProvider) FetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	var user githubUser
	body, err := p.getJSON(ctx, "/user", accessToken, githubHeaders, &user)
	if err != nil {
		return Profile{}, err
	}
	if user.ID == 0 {
		return Profile{}, fmt.Errorf("%w: github user has no id", ErrUpstreamRejected)
	}

	// The public /user email carries no verification flag, so the address always comes from
	// /user/emails.
	var emails []githubEmail
	if _, err := p.getJSON(ctx, "/user/emails", accessToken, githubHeaders, &emails); err != nil {
		return Profile{}, err
	}
	email, err := selectGitHubEmail(emails)
	if err != nil {
		return Profile{}, err
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}

	return Profile{
		Provider:   GitHub,
		ExternalID: strconv.FormatInt(user.ID, 10),
		Email:      email,
		Name:       name,
		RawClaims:  claimsFromBody(body),
	}, nil
}

// selectGitHubEmail picks the verified primary address, then any verified one. Unverified
// addresses are never used.
func selectGitHubEmail(emails []githubEmail) (string, error) {
	var verified string
	seen := false
	for _, e := range emails {
		address := strings.TrimSpace(e.Email)
		if address == "" {
			continue
		}
		seen = true
		if !e.Verified {
			continue
		}
		if e.Primary {
			return address, nil
		}
		if verified == "" {
			verified = address
		}
	}
	switch {
	case verified != "":
		return verified, nil
	case seen:
		return "", ErrUnverifiedEmail
	default:
		return "", ErrNoEmailAvailable
	}
}
