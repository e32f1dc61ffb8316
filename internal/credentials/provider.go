// Package credentials supplies the short-lived credentials handed to the
// speech service at the start of every recording session.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrNoCredentials is returned when a provider has nothing to hand out.
var ErrNoCredentials = errors.New("no credentials available")

// CloudPlatformScope is the OAuth scope used for the speech service.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Credentials is the credential triple held by both streaming sessions for
// the lifetime of one recording.
type Credentials struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
	Expires      time.Time
}

// Empty reports whether no credential material is present.
func (c Credentials) Empty() bool {
	return c.AccessKey == "" && c.SecretKey == "" && c.SessionToken == ""
}

// Expired reports whether the credentials carry an expiry in the past.
func (c Credentials) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && now.After(c.Expires)
}

// Provider fetches credentials. It is called once per session start.
type Provider interface {
	GetCredentials(ctx context.Context) (Credentials, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Credentials, error)

func (f ProviderFunc) GetCredentials(ctx context.Context) (Credentials, error) {
	return f(ctx)
}

// Static returns fixed credentials. Empty static credentials are valid and
// make the speech adapter fall back to its ambient credentials.
type Static struct {
	Creds Credentials
}

func (s Static) GetCredentials(ctx context.Context) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}
	return s.Creds, nil
}

// Google mints OAuth access tokens from Application Default Credentials.
type Google struct {
	projectID string
	source    oauth2.TokenSource
}

// NewGoogle resolves Application Default Credentials for the given scopes.
func NewGoogle(ctx context.Context, scopes ...string) (*Google, error) {
	if len(scopes) == 0 {
		scopes = []string{CloudPlatformScope}
	}
	creds, err := google.FindDefaultCredentials(ctx, scopes...)
	if err != nil {
		return nil, fmt.Errorf("find default credentials: %w", err)
	}
	return &Google{projectID: creds.ProjectID, source: creds.TokenSource}, nil
}

// NewGoogleFromTokenSource wraps an existing token source.
func NewGoogleFromTokenSource(projectID string, ts oauth2.TokenSource) *Google {
	return &Google{projectID: projectID, source: ts}
}

// GetCredentials refreshes the access token if needed and returns it as the
// session token. AccessKey carries the project ID.
func (g *Google) GetCredentials(ctx context.Context) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}
	tok, err := g.source.Token()
	if err != nil {
		return Credentials{}, fmt.Errorf("fetch access token: %w", err)
	}
	if tok.AccessToken == "" {
		return Credentials{}, ErrNoCredentials
	}
	return Credentials{
		AccessKey:    g.projectID,
		SessionToken: tok.AccessToken,
		Expires:      tok.Expiry,
	}, nil
}
