package digitalocean

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// RevokeURL is DigitalOcean's OAuth token revocation endpoint.
const RevokeURL = "https://cloud.digitalocean.com/v1/oauth/revoke"

// Endpoint is DigitalOcean's OAuth 2.0 endpoint.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://cloud.digitalocean.com/v1/oauth/authorize",
	TokenURL:  "https://cloud.digitalocean.com/v1/oauth/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// RequiredScope is the scope an access token must be granted to deploy.
const RequiredScope = "read write"

// ErrInsufficientScope is returned when the user granted less than
// [RequiredScope].
var ErrInsufficientScope = errors.New("access token lacks read write scope")

// OAuthConfig returns the OAuth client configuration used by the installer.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     Endpoint,
		Scopes:       []string{"read", "write"},
	}
}

// Exchange trades an authorization code for a token and checks that the
// granted scope allows creating droplets.
func Exchange(ctx context.Context, cfg *oauth2.Config, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, errors.New("missing authorization code")
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	if scope, _ := tok.Extra("scope").(string); scope != RequiredScope {
		return nil, fmt.Errorf("%w: granted %q", ErrInsufficientScope, scope)
	}
	return tok, nil
}

// Revoke invalidates accessToken at revokeURL. A nil client uses
// http.DefaultClient.
func Revoke(ctx context.Context, client *http.Client, revokeURL, accessToken string) error {
	if client == nil {
		client = http.DefaultClient
	}

	form := url.Values{"token": {accessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke token: unexpected status %d", resp.StatusCode)
	}
	return nil
}
