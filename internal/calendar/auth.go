// Package calendar mirrors confirmed reservations into a Google Calendar.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// OAuthConfig reads an OAuth client credentials file downloaded from the
// Google Cloud console.
func OAuthConfig(credentialsFile string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, gcal.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}
	return cfg, nil
}

// AuthURL returns the consent URL for an offline token.
func AuthURL(cfg *oauth2.Config) string {
	return cfg.AuthCodeURL("roombot-calendar", oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token and caches it at path.
func Exchange(ctx context.Context, cfg *oauth2.Config, code, path string) (*oauth2.Token, error) {
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	if err := SaveToken(path, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// TokenFromFile loads a cached token.
func TokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	return tok, nil
}

// SaveToken writes a token with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("caching oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(tok)
}

// NewService builds a Calendar client from the credentials file and the
// cached token.
func NewService(ctx context.Context, credentialsFile, tokenPath string) (*gcal.Service, error) {
	cfg, err := OAuthConfig(credentialsFile)
	if err != nil {
		return nil, err
	}
	tok, err := TokenFromFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("no calendar token at %s, run 'roombot calendar auth' first: %w", tokenPath, err)
	}
	svc, err := gcal.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("creating calendar service: %w", err)
	}
	return svc, nil
}
