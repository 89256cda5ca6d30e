package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

// defaultLifetime is used when the token endpoint does not report
// expires_in. Yahoo access tokens last one hour.
const defaultLifetime = time.Hour

// TokenFile is the persisted authorization artifact. The field names match
// the oauth2.json layout written by the Python yahoo_oauth package so an
// existing file keeps working.
type TokenFile struct {
	AccessToken    string  `json:"access_token"`
	RefreshToken   string  `json:"refresh_token"`
	TokenType      string  `json:"token_type"`
	TokenTime      float64 `json:"token_time"`
	ExpiresIn      int     `json:"expires_in,omitempty"`
	ConsumerKey    string  `json:"consumer_key,omitempty"`
	ConsumerSecret string  `json:"consumer_secret,omitempty"`
	GUID           string  `json:"guid,omitempty"`
}

// LoadTokenFile reads and decodes the token file at path.
func LoadTokenFile(path string) (*TokenFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var f TokenFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode token file %s: %w", path, err)
	}
	return &f, nil
}

// Save writes the token file, creating the parent directory if needed.
func (f *TokenFile) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create token dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// Token converts the file contents into an oauth2 token.
func (f *TokenFile) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  f.AccessToken,
		RefreshToken: f.RefreshToken,
		TokenType:    f.TokenType,
	}
	if f.TokenTime > 0 {
		lifetime := defaultLifetime
		if f.ExpiresIn > 0 {
			lifetime = time.Duration(f.ExpiresIn) * time.Second
		}
		issued := time.Unix(0, int64(f.TokenTime*float64(time.Second)))
		tok.Expiry = issued.Add(lifetime)
	}
	return tok
}

// withToken returns a copy of f carrying tok, issued at now. Consumer
// credentials and the GUID carry over unless the token supplies a GUID.
func (f TokenFile) withToken(tok *oauth2.Token, now time.Time) *TokenFile {
	next := f
	next.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	next.TokenType = tok.TokenType
	next.TokenTime = float64(now.UnixNano()) / float64(time.Second)
	next.ExpiresIn = expiresIn(tok, now)
	if guid, ok := tok.Extra("xoauth_yahoo_guid").(string); ok && guid != "" {
		next.GUID = guid
	}
	return &next
}

// expiresIn prefers the lifetime reported by the token endpoint and falls
// back to the computed expiry.
func expiresIn(tok *oauth2.Token, now time.Time) int {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if tok.Expiry.IsZero() || !tok.Expiry.After(now) {
		return 0
	}
	return int(tok.Expiry.Sub(now).Round(time.Second) / time.Second)
}
