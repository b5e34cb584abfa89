package kiro

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TokenData is the on-disk credential record. The layout matches what the
// Kiro desktop login flow writes, so an existing token file can be pointed at
// directly.
type TokenData struct {
	Type         string `json:"type,omitempty"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token,omitempty"`
	Email        string `json:"email,omitempty"`
	// ExpiresAt is RFC3339.
	ExpiresAt string `json:"expires_at"`
	// AuthMethod is "builder_id" or "google".
	AuthMethod string `json:"auth_method"`
	ProfileArn string `json:"profile_arn,omitempty"`
	// ClientID/ClientSecret are the SSO OIDC client registration, required
	// for builder_id refresh.
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	Provider     string `json:"provider,omitempty"`
	LastRefresh  string `json:"last_refresh,omitempty"`
}

// Expiry parses ExpiresAt; the zero time means unknown.
func (t *TokenData) Expiry() time.Time {
	if t.ExpiresAt == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, t.ExpiresAt)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// ExpiresWithin reports whether the token expires inside the margin. Unknown
// expiry counts as expiring, forcing a refresh attempt.
func (t *TokenData) ExpiresWithin(margin time.Duration) bool {
	exp := t.Expiry()
	if exp.IsZero() {
		return true
	}
	return time.Now().Add(margin).After(exp)
}

// TokenStore loads and persists the credential file.
type TokenStore struct {
	path string
}

func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

func (s *TokenStore) Path() string { return s.path }

func (s *TokenStore) Load() (*TokenData, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var data TokenData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse token file %s: %w", s.path, err)
	}
	if data.AccessToken == "" && data.RefreshToken == "" {
		return nil, fmt.Errorf("token file %s holds no credentials", s.path)
	}
	if data.AuthMethod == "" {
		data.AuthMethod = "builder_id"
	}
	return &data, nil
}

// Save writes atomically via a temp file rename so a crash mid-write never
// corrupts the stored credential.
func (s *TokenStore) Save(data *TokenData) error {
	data.LastRefresh = time.Now().Format(time.RFC3339)
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token data: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".token-*.json")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close token file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod token file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}
