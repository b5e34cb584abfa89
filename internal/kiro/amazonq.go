package kiro

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Amazon Q CLI keeps its OAuth state in a key/value SQLite table. Importing
// it lets a machine that already ran `q login` feed the gateway without a
// separate login flow.
const (
	amazonQTokenKey        = "codewhisperer:odic:token"
	amazonQRegistrationKey = "codewhisperer:odic:device-registration"
)

type amazonQToken struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresAt    string  `json:"expires_at"`
	Region       string  `json:"region"`
	StartURL     *string `json:"start_url"`
}

type amazonQRegistration struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// DefaultAmazonQDBPath returns the Amazon Q CLI database location for the
// current user.
func DefaultAmazonQDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", "amazon-q", "data.sqlite3"), nil
}

// ImportAmazonQToken reads the Amazon Q CLI credential out of its SQLite
// store and converts it into our token shape. The database is opened
// read-only so a concurrently running CLI is never disturbed.
func ImportAmazonQToken(dbPath string) (*TokenData, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("amazon-q database not found at %s: %w", dbPath, err)
	}

	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open amazon-q database: %w", err)
	}
	defer db.Close()

	var tokenJSON string
	if err := db.QueryRow("SELECT value FROM auth_kv WHERE key = ?", amazonQTokenKey).Scan(&tokenJSON); err != nil {
		return nil, fmt.Errorf("read amazon-q token: %w", err)
	}
	var token amazonQToken
	if err := json.Unmarshal([]byte(tokenJSON), &token); err != nil {
		return nil, fmt.Errorf("parse amazon-q token: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("amazon-q token record is empty, run `q login` first")
	}

	data := &TokenData{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    normalizeExpiry(token.ExpiresAt),
		AuthMethod:   "builder_id",
		Provider:     "amazon-q-cli",
	}

	// The device registration carries the OIDC client credentials needed
	// to refresh; tolerate its absence and run until the token expires.
	var regJSON string
	err = db.QueryRow("SELECT value FROM auth_kv WHERE key = ?", amazonQRegistrationKey).Scan(&regJSON)
	switch {
	case err == sql.ErrNoRows:
		log.Warn("kiro: amazon-q device registration missing, token refresh unavailable")
	case err != nil:
		return nil, fmt.Errorf("read amazon-q device registration: %w", err)
	default:
		var reg amazonQRegistration
		if err := json.Unmarshal([]byte(regJSON), &reg); err != nil {
			return nil, fmt.Errorf("parse amazon-q device registration: %w", err)
		}
		data.ClientID = reg.ClientID
		data.ClientSecret = reg.ClientSecret
	}

	return data, nil
}

// normalizeExpiry reformats the CLI's timestamp (RFC3339, sometimes with
// fractional seconds) to plain RFC3339.
func normalizeExpiry(ts string) string {
	if ts == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano} {
		if parsed, err := time.Parse(layout, ts); err == nil {
			return parsed.Format(time.RFC3339)
		}
	}
	return ""
}
