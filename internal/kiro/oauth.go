package kiro

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	ssoOIDCTokenURL = "https://oidc.us-east-1.amazonaws.com/token"
	googleTokenURL  = "https://oauth2.googleapis.com/token"
)

// Refresher exchanges a refresh token for fresh credentials.
type Refresher interface {
	Refresh(ctx context.Context, data *TokenData) (*TokenData, error)
}

// OAuthRefresher implements the two refresh flows the Kiro login supports:
// AWS Builder ID (SSO OIDC) and Google social login.
type OAuthRefresher struct {
	httpClient *http.Client
	// googleClientID is configurable because the desktop client ID rotates
	// between releases.
	googleClientID string
}

func NewOAuthRefresher(client *http.Client, googleClientID string) *OAuthRefresher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &OAuthRefresher{httpClient: client, googleClientID: googleClientID}
}

func (r *OAuthRefresher) Refresh(ctx context.Context, data *TokenData) (*TokenData, error) {
	if data == nil || data.RefreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}
	switch data.AuthMethod {
	case "builder_id":
		return r.refreshBuilderID(ctx, data)
	case "google":
		return r.refreshGoogle(ctx, data)
	default:
		return nil, fmt.Errorf("unknown auth method %q", data.AuthMethod)
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

func (r *OAuthRefresher) refreshBuilderID(ctx context.Context, data *TokenData) (*TokenData, error) {
	if data.ClientID == "" || data.ClientSecret == "" {
		return nil, fmt.Errorf("client registration is required for builder_id refresh")
	}
	form := url.Values{
		"client_id":     {data.ClientID},
		"client_secret": {data.ClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {data.RefreshToken},
	}
	resp, err := r.postForm(ctx, ssoOIDCTokenURL, form)
	if err != nil {
		return nil, err
	}
	refreshToken := resp.RefreshToken
	if refreshToken == "" {
		refreshToken = data.RefreshToken
	}
	log.Debug("kiro: builder_id token refreshed")
	return &TokenData{
		AccessToken:  resp.AccessToken,
		RefreshToken: refreshToken,
		IDToken:      resp.IDToken,
		Email:        data.Email,
		ExpiresAt:    expiryFrom(resp.ExpiresIn),
		AuthMethod:   "builder_id",
		Provider:     "aws",
		ClientID:     data.ClientID,
		ClientSecret: data.ClientSecret,
		ProfileArn:   data.ProfileArn,
	}, nil
}

func (r *OAuthRefresher) refreshGoogle(ctx context.Context, data *TokenData) (*TokenData, error) {
	form := url.Values{
		"client_id":     {r.googleClientID},
		"grant_type":    {"refresh_token"},
		"refresh_token": {data.RefreshToken},
	}
	resp, err := r.postForm(ctx, googleTokenURL, form)
	if err != nil {
		return nil, err
	}
	refreshToken := resp.RefreshToken
	if refreshToken == "" {
		// Google only returns a refresh token on first consent.
		refreshToken = data.RefreshToken
	}
	log.Debug("kiro: google token refreshed")
	return &TokenData{
		AccessToken:  resp.AccessToken,
		RefreshToken: refreshToken,
		IDToken:      resp.IDToken,
		Email:        data.Email,
		ExpiresAt:    expiryFrom(resp.ExpiresIn),
		AuthMethod:   "google",
		Provider:     "google",
		ProfileArn:   data.ProfileArn,
	}, nil
}

func (r *OAuthRefresher) postForm(ctx context.Context, endpoint string, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token refresh request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read refresh response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token refresh failed with status %d: %s", resp.StatusCode, string(body))
	}
	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse refresh response: %w", err)
	}
	if parsed.AccessToken == "" {
		return nil, fmt.Errorf("refresh response carried no access token")
	}
	return &parsed, nil
}

func expiryFrom(expiresIn int) string {
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	return time.Now().Add(time.Duration(expiresIn) * time.Second).Format(time.RFC3339)
}
