package kiro

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// refreshMargin triggers a proactive refresh before the recorded expiry so
// in-flight requests never race the deadline.
const refreshMargin = 5 * time.Minute

// Session owns the upstream credential for the process. Reads are cheap;
// refreshes are deduplicated so concurrent expired callers trigger exactly
// one upstream exchange.
type Session struct {
	store     *TokenStore
	refresher Refresher

	mu   sync.RWMutex
	data *TokenData

	sf singleflight.Group
}

func NewSession(store *TokenStore, refresher Refresher) (*Session, error) {
	data, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Session{store: store, refresher: refresher, data: data}, nil
}

// Current returns the cached credential without touching the network.
func (s *Session) Current() *TokenData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// Valid reports whether the cached access token is usable right now.
func (s *Session) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data != nil && s.data.AccessToken != "" && !s.data.ExpiresWithin(0)
}

// AccessToken returns a usable bearer token and the profile ARN, refreshing
// first when the cached token is expired or inside the refresh margin.
func (s *Session) AccessToken(ctx context.Context) (token, profileArn string, err error) {
	s.mu.RLock()
	data := s.data
	s.mu.RUnlock()

	if data != nil && data.AccessToken != "" && !data.ExpiresWithin(refreshMargin) {
		return data.AccessToken, data.ProfileArn, nil
	}
	data, err = s.refresh(ctx)
	if err != nil {
		return "", "", err
	}
	return data.AccessToken, data.ProfileArn, nil
}

// ForceRefresh discards the cached token and exchanges the refresh token.
// Used after the upstream rejects a token that looked valid locally.
func (s *Session) ForceRefresh(ctx context.Context) (token, profileArn string, err error) {
	data, err := s.refresh(ctx)
	if err != nil {
		return "", "", err
	}
	return data.AccessToken, data.ProfileArn, nil
}

func (s *Session) refresh(ctx context.Context) (*TokenData, error) {
	v, err, shared := s.sf.Do("refresh", func() (any, error) {
		s.mu.RLock()
		old := s.data
		s.mu.RUnlock()
		if old == nil {
			return nil, fmt.Errorf("no credential loaded")
		}

		fresh, err := s.refresher.Refresh(ctx, old)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.data = fresh
		s.mu.Unlock()

		if err := s.store.Save(fresh); err != nil {
			// The in-memory credential is already updated; losing the
			// write only costs a refresh on next restart.
			log.Warnf("kiro: persisting refreshed token failed: %v", err)
		}
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug("kiro: token refresh coalesced with concurrent caller")
	}
	return v.(*TokenData), nil
}
