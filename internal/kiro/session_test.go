package kiro

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRefresher struct {
	calls atomic.Int64
	delay time.Duration
	fail  bool
}

func (f *fakeRefresher) Refresh(ctx context.Context, data *TokenData) (*TokenData, error) {
	n := f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail {
		return nil, fmt.Errorf("refresh rejected")
	}
	return &TokenData{
		AccessToken:  fmt.Sprintf("token-%d", n),
		RefreshToken: data.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Hour).Format(time.RFC3339),
		AuthMethod:   data.AuthMethod,
		ProfileArn:   data.ProfileArn,
	}, nil
}

func writeTokenFile(t *testing.T, data *TokenData) *TokenStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token.json")
	store := NewTokenStore(path)
	if err := store.Save(data); err != nil {
		t.Fatalf("seed token file: %v", err)
	}
	return store
}

func TestSession_FreshTokenSkipsRefresh(t *testing.T) {
	store := writeTokenFile(t, &TokenData{
		AccessToken:  "fresh",
		RefreshToken: "r",
		ExpiresAt:    time.Now().Add(time.Hour).Format(time.RFC3339),
		AuthMethod:   "builder_id",
		ProfileArn:   "arn:x",
	})
	ref := &fakeRefresher{}
	sess, err := NewSession(store, ref)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	token, arn, err := sess.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if token != "fresh" || arn != "arn:x" {
		t.Errorf("token/arn = %q/%q", token, arn)
	}
	if ref.calls.Load() != 0 {
		t.Errorf("refresher called %d times for fresh token", ref.calls.Load())
	}
	if !sess.Valid() {
		t.Error("session should report valid")
	}
}

func TestSession_ExpiredTokenRefreshesOnce(t *testing.T) {
	store := writeTokenFile(t, &TokenData{
		AccessToken:  "stale",
		RefreshToken: "r",
		ExpiresAt:    time.Now().Add(-time.Minute).Format(time.RFC3339),
		AuthMethod:   "builder_id",
	})
	ref := &fakeRefresher{delay: 20 * time.Millisecond}
	sess, err := NewSession(store, ref)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	// Concurrent expired callers must coalesce into one refresh.
	const callers = 16
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, _, err := sess.AccessToken(context.Background())
			if err != nil {
				t.Errorf("AccessToken: %v", err)
				return
			}
			tokens[i] = token
		}(i)
	}
	wg.Wait()

	if got := ref.calls.Load(); got != 1 {
		t.Errorf("refresher called %d times, want 1", got)
	}
	for _, token := range tokens {
		if token != "token-1" {
			t.Errorf("caller saw token %q", token)
		}
	}

	// The refreshed credential must have been persisted.
	reloaded, err := store.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.AccessToken != "token-1" {
		t.Errorf("persisted token = %q", reloaded.AccessToken)
	}
}

func TestSession_ForceRefresh(t *testing.T) {
	store := writeTokenFile(t, &TokenData{
		AccessToken:  "valid-but-rejected",
		RefreshToken: "r",
		ExpiresAt:    time.Now().Add(time.Hour).Format(time.RFC3339),
		AuthMethod:   "builder_id",
	})
	ref := &fakeRefresher{}
	sess, err := NewSession(store, ref)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	token, _, err := sess.ForceRefresh(context.Background())
	if err != nil {
		t.Fatalf("ForceRefresh: %v", err)
	}
	if token != "token-1" {
		t.Errorf("token = %q", token)
	}
	if ref.calls.Load() != 1 {
		t.Errorf("refresher called %d times", ref.calls.Load())
	}
}

func TestSession_RefreshFailure(t *testing.T) {
	store := writeTokenFile(t, &TokenData{
		AccessToken:  "stale",
		RefreshToken: "r",
		ExpiresAt:    time.Now().Add(-time.Minute).Format(time.RFC3339),
		AuthMethod:   "builder_id",
	})
	sess, err := NewSession(store, &fakeRefresher{fail: true})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if _, _, err := sess.AccessToken(context.Background()); err == nil {
		t.Error("expected refresh failure to surface")
	}
}

func TestTokenStore_SaveIsAtomic(t *testing.T) {
	store := writeTokenFile(t, &TokenData{
		AccessToken: "a", RefreshToken: "r", AuthMethod: "builder_id",
	})
	// No temp files must remain next to the token after Save.
	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the token file, found %d entries", len(entries))
	}

	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("token file mode = %v", info.Mode().Perm())
	}
}

func TestTokenData_ExpiresWithin(t *testing.T) {
	fresh := &TokenData{ExpiresAt: time.Now().Add(time.Hour).Format(time.RFC3339)}
	if fresh.ExpiresWithin(time.Minute) {
		t.Error("hour-long token should not be inside a minute margin")
	}
	if !fresh.ExpiresWithin(2 * time.Hour) {
		t.Error("hour-long token is inside a two-hour margin")
	}
	unknown := &TokenData{}
	if !unknown.ExpiresWithin(0) {
		t.Error("unknown expiry must count as expiring")
	}
}
