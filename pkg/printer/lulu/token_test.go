package lulu_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/printbridge/pkg/printer"
	"github.com/tournevent/printbridge/pkg/printer/lulu"
)

const tokenPath = "/auth/realms/glasstree/protocol/openid-connect/token"

type tokenServer struct {
	*httptest.Server
	clientCredentials atomic.Int32
	refreshes         atomic.Int32
	lastAuth          atomic.Value
	status            atomic.Int32
	delay             atomic.Int64
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.status.Store(http.StatusOK)
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != tokenPath {
			http.NotFound(w, r)
			return
		}
		_ = r.ParseForm()
		ts.lastAuth.Store(r.Header.Get("Authorization"))

		if d := time.Duration(ts.delay.Load()); d > 0 {
			time.Sleep(d)
		}

		var n int32
		switch r.PostForm.Get("grant_type") {
		case lulu.GrantClientCredentials:
			n = ts.clientCredentials.Add(1)
		case lulu.GrantRefreshToken:
			n = ts.refreshes.Add(1)
		default:
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if status := int(ts.status.Load()); status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"detail":"invalid_grant"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":       r.PostForm.Get("grant_type") + "-access-" + string(rune('0'+n)),
			"expires_in":         3600,
			"refresh_token":      r.PostForm.Get("grant_type") + "-refresh-" + string(rune('0'+n)),
			"refresh_expires_in": 7200,
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newManager(ts *tokenServer, store lulu.TokenStore, clock *fakeClock) *lulu.TokenManager {
	return lulu.NewTokenManager(lulu.TokenManagerConfig{
		Credentials: printer.Credentials{
			Mode:          printer.ModeSandbox,
			SandboxKey:    "c2FuZGJveDpzZWNyZXQ=",
			ProductionKey: "cHJvZDpzZWNyZXQ=",
		},
		SandboxBaseURL:    ts.URL,
		ProductionBaseURL: ts.URL,
		Store:             store,
		Clock:             clock.Now,
	})
}

func TestTokenManager_FirstCallUsesClientCredentials(t *testing.T) {
	ts := newTokenServer(t)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := lulu.NewMemoryTokenStore()
	m := newManager(ts, store, clock)

	headers, err := m.AuthHeaders(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Bearer client_credentials-access-1", headers.Get("Authorization"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, int32(1), ts.clientCredentials.Load())
	assert.Equal(t, "Basic c2FuZGJveDpzZWNyZXQ=", ts.lastAuth.Load())

	pair, err := store.GetToken(context.Background(), printer.ModeSandbox)
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.Equal(t, clock.Now().Add(45*time.Minute), pair.AccessExpiry)
	assert.Equal(t, clock.Now().Add(90*time.Minute), pair.RefreshExpiry)
}

func TestTokenManager_ValidTokenMakesNoNetworkCall(t *testing.T) {
	ts := newTokenServer(t)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := lulu.NewMemoryTokenStore()
	require.NoError(t, store.SaveToken(context.Background(), printer.ModeSandbox, &printer.TokenPair{
		AccessToken:   "cached",
		AccessExpiry:  clock.Now().Add(time.Minute),
		RefreshToken:  "cached-refresh",
		RefreshExpiry: clock.Now().Add(time.Hour),
	}))
	m := newManager(ts, store, clock)

	token, err := m.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "cached", token)
	assert.Zero(t, ts.clientCredentials.Load())
	assert.Zero(t, ts.refreshes.Load())
}

func TestTokenManager_ExpiredAccessRefreshesOnce(t *testing.T) {
	ts := newTokenServer(t)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := lulu.NewMemoryTokenStore()
	require.NoError(t, store.SaveToken(context.Background(), printer.ModeSandbox, &printer.TokenPair{
		AccessToken:   "stale",
		AccessExpiry:  clock.Now(),
		RefreshToken:  "cached-refresh",
		RefreshExpiry: clock.Now().Add(time.Hour),
	}))
	m := newManager(ts, store, clock)

	token, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refresh_token-access-1", token)

	token, err = m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refresh_token-access-1", token)

	assert.Equal(t, int32(1), ts.refreshes.Load())
	assert.Zero(t, ts.clientCredentials.Load())

	pair, err := store.GetToken(context.Background(), printer.ModeSandbox)
	require.NoError(t, err)
	assert.Equal(t, "refresh_token-access-1", pair.AccessToken)
	assert.Equal(t, "refresh_token-refresh-1", pair.RefreshToken)
}

func TestTokenManager_ExpiredAccessWithoutRefreshReauthenticates(t *testing.T) {
	ts := newTokenServer(t)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := lulu.NewMemoryTokenStore()
	require.NoError(t, store.SaveToken(context.Background(), printer.ModeSandbox, &printer.TokenPair{
		AccessToken:  "stale",
		AccessExpiry: clock.Now().Add(-time.Second),
	}))
	m := newManager(ts, store, clock)

	token, err := m.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "client_credentials-access-1", token)
	assert.Equal(t, int32(1), ts.clientCredentials.Load())
	assert.Zero(t, ts.refreshes.Load())
}

func TestTokenManager_RefreshAfterMargin(t *testing.T) {
	ts := newTokenServer(t)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := newManager(ts, lulu.NewMemoryTokenStore(), clock)

	_, err := m.Token(context.Background())
	require.NoError(t, err)

	clock.Advance(44 * time.Minute)
	_, err = m.Token(context.Background())
	require.NoError(t, err)
	assert.Zero(t, ts.refreshes.Load())

	clock.Advance(time.Minute)
	token, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refresh_token-access-1", token)
	assert.Equal(t, int32(1), ts.refreshes.Load())
	assert.Equal(t, int32(1), ts.clientCredentials.Load())
}

func TestTokenManager_ConcurrentCallersShareOneGrant(t *testing.T) {
	ts := newTokenServer(t)
	ts.delay.Store(int64(50 * time.Millisecond))
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := newManager(ts, lulu.NewMemoryTokenStore(), clock)

	var wg sync.WaitGroup
	tokens := make([]string, 20)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := m.Token(context.Background())
			assert.NoError(t, err)
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), ts.clientCredentials.Load())
	for _, tok := range tokens {
		assert.Equal(t, "client_credentials-access-1", tok)
	}
}

func TestTokenManager_GrantFailureIsAuthError(t *testing.T) {
	ts := newTokenServer(t)
	ts.status.Store(http.StatusUnauthorized)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := lulu.NewMemoryTokenStore()
	m := newManager(ts, store, clock)

	_, err := m.AuthHeaders(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, printer.ErrAuth)
	assert.Equal(t, "auth", printer.Kind(err))

	pair, err := store.GetToken(context.Background(), printer.ModeSandbox)
	require.NoError(t, err)
	assert.Nil(t, pair)
}

func TestTokenManager_RejectedRefreshDropsPair(t *testing.T) {
	ts := newTokenServer(t)
	ts.status.Store(http.StatusBadRequest)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := lulu.NewMemoryTokenStore()
	require.NoError(t, store.SaveToken(context.Background(), printer.ModeSandbox, &printer.TokenPair{
		AccessToken:   "stale",
		AccessExpiry:  clock.Now().Add(-time.Minute),
		RefreshToken:  "revoked",
		RefreshExpiry: clock.Now().Add(time.Hour),
	}))
	m := newManager(ts, store, clock)

	_, err := m.Token(context.Background())
	assert.ErrorIs(t, err, printer.ErrAuth)

	pair, err := store.GetToken(context.Background(), printer.ModeSandbox)
	require.NoError(t, err)
	assert.Nil(t, pair)

	ts.status.Store(http.StatusOK)
	token, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "client_credentials-access-1", token)
}

func TestTokenManager_MissingKeySkipsNetwork(t *testing.T) {
	ts := newTokenServer(t)
	m := lulu.NewTokenManager(lulu.TokenManagerConfig{
		Credentials:    printer.Credentials{Mode: printer.ModeProduction, SandboxKey: "only-sandbox"},
		SandboxBaseURL: ts.URL, ProductionBaseURL: ts.URL,
	})

	_, err := m.Token(context.Background())
	assert.ErrorIs(t, err, printer.ErrAuth)
	assert.Zero(t, ts.clientCredentials.Load())
}

func TestTokenManager_SetCredentialsInvalidates(t *testing.T) {
	ts := newTokenServer(t)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := lulu.NewMemoryTokenStore()
	m := newManager(ts, store, clock)

	_, err := m.Token(context.Background())
	require.NoError(t, err)

	// Unchanged credentials keep the cache.
	require.NoError(t, m.SetCredentials(context.Background(), printer.Credentials{
		Mode:          printer.ModeSandbox,
		SandboxKey:    "c2FuZGJveDpzZWNyZXQ=",
		ProductionKey: "cHJvZDpzZWNyZXQ=",
	}))
	pair, err := store.GetToken(context.Background(), printer.ModeSandbox)
	require.NoError(t, err)
	assert.NotNil(t, pair)

	require.NoError(t, m.SetCredentials(context.Background(), printer.Credentials{
		Mode:       printer.ModeSandbox,
		SandboxKey: "Basic bmV3OmtleQ==",
	}))
	pair, err = store.GetToken(context.Background(), printer.ModeSandbox)
	require.NoError(t, err)
	assert.Nil(t, pair)

	_, err = m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), ts.clientCredentials.Load())
	assert.Equal(t, "Basic bmV3OmtleQ==", ts.lastAuth.Load())
}

func TestTokenManager_BaseURLFollowsMode(t *testing.T) {
	m := lulu.NewTokenManager(lulu.TokenManagerConfig{
		Credentials: printer.Credentials{Mode: printer.ModeProduction},
	})
	assert.Equal(t, lulu.ProductionBaseURL, m.BaseURL())

	require.NoError(t, m.SetCredentials(context.Background(), printer.Credentials{}))
	assert.Equal(t, printer.ModeSandbox, m.Mode())
	assert.Equal(t, lulu.SandboxBaseURL, m.BaseURL())
}

func TestTokenManager_CancelledCallerLeavesSharedGrant(t *testing.T) {
	ts := newTokenServer(t)
	ts.delay.Store(int64(100 * time.Millisecond))
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := newManager(ts, lulu.NewMemoryTokenStore(), clock)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := m.Token(firstCtx)
		firstErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	secondTok := make(chan string, 1)
	go func() {
		tok, err := m.Token(context.Background())
		assert.NoError(t, err)
		secondTok <- tok
	}()
	cancel()

	assert.ErrorIs(t, <-firstErr, context.Canceled)
	assert.Equal(t, "client_credentials-access-1", <-secondTok)
	assert.Equal(t, int32(1), ts.clientCredentials.Load())
}
