package lulu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tournevent/printbridge/pkg/printer"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Grant types sent to the token endpoint.
const (
	GrantClientCredentials = "client_credentials"
	GrantRefreshToken      = "refresh_token"
)

// tokenLifetimeFactor is the share of a token's TTL after which it is treated
// as expired.
const tokenLifetimeFactor = 0.75

// renewTimeout bounds a shared renewal, including the wait for the store lock.
const renewTimeout = time.Minute

// TokenStore persists token pairs per credential mode.
// GetToken returns (nil, nil) when no pair is stored.
type TokenStore interface {
	GetToken(ctx context.Context, mode printer.Mode) (*printer.TokenPair, error)
	SaveToken(ctx context.Context, mode printer.Mode, pair *printer.TokenPair) error
	DeleteToken(ctx context.Context, mode printer.Mode) error
}

// TokenLocker is implemented by stores shared between processes. The returned
// function releases the lock.
type TokenLocker interface {
	LockToken(ctx context.Context, mode printer.Mode) (func(), error)
}

// TokenManagerConfig holds configuration for a TokenManager.
type TokenManagerConfig struct {
	Credentials       printer.Credentials
	SandboxBaseURL    string
	ProductionBaseURL string
	Store             TokenStore
	HTTPClient        *http.Client
	Clock             func() time.Time
	Logger            *otelzap.Logger

	// OnGrant, when set, is called after every token grant attempt.
	OnGrant func(grantType string, err error)
}

// TokenManager obtains and caches bearer tokens for the Lulu API.
// Renewals are serialized per mode: concurrent callers share one grant request.
type TokenManager struct {
	sandboxBaseURL    string
	productionBaseURL string
	store             TokenStore
	httpClient        *http.Client
	now               func() time.Time
	logger            *otelzap.Logger
	onGrant           func(string, error)

	mu         sync.RWMutex
	creds      printer.Credentials
	generation uint64

	group singleflight.Group
}

// NewTokenManager creates a token manager. A memory store is used when none is configured.
func NewTokenManager(cfg TokenManagerConfig) *TokenManager {
	m := &TokenManager{
		sandboxBaseURL:    cfg.SandboxBaseURL,
		productionBaseURL: cfg.ProductionBaseURL,
		store:             cfg.Store,
		httpClient:        cfg.HTTPClient,
		now:               cfg.Clock,
		logger:            cfg.Logger,
		onGrant:           cfg.OnGrant,
		creds:             cfg.Credentials,
	}
	if m.sandboxBaseURL == "" {
		m.sandboxBaseURL = SandboxBaseURL
	}
	if m.productionBaseURL == "" {
		m.productionBaseURL = ProductionBaseURL
	}
	if m.store == nil {
		m.store = NewMemoryTokenStore()
	}
	if m.httpClient == nil {
		m.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = otelzap.New(zap.NewNop())
	}
	if m.creds.Mode == "" {
		m.creds.Mode = printer.ModeSandbox
	}
	return m
}

// Mode returns the active credential mode.
func (m *TokenManager) Mode() printer.Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds.Mode
}

// BaseURL returns the API base URL for the active mode.
func (m *TokenManager) BaseURL() string {
	if m.Mode() == printer.ModeProduction {
		return m.productionBaseURL
	}
	return m.sandboxBaseURL
}

// SetCredentials replaces the credentials. Cached tokens are dropped when the
// mode or either key changes, so the next call authenticates with the new key.
func (m *TokenManager) SetCredentials(ctx context.Context, creds printer.Credentials) error {
	if creds.Mode == "" {
		creds.Mode = printer.ModeSandbox
	}

	m.mu.Lock()
	changed := m.creds != creds
	m.creds = creds
	if changed {
		m.generation++
	}
	m.mu.Unlock()

	if !changed {
		return nil
	}
	m.logger.Info("Printer credentials changed, invalidating cached tokens",
		zap.String("mode", string(creds.Mode)),
	)
	return m.Invalidate(ctx)
}

// Invalidate deletes the cached tokens of both modes.
func (m *TokenManager) Invalidate(ctx context.Context) error {
	var errs []error
	for _, mode := range []printer.Mode{printer.ModeSandbox, printer.ModeProduction} {
		if err := m.store.DeleteToken(ctx, mode); err != nil {
			errs = append(errs, fmt.Errorf("deleting %s token: %w", mode, err))
		}
	}
	return errors.Join(errs...)
}

// AuthHeaders returns the headers for an authenticated JSON request.
func (m *TokenManager) AuthHeaders(ctx context.Context) (http.Header, error) {
	token, err := m.Token(ctx)
	if err != nil {
		return nil, err
	}
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+token)
	h.Set("Content-Type", "application/json")
	return h, nil
}

// Token returns a valid access token, authenticating or refreshing as needed.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	creds, gen := m.snapshot()

	pair, err := m.store.GetToken(ctx, creds.Mode)
	if err != nil {
		return "", fmt.Errorf("%w: reading token cache: %w", printer.ErrAuth, err)
	}
	if pair.AccessValid(m.now()) {
		return pair.AccessToken, nil
	}

	// The shared renewal ignores the cancellation of the caller that started it.
	ch := m.group.DoChan(string(creds.Mode), func() (interface{}, error) {
		renewCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), renewTimeout)
		defer cancel()
		return m.renew(renewCtx, creds, gen)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (m *TokenManager) snapshot() (printer.Credentials, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds, m.generation
}

// renew performs one grant for mode. An expired access token is handled the
// same as a missing one: refresh when a usable refresh token exists, otherwise
// authenticate from scratch.
func (m *TokenManager) renew(ctx context.Context, creds printer.Credentials, gen uint64) (string, error) {
	mode := creds.Mode

	if locker, ok := m.store.(TokenLocker); ok {
		unlock, err := locker.LockToken(ctx, mode)
		if err != nil {
			return "", fmt.Errorf("%w: locking token cache: %w", printer.ErrAuth, err)
		}
		defer unlock()
	}

	// Another caller or process may have renewed while we waited.
	pair, err := m.store.GetToken(ctx, mode)
	if err != nil {
		return "", fmt.Errorf("%w: reading token cache: %w", printer.ErrAuth, err)
	}
	now := m.now()
	if pair.AccessValid(now) {
		return pair.AccessToken, nil
	}

	form := url.Values{}
	grant := GrantClientCredentials
	if pair.RefreshValid(now) {
		grant = GrantRefreshToken
		form.Set("refresh_token", pair.RefreshToken)
	}
	form.Set("grant_type", grant)

	issued, err := m.requestToken(ctx, creds, form)
	if m.onGrant != nil {
		m.onGrant(grant, err)
	}
	if err != nil {
		m.logger.Error("Printer token grant failed",
			zap.String("mode", string(mode)),
			zap.String("grant_type", grant),
			zap.Error(err),
		)
		var apiErr *printer.APIError
		if grant == GrantRefreshToken && errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			// The refresh token was rejected; start over on the next call.
			if delErr := m.store.DeleteToken(ctx, mode); delErr != nil {
				m.logger.Warn("Failed to drop rejected token", zap.Error(delErr))
			}
		}
		return "", err
	}

	next := &printer.TokenPair{
		AccessToken:   issued.AccessToken,
		AccessExpiry:  expiry(now, issued.ExpiresIn),
		RefreshToken:  issued.RefreshToken,
		RefreshExpiry: expiry(now, issued.RefreshExpiresIn),
	}

	if _, current := m.snapshot(); current != gen {
		// Credentials changed mid-flight; the token belongs to the old key.
		return "", fmt.Errorf("%w: credentials changed during authentication", printer.ErrAuth)
	}
	if err := m.store.SaveToken(ctx, mode, next); err != nil {
		m.logger.Warn("Failed to cache printer token", zap.Error(err))
	}

	m.logger.Debug("Printer token issued",
		zap.String("mode", string(mode)),
		zap.String("grant_type", grant),
		zap.Time("access_expiry", next.AccessExpiry),
	)
	return next.AccessToken, nil
}

func (m *TokenManager) requestToken(ctx context.Context, creds printer.Credentials, form url.Values) (*TokenResponse, error) {
	key := creds.ActiveKey()
	if key == "" {
		return nil, fmt.Errorf("%w: no API key configured for %s", printer.ErrAuth, creds.Mode)
	}

	base := m.sandboxBaseURL
	if creds.Mode == printer.ModeProduction {
		base = m.productionBaseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+pathAuthToken, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: creating token request: %w", printer.ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", authorizationValue(key))

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", printer.ErrAuth, printer.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: reading token response: %w", printer.ErrAuth, printer.ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %w", printer.ErrAuth, decodeError(resp.StatusCode, body))
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("%w: %w", printer.ErrAuth, &printer.ParseError{
			Operation: "token", StatusCode: resp.StatusCode, Cause: err,
		})
	}
	if tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		return nil, fmt.Errorf("%w: token response carried no access token", printer.ErrAuth)
	}
	return &tr, nil
}

// authorizationValue turns a stored base64 "key:secret" into a Basic header
// value. Keys stored with their scheme are sent unchanged.
func authorizationValue(key string) string {
	key = strings.TrimSpace(key)
	if strings.HasPrefix(strings.ToLower(key), "basic ") {
		return key
	}
	return "Basic " + key
}

func expiry(issued time.Time, ttlSeconds int64) time.Time {
	if ttlSeconds <= 0 {
		return issued
	}
	ttl := time.Duration(float64(ttlSeconds) * tokenLifetimeFactor * float64(time.Second))
	return issued.Add(ttl)
}

// MemoryTokenStore is a process-local TokenStore.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[printer.Mode]printer.TokenPair
}

// NewMemoryTokenStore creates an empty memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[printer.Mode]printer.TokenPair)}
}

// GetToken returns a copy of the stored pair.
func (s *MemoryTokenStore) GetToken(ctx context.Context, mode printer.Mode) (*printer.TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pair, ok := s.tokens[mode]
	if !ok {
		return nil, nil
	}
	return &pair, nil
}

// SaveToken replaces the stored pair.
func (s *MemoryTokenStore) SaveToken(ctx context.Context, mode printer.Mode, pair *printer.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[mode] = *pair
	return nil
}

// DeleteToken removes the stored pair.
func (s *MemoryTokenStore) DeleteToken(ctx context.Context, mode printer.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, mode)
	return nil
}

var _ TokenStore = (*MemoryTokenStore)(nil)
