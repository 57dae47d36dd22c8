// Package reddit implements the authenticated Reddit upstream adapter:
// OAuth token lifecycle, post search and subreddit listings, and the
// normalization of upstream payloads into stable internal records.
package reddit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/contentpulse/inspiration-api/internal/apperr"
	"github.com/contentpulse/inspiration-api/internal/platform/observability"
)

// earlyExpiry is subtracted from the upstream TTL so a token is never used
// while it could expire mid-flight.
const earlyExpiry = 5 * time.Minute

// TokenManager owns the OAuth token for the Reddit upstream. The token is
// process-local and never persisted; a restart forces one re-authentication.
type TokenManager struct {
	tokenURL     string
	clientID     string
	clientSecret string
	username     string
	password     string
	userAgent    string

	client  *http.Client
	logger  *observability.Logger
	metrics *observability.Metrics

	// group collapses concurrent refreshes of an expired token into a
	// single credential exchange. Correctness does not depend on it;
	// racing refreshes would just waste upstream calls.
	group singleflight.Group

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	now func() time.Time
}

// TokenManagerConfig holds token manager configuration
type TokenManagerConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	Timeout      time.Duration
	Logger       *observability.Logger
	Metrics      *observability.Metrics
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(cfg TokenManagerConfig) *TokenManager {
	if cfg.TokenURL == "" {
		cfg.TokenURL = "https://www.reddit.com/api/v1/access_token"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "inspiration-api/1.0"
	}

	return &TokenManager{
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		username:     cfg.Username,
		password:     cfg.Password,
		userAgent:    cfg.UserAgent,
		client:       &http.Client{Timeout: cfg.Timeout},
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		now:          time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Token returns a valid bearer token, performing a credential exchange only
// when the cached token is absent or expired.
func (tm *TokenManager) Token(ctx context.Context) (string, error) {
	tm.mu.RLock()
	token, expiresAt := tm.token, tm.expiresAt
	tm.mu.RUnlock()

	if token != "" && tm.now().Before(expiresAt) {
		return token, nil
	}

	val, err, _ := tm.group.Do("refresh", func() (interface{}, error) {
		// Another caller may have refreshed while we waited on the flight.
		tm.mu.RLock()
		token, expiresAt := tm.token, tm.expiresAt
		tm.mu.RUnlock()
		if token != "" && tm.now().Before(expiresAt) {
			return token, nil
		}
		return tm.exchange(ctx)
	})
	if err != nil {
		return "", err
	}
	return val.(string), nil
}

// exchange performs the resource-owner password grant against the token
// endpoint and caches the result.
func (tm *TokenManager) exchange(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", tm.username)
	form.Set("password", tm.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", apperr.Wrap(apperr.KindAuth, "failed to build token request", err)
	}
	req.SetBasicAuth(tm.clientID, tm.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", tm.userAgent)

	resp, err := tm.client.Do(req)
	if err != nil {
		tm.recordRefresh(ctx, "error")
		return "", apperr.Wrap(apperr.KindAuth, "credential exchange failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		tm.recordRefresh(ctx, "rejected")
		return "", apperr.Newf(apperr.KindAuth, "credential exchange rejected with status %d: %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		tm.recordRefresh(ctx, "error")
		return "", apperr.Wrap(apperr.KindAuth, "failed to decode token response", err)
	}
	if tr.AccessToken == "" {
		tm.recordRefresh(ctx, "rejected")
		return "", apperr.New(apperr.KindAuth, "credential exchange returned an empty token")
	}

	ttl := time.Duration(tr.ExpiresIn) * time.Second
	if ttl <= earlyExpiry {
		// Degenerate upstream TTL; keep the token for half its lifetime.
		ttl = ttl/2 + time.Second
	} else {
		ttl -= earlyExpiry
	}

	tm.mu.Lock()
	tm.token = tr.AccessToken
	tm.expiresAt = tm.now().Add(ttl)
	tm.mu.Unlock()

	tm.recordRefresh(ctx, "success")
	if tm.logger != nil {
		tm.logger.Debug("refreshed reddit token", "valid_for", ttl.String())
	}

	return tr.AccessToken, nil
}

// Invalidate drops the cached token, forcing an exchange on the next call.
func (tm *TokenManager) Invalidate() {
	tm.mu.Lock()
	tm.token = ""
	tm.expiresAt = time.Time{}
	tm.mu.Unlock()
}

func (tm *TokenManager) recordRefresh(ctx context.Context, status string) {
	if tm.metrics != nil {
		tm.metrics.RecordTokenRefresh(ctx, "reddit", status)
	}
}
