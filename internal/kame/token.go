package kame

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/vitroscience/vitro-bi/pkg/errors"
)

const (
	defaultTokenTTL = 24 * time.Hour
	expiryMargin    = time.Minute
	bodyReadLimit   = 1024
)

// TokenCache shares access tokens between processes. pkg/redis.Client
// satisfies it.
type TokenCache interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type cachedToken struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

// TokenSourceParams configure the client-credentials token source.
type TokenSourceParams struct {
	HTTPClient   *http.Client
	TokenURL     string
	ClientID     string
	ClientSecret string
	Audience     string
	Cache        TokenCache
	CacheKey     string
}

// TokenSource fetches and caches OAuth client-credentials tokens.
type TokenSource struct {
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	audience     string
	cache        TokenCache
	cacheKey     string
	now          func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenSource(params TokenSourceParams) (*TokenSource, error) {
	if strings.TrimSpace(params.TokenURL) == "" {
		return nil, fmt.Errorf("token url required")
	}
	if params.ClientID == "" || params.ClientSecret == "" {
		return nil, fmt.Errorf("client credentials required")
	}
	httpClient := params.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenSource{
		httpClient:   httpClient,
		tokenURL:     params.TokenURL,
		clientID:     params.ClientID,
		clientSecret: params.ClientSecret,
		audience:     params.Audience,
		cache:        params.Cache,
		cacheKey:     params.CacheKey,
		now:          time.Now,
	}, nil
}

// Token returns a valid access token, requesting a new one when the
// cached token is missing or about to expire.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Before(s.expiresAt) {
		return s.token, nil
	}
	if cached, ok := s.fromCache(ctx, now); ok {
		s.token, s.expiresAt = cached.AccessToken, time.Unix(cached.ExpiresAt, 0)
		return s.token, nil
	}

	token, ttl, err := s.request(ctx)
	if err != nil {
		return "", err
	}
	s.token = token
	s.expiresAt = now.Add(ttl)
	s.toCache(ctx, ttl)
	return s.token, nil
}

// Invalidate drops the current token everywhere it is cached.
func (s *TokenSource) Invalidate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiresAt = time.Time{}
	if s.cache != nil && s.cacheKey != "" {
		_ = s.cache.Del(ctx, s.cacheKey)
	}
}

func (s *TokenSource) fromCache(ctx context.Context, now time.Time) (cachedToken, bool) {
	if s.cache == nil || s.cacheKey == "" {
		return cachedToken{}, false
	}
	raw, ok, err := s.cache.Lookup(ctx, s.cacheKey)
	if err != nil || !ok {
		return cachedToken{}, false
	}
	var cached cachedToken
	if err := json.Unmarshal([]byte(raw), &cached); err != nil || cached.AccessToken == "" {
		return cachedToken{}, false
	}
	if !now.Before(time.Unix(cached.ExpiresAt, 0)) {
		return cachedToken{}, false
	}
	return cached, true
}

func (s *TokenSource) toCache(ctx context.Context, ttl time.Duration) {
	if s.cache == nil || s.cacheKey == "" {
		return
	}
	payload, err := json.Marshal(cachedToken{AccessToken: s.token, ExpiresAt: s.expiresAt.Unix()})
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, s.cacheKey, string(payload), ttl)
}

func (s *TokenSource) request(ctx context.Context) (string, time.Duration, error) {
	payload, err := json.Marshal(map[string]string{
		"client_id":     s.clientID,
		"client_secret": s.clientSecret,
		"audience":      s.audience,
		"grant_type":    "client_credentials",
	})
	if err != nil {
		return "", 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal token request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, bytes.NewReader(payload))
	if err != nil {
		return "", 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build token request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute token request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, bodyReadLimit))
		return "", 0, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "token request failed")
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode token response")
	}
	if body.AccessToken == "" {
		return "", 0, pkgerrors.New(pkgerrors.CodeDependency, "token response missing access_token")
	}
	ttl := defaultTokenTTL
	if body.ExpiresIn > 0 {
		ttl = time.Duration(body.ExpiresIn) * time.Second
	}
	if ttl > expiryMargin {
		ttl -= expiryMargin
	}
	return body.AccessToken, ttl, nil
}
