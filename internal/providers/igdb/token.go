package igdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTokenURL = "https://id.twitch.tv/oauth2/token"
	tokenRedisKey   = "catalog:igdb:token"
	// tokenSkew refreshes ahead of expiry so in-flight requests never carry
	// a token that dies mid-call.
	tokenSkew = 2 * time.Minute
)

// TokenSource supplies the refreshable bearer token required by the upstream
// provider.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed token, useful for tests and pre-provisioned setups.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// ClientCredentialsSource obtains app tokens via the client-credentials grant
// and refreshes them ahead of expiry. When a Redis client is supplied the
// token is mirrored there so sibling processes skip the token endpoint.
type ClientCredentialsSource struct {
	clientID     string
	clientSecret string
	tokenURL     string
	http         *http.Client
	redis        *redis.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type ClientCredentialsConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Client       *http.Client
	Redis        *redis.Client
}

func NewClientCredentialsSource(cfg ClientCredentialsConfig) *ClientCredentialsSource {
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &ClientCredentialsSource{
		clientID:     strings.TrimSpace(cfg.ClientID),
		clientSecret: strings.TrimSpace(cfg.ClientSecret),
		tokenURL:     tokenURL,
		http:         httpClient,
		redis:        cfg.Redis,
	}
}

func (s *ClientCredentialsSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if s.token != "" && now.Before(s.expiresAt.Add(-tokenSkew)) {
		return s.token, nil
	}

	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, tokenRedisKey).Result(); err == nil && cached != "" {
			ttl, ttlErr := s.redis.TTL(ctx, tokenRedisKey).Result()
			if ttlErr == nil && ttl > tokenSkew {
				s.token = cached
				s.expiresAt = now.Add(ttl)
				return s.token, nil
			}
		}
	}

	token, expiresIn, err := s.requestToken(ctx)
	if err != nil {
		return "", err
	}
	s.token = token
	s.expiresAt = now.Add(expiresIn)

	if s.redis != nil {
		_ = s.redis.Set(ctx, tokenRedisKey, token, expiresIn-tokenSkew).Err()
	}
	return s.token, nil
}

func (s *ClientCredentialsSource) requestToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", 0, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", 0, fmt.Errorf("token payload: %w", err)
	}
	if payload.AccessToken == "" {
		return "", 0, fmt.Errorf("token endpoint returned empty token")
	}
	expiresIn := time.Duration(payload.ExpiresIn) * time.Second
	if expiresIn <= tokenSkew {
		expiresIn = 2 * tokenSkew
	}
	return payload.AccessToken, expiresIn, nil
}
