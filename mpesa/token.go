package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenSkew is subtracted from a token's lifetime before caching it, so a
// cached token is never presented right at its expiry.
const TokenSkew = 60 * time.Second

// TokenCache stores the OAuth access token between calls. Get reports
// ok=false on a miss.
type TokenCache interface {
	Get(ctx context.Context) (token string, ok bool, err error)
	Set(ctx context.Context, token string, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// In-process cache
// ──────────────────────────────────────────────────

// MemoryTokenCache keeps the token in process memory.
type MemoryTokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// NewMemoryTokenCache returns an empty in-process cache.
func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{now: time.Now}
}

func (m *MemoryTokenCache) Get(_ context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" || !m.now().Before(m.expiresAt) {
		return "", false, nil
	}
	return m.token, true, nil
}

func (m *MemoryTokenCache) Set(_ context.Context, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.expiresAt = m.now().Add(ttl)
	return nil
}

func (m *MemoryTokenCache) Invalidate(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.expiresAt = time.Time{}
	return nil
}

// ──────────────────────────────────────────────────
// Redis cache
// ──────────────────────────────────────────────────

// DefaultRedisKey is the key used when RedisTokenCache has no explicit key.
const DefaultRedisKey = "learngate:mpesa:access_token"

// RedisTokenCache shares the token across gateway replicas. Expiry is left
// to Redis.
type RedisTokenCache struct {
	client *redis.Client
	key    string
}

// NewRedisTokenCache constructs a RedisTokenCache.
func NewRedisTokenCache(client *redis.Client, key string) *RedisTokenCache {
	key = strings.TrimSpace(key)
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisTokenCache{client: client, key: key}
}

func (r *RedisTokenCache) Get(ctx context.Context) (string, bool, error) {
	token, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("mpesa: token cache get: %w", err)
	}
	return token, token != "", nil
}

func (r *RedisTokenCache) Set(ctx context.Context, token string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key, token, ttl).Err(); err != nil {
		return fmt.Errorf("mpesa: token cache set: %w", err)
	}
	return nil
}

func (r *RedisTokenCache) Invalidate(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

// ──────────────────────────────────────────────────
// OAuth
// ──────────────────────────────────────────────────

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	// Daraja sends the lifetime in seconds as a string.
	ExpiresIn json.Number `json:"expires_in"`
}

// accessToken returns a cached token or fetches a new one. A failing cache
// is logged and bypassed.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	token, ok, err := c.tokens.Get(ctx)
	if err != nil {
		c.logger.Warn("mpesa token cache unavailable", "error", err)
	}
	if ok {
		return token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathOAuth, nil)
	if err != nil {
		return "", fmt.Errorf("mpesa: build token request: %w", err)
	}
	req.SetBasicAuth(c.consumerKey, c.consumerSecret)

	status, body, err := c.do(req)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", apiError(status, body)
	}

	var out tokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("mpesa: decode token: %w", err)
	}
	if out.AccessToken == "" {
		return "", errors.New("mpesa: token response has no access_token")
	}

	ttl := tokenTTL(out.ExpiresIn)
	if err := c.tokens.Set(ctx, out.AccessToken, ttl); err != nil {
		c.logger.Warn("mpesa token cache unavailable", "error", err)
	}
	return out.AccessToken, nil
}

func tokenTTL(expiresIn json.Number) time.Duration {
	secs, err := strconv.ParseInt(expiresIn.String(), 10, 64)
	if err != nil || secs <= 0 {
		secs = 3599
	}
	ttl := time.Duration(secs)*time.Second - TokenSkew
	if ttl <= 0 {
		ttl = time.Second
	}
	return ttl
}
