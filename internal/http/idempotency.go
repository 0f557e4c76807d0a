package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	idempotencyPrefix = "idempotency:"
	idempotencyLock   = 30 * time.Second
)

// errCacheMiss is returned by a ResponseCache that holds nothing for a key.
var errCacheMiss = errors.New("cache miss")

// ResponseCache is the subset of Redis the idempotency middleware needs.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}

type redisCache struct{ c *redis.Client }

// NewRedisCache adapts a go-redis client to ResponseCache.
func NewRedisCache(c *redis.Client) ResponseCache { return &redisCache{c: c} }

func (r *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errCacheMiss
	}
	return b, err
}

func (r *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.c.Set(ctx, key, value, ttl).Err()
}

func (r *redisCache) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.c.SetNX(ctx, key, "1", ttl).Result()
}

func (r *redisCache) Del(ctx context.Context, key string) error {
	return r.c.Del(ctx, key).Err()
}

// Idempotency replays the stored response of a POST or PUT retried with the
// same Idempotency-Key. Keys are scoped to the acting user.
type Idempotency struct {
	cache ResponseCache
	ttl   time.Duration
}

func NewIdempotency(cache ResponseCache, ttl time.Duration) *Idempotency {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Idempotency{cache: cache, ttl: ttl}
}

type cachedResponse struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
	BodyHash    string `json:"body_hash"`
}

type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (m *Idempotency) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get(IdempotencyHeader)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, badRequest("failed to read request body"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		hash := hashBody(r.Method, r.URL.Path, body)
		cacheKey := idempotencyPrefix + r.Header.Get(UserHeader) + ":" + key
		ctx := r.Context()

		if raw, err := m.cache.Get(ctx, cacheKey); err == nil {
			var cached cachedResponse
			if err := json.Unmarshal(raw, &cached); err == nil {
				if cached.BodyHash != hash {
					writeJSON(w, http.StatusConflict, NewAPIError("idempotency_conflict", "idempotency key already used with a different request", http.StatusConflict))
					return
				}
				w.Header().Set("Content-Type", cached.ContentType)
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(cached.StatusCode)
				_, _ = w.Write(cached.Body)
				return
			}
		}

		lockKey := cacheKey + ":lock"
		locked, err := m.cache.SetNX(ctx, lockKey, idempotencyLock)
		if err != nil || !locked {
			writeJSON(w, http.StatusConflict, NewAPIError("request_in_progress", "a request with this idempotency key is already being processed", http.StatusConflict))
			return
		}
		defer func() { _ = m.cache.Del(context.WithoutCancel(ctx), lockKey) }()

		cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(cw, r)

		if cw.status >= 200 && cw.status < 300 {
			data, _ := json.Marshal(cachedResponse{
				StatusCode:  cw.status,
				ContentType: cw.Header().Get("Content-Type"),
				Body:        cw.body.Bytes(),
				BodyHash:    hash,
			})
			_ = m.cache.Set(context.WithoutCancel(ctx), cacheKey, data, m.ttl)
		}
	})
}

func hashBody(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method + " " + path + "\n"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
