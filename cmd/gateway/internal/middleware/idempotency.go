package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/auth"
)

// IdempotencyMiddleware replays the stored response of a POST that repeats an
// Idempotency-Key. Keys are scoped to the user, path and body.
type IdempotencyMiddleware struct {
	redis  *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

func NewIdempotencyMiddleware(client *redis.Client, logger *zap.Logger) *IdempotencyMiddleware {
	return &IdempotencyMiddleware{
		redis:  client,
		logger: logger,
		ttl:    24 * time.Hour,
	}
}

// storedResponse is what a replay writes back.
type storedResponse struct {
	Status      int       `json:"status"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	StoredAt    time.Time `json:"stored_at"`
}

// teeRecorder copies the response body while it is written through.
type teeRecorder struct {
	statusRecorder
	buf bytes.Buffer
}

func (t *teeRecorder) Write(b []byte) (int, error) {
	t.buf.Write(b)
	return t.statusRecorder.Write(b)
}

func (im *IdempotencyMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if r.Method != http.MethodPost || key == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		redisKey, err := im.requestKey(r, key)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		if prev, ok := im.lookup(ctx, redisKey); ok {
			im.logger.Debug("Replaying idempotent response",
				zap.String("idempotency_key", key),
				zap.String("path", r.URL.Path),
			)
			if prev.ContentType != "" {
				w.Header().Set("Content-Type", prev.ContentType)
			}
			w.Header().Set("X-Idempotency-Cached", "true")
			w.Header().Set("X-Idempotency-Key", key)
			w.WriteHeader(prev.Status)
			_, _ = w.Write(prev.Body)
			return
		}

		rec := &teeRecorder{statusRecorder: statusRecorder{ResponseWriter: w}}
		next.ServeHTTP(rec, r)

		status := rec.code()
		if status < 200 || status >= 300 {
			return
		}
		// The request context may already be canceled once the client has its answer.
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := im.store(storeCtx, redisKey, &storedResponse{
			Status:      status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.buf.Bytes(),
			StoredAt:    time.Now(),
		}); err != nil {
			im.logger.Error("Failed to store idempotent response",
				zap.Error(err),
				zap.String("idempotency_key", key),
			)
		}
	})
}

// requestKey hashes the key with the user, path and body, restoring the body
// for the handler.
func (im *IdempotencyMiddleware) requestKey(r *http.Request, key string) (string, error) {
	var userID int64
	if u, ok := auth.UserFromContext(r.Context()); ok {
		userID = u.UserID
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%s|", key, userID, r.URL.Path)
	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			return "", err
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		h.Write(body)
	}
	return "idempotency:" + hex.EncodeToString(h.Sum(nil))[:32], nil
}

// lookup misses on any Redis or decode error.
func (im *IdempotencyMiddleware) lookup(ctx context.Context, key string) (*storedResponse, bool) {
	raw, err := im.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			im.logger.Warn("Idempotency lookup failed", zap.Error(err))
		}
		return nil, false
	}
	var sr storedResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, false
	}
	return &sr, true
}

func (im *IdempotencyMiddleware) store(ctx context.Context, key string, sr *storedResponse) error {
	raw, err := json.Marshal(sr)
	if err != nil {
		return err
	}
	return im.redis.Set(ctx, key, raw, im.ttl).Err()
}
