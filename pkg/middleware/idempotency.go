package middleware

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

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/anoirbs/hotel-sub000/pkg/logger"
	"github.com/anoirbs/hotel-sub000/pkg/response"
)

const (
	IdempotencyKeyHeader = "X-Idempotency-Key"
	// IdempotentReplayHeader is set on responses served from the cache
	IdempotentReplayHeader = "Idempotent-Replayed"
	idempotencyKeyPrefix   = "idempotency:"
)

type idempotencyStatus string

const (
	statusProcessing idempotencyStatus = "processing"
	statusCompleted  idempotencyStatus = "completed"
)

type idempotencyRecord struct {
	Status       idempotencyStatus `json:"status"`
	RequestHash  string            `json:"request_hash"`
	ResponseCode int               `json:"response_code,omitempty"`
	ResponseBody string            `json:"response_body,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// IdempotencyStore is satisfied by *redis.Client from pkg/redis
type IdempotencyStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// IdempotencyConfig configures Idempotency
type IdempotencyConfig struct {
	Store IdempotencyStore
	// TTL of completed records
	TTL time.Duration
	// ProcessingTTL bounds how long a crashed request blocks its key
	ProcessingTTL time.Duration
	Logger        *logger.Logger
}

// Idempotency replays the stored response for a repeated X-Idempotency-Key.
// Requests without the header pass through. Store errors fail open.
// Only 2xx and 4xx responses are cached so that 5xx can be retried.
func Idempotency(cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.ProcessingTTL <= 0 {
		cfg.ProcessingTTL = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Get()
	}

	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" || c.Request.Method == http.MethodGet {
			c.Next()
			return
		}

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		userID, _ := GetUserID(c)
		hash := requestHash(c.Request.Method, c.Request.URL.Path, userID, body)
		// scope keys per user so one caller cannot replay another's response
		redisKey := idempotencyKeyPrefix + userID + ":" + key
		ctx := c.Request.Context()

		existing, err := loadRecord(ctx, cfg.Store, redisKey)
		if err != nil && !errors.Is(err, redis.Nil) {
			cfg.Logger.WarnContext(ctx, "idempotency store unavailable", zap.Error(err))
			c.Next()
			return
		}
		if existing != nil {
			replay(c, existing, hash)
			return
		}

		rec := &idempotencyRecord{Status: statusProcessing, RequestHash: hash, CreatedAt: time.Now().UTC()}
		data, _ := json.Marshal(rec)
		ok, err := cfg.Store.SetNX(ctx, redisKey, data, cfg.ProcessingTTL).Result()
		if err != nil {
			cfg.Logger.WarnContext(ctx, "idempotency store unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			// lost the race to a concurrent request with the same key
			if existing, _ = loadRecord(ctx, cfg.Store, redisKey); existing != nil {
				replay(c, existing, hash)
				return
			}
		}

		rw := &capturingWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = rw

		c.Next()

		status := rw.Status()
		if status >= 500 {
			cfg.Store.Del(context.WithoutCancel(ctx), redisKey)
			return
		}

		rec.Status = statusCompleted
		rec.ResponseCode = status
		rec.ResponseBody = rw.body.String()
		data, _ = json.Marshal(rec)
		if err := cfg.Store.Set(context.WithoutCancel(ctx), redisKey, data, cfg.TTL).Err(); err != nil {
			cfg.Logger.WarnContext(ctx, "failed to store idempotent response", zap.Error(err))
		}
	}
}

func replay(c *gin.Context, rec *idempotencyRecord, hash string) {
	if rec.RequestHash != hash {
		response.Abort(c, http.StatusUnprocessableEntity, response.CodeIdempotencyClash,
			"idempotency key already used with a different request")
		return
	}
	if rec.Status == statusProcessing {
		response.Abort(c, http.StatusConflict, response.CodeIdempotencyClash,
			"a request with this idempotency key is already being processed")
		return
	}
	c.Header(IdempotentReplayHeader, "true")
	c.Data(rec.ResponseCode, "application/json; charset=utf-8", []byte(rec.ResponseBody))
	c.Abort()
}

func loadRecord(ctx context.Context, store IdempotencyStore, key string) (*idempotencyRecord, error) {
	raw, err := store.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var rec idempotencyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func requestHash(method, path, userID string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write([]byte(userID))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type capturingWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capturingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
