// Package cache keeps query embeddings in Redis so repeated tutoring
// questions skip the provider round trip.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cloo-solutions/tutorcore/internal/telemetry"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "tutorcore:qemb:"

// DefaultTTL is how long a cached query embedding lives.
const DefaultTTL = 15 * time.Minute

// Embedder is the provider the cache sits in front of.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// QueryEmbeddingCache is a read-through cache keyed by model and a hash of
// the query text. Redis failures degrade to a provider call.
type QueryEmbeddingCache struct {
	rdb    goredis.Cmdable
	next   Embedder
	model  string
	dims   int
	ttl    time.Duration
	logger *zap.Logger
}

// NewQueryEmbeddingCache wraps next. model namespaces the keys so a model
// change never serves stale vectors.
func NewQueryEmbeddingCache(rdb goredis.Cmdable, next Embedder, model string, dims int, ttl time.Duration, logger *zap.Logger) *QueryEmbeddingCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryEmbeddingCache{
		rdb:    rdb,
		next:   next,
		model:  model,
		dims:   dims,
		ttl:    ttl,
		logger: logger,
	}
}

// NewRedisClient parses a redis:// URL and checks connectivity.
func NewRedisClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Embed returns the cached vector for text or computes and stores it.
func (c *QueryEmbeddingCache) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if v, ok := decodeVector(raw, c.dims); ok {
			telemetry.QueryCacheLookups.WithLabelValues("hit").Inc()
			return v, nil
		}
		telemetry.QueryCacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("discarding malformed cached embedding", zap.String("key", key))
	case errors.Is(err, goredis.Nil):
		telemetry.QueryCacheLookups.WithLabelValues("miss").Inc()
	default:
		telemetry.QueryCacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("query cache read failed", zap.Error(err))
	}

	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.rdb.Set(ctx, key, encodeVector(v), c.ttl).Err(); err != nil {
		c.logger.Warn("query cache write failed", zap.Error(err))
	}
	return v, nil
}

func (c *QueryEmbeddingCache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return keyPrefix + c.model + ":" + hex.EncodeToString(sum[:])
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(raw []byte, dims int) ([]float32, bool) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, false
	}
	n := len(raw) / 4
	if dims > 0 && n != dims {
		return nil, false
	}
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return v, true
}
