package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"moxie-indexer/internal/domain"
	"moxie-indexer/internal/observability"
)

// CachedReader caches metadata from next in Redis. Cache failures are
// logged and fall through to next; only next's errors are returned.
type CachedReader struct {
	rdb     goredis.Cmdable
	next    Reader
	prefix  string
	ttl     time.Duration
	metrics *observability.Metrics
	log     zerolog.Logger
}

// CacheOptions configures a CachedReader.
type CacheOptions struct {
	Prefix  string
	TTL     time.Duration // 0 keeps entries forever
	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// NewCachedReader creates a CachedReader over next.
func NewCachedReader(rdb goredis.Cmdable, next Reader, opts CacheOptions) *CachedReader {
	return &CachedReader{
		rdb:     rdb,
		next:    next,
		prefix:  opts.Prefix,
		ttl:     opts.TTL,
		metrics: opts.Metrics,
		log:     opts.Logger,
	}
}

func (c *CachedReader) key(token string) string {
	return c.prefix + token
}

// TokenMetadata returns cached metadata for token, reading and caching it on a miss.
func (c *CachedReader) TokenMetadata(ctx context.Context, token string) (domain.TokenMetadata, error) {
	if meta, ok := c.lookup(ctx, token); ok {
		c.record(true)
		return meta, nil
	}
	c.record(false)

	meta, err := c.next.TokenMetadata(ctx, token)
	if err != nil {
		return meta, err
	}

	b, err := json.Marshal(meta)
	if err != nil {
		return meta, nil
	}
	if err := c.rdb.Set(ctx, c.key(token), b, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("token", token).Msg("metadata cache write failed")
	}
	return meta, nil
}

func (c *CachedReader) lookup(ctx context.Context, token string) (domain.TokenMetadata, bool) {
	var meta domain.TokenMetadata

	b, err := c.rdb.Get(ctx, c.key(token)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return meta, false
	}
	if err != nil {
		c.log.Warn().Err(err).Str("token", token).Msg("metadata cache read failed")
		return meta, false
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		c.log.Warn().Err(err).Str("token", token).Msg("metadata cache entry corrupt")
		return meta, false
	}
	return meta, true
}

func (c *CachedReader) record(hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(hit)
	}
}
