package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/beat-license-registry/internal/config"
)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	switch {
	case cw.limit <= 0:
		cw.buf.Write(b)
	case cw.size < cw.limit:
		remain := cw.limit - cw.size
		if int64(len(b)) <= remain {
			cw.buf.Write(b)
		} else {
			cw.buf.Write(b[:remain])
		}
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// truncated reports whether the body outgrew the capture limit.
func (cw *captureWriter) truncated() bool {
	return cw.limit > 0 && cw.size > cw.limit
}

// cacheKeyFrom hashes the method and concrete path, plus the query
// string unless KeyStrategy is "path".
func cacheKeyFrom(cfg config.CacheConfig, c echo.Context) string {
	r := c.Request()
	key := r.Method + " " + r.URL.Path
	if cfg.KeyStrategy != "path" {
		key += "?" + r.URL.RawQuery
	}
	sum := sha1.Sum([]byte(key))
	return fmt.Sprintf("%s:%x", cfg.Prefix, sum[:])
}

// beatTagKey names the Redis set listing cache keys of one beat.
func beatTagKey(prefix, beatID string) string {
	return prefix + ":tag:beat:" + beatID
}

// beatGenKey names the counter InvalidateBeat bumps.  A response is only
// stored if the counter still holds the value read before the handler
// ran, so a read that raced an invalidation is never cached.
func beatGenKey(prefix, beatID string) string {
	return prefix + ":gen:beat:" + beatID
}

// genTTL outlives any cache entry so an expired counter cannot reset
// under an in-flight request.
const genTTL = 24 * time.Hour

// storeIfCurrent writes the entry and its tag only when KEYS[3] still
// equals ARGV[3].  A missing counter reads as "0".
var storeIfCurrent = redis.NewScript(`
local gen = redis.call('GET', KEYS[3]) or '0'
if gen ~= ARGV[3] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
redis.call('SADD', KEYS[2], KEYS[1])
redis.call('PEXPIRE', KEYS[2], ARGV[2])
return 1
`)

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:8+len(hdrJSON)], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	hdr := make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &hdr); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, hdr, bs[8+hlen:], true
}

// NewRedisCache caches successful responses (headers and body) in Redis.
// When tagParam names a route parameter, the entry is also recorded in
// that beat's tag set so BeatCache.InvalidateBeat can drop it.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, tagParam string, logger *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	maxBody := int64(cfg.MaxBodyBytes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}

			ctx := c.Request().Context()
			key := cacheKeyFrom(cfg, c)

			if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					for k, vals := range hdr {
						// Echo recomputes Content-Length.
						if strings.EqualFold(k, "Content-Length") {
							continue
						}
						for _, v := range vals {
							c.Response().Header().Add(k, v)
						}
					}
					c.Response().Header().Set("X-Cache", "HIT")
					c.Response().WriteHeader(status)
					if len(body) > 0 {
						_, _ = c.Response().Write(body)
					}
					return nil
				}
			} else if err != redis.Nil {
				logger.Warn("response cache read failed", zap.String("key", key), zap.Error(err))
			}

			var beatID, gen string
			if tagParam != "" {
				beatID = c.Param(tagParam)
			}
			if beatID != "" {
				v, err := rdb.Get(ctx, beatGenKey(cfg.Prefix, beatID)).Result()
				switch {
				case err == redis.Nil:
					gen = "0"
				case err != nil:
					// Freshness cannot be checked; serve without caching.
					logger.Warn("response cache generation read failed", zap.String("beat_id", beatID), zap.Error(err))
					return next(c)
				default:
					gen = v
				}
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			if cw.status != http.StatusOK || cw.truncated() {
				return nil
			}

			hdr := c.Response().Header().Clone()
			hdr.Del("X-Cache")
			payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
			if err != nil {
				return nil
			}
			// The request context may already be cancelled by the client.
			storeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if beatID == "" {
				if err := rdb.SetEx(storeCtx, key, payload, ttl).Err(); err != nil {
					logger.Warn("response cache write failed", zap.String("key", key), zap.Error(err))
				}
				return nil
			}
			keys := []string{key, beatTagKey(cfg.Prefix, beatID), beatGenKey(cfg.Prefix, beatID)}
			stored, err := storeIfCurrent.Run(storeCtx, rdb, keys, payload, ttl.Milliseconds(), gen).Int()
			if err != nil {
				logger.Warn("response cache write failed", zap.String("key", key), zap.Error(err))
			} else if stored == 0 {
				logger.Debug("response cache write skipped after invalidation", zap.String("beat_id", beatID))
			}
			return nil
		}
	}
}

// BeatCache drops cached responses about a beat.  It implements
// ports.CacheInvalidator.
type BeatCache struct {
	rdb    *redis.Client
	prefix string
}

// NewBeatCache returns an invalidator for entries written by
// NewRedisCache with the same prefix.
func NewBeatCache(rdb *redis.Client, prefix string) *BeatCache {
	return &BeatCache{rdb: rdb, prefix: prefix}
}

// InvalidateBeat bumps the beat's generation, which stops in-flight
// misses from storing what they read, then deletes every entry tagged
// with beatID and the tag set.
func (b *BeatCache) InvalidateBeat(ctx context.Context, beatID string) error {
	if b == nil || b.rdb == nil {
		return nil
	}
	genKey := beatGenKey(b.prefix, beatID)
	pipe := b.rdb.TxPipeline()
	pipe.Incr(ctx, genKey)
	pipe.Expire(ctx, genKey, genTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bump cache generation %s: %w", genKey, err)
	}
	tag := beatTagKey(b.prefix, beatID)
	keys, err := b.rdb.SMembers(ctx, tag).Result()
	if err != nil {
		return fmt.Errorf("read cache tag %s: %w", tag, err)
	}
	return b.rdb.Del(ctx, append(keys, tag)...).Err()
}
