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

	"github.com/iliyamo/slot-reservation/internal/config"
	"github.com/iliyamo/slot-reservation/internal/logger"
)

// bodyRecorder tees the response body into buf, up to limit bytes, while
// forwarding it to the client.
type bodyRecorder struct {
	http.ResponseWriter
	status    int
	buf       bytes.Buffer
	written   int64
	limit     int64
	truncated bool
}

func (w *bodyRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	if w.limit > 0 && w.written+int64(len(b)) > w.limit {
		w.truncated = true
	} else {
		w.buf.Write(b)
	}
	w.written += int64(len(b))
	return w.ResponseWriter.Write(b)
}

func cacheKey(cfg config.CacheConfig, c echo.Context) string {
	r := c.Request()
	var parts []string
	switch strings.ToLower(cfg.KeyStrategy) {
	case "route":
		parts = []string{"route", r.URL.Path}
	case "method_route":
		parts = []string{"method", r.Method, "route", r.URL.Path}
	case "method_route_query":
		parts = []string{"method", r.Method, "route", r.URL.Path, "q", r.URL.Query().Encode()}
	default:
		parts = []string{"route", r.URL.Path, "q", r.URL.Query().Encode()}
	}
	sum := sha1.Sum([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("%s:%x", cfg.Prefix, sum[:])
}

// cached entries are laid out as [status u32][header length u32][header JSON][body].
func packEntry(status int, header http.Header, body []byte) ([]byte, error) {
	hdr, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8, 8+len(hdr)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdr)))
	out = append(out, hdr...)
	return append(out, body...), nil
}

func unpackEntry(bs []byte) (int, http.Header, []byte, bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status := int(binary.BigEndian.Uint32(bs[0:4]))
	n := int(binary.BigEndian.Uint32(bs[4:8]))
	if n < 0 || 8+n > len(bs) {
		return 0, nil, nil, false
	}
	hdr := http.Header{}
	if n > 0 {
		if err := json.Unmarshal(bs[8:8+n], &hdr); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, hdr, bs[8+n:], true
}

// NewRedisCache serves repeated public reads from Redis. Only 200 responses
// that fit in MaxBodyBytes are stored. A Redis failure degrades to a miss.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, log *logger.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if log == nil {
		log = logger.Discard()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Cacheable(c.Request().Method) {
				return next(c)
			}
			key := cacheKey(cfg, c)
			resp := c.Response()

			bs, err := rdb.Get(c.Request().Context(), key).Bytes()
			if err == nil {
				if status, hdr, body, ok := unpackEntry(bs); ok {
					for k, vals := range hdr {
						if strings.EqualFold(k, echo.HeaderContentLength) {
							continue
						}
						for _, v := range vals {
							resp.Header().Add(k, v)
						}
					}
					resp.Header().Set("X-Cache", "HIT")
					resp.WriteHeader(status)
					_, werr := resp.Write(body)
					return werr
				}
			} else if err != redis.Nil {
				log.Warn("cache read failed", "key", key, "error", err)
			}

			rec := &bodyRecorder{ResponseWriter: resp.Writer, status: http.StatusOK, limit: int64(cfg.MaxBodyBytes)}
			resp.Writer = rec
			resp.Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if rec.status != http.StatusOK || rec.truncated {
				return nil
			}
			hdr := resp.Header().Clone()
			hdr.Del("X-Cache")
			payload, err := packEntry(rec.status, hdr, rec.buf.Bytes())
			if err != nil {
				return nil
			}
			if err := rdb.Set(context.WithoutCancel(c.Request().Context()), key, payload, ttl).Err(); err != nil {
				log.Warn("cache write failed", "key", key, "error", err)
			}
			return nil
		}
	}
}
