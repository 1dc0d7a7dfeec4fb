package server

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// cachedResponse is the stored form of a cached GET response
type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// captureWriter tees the response body into a buffer
type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// outputCacheMiddleware serves GET responses from the output cache and
// stores successful ones for the configured duration
func (s *Server) outputCacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cache == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		key := c.Request.Method + ":" + c.Request.URL.RequestURI()

		raw, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("output cache lookup failed", zap.String("key", key), zap.Error(err))
		}
		if raw != nil {
			var cached cachedResponse
			if err := json.Unmarshal(raw, &cached); err == nil {
				c.Header("X-Cache", "HIT")
				c.Data(cached.Status, cached.ContentType, cached.Body)
				c.Abort()
				return
			}
			s.logger.Warn("dropping undecodable cache entry", zap.String("key", key))
			_ = s.cache.Remove(ctx, key)
		}

		c.Header("X-Cache", "MISS")
		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		if w.Status() != http.StatusOK {
			return
		}
		entry, err := json.Marshal(cachedResponse{
			Status:      w.Status(),
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.buf.Bytes(),
		})
		if err != nil {
			return
		}
		expiry := time.Now().Add(s.cfg.OutputCache.Duration).UTC()
		if _, err := s.cache.Add(ctx, key, entry, expiry); err != nil {
			s.logger.Warn("failed to store cached response", zap.String("key", key), zap.Error(err))
		}
	}
}
