package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/debtdesk/backoffice/pkg/httputil"
	"github.com/debtdesk/backoffice/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisLimitedRouter(t *testing.T, rps float64, burst int) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if agent := c.GetHeader("X-Agent"); agent != "" {
			c.Set(httputil.ClaimsKey, map[string]interface{}{"uid": agent})
		}
		c.Next()
	})
	r.Use(RedisRateLimitMiddleware(client, rps, burst, time.Second))
	r.GET("/queue", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r, m
}

func hit(r http.Handler, agent string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/queue", nil)
	if agent != "" {
		req.Header.Set("X-Agent", agent)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRedisRateLimitWindowAndBurst(t *testing.T) {
	r, m := redisLimitedRouter(t, 1, 1)
	rejected := testutil.ToFloat64(metrics.RateLimitRejected.WithLabelValues("redis"))

	// one per second plus one burst
	require.Equal(t, http.StatusOK, hit(r, "agent-1").Code)
	require.Equal(t, http.StatusOK, hit(r, "agent-1").Code)
	w := hit(r, "agent-1")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, rejected+1, testutil.ToFloat64(metrics.RateLimitRejected.WithLabelValues("redis")))

	// counters are per actor
	assert.Equal(t, http.StatusOK, hit(r, "agent-2").Code)

	keys := m.Keys()
	require.NotEmpty(t, keys)
	assert.Regexp(t, `^rl:user:agent-[12]:\d+$`, keys[0])
	assert.True(t, m.TTL(keys[0]) > 0)
}

func TestRedisRateLimitKeysAnonymousByIP(t *testing.T) {
	r, m := redisLimitedRouter(t, 1, 0)
	require.Equal(t, http.StatusOK, hit(r, "").Code)
	require.Equal(t, http.StatusTooManyRequests, hit(r, "").Code)
	assert.Regexp(t, `^rl:ip:`, m.Keys()[0])
}

func TestRedisRateLimitFailsClosedWhenRedisDown(t *testing.T) {
	r, m := redisLimitedRouter(t, 10, 10)
	m.Close()
	assert.Equal(t, http.StatusInternalServerError, hit(r, "agent-1").Code)
}

func TestRedisRateLimitWithoutClientUsesMemory(t *testing.T) {
	r := gin.New()
	r.Use(RedisRateLimitMiddleware(nil, 0.5, 1, time.Second))
	r.GET("/queue", func(c *gin.Context) { c.Status(http.StatusOK) })
	require.Equal(t, http.StatusOK, hit(r, "").Code)
	require.Equal(t, http.StatusTooManyRequests, hit(r, "").Code)
}
