package web

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	dbt "trypie/db/db"
)

func CorsConfig(allowOrigins []string) cors.Config {
	corsConf := cors.DefaultConfig()
	if len(allowOrigins) == 0 || (len(allowOrigins) == 1 && allowOrigins[0] == "*") {
		corsConf.AllowAllOrigins = true
	} else {
		corsConf.AllowOrigins = allowOrigins
		corsConf.AllowCredentials = true
	}
	corsConf.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConf.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With", DevUserHeader}
	corsConf.MaxAge = 1 * time.Hour
	return corsConf
}

// limiterMiddleware limits requests per client IP. rate uses the limiter format, e.g. "300-M".
func limiterMiddleware(rate string) (gin.HandlerFunc, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("rate limit %q: %w", rate, err)
	}
	store := memory.NewStore()
	instance := limiter.New(store, r)
	return mgin.NewMiddleware(instance), nil
}

// requestLogger logs one line per request once it has been served.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if user := CurrentUser(c); user != "" {
			attrs = append(attrs, "user_id", user)
		}
		switch {
		case status >= 500:
			slog.Error("http request", attrs...)
		case status >= 400:
			slog.Warn("http request", attrs...)
		default:
			slog.Info("http request", attrs...)
		}
	}
}

// metricsMiddleware counts requests by route template, so path parameters do not
// create new series.
func metricsMiddleware(m *httpMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.requests.WithLabelValues(c.Request.Method, route, status).Inc()
		m.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// GroupDataLoaderInjectionMiddleware gives every request its own loaders, so batching and
// caching never leak between requests.
func GroupDataLoaderInjectionMiddleware(wrapper dbt.GroupDBWrapper) gin.HandlerFunc {
	return func(c *gin.Context) {
		loader := dbt.NewGroupDataLoader(wrapper)
		c.Request = c.Request.WithContext(dbt.WithDataLoader(c.Request.Context(), loader))
		c.Next()
	}
}

func secureMiddleware(dev bool) gin.HandlerFunc {
	return secure.New(secure.Config{
		STSSeconds:           31536000, // 1 year
		STSIncludeSubdomains: true,
		FrameDeny:            true,
		ContentTypeNosniff:   true,
		BrowserXssFilter:     true,
		ReferrerPolicy:       "strict-origin-when-cross-origin",
		IsDevelopment:        dev,
	})
}

func setupMiddlewares(r *gin.Engine, opts Options, metrics *httpMetrics) error {
	limit, err := limiterMiddleware(opts.RateLimit)
	if err != nil {
		return err
	}
	r.Use(limit)
	r.Use(gin.Recovery())
	r.Use(requestLogger())
	r.Use(metricsMiddleware(metrics))
	r.Use(cors.New(CorsConfig(opts.AllowOrigins)))
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(secureMiddleware(opts.Dev))
	return nil
}
