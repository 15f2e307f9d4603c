package handshake

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	Rate      rate.Limit
	Burst     int
	ExpiresIn time.Duration
}

// DefaultRateLimitConfig is sized for the handshake rhythm of real clients:
// one join and one hasJoined per server connection.
var DefaultRateLimitConfig = RateLimitConfig{
	Rate:      rate.Limit(5),
	Burst:     20,
	ExpiresIn: 5 * time.Minute,
}

// RateLimitMiddleware throttles handshake calls per client IP.
func RateLimitMiddleware(config RateLimitConfig) echo.MiddlewareFunc {
	if config.Rate <= 0 {
		config.Rate = DefaultRateLimitConfig.Rate
	}
	if config.Burst <= 0 {
		config.Burst = DefaultRateLimitConfig.Burst
	}
	if config.ExpiresIn <= 0 {
		config.ExpiresIn = DefaultRateLimitConfig.ExpiresIn
	}

	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      config.Rate,
		Burst:     config.Burst,
		ExpiresIn: config.ExpiresIn,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			ip := strings.TrimSpace(c.RealIP())
			if ip == "" {
				ip = "unknown"
			}
			return ip, nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.NoContent(http.StatusTooManyRequests)
		},
	})
}
