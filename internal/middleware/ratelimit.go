package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// DispatchLimiter is a token bucket applied to campaign creation only.
// Starting a campaign fans out into thousands of sends, so it gets a much
// tighter budget than the read endpoints.
type DispatchLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rate     int
	window   time.Duration
}

type visitor struct {
	tokens     int
	lastRefill time.Time
}

// NewDispatchLimiter allows rate requests per window per client IP.
func NewDispatchLimiter(rate int, window time.Duration) *DispatchLimiter {
	dl := &DispatchLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	go dl.cleanup()
	return dl
}

// Middleware returns the Fiber handler enforcing the limit.
func (dl *DispatchLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !dl.allow(c.IP()) {
			c.Set("X-RateLimit-Limit", strconv.Itoa(dl.rate))
			c.Set("X-RateLimit-Remaining", "0")
			c.Set("Retry-After", strconv.Itoa(int(dl.window.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "campaign dispatch limit exceeded",
				"retry_after": int(dl.window.Seconds()),
			})
		}
		return c.Next()
	}
}

func (dl *DispatchLimiter) allow(ip string) bool {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	v, ok := dl.visitors[ip]
	if !ok {
		v = &visitor{tokens: dl.rate, lastRefill: time.Now()}
		dl.visitors[ip] = v
	}

	now := time.Now()
	elapsed := now.Sub(v.lastRefill)
	if elapsed >= dl.window {
		v.tokens = dl.rate
		v.lastRefill = now
	} else if add := int(float64(dl.rate) * (elapsed.Seconds() / dl.window.Seconds())); add > 0 {
		v.tokens += add
		if v.tokens > dl.rate {
			v.tokens = dl.rate
		}
		v.lastRefill = now
	}

	if v.tokens > 0 {
		v.tokens--
		return true
	}
	return false
}

func (dl *DispatchLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		dl.mu.Lock()
		now := time.Now()
		for ip, v := range dl.visitors {
			if now.Sub(v.lastRefill) > dl.window*2 {
				delete(dl.visitors, ip)
			}
		}
		dl.mu.Unlock()
	}
}
