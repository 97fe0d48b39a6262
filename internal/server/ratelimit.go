package server

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// maxTrackedClients bounds the per-client usage table.
const maxTrackedClients = 4096

// RateLimiter manages request rate limiting and quotas per client.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	requestsPerHour   int
	maxRequestsPerDay int
	maxDataPerDay     int64 // in bytes

	clients *lru.Cache[string, *UserUsage]
	now     func() time.Time
}

// UserUsage tracks usage for a specific client in fixed windows.
type UserUsage struct {
	RequestsLastMinute int
	RequestsLastHour   int
	RequestsToday      int
	DataToday          int64

	minuteStart time.Time
	hourStart   time.Time
	dayStart    time.Time
}

// NewRateLimiter returns nil when limiting is disabled or every limit is zero.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if !cfg.Enabled {
		return nil
	}
	if cfg.RequestsPerMinute <= 0 && cfg.RequestsPerHour <= 0 &&
		cfg.RequestsPerDay <= 0 && cfg.MaxDataPerDay <= 0 {
		return nil
	}
	clients, err := lru.New[string, *UserUsage](maxTrackedClients)
	if err != nil {
		panic(err) // only fails for a non-positive size
	}
	return &RateLimiter{
		requestsPerMinute: cfg.RequestsPerMinute,
		requestsPerHour:   cfg.RequestsPerHour,
		maxRequestsPerDay: cfg.RequestsPerDay,
		maxDataPerDay:     cfg.MaxDataPerDay,
		clients:           clients,
		now:               time.Now,
	}
}

// CheckRateLimit records a request of dataSize bytes or reports why it is refused.
func (rl *RateLimiter) CheckRateLimit(clientID string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	usage := rl.usageFor(clientID, now)
	usage.roll(now)

	if rl.requestsPerMinute > 0 && usage.RequestsLastMinute >= rl.requestsPerMinute {
		return &RateLimitError{
			Type:       "minute",
			Limit:      rl.requestsPerMinute,
			RetryAfter: usage.minuteStart.Add(time.Minute).Sub(now),
		}
	}
	if rl.requestsPerHour > 0 && usage.RequestsLastHour >= rl.requestsPerHour {
		return &RateLimitError{
			Type:       "hour",
			Limit:      rl.requestsPerHour,
			RetryAfter: usage.hourStart.Add(time.Hour).Sub(now),
		}
	}

	resets := startOfDay(now).AddDate(0, 0, 1)
	if rl.maxRequestsPerDay > 0 && usage.RequestsToday >= rl.maxRequestsPerDay {
		return &QuotaExceededError{
			Type:   "requests",
			Limit:  int64(rl.maxRequestsPerDay),
			Used:   int64(usage.RequestsToday),
			Resets: resets,
		}
	}
	if rl.maxDataPerDay > 0 && usage.DataToday+dataSize > rl.maxDataPerDay {
		return &QuotaExceededError{
			Type:   "data",
			Limit:  rl.maxDataPerDay,
			Used:   usage.DataToday,
			Resets: resets,
		}
	}

	usage.RequestsLastMinute++
	usage.RequestsLastHour++
	usage.RequestsToday++
	usage.DataToday += dataSize
	return nil
}

// GetUsage returns a copy of the client's current usage.
func (rl *RateLimiter) GetUsage(clientID string) UserUsage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	usage, ok := rl.clients.Peek(clientID)
	if !ok {
		return UserUsage{}
	}
	cp := *usage
	cp.roll(rl.now())
	return cp
}

func (rl *RateLimiter) usageFor(clientID string, now time.Time) *UserUsage {
	if usage, ok := rl.clients.Get(clientID); ok {
		return usage
	}
	usage := &UserUsage{
		minuteStart: now.Truncate(time.Minute),
		hourStart:   now.Truncate(time.Hour),
		dayStart:    startOfDay(now),
	}
	rl.clients.Add(clientID, usage)
	return usage
}

// roll resets every window that has elapsed.
func (u *UserUsage) roll(now time.Time) {
	if m := now.Truncate(time.Minute); !m.Equal(u.minuteStart) {
		u.minuteStart = m
		u.RequestsLastMinute = 0
	}
	if h := now.Truncate(time.Hour); !h.Equal(u.hourStart) {
		u.hourStart = h
		u.RequestsLastHour = 0
	}
	if d := startOfDay(now); !d.Equal(u.dayStart) {
		u.dayStart = d
		u.RequestsToday = 0
		u.DataToday = 0
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string        // "minute" or "hour"
	Limit      int           // the limit that was exceeded
	RetryAfter time.Duration // how long to wait before retrying
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError represents a quota violation.
type QuotaExceededError struct {
	Type   string    // "requests" or "data"
	Limit  int64     // the limit that was exceeded
	Used   int64     // current usage
	Resets time.Time // when the quota resets
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
