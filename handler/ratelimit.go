package handler

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stevemurr/grocery-chat-server/record"
)

const rateLimitCollection = "ratelimit"

// RateLimiter allows each client a fixed number of requests per UTC day.
// Counters are records at "ratelimit:<ip>", with the colons of IPv6
// addresses replaced by dashes.
type RateLimiter struct {
	engine *record.Engine
	max    int
	now    func() time.Time

	mu sync.Mutex
}

func NewRateLimiter(e *record.Engine, maxPerDay int) *RateLimiter {
	return &RateLimiter{engine: e, max: maxPerDay, now: time.Now}
}

// Allow counts one request from ip and reports whether it is within the
// daily limit. Rejected requests are not counted.
func (l *RateLimiter) Allow(ctx context.Context, ip string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := counterID(ip)
	today := l.now().UTC().Format(time.DateOnly)
	count := 0
	rec, err := l.engine.Get(ctx, rateLimitCollection, id)
	switch {
	case errors.Is(err, record.ErrNotFound):
	case err != nil:
		return false, err
	case rec["day"] == today:
		count, _ = strconv.Atoi(rec["count"])
	}
	if count >= l.max {
		return false, nil
	}
	_, err = l.engine.Set(ctx, rateLimitCollection, id, map[string]string{
		"day":   today,
		"count": strconv.Itoa(count + 1),
	})
	return err == nil, err
}

func counterID(ip string) string {
	if ip == "" {
		return "unknown"
	}
	return strings.ReplaceAll(ip, ":", "-")
}

// clientIP prefers proxy headers over the connection address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if cf := r.Header.Get("CF-Connecting-IP"); cf != "" {
		return strings.TrimSpace(cf)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
