package shield

import (
	"encoding/json"
	"log/slog"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"
)

type bucket struct {
	count   int
	resetAt time.Time
}

// RateLimiter is a per-IP fixed-window limiter held in memory. Each capture
// drives a whole browser session, so the serve router puts one in front of
// /mcp.
type RateLimiter struct {
	max     int
	window  time.Duration
	now     func() time.Time
	logger  *slog.Logger
	trusted []netip.Prefix

	mu      sync.Mutex
	buckets map[string]*bucket
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithTrustedProxies makes the limiter read the client IP from
// X-Forwarded-For when the connection comes from one of prefixes. Without
// it the header is ignored.
func WithTrustedProxies(prefixes ...netip.Prefix) RateLimiterOption {
	return func(rl *RateLimiter) { rl.trusted = append(rl.trusted, prefixes...) }
}

// NewRateLimiter allows max requests per IP per window.
func NewRateLimiter(max int, window time.Duration, logger *slog.Logger, opts ...RateLimiterOption) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	rl := &RateLimiter{
		max:     max,
		window:  window,
		now:     time.Now,
		logger:  logger,
		buckets: make(map[string]*bucket),
	}
	for _, o := range opts {
		o(rl)
	}
	return rl
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[ip]
	if !ok || now.After(b.resetAt) {
		rl.buckets[ip] = &bucket{count: 1, resetAt: now.Add(rl.window)}
		rl.gc(now)
		return true
	}
	b.count++
	return b.count <= rl.max
}

// gc drops expired buckets. Called with mu held.
func (rl *RateLimiter) gc(now time.Time) {
	for ip, b := range rl.buckets {
		if now.After(b.resetAt) {
			delete(rl.buckets, ip)
		}
	}
}

// Middleware rejects requests over the limit with a 429 JSON body.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r, rl.trusted)
		if rl.allow(ip) {
			next.ServeHTTP(w, r)
			return
		}

		rl.logger.Warn("ratelimit: request blocked", "ip", ip, "path", r.URL.Path)
		w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	})
}

// ExtractIP returns the host part of RemoteAddr.
func ExtractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientIP returns the peer address unless the peer is a trusted proxy. For
// a trusted peer, X-Forwarded-For is walked from the right and the first
// address outside trusted wins.
func ClientIP(r *http.Request, trusted []netip.Prefix) string {
	peer := ExtractIP(r)
	if len(trusted) == 0 || !isTrusted(peer, trusted) {
		return peer
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !isTrusted(hop, trusted) {
			return hop
		}
	}
	return peer
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ParseTrustedProxies parses addresses ("10.0.0.1") and CIDR prefixes
// ("10.0.0.0/8").
func ParseTrustedProxies(values []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("shield: trusted proxy %q: %w", v, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("shield: trusted proxy %q: %w", v, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
