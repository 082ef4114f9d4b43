package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/upb/governance-ledger/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// visitor tracks the limiter and last seen time for one client
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IngressLimiter applies a per-client token bucket to incoming requests.
// Clients are keyed by actor id when authenticated, otherwise by remote IP.
type IngressLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewIngressLimiter creates a new IngressLimiter
func NewIngressLimiter(rps float64, burst int, logger *zap.Logger) *IngressLimiter {
	return &IngressLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		idleTTL:  3 * time.Minute,
		now:      time.Now,
		logger:   logger,
	}
}

// Run evicts idle clients every minute until ctx is cancelled
func (l *IngressLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *IngressLimiter) evictIdle() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idleTTL)
	evicted := 0
	for key, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, key)
			evicted++
		}
	}
	return evicted
}

func (l *IngressLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = l.now()
	return v.limiter
}

// Middleware returns a handler that answers 429 once a client's bucket is empty
func (l *IngressLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		reservation := l.limiterFor(key).ReserveN(l.now(), 1)
		if !reservation.OK() {
			_ = utils.WriteTooManyRequests(w, "Request rate limit exceeded", nil)
			return
		}
		if delay := reservation.DelayFrom(l.now()); delay > 0 {
			reservation.CancelAt(l.now())
			retryAfter := int(math.Ceil(delay.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

			l.logger.Debug("ingress rate limit exceeded",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("client", key))
			_ = utils.WriteTooManyRequests(w, "Request rate limit exceeded", map[string]interface{}{
				"retry_after_seconds": retryAfter,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if claims := GetClaimsFromContext(r.Context()); claims != nil && claims.Subject != "" {
		return "actor:" + claims.Subject
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = strings.Trim(r.RemoteAddr, "[]")
	}
	return "ip:" + ip
}
