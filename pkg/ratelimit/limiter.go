// Package ratelimit gates inbound messages before any decision-making or
// outbound side effects happen for them.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/dotsetgreg/relay/pkg/bus"
	"github.com/dotsetgreg/relay/pkg/logger"
)

// Gate is consulted exactly once per inbound message, after the message's
// own Memory is persisted. A false result ends processing with no model
// call and no outbound sends; the inbound Memory stays for audit.
type Gate interface {
	CanProcess(msg bus.InboundMessage) bool
}

// AllowAll passes everything. Used when rate limiting is disabled.
type AllowAll struct{}

func (AllowAll) CanProcess(bus.InboundMessage) bool { return true }

// SenderLimiter combines a static blocklist with a per-sender token bucket.
type SenderLimiter struct {
	limit   rate.Limit
	burst   int
	blocked map[string]struct{}

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewSenderLimiter allows requestsPerMinute sustained per sender with the
// given burst. blockFrom entries are sender ids rejected outright.
func NewSenderLimiter(requestsPerMinute float64, burst int, blockFrom []string) *SenderLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 20
	}
	if burst <= 0 {
		burst = 5
	}
	blocked := make(map[string]struct{}, len(blockFrom))
	for _, id := range blockFrom {
		if id != "" {
			blocked[id] = struct{}{}
		}
	}
	return &SenderLimiter{
		limit:   rate.Limit(requestsPerMinute / 60.0),
		burst:   burst,
		blocked: blocked,
		buckets: make(map[string]*rate.Limiter),
	}
}

func (l *SenderLimiter) CanProcess(msg bus.InboundMessage) bool {
	if _, ok := l.blocked[msg.SenderID]; ok {
		logger.DebugCF("ratelimit", "Sender is blocked", map[string]interface{}{
			"channel":   msg.Channel,
			"sender_id": msg.SenderID,
		})
		return false
	}

	l.mu.Lock()
	bucket, ok := l.buckets[msg.SenderID]
	if !ok {
		bucket = rate.NewLimiter(l.limit, l.burst)
		l.buckets[msg.SenderID] = bucket
	}
	l.mu.Unlock()

	if !bucket.Allow() {
		logger.WarnCF("ratelimit", "Sender exceeded rate limit", map[string]interface{}{
			"channel":   msg.Channel,
			"sender_id": msg.SenderID,
		})
		return false
	}
	return true
}
