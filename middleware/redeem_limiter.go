package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/0xkonka/CDP-backend/utils"
)

// RedeemLimiter deduplicates redemption attempts per invite code for a short
// TTL. It exists to absorb double-submits and naive retry storms before they
// reach the conditional write; the write itself is still the authority on who
// wins a race. The limiter is an explicit injected component, not a package
// singleton, so multi-instance deployments can share state through Redis.
type RedeemLimiter struct {
	ttl time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewRedeemLimiter(ttl time.Duration) *RedeemLimiter {
	l := &RedeemLimiter{
		ttl:  ttl,
		seen: make(map[string]time.Time),
	}
	go l.cleanupLoop()
	return l
}

// Allow records the key and reports whether it was unseen within the TTL.
// With Redis configured the check is a SET NX shared by every instance;
// otherwise it falls back to the process-local map.
func (l *RedeemLimiter) Allow(ctx context.Context, key string) bool {
	if utils.RedisClient != nil {
		ok, err := utils.RedisClient.SetNX(ctx, "redeem:dedup:"+key, "1", l.ttl).Result()
		if err == nil {
			return ok
		}
		// Redis errors fall through to local state rather than open the gate
	}

	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.seen[key]; ok && now.Sub(last) < l.ttl {
		return false
	}
	l.seen[key] = now
	return true
}

// Middleware keys the dedup on method, path and the invite code in the body.
// The body is re-wrapped so the handler can decode it again.
func (l *RedeemLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid request body"})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		var probe struct {
			InviteCode string `json:"invite_code"`
		}
		_ = json.Unmarshal(body, &probe)

		key := r.Method + "-" + r.URL.Path + "-" + probe.InviteCode
		if !l.Allow(r.Context(), key) {
			utils.WriteJSON(w, http.StatusTooManyRequests, utils.APIResponse{
				Success: false,
				Message: utils.MsgTooMany,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RedeemLimiter) cleanupLoop() {
	tick := time.NewTicker(l.ttl)
	defer tick.Stop()
	for range tick.C {
		cutoff := time.Now().Add(-l.ttl)
		l.mu.Lock()
		for k, t := range l.seen {
			if t.Before(cutoff) {
				delete(l.seen, k)
			}
		}
		l.mu.Unlock()
	}
}
