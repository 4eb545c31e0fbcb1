// Package ratelimit provides a token-bucket rate limiter for outbound
// calls. internal/megaclient throttles its mega.nz API calls with one;
// the .dlc decoder does not use a limiter.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Default scopes. KeyExchangeRatePerSec/Burst size the limiter returned
// by NewKeyExchangeRateLimiter; the .dlc decoder does not construct one.
// MegaAPIRatePerSec/Burst throttle calls issued directly against the
// mega.nz API via internal/megaclient.
const (
	KeyExchangeRatePerSec = 2.0
	KeyExchangeBurst      = 10.0

	MegaAPIRatePerSec = 5.0
	MegaAPIBurst      = 20.0

	UtilizationWarnThreshold     = 0.8
	UtilizationSuppressThreshold = 0.5
	NotifyMinInterval            = 5 * time.Second
)

// RateLimiter implements a token bucket rate limiter. It allows
// bursts up to maxTokens, then refills at refillRate tokens/second.
// Thread-safe: all mutable state is protected by a sync.Mutex.
type RateLimiter struct {
	tokens      float64
	maxTokens   float64
	refillRate  float64
	lastRefill  time.Time
	cooldownEnd time.Time
	mu          sync.Mutex

	hardLimitPerS  float64
	notifyFn       func(level, message string)
	warningActive  bool
	lastNotifyTime time.Time
}

// NewRateLimiter creates a rate limiter that adds tokensPerSecond
// tokens, capped at burstSize.
func NewRateLimiter(tokensPerSecond, burstSize float64) *RateLimiter {
	return &RateLimiter{
		tokens:     burstSize,
		maxTokens:  burstSize,
		refillRate: tokensPerSecond,
		lastRefill: time.Now(),
	}
}

// NewKeyExchangeRateLimiter creates a limiter sized for the .dlc
// key-exchange service.
func NewKeyExchangeRateLimiter() *RateLimiter {
	return NewRateLimiter(KeyExchangeRatePerSec, KeyExchangeBurst)
}

// NewMegaAPIRateLimiter creates a limiter sized for direct mega.nz API
// traffic issued via internal/megaclient.
func NewMegaAPIRateLimiter() *RateLimiter {
	return NewRateLimiter(MegaAPIRatePerSec, MegaAPIBurst)
}

// SetHardLimit sets the server hard limit (requests/second) used only
// for utilization reporting.
func (rl *RateLimiter) SetHardLimit(hardLimitPerS float64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.hardLimitPerS = hardLimitPerS
}

// SetNotifyFunc sets the callback for rate-limit visibility notices.
func (rl *RateLimiter) SetNotifyFunc(fn func(level, message string)) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.notifyFn = fn
}

// Utilization returns refillRate/hardLimitPerS, or 0 if no hard limit
// was set.
func (rl *RateLimiter) Utilization() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.hardLimitPerS <= 0 {
		return 0
	}
	return rl.refillRate / rl.hardLimitPerS
}

// emitUtilizationNotice applies hysteresis around the warn/suppress
// thresholds and throttles notices to NotifyMinInterval.
func (rl *RateLimiter) emitUtilizationNotice(actualWait time.Duration) {
	rl.mu.Lock()
	fn := rl.notifyFn
	if fn == nil {
		rl.mu.Unlock()
		return
	}

	util := 0.0
	if rl.hardLimitPerS > 0 {
		util = rl.refillRate / rl.hardLimitPerS
	}

	if util >= UtilizationWarnThreshold {
		rl.warningActive = true
	} else if util < UtilizationSuppressThreshold {
		rl.warningActive = false
	}

	if !rl.warningActive {
		rl.mu.Unlock()
		return
	}
	if !rl.lastNotifyTime.IsZero() && time.Since(rl.lastNotifyTime) < NotifyMinInterval {
		rl.mu.Unlock()
		return
	}
	rl.lastNotifyTime = time.Now()
	rl.mu.Unlock()

	fn("warn", fmt.Sprintf("rate limiting: %.0f%% of capacity, waited %.1fs", util*100, actualWait.Seconds()))
}

// TryAcquire attempts to acquire one token without blocking.
func (rl *RateLimiter) TryAcquire() bool {
	return rl.tryAcquire()
}

// Reconfigure changes the rate and burst parameters of a running
// limiter, capping current tokens to the new burst if needed.
func (rl *RateLimiter) Reconfigure(rate, burst float64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refillRate = rate
	rl.maxTokens = burst
	if rl.tokens > burst {
		rl.tokens = burst
	}
}

// Wait blocks until a token is available or ctx is cancelled. If a
// cooldown is active (set via SetCooldown after a rate-limit
// response), Wait blocks until it expires before acquiring.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	startTime := time.Now()

	if cooldown := rl.CooldownRemaining(); cooldown > 0 {
		rl.mu.Lock()
		fn := rl.notifyFn
		rl.mu.Unlock()
		msg := fmt.Sprintf("rate limited (cooldown): waiting ~%.1fs", cooldown.Seconds())
		if fn != nil {
			fn("warn", msg)
		} else {
			log.Print(msg)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cooldown):
		}
	}

	if rl.tryAcquire() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if rl.tryAcquire() {
			if actualWait := time.Since(startTime); actualWait > 100*time.Millisecond {
				rl.emitUtilizationNotice(actualWait)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rl.timeUntilNextToken()):
		}
	}
}

func (rl *RateLimiter) tryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now

	if rl.tokens >= 1.0 {
		rl.tokens -= 1.0
		return true
	}
	return false
}

func (rl *RateLimiter) timeUntilNextToken() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	tokensNeeded := 1.0 - rl.tokens
	if tokensNeeded <= 0 {
		return 0
	}
	return time.Duration(tokensNeeded / rl.refillRate * float64(time.Second))
}

// GetCurrentTokens returns the current token count, refilling first.
func (rl *RateLimiter) GetCurrentTokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	tokens := rl.tokens + elapsed*rl.refillRate
	if tokens > rl.maxTokens {
		tokens = rl.maxTokens
	}
	return tokens
}

// Drain empties the token bucket. Subsequent Wait calls block until
// tokens refill.
func (rl *RateLimiter) Drain() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.tokens = 0
	rl.lastRefill = time.Now()
}

// SetCooldown sets a cooldown period during which all Wait calls
// block. Merge semantics: an existing cooldown that extends further
// into the future is preserved.
func (rl *RateLimiter) SetCooldown(d time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	newEnd := time.Now().Add(d)
	if newEnd.After(rl.cooldownEnd) {
		rl.cooldownEnd = newEnd
	}
}

// CooldownRemaining returns the time left on the active cooldown, or
// 0 if none is active.
func (rl *RateLimiter) CooldownRemaining() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.cooldownEnd.IsZero() {
		return 0
	}
	remaining := time.Until(rl.cooldownEnd)
	if remaining <= 0 {
		return 0
	}
	return remaining
}
