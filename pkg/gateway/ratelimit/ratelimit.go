package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net"
	"sync"
	"time"
)

type Config struct {
	// Live calls one runtime principal may hold at once. 0 => unlimited.
	MaxConcurrentCalls int

	// Action invocations within one call (token bucket). 0 => unlimited.
	ActionRPS   float64
	ActionBurst int

	// Operational bounds for the in-memory map (single-process only).
	MaxEntries int
	EntryTTL   time.Duration
}

type Limiter struct {
	cfg Config

	mu sync.Mutex
	m  map[string]*principalLimiter
}

type principalLimiter struct {
	callSem  chan struct{}
	lastSeen time.Time
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	return &Limiter{
		cfg: cfg,
		m:   make(map[string]*principalLimiter),
	}
}

func PrincipalKeyFromAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	// 16 bytes => 32 hex chars; enough to avoid collisions in practice.
	return "k_" + hex.EncodeToString(sum[:16])
}

// PrincipalKeyFromIP buckets IPv6 clients by /64 so one host cannot rotate
// through its prefix.
func PrincipalKeyFromIP(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "ip_unknown"
	}
	if v4 := parsed.To4(); v4 != nil {
		return "ip4_" + v4.String()
	}
	masked := parsed.Mask(net.CIDRMask(64, 128))
	return "ip6_" + masked.String()
}

type Permit struct {
	release func()
}

func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	p.release()
	p.release = nil
}

type Decision struct {
	Allowed    bool
	RetryAfter int
	Permit     *Permit
}

// AcquireCall reserves one live call slot for principal. The permit must be
// released when the call ends.
func (l *Limiter) AcquireCall(principal string, now time.Time) Decision {
	if l == nil || l.cfg.MaxConcurrentCalls <= 0 {
		return Decision{Allowed: true, Permit: &Permit{release: func() {}}}
	}
	if principal == "" {
		principal = "anonymous"
	}

	pl := l.getOrCreate(principal, now)
	select {
	case pl.callSem <- struct{}{}:
		return Decision{
			Allowed: true,
			Permit:  &Permit{release: func() { <-pl.callSem }},
		}
	default:
		return Decision{Allowed: false, RetryAfter: 1}
	}
}

// ActionBucket returns a fresh per-call bucket, or nil when actions are
// unlimited.
func (l *Limiter) ActionBucket() *Bucket {
	if l == nil || l.cfg.ActionRPS <= 0 || l.cfg.ActionBurst <= 0 {
		return nil
	}
	return NewBucket(l.cfg.ActionRPS, l.cfg.ActionBurst)
}

func (l *Limiter) getOrCreate(principal string, now time.Time) *principalLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if pl, ok := l.m[principal]; ok {
		pl.lastSeen = now
		return pl
	}

	if len(l.m) >= l.cfg.MaxEntries {
		l.gcLocked(now)
		// If still too big, drop one idle entry (bounded memory > perfect fairness).
		if len(l.m) >= l.cfg.MaxEntries {
			for k, v := range l.m {
				if len(v.callSem) == 0 {
					delete(l.m, k)
					break
				}
			}
		}
	}

	pl := &principalLimiter{
		callSem:  make(chan struct{}, l.cfg.MaxConcurrentCalls),
		lastSeen: now,
	}
	l.m[principal] = pl
	return pl
}

func (l *Limiter) gcLocked(now time.Time) {
	ttl := l.cfg.EntryTTL
	for k, v := range l.m {
		// Entries holding live calls are never collected; their permits
		// point at the semaphore.
		if len(v.callSem) == 0 && now.Sub(v.lastSeen) > ttl {
			delete(l.m, k)
		}
	}
}

// Bucket is a token bucket. A nil *Bucket allows everything.
type Bucket struct {
	mu sync.Mutex

	rps      float64
	capacity float64

	tokens float64
	last   time.Time
}

func NewBucket(rps float64, burst int) *Bucket {
	return &Bucket{rps: rps, capacity: float64(burst), tokens: float64(burst)}
}

// Allow takes one token. When none is available it reports the whole
// seconds until one will be.
func (b *Bucket) Allow(now time.Time) (bool, int) {
	if b == nil {
		return true, 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.last.IsZero() {
		b.last = now
	}
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(b.capacity, b.tokens+(elapsed*b.rps))
		b.last = now
	}

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true, 0
	}

	needed := 1.0 - b.tokens
	retryAfter := int(math.Ceil(needed / b.rps))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}
