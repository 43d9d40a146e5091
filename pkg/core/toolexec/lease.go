package toolexec

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Lease fetches a secret from a leasing command the first time a tool needs
// it and reuses the value until shortly before its TTL runs out. Some secrets
// do not survive the host's process forking, so they are re-injected here.
//
// Lease failures are swallowed: the dependent tool simply runs without the
// secret and reports its own error.
type Lease struct {
	// EnvVar is the variable the secret is exported as.
	EnvVar string
	// Argv is the leasing command, e.g. secrets lease <name> --ttl 1h.
	Argv    []string
	TTL     time.Duration
	Timeout time.Duration

	mu      sync.Mutex
	cached  string
	expires time.Time
	now     func() time.Time
}

// NewSecretLease builds the standard "secrets lease <name> --ttl <ttl>" lease.
func NewSecretLease(envVar, cli, name string, ttl time.Duration) *Lease {
	if cli == "" {
		cli = "secrets"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Lease{
		EnvVar:  envVar,
		Argv:    []string{cli, "lease", name, "--ttl", formatTTL(ttl)},
		TTL:     ttl,
		Timeout: 5 * time.Second,
	}
}

func formatTTL(d time.Duration) string {
	switch {
	case d%time.Hour == 0:
		return strings.TrimSuffix(d.String(), "0m0s")
	case d%time.Minute == 0:
		return strings.TrimSuffix(d.String(), "0s")
	default:
		return d.String()
	}
}

func (l *Lease) clock() time.Time {
	if l.now != nil {
		return l.now()
	}
	return time.Now()
}

func (l *Lease) value(ctx context.Context, e *Executor) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cached != "" && l.clock().Before(l.expires) {
		return l.cached, true
	}
	if len(l.Argv) == 0 {
		return "", false
	}
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	leaseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The leasing command itself runs without leases.
	res := e.exec(leaseCtx, l.Argv, e.environ(), e.outputLimit)
	if !res.OK || res.Output == "" {
		e.logger.Debug("secret lease unavailable", "env", l.EnvVar, "outcome", string(res.Outcome))
		return "", false
	}
	l.cached = res.Output
	// Renew a little early so a tool never starts with a secret about to lapse.
	margin := l.TTL / 10
	l.expires = l.clock().Add(l.TTL - margin)
	return l.cached, true
}
