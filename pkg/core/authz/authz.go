// Package authz is the fail-closed caller gate: a call is answered only when
// its normalized caller is an exact member of the allowlist.
package authz

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/vango-go/vai-callagent/pkg/core/caller"
)

// Reason explains a denial.
type Reason string

const (
	// ReasonMissing is used when no caller token could be extracted.
	ReasonMissing Reason = "missing-or-unparseable"
	// ReasonUnknown is used when a token was present but is not allowlisted.
	ReasonUnknown Reason = "unknown"
)

// Allowlist is a set of normalized callers. The empty string is never a member.
type Allowlist map[string]struct{}

// BuildAllowlist merges configured entries with a comma-separated
// environment value. Each entry is trimmed and normalized; entries that
// normalize to "" are dropped.
func BuildAllowlist(configured []string, envRaw string) Allowlist {
	out := make(Allowlist, len(configured))
	add := func(entry string) {
		if n := caller.Normalize(strings.TrimSpace(entry)); n != "" {
			out[n] = struct{}{}
		}
	}
	for _, entry := range configured {
		add(entry)
	}
	for _, entry := range strings.Split(envRaw, ",") {
		add(entry)
	}
	return out
}

func (a Allowlist) Contains(normalized string) bool {
	if normalized == "" {
		return false
	}
	_, ok := a[normalized]
	return ok
}

// Entries returns the members in sorted order.
func (a Allowlist) Entries() []string {
	out := make([]string, 0, len(a))
	for k := range a {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type Decision struct {
	Allowed    bool
	Raw        string
	Normalized string
	// Reason is empty when Allowed is true.
	Reason Reason
}

// Authorize decides on a raw caller token. A blank token is denied as
// missing; anything else that does not match after normalization is denied
// as unknown. This includes tokens such as "unknown@host" that carry no digits.
func Authorize(rawToken string, allow Allowlist) Decision {
	raw := strings.TrimSpace(rawToken)
	d := Decision{Raw: raw, Normalized: caller.Normalize(raw)}
	switch {
	case raw == "":
		d.Reason = ReasonMissing
	case allow.Contains(d.Normalized):
		d.Allowed = true
	default:
		d.Reason = ReasonUnknown
	}
	return d
}

// Gate wraps Authorize with the decision log used for incident review.
type Gate struct {
	logger *slog.Logger
}

func NewGate(logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{logger: logger}
}

// Check extracts the caller token from room, authorizes it and logs the
// outcome: Warn on denial, Info on approval.
func (g *Gate) Check(room string, allow Allowlist) Decision {
	d := Authorize(caller.ExtractToken(room), allow)
	attrs := []any{
		"room", room,
		"raw", orEmpty(d.Raw),
		"normalized", orEmpty(d.Normalized),
	}
	if !d.Allowed {
		g.logger.Warn("rejected call", append(attrs, "reason", string(d.Reason))...)
		return d
	}
	g.logger.Info("call authorized", attrs...)
	return d
}

func orEmpty(s string) string {
	if s == "" {
		return "<empty>"
	}
	return s
}
