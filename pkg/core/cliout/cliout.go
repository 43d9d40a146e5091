// Package cliout reads the JSON envelope printed by the system CLI,
// {"ok": ..., "result": {...}}, and renders it as short spoken text.
//
// Every formatter falls back to the raw output, clipped to the spoken limit,
// when the envelope does not parse.
package cliout

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/vango-go/vai-callagent/pkg/core/clip"
)

var errNoResult = errors.New("cliout: no result object")

// Result decodes raw and returns its "result" object.
func Result(raw string) (map[string]any, error) {
	var env map[string]any
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("cliout: decode envelope: %w", err)
	}
	res, ok := env["result"].(map[string]any)
	if !ok {
		return nil, errNoResult
	}
	return res, nil
}

// SearchHits returns hits from either a flat "hits" list or grouped
// "results[].hits" lists.
func SearchHits(raw string) ([]map[string]any, error) {
	res, err := Result(raw)
	if err != nil {
		return nil, err
	}
	var hits []map[string]any
	if list, ok := res["hits"].([]any); ok {
		hits = appendObjects(hits, list)
		return hits, nil
	}
	if groups, ok := res["results"].([]any); ok {
		for _, g := range groups {
			group, ok := g.(map[string]any)
			if !ok {
				continue
			}
			if list, ok := group["hits"].([]any); ok {
				hits = appendObjects(hits, list)
			}
		}
	}
	return hits, nil
}

const (
	maxSearchHits  = 5
	maxSnippetLen  = 220
	maxRecallHits  = 5
	maxObservation = 200
	maxVaultRead   = 3000
	// maxRawFallback caps unparsed output. Structured commands are captured
	// with a larger limit so their JSON survives, so the fallback must clip.
	maxRawFallback = 2000
)

var (
	titleKeys   = []string{"title", "name", "path", "id"}
	snippetKeys = []string{"snippet", "summary", "observation", "content", "body", "text"}
)

// FormatSearch renders up to five hits as "- title: snippet" lines.
func FormatSearch(raw, emptyMessage string) string {
	hits, err := SearchHits(raw)
	if err != nil {
		return clip.Runes(raw, maxRawFallback)
	}
	lines := make([]string, 0, maxSearchHits)
	for i, hit := range hits {
		if i == maxSearchHits {
			break
		}
		doc := hit
		if d, ok := hit["document"]; ok {
			doc, _ = d.(map[string]any)
		}
		title := firstString(doc, titleKeys...)
		if title == "" {
			title = "Untitled"
		}
		snippet := firstString(hit, "snippet")
		if snippet == "" {
			snippet = firstString(doc, snippetKeys...)
		}
		snippet = strings.TrimSpace(clip.Flatten(snippet))
		if clipped := clip.Runes(snippet, maxSnippetLen); clipped != snippet {
			snippet = strings.TrimRight(clipped, " \t") + "..."
		}
		if snippet == "" {
			lines = append(lines, "- "+title)
			continue
		}
		lines = append(lines, "- "+title+": "+snippet)
	}
	if len(lines) == 0 {
		return emptyMessage
	}
	return strings.Join(lines, "\n")
}

type RecallHit struct {
	Observation string
	Score       float64
}

// RecallHits returns at most five hits with observations clipped to 200 runes.
func RecallHits(raw string) ([]RecallHit, error) {
	res, err := Result(raw)
	if err != nil {
		return nil, err
	}
	list, _ := res["hits"].([]any)
	out := make([]RecallHit, 0, maxRecallHits)
	for _, item := range list {
		if len(out) == maxRecallHits {
			break
		}
		h, ok := item.(map[string]any)
		if !ok {
			continue
		}
		obs, _ := h["observation"].(string)
		score, _ := h["score"].(float64)
		out = append(out, RecallHit{Observation: clip.Runes(obs, maxObservation), Score: score})
	}
	return out, nil
}

// FormatRecall renders hits as "[87%] observation" lines.
func FormatRecall(raw string) string {
	hits, err := RecallHits(raw)
	if err != nil {
		return clip.Runes(raw, maxRawFallback)
	}
	if len(hits) == 0 {
		return "No matching memories found."
	}
	lines := make([]string, 0, len(hits))
	for _, h := range hits {
		lines = append(lines, fmt.Sprintf("[%d%%] %s", int(math.Round(h.Score*100)), h.Observation))
	}
	return strings.Join(lines, "\n")
}

// VaultContent returns result.content clipped for speech. Unparseable output
// is clipped without a marker.
func VaultContent(raw string) string {
	res, err := Result(raw)
	if err != nil {
		return clip.Runes(raw, maxVaultRead)
	}
	content, ok := res["content"].(string)
	if !ok {
		content = raw
	}
	return clip.WithMarker(content, maxVaultRead, "\n... (truncated for voice)")
}

// Component is one entry of the status report.
type Component struct {
	Name   string
	OK     bool
	Detail string
}

var fallbackComponents = []string{"server", "worker", "k8s"}

// Components reads the status report. A "components" map wins; otherwise
// the legacy top-level server, worker and k8s entries are used when present.
// Components are sorted by name.
func Components(raw string) ([]Component, error) {
	res, err := Result(raw)
	if err != nil {
		return nil, err
	}
	var out []Component
	if comps, ok := res["components"].(map[string]any); ok {
		for name, v := range comps {
			c, ok := v.(map[string]any)
			if !ok {
				continue
			}
			healthy, _ := c["ok"].(bool)
			out = append(out, Component{Name: name, OK: healthy, Detail: firstString(c, "status", "message")})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		if len(out) > 0 {
			return out, nil
		}
	}
	for _, name := range fallbackComponents {
		c, ok := res[name].(map[string]any)
		if !ok {
			continue
		}
		healthy, _ := c["ok"].(bool)
		out = append(out, Component{Name: name, OK: healthy})
	}
	return out, nil
}

// FormatHealth renders "name: healthy" or "name: DOWN (detail)" joined by ". ".
func FormatHealth(raw string) string {
	comps, err := Components(raw)
	if err != nil || len(comps) == 0 {
		return clip.Runes(raw, maxRawFallback)
	}
	parts := make([]string, 0, len(comps))
	for _, c := range comps {
		status := "DOWN"
		if c.OK {
			status = "healthy"
		}
		part := c.Name + ": " + status
		if c.Detail != "" {
			part += " (" + c.Detail + ")"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ". ")
}

// Unhealthy lists the names of components that are not ok.
func Unhealthy(raw string) ([]string, error) {
	comps, err := Components(raw)
	if err != nil {
		return nil, err
	}
	var down []string
	for _, c := range comps {
		if !c.OK {
			down = append(down, c.Name)
		}
	}
	return down, nil
}

func appendObjects(dst []map[string]any, list []any) []map[string]any {
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			dst = append(dst, m)
		}
	}
	return dst
}

// firstString returns the first key whose value is a non-empty string or a
// number. A nil map yields "".
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			if v != 0 {
				return fmt.Sprintf("%v", v)
			}
		case bool:
			if v {
				return "true"
			}
		}
	}
	return ""
}
