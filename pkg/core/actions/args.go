package actions

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

type ParamType string

const (
	String  ParamType = "string"
	Integer ParamType = "integer"
	Number  ParamType = "number"
)

type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	// Default applies when the argument is absent.
	Default any
	Minimum *float64
	Maximum *float64
}

func bound(v float64) *float64 { return &v }

func schemaFor(params []Param) map[string]any {
	props := make(map[string]any, len(params))
	required := make([]string, 0)
	for _, p := range params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if p.Minimum != nil {
			prop["minimum"] = *p.Minimum
		}
		if p.Maximum != nil {
			prop["maximum"] = *p.Maximum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// coerceNumbers rewrites numeric strings such as "7" into numbers for
// integer and number params. Bounds are still enforced by the schema.
func coerceNumbers(params []Param, raw json.RawMessage) json.RawMessage {
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil || values == nil {
		return raw
	}
	changed := false
	for _, p := range params {
		if p.Type != Integer && p.Type != Number {
			continue
		}
		v, ok := values[p.Name]
		if !ok {
			continue
		}
		str, isStr := v.(string)
		if !isStr {
			continue
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		if p.Type == Integer && x != math.Trunc(x) {
			continue
		}
		values[p.Name] = x
		changed = true
	}
	if !changed {
		return raw
	}
	out, err := json.Marshal(values)
	if err != nil {
		return raw
	}
	return out
}

// Args are validated arguments with declared defaults applied on read.
type Args struct {
	values   map[string]any
	defaults map[string]any
}

func newArgs(params []Param, values map[string]any) Args {
	defaults := make(map[string]any, len(params))
	for _, p := range params {
		if p.Default != nil {
			defaults[p.Name] = p.Default
		}
	}
	if values == nil {
		values = map[string]any{}
	}
	return Args{values: values, defaults: defaults}
}

func (a Args) lookup(name string) (any, bool) {
	if v, ok := a.values[name]; ok && v != nil {
		return v, true
	}
	v, ok := a.defaults[name]
	return v, ok
}

// String returns the trimmed argument, or "".
func (a Args) String(name string) string {
	v, ok := a.lookup(name)
	if !ok {
		return ""
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	default:
		return ""
	}
}

func (a Args) Float(name string) float64 {
	v, ok := a.lookup(name)
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	default:
		return 0
	}
}

func (a Args) Int(name string) int {
	return int(math.Round(a.Float(name)))
}
