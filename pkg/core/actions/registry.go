// Package actions is the callable surface the conversation runtime exposes
// to the language model. Every action takes primitive arguments and answers
// with one speakable string; Dispatch never returns an error.
package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonschema"
)

// Handler runs one action. A returned error is spoken as FailurePrefix + err.
type Handler func(ctx context.Context, env *Env, args Args) (string, error)

type Action struct {
	Name        string
	Description string
	Params      []Param
	// FailurePrefix introduces handler errors, e.g. "Couldn't list voices".
	FailurePrefix string
	Handler       Handler
}

// Definition is the wire form of an action for the runtime's tool list.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type entry struct {
	action Action
	def    Definition
	schema *jsonschema.Schema
}

type Registry struct {
	byName map[string]*entry
	logger *slog.Logger
}

// NewRegistry compiles every action's argument schema. Duplicate names and
// schemas that fail to compile are programming errors and are reported.
func NewRegistry(logger *slog.Logger, actions ...Action) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{byName: make(map[string]*entry, len(actions)), logger: logger}
	compiler := jsonschema.NewCompiler()
	for _, a := range actions {
		name := strings.TrimSpace(a.Name)
		if name == "" || a.Handler == nil {
			return nil, fmt.Errorf("action %q: name and handler are required", a.Name)
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("action %q registered twice", name)
		}
		params := schemaFor(a.Params)
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("action %q: encode schema: %w", name, err)
		}
		schema, err := compiler.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("action %q: compile schema: %w", name, err)
		}
		r.byName[name] = &entry{
			action: a,
			def:    Definition{Name: name, Description: a.Description, Parameters: params},
			schema: schema,
		}
	}
	return r, nil
}

func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byName[strings.TrimSpace(name)]
	return ok
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns every action definition sorted by name.
func (r *Registry) Definitions() []Definition {
	names := r.Names()
	out := make([]Definition, 0, len(names))
	for _, name := range names {
		out = append(out, r.byName[name].def)
	}
	return out
}

// Dispatch validates raw arguments and runs the named action. Unknown
// actions, invalid arguments, handler errors and panics all come back as
// speakable text.
func (r *Registry) Dispatch(ctx context.Context, env *Env, name string, raw json.RawMessage) (out string) {
	name = strings.TrimSpace(name)
	if r == nil {
		return "Actions are not available right now."
	}
	e, ok := r.byName[name]
	if !ok {
		return fmt.Sprintf("I don't have an action called %s.", name)
	}

	if len(strings.TrimSpace(string(raw))) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	raw = coerceNumbers(e.action.Params, raw)
	if result := e.schema.ValidateJSON(raw); !result.IsValid() {
		keywords := make([]string, 0, len(result.Errors))
		for k := range result.Errors {
			keywords = append(keywords, k)
		}
		sort.Strings(keywords)
		r.logger.Debug("action arguments rejected", "action", name, "keywords", keywords)
		return fmt.Sprintf("Invalid arguments for %s (%s).", name, strings.Join(keywords, ", "))
	}
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return fmt.Sprintf("Invalid arguments for %s: %v", name, err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("action panicked", "action", name, "panic", fmt.Sprint(rec))
			out = fmt.Sprintf("Sorry, %s hit an internal error.", name)
		}
	}()

	text, err := e.action.Handler(ctx, env, newArgs(e.action.Params, values))
	if err != nil {
		prefix := e.action.FailurePrefix
		if prefix == "" {
			prefix = "Couldn't run " + name
		}
		return prefix + ": " + err.Error()
	}
	return text
}
