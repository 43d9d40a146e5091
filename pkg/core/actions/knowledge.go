package actions

import (
	"context"

	"github.com/vango-go/vai-callagent/pkg/core/cliout"
)

const (
	noSearchHits = "Nothing found for that query."
	noVaultHits  = "Nothing found in vault notes for that query."
)

func search(collection, empty string) Handler {
	return func(ctx context.Context, env *Env, args Args) (string, error) {
		res := env.Runner.Run(ctx, env.Commands.Search(args.String("query"), collection))
		if !res.OK {
			return res.Err, nil
		}
		return cliout.FormatSearch(res.Output, empty), nil
	}
}

func knowledgeActions() []Action {
	query := []Param{{Name: "query", Type: String, Required: true}}
	return []Action{
		{
			Name:        "search_vault",
			Description: "Search across the indexed collections. Returns top results with titles and snippets.",
			Params:      query,
			Handler:     search("", noSearchHits),
		},
		{
			Name:        "search_all",
			Description: "Search all indexed collections: vault, memory, blog, logs, discoveries, transcripts.",
			Params:      query,
			Handler:     search("", noSearchHits),
		},
		{
			Name:        "vault_search",
			Description: "Search only vault notes.",
			Params:      query,
			Handler:     search("vault_notes", noVaultHits),
		},
		{
			Name: "vault_read",
			Description: "Read a vault file by reference: ADR numbers ('adr 43'), project numbers ('p9'), " +
				"paths ('docs/decisions/0043-livekit.md') or fuzzy names. Content is truncated for voice.",
			Params: []Param{{Name: "ref", Type: String, Required: true}},
			Handler: func(ctx context.Context, env *Env, args Args) (string, error) {
				res := env.Runner.Run(ctx, env.Commands.VaultRead(args.String("ref")))
				if !res.OK {
					return res.Err, nil
				}
				return cliout.VaultContent(res.Output), nil
			},
		},
		{
			Name:        "vault_list",
			Description: "List a vault section: projects, decisions, inbox, resources.",
			Params:      []Param{{Name: "section", Type: String, Default: "projects"}},
			Handler: func(ctx context.Context, env *Env, args Args) (string, error) {
				return env.Runner.Run(ctx, env.Commands.VaultList(args.String("section"))).Text(), nil
			},
		},
		{
			Name:        "recall",
			Description: "Search long-term memory for past observations, decisions, and context.",
			Params:      query,
			Handler: func(ctx context.Context, env *Env, args Args) (string, error) {
				res := env.Runner.Run(ctx, env.Commands.Recall(args.String("query")))
				if !res.OK {
					return res.Err, nil
				}
				return cliout.FormatRecall(res.Output), nil
			},
		},
		{
			Name:        "discover",
			Description: "Save an interesting URL discovery with an optional note.",
			Params: []Param{
				{Name: "url", Type: String, Required: true},
				{Name: "note", Type: String},
			},
			Handler: func(ctx context.Context, env *Env, args Args) (string, error) {
				return env.Runner.Run(ctx, env.Commands.Discover(args.String("url"), args.String("note"))).Text(), nil
			},
		},
		{
			Name:        "quick_note",
			Description: "Create a quick vault note with a title and body.",
			Params: []Param{
				{Name: "title", Type: String, Required: true},
				{Name: "body", Type: String, Required: true},
			},
			Handler: func(ctx context.Context, env *Env, args Args) (string, error) {
				return env.Runner.Run(ctx, env.Commands.Note(args.String("title"), args.String("body"))).Text(), nil
			},
		},
	}
}
