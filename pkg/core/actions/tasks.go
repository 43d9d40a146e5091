package actions

import (
	"context"

	"github.com/vango-go/vai-callagent/pkg/core/commands"
)

func taskActions() []Action {
	ref := Param{Name: "task_ref", Type: String, Required: true, Description: "Task name, ID, or 'id:xxx'."}
	return []Action{
		{
			Name:        "list_tasks",
			Description: "List tasks. filter: 'today', 'overdue', 'inbox', etc. label: filter by label. project: filter by project name.",
			Params: []Param{
				{Name: "filter", Type: String},
				{Name: "label", Type: String},
				{Name: "project", Type: String},
			},
			Handler: func(ctx context.Context, env *Env, args Args) (string, error) {
				inv := env.Commands.ListTasks(args.String("filter"), args.String("label"), args.String("project"))
				return env.Runner.Run(ctx, inv).Text(), nil
			},
		},
		{
			Name:        "search_tasks",
			Description: "Search tasks by text content.",
			Params:      []Param{{Name: "query", Type: String, Required: true}},
			Handler: func(ctx context.Context, env *Env, args Args) (string, error) {
				return env.Runner.Run(ctx, env.Commands.SearchTasks(args.String("query"))).Text(), nil
			},
		},
		{
			Name:        "add_task",
			Description: "Add a task. labels: comma-separated. due: natural language ('tomorrow 2pm', 'friday'). priority: 1-4 (4=urgent).",
			Params: []Param{
				{Name: "content", Type: String, Required: true},
				{Name: "due", Type: String},
				{Name: "labels", Type: String, Default: "voice"},
				{Name: "project", Type: String},
				{Name: "priority", Type: Integer, Default: 1, Minimum: bound(1), Maximum: bound(4)},
			},
			Handler: func(ctx context.Context, env *Env, args Args) (string, error) {
				inv := env.Commands.AddTask(commands.NewTask{
					Content:  args.String("content"),
					Due:      args.String("due"),
					Labels:   args.String("labels"),
					Project:  args.String("project"),
					Priority: args.Int("priority"),
				})
				return env.Runner.Run(ctx, inv).Text(), nil
			},
		},
		{
			Name:        "complete_task",
			Description: "Complete or close a task.",
			Params:      []Param{ref},
			Handler: func(ctx context.Context, env *Env, args Args) (string, error) {
				return env.Runner.Run(ctx, env.Commands.CompleteTask(args.String("task_ref"))).Text(), nil
			},
		},
		{
			Name:        "show_task",
			Description: "Show full task details including comments.",
			Params:      []Param{ref},
			Handler: func(ctx context.Context, env *Env, args Args) (string, error) {
				return env.Runner.Run(ctx, env.Commands.ShowTask(args.String("task_ref"))).Text(), nil
			},
		},
		{
			Name:        "comment_on_task",
			Description: "Add a comment to a task.",
			Params:      []Param{ref, {Name: "comment", Type: String, Required: true}},
			Handler: func(ctx context.Context, env *Env, args Args) (string, error) {
				inv := env.Commands.CommentTask(args.String("task_ref"), args.String("comment"))
				return env.Runner.Run(ctx, inv).Text(), nil
			},
		},
	}
}
