package actions

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/vango-go/vai-callagent/pkg/core/cliout"
)

func checkHealth(ctx context.Context, env *Env, _ Args) (string, error) {
	res := env.Runner.Run(ctx, env.Commands.Status(0))
	if !res.OK {
		return res.Err, nil
	}
	return cliout.FormatHealth(res.Output), nil
}

func systemActions() []Action {
	return []Action{
		{
			Name:        "check_system_health",
			Description: "Check the health of the infrastructure: pods, worker, queues, event engine.",
			Handler:     checkHealth,
		},
		{
			Name:        "system_status",
			Description: "Get system component status from the status endpoint.",
			Handler:     checkHealth,
		},
		{
			Name:        "recent_runs",
			Description: "Check what ran recently on the event engine.",
			Handler: func(ctx context.Context, env *Env, _ Args) (string, error) {
				return env.Runner.Run(ctx, env.Commands.Runs()).Text(), nil
			},
		},
		{
			Name:        "check_runs",
			Description: "Check recent function runs: what completed, failed, or is still running.",
			Handler: func(ctx context.Context, env *Env, _ Args) (string, error) {
				return env.Runner.Run(ctx, env.Commands.Runs()).Text(), nil
			},
		},
		{
			Name:        "check_run",
			Description: "Get details of a specific run by ID.",
			Params:      []Param{{Name: "run_id", Type: String, Required: true}},
			Handler: func(ctx context.Context, env *Env, args Args) (string, error) {
				return env.Runner.Run(ctx, env.Commands.Run(args.String("run_id"))).Text(), nil
			},
		},
		{
			Name:        "check_email",
			Description: "Check the email inbox for recent open messages.",
			Handler: func(ctx context.Context, env *Env, _ Args) (string, error) {
				return env.Runner.Run(ctx, env.Commands.EmailInbox()).Text(), nil
			},
		},
		{
			Name: "send_event",
			Description: "Send an event to the event bus. Common events: system/health.requested, email/triage.requested, " +
				"tasks/triage.requested, memory/batch-review.requested. data is a JSON object string.",
			Params: []Param{
				{Name: "event_name", Type: String, Required: true},
				{Name: "data", Type: String, Default: "{}"},
			},
			FailurePrefix: "Couldn't send event",
			Handler: func(ctx context.Context, env *Env, args Args) (string, error) {
				data := args.String("data")
				if data == "" {
					data = "{}"
				}
				var obj map[string]json.RawMessage
				if err := json.Unmarshal([]byte(data), &obj); err != nil || obj == nil {
					return "", errors.New("data must be a JSON object")
				}
				return env.Runner.Run(ctx, env.Commands.SendEvent(args.String("event_name"), data)).Text(), nil
			},
		},
		{
			Name:        "call_owner",
			Description: "Place an outbound phone call with a spoken message, with SMS fallback. Use when something urgent needs attention.",
			Params:      []Param{{Name: "message", Type: String, Required: true}},
			Handler: func(ctx context.Context, env *Env, args Args) (string, error) {
				return env.Runner.Run(ctx, env.Commands.CallOwner(args.String("message"))).Text(), nil
			},
		},
		{
			Name:        "loop_status",
			Description: "Check running agent coding loops: stories completed, failures, progress.",
			Handler: func(ctx context.Context, env *Env, _ Args) (string, error) {
				return env.Runner.Run(ctx, env.Commands.LoopStatus()).Text(), nil
			},
		},
		{
			Name:        "loop_start",
			Description: "Start an agent coding loop for a project directory (absolute path). goal describes what the loop should accomplish.",
			Params: []Param{
				{Name: "project", Type: String, Required: true},
				{Name: "goal", Type: String},
			},
			Handler: func(ctx context.Context, env *Env, args Args) (string, error) {
				return env.Runner.Run(ctx, env.Commands.LoopStart(args.String("project"), args.String("goal"))).Text(), nil
			},
		},
		{
			Name:        "current_time",
			Description: "Get the current local date and time.",
			Handler: func(_ context.Context, env *Env, _ Args) (string, error) {
				return env.Clock.Spoken(), nil
			},
		},
	}
}
