package actions

import (
	"context"

	"github.com/vango-go/vai-callagent/pkg/core/commands"
)

func calendarActions() []Action {
	return []Action{
		{
			Name:        "check_calendar",
			Description: "Check the calendar. day: 'today', 'tomorrow', 'week', or a date. days: how many days (default 1, use 7 for a week).",
			Params: []Param{
				{Name: "day", Type: String, Default: "today"},
				{Name: "days", Type: Integer, Default: 1, Minimum: bound(1), Maximum: bound(31)},
			},
			Handler: func(ctx context.Context, env *Env, args Args) (string, error) {
				return env.Runner.Run(ctx, env.Commands.CalendarEvents(args.String("day"), args.Int("days"), 0)).Text(), nil
			},
		},
		{
			Name:        "create_calendar_event",
			Description: "Create a calendar event. start/end: RFC3339 (2026-02-20T14:00:00-08:00) or a date for all-day. attendees: comma-separated emails.",
			Params: []Param{
				{Name: "title", Type: String, Required: true},
				{Name: "start", Type: String, Required: true},
				{Name: "end", Type: String, Required: true},
				{Name: "description", Type: String},
				{Name: "location", Type: String},
				{Name: "attendees", Type: String},
			},
			Handler: func(ctx context.Context, env *Env, args Args) (string, error) {
				inv := env.Commands.CreateEvent(commands.NewEvent{
					Title:       args.String("title"),
					Start:       args.String("start"),
					End:         args.String("end"),
					Description: args.String("description"),
					Location:    args.String("location"),
					Attendees:   args.String("attendees"),
				})
				return env.Runner.Run(ctx, inv).Text(), nil
			},
		},
		{
			Name:        "delete_calendar_event",
			Description: "Delete a calendar event by its ID.",
			Params:      []Param{{Name: "event_id", Type: String, Required: true}},
			Handler: func(ctx context.Context, env *Env, args Args) (string, error) {
				return env.Runner.Run(ctx, env.Commands.DeleteEvent(args.String("event_id"))).Text(), nil
			},
		},
	}
}
