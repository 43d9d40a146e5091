package actions

import "log/slog"

// Standard is the full action set offered on an authorized call.
func Standard() []Action {
	var all []Action
	all = append(all, voiceActions()...)
	all = append(all, calendarActions()...)
	all = append(all, taskActions()...)
	all = append(all, systemActions()...)
	all = append(all, knowledgeActions()...)
	return all
}

// NewStandardRegistry compiles Standard.
func NewStandardRegistry(logger *slog.Logger) (*Registry, error) {
	return NewRegistry(logger, Standard()...)
}
