// Package commands builds the argv for every external tool the agent drives.
// Handlers and context sources never assemble argv by hand.
package commands

import (
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/vai-callagent/pkg/core/toolexec"
)

const (
	recallTimeout    = 10 * time.Second
	vaultReadTimeout = 15 * time.Second
	vaultListTimeout = 10 * time.Second
	callTimeout      = 60 * time.Second
	loopTimeout      = 15 * time.Second
	loopStartTimeout = 30 * time.Second

	// StructuredOutputLimit is the raw capture cap for commands whose JSON
	// output is parsed before it is spoken.
	StructuredOutputLimit = 64 << 10
)

// Catalog knows the names of the external CLIs and the calendar account.
type Catalog struct {
	SystemCLI       string
	CalendarCLI     string
	CalendarAccount string
	TasksCLI        string
}

func (c Catalog) system(timeout time.Duration, args ...string) toolexec.Invocation {
	return toolexec.Invocation{Argv: append([]string{c.SystemCLI}, args...), Timeout: timeout}
}

func (c Catalog) structured(timeout time.Duration, args ...string) toolexec.Invocation {
	inv := c.system(timeout, args...)
	inv.OutputLimit = StructuredOutputLimit
	return inv
}

func (c Catalog) tasks(args ...string) toolexec.Invocation {
	return toolexec.Invocation{Argv: append([]string{c.TasksCLI}, args...)}
}

// CalendarEvents lists events. day is "today", "tomorrow", "week" or a date.
func (c Catalog) CalendarEvents(day string, days int, timeout time.Duration) toolexec.Invocation {
	if days <= 0 {
		days = 1
	}
	argv := []string{c.CalendarCLI, "cal", "events", c.CalendarAccount, "-a", c.CalendarAccount, "--plain"}
	switch {
	case day == "week":
		argv = append(argv, "--week")
	case day == "today" && days == 1:
		argv = append(argv, "--today")
	case day == "tomorrow" && days == 1:
		argv = append(argv, "--tomorrow")
	default:
		argv = append(argv, "--from", day, "--days", strconv.Itoa(days))
	}
	return toolexec.Invocation{Argv: argv, Timeout: timeout}
}

type NewEvent struct {
	Title       string
	Start       string
	End         string
	Description string
	Location    string
	Attendees   string
}

// CreateEvent adds an event. A start without a time component ("T") is an
// all-day event.
func (c Catalog) CreateEvent(ev NewEvent) toolexec.Invocation {
	argv := []string{
		c.CalendarCLI, "cal", "create", c.CalendarAccount,
		"-a", c.CalendarAccount, "--force",
		"--summary", ev.Title, "--from", ev.Start, "--to", ev.End,
	}
	if ev.Description != "" {
		argv = append(argv, "--description", ev.Description)
	}
	if ev.Location != "" {
		argv = append(argv, "--location", ev.Location)
	}
	if ev.Attendees != "" {
		argv = append(argv, "--attendees", ev.Attendees)
	}
	if !strings.Contains(ev.Start, "T") {
		argv = append(argv, "--all-day")
	}
	return toolexec.Invocation{Argv: argv}
}

func (c Catalog) DeleteEvent(id string) toolexec.Invocation {
	return toolexec.Invocation{Argv: []string{
		c.CalendarCLI, "cal", "event", c.CalendarAccount, id,
		"-a", c.CalendarAccount, "--delete", "--force",
	}}
}

// ListTasks uses the "today" and "inbox" shortcuts when no label or project
// narrows the listing.
func (c Catalog) ListTasks(filter, label, project string) toolexec.Invocation {
	if label == "" && project == "" {
		switch filter {
		case "today":
			return c.tasks("today")
		case "inbox":
			return c.tasks("inbox")
		}
	}
	args := []string{"list"}
	if label != "" {
		args = append(args, "--label", label)
	}
	if project != "" {
		args = append(args, "--project", project)
	}
	if filter != "" {
		args = append(args, "--filter", filter)
	}
	return c.tasks(args...)
}

func (c Catalog) SearchTasks(query string) toolexec.Invocation {
	return c.tasks("search", query)
}

type NewTask struct {
	Content  string
	Due      string
	Labels   string
	Project  string
	Priority int
}

func (c Catalog) AddTask(t NewTask) toolexec.Invocation {
	labels := t.Labels
	if labels == "" {
		labels = "voice"
	}
	args := []string{"add", t.Content, "--labels", labels}
	if t.Due != "" {
		args = append(args, "--due", t.Due)
	}
	if t.Project != "" {
		args = append(args, "--project", t.Project)
	}
	if t.Priority > 1 {
		args = append(args, "--priority", strconv.Itoa(t.Priority))
	}
	return c.tasks(args...)
}

func (c Catalog) CompleteTask(ref string) toolexec.Invocation {
	return c.tasks("complete", ref)
}

func (c Catalog) ShowTask(ref string) toolexec.Invocation {
	return c.tasks("show", ref)
}

func (c Catalog) CommentTask(ref, comment string) toolexec.Invocation {
	return c.tasks("comment-add", ref, "--content", comment)
}

func (c Catalog) Status(timeout time.Duration) toolexec.Invocation {
	return c.structured(timeout, "status")
}

// Search queries the search index, optionally narrowed to one collection.
func (c Catalog) Search(query, collection string) toolexec.Invocation {
	if collection != "" {
		return c.structured(0, "search", "--collection", collection, query)
	}
	return c.structured(0, "search", query)
}

func (c Catalog) Discover(url, note string) toolexec.Invocation {
	args := []string{"discover", "--url", url}
	if note != "" {
		args = append(args, "--note", note)
	}
	return c.system(0, args...)
}

func (c Catalog) Note(title, body string) toolexec.Invocation {
	return c.system(0, "note", "--title", title, "--body", body)
}

func (c Catalog) Runs() toolexec.Invocation {
	return c.system(0, "runs")
}

func (c Catalog) Run(id string) toolexec.Invocation {
	return c.system(0, "run", id)
}

func (c Catalog) EmailInbox() toolexec.Invocation {
	return c.system(0, "email", "inbox", "-q", "is:open", "-n", "10")
}

func (c Catalog) LoopStatus() toolexec.Invocation {
	return c.system(loopTimeout, "loop", "status")
}

// CallOwner places an outbound call that speaks msg.
func (c Catalog) CallOwner(msg string) toolexec.Invocation {
	return c.system(callTimeout, "call", msg)
}

// SendEvent emits name with a JSON payload on the event bus.
func (c Catalog) SendEvent(name, data string) toolexec.Invocation {
	if data == "" {
		data = "{}"
	}
	return c.system(0, "send", name, "-d", data)
}

func (c Catalog) VaultRead(ref string) toolexec.Invocation {
	return c.structured(vaultReadTimeout, "vault", "read", ref)
}

func (c Catalog) VaultList(section string) toolexec.Invocation {
	if section == "" {
		section = "projects"
	}
	return c.system(vaultListTimeout, "vault", "ls", section)
}

func (c Catalog) Recall(query string) toolexec.Invocation {
	return c.structured(recallTimeout, "recall", query)
}

func (c Catalog) LoopStart(project, goal string) toolexec.Invocation {
	args := []string{"loop", "start", "--project", project}
	if goal != "" {
		args = append(args, "--goal", goal)
	}
	return c.system(loopStartTimeout, args...)
}
