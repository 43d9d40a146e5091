// Package transcript persists a finished call: a markdown record on disk and
// a completion event for downstream processing. Nothing here returns an
// error to the caller; the call has already ended.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vango-go/vai-callagent/internal/fsx"
	"github.com/vango-go/vai-callagent/pkg/core/clip"
	"github.com/vango-go/vai-callagent/pkg/core/clock"
)

const (
	// MinHistory is the shortest history that counts as a conversation.
	MinHistory = 2

	EventTranscriptLimit = 5000

	fileStampLayout = "2006-01-02-150405"
	maxNameAttempts = 100
	emitTimeout     = 30 * time.Second
)

// Record describes what Persist did.
type Record struct {
	Path      string
	Timestamp string
	Turns     int
	// Skipped is set when the history was too short to be a conversation.
	Skipped bool
	Written bool
	Emitted bool
}

type Options struct {
	Dir       string
	Bus       EventBus
	Clock     clock.Clock
	Logger    *slog.Logger
	UserLabel string
	AgentName string
}

type Persister struct {
	dir       string
	bus       EventBus
	clock     clock.Clock
	logger    *slog.Logger
	userLabel string
	agentName string
}

func New(opts Options) *Persister {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Persister{
		dir:       opts.Dir,
		bus:       opts.Bus,
		clock:     opts.Clock,
		logger:    logger,
		userLabel: opts.UserLabel,
		agentName: opts.AgentName,
	}
}

// Persist writes the record and emits the completion event. A failed write
// does not stop the event; the downstream debrief only needs the text.
func (p *Persister) Persist(ctx context.Context, room string, history []Message) Record {
	if len(history) < MinHistory {
		return Record{Skipped: true}
	}
	turns := Turns(history, p.userLabel, p.agentName)
	if len(turns) == 0 {
		return Record{Skipped: true}
	}

	now := p.clock.Now()
	rec := Record{Timestamp: now.Format(fileStampLayout), Turns: len(turns)}
	text := Render(turns)

	path, err := p.write(now, rec.Timestamp, room, text)
	if err != nil {
		p.logger.Error("failed to save transcript", "room", room, "error", err)
	} else {
		rec.Path = path
		rec.Written = true
	}

	if err := p.emit(ctx, room, rec, text); err != nil {
		p.logger.Error("failed to emit call completed", "room", room, "error", err)
	} else {
		rec.Emitted = true
	}

	if rec.Written {
		p.logger.Info("call transcript saved", "path", rec.Path, "turns", rec.Turns)
	}
	return rec
}

func (p *Persister) write(now time.Time, stamp, room, text string) (string, error) {
	if p.dir == "" {
		return "", errors.New("transcript directory is not configured")
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return "", fmt.Errorf("create transcript dir: %w", err)
	}
	body := fmt.Sprintf("---\ntype: voice-call\ndate: %s\nroom: %s\n---\n\n# Voice Call — %s\n\n%s\n",
		now.Format(time.RFC3339), room, stamp, text)

	for i := 1; i <= maxNameAttempts; i++ {
		name := stamp + ".md"
		if i > 1 {
			name = fmt.Sprintf("%s-%d.md", stamp, i)
		}
		path := filepath.Join(p.dir, name)
		err := fsx.CreateExclusive(path, []byte(body), 0o644)
		if errors.Is(err, fsx.ErrExists) {
			continue
		}
		if err != nil {
			return "", err
		}
		return path, nil
	}
	return "", fmt.Errorf("no free record name for %s", stamp)
}

func (p *Persister) emit(ctx context.Context, room string, rec Record, text string) error {
	if p.bus == nil {
		return errors.New("no event bus configured")
	}
	payload, err := Completed{
		Transcript: clip.Runes(text, EventTranscriptLimit),
		Room:       room,
		Timestamp:  rec.Timestamp,
		Turns:      rec.Turns,
	}.Encode()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
	defer cancel()
	return p.bus.Emit(ctx, EventCallCompleted, payload)
}
