package transcript

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"
	"github.com/vango-go/vai-callagent/pkg/core/commands"
	"github.com/vango-go/vai-callagent/pkg/core/toolexec"
)

// EventCallCompleted is emitted once per persisted call.
const EventCallCompleted = "voice/call.completed"

// EventBus is the fire-and-forget boundary to downstream processing.
type EventBus interface {
	Emit(ctx context.Context, name string, payload []byte) error
}

// CLIBus emits events through the system CLI's send command.
type CLIBus struct {
	Runner   toolexec.Runner
	Commands commands.Catalog
}

func (b CLIBus) Emit(ctx context.Context, name string, payload []byte) error {
	if b.Runner == nil {
		return errors.New("event bus has no runner")
	}
	res := b.Runner.Run(ctx, b.Commands.SendEvent(name, string(payload)))
	if !res.OK {
		return errors.New(res.Err)
	}
	return nil
}

// Completed is the payload of EventCallCompleted.
type Completed struct {
	Transcript     string `json:"transcript"`
	Room           string `json:"room"`
	Timestamp      string `json:"timestamp"`
	Turns          int    `json:"turns"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Encode returns the canonical (RFC 8785) payload. IdempotencyKey is the
// sha256 of the canonical payload without the key, so a retried emit of
// the same call carries the same key.
func (c Completed) Encode() ([]byte, error) {
	c.IdempotencyKey = ""
	body, err := canonical(c)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(body)
	c.IdempotencyKey = hex.EncodeToString(sum[:])
	return canonical(c)
}

func canonical(c Completed) ([]byte, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize event: %w", err)
	}
	return out, nil
}
