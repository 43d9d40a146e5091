package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-callagent/pkg/core/session"
	"github.com/vango-go/vai-callagent/pkg/core/transcript"
	"github.com/vango-go/vai-callagent/pkg/gateway/apierror"
	"github.com/vango-go/vai-callagent/pkg/gateway/calls/protocol"
	"github.com/vango-go/vai-callagent/pkg/gateway/calls/sessions"
	"github.com/vango-go/vai-callagent/pkg/gateway/config"
	"github.com/vango-go/vai-callagent/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-callagent/pkg/gateway/metrics"
	"github.com/vango-go/vai-callagent/pkg/gateway/mw"
	"github.com/vango-go/vai-callagent/pkg/gateway/principal"
	"github.com/vango-go/vai-callagent/pkg/gateway/ratelimit"
)

// CallBeginner starts a call for a room. *session.Orchestrator implements it.
type CallBeginner interface {
	Begin(ctx context.Context, room string) *session.Session
}

// CallHandler serves /v1/calls: one websocket per call between a
// conversation runtime and the core.
type CallHandler struct {
	Config    config.Config
	Calls     CallBeginner
	Logger    *slog.Logger
	Limiter   *ratelimit.Limiter
	Lifecycle *lifecycle.Lifecycle
	Tracker   *sessions.Tracker
	Metrics   *metrics.Metrics
}

func (h CallHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if h.Lifecycle.IsDraining() {
		writeError(w, r, http.StatusServiceUnavailable, &apierror.Error{
			Type:    apierror.TypeOverloaded,
			Message: "call agent is draining",
			Code:    "draining",
		})
		return
	}
	if !mw.OriginAllowed(h.Config.CORSAllowedOrigins, r.Header.Get("Origin")) {
		writeError(w, r, http.StatusForbidden, &apierror.Error{
			Type:    apierror.TypePermission,
			Message: "origin is not allowed",
			Param:   "Origin",
		})
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reqID, _ := mw.RequestIDFrom(r.Context())
	c := &callConn{
		ws:           ws,
		writeTimeout: durationOr(h.Config.CallWSWriteTimeout, 5*time.Second),
		metrics:      h.Metrics,
	}
	defer c.close()

	if h.Config.CallMaxJSONMessageBytes > 0 {
		ws.SetReadLimit(h.Config.CallMaxJSONMessageBytes)
	}

	hello, ok := c.readHello(durationOr(h.Config.CallHandshakeTimeout, 5*time.Second))
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), durationOr(h.Config.CallMaxDuration, 2*time.Hour))
	defer cancel()

	sess := h.Calls.Begin(ctx, hello.RoomName)
	logger = logger.With("call_id", sess.ID(), "request_id", reqID)
	logger.Info("call started",
		"principal", principal.Resolve(r, h.Config),
		"runtime", hello.Runtime.Name, "runtime_version", hello.Runtime.Version,
		"allowed", sess.Allowed(),
	)

	unregister := h.Tracker.Register(sess.ID(), sessions.Handle{
		Room:   sess.Room(),
		Cancel: cancel,
		Warn: func(code, message string) error {
			return c.send(protocol.ServerWarning{Type: protocol.TypeWarning, Code: code, Message: message})
		},
	})
	defer unregister()

	// Ends the read loop when the call outlives its budget or is cancelled.
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			code := "cancelled"
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				code = "max_duration"
			}
			c.fail(code, "call ended by the call agent")
		case <-stopWatch:
		}
	}()
	go c.pingLoop(durationOr(h.Config.CallWSPingInterval, 20*time.Second), stopWatch)

	if rej, rejected := sess.Rejection(); rejected {
		if err := c.send(protocol.CallRejected{
			Type:          protocol.TypeCallRejected,
			SessionID:     sess.ID(),
			Reason:        string(sess.Decision().Reason),
			Persona:       protocol.Persona{Instructions: rej.Instructions, Prompt: rej.Prompt},
			Say:           rej.Say,
			HangupAfterMS: rej.HangupAfter.Milliseconds(),
			Speech:        sess.Speech(),
		}); err != nil {
			h.finish(ctx, logger, c, sess, nil, false)
			return
		}
		// The runtime hangs up after the line is spoken; do not wait forever.
		_ = ws.SetReadDeadline(time.Now().Add(rej.HangupAfter + durationOr(h.Config.CallHandshakeTimeout, 5*time.Second)))
	} else {
		if err := c.send(protocol.CallAccepted{
			Type:      protocol.TypeCallAccepted,
			SessionID: sess.ID(),
			Caller:    sess.Decision().Normalized,
			Persona:   protocol.Persona{Name: sess.AgentName(), Instructions: sess.Instructions()},
			Speech:    sess.Speech(),
			Tools:     sess.Tools(),
		}); err != nil {
			h.finish(ctx, logger, c, sess, nil, false)
			return
		}
		go h.sendOpening(ctx, logger, c, sess)
	}

	h.readLoop(ctx, logger, c, sess)
}

func (h CallHandler) sendOpening(ctx context.Context, logger *slog.Logger, c *callConn, sess *session.Session) {
	opening, err := sess.OpeningPrompt(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrClosed) && ctx.Err() == nil {
			logger.Warn("opening prompt unavailable", "error", err)
		}
		return
	}
	_ = c.send(protocol.OpeningPrompt{
		Type:         protocol.TypeOpeningPrompt,
		SessionID:    sess.ID(),
		Prompt:       opening.Prompt,
		ContextChars: len(opening.Context.String()),
		Omitted:      opening.Context.Omitted,
	})
}

func (h CallHandler) readLoop(ctx context.Context, logger *slog.Logger, c *callConn, sess *session.Session) {
	bucket := h.Limiter.ActionBucket()
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.isClosed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("runtime connection lost before session_close", "error", err)
			}
			h.finish(ctx, logger, c, sess, nil, false)
			return
		}
		if messageType != websocket.TextMessage {
			_ = c.sendError("bad_request", "frames must be JSON text", "", false)
			continue
		}

		decoded, err := protocol.DecodeClientMessage(data)
		if err != nil {
			var decErr *protocol.DecodeError
			if errors.As(err, &decErr) {
				_ = c.sendError(decErr.Code, decErr.Message, decErr.Param, false)
			} else {
				_ = c.sendError("bad_request", "invalid frame", "", false)
			}
			continue
		}

		switch msg := decoded.(type) {
		case protocol.Hello:
			_ = c.sendError("bad_request", "hello already received", "type", false)
		case protocol.ToolCall:
			if ok, retryAfter := bucket.Allow(time.Now()); !ok {
				h.recordRateLimit()
				_ = c.send(protocol.ToolResult{
					Type:   protocol.TypeToolResult,
					CallID: msg.CallID,
					Name:   msg.Name,
					Output: fmt.Sprintf("Too many actions at once. Try again in %d seconds.", retryAfter),
				})
				continue
			}
			go h.invoke(ctx, logger, c, sess, msg)
		case protocol.SessionClose:
			h.finish(ctx, logger, c, sess, msg.History, true)
			return
		case protocol.PipelineFailed:
			logger.Warn("runtime pipeline failed", "message", msg.Message)
			h.finish(ctx, logger, c, sess, nil, true)
			return
		}
	}
}

func (h CallHandler) invoke(ctx context.Context, logger *slog.Logger, c *callConn, sess *session.Session, call protocol.ToolCall) {
	reply, err := sess.Invoke(ctx, call.Name, call.Arguments)
	if err != nil {
		code := "not_active"
		if errors.Is(err, session.ErrClosed) {
			code = "closed"
		} else if ctx.Err() != nil {
			return
		}
		_ = c.sendError(code, fmt.Sprintf("cannot run %s: %v", call.Name, err), "name", false)
		return
	}
	if err := c.send(protocol.ToolResult{
		Type:   protocol.TypeToolResult,
		CallID: call.CallID,
		Name:   call.Name,
		Output: reply.Output,
	}); err != nil {
		logger.Debug("tool result not delivered", "action", call.Name, "error", err)
		return
	}
	if reply.Voice != nil {
		_ = c.send(protocol.VoiceUpdate{Type: protocol.TypeVoiceUpdate, TTS: *reply.Voice})
	}
}

// finish closes the session once. History is only known when the runtime
// sent session_close; a dropped connection closes without a transcript.
func (h CallHandler) finish(ctx context.Context, logger *slog.Logger, c *callConn, sess *session.Session, history []transcript.Message, reply bool) {
	rec, err := sess.Close(context.WithoutCancel(ctx), history)
	if err != nil {
		if !errors.Is(err, session.ErrClosed) {
			logger.Error("call close failed", "error", err)
		}
		return
	}
	if !reply {
		return
	}
	_ = c.send(protocol.SessionClosed{
		Type:      protocol.TypeSessionClosed,
		Persisted: rec.Written,
		Turns:     rec.Turns,
		Record:    rec.Path,
	})
	c.closeNormal()
}

func (h CallHandler) recordRateLimit() {
	if h.Metrics != nil {
		h.Metrics.RecordRateLimitHit("action")
	}
}

func durationOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// callConn serializes writes; gorilla/websocket allows one concurrent writer.
type callConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	metrics      *metrics.Metrics

	mu     sync.Mutex
	closed bool
}

var errConnClosed = errors.New("connection closed")

func (c *callConn) readHello(timeout time.Duration) (protocol.Hello, bool) {
	_ = c.ws.SetReadDeadline(time.Now().Add(timeout))
	messageType, frame, err := c.ws.ReadMessage()
	if err != nil {
		_ = c.sendError("bad_request", "failed to read hello", "", true)
		return protocol.Hello{}, false
	}
	if messageType != websocket.TextMessage {
		_ = c.sendError("bad_request", "first frame must be hello", "", true)
		return protocol.Hello{}, false
	}
	decoded, err := protocol.DecodeClientMessage(frame)
	if err != nil {
		var decErr *protocol.DecodeError
		if errors.As(err, &decErr) {
			_ = c.sendError(decErr.Code, decErr.Message, decErr.Param, true)
		} else {
			_ = c.sendError("bad_request", "invalid hello frame", "", true)
		}
		return protocol.Hello{}, false
	}
	hello, ok := decoded.(protocol.Hello)
	if !ok {
		_ = c.sendError("bad_request", "first frame must be hello", "type", true)
		return protocol.Hello{}, false
	}
	_ = c.ws.SetReadDeadline(time.Time{})
	return hello, true
}

func (c *callConn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteJSON(v)
}

func (c *callConn) sendError(code, message, param string, closeAfter bool) error {
	if c.metrics != nil {
		c.metrics.RecordProtocolError(code)
	}
	return c.send(protocol.ServerError{
		Type:    protocol.TypeError,
		Code:    code,
		Message: message,
		Param:   param,
		Close:   closeAfter,
	})
}

// fail tells the runtime why the call is ending and drops the connection,
// which unblocks the read loop.
func (c *callConn) fail(code, message string) {
	_ = c.sendError(code, message, "", true)
	c.close()
}

func (c *callConn) pingLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(c.writeTimeout))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *callConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *callConn) closeNormal() {
	c.mu.Lock()
	if !c.closed {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.writeTimeout))
	}
	c.mu.Unlock()
	c.close()
}

func (c *callConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.ws.Close()
}
