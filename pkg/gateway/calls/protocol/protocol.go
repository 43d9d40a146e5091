// Package protocol is the websocket frame codec between a conversation
// runtime and the call core. Every frame is a JSON object with a "type".
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vango-go/vai-callagent/pkg/core/actions"
	"github.com/vango-go/vai-callagent/pkg/core/session"
	"github.com/vango-go/vai-callagent/pkg/core/transcript"
	"github.com/vango-go/vai-callagent/pkg/core/voice/tts"
)

const ProtocolVersion1 = "1"

const (
	TypeHello          = "hello"
	TypeToolCall       = "tool_call"
	TypeSessionClose   = "session_close"
	TypePipelineFailed = "pipeline_failed"

	TypeCallRejected  = "call_rejected"
	TypeCallAccepted  = "call_accepted"
	TypeOpeningPrompt = "opening_prompt"
	TypeToolResult    = "tool_result"
	TypeVoiceUpdate   = "voice_update"
	TypeSessionClosed = "session_closed"
	TypeWarning       = "warning"
	TypeError         = "error"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

type Runtime struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// Hello opens a call. The second '_'-separated segment of RoomName is the
// caller token.
type Hello struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	RoomName        string  `json:"room_name"`
	Runtime         Runtime `json:"runtime,omitempty"`
}

type ToolCall struct {
	Type      string          `json:"type"`
	CallID    string          `json:"call_id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type SessionClose struct {
	Type    string               `json:"type"`
	History []transcript.Message `json:"history"`
}

// PipelineFailed reports that the runtime could not start or keep the
// speech pipeline. The core closes the call as if the runtime hung up.
type PipelineFailed struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case TypeHello:
		var msg Hello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		if err := ValidateHello(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeToolCall:
		var msg ToolCall
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid tool_call frame", "")
		}
		msg.CallID = strings.TrimSpace(msg.CallID)
		msg.Name = strings.TrimSpace(msg.Name)
		if msg.CallID == "" {
			return nil, badRequest("tool_call.call_id is required", "call_id")
		}
		if msg.Name == "" {
			return nil, badRequest("tool_call.name is required", "name")
		}
		args, err := normalizeArguments(msg.Arguments)
		if err != nil {
			return nil, err
		}
		msg.Arguments = args
		return msg, nil
	case TypeSessionClose:
		var msg SessionClose
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid session_close frame", "history")
		}
		return msg, nil
	case TypePipelineFailed:
		var msg PipelineFailed
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid pipeline_failed frame", "")
		}
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

func ValidateHello(msg Hello) error {
	version := strings.TrimSpace(msg.ProtocolVersion)
	if version == "" {
		return badRequest("hello.protocol_version is required", "protocol_version")
	}
	if version != ProtocolVersion1 {
		return unsupported("unsupported protocol version", "protocol_version")
	}
	if strings.TrimSpace(msg.RoomName) == "" {
		return badRequest("hello.room_name is required", "room_name")
	}
	return nil
}

// normalizeArguments accepts an object, null, or an object encoded as a JSON
// string, which some model runtimes forward unparsed.
func normalizeArguments(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}"), nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, badRequest("tool_call.arguments must be an object", "arguments")
		}
		if strings.TrimSpace(s) == "" {
			return json.RawMessage("{}"), nil
		}
		trimmed = []byte(s)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, badRequest("tool_call.arguments must be an object", "arguments")
	}
	return json.RawMessage(trimmed), nil
}

type Persona struct {
	Name         string `json:"name,omitempty"`
	Instructions string `json:"instructions"`
	Prompt       string `json:"prompt,omitempty"`
}

type CallRejected struct {
	Type          string         `json:"type"`
	SessionID     string         `json:"session_id"`
	Reason        string         `json:"reason"`
	Persona       Persona        `json:"persona"`
	Say           string         `json:"say"`
	HangupAfterMS int64          `json:"hangup_after_ms"`
	Speech        session.Speech `json:"speech"`
}

type CallAccepted struct {
	Type      string               `json:"type"`
	SessionID string               `json:"session_id"`
	Caller    string               `json:"caller"`
	Persona   Persona              `json:"persona"`
	Speech    session.Speech       `json:"speech"`
	Tools     []actions.Definition `json:"tools"`
}

type OpeningPrompt struct {
	Type         string   `json:"type"`
	SessionID    string   `json:"session_id"`
	Prompt       string   `json:"prompt"`
	ContextChars int      `json:"context_chars"`
	Omitted      []string `json:"omitted,omitempty"`
}

type ToolResult struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	Output string `json:"output"`
}

type VoiceUpdate struct {
	Type string       `json:"type"`
	TTS  tts.Settings `json:"tts"`
}

type SessionClosed struct {
	Type      string `json:"type"`
	Persisted bool   `json:"persisted"`
	Turns     int    `json:"turns"`
	Record    string `json:"record,omitempty"`
}

type ServerWarning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ServerError struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Param     string `json:"param,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	Close     bool   `json:"close,omitempty"`
}
