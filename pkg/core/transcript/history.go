package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Message is one history item as the conversation runtime reports it.
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// Content is message text. The runtime sends either a plain string or a list
// of parts; parts without text are ignored.
type Content string

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Content(s)
		return nil
	case '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		texts := make([]string, 0, len(parts))
		for _, raw := range parts {
			var part struct {
				Text string `json:"text"`
			}
			if json.Unmarshal(raw, &part) != nil {
				continue
			}
			texts = append(texts, part.Text)
		}
		*c = Content(strings.Join(texts, " "))
		return nil
	default:
		return fmt.Errorf("content must be a string or a list of parts")
	}
}

type Turn struct {
	Speaker string
	Text    string
}

// Turns renders history into speaker-labelled turns. Messages with no text
// are dropped, so the result can be shorter than history.
func Turns(history []Message, userLabel, agentName string) []Turn {
	turns := make([]Turn, 0, len(history))
	for _, m := range history {
		text := string(m.Content)
		if text == "" {
			continue
		}
		speaker := agentName
		if m.Role == "user" {
			speaker = userLabel
		}
		turns = append(turns, Turn{Speaker: speaker, Text: text})
	}
	return turns
}

// Render formats turns as "**Speaker**: text" blocks separated by blank lines.
func Render(turns []Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, "**"+t.Speaker+"**: "+t.Text)
	}
	return strings.Join(lines, "\n\n")
}
