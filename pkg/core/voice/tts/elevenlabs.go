package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vango-go/vai-callagent/pkg/core/clip"
)

const elevenLabsDefaultBaseURL = "https://api.elevenlabs.io"

// Voice is one entry of the provider's voice catalog.
type Voice struct {
	ID       string `json:"voice_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Catalog lists the voices a session may switch to.
type Catalog interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}

// ElevenLabsCatalog reads the ElevenLabs voice library. Synthesis itself is
// done by the conversation runtime; this client only browses voices.
type ElevenLabsCatalog struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

func NewElevenLabs(apiKey string) *ElevenLabsCatalog {
	return NewElevenLabsWithClient(apiKey, &http.Client{Timeout: 10 * time.Second})
}

func NewElevenLabsWithClient(apiKey string, client *http.Client) *ElevenLabsCatalog {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ElevenLabsCatalog{
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: client,
		baseURL:    elevenLabsDefaultBaseURL,
	}
}

func (e *ElevenLabsCatalog) WithBaseURL(base string) *ElevenLabsCatalog {
	if e == nil {
		return e
	}
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base != "" {
		e.baseURL = base
	}
	return e
}

func (e *ElevenLabsCatalog) ListVoices(ctx context.Context) ([]Voice, error) {
	if e.apiKey == "" {
		return nil, fmt.Errorf("elevenlabs api key is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read voices: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := clip.Runes(strings.TrimSpace(string(body)), 200)
		return nil, fmt.Errorf("elevenlabs returned %d: %s", resp.StatusCode, msg)
	}

	var payload struct {
		Voices []Voice `json:"voices"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode voices: %w", err)
	}
	return payload.Voices, nil
}
