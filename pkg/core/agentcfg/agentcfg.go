// Package agentcfg is the layered agent configuration: built-in defaults,
// then the repository default file, then the local override file, then the
// environment. It is resolved again for every call so edits apply on the
// next call without a restart.
package agentcfg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/vai-callagent/internal/fsx"
	yaml "go.yaml.in/yaml/v2"
)

const (
	EnvAllowedCallers = "VAI_CALLAGENT_ALLOWED_CALLERS"
	EnvVoiceID        = "VAI_CALLAGENT_VOICE_ID"
	EnvLLMModel       = "VAI_CALLAGENT_LLM_MODEL"
	EnvTimezone       = "VAI_CALLAGENT_TIMEZONE"
)

type Config struct {
	Agent    Agent    `yaml:"agent"`
	TTS      TTS      `yaml:"tts"`
	LLM      LLM      `yaml:"llm"`
	VAD      VAD      `yaml:"vad"`
	Security Security `yaml:"security"`
	Paths    Paths    `yaml:"paths"`
	Tools    Tools    `yaml:"tools"`
	Timezone string   `yaml:"timezone"`

	// AllowedCallersEnv is the raw comma-separated environment allowlist,
	// captured at load time. It is merged with Security.AllowedCallers.
	AllowedCallersEnv string `yaml:"-"`
}

type Agent struct {
	Name      string `yaml:"name"`
	UserLabel string `yaml:"user_label"`
	Greeting  string `yaml:"greeting"`
	// Style is appended to the persona after the voice rules.
	Style string `yaml:"style"`
}

type TTS struct {
	VoiceID         string  `yaml:"voice_id"`
	Model           string  `yaml:"model"`
	Stability       float64 `yaml:"stability"`
	SimilarityBoost float64 `yaml:"similarity_boost"`
	Style           float64 `yaml:"style"`
	Speed           float64 `yaml:"speed"`
}

type LLM struct {
	Model string `yaml:"model"`
}

type VAD struct {
	ActivationThreshold float64 `yaml:"activation_threshold"`
	MinSpeechDuration   float64 `yaml:"min_speech_duration"`
	MinSilenceDuration  float64 `yaml:"min_silence_duration"`
}

type Security struct {
	AllowedCallers StringList `yaml:"allowed_callers"`
}

type Paths struct {
	SoulDir       string `yaml:"soul_dir"`
	MemoryFile    string `yaml:"memory_file"`
	TranscriptDir string `yaml:"transcript_dir"`
}

type Tools struct {
	SystemCLI       string  `yaml:"system_cli"`
	CalendarCLI     string  `yaml:"calendar_cli"`
	CalendarAccount string  `yaml:"calendar_account"`
	TasksCLI        string  `yaml:"tasks_cli"`
	SecretsCLI      string  `yaml:"secrets_cli"`
	Leases          []Lease `yaml:"leases"`
}

// Lease names a secret that tools need injected when it is missing from
// the environment.
type Lease struct {
	Env    string `yaml:"env"`
	Secret string `yaml:"secret"`
	TTL    string `yaml:"ttl"`
}

// TTLDuration parses TTL, falling back to one hour.
func (l Lease) TTLDuration() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(l.TTL))
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// StringList accepts either a single scalar or a sequence. Unquoted phone
// numbers decode as integers in YAML, so numeric scalars are kept as text.
type StringList []string

func (s *StringList) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*s = nil
	case []any:
		out := make(StringList, 0, len(v))
		for _, item := range v {
			if str, ok := scalarString(item); ok {
				out = append(out, str)
			}
		}
		*s = out
	default:
		str, ok := scalarString(v)
		if !ok {
			return fmt.Errorf("expected a string or a list, got %T", raw)
		}
		*s = StringList{str}
	}
	return nil
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	default:
		return "", false
	}
}

// Defaults are the built-in lowest layer.
func Defaults() Config {
	return Config{
		Agent: Agent{
			Name:      "Panda",
			UserLabel: "Joel",
			Greeting:  "Hey, it's Panda. What's up?",
		},
		TTS: TTS{
			VoiceID:         "bIHbv24MWmeRgasZH58o",
			Model:           "eleven_turbo_v2_5",
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Style:           0.0,
			Speed:           1.0,
		},
		LLM: LLM{Model: "anthropic/claude-sonnet-4.6"},
		VAD: VAD{
			ActivationThreshold: 0.85,
			MinSpeechDuration:   0.2,
			MinSilenceDuration:  0.7,
		},
		Paths: Paths{
			SoulDir:       "~/.agents",
			MemoryFile:    "~/.joelclaw/workspace/MEMORY.md",
			TranscriptDir: "~/.joelclaw/workspace/memory/voice",
		},
		Tools: Tools{
			SystemCLI:   "joelclaw",
			CalendarCLI: "gog",
			TasksCLI:    "todoist-cli",
			SecretsCLI:  "secrets",
			Leases: []Lease{
				{Env: "GOG_KEYRING_PASSWORD", Secret: "gog_keyring_password", TTL: "1h"},
			},
		},
		Timezone: "America/Los_Angeles",
	}
}

// DefaultLocalPath is the local override file used when none is configured.
func DefaultLocalPath() string {
	return "~/.config/vai-callagent/voice-agent.yaml"
}

// Loader resolves the layers. Getenv defaults to os.Getenv.
type Loader struct {
	DefaultPath string
	LocalPath   string
	Getenv      func(string) string
}

// Load resolves every layer. A layer file that does not exist is skipped.
// When a file exists but cannot be read or parsed, Load still returns the
// layers below it plus the environment, together with the error.
func (l Loader) Load() (Config, error) {
	getenv := l.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := Defaults()
	var errs []error
	for _, path := range []string{l.DefaultPath, l.LocalPath} {
		if err := overlayFile(&cfg, path); err != nil {
			errs = append(errs, err)
			break
		}
	}

	if v := strings.TrimSpace(getenv(EnvVoiceID)); v != "" {
		cfg.TTS.VoiceID = v
	}
	if v := strings.TrimSpace(getenv(EnvLLMModel)); v != "" {
		cfg.LLM.Model = v
	}
	if v := strings.TrimSpace(getenv(EnvTimezone)); v != "" {
		cfg.Timezone = v
	}
	cfg.AllowedCallersEnv = getenv(EnvAllowedCallers)

	cfg.Paths.SoulDir = fsx.ExpandHome(cfg.Paths.SoulDir)
	cfg.Paths.MemoryFile = fsx.ExpandHome(cfg.Paths.MemoryFile)
	cfg.Paths.TranscriptDir = fsx.ExpandHome(cfg.Paths.TranscriptDir)

	return cfg, errors.Join(errs...)
}

func overlayFile(cfg *Config, path string) error {
	path = fsx.ExpandHome(strings.TrimSpace(path))
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read agent config %s: %w", path, err)
	}
	// Decoding into the populated struct only overwrites keys present in
	// the file, which gives the per-key layering.
	next := *cfg
	next.Tools.Leases = append([]Lease(nil), cfg.Tools.Leases...)
	if err := yaml.Unmarshal(data, &next); err != nil {
		return fmt.Errorf("parse agent config %s: %w", path, err)
	}
	*cfg = next
	return nil
}

// SaveVoiceID sets tts.voice_id in the local override file, keeping every
// other key as written. The file and its directory are created if needed.
func SaveVoiceID(path, voiceID string) error {
	path = fsx.ExpandHome(strings.TrimSpace(path))
	if path == "" {
		return errors.New("no local config path configured")
	}
	var doc yaml.MapSlice
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	doc = setNested(doc, "tts", "voice_id", voiceID)
	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return fsx.WriteFileAtomic(path, out, 0o600)
}

func setNested(doc yaml.MapSlice, section, key string, value any) yaml.MapSlice {
	for i, item := range doc {
		if item.Key != section {
			continue
		}
		inner, _ := item.Value.(yaml.MapSlice)
		doc[i].Value = setKey(inner, key, value)
		return doc
	}
	return append(doc, yaml.MapItem{Key: section, Value: yaml.MapSlice{{Key: key, Value: value}}})
}

func setKey(m yaml.MapSlice, key string, value any) yaml.MapSlice {
	for i, item := range m {
		if item.Key == key {
			m[i].Value = value
			return m
		}
	}
	return append(m, yaml.MapItem{Key: key, Value: value})
}
