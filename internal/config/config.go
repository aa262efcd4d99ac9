// Package config loads go-quickagent configuration from YAML, the environment
// and command-line overrides.
//
// Precedence, lowest to highest: Default(), the YAML file, environment
// variables (ApplyEnv), then flags applied by the command.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the agent.
type Config struct {
	UI     string       `yaml:"ui"`
	Camera CameraConfig `yaml:"camera"`
	Audio  AudioConfig  `yaml:"audio"`
	STT    STTConfig    `yaml:"stt"`
	LLM    LLMConfig    `yaml:"llm"`
	TTS    TTSConfig    `yaml:"tts"`
	Web    WebConfig    `yaml:"web"`
	Log    LogConfig    `yaml:"log"`
}

// CameraConfig selects the capture device, its capture settings and the
// preview box.
type CameraConfig struct {
	Index         int  `yaml:"index"`
	Width         int  `yaml:"width"`
	Height        int  `yaml:"height"`
	Framerate     int  `yaml:"framerate"`
	Quality       int  `yaml:"jpeg_quality"`
	Mirror        bool `yaml:"mirror"`
	PreviewWidth  int  `yaml:"preview_width"`
	PreviewHeight int  `yaml:"preview_height"`
	FramePeriodMs int  `yaml:"frame_period_ms"`
}

// AudioConfig selects the microphone and speaker backend.
type AudioConfig struct {
	Backend          string `yaml:"backend"`
	InputSampleRate  int    `yaml:"input_sample_rate"`
	OutputSampleRate int    `yaml:"output_sample_rate"`
}

// STTConfig configures streaming transcription.
type STTConfig struct {
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
	Language    string `yaml:"language"`
	EndpointMs  int    `yaml:"endpointing_ms"`
	SmartFormat bool   `yaml:"smart_format"`
}

// LLMConfig configures the chat-completion endpoint.
type LLMConfig struct {
	BaseURL          string  `yaml:"base_url"`
	APIKey           string  `yaml:"api_key"`
	Model            string  `yaml:"model"`
	SystemPrompt     string  `yaml:"system_prompt"`
	SystemPromptFile string  `yaml:"system_prompt_file"`
	MaxTokens        int     `yaml:"max_tokens"`
	Temperature      float64 `yaml:"temperature"`
	MaxHistory       int     `yaml:"max_history"`
}

// TTSConfig configures speech synthesis. Provider is tried first; Fallback
// providers are tried in order when it fails.
type TTSConfig struct {
	Provider      string   `yaml:"provider"`
	Fallback      []string `yaml:"fallback"`
	Voice         string   `yaml:"voice"`
	Model         string   `yaml:"model"`
	OpenAIKey     string   `yaml:"openai_api_key"`
	ElevenLabsKey string   `yaml:"elevenlabs_api_key"`
	GoogleKey     string   `yaml:"google_api_key"`
	Language      string   `yaml:"language"`
}

// WebConfig configures the dashboard shell.
type WebConfig struct {
	Port int `yaml:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Shells.
const (
	UIWeb     = "web"
	UIDesktop = "desktop"
)

// Audio backends.
const (
	AudioAuto      = "auto"
	AudioPortAudio = "portaudio"
	AudioPulse     = "pulse"
	AudioMock      = "mock"
)

// TTS providers.
const (
	TTSDeepgram   = "deepgram"
	TTSOpenAI     = "openai"
	TTSElevenLabs = "elevenlabs"
	TTSGoogle     = "google"
	TTSNone       = "none"
)

// Default returns the configuration the agent runs with when nothing is set.
func Default() *Config {
	return &Config{
		UI: UIWeb,
		Camera: CameraConfig{
			Index:         0,
			Width:         640,
			Height:        480,
			Framerate:     30,
			Quality:       80,
			PreviewWidth:  400,
			PreviewHeight: 300,
			FramePeriodMs: 30,
		},
		Audio: AudioConfig{
			Backend:          AudioAuto,
			InputSampleRate:  16000,
			OutputSampleRate: 24000,
		},
		STT: STTConfig{
			Model:       "nova-2",
			Language:    "en-US",
			EndpointMs:  300,
			SmartFormat: true,
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "llama-3.3-70b-versatile",
			MaxTokens:   1024,
			Temperature: 0.7,
		},
		TTS: TTSConfig{
			Provider: TTSDeepgram,
			Voice:    "aura-helios-en",
			Language: "en-US",
		},
		Web: WebConfig{
			Port: 8080,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file from fs on top of Default(). ${VAR} references in
// the file are expanded from the environment before parsing. An empty path
// returns the defaults.
func Load(fs afero.Fs, path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from well-known environment variables.
// Unset variables leave the current value alone.
func (c *Config) ApplyEnv() {
	setFromEnv(&c.STT.APIKey, "DEEPGRAM_API_KEY")
	setFromEnv(&c.LLM.APIKey, "GROQ_API_KEY")
	setFromEnv(&c.LLM.BaseURL, "LLM_BASE_URL")
	setFromEnv(&c.LLM.Model, "LLM_MODEL")
	setFromEnv(&c.TTS.OpenAIKey, "OPENAI_API_KEY")
	setFromEnv(&c.TTS.ElevenLabsKey, "ELEVENLABS_API_KEY")
	setFromEnv(&c.TTS.GoogleKey, "GOOGLE_API_KEY")
	setFromEnv(&c.Log.Level, "LOG_LEVEL")

	// Pointing the LLM at OpenAI without a Groq key reuses the OpenAI key.
	if c.LLM.APIKey == "" && strings.Contains(c.LLM.BaseURL, "api.openai.com") {
		c.LLM.APIKey = c.TTS.OpenAIKey
	}
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks the configuration for missing or out-of-range values.
func (c *Config) Validate() error {
	if c.UI != UIWeb && c.UI != UIDesktop {
		return &ConfigError{Field: "ui", Message: fmt.Sprintf("unknown ui %q (want web or desktop)", c.UI)}
	}
	if c.Camera.Index < 0 {
		return &ConfigError{Field: "camera.index", Message: "camera index must not be negative"}
	}
	if c.Camera.PreviewWidth <= 0 || c.Camera.PreviewHeight <= 0 {
		return &ConfigError{Field: "camera.preview_width", Message: "preview size must be positive"}
	}
	if c.Camera.FramePeriodMs <= 0 {
		return &ConfigError{Field: "camera.frame_period_ms", Message: "frame period must be positive"}
	}

	switch c.Audio.Backend {
	case AudioAuto, AudioPortAudio, AudioPulse, AudioMock:
	default:
		return &ConfigError{Field: "audio.backend", Message: fmt.Sprintf("unknown audio backend %q", c.Audio.Backend)}
	}
	if c.Audio.InputSampleRate <= 0 || c.Audio.OutputSampleRate <= 0 {
		return &ConfigError{Field: "audio.input_sample_rate", Message: "sample rates must be positive"}
	}

	if c.STT.APIKey == "" {
		return &ConfigError{Field: "stt.api_key", Message: "DEEPGRAM_API_KEY environment variable is required"}
	}

	if c.LLM.BaseURL == "" {
		return &ConfigError{Field: "llm.base_url", Message: "LLM base URL is required"}
	}
	if c.LLM.Model == "" {
		return &ConfigError{Field: "llm.model", Message: "LLM model is required"}
	}

	for _, p := range c.TTS.Providers() {
		if err := c.validateTTS(p); err != nil {
			return err
		}
	}

	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return &ConfigError{Field: "web.port", Message: fmt.Sprintf("port %d out of range", c.Web.Port)}
	}
	return nil
}

func (c *Config) validateTTS(provider string) error {
	switch provider {
	case TTSDeepgram:
		if c.STT.APIKey == "" {
			return &ConfigError{Field: "tts.provider", Message: "DEEPGRAM_API_KEY environment variable is required for Deepgram TTS"}
		}
	case TTSOpenAI:
		if c.TTS.OpenAIKey == "" {
			return &ConfigError{Field: "tts.openai_api_key", Message: "OPENAI_API_KEY environment variable is required for OpenAI TTS"}
		}
	case TTSElevenLabs:
		if c.TTS.ElevenLabsKey == "" {
			return &ConfigError{Field: "tts.elevenlabs_api_key", Message: "ELEVENLABS_API_KEY environment variable is required for ElevenLabs TTS"}
		}
	case TTSGoogle:
		// Google falls back to application default credentials.
	case TTSNone:
	default:
		return &ConfigError{Field: "tts.provider", Message: fmt.Sprintf("unknown tts provider %q", provider)}
	}
	return nil
}

// Providers returns the primary provider followed by the fallbacks,
// without duplicates.
func (t TTSConfig) Providers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range append([]string{t.Provider}, t.Fallback...) {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// SystemPrompt resolves the LLM system prompt. A prompt file wins over the
// literal prompt; an empty result means the processor default is used.
func (c *Config) SystemPrompt(fs afero.Fs) (string, error) {
	if c.LLM.SystemPromptFile == "" {
		return c.LLM.SystemPrompt, nil
	}
	data, err := afero.ReadFile(fs, c.LLM.SystemPromptFile)
	if err != nil {
		return "", fmt.Errorf("reading system prompt: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
