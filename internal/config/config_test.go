package config

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.STT.APIKey = "dg-key"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, UIWeb, cfg.UI)
	assert.Equal(t, 400, cfg.Camera.PreviewWidth)
	assert.Equal(t, 300, cfg.Camera.PreviewHeight)
	assert.Equal(t, 30, cfg.Camera.FramePeriodMs)
	assert.Equal(t, "nova-2", cfg.STT.Model)
	assert.Equal(t, 300, cfg.STT.EndpointMs)
	assert.Equal(t, TTSDeepgram, cfg.TTS.Provider)
	assert.Equal(t, "aura-helios-en", cfg.TTS.Voice)
	assert.Equal(t, 8080, cfg.Web.Port)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load(afero.NewMemMapFs(), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/quickagent.yaml", []byte(`
camera:
  index: 2
llm:
  model: llama-3.1-8b-instant
  system_prompt: "be terse"
tts:
  provider: openai
  fallback: [deepgram]
web:
  port: 9090
`), 0o644))

	cfg, err := Load(fs, "/etc/quickagent.yaml")
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Camera.Index)
	assert.Equal(t, 400, cfg.Camera.PreviewWidth, "unset keys keep defaults")
	assert.Equal(t, "llama-3.1-8b-instant", cfg.LLM.Model)
	assert.Equal(t, "be terse", cfg.LLM.SystemPrompt)
	assert.Equal(t, []string{TTSOpenAI, TTSDeepgram}, cfg.TTS.Providers())
	assert.Equal(t, 9090, cfg.Web.Port)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("QA_TEST_DG_KEY", "from-env")

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "cfg.yaml", []byte("stt:\n  api_key: ${QA_TEST_DG_KEY}\n"), 0o644))

	cfg, err := Load(fs, "cfg.yaml")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.STT.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(afero.NewMemMapFs(), "nope.yaml")
	require.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "bad.yaml", []byte("camera: [1, 2"), 0o644))

	_, err := Load(fs, "bad.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "dg")
	t.Setenv("GROQ_API_KEY", "groq")
	t.Setenv("OPENAI_API_KEY", "oa")
	t.Setenv("ELEVENLABS_API_KEY", "el")
	t.Setenv("GOOGLE_API_KEY", "gg")
	t.Setenv("LLM_BASE_URL", "http://localhost:11434/v1")
	t.Setenv("LLM_MODEL", "llama3")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, "dg", cfg.STT.APIKey)
	assert.Equal(t, "groq", cfg.LLM.APIKey)
	assert.Equal(t, "oa", cfg.TTS.OpenAIKey)
	assert.Equal(t, "el", cfg.TTS.ElevenLabsKey)
	assert.Equal(t, "gg", cfg.TTS.GoogleKey)
	assert.Equal(t, "http://localhost:11434/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "llama3", cfg.LLM.Model)
}

func TestApplyEnvKeepsValuesWhenUnset(t *testing.T) {
	t.Setenv("LLM_MODEL", "")

	cfg := Default()
	cfg.LLM.Model = "from-file"
	cfg.ApplyEnv()

	assert.Equal(t, "from-file", cfg.LLM.Model)
}

func TestApplyEnvReusesOpenAIKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "oa")
	t.Setenv("LLM_BASE_URL", "https://api.openai.com/v1")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, "oa", cfg.LLM.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad ui", func(c *Config) { c.UI = "tui" }, "ui"},
		{"negative camera", func(c *Config) { c.Camera.Index = -1 }, "camera.index"},
		{"zero preview", func(c *Config) { c.Camera.PreviewWidth = 0 }, "camera.preview_width"},
		{"zero period", func(c *Config) { c.Camera.FramePeriodMs = 0 }, "camera.frame_period_ms"},
		{"bad backend", func(c *Config) { c.Audio.Backend = "alsa" }, "audio.backend"},
		{"no deepgram key", func(c *Config) { c.STT.APIKey = "" }, "stt.api_key"},
		{"no model", func(c *Config) { c.LLM.Model = "" }, "llm.model"},
		{"openai tts without key", func(c *Config) { c.TTS.Provider = TTSOpenAI }, "tts.openai_api_key"},
		{"elevenlabs fallback without key", func(c *Config) { c.TTS.Fallback = []string{TTSElevenLabs} }, "tts.elevenlabs_api_key"},
		{"unknown tts", func(c *Config) { c.TTS.Provider = "espeak" }, "tts.provider"},
		{"google without key", func(c *Config) { c.TTS.Provider = TTSGoogle }, ""},
		{"tts disabled", func(c *Config) { c.TTS.Provider = TTSNone }, ""},
		{"bad port", func(c *Config) { c.Web.Port = 70000 }, "web.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.field == "" {
				require.NoError(t, err)
				return
			}

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected *ConfigError, got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestProvidersDeduplicates(t *testing.T) {
	tts := TTSConfig{Provider: "OpenAI", Fallback: []string{"openai", " deepgram ", ""}}
	assert.Equal(t, []string{TTSOpenAI, TTSDeepgram}, tts.Providers())
}

func TestSystemPrompt(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "prompt.txt", []byte("  from file\n"), 0o644))

	cfg := Default()
	cfg.LLM.SystemPrompt = "literal"

	got, err := cfg.SystemPrompt(fs)
	require.NoError(t, err)
	assert.Equal(t, "literal", got)

	cfg.LLM.SystemPromptFile = "prompt.txt"
	got, err = cfg.SystemPrompt(fs)
	require.NoError(t, err)
	assert.Equal(t, "from file", got)

	cfg.LLM.SystemPromptFile = "missing.txt"
	_, err = cfg.SystemPrompt(fs)
	require.Error(t, err)
}
