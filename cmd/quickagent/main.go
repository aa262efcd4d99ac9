// Command quickagent runs the webcam voice assistant: a live camera preview
// with a spoken conversation driven by Deepgram, an OpenAI-compatible
// language model and a TTS provider.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"

	"github.com/teslashibe/go-quickagent/internal/config"
	"github.com/teslashibe/go-quickagent/internal/log"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "quickagent: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to a YAML config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	check := flag.Bool("check", false, "Check LLM and TTS connectivity, then exit")
	flags := registerOverrides(flag.CommandLine)
	flag.Parse()

	fs := afero.NewOsFs()
	cfg, err := config.Load(fs, *configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv()
	flags.apply(cfg, flag.CommandLine)
	if *debug {
		cfg.Log.Level = "debug"
	}

	log.Init(cfg.Log.Level)
	logger := log.Component("main")

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newAgent(ctx, cfg, fs)
	if err != nil {
		return err
	}
	defer a.Close()

	if *check {
		return a.Check(ctx)
	}

	logger.Info("quickagent starting",
		"ui", cfg.UI,
		"camera", cfg.Camera.Index,
		"tts", cfg.TTS.Providers(),
		"llm_model", cfg.LLM.Model,
	)
	err = a.Run(ctx)
	logger.Info("quickagent stopped")
	return err
}

// overrides are the flags that win over the config file and environment.
type overrides struct {
	camera       *int
	port         *int
	ui           *string
	tts          *string
	voice        *string
	systemPrompt *string
	audioBackend *string
}

func registerOverrides(fs *flag.FlagSet) *overrides {
	return &overrides{
		camera:       fs.Int("camera", 0, "Webcam device index"),
		port:         fs.Int("port", 8080, "Web shell port"),
		ui:           fs.String("ui", config.UIWeb, "Shell: web or desktop"),
		tts:          fs.String("tts", config.TTSDeepgram, "TTS provider: deepgram, openai, elevenlabs, google or none"),
		voice:        fs.String("voice", "", "Voice for the TTS provider"),
		systemPrompt: fs.String("system-prompt", "", "LLM system prompt"),
		audioBackend: fs.String("audio-backend", config.AudioAuto, "Audio backend: auto, pulse, portaudio or mock"),
	}
}

// apply copies only the flags that were set on the command line.
func (o *overrides) apply(cfg *config.Config, fs *flag.FlagSet) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "camera":
			cfg.Camera.Index = *o.camera
		case "port":
			cfg.Web.Port = *o.port
		case "ui":
			cfg.UI = *o.ui
		case "tts":
			cfg.TTS.Provider = *o.tts
		case "voice":
			cfg.TTS.Voice = *o.voice
		case "system-prompt":
			cfg.LLM.SystemPrompt = *o.systemPrompt
			cfg.LLM.SystemPromptFile = ""
		case "audio-backend":
			cfg.Audio.Backend = *o.audioBackend
		}
	})
}
