package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/teslashibe/go-quickagent/internal/config"
	"github.com/teslashibe/go-quickagent/internal/log"
	"github.com/teslashibe/go-quickagent/pkg/audioio"
	"github.com/teslashibe/go-quickagent/pkg/camera"
	"github.com/teslashibe/go-quickagent/pkg/desktop"
	"github.com/teslashibe/go-quickagent/pkg/inference"
	"github.com/teslashibe/go-quickagent/pkg/preview"
	"github.com/teslashibe/go-quickagent/pkg/session"
	"github.com/teslashibe/go-quickagent/pkg/stt"
	"github.com/teslashibe/go-quickagent/pkg/tts"
	"github.com/teslashibe/go-quickagent/pkg/web"
)

// agent owns every component and releases them in order.
type agent struct {
	cfg    *config.Config
	logger *slog.Logger

	source audioio.Source
	sink   audioio.Sink
	llm    *inference.Client
	voice  tts.Provider // nil when speech is disabled
	ctrl   *session.Controller

	device camera.Device // camera.Closed when the webcam did not open
	camMgr *camera.Manager
}

func newAgent(ctx context.Context, cfg *config.Config, fs afero.Fs) (*agent, error) {
	a := &agent{cfg: cfg, logger: log.Component("agent")}
	if err := a.init(ctx, fs); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *agent) init(ctx context.Context, fs afero.Fs) (err error) {
	cfg := a.cfg

	if a.source, err = audioio.NewSource(audioConfig(cfg, cfg.Audio.InputSampleRate), log.L()); err != nil {
		return fmt.Errorf("opening microphone: %w", err)
	}
	if a.sink, err = audioio.NewSink(audioConfig(cfg, cfg.Audio.OutputSampleRate), log.L()); err != nil {
		return fmt.Errorf("opening speaker: %w", err)
	}

	transcriber, err := newTranscriber(cfg, a.source)
	if err != nil {
		return err
	}

	if a.llm, err = newLLMClient(cfg); err != nil {
		return err
	}
	processor, err := newProcessor(cfg, fs, a.llm)
	if err != nil {
		return err
	}

	if a.voice, err = newVoice(ctx, cfg); err != nil {
		return err
	}
	var speaker session.Speaker = session.Silent
	if a.voice != nil {
		speaker = tts.NewSpeaker(a.voice, a.sink, tts.WithSpeakerLogger(log.L()))
	} else {
		a.logger.Warn("speech output disabled")
	}

	a.ctrl = session.NewController(transcriber, processor, speaker, session.WithLogger(log.L()))
	a.openCamera()
	return nil
}

// openCamera opens the webcam. A device that fails to open leaves the
// preview blank; the failure is logged once.
func (a *agent) openCamera() {
	camCfg := cameraConfig(a.cfg)
	a.camMgr = camera.NewManager(camCfg)

	w, err := camera.Open(a.cfg.Camera.Index, camCfg, log.L())
	if err != nil {
		a.logger.Warn("camera unavailable, preview disabled", "index", a.cfg.Camera.Index, "error", err)
		a.device = camera.Closed{}
		return
	}
	a.device = w
}

// Run shows the shell and the preview until ctx is done or the window is
// closed.
func (a *agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		surface preview.Surface
		shell   func(context.Context) error
	)
	switch a.cfg.UI {
	case config.UIDesktop:
		win := desktop.New(a.ctrl,
			desktop.WithPreviewSize(a.cfg.Camera.PreviewWidth, a.cfg.Camera.PreviewHeight),
			desktop.WithLogger(log.L()),
		)
		surface, shell = win, win.Run
	default:
		srv := web.NewServer(a.cfg.Web.Port, a.ctrl, web.WithCamera(a.camMgr), web.WithLogger(log.L()))
		surface, shell = srv, srv.Run
	}

	renderer := preview.New(a.device, surface,
		preview.WithPeriod(time.Duration(a.cfg.Camera.FramePeriodMs)*time.Millisecond),
		preview.WithSize(a.cfg.Camera.PreviewWidth, a.cfg.Camera.PreviewHeight),
		preview.WithMirror(a.cfg.Camera.Mirror),
		preview.WithLogger(log.L()),
	)
	a.camMgr.OnConfigChange = func(cfg camera.Config) error {
		renderer.SetMirror(cfg.Mirror)
		if t, ok := a.device.(camera.Tunable); ok {
			return t.Apply(cfg)
		}
		return nil
	}

	previewDone := make(chan struct{})
	go func() {
		defer close(previewDone)
		renderer.Run(ctx)
	}()

	err := shell(ctx)
	cancel()
	<-previewDone

	rendered, skipped := renderer.Stats()
	a.logger.Debug("preview stopped", "rendered", rendered, "skipped", skipped)
	return err
}

// Check probes the language model and speech providers.
func (a *agent) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var errs []error
	if err := a.llm.Health(ctx); err != nil {
		errs = append(errs, fmt.Errorf("llm: %w", err))
	} else {
		a.logger.Info("llm reachable", "base_url", a.cfg.LLM.BaseURL, "model", a.cfg.LLM.Model)
	}

	if a.voice != nil {
		if err := a.voice.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tts: %w", err))
		} else {
			a.logger.Info("tts reachable", "providers", a.cfg.TTS.Providers())
		}
	}
	return errors.Join(errs...)
}

// Close stops the interaction and waits for it, then releases the camera,
// the audio devices and the provider clients.
func (a *agent) Close() {
	if a.ctrl != nil {
		if err := a.ctrl.Close(); err != nil && !errors.Is(err, session.ErrClosed) {
			a.logger.Warn("closing controller", "error", err)
		}
	}
	if a.device != nil {
		a.release("camera", a.device)
	}
	if a.source != nil {
		a.release("microphone", a.source)
	}
	if a.sink != nil {
		a.release("speaker", a.sink)
	}
	if a.voice != nil {
		a.release("tts", a.voice)
	}
	if a.llm != nil {
		a.release("llm", a.llm)
	}
}

func (a *agent) release(name string, c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		a.logger.Warn("close failed", "resource", name, "error", err)
	}
}

func audioConfig(cfg *config.Config, rate int) audioio.Config {
	ac := audioio.DefaultConfig()
	ac.Backend = audioio.Backend(cfg.Audio.Backend)
	return ac.WithSampleRate(rate)
}

func cameraConfig(cfg *config.Config) camera.Config {
	return camera.Config{
		Width:     cfg.Camera.Width,
		Height:    cfg.Camera.Height,
		Framerate: cfg.Camera.Framerate,
		Quality:   cfg.Camera.Quality,
		Mirror:    cfg.Camera.Mirror,
	}
}

func newTranscriber(cfg *config.Config, source audioio.Source) (*stt.Deepgram, error) {
	return stt.NewDeepgram(source,
		stt.WithAPIKey(cfg.STT.APIKey),
		stt.WithModel(cfg.STT.Model),
		stt.WithLanguage(cfg.STT.Language),
		stt.WithSampleRate(cfg.Audio.InputSampleRate),
		stt.WithEndpointing(time.Duration(cfg.STT.EndpointMs)*time.Millisecond),
		stt.WithSmartFormat(cfg.STT.SmartFormat),
		stt.WithLogger(log.L()),
	)
}

func newLLMClient(cfg *config.Config) (*inference.Client, error) {
	return inference.NewClient(
		inference.WithBaseURL(cfg.LLM.BaseURL),
		inference.WithAPIKey(cfg.LLM.APIKey),
		inference.WithModel(cfg.LLM.Model),
		inference.WithMaxTokens(cfg.LLM.MaxTokens),
		inference.WithTemperature(cfg.LLM.Temperature),
		inference.WithLogger(log.L()),
	)
}

func newProcessor(cfg *config.Config, fs afero.Fs, provider inference.Provider) (*inference.Processor, error) {
	prompt, err := cfg.SystemPrompt(fs)
	if err != nil {
		return nil, err
	}

	opts := []inference.ProcessorOption{inference.WithProcessorLogger(log.L())}
	if prompt != "" {
		opts = append(opts, inference.WithSystemPrompt(prompt))
	}
	if cfg.LLM.MaxHistory > 0 {
		opts = append(opts, inference.WithMaxHistory(cfg.LLM.MaxHistory))
	}
	return inference.NewProcessor(provider, opts...), nil
}

// newVoice builds the configured TTS providers, chained in order. The
// configured voice applies to the primary provider only. It returns nil
// when speech is disabled.
func newVoice(ctx context.Context, cfg *config.Config) (tts.Provider, error) {
	var providers []tts.Provider
	for i, name := range cfg.TTS.Providers() {
		if name == config.TTSNone {
			continue
		}
		voice := ""
		if i == 0 {
			voice = voiceFor(name, cfg.TTS.Voice)
		}
		p, err := newTTSProvider(ctx, cfg, name, voice)
		if err != nil {
			return nil, fmt.Errorf("tts %s: %w", name, err)
		}
		providers = append(providers, p)
	}

	switch len(providers) {
	case 0:
		return nil, nil
	case 1:
		return providers[0], nil
	default:
		chain, err := tts.NewChainWithLogger(log.L(), providers...)
		if err != nil {
			return nil, err
		}
		return chain, nil
	}
}

func newTTSProvider(ctx context.Context, cfg *config.Config, name, voice string) (tts.Provider, error) {
	common := []tts.Option{
		tts.WithVoice(voice),
		tts.WithLanguage(cfg.TTS.Language),
		tts.WithLogger(log.L()),
	}

	switch name {
	case config.TTSDeepgram:
		return tts.NewDeepgram(append(common, tts.WithAPIKey(cfg.STT.APIKey))...)
	case config.TTSOpenAI:
		return tts.NewOpenAI(append(common, tts.WithAPIKey(cfg.TTS.OpenAIKey), tts.WithModel(cfg.TTS.Model))...)
	case config.TTSElevenLabs:
		return tts.NewElevenLabs(append(common, tts.WithAPIKey(cfg.TTS.ElevenLabsKey), tts.WithModel(cfg.TTS.Model))...)
	case config.TTSGoogle:
		return tts.NewGoogle(ctx, append(common, tts.WithAPIKey(cfg.TTS.GoogleKey))...)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// voiceFor drops an Aura voice name when the provider is not Deepgram, so
// the stock default does not leak into other providers.
func voiceFor(provider, voice string) string {
	if provider != config.TTSDeepgram && strings.HasPrefix(voice, "aura-") {
		return ""
	}
	return voice
}
