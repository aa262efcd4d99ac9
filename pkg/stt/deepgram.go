package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-quickagent/pkg/audioio"
)

const providerDeepgram = "deepgram"

// listenResponse is a message from the live endpoint.
type listenResponse struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
	Description string `json:"description"`
}

func (r *listenResponse) result() Result {
	text := ""
	if len(r.Channel.Alternatives) > 0 {
		text = r.Channel.Alternatives[0].Transcript
	}
	return Result{
		Transcript:  strings.TrimSpace(text),
		IsFinal:     r.IsFinal,
		SpeechFinal: r.SpeechFinal,
	}
}

// Deepgram transcribes microphone audio with the Deepgram live API.
// Each NextUtterance call opens one stream, captures from the source until
// an utterance completes and then releases both.
type Deepgram struct {
	config *Config
	source audioio.Source
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewDeepgram creates a transcriber reading audio from source.
func NewDeepgram(source audioio.Source, opts ...Option) (*Deepgram, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, ErrNoSource
	}

	return &Deepgram{
		config: cfg,
		source: source,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: cfg.Logger.With("component", "stt.deepgram"),
	}, nil
}

// NextUtterance implements Transcriber.
func (d *Deepgram) NextUtterance(ctx context.Context, onComplete func(text string)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, err := d.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Closing the connection unblocks ReadMessage when ctx ends.
	stopClose := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopClose()

	if err := d.source.Start(ctx); err != nil {
		return fmt.Errorf("stt: start microphone: %w", err)
	}
	defer d.source.Stop()

	w := &wsWriter{conn: conn}
	pumpErr := make(chan error, 1)
	go func() { pumpErr <- d.pump(ctx, w) }()

	var collector Collector
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case perr := <-pumpErr:
				if perr != nil {
					return perr
				}
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return ErrStreamClosed
			}
			return fmt.Errorf("stt: read: %w", err)
		}

		var resp listenResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			d.logger.Debug("ignoring malformed message", "error", err)
			continue
		}

		switch resp.Type {
		case "Results":
		case "Error":
			return &ServiceError{Provider: providerDeepgram, Message: resp.Description}
		default:
			continue
		}

		text, done := collector.Feed(resp.result())
		if !done {
			continue
		}

		d.logger.Debug("utterance complete", "chars", len(text))
		w.writeJSON(map[string]string{"type": "CloseStream"})
		cancel()
		onComplete(text)
		return nil
	}
}

// dial opens the live stream with the configured options.
func (d *Deepgram) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := d.listenURL()
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+d.config.APIKey)

	conn, resp, err := d.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if resp != nil {
			return nil, &ServiceError{
				Provider:   providerDeepgram,
				StatusCode: resp.StatusCode,
				Message:    resp.Header.Get("dg-error"),
			}
		}
		return nil, fmt.Errorf("stt: dial: %w", err)
	}
	return conn, nil
}

func (d *Deepgram) listenURL() (string, error) {
	u, err := url.Parse(d.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("stt: parse url: %w", err)
	}

	q := u.Query()
	q.Set("model", d.config.Model)
	q.Set("language", d.config.Language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(d.config.SampleRate))
	q.Set("channels", strconv.Itoa(d.config.Channels))
	q.Set("smart_format", strconv.FormatBool(d.config.SmartFormat))
	q.Set("punctuate", strconv.FormatBool(d.config.Punctuate))
	if d.config.Endpointing > 0 {
		q.Set("endpointing", strconv.FormatInt(d.config.Endpointing.Milliseconds(), 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// pump forwards microphone audio until ctx ends or the source stops,
// sending keepalives while the microphone is silent.
func (d *Deepgram) pump(ctx context.Context, w *wsWriter) error {
	stream := d.source.Stream()

	var ticker *time.Ticker
	var tick <-chan time.Time
	if d.config.KeepAlive > 0 {
		ticker = time.NewTicker(d.config.KeepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case chunk, ok := <-stream:
			if !ok {
				return nil
			}
			pcm := audioio.Convert(chunk, d.config.SampleRate, d.config.Channels)
			if err := w.write(websocket.BinaryMessage, pcm.Bytes()); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("stt: send audio: %w", err)
			}
			if ticker != nil {
				ticker.Reset(d.config.KeepAlive)
			}
		case <-tick:
			if err := w.writeJSON(map[string]string{"type": "KeepAlive"}); err != nil && ctx.Err() == nil {
				return fmt.Errorf("stt: keepalive: %w", err)
			}
		}
	}
}

// wsWriter serializes writes; gorilla connections allow one writer at a time.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) write(messageType int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return w.conn.WriteMessage(messageType, data)
}

func (w *wsWriter) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.write(websocket.TextMessage, data)
}

// IsUnauthorized reports whether err is a credential rejection.
func IsUnauthorized(err error) bool {
	var serr *ServiceError
	return errors.As(err, &serr) && serr.IsUnauthorized()
}

var _ Transcriber = (*Deepgram)(nil)
