// Package desktop is the native window shell: a camera preview, a read-only
// conversation log and the Start/Stop buttons. The window is built with
// fyne and compiled only with the gui build tag.
package desktop

import (
	"errors"
	"log/slog"

	"github.com/teslashibe/go-quickagent/pkg/preview"
	"github.com/teslashibe/go-quickagent/pkg/session"
)

// ErrUnavailable is returned by Run in builds without the gui tag.
var ErrUnavailable = errors.New("desktop: built without the gui tag")

// Interaction is the controller API the window drives.
type Interaction interface {
	Start() error
	Stop() error
	State() session.State
	Transcript() *session.Transcript
	Subscribe() (<-chan session.Line, func())
}

type options struct {
	title  string
	width  int
	height int
	logger *slog.Logger
}

func defaultOptions() options {
	return options{
		title:  "QuickAgent",
		width:  preview.DefaultWidth,
		height: preview.DefaultHeight,
		logger: slog.Default(),
	}
}

// Option configures a Window.
type Option func(*options)

// WithTitle sets the window title.
func WithTitle(title string) Option {
	return func(o *options) {
		if title != "" {
			o.title = title
		}
	}
}

// WithPreviewSize sets the size reserved for the camera preview.
func WithPreviewSize(w, h int) Option {
	return func(o *options) {
		if w > 0 && h > 0 {
			o.width, o.height = w, h
		}
	}
}

// WithLogger sets the window's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
