//go:build nocv

package camera

import "log/slog"

// Webcam is unavailable in builds without OpenCV.
type Webcam struct{}

// Open always fails without OpenCV.
func Open(index int, cfg Config, logger *slog.Logger) (*Webcam, error) {
	return nil, ErrDeviceUnavailable
}

func (w *Webcam) Read() (Frame, bool) { return Frame{}, false }

func (w *Webcam) Apply(cfg Config) error { return ErrDeviceUnavailable }

func (w *Webcam) Index() int { return -1 }

func (w *Webcam) Close() error { return nil }

var _ Tunable = (*Webcam)(nil)
