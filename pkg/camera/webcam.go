//go:build !nocv

package camera

import (
	"fmt"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"
)

// Webcam reads frames from a local capture device through OpenCV.
type Webcam struct {
	index  int
	logger *slog.Logger

	mu     sync.Mutex
	cap    *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
}

// Open opens the capture device at index with the given settings.
// A zero Config keeps the device defaults.
func Open(index int, cfg Config, logger *slog.Logger) (*Webcam, error) {
	if logger == nil {
		logger = slog.Default()
	}

	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("%w: index %d: %v", ErrDeviceUnavailable, index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: index %d", ErrDeviceUnavailable, index)
	}

	w := &Webcam{
		index:  index,
		logger: logger.With("component", "camera.webcam"),
		cap:    vc,
		mat:    gocv.NewMat(),
	}
	w.Apply(cfg)

	w.logger.Info("camera opened",
		"index", index,
		"width", int(vc.Get(gocv.VideoCaptureFrameWidth)),
		"height", int(vc.Get(gocv.VideoCaptureFrameHeight)),
	)
	return w, nil
}

// Read grabs the next frame. The returned Pix is a copy owned by the caller.
func (w *Webcam) Read() (Frame, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return Frame{}, false
	}
	if ok := w.cap.Read(&w.mat); !ok || w.mat.Empty() {
		return Frame{}, false
	}
	if w.mat.Type() != gocv.MatTypeCV8UC3 {
		return Frame{}, false
	}

	return Frame{
		Width:  w.mat.Cols(),
		Height: w.mat.Rows(),
		Stride: w.mat.Step(),
		Order:  BGR,
		Pix:    w.mat.ToBytes(),
	}, true
}

// Apply pushes resolution and framerate to the device. Drivers may ignore
// values they do not support.
func (w *Webcam) Apply(cfg Config) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrDeviceUnavailable
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		w.cap.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		w.cap.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.Framerate > 0 {
		w.cap.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	}
	return nil
}

// Index returns the device index.
func (w *Webcam) Index() int {
	return w.index
}

// Close releases the capture device.
func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.mat.Close()
	err := w.cap.Close()
	w.logger.Info("camera released", "index", w.index)
	return err
}

var _ Tunable = (*Webcam)(nil)
