// Package camera captures webcam frames.
//
// A Device yields raw frames on demand; Webcam is the OpenCV-backed
// implementation and Closed stands in when no camera could be opened.
// Config, Manager and the presets hold the capture settings, which can be
// changed at runtime from the dashboard.
package camera

import (
	"errors"
	"image"
)

var (
	// ErrDeviceUnavailable is returned when the capture device cannot be opened.
	ErrDeviceUnavailable = errors.New("camera: device unavailable")

	// ErrNoFrame is returned when a frame is requested but none is ready.
	ErrNoFrame = errors.New("camera: no frame")
)

// ChannelOrder is the byte order of a pixel in Frame.Pix.
type ChannelOrder int

const (
	// BGR is the OpenCV native order.
	BGR ChannelOrder = iota
	RGB
)

func (o ChannelOrder) String() string {
	if o == RGB {
		return "rgb"
	}
	return "bgr"
}

// Frame is one raw 8-bit three-channel image.
type Frame struct {
	Width  int
	Height int
	// Stride is the byte distance between rows.
	Stride int
	Order  ChannelOrder
	Pix    []byte
}

// Bounds returns the frame rectangle.
func (f Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// Valid reports whether Pix holds Height rows of Stride bytes.
func (f Frame) Valid() bool {
	return f.Width > 0 && f.Height > 0 && f.Stride >= f.Width*3 && len(f.Pix) >= f.Stride*(f.Height-1)+f.Width*3
}

// Device is a source of frames.
type Device interface {
	// Read returns the next frame, or false when none is available.
	Read() (Frame, bool)

	// Close releases the device. It is safe to call more than once.
	Close() error
}

// Tunable is a Device whose capture settings can change while it runs.
type Tunable interface {
	Device
	Apply(cfg Config) error
}

// Closed is a Device that never produces frames.
type Closed struct{}

// Read always reports no frame.
func (Closed) Read() (Frame, bool) { return Frame{}, false }

// Close is a no-op.
func (Closed) Close() error { return nil }

var _ Device = Closed{}
