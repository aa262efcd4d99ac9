// Package preview refreshes a displayed camera image on a fixed tick.
//
// Each tick pulls at most one frame, converts it to RGB, scales it into the
// preview box keeping its aspect ratio and hands it to a Surface. Missing
// frames are skipped silently, so a camera that never opened leaves the
// surface untouched.
package preview

import (
	"context"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"

	"github.com/teslashibe/go-quickagent/pkg/camera"
)

// Defaults for the preview box and refresh period.
const (
	DefaultWidth  = 400
	DefaultHeight = 300
	DefaultPeriod = 30 * time.Millisecond
)

// Surface displays the latest preview image.
type Surface interface {
	SetFrame(img image.Image)
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(img image.Image)

// SetFrame calls f(img).
func (f SurfaceFunc) SetFrame(img image.Image) { f(img) }

// Renderer moves frames from a device to a surface.
type Renderer struct {
	device  camera.Device
	surface Surface
	period  time.Duration
	maxW    int
	maxH    int
	logger  *slog.Logger

	mirror   atomic.Bool
	rendered atomic.Int64
	skipped  atomic.Int64
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithPeriod sets the tick period.
func WithPeriod(d time.Duration) Option {
	return func(r *Renderer) {
		if d > 0 {
			r.period = d
		}
	}
}

// WithSize sets the preview box.
func WithSize(w, h int) Option {
	return func(r *Renderer) {
		if w > 0 && h > 0 {
			r.maxW, r.maxH = w, h
		}
	}
}

// WithMirror flips frames horizontally.
func WithMirror(on bool) Option {
	return func(r *Renderer) {
		r.mirror.Store(on)
	}
}

// WithLogger sets the renderer's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a renderer. A nil device behaves like camera.Closed.
func New(device camera.Device, surface Surface, opts ...Option) *Renderer {
	if device == nil {
		device = camera.Closed{}
	}
	r := &Renderer{
		device:  device,
		surface: surface,
		period:  DefaultPeriod,
		maxW:    DefaultWidth,
		maxH:    DefaultHeight,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "preview.renderer")
	return r
}

// Tick renders one frame if the device has one ready.
func (r *Renderer) Tick() {
	frame, ok := r.device.Read()
	if !ok || !frame.Valid() {
		r.skipped.Add(1)
		return
	}

	src := ToRGBA(frame)
	if r.mirror.Load() {
		mirrorRGBA(src)
	}

	w, h := FitSize(frame.Width, frame.Height, r.maxW, r.maxH)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	r.surface.SetFrame(dst)
	r.rendered.Add(1)
}

// Run ticks at the configured period until ctx is done.
func (r *Renderer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	r.logger.Debug("renderer started", "period", r.period, "box", [2]int{r.maxW, r.maxH})

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("renderer stopped", "rendered", r.rendered.Load())
			return
		case <-ticker.C:
			r.Tick()
		}
	}
}

// SetMirror toggles horizontal flipping at runtime.
func (r *Renderer) SetMirror(on bool) {
	r.mirror.Store(on)
}

// Stats reports how many ticks produced a frame and how many were skipped.
func (r *Renderer) Stats() (rendered, skipped int64) {
	return r.rendered.Load(), r.skipped.Load()
}

// ToRGBA converts a raw three-channel frame to an opaque RGBA image.
func ToRGBA(f camera.Frame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))

	ri, bi := 2, 0
	if f.Order == camera.RGB {
		ri, bi = 0, 2
	}

	for y := 0; y < f.Height; y++ {
		src := f.Pix[y*f.Stride : y*f.Stride+f.Width*3]
		dst := img.Pix[y*img.Stride : y*img.Stride+f.Width*4]
		for x := 0; x < f.Width; x++ {
			s := src[x*3 : x*3+3]
			d := dst[x*4 : x*4+4]
			d[0] = s[ri]
			d[1] = s[1]
			d[2] = s[bi]
			d[3] = 0xff
		}
	}
	return img
}

// FitSize returns the largest size with the aspect ratio of w×h that fits
// in maxW×maxH. Both dimensions are at least 1.
func FitSize(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 || maxW <= 0 || maxH <= 0 {
		return 0, 0
	}

	// Compare w/h with maxW/maxH without floating point.
	var fw, fh int
	if w*maxH >= h*maxW {
		fw = maxW
		fh = (h*maxW + w/2) / w
	} else {
		fh = maxH
		fw = (w*maxH + h/2) / h
	}
	return max(fw, 1), max(fh, 1)
}

func mirrorRGBA(img *image.RGBA) {
	w := img.Rect.Dx()
	for y := 0; y < img.Rect.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for l, r := 0, w-1; l < r; l, r = l+1, r-1 {
			for c := 0; c < 4; c++ {
				row[l*4+c], row[r*4+c] = row[r*4+c], row[l*4+c]
			}
		}
	}
}
