package preview

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-quickagent/pkg/camera"
)

type fakeDevice struct {
	mu     sync.Mutex
	frames []camera.Frame
	reads  int
}

func (d *fakeDevice) Read() (camera.Frame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads++
	if len(d.frames) == 0 {
		return camera.Frame{}, false
	}
	f := d.frames[0]
	d.frames = d.frames[1:]
	return f, true
}

func (d *fakeDevice) Close() error { return nil }

type recordingSurface struct {
	mu     sync.Mutex
	frames []image.Image
}

func (s *recordingSurface) SetFrame(img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, img)
}

func (s *recordingSurface) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// solidBGR returns a w×h BGR frame filled with the given pixel.
func solidBGR(w, h int, b, g, r byte) camera.Frame {
	pix := make([]byte, w*h*3)
	for i := 0; i < len(pix); i += 3 {
		pix[i], pix[i+1], pix[i+2] = b, g, r
	}
	return camera.Frame{Width: w, Height: h, Stride: w * 3, Order: camera.BGR, Pix: pix}
}

func TestFitSize(t *testing.T) {
	tests := []struct {
		w, h, maxW, maxH int
		wantW, wantH     int
	}{
		{640, 480, 400, 300, 400, 300},
		{1280, 720, 400, 300, 400, 225},
		{480, 640, 400, 300, 225, 300},
		{100, 100, 400, 300, 300, 300},
		{4000, 1, 400, 300, 400, 1},
		{0, 10, 400, 300, 0, 0},
	}

	for _, tt := range tests {
		w, h := FitSize(tt.w, tt.h, tt.maxW, tt.maxH)
		assert.Equal(t, tt.wantW, w, "width for %dx%d", tt.w, tt.h)
		assert.Equal(t, tt.wantH, h, "height for %dx%d", tt.w, tt.h)
	}
}

func TestToRGBASwapsBGR(t *testing.T) {
	img := ToRGBA(solidBGR(2, 2, 10, 20, 30))

	assert.Equal(t, color.RGBA{R: 30, G: 20, B: 10, A: 255}, img.RGBAAt(1, 1))
}

func TestToRGBAKeepsRGB(t *testing.T) {
	f := solidBGR(1, 1, 10, 20, 30)
	f.Order = camera.RGB

	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, ToRGBA(f).RGBAAt(0, 0))
}

func TestToRGBAHonoursStride(t *testing.T) {
	// Two 1-pixel rows padded to 4 bytes each.
	f := camera.Frame{Width: 1, Height: 2, Stride: 4, Order: camera.BGR, Pix: []byte{1, 2, 3, 0, 4, 5, 6, 0}}
	img := ToRGBA(f)

	assert.Equal(t, color.RGBA{R: 6, G: 5, B: 4, A: 255}, img.RGBAAt(0, 1))
}

func TestTickScalesIntoBox(t *testing.T) {
	dev := &fakeDevice{frames: []camera.Frame{solidBGR(64, 36, 0, 0, 255)}}
	surf := &recordingSurface{}
	r := New(dev, surf)

	r.Tick()

	require.Equal(t, 1, surf.count())
	img := surf.frames[0]
	assert.Equal(t, image.Rect(0, 0, 400, 225), img.Bounds())

	red := color.RGBAModel.Convert(img.At(200, 100)).(color.RGBA)
	assert.Equal(t, uint8(255), red.R)
	assert.Equal(t, uint8(0), red.B)

	rendered, skipped := r.Stats()
	assert.Equal(t, int64(1), rendered)
	assert.Equal(t, int64(0), skipped)
}

func TestTickSkipsMissingFrame(t *testing.T) {
	dev := &fakeDevice{}
	surf := &recordingSurface{}
	r := New(dev, surf)

	r.Tick()
	r.Tick()

	assert.Equal(t, 0, surf.count())
	assert.Equal(t, 2, dev.reads)
	_, skipped := r.Stats()
	assert.Equal(t, int64(2), skipped)
}

func TestClosedDeviceLeavesSurfaceUnchanged(t *testing.T) {
	surf := &recordingSurface{}
	r := New(nil, surf)

	for i := 0; i < 5; i++ {
		r.Tick()
	}
	assert.Equal(t, 0, surf.count())
}

func TestMirror(t *testing.T) {
	f := camera.Frame{Width: 2, Height: 1, Stride: 6, Order: camera.RGB, Pix: []byte{255, 0, 0, 0, 0, 255}}
	surf := &recordingSurface{}
	r := New(&fakeDevice{frames: []camera.Frame{f}}, surf, WithSize(2, 1), WithMirror(true))

	r.Tick()

	require.Equal(t, 1, surf.count())
	left := color.RGBAModel.Convert(surf.frames[0].At(0, 0)).(color.RGBA)
	assert.Equal(t, uint8(255), left.B, "blue pixel should move to the left")
}

func TestRunStopsOnCancel(t *testing.T) {
	frames := make([]camera.Frame, 100)
	for i := range frames {
		frames[i] = solidBGR(4, 3, 1, 2, 3)
	}
	surf := &recordingSurface{}
	r := New(&fakeDevice{frames: frames}, surf, WithPeriod(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return surf.count() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
