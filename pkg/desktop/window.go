//go:build gui

package desktop

import (
	"context"
	"image"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/teslashibe/go-quickagent/pkg/preview"
	"github.com/teslashibe/go-quickagent/pkg/session"
)

// Window is the desktop shell. It implements preview.Surface.
type Window struct {
	ctrl Interaction
	opts options

	app    fyne.App
	win    fyne.Window
	img    *canvas.Image
	log    *widget.Label
	scroll *container.Scroll
	status *widget.Label
	start  *widget.Button
	stop   *widget.Button

	lines []string
}

var _ preview.Surface = (*Window)(nil)

// New builds the window for ctrl. Call Run from the main goroutine.
func New(ctrl Interaction, opts ...Option) *Window {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("component", "desktop.window")

	w := &Window{ctrl: ctrl, opts: o}

	w.app = app.NewWithID("io.quickagent.desktop")
	w.win = w.app.NewWindow(o.title)

	w.img = canvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, o.width, o.height)))
	w.img.FillMode = canvas.ImageFillContain
	w.img.SetMinSize(fyne.NewSize(float32(o.width), float32(o.height)))

	w.log = widget.NewLabel("")
	w.log.Wrapping = fyne.TextWrapWord
	w.scroll = container.NewVScroll(w.log)
	w.scroll.SetMinSize(fyne.NewSize(float32(o.width), 200))

	w.status = widget.NewLabel(ctrl.State().String())
	w.start = widget.NewButton("Start Interaction", func() { go w.call("start", ctrl.Start) })
	w.stop = widget.NewButton("Stop Interaction", func() { go w.call("stop", ctrl.Stop) })
	w.refreshButtons()

	buttons := container.NewHBox(w.start, w.stop, w.status)
	w.win.SetContent(container.NewBorder(w.img, buttons, nil, nil, w.scroll))
	return w
}

// SetFrame replaces the preview image. Safe from any goroutine.
func (w *Window) SetFrame(img image.Image) {
	fyne.Do(func() {
		w.img.Image = img
		w.img.Refresh()
	})
}

// Run shows the window and blocks until it is closed or ctx is done.
func (w *Window) Run(ctx context.Context) error {
	lines, unsubscribe := w.ctrl.Subscribe()
	defer unsubscribe()

	for _, l := range w.ctrl.Transcript().Lines() {
		w.lines = append(w.lines, l.Text)
	}
	w.log.SetText(strings.Join(w.lines, "\n"))

	go func() {
		for {
			select {
			case <-ctx.Done():
				fyne.Do(w.app.Quit)
				return
			case l, ok := <-lines:
				if !ok {
					return
				}
				fyne.Do(func() { w.appendLine(l.Text) })
			}
		}
	}()

	w.opts.logger.Info("window opened", "title", w.opts.title)
	w.win.ShowAndRun()
	w.opts.logger.Info("window closed")
	return nil
}

func (w *Window) appendLine(text string) {
	w.lines = append(w.lines, text)
	w.log.SetText(strings.Join(w.lines, "\n"))
	w.scroll.ScrollToBottom()
	w.refreshButtons()
}

func (w *Window) refreshButtons() {
	state := w.ctrl.State()
	w.status.SetText(state.String())
	if state == session.Active {
		w.start.Disable()
		w.stop.Enable()
	} else {
		w.start.Enable()
		w.stop.Disable()
	}
}

// call runs a controller command off the UI goroutine; the dispatch loop
// may be busy with a reply.
func (w *Window) call(name string, fn func() error) {
	if err := fn(); err != nil {
		w.opts.logger.Warn("interaction command failed", "command", name, "error", err)
	}
}
