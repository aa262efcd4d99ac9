//go:build !gui

package desktop

import (
	"context"
	"image"
)

// Window is a placeholder in builds without the gui tag.
type Window struct{}

// New returns a window whose Run fails with ErrUnavailable.
func New(ctrl Interaction, opts ...Option) *Window {
	return &Window{}
}

// SetFrame discards img.
func (w *Window) SetFrame(img image.Image) {}

// Run returns ErrUnavailable.
func (w *Window) Run(ctx context.Context) error {
	return ErrUnavailable
}
