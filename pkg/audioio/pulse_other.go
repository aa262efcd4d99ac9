//go:build !linux

package audioio

import "log/slog"

const pulseAvailable = false

func newPulseSource(cfg Config, logger *slog.Logger) (Source, error) {
	return nil, ErrBackendUnavailable
}

func newPulseSink(cfg Config, logger *slog.Logger) (Sink, error) {
	return nil, ErrBackendUnavailable
}
