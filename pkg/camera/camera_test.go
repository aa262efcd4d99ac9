package camera

import (
	"errors"
	"testing"
)

func TestFrameValid(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  bool
	}{
		{"packed", Frame{Width: 2, Height: 2, Stride: 6, Pix: make([]byte, 12)}, true},
		{"padded rows", Frame{Width: 2, Height: 2, Stride: 8, Pix: make([]byte, 14)}, true},
		{"short pix", Frame{Width: 2, Height: 2, Stride: 6, Pix: make([]byte, 11)}, false},
		{"stride too small", Frame{Width: 2, Height: 2, Stride: 4, Pix: make([]byte, 12)}, false},
		{"empty", Frame{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.frame.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClosedDevice(t *testing.T) {
	var d Device = Closed{}
	if _, ok := d.Read(); ok {
		t.Error("Closed device should never produce frames")
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("default config should be valid: %v", errs)
	}

	cfg.Width = 10
	cfg.Quality = 0
	if errs := cfg.Validate(); len(errs) != 2 {
		t.Errorf("expected 2 errors, got %v", errs)
	}
}

func TestManagerUpdateConfig(t *testing.T) {
	m := NewManager(DefaultConfig())

	var applied Config
	m.OnConfigChange = func(cfg Config) error {
		applied = cfg
		return nil
	}

	err := m.UpdateConfig(map[string]interface{}{
		"preset":  Preset720p,
		"quality": float64(50),
		"mirror":  true,
	})
	if err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}

	got := m.GetConfig()
	if got.Width != 1280 || got.Height != 720 || got.Quality != 50 || !got.Mirror {
		t.Errorf("unexpected config %+v", got)
	}
	if applied != got {
		t.Errorf("callback got %+v, want %+v", applied, got)
	}
}

func TestManagerRejectsInvalid(t *testing.T) {
	m := NewManager(DefaultConfig())

	if err := m.UpdateConfig(map[string]interface{}{"width": 5}); err == nil {
		t.Error("expected validation error")
	}
	if m.GetConfig().Width != 640 {
		t.Error("invalid update should not change the config")
	}
	if err := m.UpdateConfig(map[string]interface{}{"preset": "8k"}); err == nil {
		t.Error("expected unknown preset error")
	}
}

func TestManagerCallbackError(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.OnConfigChange = func(Config) error { return ErrDeviceUnavailable }

	err := m.SetConfig(LowBandwidthConfig())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestPresets(t *testing.T) {
	for _, name := range PresetNames() {
		p := GetPreset(name)
		if p == nil {
			t.Fatalf("preset %s missing", name)
		}
		if errs := p.Validate(); len(errs) != 0 {
			t.Errorf("preset %s invalid: %v", name, errs)
		}
	}
	if GetPreset("missing") != nil {
		t.Error("expected nil for unknown preset")
	}
}
