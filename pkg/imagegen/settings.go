package imagegen

import (
	"encoding/json"
	"os"
	"path/filepath"

	"atelier/pkg/logger"
)

const settingsFile = "image_settings.json"

// Settings are operator defaults for generation, read from
// image_settings.json in the image root. Request values win over them.
type Settings struct {
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
	Count  int `json:"count,omitempty"`
}

// loadSettings reads the defaults file; a missing or unreadable file
// yields zero settings.
func loadSettings(dir string) Settings {
	var s Settings
	data, err := os.ReadFile(filepath.Join(dir, settingsFile))
	if err != nil {
		return s
	}
	if err := json.Unmarshal(data, &s); err != nil {
		logger.Warn("image_settings_invalid", "err", err)
		return Settings{}
	}
	return s
}

// applyDefaults fills zero-valued option fields from the settings file.
func (s Settings) applyDefaults(opts Options) Options {
	if opts.Width == 0 && s.Width != 0 {
		opts.Width = s.Width
	}
	if opts.Height == 0 && s.Height != 0 {
		opts.Height = s.Height
	}
	if opts.Count == 0 && s.Count != 0 {
		opts.Count = s.Count
	}
	return opts
}
