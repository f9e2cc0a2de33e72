package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PrefsProfile describes which roots the preference broadcaster observes and
// which storage keys it keeps in sync.
type PrefsProfile struct {
	Roots              []string `yaml:"roots"`
	ThemeKeys          []string `yaml:"theme_keys"`
	LangKey            string   `yaml:"lang_key"`
	Languages          []string `yaml:"languages"`
	DefaultLang        string   `yaml:"default_lang"`
	TransitionMS       int      `yaml:"transition_ms"`
	WatchlistAutoLimit int      `yaml:"watchlist_auto_limit"`
}

// DefaultPrefsProfile returns the built-in profile used when no file exists.
func DefaultPrefsProfile() *PrefsProfile {
	return &PrefsProfile{
		Roots:              []string{"document", "app"},
		ThemeKeys:          []string{"eglc.theme", "theme", "color-theme"},
		LangKey:            "eglc.lang",
		Languages:          []string{"th", "en"},
		DefaultLang:        "th",
		TransitionMS:       220,
		WatchlistAutoLimit: 12,
	}
}

// Transition returns the locale transition marker duration.
func (p *PrefsProfile) Transition() time.Duration {
	return time.Duration(p.TransitionMS) * time.Millisecond
}

// LoadPrefsProfile reads a YAML profile. A missing file yields the default
// profile; a present but invalid file is an error.
func LoadPrefsProfile(path string) (*PrefsProfile, error) {
	def := DefaultPrefsProfile()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return def, nil
		}
		return nil, fmt.Errorf("prefs profile: %w", err)
	}

	var p PrefsProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("prefs profile: %w", err)
	}
	if len(p.Roots) == 0 {
		p.Roots = def.Roots
	}
	if len(p.ThemeKeys) == 0 {
		p.ThemeKeys = def.ThemeKeys
	}
	if p.LangKey == "" {
		p.LangKey = def.LangKey
	}
	if len(p.Languages) == 0 {
		p.Languages = def.Languages
	}
	if p.DefaultLang == "" {
		p.DefaultLang = p.Languages[0]
	}
	if p.TransitionMS <= 0 {
		p.TransitionMS = def.TransitionMS
	}
	if p.WatchlistAutoLimit <= 0 {
		p.WatchlistAutoLimit = def.WatchlistAutoLimit
	}

	for i, key := range p.ThemeKeys {
		if strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("prefs profile: theme_keys[%d] is empty", i)
		}
	}
	supported := false
	for _, l := range p.Languages {
		if l == p.DefaultLang {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("prefs profile: default_lang %q not in languages", p.DefaultLang)
	}
	return &p, nil
}
