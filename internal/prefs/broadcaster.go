// Package prefs keeps UI preferences (theme and language) consistent across
// every observed root, the legacy storage keys and other companion
// processes sharing the same storage.
package prefs

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/eglc_companion/internal/broadcast"
	"github.com/dgnsrekt/eglc_companion/internal/kvstore"
)

// Theme is the color mode.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// ParseTheme accepts "dark" or "light" (any case, surrounding spaces).
func ParseTheme(s string) (Theme, bool) {
	switch Theme(strings.ToLower(strings.TrimSpace(s))) {
	case ThemeDark:
		return ThemeDark, true
	case ThemeLight:
		return ThemeLight, true
	}
	return "", false
}

func themeFromDark(dark bool) Theme {
	if dark {
		return ThemeDark
	}
	return ThemeLight
}

const opTimeout = 3 * time.Second

// Options configure a Broadcaster.
type Options struct {
	ThemeKeys   []string
	LangKey     string
	Languages   []string
	DefaultLang string
	Transition  time.Duration
	PrefersDark bool
}

// Settings is the current preference state.
type Settings struct {
	Theme     Theme  `json:"theme"`
	Lang      string `json:"lang"`
	Switching bool   `json:"switching"`
}

// Broadcaster owns theme and language for the process.
type Broadcaster struct {
	storage kvstore.Storage
	pub     broadcast.Publisher
	opts    Options
	roots   []Root

	mu          sync.Mutex
	theme       Theme
	lang        string
	seen        map[string]Marks
	switching   bool
	switchGen   int
	switchTimer *time.Timer
	stops       []func()
	nextID      int
	listeners   map[int]func(Settings)
}

// New resolves the initial preference, applies it everywhere and starts
// watching every root for outside mutations.
func New(ctx context.Context, storage kvstore.Storage, pub broadcast.Publisher, opts Options, roots ...Root) *Broadcaster {
	if pub == nil {
		pub = broadcast.Discard{}
	}
	if opts.Transition <= 0 {
		opts.Transition = 220 * time.Millisecond
	}
	if opts.DefaultLang == "" && len(opts.Languages) > 0 {
		opts.DefaultLang = opts.Languages[0]
	}
	b := &Broadcaster{
		storage:   storage,
		pub:       pub,
		opts:      opts,
		roots:     roots,
		seen:      make(map[string]Marks),
		listeners: make(map[int]func(Settings)),
	}

	b.theme = b.ReadPreference(ctx)
	b.lang = b.readLang(ctx)
	b.applyTheme(ctx, b.theme)
	b.writeThemeKeys(ctx, b.theme)
	b.applyLang(ctx, b.lang)

	for _, r := range roots {
		if m, err := r.Marks(ctx); err == nil {
			b.seen[r.Name()] = m
		} else {
			slog.Debug("prefs root read failed", "root", r.Name(), "error", err)
		}
	}

	for _, r := range roots {
		name := r.Name()
		b.stops = append(b.stops, r.Watch(func(m Marks) { b.onRootMutation(name, m) }))
	}
	return b
}

// Close stops watching roots and cancels a pending transition marker.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	stops := b.stops
	b.stops = nil
	if b.switchTimer != nil {
		b.switchTimer.Stop()
	}
	b.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
}

// Snapshot returns the current preferences.
func (b *Broadcaster) Snapshot() Settings {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Settings{Theme: b.theme, Lang: b.lang, Switching: b.switching}
}

// Subscribe registers fn for local state changes. The returned func
// removes it.
func (b *Broadcaster) Subscribe(fn func(Settings)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

func (b *Broadcaster) notify() {
	b.mu.Lock()
	snap := Settings{Theme: b.theme, Lang: b.lang, Switching: b.switching}
	fns := make([]func(Settings), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// ReadPreference resolves the theme: explicit attribute on any root, then
// the legacy storage keys, then a dark class on any root, then the
// environment's preferred scheme, then light.
func (b *Broadcaster) ReadPreference(ctx context.Context) Theme {
	marks := b.currentMarks(ctx)
	for _, m := range marks {
		if t, ok := ParseTheme(m.ThemeAttr); ok {
			return t
		}
	}
	for _, key := range b.opts.ThemeKeys {
		v, ok, err := b.storage.Get(ctx, key)
		if err != nil {
			slog.Debug("prefs theme key read failed", "key", key, "error", err)
			continue
		}
		if !ok {
			continue
		}
		if t, ok := ParseTheme(v); ok {
			return t
		}
	}
	for _, m := range marks {
		if m.DarkClass {
			return ThemeDark
		}
	}
	return themeFromDark(b.opts.PrefersDark)
}

func (b *Broadcaster) currentMarks(ctx context.Context) []Marks {
	out := make([]Marks, 0, len(b.roots))
	for _, r := range b.roots {
		m, err := r.Marks(ctx)
		if err != nil {
			slog.Debug("prefs root read failed", "root", r.Name(), "error", err)
			continue
		}
		out = append(out, m)
	}
	return out
}

// WritePreference applies mode to every root, writes every legacy key and
// broadcasts the change.
func (b *Broadcaster) WritePreference(ctx context.Context, mode Theme) error {
	if _, ok := ParseTheme(string(mode)); !ok {
		return fmt.Errorf("prefs: unknown theme %q", mode)
	}
	b.mu.Lock()
	b.theme = mode
	b.mu.Unlock()

	b.applyTheme(ctx, mode)
	b.writeThemeKeys(ctx, mode)
	b.notify()
	b.pub.Publish(broadcast.NewEvent(broadcast.TopicTheme, map[string]string{"theme": string(mode), "source": "local"}))
	slog.Info("theme changed", "theme", mode)
	return nil
}

func (b *Broadcaster) applyTheme(ctx context.Context, mode Theme) {
	for _, r := range b.roots {
		if err := r.SetTheme(ctx, mode); err != nil {
			slog.Debug("prefs apply theme failed", "root", r.Name(), "error", err)
		}
	}
}

func (b *Broadcaster) writeThemeKeys(ctx context.Context, mode Theme) {
	for _, key := range b.opts.ThemeKeys {
		if err := b.storage.Set(ctx, key, string(mode)); err != nil {
			slog.Debug("prefs theme key write failed", "key", key, "error", err)
		}
	}
}

// onRootMutation reconciles local state from a root change. It never
// writes storage or broadcasts, so our own writes cannot loop back.
func (b *Broadcaster) onRootMutation(name string, m Marks) {
	b.mu.Lock()
	prev := b.seen[name]
	b.seen[name] = m

	theme, lang := b.theme, b.lang
	switch {
	case prev.DarkClass != m.DarkClass:
		theme = themeFromDark(m.DarkClass)
	case prev.ThemeAttr != m.ThemeAttr:
		if t, ok := ParseTheme(m.ThemeAttr); ok {
			theme = t
		}
	}
	if prev.Lang != m.Lang && slices.Contains(b.opts.Languages, m.Lang) {
		lang = m.Lang
	}

	changed := theme != b.theme || lang != b.lang
	b.theme, b.lang = theme, lang
	b.mu.Unlock()

	if changed {
		slog.Debug("prefs reconciled from root", "root", name, "theme", theme, "lang", lang)
		b.notify()
	}
}

// ApplyExternal adopts a preference written by another process. Roots are
// updated to match, storage is not written back.
func (b *Broadcaster) ApplyExternal(c kvstore.Change) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch {
	case slices.Contains(b.opts.ThemeKeys, c.Key):
		t, ok := ParseTheme(c.Value)
		if c.Deleted || !ok {
			return
		}
		b.mu.Lock()
		same := b.theme == t
		b.theme = t
		b.mu.Unlock()
		if same {
			return
		}
		b.applyTheme(ctx, t)
		b.notify()
		b.pub.Publish(broadcast.NewEvent(broadcast.TopicTheme, map[string]string{"theme": string(t), "source": "storage"}))

	case c.Key == b.opts.LangKey:
		if c.Deleted || !slices.Contains(b.opts.Languages, c.Value) {
			return
		}
		b.mu.Lock()
		same := b.lang == c.Value
		b.lang = c.Value
		b.mu.Unlock()
		if same {
			return
		}
		b.applyLang(ctx, c.Value)
		b.notify()
		b.pub.Publish(broadcast.NewEvent(broadcast.TopicLocale, map[string]string{"lang": c.Value, "source": "storage"}))
	}
}

func (b *Broadcaster) readLang(ctx context.Context) string {
	if b.opts.LangKey != "" {
		v, ok, err := b.storage.Get(ctx, b.opts.LangKey)
		if err != nil {
			slog.Debug("prefs lang read failed", "error", err)
		} else if ok && slices.Contains(b.opts.Languages, v) {
			return v
		}
	}
	return b.opts.DefaultLang
}

func (b *Broadcaster) applyLang(ctx context.Context, lang string) {
	for _, r := range b.roots {
		if err := r.SetLang(ctx, lang); err != nil {
			slog.Debug("prefs apply lang failed", "root", r.Name(), "error", err)
		}
	}
}

// SetLocale switches the language. Roots carry the switching marker for
// the transition duration; a switch during a transition restarts the
// countdown.
func (b *Broadcaster) SetLocale(ctx context.Context, lang string) error {
	if !slices.Contains(b.opts.Languages, lang) {
		return fmt.Errorf("prefs: unsupported language %q", lang)
	}

	b.mu.Lock()
	b.lang = lang
	b.switching = true
	b.switchGen++
	gen := b.switchGen
	if b.switchTimer != nil {
		b.switchTimer.Stop()
		b.switchTimer = nil
	}
	b.mu.Unlock()

	for _, r := range b.roots {
		if err := r.SetSwitching(ctx, true); err != nil {
			slog.Debug("prefs switching marker failed", "root", r.Name(), "error", err)
		}
	}

	b.mu.Lock()
	if gen == b.switchGen {
		b.switchTimer = time.AfterFunc(b.opts.Transition, func() { b.endSwitch(gen) })
	}
	b.mu.Unlock()
	b.applyLang(ctx, lang)
	if b.opts.LangKey != "" {
		if err := b.storage.Set(ctx, b.opts.LangKey, lang); err != nil {
			slog.Debug("prefs lang write failed", "error", err)
		}
	}
	b.notify()
	b.pub.Publish(broadcast.NewEvent(broadcast.TopicLocale, map[string]string{"lang": lang, "source": "local"}))
	return nil
}

func (b *Broadcaster) endSwitch(gen int) {
	b.mu.Lock()
	if gen != b.switchGen {
		b.mu.Unlock()
		return
	}
	b.switching = false
	b.switchTimer = nil
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	for _, r := range b.roots {
		if err := r.SetSwitching(ctx, false); err != nil {
			slog.Debug("prefs switching marker clear failed", "root", r.Name(), "error", err)
		}
	}
	b.notify()
}
