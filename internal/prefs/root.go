package prefs

import (
	"context"
	"sync"
)

// Marker names applied to observed roots.
const (
	DarkClass      = "dark"
	ThemeAttr      = "data-theme"
	SwitchingClass = "lang-switching"
)

// Marks are the preference markers a root currently carries.
type Marks struct {
	ThemeAttr   string `json:"data_theme"`
	DarkClass   bool   `json:"dark_class"`
	ColorScheme string `json:"color_scheme"`
	Lang        string `json:"lang"`
	Switching   bool   `json:"lang_switching"`
}

// Root is an observed UI root (a document element, an app container, a
// browser tab). Other components may mutate a root behind our back; Watch
// reports every mutation.
type Root interface {
	Name() string
	Marks(ctx context.Context) (Marks, error)
	SetTheme(ctx context.Context, t Theme) error
	SetLang(ctx context.Context, lang string) error
	SetSwitching(ctx context.Context, on bool) error
	Watch(fn func(Marks)) (stop func())
}

// MemoryRoot is an in-process Root. Mutations notify watchers synchronously.
type MemoryRoot struct {
	name string

	mu       sync.Mutex
	marks    Marks
	nextID   int
	watchers map[int]func(Marks)
}

// NewMemoryRoot returns a root with no markers.
func NewMemoryRoot(name string) *MemoryRoot {
	return &MemoryRoot{name: name, watchers: make(map[int]func(Marks))}
}

func (r *MemoryRoot) Name() string { return r.name }

func (r *MemoryRoot) Marks(context.Context) (Marks, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.marks, nil
}

func (r *MemoryRoot) SetTheme(_ context.Context, t Theme) error {
	r.mutate(func(m *Marks) {
		m.DarkClass = t == ThemeDark
		m.ThemeAttr = string(t)
		m.ColorScheme = string(t)
	})
	return nil
}

func (r *MemoryRoot) SetLang(_ context.Context, lang string) error {
	r.mutate(func(m *Marks) { m.Lang = lang })
	return nil
}

func (r *MemoryRoot) SetSwitching(_ context.Context, on bool) error {
	r.mutate(func(m *Marks) { m.Switching = on })
	return nil
}

// SetDarkClass toggles only the class marker, the way an unrelated
// component would.
func (r *MemoryRoot) SetDarkClass(on bool) {
	r.mutate(func(m *Marks) { m.DarkClass = on })
}

// SetThemeAttr sets only the explicit attribute.
func (r *MemoryRoot) SetThemeAttr(v string) {
	r.mutate(func(m *Marks) { m.ThemeAttr = v })
}

func (r *MemoryRoot) Watch(fn func(Marks)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.watchers[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.watchers, id)
		r.mu.Unlock()
	}
}

func (r *MemoryRoot) mutate(fn func(*Marks)) {
	r.mu.Lock()
	before := r.marks
	fn(&r.marks)
	after := r.marks
	fns := make([]func(Marks), 0, len(r.watchers))
	for _, w := range r.watchers {
		fns = append(fns, w)
	}
	r.mu.Unlock()

	if before == after {
		return
	}
	for _, w := range fns {
		w(after)
	}
}
