package prefs

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/eglc_companion/internal/broadcast"
	"github.com/dgnsrekt/eglc_companion/internal/kvstore"
)

type countingStorage struct {
	*kvstore.Memory
	mu     sync.Mutex
	writes int
}

func (s *countingStorage) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return s.Memory.Set(ctx, key, value)
}

func (s *countingStorage) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

type recorder struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (r *recorder) Publish(evt broadcast.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func testOptions() Options {
	return Options{
		ThemeKeys:   []string{"eglc.theme", "theme", "color-theme"},
		LangKey:     "eglc.lang",
		Languages:   []string{"th", "en"},
		DefaultLang: "th",
		Transition:  30 * time.Millisecond,
	}
}

func TestReadPreferenceOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("attribute beats storage", func(t *testing.T) {
		mem := kvstore.NewMemory()
		_ = mem.Set(ctx, "theme", "light")
		root := NewMemoryRoot("document")
		root.SetThemeAttr("dark")
		b := New(ctx, mem, nil, testOptions(), root)
		defer b.Close()
		if got := b.Snapshot().Theme; got != ThemeDark {
			t.Fatalf("Theme = %s; want %s", got, ThemeDark)
		}
	})

	t.Run("legacy key beats dark class", func(t *testing.T) {
		mem := kvstore.NewMemory()
		_ = mem.Set(ctx, "color-theme", "light")
		root := NewMemoryRoot("document")
		root.SetDarkClass(true)
		b := New(ctx, mem, nil, testOptions(), root)
		defer b.Close()
		if got := b.Snapshot().Theme; got != ThemeLight {
			t.Fatalf("Theme = %s; want %s", got, ThemeLight)
		}
	})

	t.Run("dark class beats environment", func(t *testing.T) {
		root := NewMemoryRoot("app")
		root.SetDarkClass(true)
		b := New(ctx, kvstore.NewMemory(), nil, testOptions(), NewMemoryRoot("document"), root)
		defer b.Close()
		if got := b.Snapshot().Theme; got != ThemeDark {
			t.Fatalf("Theme = %s; want %s", got, ThemeDark)
		}
	})

	t.Run("environment then light", func(t *testing.T) {
		opts := testOptions()
		opts.PrefersDark = true
		b := New(ctx, kvstore.NewMemory(), nil, opts, NewMemoryRoot("document"))
		defer b.Close()
		if got := b.Snapshot().Theme; got != ThemeDark {
			t.Fatalf("Theme = %s; want %s", got, ThemeDark)
		}

		b2 := New(ctx, kvstore.NewMemory(), nil, testOptions(), NewMemoryRoot("document"))
		defer b2.Close()
		if got := b2.Snapshot().Theme; got != ThemeLight {
			t.Fatalf("Theme = %s; want %s", got, ThemeLight)
		}
	})
}

func TestWritePreferenceAppliesEverywhere(t *testing.T) {
	ctx := context.Background()
	mem := kvstore.NewMemory()
	rec := &recorder{}
	doc, app := NewMemoryRoot("document"), NewMemoryRoot("app")
	b := New(ctx, mem, rec, testOptions(), doc, app)
	defer b.Close()

	if err := b.WritePreference(ctx, ThemeDark); err != nil {
		t.Fatalf("WritePreference() error = %v", err)
	}
	for _, r := range []*MemoryRoot{doc, app} {
		m, _ := r.Marks(ctx)
		if !m.DarkClass || m.ThemeAttr != "dark" || m.ColorScheme != "dark" {
			t.Fatalf("%s marks = %+v; want dark everywhere", r.Name(), m)
		}
	}
	for _, key := range testOptions().ThemeKeys {
		if v, _, _ := mem.Get(ctx, key); v != "dark" {
			t.Fatalf("storage[%s] = %q; want dark", key, v)
		}
	}
	if got := rec.Count(); got != 1 {
		t.Fatalf("published %d events; want 1", got)
	}
	if got := b.Snapshot().Theme; got != ThemeDark {
		t.Fatalf("Theme = %s; want %s", got, ThemeDark)
	}

	if err := b.WritePreference(ctx, Theme("sepia")); err == nil {
		t.Fatal("WritePreference(sepia) error = nil; want error")
	}
}

func TestRootMutationReconcilesWithoutWriting(t *testing.T) {
	ctx := context.Background()
	store := &countingStorage{Memory: kvstore.NewMemory()}
	rec := &recorder{}
	doc := NewMemoryRoot("document")
	b := New(ctx, store, rec, testOptions(), doc)
	defer b.Close()

	writes, events := store.Writes(), rec.Count()

	var seen []Theme
	unsub := b.Subscribe(func(s Settings) { seen = append(seen, s.Theme) })
	defer unsub()

	doc.SetDarkClass(true)
	if got := b.Snapshot().Theme; got != ThemeDark {
		t.Fatalf("Theme after class toggle = %s; want %s", got, ThemeDark)
	}
	doc.SetDarkClass(false)
	if got := b.Snapshot().Theme; got != ThemeLight {
		t.Fatalf("Theme after class removal = %s; want %s", got, ThemeLight)
	}
	doc.SetThemeAttr("dark")
	if got := b.Snapshot().Theme; got != ThemeDark {
		t.Fatalf("Theme after attribute change = %s; want %s", got, ThemeDark)
	}

	if got := store.Writes(); got != writes {
		t.Fatalf("storage writes = %d; want %d (no writes from reconciliation)", got, writes)
	}
	if got := rec.Count(); got != events {
		t.Fatalf("published = %d; want %d (no broadcast from reconciliation)", got, events)
	}
	if len(seen) != 3 || seen[0] != ThemeDark || seen[1] != ThemeLight || seen[2] != ThemeDark {
		t.Fatalf("subscriber saw %v; want [dark light dark]", seen)
	}
}

func TestApplyExternalDoesNotWriteBack(t *testing.T) {
	ctx := context.Background()
	store := &countingStorage{Memory: kvstore.NewMemory()}
	rec := &recorder{}
	doc := NewMemoryRoot("document")
	b := New(ctx, store, rec, testOptions(), doc)
	defer b.Close()
	writes := store.Writes()

	b.ApplyExternal(kvstore.Change{Key: "theme", Value: "dark"})
	m, _ := doc.Marks(ctx)
	if !m.DarkClass || m.ThemeAttr != "dark" {
		t.Fatalf("marks = %+v; want dark after external change", m)
	}
	b.ApplyExternal(kvstore.Change{Key: "eglc.lang", Value: "en"})
	if got := b.Snapshot().Lang; got != "en" {
		t.Fatalf("Lang = %q; want en", got)
	}
	b.ApplyExternal(kvstore.Change{Key: "eglc.lang", Value: "fr"})
	if got := b.Snapshot().Lang; got != "en" {
		t.Fatalf("Lang = %q; want unsupported value ignored", got)
	}

	if got := store.Writes(); got != writes {
		t.Fatalf("storage writes = %d; want %d", got, writes)
	}
	if got := rec.Count(); got != 2 {
		t.Fatalf("published = %d; want 2", got)
	}
}

func TestSetLocaleRestartsTransition(t *testing.T) {
	ctx := context.Background()
	mem := kvstore.NewMemory()
	doc := NewMemoryRoot("document")
	opts := testOptions()
	b := New(ctx, mem, nil, opts, doc)
	defer b.Close()

	if err := b.SetLocale(ctx, "en"); err != nil {
		t.Fatalf("SetLocale(en) error = %v", err)
	}
	time.Sleep(opts.Transition / 2)
	restarted := time.Now()
	if err := b.SetLocale(ctx, "th"); err != nil {
		t.Fatalf("SetLocale(th) error = %v", err)
	}

	m, _ := doc.Marks(ctx)
	if !m.Switching || m.Lang != "th" {
		t.Fatalf("marks = %+v; want switching with lang th", m)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		m, _ = doc.Marks(ctx)
		if !m.Switching {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("switching marker never cleared")
		}
		time.Sleep(2 * time.Millisecond)
	}
	if elapsed := time.Since(restarted); elapsed < opts.Transition {
		t.Fatalf("marker cleared after %v; want at least %v from the second switch", elapsed, opts.Transition)
	}
	if v, _, _ := mem.Get(ctx, "eglc.lang"); v != "th" {
		t.Fatalf("storage lang = %q; want th", v)
	}
	if err := b.SetLocale(ctx, "fr"); err == nil {
		t.Fatal("SetLocale(fr) error = nil; want error")
	}
}

type fakeEvaluator struct {
	mu      sync.Mutex
	result  string
	scripts []string
}

func (f *fakeEvaluator) Evaluate(_ context.Context, expr string, out any) error {
	f.mu.Lock()
	f.scripts = append(f.scripts, expr)
	res := f.result
	f.mu.Unlock()
	return json.Unmarshal([]byte(res), out)
}

func TestBrowserRootMarks(t *testing.T) {
	eval := &fakeEvaluator{result: `{"found":true,"data_theme":"dark","dark_class":true,"color_scheme":"dark","lang":"en","lang_switching":false}`}
	root := NewBrowserRoot("tab", "#app", eval, time.Second)

	m, err := root.Marks(context.Background())
	if err != nil {
		t.Fatalf("Marks() error = %v", err)
	}
	want := Marks{ThemeAttr: "dark", DarkClass: true, ColorScheme: "dark", Lang: "en"}
	if m != want {
		t.Fatalf("Marks() = %+v; want %+v", m, want)
	}

	eval.result = `{"found":false}`
	if _, err := root.Marks(context.Background()); err == nil {
		t.Fatal("Marks() error = nil; want element not found")
	}

	eval.result = `true`
	if err := root.SetTheme(context.Background(), ThemeLight); err != nil {
		t.Fatalf("SetTheme() error = %v", err)
	}
	eval.result = `false`
	if err := root.SetLang(context.Background(), "th"); err == nil {
		t.Fatal("SetLang() error = nil; want element not found")
	}
}

func TestBrowserRootWatchReportsChanges(t *testing.T) {
	eval := &fakeEvaluator{result: `{"found":true,"lang":"th"}`}
	root := NewBrowserRoot("tab", "", eval, 5*time.Millisecond)

	got := make(chan Marks, 8)
	stop := root.Watch(func(m Marks) { got <- m })
	defer stop()

	first := <-got
	if first.Lang != "th" {
		t.Fatalf("first = %+v; want lang th", first)
	}
	eval.mu.Lock()
	eval.result = `{"found":true,"lang":"th","dark_class":true}`
	eval.mu.Unlock()

	select {
	case m := <-got:
		if !m.DarkClass {
			t.Fatalf("second = %+v; want dark class", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch never reported the change")
	}
}
