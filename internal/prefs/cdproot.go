package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Evaluator runs a script in a browser page and decodes the result.
type Evaluator interface {
	Evaluate(ctx context.Context, expr string, out any) error
}

// BrowserRoot is a Root backed by an element in a live browser page.
// The page has no way to push mutations to us, so Watch polls.
type BrowserRoot struct {
	name     string
	selector string
	eval     Evaluator
	poll     time.Duration
}

// NewBrowserRoot observes the element matched by selector. An empty
// selector means the document element.
func NewBrowserRoot(name, selector string, eval Evaluator, poll time.Duration) *BrowserRoot {
	if poll <= 0 {
		poll = 300 * time.Millisecond
	}
	return &BrowserRoot{name: name, selector: selector, eval: eval, poll: poll}
}

func (r *BrowserRoot) Name() string { return r.name }

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func (r *BrowserRoot) element() string {
	if r.selector == "" {
		return "document.documentElement"
	}
	return "document.querySelector(" + jsString(r.selector) + ")"
}

type browserMarks struct {
	Found       bool   `json:"found"`
	ThemeAttr   string `json:"data_theme"`
	DarkClass   bool   `json:"dark_class"`
	ColorScheme string `json:"color_scheme"`
	Lang        string `json:"lang"`
	Switching   bool   `json:"lang_switching"`
}

func (r *BrowserRoot) Marks(ctx context.Context) (Marks, error) {
	expr := fmt.Sprintf(`(() => {
  const el = %s;
  if (!el) return {found: false};
  return {
    found: true,
    data_theme: el.getAttribute(%s) || "",
    dark_class: el.classList.contains(%s),
    color_scheme: el.style.colorScheme || "",
    lang: el.getAttribute("lang") || "",
    lang_switching: el.classList.contains(%s)
  };
})()`, r.element(), jsString(ThemeAttr), jsString(DarkClass), jsString(SwitchingClass))

	var out browserMarks
	if err := r.eval.Evaluate(ctx, expr, &out); err != nil {
		return Marks{}, err
	}
	if !out.Found {
		return Marks{}, fmt.Errorf("prefs: root %s: element not found", r.name)
	}
	return Marks{
		ThemeAttr:   out.ThemeAttr,
		DarkClass:   out.DarkClass,
		ColorScheme: out.ColorScheme,
		Lang:        out.Lang,
		Switching:   out.Switching,
	}, nil
}

func (r *BrowserRoot) run(ctx context.Context, body string) error {
	expr := fmt.Sprintf(`(() => {
  const el = %s;
  if (!el) return false;
  %s
  return true;
})()`, r.element(), body)

	var ok bool
	if err := r.eval.Evaluate(ctx, expr, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("prefs: root %s: element not found", r.name)
	}
	return nil
}

func (r *BrowserRoot) SetTheme(ctx context.Context, t Theme) error {
	return r.run(ctx, fmt.Sprintf(`el.classList.toggle(%s, %t);
  el.setAttribute(%s, %s);
  el.style.colorScheme = %s;`,
		jsString(DarkClass), t == ThemeDark, jsString(ThemeAttr), jsString(string(t)), jsString(string(t))))
}

func (r *BrowserRoot) SetLang(ctx context.Context, lang string) error {
	return r.run(ctx, fmt.Sprintf(`el.setAttribute("lang", %s);`, jsString(lang)))
}

func (r *BrowserRoot) SetSwitching(ctx context.Context, on bool) error {
	return r.run(ctx, fmt.Sprintf(`el.classList.toggle(%s, %t);`, jsString(SwitchingClass), on))
}

// Watch polls the element and reports every observed change. Polls that
// fail are logged and skipped.
func (r *BrowserRoot) Watch(fn func(Marks)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.poll)
		defer ticker.Stop()

		var last Marks
		primed := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			pollCtx, pollCancel := context.WithTimeout(ctx, r.poll*4)
			m, err := r.Marks(pollCtx)
			pollCancel()
			if err != nil {
				if ctx.Err() == nil {
					slog.Debug("prefs browser root poll failed", "root", r.name, "error", err)
				}
				continue
			}
			if primed && m == last {
				continue
			}
			last, primed = m, true
			fn(m)
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}
