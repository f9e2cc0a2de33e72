// Package cdp attaches to one Chromium tab over the DevTools protocol and
// evaluates scripts in it.
package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// Client is attached to a single page target.
type Client struct {
	cdpURL    string
	targetID  string
	urlFilter string

	mu          sync.Mutex
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	tabID       target.ID
	tabURL      string
}

// NewClient returns an unconnected client. An empty targetID selects the
// first page whose URL contains urlFilter (or any page when the filter is
// empty).
func NewClient(cdpURL, targetID, urlFilter string) *Client {
	return &Client{cdpURL: cdpURL, targetID: targetID, urlFilter: urlFilter}
}

// Connect attaches to the configured tab.
func (c *Client) Connect(ctx context.Context) error {
	slog.Info("connecting to chromium", "url", c.cdpURL)

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), c.cdpURL)

	tempCtx, tempCancel := chromedp.NewContext(allocCtx)
	defer tempCancel()
	stop := context.AfterFunc(ctx, tempCancel)
	defer stop()

	if err := chromedp.Run(tempCtx); err != nil {
		allocCancel()
		return fmt.Errorf("cdp: connect to browser: %w", err)
	}

	targets, err := chromedp.Targets(tempCtx)
	if err != nil {
		allocCancel()
		return fmt.Errorf("cdp: enumerate targets: %w", err)
	}

	var picked *target.Info
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if c.targetID != "" {
			if string(t.TargetID) == c.targetID {
				picked = t
				break
			}
			continue
		}
		if c.matchesURL(t.URL) {
			picked = t
			break
		}
	}
	if picked == nil {
		allocCancel()
		return fmt.Errorf("cdp: no page target matches id=%q filter=%q", c.targetID, c.urlFilter)
	}

	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithTargetID(picked.TargetID))
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return fmt.Errorf("cdp: attach to %s: %w", picked.TargetID, err)
	}

	c.mu.Lock()
	c.allocCancel = allocCancel
	c.tabCtx = tabCtx
	c.tabCancel = tabCancel
	c.tabID = picked.TargetID
	c.tabURL = picked.URL
	c.mu.Unlock()

	slog.Info("attached to tab", "target_id", picked.TargetID, "url", truncateURL(picked.URL))
	return nil
}

// Evaluate runs expr in the attached tab and decodes its result into out.
// Cancelling ctx aborts the evaluation without detaching.
func (c *Client) Evaluate(ctx context.Context, expr string, out any) error {
	c.mu.Lock()
	tabCtx := c.tabCtx
	c.mu.Unlock()
	if tabCtx == nil {
		return fmt.Errorf("cdp: not connected")
	}

	evalCtx, cancel := context.WithCancel(tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(evalCtx, chromedp.Evaluate(expr, out)); err != nil {
		return fmt.Errorf("cdp: evaluate: %w", err)
	}
	return nil
}

// TargetID is the attached tab, empty before Connect.
func (c *Client) TargetID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.tabID)
}

// Close detaches from the tab. The tab itself stays open.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tabCancel != nil {
		c.tabCancel()
		c.tabCancel = nil
	}
	if c.allocCancel != nil {
		c.allocCancel()
		c.allocCancel = nil
	}
	c.tabCtx = nil
	slog.Info("cdp client closed")
	return nil
}

func (c *Client) matchesURL(url string) bool {
	if c.urlFilter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(url), strings.ToLower(c.urlFilter))
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
