// Package headless reads JavaScript-rendered page values through headless Chrome.
package headless

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/booth-harvest/internal/metrics"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultSettleDelay       = 2 * time.Second
	windowWidth              = 1366
	windowHeight             = 768
)

// likesScript returns the first integer shown by the wishlist button, or -1.
const likesScript = `(() => {
	const el = document.getElementById('js-item-wishlist-button');
	if (!el) return -1;
	const own = (el.textContent || '').match(/\d+/);
	if (own) return parseInt(own[0], 10);
	const child = Array.from(el.querySelectorAll('*')).find(c => /\d+/.test(c.textContent || ''));
	if (!child) return -1;
	return parseInt(child.textContent.match(/\d+/)[0], 10);
})()`

// Config controls the behavior of the likes counter.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	ExecPath          string
}

type readFunc func(ctx context.Context, url string) (int, error)

// LikesCounter implements crawler.LikesCounter with a fresh headless browser per call.
type LikesCounter struct {
	cfg    Config
	logger *zap.Logger
	read   readFunc
}

// NewLikesCounter creates a chromedp-backed counter.
func NewLikesCounter(cfg Config, logger *zap.Logger) *LikesCounter {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &LikesCounter{cfg: cfg, logger: logger}
	c.read = c.readWithBrowser
	return c
}

// Count returns the like count shown on the listing page, or nil when it
// cannot be read. Failures are logged and never returned.
func (c *LikesCounter) Count(ctx context.Context, url string) *int {
	n, err := c.read(ctx, url)
	if err != nil {
		c.logger.Warn("likes lookup failed", zap.String("url", url), zap.Error(err))
		metrics.ObserveLikesLookup("error")
		return nil
	}
	if n < 0 {
		c.logger.Debug("likes counter not found", zap.String("url", url))
		metrics.ObserveLikesLookup("missing")
		return nil
	}
	metrics.ObserveLikesLookup("found")
	return &n
}

func (c *LikesCounter) readWithBrowser(ctx context.Context, url string) (int, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(windowWidth, windowHeight),
	)
	if c.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, c.cfg.NavigationTimeout)
	defer cancel()

	likes := -1
	actions := []chromedp.Action{
		c.emulationAction(),
		chromedp.Navigate(url),
		chromedp.Sleep(c.cfg.SettleDelay),
		chromedp.Evaluate(likesScript, &likes),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return -1, fmt.Errorf("chromedp run: %w", err)
	}
	return likes, nil
}

func (c *LikesCounter) emulationAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := chromedp.EmulateViewport(windowWidth, windowHeight).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		if c.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(c.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}
