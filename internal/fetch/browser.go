package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// stealthScript masks the usual automation tells before any page script
// runs: webdriver flag, empty plugin list, missing window.chrome, and the
// notification-permission probe.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
window.chrome = { runtime: {} };
const originalQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
    parameters.name === 'notifications' ?
        Promise.resolve({ state: Notification.permission }) :
        originalQuery(parameters)
);
`

const sessionSeedURL = "https://www.craigslist.org/about/sites"

// BrowserOptions configures one browser session.
type BrowserOptions struct {
	Headless      bool
	Timeout       time.Duration
	Screenshots   bool
	ScreenshotDir string
}

// BrowserClient is the browser-session fetch mode: a dedicated headless
// browser per target, with a randomized identity, stealth patches, and
// pre-seeded session cookies. The session persists across pages of one
// target and is torn down when the target completes or retries exhaust.
type BrowserClient struct {
	opts   BrowserOptions
	logger *zap.Logger

	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewBrowserClient(opts BrowserOptions, logger *zap.Logger) (*BrowserClient, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Screenshots && opts.ScreenshotDir != "" {
		if err := os.MkdirAll(opts.ScreenshotDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating screenshot dir: %w", err)
		}
	}
	b := &BrowserClient{opts: opts, logger: logger}
	if err := b.start(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *BrowserClient) start() error {
	ua := randomUserAgent()
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("window-size", "1920,1080"),
		chromedp.Flag("lang", "en-US,en;q=0.9"),
		chromedp.UserAgent(ua),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	// Install stealth patches and seed cookies that make the session look
	// like a returning visitor before the first target page loads.
	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
		chromedp.Navigate(sessionSeedURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			visitorID := fmt.Sprintf("%d", 10000000+rand.Intn(90000000))
			if err := network.SetCookie("cl_b", visitorID).WithDomain(".craigslist.org").Do(ctx); err != nil {
				return err
			}
			return network.SetCookie("cl_def_hp", "newyork").WithDomain(".craigslist.org").Do(ctx)
		}),
	)
	if err != nil {
		cancel()
		allocCancel()
		return fmt.Errorf("starting browser session: %w", err)
	}

	b.allocCancel = allocCancel
	b.ctx = ctx
	b.cancel = cancel
	b.logger.Debug("browser session started", zap.String("user_agent", ua))
	return nil
}

// Fetch navigates to the URL, waits for content, scrolls to trigger
// lazy-loaded media, and returns the rendered markup.
func (b *BrowserClient) Fetch(ctx context.Context, url string) (*Page, error) {
	tctx, tcancel := context.WithTimeout(b.ctx, b.opts.Timeout)
	defer tcancel()
	stop := context.AfterFunc(ctx, tcancel)
	defer stop()

	var title, html string
	err := chromedp.Run(tctx,
		chromedp.Navigate(url),
		chromedp.WaitVisible("body", chromedp.ByQuery),
		scrollThrough(),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("navigating to %s: %w", url, err)
	}

	if b.opts.Screenshots {
		b.captureScreenshot(tctx, url)
	}

	p := &Page{
		URL:        url,
		StatusCode: 200,
		Title:      title,
		HTML:       html,
		Blocked:    blockIndicated(title, 0),
	}
	if p.Blocked {
		b.logger.Warn("block page served in browser session", zap.String("url", url), zap.String("title", title))
	}
	return p, nil
}

// scrollThrough scrolls the page down in increments and back to the top,
// the same motion a reader makes, so lazy-loaded galleries populate.
func scrollThrough() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for i := 0; i < 3; i++ {
			if err := chromedp.Evaluate(`window.scrollBy(0, document.body.scrollHeight / 3);`, nil).Do(ctx); err != nil {
				return err
			}
			if err := chromedp.Sleep(500 * time.Millisecond).Do(ctx); err != nil {
				return err
			}
		}
		return chromedp.Evaluate(`window.scrollTo(0, 0);`, nil).Do(ctx)
	})
}

func (b *BrowserClient) captureScreenshot(ctx context.Context, url string) {
	var buf []byte
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().Do(ctx)
		return err
	}))
	if err != nil {
		b.logger.Debug("screenshot capture failed", zap.String("url", url), zap.Error(err))
		return
	}
	name := filepath.Join(b.opts.ScreenshotDir, fmt.Sprintf("harvest_debug_%d.png", time.Now().UnixNano()))
	if err := os.WriteFile(name, buf, 0o644); err != nil {
		b.logger.Debug("screenshot write failed", zap.String("path", name), zap.Error(err))
		return
	}
	b.logger.Debug("saved debug screenshot", zap.String("path", name))
}

// Rotate discards the current browser session and builds a fresh one with a
// new identity. Called after a block response.
func (b *BrowserClient) Rotate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.teardown()
	return b.start()
}

// Close tears the session down. Safe to call more than once.
func (b *BrowserClient) Close() {
	b.teardown()
}

func (b *BrowserClient) teardown() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	if b.allocCancel != nil {
		b.allocCancel()
		b.allocCancel = nil
	}
}
