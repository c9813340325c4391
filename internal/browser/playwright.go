package browser

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

const defaultStepTimeout = 30 * time.Second

// PlaywrightFactory launches one persistent Chromium context per worker.
// Windows are tiled into a grid on the screen so a human can watch all of
// them at once (headed mode is the point of a ticket run).
type PlaywrightFactory struct {
	pw       *playwright.Playwright
	workers  int
	headless bool
	proxy    string
	screenW  int
	screenH  int
	dataDir  string
}

type PlaywrightOptions struct {
	Workers  int
	Headless bool
	Proxy    string
	ScreenW  int
	ScreenH  int
	DataDir  string // base dir for per-worker profiles, default .playwright_data
}

func NewPlaywrightFactory(opts PlaywrightOptions) (*PlaywrightFactory, error) {
	if err := playwright.Install(); err != nil {
		return nil, fmt.Errorf("install pw failed: %w", err)
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start pw failed: %w", err)
	}

	if opts.ScreenW <= 0 {
		opts.ScreenW = 1920
	}
	if opts.ScreenH <= 0 {
		opts.ScreenH = 1080
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.DataDir == "" {
		wd, _ := os.Getwd()
		opts.DataDir = filepath.Join(wd, ".playwright_data")
	}

	return &PlaywrightFactory{
		pw:       pw,
		workers:  opts.Workers,
		headless: opts.Headless,
		proxy:    opts.Proxy,
		screenW:  opts.ScreenW,
		screenH:  opts.ScreenH,
		dataDir:  opts.DataDir,
	}, nil
}

func (f *PlaywrightFactory) NewSession(ctx context.Context, workerID int) (Session, error) {
	x, y, w, h := tileFor(workerID, f.workers, f.screenW, f.screenH)

	args := []string{
		"--disable-blink-features=AutomationControlled",
		fmt.Sprintf("--window-position=%d,%d", x, y),
		fmt.Sprintf("--window-size=%d,%d", w, h),
	}

	opts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(f.headless),
		// Viewport nil lets the window size from args win.
		Viewport: nil,
		Args:     args,
	}
	if f.proxy != "" {
		opts.Proxy = &playwright.Proxy{Server: f.proxy}
	}

	userDataDir := filepath.Join(f.dataDir, fmt.Sprintf("worker-%d", workerID))
	bctx, err := f.pw.Chromium.LaunchPersistentContext(userDataDir, opts)
	if err != nil {
		return nil, sessionErr("launch", err)
	}

	var page playwright.Page
	if pages := bctx.Pages(); len(pages) > 0 {
		page = pages[0]
	} else {
		page, err = bctx.NewPage()
		if err != nil {
			_ = bctx.Close()
			return nil, sessionErr("launch", err)
		}
	}

	page.SetDefaultTimeout(float64(defaultStepTimeout.Milliseconds()))
	page.SetDefaultNavigationTimeout(float64(defaultStepTimeout.Milliseconds()))

	return &playwrightSession{bctx: bctx, page: page}, nil
}

// Stop shuts the driver down. Call after every session is closed.
func (f *PlaywrightFactory) Stop() {
	if f.pw != nil {
		_ = f.pw.Stop()
	}
}

// tileFor splits a screenW x screenH screen into the smallest square-ish grid
// that fits count windows and returns the cell for window index.
func tileFor(index, count, screenW, screenH int) (x, y, w, h int) {
	if count < 1 {
		count = 1
	}
	cols := int(math.Ceil(math.Sqrt(float64(count))))
	rows := int(math.Ceil(float64(count) / float64(cols)))

	w = screenW / cols
	h = screenH / rows
	x = (index % cols) * w
	y = (index / cols) * h
	return x, y, w, h
}

type playwrightSession struct {
	bctx playwright.BrowserContext
	page playwright.Page

	mu     sync.Mutex
	closed bool
}

func (s *playwrightSession) Navigate(ctx context.Context, url string) error {
	if err := s.alive(); err != nil {
		return err
	}
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(timeoutMs(ctx)),
	})
	return sessionErr("navigate", err)
}

func (s *playwrightSession) ReadPage(ctx context.Context) (*PageState, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}

	title, err := s.page.Title()
	if err != nil {
		return nil, sessionErr("read", err)
	}

	// Visible text only; the detector does not need markup.
	raw, err := s.page.Evaluate(`() => document.body ? document.body.innerText.slice(0, 20000) : ''`)
	if err != nil {
		return nil, sessionErr("read", err)
	}
	text, _ := raw.(string)

	return &PageState{URL: s.page.URL(), Title: title, Text: text}, nil
}

func (s *playwrightSession) Fill(ctx context.Context, selector, value string) error {
	if err := s.alive(); err != nil {
		return err
	}
	err := s.page.Fill(selector, value, playwright.PageFillOptions{
		Timeout: playwright.Float(timeoutMs(ctx)),
	})
	return sessionErr("fill", err)
}

func (s *playwrightSession) Click(ctx context.Context, selector string) error {
	if err := s.alive(); err != nil {
		return err
	}
	err := s.page.Click(selector, playwright.PageClickOptions{
		Timeout: playwright.Float(timeoutMs(ctx)),
	})
	return sessionErr("click", err)
}

func (s *playwrightSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.bctx.Close()
}

func (s *playwrightSession) alive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &SessionError{Kind: ErrClosed, Op: "call", Err: fmt.Errorf("session already closed")}
	}
	return nil
}

// timeoutMs maps a context deadline onto playwright's per-call timeout.
func timeoutMs(ctx context.Context) float64 {
	if dl, ok := ctx.Deadline(); ok {
		ms := time.Until(dl).Milliseconds()
		if ms < 1 {
			ms = 1
		}
		return float64(ms)
	}
	return float64(defaultStepTimeout.Milliseconds())
}
