package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// ChromedpFactory drives Chromium over CDP directly, one exec allocator and
// tab per worker. Lighter than the playwright backend, no driver install.
type ChromedpFactory struct {
	workers  int
	headless bool
	proxy    string
	screenW  int
	screenH  int
}

func NewChromedpFactory(workers int, headless bool, proxy string, screenW, screenH int) *ChromedpFactory {
	if screenW <= 0 {
		screenW = 1920
	}
	if screenH <= 0 {
		screenH = 1080
	}
	if workers <= 0 {
		workers = 1
	}
	return &ChromedpFactory{workers: workers, headless: headless, proxy: proxy, screenW: screenW, screenH: screenH}
}

func (f *ChromedpFactory) NewSession(ctx context.Context, workerID int) (Session, error) {
	x, y, w, h := tileFor(workerID, f.workers, f.screenW, f.screenH)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("window-position", fmt.Sprintf("%d,%d", x, y)),
		chromedp.WindowSize(w, h),
	)
	if f.proxy != "" {
		opts = append(opts, chromedp.ProxyServer(f.proxy))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// Spin the browser up now so session creation fails loudly, not on the
	// first poll.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, sessionErr("launch", err)
	}

	return &chromedpSession{tab: tabCtx, cancels: []context.CancelFunc{cancelTab, cancelAlloc}}, nil
}

type chromedpSession struct {
	tab     context.Context
	cancels []context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func (s *chromedpSession) Navigate(ctx context.Context, url string) error {
	runCtx, cancel, err := s.callCtx(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	return sessionErr("navigate", chromedp.Run(runCtx, chromedp.Navigate(url)))
}

func (s *chromedpSession) ReadPage(ctx context.Context) (*PageState, error) {
	runCtx, cancel, err := s.callCtx(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var url, title, text string
	err = chromedp.Run(runCtx,
		chromedp.Location(&url),
		chromedp.Title(&title),
		chromedp.Evaluate(`document.body ? document.body.innerText.slice(0, 20000) : ''`, &text),
	)
	if err != nil {
		return nil, sessionErr("read", err)
	}
	return &PageState{URL: url, Title: title, Text: text}, nil
}

// Fill sets the value over CDP and fires input/change events, which is what
// frameworks listening on the field actually react to.
func (s *chromedpSession) Fill(ctx context.Context, selector, value string) error {
	runCtx, cancel, err := s.callCtx(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	err = chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		root, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return fmt.Errorf("get document failed: %w", err)
		}

		nodeID, err := dom.QuerySelector(root.NodeID, selector).Do(ctx)
		if err != nil {
			return fmt.Errorf("selector %q: %w", selector, err)
		}
		if nodeID == 0 {
			return fmt.Errorf("selector %q not found", selector)
		}

		obj, err := dom.ResolveNode().WithNodeID(nodeID).Do(ctx)
		if err != nil {
			return fmt.Errorf("resolve node failed: %w", err)
		}
		if obj == nil || obj.ObjectID == "" {
			return fmt.Errorf("object id is empty (node might be detached)")
		}

		script := fmt.Sprintf(`function() {
			if (this.scrollIntoViewIfNeeded) {
				this.scrollIntoViewIfNeeded();
			} else if (this.scrollIntoView) {
				this.scrollIntoView({ block: "center", inline: "center" });
			}
			this.value = "";
			this.value = "%s";
			this.dispatchEvent(new Event('input', { bubbles: true }));
			this.dispatchEvent(new Event('change', { bubbles: true }));
		}`, value)

		_, _, err = runtime.CallFunctionOn(script).WithObjectID(obj.ObjectID).Do(ctx)
		return err
	}))
	return sessionErr("fill", err)
}

func (s *chromedpSession) Click(ctx context.Context, selector string) error {
	runCtx, cancel, err := s.callCtx(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	return sessionErr("click", chromedp.Run(runCtx, chromedp.Click(selector, chromedp.ByQuery)))
}

func (s *chromedpSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, cancel := range s.cancels {
		cancel()
	}
	return nil
}

// callCtx carries the caller's deadline onto the tab context. chromedp calls
// must run on the tab context or they lose the target.
func (s *chromedpSession) callCtx(ctx context.Context) (context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, nil, &SessionError{Kind: ErrClosed, Op: "call", Err: fmt.Errorf("session already closed")}
	}

	if dl, ok := ctx.Deadline(); ok {
		runCtx, cancel := context.WithDeadline(s.tab, dl)
		return runCtx, cancel, nil
	}
	runCtx, cancel := context.WithTimeout(s.tab, defaultStepTimeout)
	return runCtx, cancel, nil
}
