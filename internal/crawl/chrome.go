package crawl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/apiscout/internal/logging"
)

// DefaultSettle is how long a page may keep issuing requests after load.
const DefaultSettle = time.Second

// ChromeBrowser drives a headless Chrome through chromedp. Each Visit
// opens its own tab in the shared browser.
type ChromeBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	settle      time.Duration
	log         logrus.FieldLogger
}

// NewChromeBrowser starts the browser process. It stays up until Close.
func NewChromeBrowser(ctx context.Context, settle time.Duration, log logrus.FieldLogger) (*ChromeBrowser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("ignore-certificate-errors", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	if log == nil {
		log = logging.Discard()
	}
	return &ChromeBrowser{ctx: browserCtx, cancel: cancel, allocCancel: allocCancel, settle: settle, log: log}, nil
}

// Visit navigates a fresh tab to pageURL and returns its HTML with the
// xhr and fetch exchanges it made.
func (b *ChromeBrowser) Visit(ctx context.Context, pageURL string) (*Page, error) {
	tabCtx, cancel := chromedp.NewContext(b.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	tr := newTracker()
	chromedp.ListenTarget(tabCtx, tr.handle)

	var html string
	err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.Navigate(pageURL),
		chromedp.Sleep(b.settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("visit %s: %w", pageURL, ctx.Err())
		}
		return nil, fmt.Errorf("visit %s: %w", pageURL, err)
	}

	page := &Page{URL: pageURL, HTML: html}
	page.Exchanges = collectExchanges(tr.finished(), tabBodies{ctx: tabCtx}, b.log)
	return page, nil
}

// bodySource fetches the bodies of a finished request.
type bodySource interface {
	ResponseBody(id network.RequestID) ([]byte, error)
	PostData(id network.RequestID) (string, error)
}

type tabBodies struct {
	ctx context.Context
}

func (t tabBodies) ResponseBody(id network.RequestID) ([]byte, error) {
	var body []byte
	err := chromedp.Run(t.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(id).Do(ctx)
		return err
	}))
	return body, err
}

func (t tabBodies) PostData(id network.RequestID) (string, error) {
	var data string
	err := chromedp.Run(t.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		data, err = network.GetRequestPostData(id).Do(ctx)
		return err
	}))
	return data, err
}

// collectExchanges turns finished requests into exchanges. A body that
// cannot be fetched is left null and logged at debug.
func collectExchanges(finished []pending, src bodySource, log logrus.FieldLogger) []Exchange {
	var out []Exchange
	for _, p := range finished {
		ex := Exchange{URL: p.url, Method: p.method, Status: p.status}
		fields := logrus.Fields{"url": p.url, "method": p.method}
		if body, err := src.ResponseBody(p.id); err != nil {
			log.WithFields(fields).WithError(err).Debug("response body unavailable")
		} else {
			ex.ResponseBody = bodyValue(body)
		}
		if p.hasPostData {
			if data, err := src.PostData(p.id); err != nil {
				log.WithFields(fields).WithError(err).Debug("request body unavailable")
			} else {
				ex.RequestBody = bodyValue([]byte(data))
			}
		}
		out = append(out, ex)
	}
	return out
}

func (b *ChromeBrowser) Close() error {
	b.cancel()
	b.allocCancel()
	return nil
}

type pending struct {
	id          network.RequestID
	url         string
	method      string
	status      int
	hasPostData bool
	done        bool
}

// tracker follows the xhr and fetch requests of one tab. Event handlers
// run on chromedp's goroutine, so it is mutex-guarded.
type tracker struct {
	mu    sync.Mutex
	order []network.RequestID
	byID  map[network.RequestID]*pending
}

func newTracker() *tracker {
	return &tracker{byID: make(map[network.RequestID]*pending)}
}

func (t *tracker) handle(ev any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Request == nil || (e.Type != network.ResourceTypeXHR && e.Type != network.ResourceTypeFetch) {
			return
		}
		if _, ok := t.byID[e.RequestID]; !ok {
			t.order = append(t.order, e.RequestID)
		}
		t.byID[e.RequestID] = &pending{
			id:          e.RequestID,
			url:         e.Request.URL,
			method:      e.Request.Method,
			hasPostData: e.Request.HasPostData,
		}
	case *network.EventResponseReceived:
		if p, ok := t.byID[e.RequestID]; ok && e.Response != nil {
			p.status = int(e.Response.Status)
		}
	case *network.EventLoadingFinished:
		if p, ok := t.byID[e.RequestID]; ok {
			p.done = true
		}
	}
}

// finished returns completed requests in the order they were sent.
func (t *tracker) finished() []pending {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []pending
	for _, id := range t.order {
		if p := t.byID[id]; p.done {
			out = append(out, *p)
		}
	}
	return out
}
