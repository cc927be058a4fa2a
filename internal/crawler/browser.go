package crawler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/novasearch/novacrawler/internal/domain"
)

// BrowserFetcher renders pages in headless Chrome so JavaScript-heavy sites
// yield their real markup. Exec allocators are pooled and reused across
// fetches.
type BrowserFetcher struct {
	pool    sync.Pool
	timeout time.Duration
}

func NewBrowserFetcher(timeout time.Duration, userAgent string) *BrowserFetcher {
	f := &BrowserFetcher{timeout: timeout}
	f.pool.New = func() interface{} {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(userAgent),
		)
		allocCtx, _ := chromedp.NewExecAllocator(context.Background(), opts...)
		return allocCtx
	}
	return f
}

func (f *BrowserFetcher) Fetch(ctx context.Context, rawURL string, _ bool) (*domain.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	allocCtx := f.pool.Get().(context.Context)
	defer f.pool.Put(allocCtx)

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, f.timeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitVisible("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, err
	}

	// chromedp does not surface the HTTP status without a network event
	// listener; a navigation that rendered a body is treated as 200.
	return &domain.FetchResult{
		StatusCode:  http.StatusOK,
		ContentType: "text/html",
		Body:        []byte(html),
	}, nil
}
