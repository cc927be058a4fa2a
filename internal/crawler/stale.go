package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/novasearch/novacrawler/internal/domain"
)

// runStaleUpdate re-fetches every page whose last crawl is older than the
// configured horizon. Sweeps always run with stealth headers.
func (e *Engine) runStaleUpdate(ctx context.Context, task *domain.Task) error {
	cutoff := time.Now().Add(-time.Duration(e.cfg.StaleAfterDays) * 24 * time.Hour)
	urls, err := e.pages.StaleURLs(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list stale pages: %w", err)
	}

	e.logger.Info("stale sweep started",
		zap.Int64("task_id", task.ID),
		zap.Int("pages", len(urls)),
		zap.Time("cutoff", cutoff))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.cfg.CrawlWorkers)
	for _, pageURL := range urls {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(pageURL string) {
			defer wg.Done()
			defer func() { <-sem }()
			e.refreshPage(ctx, task, pageURL)
		}(pageURL)
	}
	wg.Wait()

	return ctx.Err()
}

// refreshPage re-fetches one stale page. 429s are retried in place, other
// client errors evict the page from the index, anything else odd is skipped
// and retried on a later sweep. Pages with an exhausted failure streak are
// left alone until their counter expires.
func (e *Engine) refreshPage(ctx context.Context, task *domain.Task, pageURL string) {
	streak, err := e.dedup.RetryCount(ctx, pageURL)
	if err != nil {
		e.logger.Warn("could not read retry counter", zap.String("url", pageURL), zap.Error(err))
	}
	if streak >= int64(e.cfg.MaxRetries) {
		e.logger.Debug("skipping page with exhausted retry budget",
			zap.String("url", pageURL),
			zap.Int64("failed_sweeps", streak))
		return
	}

	res, ok := e.fetchWithRetry(ctx, pageURL)
	if !ok {
		e.noteRefreshFailure(ctx, pageURL)
		return
	}

	switch {
	case res.StatusCode >= 400 && res.StatusCode < 500:
		// The page is gone or forbidden; keeping it would surface dead
		// results.
		if err := e.pages.DeletePage(ctx, pageURL); err != nil {
			e.logger.Error("could not delete dead page", zap.String("url", pageURL), zap.Error(err))
			return
		}
		e.logger.Info("removed dead page",
			zap.String("url", pageURL),
			zap.Int("status", res.StatusCode))
		return
	case res.StatusCode != http.StatusOK:
		e.logger.Debug("skipping stale page with unexpected status",
			zap.String("url", pageURL),
			zap.Int("status", res.StatusCode))
		return
	case !isHTMLContent(res.ContentType):
		e.logger.Debug("skipping stale page with non-html content",
			zap.String("url", pageURL),
			zap.String("content_type", res.ContentType))
		return
	}

	page, err := ExtractPage(pageURL, res.Body)
	if err != nil {
		e.metrics.IncErrorsTotal("parse_failed")
		e.logger.Warn("parse failed", zap.String("url", pageURL), zap.Error(err))
		return
	}

	u, err := url.Parse(pageURL)
	if err != nil {
		return
	}
	record := &domain.Page{
		URL:         pageURL,
		Title:       page.Title,
		Description: page.Description,
		Keywords:    page.Keywords,
		Priority:    pagePriority(u, page),
	}
	if err := e.pages.SavePage(ctx, record); err != nil {
		e.metrics.IncErrorsTotal("db_save_failed")
		e.logger.Error("could not save refreshed page", zap.String("url", pageURL), zap.Error(err))
		return
	}

	if err := e.tasks.IncrementPagesCrawled(ctx, task.ID); err != nil {
		e.logger.Warn("could not bump pages crawled", zap.Int64("task_id", task.ID), zap.Error(err))
	}
	e.metrics.IncPagesCrawled()

	if err := e.dedup.ClearRetryCount(ctx, pageURL); err != nil {
		e.logger.Warn("could not clear retry counter", zap.String("url", pageURL), zap.Error(err))
	}
	e.logger.Info("refreshed page", zap.Int64("task_id", task.ID), zap.String("url", pageURL))
}

// fetchWithRetry fetches a page, waiting out rate limits. The budget is the
// initial attempt plus up to MaxRetries retries.
func (e *Engine) fetchWithRetry(ctx context.Context, pageURL string) (*domain.FetchResult, bool) {
	wait := time.Duration(e.cfg.RetryWait) * time.Second
	for attempt := 1; ; attempt++ {
		res, err := e.fetcher.Fetch(ctx, pageURL, true)
		if err != nil {
			e.metrics.IncErrorsTotal("fetch_failed")
			e.logger.Warn("stale fetch failed", zap.String("url", pageURL), zap.Error(err))
			return nil, false
		}
		if res.StatusCode != http.StatusTooManyRequests {
			return res, true
		}
		if attempt > e.cfg.MaxRetries {
			e.logger.Warn("rate limited, giving up",
				zap.String("url", pageURL),
				zap.Int("attempts", attempt))
			return nil, false
		}
		e.logger.Debug("rate limited, backing off",
			zap.String("url", pageURL),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait))
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(wait):
		}
	}
}

// noteRefreshFailure bumps the per-URL retry counter so pages that keep
// failing across sweeps show up in the logs with their streak.
func (e *Engine) noteRefreshFailure(ctx context.Context, pageURL string) {
	if ctx.Err() != nil {
		return
	}
	count, err := e.dedup.IncrementRetryCount(ctx, pageURL)
	if err != nil {
		e.logger.Warn("could not bump retry counter", zap.String("url", pageURL), zap.Error(err))
		return
	}
	if count >= int64(e.cfg.MaxRetries) {
		e.logger.Warn("page keeps failing refresh",
			zap.String("url", pageURL),
			zap.Int64("failed_sweeps", count))
	}
}
