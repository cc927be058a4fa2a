package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/novasearch/novacrawler/internal/config"
	"github.com/novasearch/novacrawler/internal/domain"
	"github.com/novasearch/novacrawler/internal/monitoring"
)

// ErrNotCancellable is returned when a task exists but has already reached a
// terminal state.
var ErrNotCancellable = errors.New("task cannot be cancelled")

const queueCapacity = 256

// TaskStore is the slice of task persistence the engine needs.
type TaskStore interface {
	GetTask(ctx context.Context, id int64) (*domain.Task, error)
	StartTask(ctx context.Context, id int64) (bool, error)
	UpdateTaskStatus(ctx context.Context, id int64, status domain.TaskStatus, errMsg string) error
	CancelPending(ctx context.Context, id int64) (int64, error)
	IncrementPagesCrawled(ctx context.Context, id int64) error
	ResetRunningTasks(ctx context.Context) (int64, error)
	PendingTaskIDs(ctx context.Context) ([]int64, error)
}

// PageStore persists crawled pages.
type PageStore interface {
	SavePage(ctx context.Context, page *domain.Page) error
	DeletePage(ctx context.Context, pageURL string) error
	StaleURLs(ctx context.Context, cutoff time.Time) ([]string, error)
}

// DedupStore remembers recently crawled URLs and per-URL retry counters.
type DedupStore interface {
	IsRecentlyCrawled(ctx context.Context, pageURL string) (bool, error)
	MarkAsCrawled(ctx context.Context, pageURL string, ttl time.Duration) error
	RetryCount(ctx context.Context, pageURL string) (int64, error)
	IncrementRetryCount(ctx context.Context, pageURL string) (int64, error)
	ClearRetryCount(ctx context.Context, pageURL string) error
}

// FaviconUpdater fetches favicons for freshly crawled domains.
type FaviconUpdater interface {
	UpdateForDomains(ctx context.Context, domains []string) error
}

// Engine owns the task queue. Runners claim tasks one at a time, crawl
// breadth first and write the terminal status; tasks interrupted by shutdown
// keep their running status and are recovered on the next boot.
type Engine struct {
	cfg      *config.Config
	tasks    TaskStore
	pages    PageStore
	dedup    DedupStore
	fetcher  Fetcher
	favicons FaviconUpdater
	metrics  *monitoring.Metrics
	logger   *zap.Logger

	queue      chan int64
	stopChan   chan struct{}
	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.Mutex
	running map[int64]context.CancelFunc
}

func NewEngine(
	cfg *config.Config,
	tasks TaskStore,
	pages PageStore,
	dedup DedupStore,
	fetcher Fetcher,
	favicons FaviconUpdater,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Engine {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:        cfg,
		tasks:      tasks,
		pages:      pages,
		dedup:      dedup,
		fetcher:    fetcher,
		favicons:   favicons,
		metrics:    metrics,
		logger:     logger,
		queue:      make(chan int64, queueCapacity),
		stopChan:   make(chan struct{}),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		running:    make(map[int64]context.CancelFunc),
	}
}

// Start launches the task runners.
func (e *Engine) Start() {
	for i := 0; i < e.cfg.TaskRunners; i++ {
		e.wg.Add(1)
		go e.runner(i)
	}
	e.logger.Info("crawl engine started", zap.Int("runners", e.cfg.TaskRunners))
}

// Stop interrupts running tasks and waits for the runners to drain.
// Interrupted tasks keep their running status so the next boot requeues them.
func (e *Engine) Stop() {
	close(e.stopChan)
	e.baseCancel()
	e.wg.Wait()
	e.logger.Info("crawl engine stopped")
}

// Enqueue hands a persisted task to the runners. It returns false when the
// engine is shutting down; the task then stays pending and is picked up on
// the next boot.
func (e *Engine) Enqueue(id int64) bool {
	select {
	case <-e.stopChan:
		return false
	default:
	}
	select {
	case e.queue <- id:
		e.metrics.QueueDepth.Inc()
		return true
	case <-e.stopChan:
		return false
	}
}

// Cancel stops a task wherever it currently lives: a running task has its
// context cancelled, a pending one is flipped to cancelled in the store.
func (e *Engine) Cancel(ctx context.Context, id int64) error {
	if cancel, ok := e.cancelFunc(id); ok {
		cancel()
		return nil
	}

	n, err := e.tasks.CancelPending(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	// Not pending and not registered here; it either finished, never existed
	// or started running between the two checks.
	task, err := e.tasks.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if task.Status == domain.StatusRunning {
		if cancel, ok := e.cancelFunc(id); ok {
			cancel()
			return nil
		}
	}
	return ErrNotCancellable
}

func (e *Engine) cancelFunc(id int64) (context.CancelFunc, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cancel, ok := e.running[id]
	return cancel, ok
}

// ResumePending puts tasks orphaned by a previous process back on the queue.
// Tasks stuck in running are reset first; a crawl restarts from its seed URL
// and the dedup marks keep already fetched pages cheap.
func (e *Engine) ResumePending(ctx context.Context) error {
	reset, err := e.tasks.ResetRunningTasks(ctx)
	if err != nil {
		return fmt.Errorf("reset running tasks: %w", err)
	}
	if reset > 0 {
		e.logger.Info("reset interrupted tasks", zap.Int64("count", reset))
	}

	ids, err := e.tasks.PendingTaskIDs(ctx)
	if err != nil {
		return fmt.Errorf("list pending tasks: %w", err)
	}
	for _, id := range ids {
		e.Enqueue(id)
	}
	if len(ids) > 0 {
		e.logger.Info("requeued pending tasks", zap.Int("count", len(ids)))
	}
	return nil
}

func (e *Engine) runner(n int) {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopChan:
			return
		case id := <-e.queue:
			e.metrics.QueueDepth.Dec()
			e.runTask(n, id)
		}
	}
}

func (e *Engine) runTask(runner int, id int64) {
	ctx, cancel := context.WithCancel(e.baseCtx)
	defer cancel()

	task, err := e.tasks.GetTask(ctx, id)
	if err != nil {
		e.logger.Error("could not load queued task", zap.Int64("task_id", id), zap.Error(err))
		return
	}

	// Register the cancel func before claiming the task so a cancel request
	// arriving mid-claim always finds it.
	e.mu.Lock()
	e.running[id] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.running, id)
		e.mu.Unlock()
	}()

	started, err := e.tasks.StartTask(ctx, id)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			select {
			case <-e.stopChan:
				// Shutdown aborted the claim; the row stays pending for the
				// next boot to requeue.
			default:
				e.finishCancel(id)
			}
			return
		}
		e.logger.Error("could not claim task", zap.Int64("task_id", id), zap.Error(err))
		return
	}
	if !started {
		e.logger.Info("skipping task no longer pending",
			zap.Int64("task_id", id),
			zap.String("status", string(task.Status)))
		return
	}

	e.logger.Info("task started",
		zap.Int("runner", runner),
		zap.Int64("task_id", id),
		zap.String("type", string(task.Type)),
		zap.String("url", task.URL))

	start := time.Now()
	var runErr error
	switch task.Type {
	case domain.TaskTypeStaleUpdate:
		runErr = e.runStaleUpdate(ctx, task)
	default:
		runErr = e.runCrawl(ctx, task)
	}
	e.metrics.ObserveTaskDuration(string(task.Type), time.Since(start).Seconds())

	final := domain.StatusCompleted
	errMsg := ""
	switch {
	case errors.Is(runErr, context.Canceled):
		select {
		case <-e.stopChan:
			// Shutdown, not a user cancel: leave the row running so the
			// next boot resets and requeues it.
			e.logger.Info("task interrupted by shutdown", zap.Int64("task_id", id))
			return
		default:
			final = domain.StatusCancelled
		}
	case runErr != nil:
		final = domain.StatusFailed
		errMsg = runErr.Error()
		e.metrics.IncErrorsTotal("task_failed")
	}

	e.setStatus(id, final, errMsg)
	e.logger.Info("task finished",
		zap.Int64("task_id", id),
		zap.String("status", string(final)),
		zap.Duration("duration", time.Since(start)))
}

// finishCancel settles a task whose claim was aborted by a cancel request.
// Cancel has already reported success to its caller by the time the claim
// unwinds, so the row is flipped here on a fresh context.
func (e *Engine) finishCancel(id int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := e.tasks.CancelPending(ctx, id)
	if err != nil {
		e.logger.Error("could not cancel task after aborted claim",
			zap.Int64("task_id", id), zap.Error(err))
		return
	}
	if n == 0 {
		// The claim committed before the abort surfaced; the row is running
		// with no runner attached, so write the terminal status directly.
		e.setStatus(id, domain.StatusCancelled, "")
	}
	e.logger.Info("task cancelled during claim", zap.Int64("task_id", id))
}

// setStatus writes a task status with a fresh context; the task context is
// usually already cancelled by the time the final status lands.
func (e *Engine) setStatus(id int64, status domain.TaskStatus, errMsg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.tasks.UpdateTaskStatus(ctx, id, status, errMsg); err != nil {
		e.logger.Error("could not update task status",
			zap.Int64("task_id", id),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}

func (e *Engine) runCrawl(ctx context.Context, task *domain.Task) error {
	seed, err := NormalizeURL(task.URL)
	if err != nil {
		return fmt.Errorf("invalid task url: %w", err)
	}
	seedURL, err := url.Parse(seed)
	if err != nil {
		return fmt.Errorf("invalid task url: %w", err)
	}

	visited := make(map[string]bool)
	domains := make(map[string]struct{})
	level := []string{seed}

	for depth := 0; depth < task.Depth && len(level) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.logger.Info("crawling level",
			zap.Int64("task_id", task.ID),
			zap.Int("depth", depth),
			zap.Int("urls", len(level)))
		level = e.crawlLevel(ctx, task, level, visited, seedURL.Host, domains)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	e.updateFavicons(ctx, task, domains)
	return nil
}

// crawlLevel fetches one breadth-first level with bounded concurrency and
// returns the next level's URLs.
func (e *Engine) crawlLevel(
	ctx context.Context,
	task *domain.Task,
	level []string,
	visited map[string]bool,
	seedHost string,
	domains map[string]struct{},
) []string {
	var (
		mu   sync.Mutex
		next []string
		wg   sync.WaitGroup
	)
	sem := make(chan struct{}, e.cfg.CrawlWorkers)

	for _, pageURL := range level {
		mu.Lock()
		if visited[pageURL] {
			mu.Unlock()
			continue
		}
		visited[pageURL] = true
		mu.Unlock()

		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(pageURL string) {
			defer wg.Done()
			defer func() { <-sem }()

			links, saved := e.crawlPage(ctx, task, pageURL)

			mu.Lock()
			defer mu.Unlock()
			if saved {
				if u, err := url.Parse(pageURL); err == nil {
					domains[u.Host] = struct{}{}
				}
			}
			for _, link := range links {
				if visited[link] {
					continue
				}
				if task.SameDomain {
					if u, err := url.Parse(link); err != nil || u.Host != seedHost {
						continue
					}
				}
				next = append(next, link)
			}
		}(pageURL)
	}

	wg.Wait()
	return next
}

// crawlPage fetches, extracts and stores a single page. It reports the
// outgoing links and whether the page actually landed in the index.
func (e *Engine) crawlPage(ctx context.Context, task *domain.Task, pageURL string) ([]string, bool) {
	if ctx.Err() != nil {
		return nil, false
	}

	recent, err := e.dedup.IsRecentlyCrawled(ctx, pageURL)
	if err != nil {
		e.logger.Warn("dedup check failed", zap.String("url", pageURL), zap.Error(err))
	}
	if recent {
		e.logger.Debug("skipping recently crawled url", zap.String("url", pageURL))
		return nil, false
	}

	res, err := e.fetcher.Fetch(ctx, pageURL, task.StealthMode)
	if err != nil {
		e.metrics.IncErrorsTotal("fetch_failed")
		e.logger.Warn("fetch failed", zap.String("url", pageURL), zap.Error(err))
		return nil, false
	}
	if res.StatusCode != http.StatusOK {
		e.logger.Debug("skipping non-200 response",
			zap.String("url", pageURL),
			zap.Int("status", res.StatusCode))
		return nil, false
	}
	if res.ContentType != "" && !isHTMLContent(res.ContentType) {
		e.logger.Debug("skipping non-html content",
			zap.String("url", pageURL),
			zap.String("content_type", res.ContentType))
		return nil, false
	}

	page, err := ExtractPage(pageURL, res.Body)
	if err != nil {
		e.metrics.IncErrorsTotal("parse_failed")
		e.logger.Warn("parse failed", zap.String("url", pageURL), zap.Error(err))
		return nil, false
	}
	// Soft 404s answer with a 200 status but advertise themselves in the
	// title.
	if strings.Contains(page.Title, "404") {
		e.logger.Debug("skipping page with 404 title", zap.String("url", pageURL))
		return nil, false
	}

	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, false
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
		e.logger.Error("could not save page", zap.String("url", pageURL), zap.Error(err))
		return nil, false
	}

	if err := e.tasks.IncrementPagesCrawled(ctx, task.ID); err != nil {
		e.logger.Warn("could not bump pages crawled", zap.Int64("task_id", task.ID), zap.Error(err))
	}
	e.metrics.IncPagesCrawled()

	ttl := time.Duration(e.cfg.DeduplicationHours) * time.Hour
	if err := e.dedup.MarkAsCrawled(ctx, pageURL, ttl); err != nil {
		e.logger.Warn("could not mark url as crawled", zap.String("url", pageURL), zap.Error(err))
	}

	e.logger.Info("crawled page",
		zap.Int64("task_id", task.ID),
		zap.String("url", pageURL),
		zap.String("title", page.Title))
	return page.Links, true
}

func (e *Engine) updateFavicons(ctx context.Context, task *domain.Task, domains map[string]struct{}) {
	if e.favicons == nil || len(domains) == 0 {
		return
	}
	list := make([]string, 0, len(domains))
	for d := range domains {
		list = append(list, d)
	}
	sort.Strings(list)

	e.logger.Info("updating favicons", zap.Int64("task_id", task.ID), zap.Int("domains", len(list)))
	if err := e.favicons.UpdateForDomains(ctx, list); err != nil {
		e.metrics.IncErrorsTotal("favicon_failed")
		e.logger.Warn("favicon update failed", zap.Int64("task_id", task.ID), zap.Error(err))
	}
}
