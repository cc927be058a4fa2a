package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/novasearch/novacrawler/internal/domain"
)

// ErrTaskNotFound is returned when a task id has no row.
var ErrTaskNotFound = errors.New("task not found")

// schemaSQL is run at startup; safe to re-run since every statement uses
// IF NOT EXISTS.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS crawl_tasks (
	id BIGSERIAL PRIMARY KEY,
	task_type TEXT NOT NULL DEFAULT 'crawl',
	url TEXT NOT NULL DEFAULT '',
	depth INT NOT NULL DEFAULT 0,
	same_domain BOOLEAN NOT NULL DEFAULT FALSE,
	stealth_mode BOOLEAN NOT NULL DEFAULT FALSE,
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	pages_crawled INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_crawl_tasks_created_at ON crawl_tasks (created_at DESC);

CREATE TABLE IF NOT EXISTS pages (
	url TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	keywords TEXT NOT NULL DEFAULT '',
	favicon_id TEXT NOT NULL DEFAULT '',
	priority INT NOT NULL DEFAULT 0,
	last_crawled TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_pages_last_crawled ON pages (last_crawled);
`

// PostgresStore handles interactions with the PostgreSQL database.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("run schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// CreateTask inserts a pending task and fills in its id and created_at.
func (s *PostgresStore) CreateTask(ctx context.Context, task *domain.Task) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO crawl_tasks (task_type, url, depth, same_domain, stealth_mode, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		task.Type, task.URL, task.Depth, task.SameDomain, task.StealthMode, task.Status,
	).Scan(&task.ID, &task.CreatedAt)
}

func (s *PostgresStore) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, task_type, url, depth, same_domain, stealth_mode, status, error, pages_crawled, created_at, completed_at
		 FROM crawl_tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	return task, err
}

// ListTasks returns the most recently created tasks, newest first.
func (s *PostgresStore) ListTasks(ctx context.Context, limit int) ([]domain.Task, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, task_type, url, depth, same_domain, stealth_mode, status, error, pages_crawled, created_at, completed_at
		 FROM crawl_tasks
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0, limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var t domain.Task
	err := row.Scan(
		&t.ID, &t.Type, &t.URL, &t.Depth, &t.SameDomain, &t.StealthMode,
		&t.Status, &t.Error, &t.PagesCrawled, &t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTaskStatus moves a task to status, recording the error message and
// stamping completed_at once the status is terminal.
func (s *PostgresStore) UpdateTaskStatus(ctx context.Context, id int64, status domain.TaskStatus, errMsg string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE crawl_tasks
		 SET status = $2, error = $3,
		     completed_at = CASE WHEN $4 THEN NOW() ELSE completed_at END
		 WHERE id = $1`,
		id, status, errMsg, status.Terminal())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// StartTask claims a pending task for a runner. The conditional update makes
// the claim atomic against a concurrent cancel.
func (s *PostgresStore) StartTask(ctx context.Context, id int64) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE crawl_tasks SET status = $2 WHERE id = $1 AND status = $3`,
		id, domain.StatusRunning, domain.StatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CancelPending flips a still-pending task to cancelled. Returns the number
// of rows affected so callers can detect a lost race with the runner.
func (s *PostgresStore) CancelPending(ctx context.Context, id int64) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE crawl_tasks
		 SET status = $2, completed_at = NOW()
		 WHERE id = $1 AND status = $3`,
		id, domain.StatusCancelled, domain.StatusPending)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) IncrementPagesCrawled(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE crawl_tasks SET pages_crawled = pages_crawled + 1 WHERE id = $1`, id)
	return err
}

// ResetRunningTasks re-marks tasks left running by a previous process as
// pending so they can be requeued after a restart.
func (s *PostgresStore) ResetRunningTasks(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE crawl_tasks SET status = $1 WHERE status = $2`,
		domain.StatusPending, domain.StatusRunning)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PendingTaskIDs lists pending tasks oldest first, for startup requeueing.
func (s *PostgresStore) PendingTaskIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id FROM crawl_tasks WHERE status = $1 ORDER BY id`,
		domain.StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// HasActiveStaleUpdate reports whether a stale_update task is already
// pending or running.
func (s *PostgresStore) HasActiveStaleUpdate(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM crawl_tasks
			WHERE task_type = $1 AND status IN ($2, $3)
		 )`,
		domain.TaskTypeStaleUpdate, domain.StatusPending, domain.StatusRunning,
	).Scan(&exists)
	return exists, err
}

// SavePage upserts the extracted metadata for a URL. favicon_id is left
// untouched on update so a re-crawl does not wipe it.
func (s *PostgresStore) SavePage(ctx context.Context, page *domain.Page) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO pages (url, title, description, keywords, priority, last_crawled)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (url) DO UPDATE SET
		   title = EXCLUDED.title,
		   description = EXCLUDED.description,
		   keywords = EXCLUDED.keywords,
		   priority = EXCLUDED.priority,
		   last_crawled = NOW()`,
		page.URL, page.Title, page.Description, page.Keywords, page.Priority)
	return err
}

// DeletePage removes a URL from the index, used when a stale sweep gets a
// definitive 4xx for it.
func (s *PostgresStore) DeletePage(ctx context.Context, url string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM pages WHERE url = $1`, url)
	return err
}

// StaleURLs returns URLs never crawled or not crawled since cutoff.
func (s *PostgresStore) StaleURLs(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT url FROM pages WHERE last_crawled IS NULL OR last_crawled < $1`,
		cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// UpdateFavicons batch-assigns favicon ids to every page on each domain.
func (s *PostgresStore) UpdateFavicons(ctx context.Context, idsByDomain map[string]string) error {
	if len(idsByDomain) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for dom, faviconID := range idsByDomain {
		batch.Queue(`UPDATE pages SET favicon_id = $1 WHERE url LIKE $2`,
			faviconID, "%"+dom+"%")
	}
	return s.db.SendBatch(ctx, batch).Close()
}
