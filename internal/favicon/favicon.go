// Package favicon fetches site icons for crawled domains and links them to
// the indexed pages, so search results can show a logo next to each hit.
package favicon

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// maxIconBytes caps a downloaded icon; anything larger is not a favicon.
const maxIconBytes = 1 << 20

var errNotAnImage = errors.New("favicon response is not an image")

// extByContentType maps icon content types to the stored file extension.
// text/html is deliberately absent: many sites answer /favicon.ico with
// their error page.
var extByContentType = map[string]string{
	"image/png":                "png",
	"image/jpeg":               "jpg",
	"image/svg+xml":            "svg",
	"image/x-icon":             "ico",
	"image/vnd.microsoft.icon": "ico",
	"image/webp":               "webp",
	"image/avif":               "avif",
}

// PageStore is the slice of page persistence the favicon service needs.
type PageStore interface {
	UpdateFavicons(ctx context.Context, idsByDomain map[string]string) error
}

// Service downloads favicons into a local directory. Files are named by the
// md5 of the icon URL so re-downloads overwrite in place.
type Service struct {
	store     PageStore
	client    *http.Client
	dir       string
	workers   int
	scheme    string
	userAgent string
	logger    *zap.Logger
}

func NewService(store PageStore, dir string, workers int, timeout time.Duration, userAgent string, logger *zap.Logger) (*Service, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create favicon dir: %w", err)
	}
	if workers < 1 {
		workers = 1
	}
	return &Service{
		store:     store,
		client:    &http.Client{Timeout: timeout},
		dir:       dir,
		workers:   workers,
		scheme:    "https",
		userAgent: userAgent,
		logger:    logger,
	}, nil
}

// UpdateForDomains fetches an icon for each domain and points the domain's
// pages at the stored file. Domains whose icon cannot be fetched are skipped.
func (s *Service) UpdateForDomains(ctx context.Context, domains []string) error {
	var (
		mu  sync.Mutex
		ids = make(map[string]string)
		wg  sync.WaitGroup
	)
	sem := make(chan struct{}, s.workers)

	for _, domain := range domains {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(domain string) {
			defer wg.Done()
			defer func() { <-sem }()

			id, err := s.download(ctx, domain)
			if err != nil {
				s.logger.Debug("favicon unavailable", zap.String("domain", domain), zap.Error(err))
				return
			}
			mu.Lock()
			ids[domain] = id
			mu.Unlock()
			s.logger.Info("favicon stored", zap.String("domain", domain), zap.String("favicon_id", id))
		}(domain)
	}
	wg.Wait()

	if len(ids) == 0 {
		return nil
	}
	if err := s.store.UpdateFavicons(ctx, ids); err != nil {
		return fmt.Errorf("update favicon ids: %w", err)
	}
	return nil
}

// download resolves and fetches the favicon for one domain. It returns the
// stored favicon id, which doubles as the file name without extension.
func (s *Service) download(ctx context.Context, domain string) (string, error) {
	iconURL := s.discoverURL(ctx, domain)

	body, contentType, err := s.get(ctx, iconURL)
	if err != nil {
		return "", err
	}
	ext, ok := extByContentType[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s", errNotAnImage, contentType)
	}

	sum := md5.Sum([]byte(iconURL))
	id := hex.EncodeToString(sum[:])
	path := filepath.Join(s.dir, id+"."+ext)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write icon: %w", err)
	}
	return id, nil
}

// discoverURL looks for an icon link on the domain's home page and falls back
// to the /favicon.ico convention.
func (s *Service) discoverURL(ctx context.Context, domain string) string {
	home := s.scheme + "://" + domain
	fallback := home + "/favicon.ico"

	body, contentType, err := s.get(ctx, home)
	if err != nil || !strings.Contains(contentType, "text/html") {
		return fallback
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return fallback
	}
	base, err := url.Parse(home)
	if err != nil {
		return fallback
	}

	href := ""
	doc.Find("link[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		rel, _ := sel.Attr("rel")
		if !strings.Contains(strings.ToLower(rel), "icon") {
			return true
		}
		href, _ = sel.Attr("href")
		return false
	})
	if href == "" {
		return fallback
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return fallback
	}
	return base.ResolveReference(ref).String()
}

// get fetches a URL with the crawler's user agent and returns the body and
// the bare content type, with any charset parameters stripped.
func (s *Service) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", s.userAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIconBytes))
	if err != nil {
		return nil, "", err
	}

	contentType := strings.ToLower(strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0]))
	return body, contentType, nil
}
