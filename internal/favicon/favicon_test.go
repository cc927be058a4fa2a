package favicon

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePageStore struct {
	mu    sync.Mutex
	calls int
	ids   map[string]string
}

func (f *fakePageStore) UpdateFavicons(_ context.Context, idsByDomain map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.ids == nil {
		f.ids = make(map[string]string)
	}
	for domain, id := range idsByDomain {
		f.ids[domain] = id
	}
	return nil
}

func newTestService(t *testing.T, store PageStore) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	svc, err := NewService(store, dir, 2, 2*time.Second, "NovaCrawler/1.1", zap.NewNop())
	require.NoError(t, err)
	svc.scheme = "http"
	return svc, dir
}

func iconID(iconURL string) string {
	sum := md5.Sum([]byte(iconURL))
	return hex.EncodeToString(sum[:])
}

func TestUpdateForDomainsUsesLinkedIcon(t *testing.T) {
	var (
		uaMu   sync.Mutex
		iconUA string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head>
			<link rel="stylesheet" href="/style.css">
			<link rel="shortcut icon" href="/static/logo.png">
		</head><body></body></html>`)
	})
	mux.HandleFunc("/static/logo.png", func(w http.ResponseWriter, r *http.Request) {
		uaMu.Lock()
		iconUA = r.Header.Get("User-Agent")
		uaMu.Unlock()
		w.Header().Set("Content-Type", "image/png")
		fmt.Fprint(w, "png-bytes")
	})
	site := httptest.NewServer(mux)
	defer site.Close()

	store := &fakePageStore{}
	svc, dir := newTestService(t, store)
	domain := strings.TrimPrefix(site.URL, "http://")

	require.NoError(t, svc.UpdateForDomains(context.Background(), []string{domain}))

	wantID := iconID(site.URL + "/static/logo.png")
	assert.Equal(t, map[string]string{domain: wantID}, store.ids)

	data, err := os.ReadFile(filepath.Join(dir, wantID+".png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	// Icon downloads identify as the crawler, not as Go's default client.
	uaMu.Lock()
	assert.Equal(t, "NovaCrawler/1.1", iconUA)
	uaMu.Unlock()
}

func TestUpdateForDomainsFallsBackToFaviconIco(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>No icon link</title></head><body></body></html>`)
	})
	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/x-icon")
		fmt.Fprint(w, "ico-bytes")
	})
	site := httptest.NewServer(mux)
	defer site.Close()

	store := &fakePageStore{}
	svc, dir := newTestService(t, store)
	domain := strings.TrimPrefix(site.URL, "http://")

	require.NoError(t, svc.UpdateForDomains(context.Background(), []string{domain}))

	wantID := iconID(site.URL + "/favicon.ico")
	assert.Equal(t, wantID, store.ids[domain])
	_, err := os.Stat(filepath.Join(dir, wantID+".ico"))
	assert.NoError(t, err)
}

func TestUpdateForDomainsRejectsHTMLAnswer(t *testing.T) {
	// Sites that answer /favicon.ico with their error page, status 200.
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head></head><body>not found</body></html>`)
	})
	site := httptest.NewServer(mux)
	defer site.Close()

	store := &fakePageStore{}
	svc, dir := newTestService(t, store)
	domain := strings.TrimPrefix(site.URL, "http://")

	require.NoError(t, svc.UpdateForDomains(context.Background(), []string{domain}))

	assert.Zero(t, store.calls)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpdateForDomainsSkipsUnreachableDomain(t *testing.T) {
	site := httptest.NewServer(http.NotFoundHandler())
	domain := strings.TrimPrefix(site.URL, "http://")
	site.Close()

	store := &fakePageStore{}
	svc, _ := newTestService(t, store)

	require.NoError(t, svc.UpdateForDomains(context.Background(), []string{domain}))
	assert.Zero(t, store.calls)
}
