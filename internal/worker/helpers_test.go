package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/folio-shell/folio-shell/internal/cache"
	"github.com/folio-shell/folio-shell/internal/queue"
)

const testOrigin = "https://portfolio.example.com"

// stubNetwork 按 "METHOD URL" 返回预置响应，offline 时模拟断网。
type stubNetwork struct {
	mu        sync.Mutex
	offline   bool
	responses map[string]*Response
	calls     []string
	bodies    [][]byte
}

func newStubNetwork() *stubNetwork {
	return &stubNetwork{responses: make(map[string]*Response)}
}

func (s *stubNetwork) Fetch(ctx context.Context, req *Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := req.Method + " " + req.URL.String()
	s.calls = append(s.calls, key)
	s.bodies = append(s.bodies, append([]byte(nil), req.Body...))
	if s.offline {
		return nil, fmt.Errorf("%w: dial tcp: network is unreachable", ErrNetwork)
	}
	resp, ok := s.responses[key]
	if !ok {
		return &Response{Status: http.StatusNotFound, Header: http.Header{}, Type: ResponseBasic, URL: req.URL.String()}, nil
	}
	return resp.Clone(), nil
}

func (s *stubNetwork) serve(method, path string, status int, body string) {
	s.serveTyped(method, testOrigin+path, status, body, ResponseBasic)
}

func (s *stubNetwork) serveTyped(method, rawURL string, status int, body string, typ ResponseType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[method+" "+rawURL] = &Response{
		Status: status,
		Header: http.Header{"Content-Type": []string{"text/plain"}},
		Body:   []byte(body),
		Type:   typ,
		URL:    rawURL,
	}
}

func (s *stubNetwork) setOffline(offline bool) {
	s.mu.Lock()
	s.offline = offline
	s.mu.Unlock()
}

func (s *stubNetwork) callCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, call := range s.calls {
		if call == key {
			n++
		}
	}
	return n
}

type testEnv struct {
	store   cache.Store
	network *stubNetwork
	queue   *queue.Store
	clients *Clients
	logger  *logrus.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := cache.NewStore(filepath.Join(t.TempDir(), "buckets"))
	if err != nil {
		t.Fatalf("store error: %v", err)
	}
	q, err := queue.Open(filepath.Join(t.TempDir(), "pending.db"))
	if err != nil {
		t.Fatalf("queue error: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return &testEnv{
		store:   store,
		network: newStubNetwork(),
		queue:   q,
		clients: NewClients(),
		logger:  logger,
	}
}

func testOptions(version string, manifest ...string) Options {
	origin, _ := url.Parse(testOrigin)
	return Options{
		CacheName:       "portfolio-v" + version,
		Origin:          origin,
		Manifest:        manifest,
		OfflinePage:     "/offline.html",
		SkipWaiting:     true,
		ClaimClients:    true,
		SyncTag:         "sync-contact-form",
		ContactEndpoint: "/api/contact",
		Push: PushOptions{
			Title:       "Portfolio Update",
			DefaultBody: "New notification",
			Icon:        "/favicon.png",
			Badge:       "/badge.png",
			Vibrate:     []int{200, 100, 200},
			PrimaryKey:  1,
			OpenURL:     "/",
		},
	}
}

func (e *testEnv) newWorker(t *testing.T, opts Options) *Worker {
	t.Helper()
	w, err := New(opts, Deps{
		Store:   e.store,
		Network: e.network,
		Queue:   e.queue,
		Clients: e.clients,
		Logger:  e.logger,
	})
	if err != nil {
		t.Fatalf("worker error: %v", err)
	}
	return w
}

// activeWorker 构造并完成 install + activate 的 worker。
func (e *testEnv) activeWorker(t *testing.T, opts Options) *Worker {
	t.Helper()
	w := e.newWorker(t, opts)
	ctx := context.Background()
	if err := w.Install(ctx); err != nil {
		t.Fatalf("install error: %v", err)
	}
	if err := w.Activate(ctx); err != nil {
		t.Fatalf("activate error: %v", err)
	}
	return w
}

func mustRequest(t *testing.T, method, path string, header http.Header, body []byte) *Request {
	t.Helper()
	req, err := NewRequest(method, testOrigin+path, header, body)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	return req
}

func bucketKeys(t *testing.T, store cache.Store, name string) []cache.Key {
	t.Helper()
	bucket, err := store.Open(context.Background(), name)
	if err != nil {
		t.Fatalf("open bucket error: %v", err)
	}
	keys, err := bucket.Keys(context.Background())
	if err != nil {
		t.Fatalf("bucket keys error: %v", err)
	}
	return keys
}

// faultyStore 包装真实存储，按配置让 Keys 或指定 URL 的 Put 失败。
type faultyStore struct {
	cache.Store
	failKeys bool
	failPut  string
}

func (f *faultyStore) Keys(ctx context.Context) ([]string, error) {
	if f.failKeys {
		return nil, errors.New("disk unavailable")
	}
	return f.Store.Keys(ctx)
}

func (f *faultyStore) Open(ctx context.Context, name string) (cache.Bucket, error) {
	bucket, err := f.Store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &faultyBucket{Bucket: bucket, failPut: f.failPut}, nil
}

type faultyBucket struct {
	cache.Bucket
	failPut string
}

func (b *faultyBucket) Put(ctx context.Context, key cache.Key, meta cache.Meta, body io.Reader) (*cache.Entry, error) {
	if b.failPut != "" && key.URL == b.failPut {
		return nil, errors.New("disk full")
	}
	return b.Bucket.Put(ctx, key, meta, body)
}
