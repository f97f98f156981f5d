package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/folio-shell/folio-shell/internal/cache"
	"github.com/folio-shell/folio-shell/internal/logging"
	"github.com/folio-shell/folio-shell/internal/queue"
)

// Fetch 先走网络：同源 200 响应原样返回，同时异步把副本写入当前桶；
// 网络失败时依次回退到桶内缓存、离线页（仅整页导航），都没有则返回 ErrNoResponse。
func (w *Worker) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if err := w.requireActive(); err != nil {
		return nil, err
	}
	if req == nil || req.URL == nil {
		return nil, errors.New("request url required")
	}

	resp, netErr := w.network.Fetch(ctx, req)
	if netErr == nil {
		if cache.Admit(req.Method, resp.Status, resp.Type == ResponseBasic) {
			w.cacheAsync(ctx, req, resp.Clone())
		}
		resp.Source = SourceNetwork
		return resp, nil
	}

	if w.isContactSubmission(req) {
		queued, err := w.enqueueSubmission(ctx, req)
		if err == nil {
			return queued, nil
		}
		w.logger.WithError(err).
			WithFields(logging.RequestFields(w.opts.CacheName, req.Method, req.URL.String(), string(SourceQueue), false)).
			Warn("contact_enqueue_failed")
	}

	if cached, err := w.match(ctx, cache.NewKey(req.Method, req.URL.String())); err == nil {
		cached.Source = SourceCache
		w.logger.WithFields(logging.RequestFields(w.opts.CacheName, req.Method, req.URL.String(), string(SourceCache), true)).
			Info("serving_from_cache")
		return cached, nil
	}

	if req.IsNavigation() && w.opts.OfflinePage != "" {
		offline := w.originURL(w.opts.OfflinePage)
		if page, err := w.match(ctx, cache.NewKey(http.MethodGet, offline.String())); err == nil {
			page.Source = SourceOfflinePage
			w.logger.WithFields(logging.RequestFields(w.opts.CacheName, req.Method, req.URL.String(), string(SourceOfflinePage), true)).
				Info("serving_offline_page")
			return page, nil
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrNoResponse, netErr)
}

// cacheAsync 在后台写入响应副本，失败只记录日志，不影响已返回的响应。
// worker 已被替换或暂停写入时跳过，避免重建已被新版本删除的旧桶。
func (w *Worker) cacheAsync(ctx context.Context, req *Request, clone *Response) {
	key := cache.NewKey(req.Method, req.URL.String())
	writeCtx := context.WithoutCancel(ctx)

	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		w.writeGate.RLock()
		defer w.writeGate.RUnlock()
		if !w.acceptsWrites() {
			w.logger.WithFields(logging.RequestFields(w.opts.CacheName, key.Method, key.URL, string(SourceNetwork), false)).
				Debug("cache_put_skipped")
			return
		}
		meta := cache.Meta{Status: clone.Status, Header: clone.Header}
		if _, err := w.writer.Put(writeCtx, key, meta, clone.Type == ResponseBasic, bytes.NewReader(clone.Body)); err != nil {
			w.logger.WithError(err).
				WithFields(logging.RequestFields(w.opts.CacheName, key.Method, key.URL, string(SourceNetwork), false)).
				Warn("cache_put_failed")
		}
	}()
}

// match 在当前桶中查找请求；桶不存在时视为未命中，且不会因此创建空桶。
func (w *Worker) match(ctx context.Context, key cache.Key) (*Response, error) {
	exists, err := w.store.Has(ctx, w.opts.CacheName)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, cache.ErrNotFound
	}
	bucket, err := w.store.Open(ctx, w.opts.CacheName)
	if err != nil {
		return nil, err
	}
	result, err := bucket.Match(ctx, key)
	if err != nil {
		return nil, err
	}
	defer result.Reader.Close()

	body, err := io.ReadAll(result.Reader)
	if err != nil {
		return nil, fmt.Errorf("read cached body: %w", err)
	}
	return &Response{
		Status: result.Entry.Status,
		Header: result.Entry.Header.Clone(),
		Body:   body,
		Type:   ResponseBasic,
		URL:    result.Entry.Key.URL,
	}, nil
}

func (w *Worker) isContactSubmission(req *Request) bool {
	return w.queue != nil &&
		w.opts.ContactEndpoint != "" &&
		req.Method == http.MethodPost &&
		req.URL.Path == w.opts.ContactEndpoint &&
		sameOrigin(req.URL, w.opts.Origin)
}

// queuedReceipt 是提交入队后返回给页面的 202 正文。
type queuedReceipt struct {
	Queued  bool   `json:"queued"`
	ID      int64  `json:"id"`
	SyncTag string `json:"sync_tag"`
}

// enqueueSubmission 解析 { name, email, message } 并写入待同步队列。
func (w *Worker) enqueueSubmission(ctx context.Context, req *Request) (*Response, error) {
	var form struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(req.Body, &form); err != nil {
		return nil, fmt.Errorf("decode contact payload: %w", err)
	}
	id, err := w.queue.Enqueue(ctx, queue.Submission{Name: form.Name, Email: form.Email, Message: form.Message})
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(queuedReceipt{Queued: true, ID: id, SyncTag: w.opts.SyncTag})
	if err != nil {
		return nil, err
	}
	fields := logging.RequestFields(w.opts.CacheName, req.Method, req.URL.String(), string(SourceQueue), false)
	fields["submission_id"] = id
	w.logger.WithFields(fields).Info("contact_submission_queued")

	return &Response{
		Status: http.StatusAccepted,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   body,
		Type:   ResponseBasic,
		URL:    req.URL.String(),
		Source: SourceQueue,
	}, nil
}
