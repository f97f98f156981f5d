package worker

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/folio-shell/folio-shell/internal/cache"
	"github.com/folio-shell/folio-shell/internal/logging"
)

// Install 拉取 manifest 中的全部资源并写入当前版本桶。
// 所有资源都必须返回 200 才会开始写入；写入中途失败会回滚本次写入的条目。
// 任一步失败都会使 worker 进入 redundant，且不会自动重试。
func (w *Worker) Install(ctx context.Context) error {
	if state := w.State(); state != StateParsed {
		return fmt.Errorf("%w: cannot install from state %s", ErrInstallFailed, state)
	}
	w.setState(StateInstalling)
	w.logger.WithFields(logging.LifecycleFields("install", w.opts.CacheName, string(StateInstalling))).
		Info("install_started")

	fetched := make([]*Response, len(w.opts.Manifest))
	keys := make([]cache.Key, len(w.opts.Manifest))
	for i, path := range w.opts.Manifest {
		target := w.originURL(path)
		req := &Request{Method: http.MethodGet, URL: target, Header: http.Header{}}
		resp, err := w.network.Fetch(ctx, req)
		if err != nil {
			return w.failInstall(fmt.Errorf("fetch %s: %w", path, err))
		}
		if resp.Status != http.StatusOK {
			return w.failInstall(fmt.Errorf("fetch %s: unexpected status %d", path, resp.Status))
		}
		fetched[i] = resp
		keys[i] = cache.NewKey(http.MethodGet, target.String())
	}

	existed, err := w.store.Has(ctx, w.opts.CacheName)
	if err != nil {
		return w.failInstall(fmt.Errorf("check bucket: %w", err))
	}
	bucket, err := w.store.Open(ctx, w.opts.CacheName)
	if err != nil {
		return w.failInstall(fmt.Errorf("open bucket: %w", err))
	}
	var previous map[cache.Key]bool
	if existed {
		if previous, err = keySet(ctx, bucket); err != nil {
			return w.failInstall(fmt.Errorf("list bucket: %w", err))
		}
	}
	for i, resp := range fetched {
		meta := cache.Meta{Status: resp.Status, Header: resp.Header}
		if _, err := bucket.Put(ctx, keys[i], meta, bytes.NewReader(resp.Body)); err != nil {
			w.rollbackInstall(ctx, bucket, existed, previous, keys[:i])
			return w.failInstall(fmt.Errorf("store %s: %w", w.opts.Manifest[i], err))
		}
	}

	w.mu.Lock()
	w.state = StateInstalled
	if w.opts.SkipWaiting {
		w.skipWaiting = true
	}
	w.mu.Unlock()

	fields := logging.LifecycleFields("install", w.opts.CacheName, string(StateInstalled))
	fields["assets"] = len(fetched)
	w.logger.WithFields(fields).Info("install_complete")
	return nil
}

func (w *Worker) failInstall(err error) error {
	w.setState(StateRedundant)
	w.logger.WithFields(logging.LifecycleFields("install", w.opts.CacheName, string(StateRedundant))).
		WithError(err).
		Error("install_failed")
	return fmt.Errorf("%w: %v", ErrInstallFailed, err)
}

// rollbackInstall 撤销本次安装的写入：桶是本次新建的就整体删除；
// 桶原本存在时只删除本次新增的条目，保留之前已有的条目。
func (w *Worker) rollbackInstall(ctx context.Context, bucket cache.Bucket, existed bool, previous map[cache.Key]bool, written []cache.Key) {
	if !existed {
		if _, err := w.store.Delete(ctx, bucket.Name()); err != nil {
			w.logger.WithError(err).
				WithFields(logging.LifecycleFields("install", bucket.Name(), string(StateInstalling))).
				Warn("install_rollback_failed")
		}
		return
	}
	for _, key := range written {
		if previous[key] {
			continue
		}
		if _, err := bucket.Delete(ctx, key); err != nil {
			w.logger.WithError(err).
				WithFields(logging.RequestFields(w.opts.CacheName, key.Method, key.URL, "install", false)).
				Warn("install_rollback_failed")
		}
	}
}

func keySet(ctx context.Context, bucket cache.Bucket) (map[cache.Key]bool, error) {
	keys, err := bucket.Keys(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[cache.Key]bool, len(keys))
	for _, key := range keys {
		set[key] = true
	}
	return set, nil
}

// Activate 删除所有名称不等于当前版本的桶，然后接管全部页面。
func (w *Worker) Activate(ctx context.Context) error {
	if state := w.State(); state != StateInstalled {
		return fmt.Errorf("cannot activate %s from state %s", w.opts.CacheName, state)
	}
	w.setState(StateActivating)

	names, err := w.store.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list buckets: %w", err)
	}
	for _, name := range names {
		if name == w.opts.CacheName {
			continue
		}
		if _, err := w.store.Delete(ctx, name); err != nil {
			return fmt.Errorf("delete stale bucket %s: %w", name, err)
		}
		fields := logging.LifecycleFields("activate", name, string(StateActivating))
		fields["current"] = w.opts.CacheName
		w.logger.WithFields(fields).Info("stale_bucket_deleted")
	}

	claimed := 0
	if w.opts.ClaimClients {
		claimed = w.clients.Claim(w.opts.CacheName)
	}
	w.setState(StateActivated)

	fields := logging.LifecycleFields("activate", w.opts.CacheName, string(StateActivated))
	fields["claimed_clients"] = claimed
	w.logger.WithFields(fields).Info("activate_complete")
	return nil
}
