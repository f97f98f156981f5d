package cache

import (
	"context"
	"errors"
	"io"
	"net/http"
)

// ErrNotCacheable 表示响应不满足入桶条件（非 GET、非 200 或跨源）。
var ErrNotCacheable = errors.New("response not cacheable")

// ErrStoreUnavailable 表示当前未注入缓存存储实例。
var ErrStoreUnavailable = errors.New("cache store unavailable")

// Admit 判断一次网络响应是否可以写入缓存桶：仅缓存同源、200 的 GET 响应。
func Admit(method string, status int, sameOrigin bool) bool {
	return method == http.MethodGet && status == http.StatusOK && sameOrigin
}

// BucketWriter 绑定 Store 与当前版本桶名，写入前执行 Admit 检查。
// 每次写入都会重新 Open 桶，桶被手动清除后下一次写入会重新创建它。
type BucketWriter struct {
	store  Store
	bucket string
}

// NewBucketWriter 构造面向指定桶的写入器。
func NewBucketWriter(store Store, bucket string) BucketWriter {
	return BucketWriter{store: store, bucket: bucket}
}

// Enabled 返回当前是否具备缓存写入能力。
func (w BucketWriter) Enabled() bool {
	return w.store != nil && w.bucket != ""
}

// Put 写入一条同源成功响应；不满足 Admit 时返回 ErrNotCacheable。
func (w BucketWriter) Put(ctx context.Context, key Key, meta Meta, sameOrigin bool, body io.Reader) (*Entry, error) {
	if !w.Enabled() {
		return nil, ErrStoreUnavailable
	}
	if !Admit(key.Method, meta.Status, sameOrigin) {
		return nil, ErrNotCacheable
	}
	bucket, err := w.store.Open(ctx, w.bucket)
	if err != nil {
		return nil, err
	}
	return bucket.Put(ctx, key, meta, body)
}
