package cache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

// Store 管理命名缓存桶集合。磁盘布局遵循：
//
//	<StoragePath>/<bucket>/<sha1(method url)>.body   # 响应正文
//	<StoragePath>/<bucket>/<sha1(method url)>.json   # 状态码、响应头、请求标识
//
// 桶名称即版本标签，例如 portfolio-v1.0.0。
type Store interface {
	// Open 打开（必要时创建）指定名称的缓存桶。
	Open(ctx context.Context, name string) (Bucket, error)

	// Has 返回桶是否存在。
	Has(ctx context.Context, name string) (bool, error)

	// Keys 按字典序返回全部桶名称。
	Keys(ctx context.Context) ([]string, error)

	// Delete 删除整个桶，返回删除前是否存在。
	Delete(ctx context.Context, name string) (bool, error)
}

// Bucket 是单个版本的请求 → 响应映射，单个 Key 的读写是原子的。
type Bucket interface {
	Name() string

	// Put 写入响应正文与元数据，同名 Key 会被整体替换。
	Put(ctx context.Context, key Key, meta Meta, body io.Reader) (*Entry, error)

	// Match 返回可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Match(ctx context.Context, key Key) (*ReadResult, error)

	// Delete 删除条目，返回删除前是否存在。
	Delete(ctx context.Context, key Key) (bool, error)

	// Keys 返回桶内全部请求标识。
	Keys(ctx context.Context) ([]Key, error)
}

// Key 唯一定位一个缓存条目：请求方法 + 绝对 URL。
type Key struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// NewKey 归一化请求方法，空方法视为 GET。
func NewKey(method, url string) Key {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	return Key{Method: method, URL: url}
}

func (k Key) String() string {
	return k.Method + " " + k.URL
}

// Meta 是写入时需要保存的响应元信息。
type Meta struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
}

// Entry 表示一条已落盘的缓存记录。
type Entry struct {
	Key       Key         `json:"key"`
	Bucket    string      `json:"bucket"`
	Status    int         `json:"status"`
	Header    http.Header `json:"header"`
	FilePath  string      `json:"file_path"`
	SizeBytes int64       `json:"size_bytes"`
	StoredAt  time.Time   `json:"stored_at"`
}

// ReadResult 组合 Entry 与正文 Reader，便于上层直接将 Body 流式返回。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

// ErrNotFound 表示缓存条目不存在。
var ErrNotFound = errors.New("cache entry not found")

// ErrInvalidBucket 表示桶名称不合法（为空、包含路径分隔符等）。
var ErrInvalidBucket = errors.New("invalid bucket name")
