package worker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/folio-shell/folio-shell/internal/cache"
	"github.com/folio-shell/folio-shell/internal/config"
	"github.com/folio-shell/folio-shell/internal/queue"
)

var (
	// ErrInstallFailed 表示 app shell 未能完整写入，当前版本被丢弃。
	ErrInstallFailed = errors.New("install failed")
	// ErrNotActive 表示 worker 尚未激活或已失效，不能处理功能性事件。
	ErrNotActive = errors.New("worker not active")
	// ErrNoResponse 表示网络与缓存都未能给出响应。
	ErrNoResponse = errors.New("no response available")
)

// PushOptions 是推送通知的固定展示参数。
type PushOptions struct {
	Title       string
	DefaultBody string
	Icon        string
	Badge       string
	Vibrate     []int
	PrimaryKey  int
	OpenURL     string
}

// Options 描述一个 worker 版本。
type Options struct {
	CacheName       string
	Origin          *url.URL
	Manifest        []string
	OfflinePage     string
	SkipWaiting     bool
	ClaimClients    bool
	SyncTag         string
	ContactEndpoint string
	Push            PushOptions
}

// OptionsFromConfig 将配置映射为 worker 选项。
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		CacheName:       cfg.Shell.CacheName(),
		Origin:          cfg.OriginURL(),
		Manifest:        append([]string(nil), cfg.Shell.Manifest...),
		OfflinePage:     cfg.Shell.OfflinePage,
		SkipWaiting:     cfg.Shell.SkipWaiting,
		ClaimClients:    cfg.Shell.ClaimClients,
		SyncTag:         cfg.Sync.Tag,
		ContactEndpoint: cfg.Sync.ContactEndpoint,
		Push: PushOptions{
			Title:       cfg.Push.Title,
			DefaultBody: cfg.Push.DefaultBody,
			Icon:        cfg.Push.Icon,
			Badge:       cfg.Push.Badge,
			Vibrate:     append([]int(nil), cfg.Push.Vibrate...),
			PrimaryKey:  cfg.Push.PrimaryKey,
			OpenURL:     cfg.Push.OpenURL,
		},
	}
}

// SubmissionQueue 是待同步联系表单的存储接口，由 queue.Store 实现。
type SubmissionQueue interface {
	Enqueue(ctx context.Context, sub queue.Submission) (int64, error)
	Pending(ctx context.Context) ([]queue.Submission, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// Deps 是 worker 依赖的外部协作者；Clients/Notifications 在版本之间共享。
type Deps struct {
	Store         cache.Store
	Network       Network
	Queue         SubmissionQueue
	Clients       *Clients
	Notifications *NotificationCenter
	Logger        *logrus.Logger
}

// Worker 是单个版本的离线缓存管理器。
type Worker struct {
	opts Options

	store         cache.Store
	writer        cache.BucketWriter
	network       Network
	queue         SubmissionQueue
	clients       *Clients
	notifications *NotificationCenter
	logger        *logrus.Logger
	now           func() time.Time

	handlers map[EventKind]handlerFunc

	mu            sync.RWMutex
	state         State
	skipWaiting   bool
	writesPaused  bool
	onSkipWaiting func(context.Context) error

	// writeGate 让 pauseWrites 等待已开始的后台写入结束。
	writeGate sync.RWMutex

	inflight sync.WaitGroup
}

// New 构造处于 parsed 状态的 worker。
func New(opts Options, deps Deps) (*Worker, error) {
	if opts.CacheName == "" {
		return nil, errors.New("cache name is required")
	}
	if opts.Origin == nil || opts.Origin.Host == "" {
		return nil, errors.New("origin is required")
	}
	if deps.Store == nil {
		return nil, errors.New("cache store is required")
	}
	if deps.Network == nil {
		return nil, errors.New("network is required")
	}
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Clients == nil {
		deps.Clients = NewClients()
	}
	if deps.Notifications == nil {
		deps.Notifications = NewNotificationCenter()
	}

	w := &Worker{
		opts:          opts,
		store:         deps.Store,
		writer:        cache.NewBucketWriter(deps.Store, opts.CacheName),
		network:       deps.Network,
		queue:         deps.Queue,
		clients:       deps.Clients,
		notifications: deps.Notifications,
		logger:        deps.Logger,
		now:           time.Now,
		state:         StateParsed,
	}
	w.handlers = w.eventHandlers()
	return w, nil
}

// CacheName 返回当前版本的桶名称。
func (w *Worker) CacheName() string {
	return w.opts.CacheName
}

// State 返回当前生命周期阶段。
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) setState(state State) {
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()
}

// SkipWaitingRequested 返回安装后是否请求跳过等待期。
func (w *Worker) SkipWaitingRequested() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.skipWaiting
}

// SkipWaiting 请求立即激活。worker 已安装并处于等待时由 Registration 完成提升。
func (w *Worker) SkipWaiting(ctx context.Context) error {
	w.mu.Lock()
	w.skipWaiting = true
	state := w.state
	hook := w.onSkipWaiting
	w.mu.Unlock()

	if state != StateInstalled || hook == nil {
		return nil
	}
	return hook(ctx)
}

func (w *Worker) setSkipWaitingHook(hook func(context.Context) error) {
	w.mu.Lock()
	w.onSkipWaiting = hook
	w.mu.Unlock()
}

// acceptsWrites 报告后台缓存写入是否仍然允许：仅 activated 且未被暂停的 worker 写桶。
func (w *Worker) acceptsWrites() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state == StateActivated && !w.writesPaused
}

// pauseWrites 停止新的后台写入，并等待正在进行的写入完成。
// 新版本激活（删除旧桶）之前调用，旧版本之后不会再重建自己的桶。
func (w *Worker) pauseWrites() {
	w.mu.Lock()
	w.writesPaused = true
	w.mu.Unlock()

	w.writeGate.Lock()
	w.writeGate.Unlock()
}

// resumeWrites 撤销 pauseWrites，用于新版本激活失败、旧版本继续控制的情况。
func (w *Worker) resumeWrites() {
	w.mu.Lock()
	w.writesPaused = false
	w.mu.Unlock()
}

// Wait 阻塞直到所有异步派生任务（如后台缓存写入）完成。
func (w *Worker) Wait() {
	w.inflight.Wait()
}

// PendingSubmissions 返回待同步提交数量；未配置队列时为 0。
func (w *Worker) PendingSubmissions(ctx context.Context) (int, error) {
	if w.queue == nil {
		return 0, nil
	}
	return w.queue.Count(ctx)
}

func (w *Worker) requireActive() error {
	if state := w.State(); state != StateActivated {
		return fmt.Errorf("%w: %s is %s", ErrNotActive, w.opts.CacheName, state)
	}
	return nil
}

// originURL 将同源路径（可带查询串）解析为绝对 URL。
func (w *Worker) originURL(path string) *url.URL {
	ref, err := url.Parse(path)
	if err != nil {
		ref = &url.URL{Path: path}
	}
	return w.opts.Origin.ResolveReference(ref)
}
