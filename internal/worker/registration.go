package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/folio-shell/folio-shell/internal/logging"
)

// ErrNoController 表示当前没有激活的 worker 可以处理事件。
var ErrNoController = errors.New("no active worker")

// Registration 持有 active 与 waiting 两个版本，并串行化生命周期切换。
type Registration struct {
	logger *logrus.Logger

	lifecycle sync.Mutex

	mu      sync.RWMutex
	active  *Worker
	waiting *Worker
}

// NewRegistration 创建空注册表。
func NewRegistration(logger *logrus.Logger) *Registration {
	return &Registration{logger: logger}
}

// Register 安装新版本。安装失败时丢弃新版本、保留当前 active；
// 成功后若请求了 skipWaiting 则立即激活，否则停在 waiting。
func (r *Registration) Register(ctx context.Context, w *Worker) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	w.setSkipWaitingHook(func(ctx context.Context) error {
		return r.promote(ctx, w)
	})

	if _, err := w.Dispatch(ctx, Event{Kind: EventInstall}); err != nil {
		return err
	}

	r.mu.Lock()
	replaced := r.waiting
	r.waiting = w
	r.mu.Unlock()
	if replaced != nil {
		replaced.setState(StateRedundant)
	}

	if !w.SkipWaitingRequested() {
		r.logger.WithFields(logging.LifecycleFields("register", w.CacheName(), string(StateInstalled))).
			Info("worker_waiting")
		return nil
	}
	return r.activateLocked(ctx, w)
}

// SkipWaiting 立即激活 waiting 版本；没有 waiting 时为 no-op。
func (r *Registration) SkipWaiting(ctx context.Context) error {
	waiting := r.Waiting()
	if waiting == nil {
		return nil
	}
	return waiting.SkipWaiting(ctx)
}

func (r *Registration) promote(ctx context.Context, w *Worker) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	if r.Waiting() != w {
		return nil
	}
	return r.activateLocked(ctx, w)
}

// activateLocked 要求调用方持有 lifecycle 锁。激活失败时新版本作废，旧 active 保持不变。
func (r *Registration) activateLocked(ctx context.Context, w *Worker) error {
	current := r.Controller()
	if current == w {
		current = nil
	}
	if current != nil {
		current.pauseWrites()
	}

	if _, err := w.Dispatch(ctx, Event{Kind: EventActivate}); err != nil {
		if current != nil {
			current.resumeWrites()
		}
		w.setState(StateRedundant)
		r.mu.Lock()
		if r.waiting == w {
			r.waiting = nil
		}
		r.mu.Unlock()
		r.logger.WithFields(logging.LifecycleFields("activate", w.CacheName(), string(StateRedundant))).
			WithError(err).Error("activate_failed")
		return err
	}

	r.mu.Lock()
	previous := r.active
	r.active = w
	if r.waiting == w {
		r.waiting = nil
	}
	r.mu.Unlock()

	if previous != nil && previous != w {
		previous.setState(StateRedundant)
		previous.Wait()
	}
	return nil
}

// Controller 返回当前处理 fetch 的 worker。
func (r *Registration) Controller() *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Waiting 返回已安装但尚未激活的 worker。
func (r *Registration) Waiting() *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.waiting
}

// Fetch 将请求交给当前 controller。
func (r *Registration) Fetch(ctx context.Context, req *Request) (*Response, error) {
	result, err := r.Dispatch(ctx, Event{Kind: EventFetch, Request: req})
	return result.Response, err
}

// Dispatch 投递功能性事件。skipWaiting 消息优先交给 waiting 版本，其余事件交给 controller。
func (r *Registration) Dispatch(ctx context.Context, ev Event) (Result, error) {
	target := r.Controller()
	if ev.Kind == EventMessage && ev.Message.Action == ActionSkipWaiting {
		if waiting := r.Waiting(); waiting != nil {
			target = waiting
		}
	}
	if target == nil {
		return Result{}, ErrNoController
	}
	return r.dispatchTo(ctx, target, ev)
}

// dispatchTo 投递给 target；若 target 在取出后被新版本替换（已 redundant），
// 改投当前 controller 一次。
func (r *Registration) dispatchTo(ctx context.Context, target *Worker, ev Event) (Result, error) {
	result, err := target.Dispatch(ctx, ev)
	if err == nil || !errors.Is(err, ErrNotActive) {
		return result, err
	}
	if current := r.Controller(); current != nil && current != target {
		return current.Dispatch(ctx, ev)
	}
	return result, err
}

// Status 是注册表的快照，用于诊断接口。
type Status struct {
	Active       string `json:"active,omitempty"`
	ActiveState  string `json:"active_state,omitempty"`
	Waiting      string `json:"waiting,omitempty"`
	WaitingState string `json:"waiting_state,omitempty"`
}

// Status 返回当前 active/waiting 版本。
func (r *Registration) Status() Status {
	var status Status
	if active := r.Controller(); active != nil {
		status.Active = active.CacheName()
		status.ActiveState = string(active.State())
	}
	if waiting := r.Waiting(); waiting != nil {
		status.Waiting = waiting.CacheName()
		status.WaitingState = string(waiting.State())
	}
	return status
}

// RunSync 模拟宿主的后台同步调度：每个周期内队列非空时投递一次 sync 事件。
// 失败只记录日志，下一周期自然重试；ctx 取消后返回。
func (r *Registration) RunSync(ctx context.Context, interval time.Duration, tag string) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.syncOnce(ctx, tag); err != nil && !errors.Is(err, ErrNoController) {
				r.logger.WithFields(logrus.Fields{"action": "sync", "tag": tag}).
					WithError(err).Warn("scheduled_sync_failed")
			}
		}
	}
}

func (r *Registration) syncOnce(ctx context.Context, tag string) error {
	controller := r.Controller()
	if controller == nil {
		return ErrNoController
	}
	pending, err := controller.PendingSubmissions(ctx)
	if err != nil {
		return fmt.Errorf("count pending submissions: %w", err)
	}
	if pending == 0 {
		return nil
	}
	_, err = controller.Dispatch(ctx, Event{Kind: EventSync, Tag: tag})
	return err
}
