package worker

import (
	"context"
	"errors"
	"fmt"
)

// EventKind 是宿主投递给 worker 的事件类型。
type EventKind string

const (
	EventInstall           EventKind = "install"
	EventActivate          EventKind = "activate"
	EventFetch             EventKind = "fetch"
	EventSync              EventKind = "sync"
	EventPush              EventKind = "push"
	EventNotificationClick EventKind = "notificationclick"
	EventMessage           EventKind = "message"
)

// ErrUnknownEvent 表示事件类型没有注册处理函数。
var ErrUnknownEvent = errors.New("unknown event kind")

// Event 携带各类事件的参数，按 Kind 只读取对应字段。
type Event struct {
	Kind           EventKind
	Request        *Request
	Tag            string
	Data           []byte
	NotificationID string
	Message        Message
}

// Result 汇总事件处理结果，按 Kind 只填充对应字段。
type Result struct {
	Response     *Response
	Notification *Notification
	Client       *Client
}

type handlerFunc func(ctx context.Context, ev Event) (Result, error)

func (w *Worker) eventHandlers() map[EventKind]handlerFunc {
	return map[EventKind]handlerFunc{
		EventInstall: func(ctx context.Context, _ Event) (Result, error) {
			return Result{}, w.Install(ctx)
		},
		EventActivate: func(ctx context.Context, _ Event) (Result, error) {
			return Result{}, w.Activate(ctx)
		},
		EventFetch: func(ctx context.Context, ev Event) (Result, error) {
			resp, err := w.Fetch(ctx, ev.Request)
			return Result{Response: resp}, err
		},
		EventSync: func(ctx context.Context, ev Event) (Result, error) {
			return Result{}, w.Sync(ctx, ev.Tag)
		},
		EventPush: func(ctx context.Context, ev Event) (Result, error) {
			notification, err := w.Push(ctx, ev.Data)
			if err != nil {
				return Result{}, err
			}
			return Result{Notification: &notification}, nil
		},
		EventNotificationClick: func(ctx context.Context, ev Event) (Result, error) {
			client, err := w.NotificationClick(ctx, ev.NotificationID)
			if err != nil {
				return Result{}, err
			}
			return Result{Client: &client}, nil
		},
		EventMessage: func(ctx context.Context, ev Event) (Result, error) {
			return Result{}, w.HandleMessage(ctx, ev.Message)
		},
	}
}

// Dispatch 将事件交给对应处理函数，redundant 状态的 worker 拒绝一切事件。
// 返回时事件本身已完成；异步派生任务可通过 Wait 等待。
func (w *Worker) Dispatch(ctx context.Context, ev Event) (Result, error) {
	handler, ok := w.handlers[ev.Kind]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Kind)
	}
	if w.State() == StateRedundant {
		return Result{}, fmt.Errorf("%w: %s is redundant", ErrNotActive, w.opts.CacheName)
	}
	return handler(ctx, ev)
}
