package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrSyncRejected 表示联系接口返回了非 2xx，提交保持在队列中。
var ErrSyncRejected = errors.New("contact endpoint rejected submission")

// Sync 处理后台同步事件。仅识别配置的联系表单标签，其它标签忽略。
// 提交按入队顺序逐条 POST；2xx 删除该条，首个失败立即停止并返回错误，
// 剩余提交留待宿主下一次调度。
func (w *Worker) Sync(ctx context.Context, tag string) error {
	if err := w.requireActive(); err != nil {
		return err
	}
	fields := logrus.Fields{"action": "sync", "tag": tag, "bucket": w.opts.CacheName}
	if tag != w.opts.SyncTag {
		w.logger.WithFields(fields).Debug("sync_tag_ignored")
		return nil
	}
	if w.queue == nil {
		return nil
	}

	pending, err := w.queue.Pending(ctx)
	if err != nil {
		return fmt.Errorf("load pending submissions: %w", err)
	}

	endpoint := w.originURL(w.opts.ContactEndpoint)
	delivered := 0
	for _, sub := range pending {
		payload, err := json.Marshal(sub.Payload())
		if err != nil {
			return err
		}
		req := &Request{
			Method: http.MethodPost,
			URL:    endpoint,
			Header: http.Header{"Content-Type": []string{"application/json"}},
			Body:   payload,
		}
		resp, err := w.network.Fetch(ctx, req)
		if err != nil {
			w.logger.WithFields(fields).WithError(err).WithField("submission_id", sub.ID).Warn("sync_failed")
			return fmt.Errorf("sync submission %d: %w", sub.ID, err)
		}
		if !resp.OK() {
			w.logger.WithFields(fields).WithField("submission_id", sub.ID).
				WithField("upstream_status", resp.Status).Warn("sync_rejected")
			return fmt.Errorf("sync submission %d: %w (status %d)", sub.ID, ErrSyncRejected, resp.Status)
		}
		if err := w.queue.Delete(ctx, sub.ID); err != nil {
			return err
		}
		delivered++
	}

	fields["delivered"] = delivered
	w.logger.WithFields(fields).Info("sync_complete")
	return nil
}

// Push 展示一条推送通知，payload 为空时使用默认正文。
func (w *Worker) Push(ctx context.Context, payload []byte) (Notification, error) {
	if err := w.requireActive(); err != nil {
		return Notification{}, err
	}
	if err := ctx.Err(); err != nil {
		return Notification{}, err
	}

	body := w.opts.Push.DefaultBody
	if len(payload) > 0 {
		body = string(payload)
	}
	now := w.now()
	notification := Notification{
		ID:      uuid.NewString(),
		Title:   w.opts.Push.Title,
		Body:    body,
		Icon:    w.opts.Push.Icon,
		Badge:   w.opts.Push.Badge,
		Vibrate: append([]int(nil), w.opts.Push.Vibrate...),
		Data: NotificationData{
			DateOfArrival: now.UnixMilli(),
			PrimaryKey:    w.opts.Push.PrimaryKey,
		},
		CreatedAt: now.UTC(),
	}
	w.notifications.Show(notification)

	w.logger.WithFields(logrus.Fields{
		"action":          "push",
		"notification_id": notification.ID,
	}).Info("notification_shown")
	return notification, nil
}

// NotificationClick 关闭通知并打开（或聚焦）站点根页面。
func (w *Worker) NotificationClick(ctx context.Context, id string) (Client, error) {
	if err := w.requireActive(); err != nil {
		return Client{}, err
	}
	if err := ctx.Err(); err != nil {
		return Client{}, err
	}
	if _, ok := w.notifications.Close(id); !ok {
		return Client{}, fmt.Errorf("%w: %s", ErrNotificationNotFound, id)
	}
	target := w.opts.Push.OpenURL
	if target == "" {
		target = "/"
	}
	client := w.clients.OpenWindow(target, w.opts.CacheName)

	w.logger.WithFields(logrus.Fields{
		"action":          "notificationclick",
		"notification_id": id,
		"client_id":       client.ID,
	}).Info("notification_clicked")
	return client, nil
}

// Message 是页面发给 worker 的控制消息。
type Message struct {
	Action string `json:"action"`
}

const (
	ActionSkipWaiting = "skipWaiting"
	ActionClearCache  = "clearCache"
)

// HandleMessage 处理 skipWaiting 与 clearCache，未知动作记录后忽略。
// clearCache 只删除当前桶，不会重新填充。
func (w *Worker) HandleMessage(ctx context.Context, msg Message) error {
	fields := logrus.Fields{"action": "message", "message_action": msg.Action, "bucket": w.opts.CacheName}
	switch strings.TrimSpace(msg.Action) {
	case ActionSkipWaiting:
		w.logger.WithFields(fields).Info("message_received")
		return w.SkipWaiting(ctx)
	case ActionClearCache:
		deleted, err := w.store.Delete(ctx, w.opts.CacheName)
		if err != nil {
			return fmt.Errorf("clear cache %s: %w", w.opts.CacheName, err)
		}
		fields["deleted"] = deleted
		w.logger.WithFields(fields).Info("cache_cleared")
		return nil
	default:
		w.logger.WithFields(fields).Debug("message_ignored")
		return nil
	}
}
