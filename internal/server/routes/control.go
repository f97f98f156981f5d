package routes

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/folio-shell/folio-shell/internal/cache"
	"github.com/folio-shell/folio-shell/internal/server"
	"github.com/folio-shell/folio-shell/internal/worker"
)

// ControlDeps 汇总控制接口依赖的共享组件。
type ControlDeps struct {
	Registration  *worker.Registration
	Store         cache.Store
	Clients       *worker.Clients
	Notifications *worker.NotificationCenter
	Logger        *logrus.Logger
}

// RegisterControlRoutes 挂载 /-/ 下的控制接口：页面消息、后台同步、推送、
// 通知点击与状态诊断。
func RegisterControlRoutes(app *fiber.App, deps ControlDeps) {
	if app == nil || deps.Registration == nil {
		return
	}

	app.Post("/-/message", func(c fiber.Ctx) error {
		var msg worker.Message
		if err := json.Unmarshal(c.Body(), &msg); err != nil || strings.TrimSpace(msg.Action) == "" {
			return writeError(c, fiber.StatusBadRequest, "invalid_message")
		}
		_, err := deps.Registration.Dispatch(requestContext(c), worker.Event{Kind: worker.EventMessage, Message: msg})
		if err != nil {
			return dispatchError(c, deps.Logger, "message", err)
		}
		return c.JSON(fiber.Map{"action": msg.Action, "status": deps.Registration.Status()})
	})

	app.Post("/-/sync/:tag", func(c fiber.Ctx) error {
		tag := strings.TrimSpace(c.Params("tag"))
		if tag == "" {
			return writeError(c, fiber.StatusBadRequest, "sync_tag_required")
		}
		_, err := deps.Registration.Dispatch(requestContext(c), worker.Event{Kind: worker.EventSync, Tag: tag})
		if err != nil {
			return dispatchError(c, deps.Logger, "sync", err)
		}
		pending := 0
		if controller := deps.Registration.Controller(); controller != nil {
			pending, _ = controller.PendingSubmissions(requestContext(c))
		}
		return c.JSON(fiber.Map{"tag": tag, "pending": pending})
	})

	app.Post("/-/push", func(c fiber.Ctx) error {
		payload := append([]byte(nil), c.Body()...)
		result, err := deps.Registration.Dispatch(requestContext(c), worker.Event{Kind: worker.EventPush, Data: payload})
		if err != nil {
			return dispatchError(c, deps.Logger, "push", err)
		}
		return c.Status(fiber.StatusCreated).JSON(result.Notification)
	})

	app.Get("/-/notifications", func(c fiber.Ctx) error {
		notifications := []worker.Notification{}
		if deps.Notifications != nil {
			notifications = append(notifications, deps.Notifications.List()...)
		}
		return c.JSON(fiber.Map{"notifications": notifications})
	})

	app.Post("/-/notifications/:id/click", func(c fiber.Ctx) error {
		id := strings.TrimSpace(c.Params("id"))
		result, err := deps.Registration.Dispatch(requestContext(c), worker.Event{
			Kind:           worker.EventNotificationClick,
			NotificationID: id,
		})
		if err != nil {
			return dispatchError(c, deps.Logger, "notificationclick", err)
		}
		client := result.Client
		c.Cookie(&fiber.Cookie{Name: server.ClientCookie, Value: client.ID, Path: "/", HTTPOnly: true})
		return c.Redirect().Status(fiber.StatusFound).To(client.URL)
	})

	app.Get("/-/status", func(c fiber.Ctx) error {
		payload := statusPayload{Registration: deps.Registration.Status()}
		if deps.Store != nil {
			buckets, err := deps.Store.Keys(requestContext(c))
			if err != nil {
				return dispatchError(c, deps.Logger, "status", err)
			}
			sort.Strings(buckets)
			payload.Buckets = buckets
		}
		if deps.Clients != nil {
			payload.Clients = deps.Clients.List()
		}
		if controller := deps.Registration.Controller(); controller != nil {
			pending, err := controller.PendingSubmissions(requestContext(c))
			if err != nil {
				return dispatchError(c, deps.Logger, "status", err)
			}
			payload.Pending = pending
		}
		return c.JSON(payload)
	})
}

type statusPayload struct {
	Registration worker.Status   `json:"registration"`
	Buckets      []string        `json:"buckets"`
	Clients      []worker.Client `json:"clients"`
	Pending      int             `json:"pending_submissions"`
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// dispatchError 把 worker 的哨兵错误翻译成 HTTP 状态码与错误码。
func dispatchError(c fiber.Ctx, logger *logrus.Logger, action string, err error) error {
	status, code := fiber.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, worker.ErrNoController):
		status, code = fiber.StatusServiceUnavailable, "no_controller"
	case errors.Is(err, worker.ErrNotActive):
		status, code = fiber.StatusServiceUnavailable, "worker_not_active"
	case errors.Is(err, worker.ErrNotificationNotFound):
		status, code = fiber.StatusNotFound, "notification_not_found"
	case errors.Is(err, worker.ErrSyncRejected), errors.Is(err, worker.ErrNetwork):
		status, code = fiber.StatusBadGateway, "sync_failed"
	}
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"action":     action,
			"error_code": code,
			"request_id": server.RequestID(c),
		}).WithError(err).Warn("control_request_failed")
	}
	return writeError(c, status, code)
}

func writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}
