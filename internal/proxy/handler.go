package proxy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/folio-shell/folio-shell/internal/logging"
	"github.com/folio-shell/folio-shell/internal/server"
	"github.com/folio-shell/folio-shell/internal/worker"
)

// FetchDispatcher 是处理 fetch 事件的一方，由 worker.Registration 实现。
type FetchDispatcher interface {
	Fetch(ctx context.Context, req *worker.Request) (*worker.Response, error)
	Controller() *worker.Worker
}

// Handler 把浏览器请求转换为 fetch 事件交给当前 controller，
// 再把得到的响应（网络、缓存、离线页或入队回执）原样写回。
type Handler struct {
	workers FetchDispatcher
	clients *worker.Clients
	logger  *logrus.Logger
}

// NewHandler constructs a proxy handler; clients may be nil when page tracking is not needed.
func NewHandler(workers FetchDispatcher, clients *worker.Clients, logger *logrus.Logger) *Handler {
	return &Handler{
		workers: workers,
		clients: clients,
		logger:  logger,
	}
}

// Handle 实现 server.ProxyHandler，任何阶段出错都会输出结构化日志。
func (h *Handler) Handle(c fiber.Ctx, route *server.ShellRoute) error {
	started := time.Now()
	requestID := server.RequestID(c)
	target := route.Resolve(requestPath(c), string(c.Request().URI().QueryString()))

	req, err := worker.NewRequest(c.Method(), target.String(), fiberHeadersAsHTTP(c), append([]byte(nil), c.Body()...))
	if err != nil {
		return h.writeError(c, fiber.StatusBadRequest, "invalid_request")
	}

	bucket := route.CacheName
	if controller := h.workers.Controller(); controller != nil {
		bucket = controller.CacheName()
	}
	if req.IsNavigation() {
		h.trackClient(c, req, bucket)
	}

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	resp, err := h.workers.Fetch(ctx, req)
	if err != nil {
		h.logResult(bucket, req, requestID, "", 0, started, err)
		switch {
		case errors.Is(err, worker.ErrNoController), errors.Is(err, worker.ErrNotActive):
			return h.writeError(c, fiber.StatusServiceUnavailable, "no_controller")
		default:
			return h.writeError(c, fiber.StatusBadGateway, "upstream_failed")
		}
	}

	copyResponseHeaders(c, resp.Header)
	c.Set("X-Folio-Cache-Hit", boolHeader(isCacheHit(resp.Source)))
	c.Set("X-Folio-Source", string(resp.Source))
	c.Set("X-Folio-Bucket", bucket)
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.Status)

	h.logResult(bucket, req, requestID, resp.Source, resp.Status, started, nil)
	if req.Method == http.MethodHead {
		return nil
	}
	return c.Send(resp.Body)
}

// trackClient 为整页导航登记页面，首次访问时下发 client cookie。
func (h *Handler) trackClient(c fiber.Ctx, req *worker.Request, controller string) {
	if h.clients == nil {
		return
	}
	id := c.Cookies(server.ClientCookie)
	if id == "" {
		id = uuid.NewString()
		c.Cookie(&fiber.Cookie{Name: server.ClientCookie, Value: id, Path: "/", HTTPOnly: true})
	}
	h.clients.Touch(id, req.URL.RequestURI(), controller)
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(
	bucket string,
	req *worker.Request,
	requestID string,
	source worker.Source,
	status int,
	started time.Time,
	err error,
) {
	fields := logging.RequestFields(bucket, req.Method, req.URL.String(), string(source), isCacheHit(source))
	fields["action"] = "fetch"
	fields["upstream_status"] = status
	fields["navigation"] = req.IsNavigation()
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Warn("fetch_failed")
		return
	}
	h.logger.WithFields(fields).Info("fetch_complete")
}

func isCacheHit(source worker.Source) bool {
	return source == worker.SourceCache || source == worker.SourceOfflinePage
}

func boolHeader(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func requestPath(c fiber.Ctx) string {
	if c == nil {
		return "/"
	}
	uri := c.Request().URI()
	if uri == nil {
		return "/"
	}
	pathVal := string(uri.Path())
	if pathVal == "" {
		return "/"
	}
	return pathVal
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

// copyResponseHeaders 写回响应头；Content-Length 由 fiber 根据正文重新计算。
func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) || http.CanonicalHeaderKey(key) == "Content-Length" {
			continue
		}
		for _, value := range values {
			c.Response().Header.Add(key, value)
		}
	}
}
