package server

import (
	"bytes"
	"io"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/folio-shell/folio-shell/internal/config"
)

func TestRouterHandsPageRequestsToProxy(t *testing.T) {
	app := newTestApp(t, 5000)

	req := httptest.NewRequest("GET", "http://localhost:5000/css/base.css?v=2", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 204 status, got %d (body=%s)", resp.StatusCode, string(body))
	}
	if app.storage.path != "/css/base.css" {
		t.Fatalf("proxy should see request path, got %s", app.storage.path)
	}
	if app.storage.lastRoute == nil || app.storage.lastRoute.CacheName != "portfolio-v1.0.0" {
		t.Fatalf("proxy should receive the shell route, got %+v", app.storage.lastRoute)
	}
	if reqID := resp.Header.Get("X-Request-ID"); reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func TestRouterSkipsProxyForControlPaths(t *testing.T) {
	app := newTestApp(t, 5000)
	app.Get("/-/ping", func(c fiber.Ctx) error {
		return c.SendString("pong")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/-/ping", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "pong" {
		t.Fatalf("control route should answer, got %d %s", resp.StatusCode, body)
	}
	if app.storage.lastRoute != nil {
		t.Fatalf("control paths must not reach the proxy")
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/-/unknown", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("unknown control path should 404, got %d", resp.StatusCode)
	}
	body, _ = io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"error"`)) {
		t.Fatalf("expected JSON error body, got %s", body)
	}
}

func TestRouterRecoversFromPanics(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	origin, _ := url.Parse("https://portfolio.example.com")
	app, err := NewApp(AppOptions{
		Logger: logger,
		Route:  &ShellRoute{Origin: origin, CacheName: "portfolio-v1.0.0"},
		Proxy: ProxyHandlerFunc(func(fiber.Ctx, *ShellRoute) error {
			panic("boom")
		}),
		ListenPort: 5000,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("panic should become 500, got %d", resp.StatusCode)
	}
}

func TestNewAppValidatesOptions(t *testing.T) {
	if _, err := NewApp(AppOptions{}); err == nil {
		t.Fatalf("expected error when logger missing")
	}
	logger := logrus.New()
	if _, err := NewApp(AppOptions{Logger: logger, Route: &ShellRoute{}, Proxy: &proxyRecorder{}}); err == nil {
		t.Fatalf("expected error for invalid listen port")
	}
}

func TestShellRouteResolve(t *testing.T) {
	cfg := &config.Config{
		Global: config.GlobalConfig{ListenPort: 5000, Origin: "https://portfolio.example.com"},
		Shell:  config.ShellConfig{Product: "portfolio", Version: "1.0.0"},
	}
	route, err := NewShellRoute(cfg)
	if err != nil {
		t.Fatalf("route error: %v", err)
	}
	got := route.Resolve("/projects", "tab=web")
	if got.String() != "https://portfolio.example.com/projects?tab=web" {
		t.Fatalf("unexpected resolved url %s", got)
	}
	if route.Resolve("", "").String() != "https://portfolio.example.com/" {
		t.Fatalf("empty path should resolve to root")
	}
	if route.Origin.Path != "" {
		t.Fatalf("resolve must not mutate the origin")
	}
}

func TestNewShellRouteRejectsMissingOrigin(t *testing.T) {
	if _, err := NewShellRoute(&config.Config{}); err == nil {
		t.Fatalf("expected error for missing origin")
	}
	if _, err := NewShellRoute(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

type testApp struct {
	*fiber.App
	storage *proxyRecorder
}

func newTestApp(t *testing.T, port int) *testApp {
	t.Helper()

	cfg := &config.Config{
		Global: config.GlobalConfig{
			ListenPort: port,
			Origin:     "https://portfolio.example.com",
		},
		Shell: config.ShellConfig{Product: "portfolio", Version: "1.0.0"},
	}
	route, err := NewShellRoute(cfg)
	if err != nil {
		t.Fatalf("failed to create route: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	recorder := &proxyRecorder{}
	app, err := NewApp(AppOptions{
		Logger:     logger,
		Route:      route,
		Proxy:      recorder,
		ListenPort: port,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	return &testApp{App: app, storage: recorder}
}

type proxyRecorder struct {
	lastRoute *ShellRoute
	path      string
}

func (p *proxyRecorder) Handle(c fiber.Ctx, route *ShellRoute) error {
	p.lastRoute = route
	p.path = c.Path()
	return c.SendStatus(fiber.StatusNoContent)
}
