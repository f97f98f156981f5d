package server

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/folio-shell/folio-shell/internal/config"
)

// ShellRoute 聚合网关处理页面请求所需的派生配置（源站 URL、桶名称、端口），
// 在启动阶段解析一次，供路由/代理层直接复用。
type ShellRoute struct {
	// Origin 是被代理的站点源，只含 scheme 与 host。
	Origin *url.URL
	// CacheName 是当前配置版本对应的桶名称，例如 portfolio-v1.0.0。
	CacheName string
	// ListenPort 记录当前 CLI 监听端口，方便日志输出。
	ListenPort int
	// UpstreamTimeout 是共享 http.Client 的超时。
	UpstreamTimeout time.Duration
}

// NewShellRoute 根据配置构建路由信息。
func NewShellRoute(cfg *config.Config) (*ShellRoute, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	origin := cfg.OriginURL()
	if origin == nil || origin.Host == "" {
		return nil, fmt.Errorf("invalid origin %q", cfg.Global.Origin)
	}
	return &ShellRoute{
		Origin:          origin,
		CacheName:       cfg.Shell.CacheName(),
		ListenPort:      cfg.Global.ListenPort,
		UpstreamTimeout: cfg.Global.UpstreamTimeout.DurationValue(),
	}, nil
}

// Resolve 将浏览器请求的路径与查询串拼接到源站上，得到 fetch 事件使用的绝对 URL。
func (r *ShellRoute) Resolve(path string, rawQuery string) *url.URL {
	if path == "" {
		path = "/"
	}
	target := *r.Origin
	target.Path = path
	target.RawPath = ""
	target.RawQuery = rawQuery
	target.Fragment = ""
	return &target
}
