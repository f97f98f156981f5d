package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/textproto"
	"time"

	"github.com/folio-shell/folio-shell/internal/config"
	"github.com/folio-shell/folio-shell/internal/version"
)

const (
	defaultUpstreamTimeout = 30 * time.Second
	maxUpstreamRedirects   = 10
)

// ErrInsecureRedirect 表示源站把 https 请求重定向到了 http。
var ErrInsecureRedirect = errors.New("redirect downgrades https to http")

// NewUpstreamClient 构造访问源站的 http.Client，install 拉取、页面 fetch 与后台同步共用。
// 客户端会带上 folio-shell 的 User-Agent，限制重定向次数并拒绝 https 降级到 http。
func NewUpstreamClient(cfg *config.Config) *http.Client {
	timeout := defaultUpstreamTimeout
	if cfg != nil && cfg.Global.UpstreamTimeout.DurationValue() > 0 {
		timeout = cfg.Global.UpstreamTimeout.DurationValue()
	}

	return &http.Client{
		Timeout:       timeout,
		Transport:     &userAgentTransport{base: upstreamTransport(timeout), agent: UserAgent()},
		CheckRedirect: checkUpstreamRedirect,
	}
}

// UserAgent 返回发往源站的 User-Agent。
func UserAgent() string {
	return "folio-shell/" + version.Version
}

func upstreamTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: time.Second,
	}
}

func checkUpstreamRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxUpstreamRedirects {
		return fmt.Errorf("stopped after %d redirects", maxUpstreamRedirects)
	}
	if len(via) > 0 && via[len(via)-1].URL.Scheme == "https" && req.URL.Scheme == "http" {
		return fmt.Errorf("%w: %s", ErrInsecureRedirect, req.URL.Redacted())
	}
	return nil
}

// userAgentTransport 只在调用方没有指定 User-Agent 时补上默认值。
type userAgentTransport struct {
	base  http.RoundTripper
	agent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(clone)
}

// 逐跳头部只对单个连接有效，转发请求或缓存响应时都要剔除。
var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Proxy-Connection":    true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// CopyHeaders 把 src 追加到 dst，跳过逐跳头部。
func CopyHeaders(dst, src http.Header) {
	for key, values := range src {
		if IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// IsHopByHopHeader 判断头部是否属于逐跳头部，大小写不敏感。
func IsHopByHopHeader(key string) bool {
	return hopByHopHeaders[textproto.CanonicalMIMEHeaderKey(key)]
}
