package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/folio-shell/folio-shell/internal/server"
)

// ErrNetwork 表示请求未能拿到任何响应（离线、DNS 失败、超时等）。
// 收到非 2xx 状态码不算网络失败。
var ErrNetwork = errors.New("network request failed")

// Network 是 worker 访问源站的唯一出口，测试中可替换为离线桩。
type Network interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// HTTPNetwork 基于共享 http.Client 访问源站，并根据最终 URL 判定响应类型。
type HTTPNetwork struct {
	client *http.Client
	origin *url.URL
}

// NewHTTPNetwork 构造网络出口，client 为空时使用 http.DefaultClient。
func NewHTTPNetwork(client *http.Client, origin *url.URL) *HTTPNetwork {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPNetwork{client: client, origin: origin}
}

// Fetch 发送请求并完整读取响应正文；正文只能读取一次，调用方需要副本时使用 Response.Clone。
func (n *HTTPNetwork) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("request url required")
	}

	var body io.Reader = http.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		return nil, err
	}
	server.CopyHeaders(httpReq.Header, req.Header)
	httpReq.Header.Del("Accept-Encoding")
	httpReq.Header.Del("Host")
	httpReq.Host = req.URL.Host

	resp, err := n.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}
	respType := ResponseCORS
	if sameOrigin(finalURL, n.origin) {
		respType = ResponseBasic
	}

	header := http.Header{}
	server.CopyHeaders(header, resp.Header)

	return &Response{
		Status: resp.StatusCode,
		Header: header,
		Body:   payload,
		Type:   respType,
		URL:    finalURL.String(),
		Source: SourceNetwork,
	}, nil
}
