package worker

import (
	"net/http"
	"net/url"
	"strings"
)

// Request 是一次被拦截的页面请求。
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
	// Destination 对应 Sec-Fetch-Dest，例如 document、style、script。
	Destination string
	// Mode 对应 Sec-Fetch-Mode，整页导航为 navigate。
	Mode string
}

// NewRequest 解析绝对 URL 构造请求，Destination/Mode 从头部推断。
func NewRequest(method, rawURL string, header http.Header, body []byte) (*Request, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if header == nil {
		header = http.Header{}
	}
	if method == "" {
		method = http.MethodGet
	}
	return &Request{
		Method:      strings.ToUpper(method),
		URL:         parsed,
		Header:      header,
		Body:        body,
		Destination: strings.ToLower(header.Get("Sec-Fetch-Dest")),
		Mode:        strings.ToLower(header.Get("Sec-Fetch-Mode")),
	}, nil
}

// IsNavigation 判断是否为整页导航请求。
func (r *Request) IsNavigation() bool {
	return r.Destination == "document" || r.Mode == "navigate"
}

// ResponseType 区分同源响应与跨源响应，只有 basic 可以入桶。
type ResponseType string

const (
	ResponseBasic ResponseType = "basic"
	ResponseCORS  ResponseType = "cors"
)

// Source 标记响应来自何处，用于日志与响应头。
type Source string

const (
	SourceNetwork     Source = "network"
	SourceCache       Source = "cache"
	SourceOfflinePage Source = "offline_page"
	SourceQueue       Source = "queue"
)

// Response 是交还给页面的响应。Body 已被完整读取，可通过 Clone 得到独立副本。
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Type   ResponseType
	URL    string
	Source Source
}

// OK 对应 2xx 状态码。
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Clone 深拷贝头部与正文，副本与原响应互不影响。
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	cloned := *r
	cloned.Header = r.Header.Clone()
	if r.Body != nil {
		cloned.Body = append([]byte(nil), r.Body...)
	}
	return &cloned
}

func sameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}
