package worker

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client 是一个通过网关导航过的页面。
type Client struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Focused    bool      `json:"focused"`
	Controller string    `json:"controller,omitempty"`
	LastSeen   time.Time `json:"last_seen"`
}

// Clients 记录已知页面，支持 claim 与 openWindow。
type Clients struct {
	mu    sync.Mutex
	byID  map[string]*Client
	order []string
	now   func() time.Time
}

// NewClients 创建空的页面注册表。
func NewClients() *Clients {
	return &Clients{
		byID: make(map[string]*Client),
		now:  time.Now,
	}
}

// Touch 记录一次页面导航。已受控的页面保持原控制者，新页面由当前 controller 接管。
func (c *Clients) Touch(id, url, controller string) Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	client, ok := c.byID[id]
	if !ok {
		client = &Client{ID: id, Controller: controller}
		c.byID[id] = client
		c.order = append(c.order, id)
	}
	if client.Controller == "" {
		client.Controller = controller
	}
	client.URL = url
	client.LastSeen = c.now().UTC()
	return *client
}

// Claim 让 controller 立即接管全部已知页面，返回受影响的页面数。
func (c *Clients) Claim(controller string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, client := range c.byID {
		client.Controller = controller
	}
	return len(c.byID)
}

// OpenWindow 聚焦已打开 url 的页面；不存在时登记一个新页面。
func (c *Clients) OpenWindow(url, controller string) Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	var target *Client
	for _, id := range c.order {
		client := c.byID[id]
		client.Focused = false
		if target == nil && client.URL == url {
			target = client
		}
	}
	if target == nil {
		target = &Client{ID: uuid.NewString(), URL: url, Controller: controller}
		c.byID[target.ID] = target
		c.order = append(c.order, target.ID)
	}
	target.Focused = true
	target.LastSeen = c.now().UTC()
	return *target
}

// Get 返回指定页面的快照。
func (c *Clients) Get(id string) (Client, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	client, ok := c.byID[id]
	if !ok {
		return Client{}, false
	}
	return *client, true
}

// List 按登记顺序返回全部页面快照。
func (c *Clients) List() []Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]Client, 0, len(c.order))
	for _, id := range c.order {
		result = append(result, *c.byID[id])
	}
	return result
}
