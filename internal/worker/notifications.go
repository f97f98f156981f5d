package worker

import (
	"errors"
	"sync"
	"time"
)

// ErrNotificationNotFound 表示通知不存在或已被关闭。
var ErrNotificationNotFound = errors.New("notification not found")

// NotificationData 附带在通知上，供点击处理使用。
type NotificationData struct {
	DateOfArrival int64 `json:"dateOfArrival"`
	PrimaryKey    int   `json:"primaryKey"`
}

// Notification 是一条已展示的推送通知。
type Notification struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Icon      string           `json:"icon"`
	Badge     string           `json:"badge"`
	Vibrate   []int            `json:"vibrate"`
	Data      NotificationData `json:"data"`
	CreatedAt time.Time        `json:"created_at"`
}

// NotificationCenter 保存仍处于打开状态的通知。
type NotificationCenter struct {
	mu    sync.Mutex
	items map[string]Notification
	order []string
}

// NewNotificationCenter 创建空的通知中心。
func NewNotificationCenter() *NotificationCenter {
	return &NotificationCenter{items: make(map[string]Notification)}
}

// Show 展示通知，同 ID 会替换旧通知。
func (n *NotificationCenter) Show(notification Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.items[notification.ID]; !exists {
		n.order = append(n.order, notification.ID)
	}
	n.items[notification.ID] = notification
}

// Close 关闭通知并返回其内容。
func (n *NotificationCenter) Close(id string) (Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	notification, ok := n.items[id]
	if !ok {
		return Notification{}, false
	}
	delete(n.items, id)
	for i, existing := range n.order {
		if existing == id {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
	return notification, true
}

// List 按展示顺序返回打开中的通知。
func (n *NotificationCenter) List() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	result := make([]Notification, 0, len(n.order))
	for _, id := range n.order {
		result = append(result, n.items[id])
	}
	return result
}
