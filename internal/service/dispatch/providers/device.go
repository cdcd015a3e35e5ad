package providers

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DeviceNotification is one on-device notification
type DeviceNotification struct {
	Title   string
	Body    string
	ShownAt time.Time
}

// DeviceBridge shows notifications on the subject's own device. It requires
// no connectivity and never fails; if the UI bridge is saturated the oldest
// pending notification is dropped in favor of the newest.
type DeviceBridge struct {
	logger *zap.Logger

	mu      sync.Mutex
	pending []DeviceNotification
	limit   int
}

// NewDeviceBridge creates a bridge retaining up to limit pending notifications
func NewDeviceBridge(limit int, logger *zap.Logger) *DeviceBridge {
	if limit <= 0 {
		limit = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceBridge{logger: logger, limit: limit}
}

// ShowLocalNotification queues the notification for the device UI
func (d *DeviceBridge) ShowLocalNotification(title, body string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = append(d.pending, DeviceNotification{
		Title:   title,
		Body:    body,
		ShownAt: time.Now().UTC(),
	})
	if len(d.pending) > d.limit {
		d.pending = d.pending[len(d.pending)-d.limit:]
	}

	d.logger.Info("local notification shown", zap.String("title", title))
}

// Drain returns and clears pending notifications. Called by the device UI
// poll loop.
func (d *DeviceBridge) Drain() []DeviceNotification {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := d.pending
	d.pending = nil
	return out
}
