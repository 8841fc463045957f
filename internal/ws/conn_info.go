package ws

import "time"

// ConnInfo describes a live connection for logs and lifecycle metrics.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
