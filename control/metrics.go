// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime counters for protocol events.
// Counters are registered on first use and read as a snapshot.

package control

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter names maintained by the transports.
const (
	MetricConnections       = "connections"
	MetricHTTPRequests      = "http_requests"
	MetricHandshakes        = "handshakes"
	MetricWSFrames          = "ws_frames"
	MetricWSControlFrames   = "ws_control_frames"
	MetricMalformed         = "malformed"
	MetricKeepaliveTimeouts = "keepalive_timeouts"
	MetricBytesIn           = "bytes_in"
	MetricBytesOut          = "bytes_out"
)

// MetricsRegistry holds named monotonic counters.
type MetricsRegistry struct {
	counters sync.Map // string -> *atomic.Int64
	updated  atomic.Int64
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{}
}

// Add increments counter key by delta.
func (mr *MetricsRegistry) Add(key string, delta int64) {
	v, ok := mr.counters.Load(key)
	if !ok {
		v, _ = mr.counters.LoadOrStore(key, new(atomic.Int64))
	}
	v.(*atomic.Int64).Add(delta)
	mr.updated.Store(time.Now().UnixNano())
}

// Inc increments counter key by one.
func (mr *MetricsRegistry) Inc(key string) { mr.Add(key, 1) }

// Get returns the value of counter key.
func (mr *MetricsRegistry) Get(key string) int64 {
	if v, ok := mr.counters.Load(key); ok {
		return v.(*atomic.Int64).Load()
	}
	return 0
}

// GetSnapshot returns the latest values of all counters.
func (mr *MetricsRegistry) GetSnapshot() map[string]int64 {
	out := make(map[string]int64)
	mr.counters.Range(func(k, v any) bool {
		out[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	return out
}

// Updated returns when a counter last changed.
func (mr *MetricsRegistry) Updated() time.Time {
	ns := mr.updated.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
