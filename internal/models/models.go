package models

import "time"

// HostSample is one sampling pass over the host. The store assigns the
// timestamp, so the sample carries none.
type HostSample struct {
	CPUUsage    float64
	MemoryUsage float64
	MemoryTotal int64
	MemoryUsed  int64
	HostIP      string
	PingLatency float64
}

// MetricRecord is a persisted host_metrics row.
type MetricRecord struct {
	ID        int64
	Timestamp time.Time
	HostSample
}
