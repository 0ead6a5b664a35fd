package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations so connection goroutines never contend on a lock.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime TCP connections accepted
	ActiveConnections atomic.Int64 // current open connections
	FailedAuths       atomic.Int64 // AUTH_FAIL replies, malformed first lines included
	SuccessfulAuths   atomic.Int64
	TotalDisconnects  atomic.Int64 // every closed connection, clean or not
	Logouts           atomic.Int64 // sessions ended with salir/BYE

	ChatMessages atomic.Int64 // lines echoed back as SERVIDOR: replies

	// Upload counters
	UploadsOK      atomic.Int64
	UploadsFailed  atomic.Int64 // FILE_ERR replies, header and io
	UploadBytes    atomic.Int64 // payload bytes written by successful uploads
	MirrorFailures atomic.Int64
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics as a serializable struct.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	SuccessfulAuths   int64 `json:"successful_auths"`
	FailedAuths       int64 `json:"failed_auths"`
	TotalDisconnects  int64 `json:"total_disconnects"`
	Logouts           int64 `json:"logouts"`

	ChatMessages int64 `json:"chat_messages"`

	UploadsOK      int64 `json:"uploads_ok"`
	UploadsFailed  int64 `json:"uploads_failed"`
	UploadBytes    int64 `json:"upload_bytes"`
	MirrorFailures int64 `json:"mirror_failures"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:            uptime.Truncate(time.Second).String(),
		UptimeSeconds:     int64(uptime.Seconds()),
		ActiveConnections: m.ActiveConnections.Load(),
		TotalConnections:  m.TotalConnections.Load(),
		SuccessfulAuths:   m.SuccessfulAuths.Load(),
		FailedAuths:       m.FailedAuths.Load(),
		TotalDisconnects:  m.TotalDisconnects.Load(),
		Logouts:           m.Logouts.Load(),
		ChatMessages:      m.ChatMessages.Load(),
		UploadsOK:         m.UploadsOK.Load(),
		UploadsFailed:     m.UploadsFailed.Load(),
		UploadBytes:       m.UploadBytes.Load(),
		MirrorFailures:    m.MirrorFailures.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"auth_failed", s.FailedAuths,
		"chat_msgs", s.ChatMessages,
		"uploads", s.UploadsOK,
		"upload_bytes", s.UploadBytes,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
