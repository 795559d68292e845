package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/avews-bridge/internal/bridges/avews"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string                `json:"timestamp"`
	Version       string                `json:"version"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	Runtime       RuntimeMetrics        `json:"runtime"`
	WebSocket     WSMetrics             `json:"websocket"`
	MQTT          MQTTMetrics           `json:"mqtt"`
	Controller    avews.ConnectionStats `json:"controller"`
	Devices       DeviceMetrics         `json:"devices"`
	Database      *DatabaseMetrics      `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// DeviceMetrics counts registry devices by class.
type DeviceMetrics struct {
	Total   int            `json:"total"`
	ByClass map[string]int `json:"by_class"`
	Active  int            `json:"active"`
	Lights  int            `json:"lights_known"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns runtime, link, and registry metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Controller: s.bridge.Stats(),
	}

	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{Enabled: true, Connected: s.mqtt.IsConnected()}
	}

	devices := s.bridge.Devices()
	metrics.Devices = DeviceMetrics{
		Total:   len(devices),
		ByClass: make(map[string]int),
		Lights:  len(s.bridge.Lights()),
	}
	for _, d := range devices {
		metrics.Devices.ByClass[className(d.Type)]++
		if d.On() {
			metrics.Devices.Active++
		}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}

// className names a device class for metrics output.
func className(class int) string {
	switch class {
	case avews.ClassLighting:
		return "lighting"
	case avews.ClassAntitheftArea:
		return "antitheft_area"
	case avews.ClassAntitheftSensor:
		return "antitheft_sensor"
	case avews.ClassDynamicSensor:
		return "dynamic_sensor"
	default:
		return "other"
	}
}
