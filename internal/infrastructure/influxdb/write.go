package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the bridge.
const (
	// MeasurementState holds one point per state pushed to the hub.
	MeasurementState = "avews_state"

	// MeasurementLink holds periodic controller link counters.
	MeasurementLink = "avews_link"
)

// StatePoint builds the point recorded for one state push.
//
// Parameters:
//   - kind: Hub entity kind ("binary_sensor" or "switch")
//   - id: Hub identifier (external id or switch unique id)
//   - on: The pushed state
//   - ts: When the state was observed
func StatePoint(kind, id string, on bool, ts time.Time) *write.Point {
	value := 0
	if on {
		value = 1
	}

	return write.NewPoint(
		MeasurementState,
		map[string]string{
			"kind": kind,
			"id":   id,
		},
		map[string]interface{}{
			"on":    on,
			"value": value,
		},
		ts,
	)
}

// RecordState writes a state push to InfluxDB.
//
// The write is non-blocking; data is batched and sent asynchronously, so
// the only error returned here is ErrNotConnected.
//
// Example:
//
//	client.RecordState(ctx, "binary_sensor", "at_pt_garage", true, time.Now())
//	client.RecordState(ctx, "switch", "light_4", false, time.Now())
func (c *Client) RecordState(_ context.Context, kind, id string, on bool, ts time.Time) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.writeAPI.WritePoint(StatePoint(kind, id, on, ts))
	return nil
}

// WriteLinkStats records a snapshot of controller link counters.
//
// Parameters:
//   - bridgeID: Hardware identifier of the bridge instance
//   - connected: Whether the controller link is up
//   - fields: Counter values keyed by name (e.g. "frames_rx")
func (c *Client) WriteLinkStats(bridgeID string, connected bool, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	all := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		all[k] = v
	}
	all["connected"] = connected

	point := write.NewPoint(
		MeasurementLink,
		map[string]string{"bridge": bridgeID},
		all,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
