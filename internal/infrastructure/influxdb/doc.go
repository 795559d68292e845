// Package influxdb provides optional InfluxDB recording for the AVE bridge.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring.
//
// # Purpose
//
// Every state the bridge pushes to Home Assistant can be recorded as an
// avews_state point (tags kind and id, fields on and value), giving a
// time series of sensor trips and light switching. Controller link
// counters are written periodically as avews_link points.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "home",
//	    Bucket:  "avews",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.RecordState(ctx, "binary_sensor", "at_pt_garage", true, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Write errors are delivered asynchronously through SetOnError. Connection
// and health check errors are returned directly.
package influxdb
