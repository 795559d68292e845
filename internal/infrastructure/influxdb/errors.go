package influxdb

import "errors"

// Sentinels returned by the state recorder; match with errors.Is.
// Batch write failures are asynchronous and reach SetOnError instead.
var (
	// ErrDisabled is returned by Connect when the recorder is switched off.
	ErrDisabled = errors.New("influxdb: recorder disabled in configuration")

	// ErrConnectionFailed is returned by Connect when the server cannot be
	// pinged or reports itself unhealthy.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by RecordState and HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: recorder not connected")
)
