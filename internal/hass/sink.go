package hass

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/avews-bridge/internal/bridges/avews"
)

// Entity kinds passed to recorders.
const (
	KindBinarySensor = "binary_sensor"
	KindSwitch       = "switch"
)

// BinarySensorWriter creates and updates binary sensors on the hub.
type BinarySensorWriter interface {
	CreateBinarySensor(ctx context.Context, externalID, label, deviceClass string, on bool) error
	UpdateBinarySensor(ctx context.Context, externalID string, on bool) error
}

// SwitchWriter pushes switch states to the hub.
type SwitchWriter interface {
	PublishSwitchState(ctx context.Context, uniqueID string, on bool) error
}

// SensorMirror republishes binary sensor states on a secondary transport.
type SensorMirror interface {
	MirrorBinarySensor(externalID string, on bool) error
}

// Recorder receives every state pushed to the hub. Implemented by the
// InfluxDB client and the SQLite journal.
type Recorder interface {
	RecordState(ctx context.Context, kind, id string, on bool, at time.Time) error
}

// Logger is the subset of the structured logger used by Sink.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...any) {}

// SinkOptions holds the collaborators of a Sink.
type SinkOptions struct {
	// Sensors is required.
	Sensors BinarySensorWriter

	// Switches is required.
	Switches SwitchWriter

	// Mirror is optional.
	Mirror SensorMirror

	// Recorders are optional; their failures are only logged.
	Recorders []Recorder

	Logger Logger
}

// Sink is the bridge's StateSink: it pushes to the hub, then mirrors and
// records the same state. Only the hub push decides the returned error.
type Sink struct {
	sensors   BinarySensorWriter
	switches  SwitchWriter
	mirror    SensorMirror
	recorders []Recorder
	logger    Logger
	now       func() time.Time
}

var _ avews.StateSink = (*Sink)(nil)

// NewSink creates a fan-out sink.
func NewSink(opts SinkOptions) (*Sink, error) {
	if opts.Sensors == nil {
		return nil, errors.New("hass: binary sensor writer is required")
	}
	if opts.Switches == nil {
		return nil, errors.New("hass: switch writer is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	recorders := make([]Recorder, 0, len(opts.Recorders))
	for _, r := range opts.Recorders {
		if r != nil {
			recorders = append(recorders, r)
		}
	}

	return &Sink{
		sensors:   opts.Sensors,
		switches:  opts.Switches,
		mirror:    opts.Mirror,
		recorders: recorders,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// CreateBinarySensor announces a sensor with its initial state.
func (s *Sink) CreateBinarySensor(ctx context.Context, externalID, label, deviceClass string, on bool) error {
	err := s.sensors.CreateBinarySensor(ctx, externalID, label, deviceClass, on)
	s.afterSensor(ctx, externalID, on)
	return err
}

// UpdateBinarySensor pushes a new sensor state.
func (s *Sink) UpdateBinarySensor(ctx context.Context, externalID string, on bool) error {
	err := s.sensors.UpdateBinarySensor(ctx, externalID, on)
	s.afterSensor(ctx, externalID, on)
	return err
}

// PublishSwitchState pushes a light state.
func (s *Sink) PublishSwitchState(ctx context.Context, uniqueID string, on bool) error {
	err := s.switches.PublishSwitchState(ctx, uniqueID, on)
	s.record(ctx, KindSwitch, uniqueID, on)
	return err
}

func (s *Sink) afterSensor(ctx context.Context, externalID string, on bool) {
	if s.mirror != nil {
		if err := s.mirror.MirrorBinarySensor(externalID, on); err != nil {
			s.logger.Warn("sensor mirror failed", "external_id", externalID, "error", err)
		}
	}
	s.record(ctx, KindBinarySensor, externalID, on)
}

func (s *Sink) record(ctx context.Context, kind, id string, on bool) {
	at := s.now()
	for _, r := range s.recorders {
		if err := r.RecordState(ctx, kind, id, on, at); err != nil {
			s.logger.Warn("state recorder failed", "kind", kind, "id", id, "error", err)
		}
	}
}
