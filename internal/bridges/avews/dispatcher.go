package avews

import (
	"context"
	"fmt"
	"strconv"
)

// Positions inside an "upd X S" parameter list. The controller places the
// sensor id third and the state fifth; the fourth field is auxiliary data.
const (
	updSensorIDIndex  = 2
	updAuxiliaryIndex = 3
	updStateIndex     = 4
	updSensorMinArgs  = 5
)

// Dispatcher routes decoded controller messages to registry updates,
// state pushes and protocol replies.
//
// Messages are expected one at a time from the receive loop; the registry
// carries its own locking for concurrent readers.
type Dispatcher struct {
	registry *Registry
	sink     StateSink
	sender   Sender
	lights   LightObserver
	logger   Logger
}

// DispatcherOptions holds the collaborators of a dispatcher.
type DispatcherOptions struct {
	Registry *Registry
	Sink     StateSink
	Sender   Sender

	// Lights is optional and receives every lighting status record.
	Lights LightObserver

	// Logger is optional.
	Logger Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts DispatcherOptions) (*Dispatcher, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("state sink is required")
	}
	if opts.Sender == nil {
		return nil, fmt.Errorf("sender is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	return &Dispatcher{
		registry: opts.Registry,
		sink:     opts.Sink,
		sender:   opts.Sender,
		lights:   opts.Lights,
		logger:   logger,
	}, nil
}

// Handle processes one inbound message. A panic while handling is recovered
// and logged so the receive loop keeps going.
func (d *Dispatcher) Handle(ctx context.Context, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while handling message",
				"command", msg.Name,
				"panic", fmt.Sprint(r))
		}
	}()

	switch msg.Command() {
	case CommandPing:
		if err := d.sender.Send(PongFrame()); err != nil {
			d.logger.Debug("pong not sent", "error", err)
		}
	case CommandPong:
		// keepalive reply, nothing to do
	case CommandAck:
		d.logger.Debug("controller acknowledged command", "command", msg.Param(0))
	case CommandGSF:
		d.handleStatus(ctx, msg)
	case CommandUPD:
		d.handleUpdate(ctx, msg)
	case CommandCLD, CommandNET:
		d.logger.Debug("accepted notification", "command", msg.Name, "parameters", msg.Parameters)
	default:
		d.logger.Warn("unknown command",
			"command", msg.Name,
			"parameters", msg.Parameters,
			"records", msg.Records)
	}
}

// handleStatus processes a gsf reply for one device class.
func (d *Dispatcher) handleStatus(ctx context.Context, msg Message) {
	class, err := strconv.Atoi(msg.Param(0))
	if err != nil {
		d.logger.Warn("status reply without class", "parameters", msg.Parameters)
		return
	}

	switch class {
	case ClassAntitheftArea, ClassAntitheftSensor:
		d.handleAntitheftStatus(ctx, class, msg.Records)
	case ClassLighting:
		d.handleLightingStatus(ctx, msg.Records)
	default:
		d.logger.Debug("status reply for unhandled class", "class", class, "records", len(msg.Records))
	}
}

// handleAntitheftStatus pushes only records whose value changed.
// Unknown devices are ignored.
func (d *Dispatcher) handleAntitheftStatus(ctx context.Context, class int, records [][]string) {
	for _, rec := range records {
		id, status, err := parseStatusRecord(rec)
		if err != nil {
			d.logger.Warn("skipping status record", "class", class, "record", rec, "error", err)
			continue
		}

		dev, outcome := d.registry.UpsertValue(class, id, status, nil)
		if outcome != OutcomeUpdated {
			continue
		}

		d.logger.Info("antitheft sensor changed",
			"external_id", dev.ExternalID,
			"label", dev.Label,
			"value", dev.Value)

		if err := d.sink.UpdateBinarySensor(ctx, dev.ExternalID, dev.On()); err != nil {
			d.logger.Warn("state push failed", "external_id", dev.ExternalID, "error", err)
		}
	}
}

// handleLightingStatus pushes every record regardless of prior state.
func (d *Dispatcher) handleLightingStatus(ctx context.Context, records [][]string) {
	for _, rec := range records {
		id, status, err := parseStatusRecord(rec)
		if err != nil {
			d.logger.Warn("skipping status record", "class", ClassLighting, "record", rec, "error", err)
			continue
		}

		on := status != 0
		if d.lights != nil {
			d.lights.ObserveLight(id, on)
		}

		uniqueID := LightUniqueID(id)
		if err := d.sink.PublishSwitchState(ctx, uniqueID, on); err != nil {
			d.logger.Warn("switch push failed", "unique_id", uniqueID, "error", err)
		}
	}
}

// handleUpdate processes an upd event. Only antitheft sensor events change
// state; the other variants are recognised and logged.
func (d *Dispatcher) handleUpdate(ctx context.Context, msg Message) {
	kind := ParseUpdateKind(msg.Parameters)
	if kind != UpdateAntitheftSensor {
		d.logger.Debug("update event ignored", "kind", kind.String(), "parameters", msg.Parameters)
		return
	}

	if len(msg.Parameters) < updSensorMinArgs {
		d.logger.Warn("antitheft sensor event too short", "parameters", msg.Parameters)
		return
	}

	id, err := strconv.Atoi(msg.Parameters[updSensorIDIndex])
	if err != nil {
		d.logger.Warn("antitheft sensor event with bad id", "parameters", msg.Parameters)
		return
	}
	state, err := strconv.Atoi(msg.Parameters[updStateIndex])
	if err != nil {
		d.logger.Warn("antitheft sensor event with bad state", "parameters", msg.Parameters)
		return
	}

	dev, outcome := d.registry.UpsertValue(ClassDynamicSensor, id, state, DynamicSensorDefaults(id))

	d.logger.Debug("antitheft sensor event",
		"sensor_id", id,
		"auxiliary", msg.Parameters[updAuxiliaryIndex],
		"state", state,
		"outcome", outcome.String())

	switch outcome {
	case OutcomeCreated:
		d.logger.Info("discovered antitheft sensor", "external_id", dev.ExternalID, "value", dev.Value)
		if err := d.sink.CreateBinarySensor(ctx, dev.ExternalID, dev.Label, SensorDeviceClass, dev.On()); err != nil {
			d.logger.Warn("sensor creation failed", "external_id", dev.ExternalID, "error", err)
		}
	case OutcomeUpdated:
		if err := d.sink.UpdateBinarySensor(ctx, dev.ExternalID, dev.On()); err != nil {
			d.logger.Warn("state push failed", "external_id", dev.ExternalID, "error", err)
		}
	}
}

// parseStatusRecord reads the (id, status) pair of a gsf record.
func parseStatusRecord(rec []string) (id, status int, err error) {
	if len(rec) < 2 {
		return 0, 0, fmt.Errorf("%w: want 2 fields, got %d", ErrInvalidRecord, len(rec))
	}
	id, err = strconv.Atoi(rec[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: id %q", ErrInvalidRecord, rec[0])
	}
	status, err = strconv.Atoi(rec[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: status %q", ErrInvalidRecord, rec[1])
	}
	return id, status, nil
}
