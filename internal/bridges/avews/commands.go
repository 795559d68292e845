package avews

import (
	"strconv"
	"strings"
)

// Command is the closed set of inbound commands the bridge understands.
type Command int

const (
	// CommandUnknown covers every token outside the handled vocabulary.
	CommandUnknown Command = iota
	CommandPing
	CommandPong
	CommandAck
	CommandGSF
	CommandUPD
	CommandCLD
	CommandNET
)

var commandNames = map[string]Command{
	"ping": CommandPing,
	"pong": CommandPong,
	"ack":  CommandAck,
	"gsf":  CommandGSF,
	"upd":  CommandUPD,
	"cld":  CommandCLD,
	"net":  CommandNET,
}

// ParseCommand maps an inbound command token to its kind.
// Matching is exact; the controller always sends lowercase tokens.
func ParseCommand(name string) Command {
	if c, ok := commandNames[name]; ok {
		return c
	}
	return CommandUnknown
}

// String returns the wire token, or "unknown".
func (c Command) String() string {
	for name, cmd := range commandNames {
		if cmd == c {
			return name
		}
	}
	return "unknown"
}

// Outbound command tokens.
const (
	OutPong            = "PONG"
	OutStatusRequest   = "GSF"
	OutToggleLight     = "EBI"
	OutSubscribeEvents = "SU3"
	OutForceRefresh    = "WSF"
)

// toggleAction is the EBI action code for a light toggle.
const toggleAction = "10"

// Device classes as numbered by the controller.
const (
	ClassLighting        = 1
	ClassAntitheftArea   = 7
	ClassAntitheftSensor = 12

	// ClassDynamicSensor is a reserved class for sensors discovered through
	// upd events. The controller never uses it.
	ClassDynamicSensor = 999
)

// Frame is an outbound command ready to be encoded.
type Frame struct {
	Command    string
	Parameters []string
}

// Bytes encodes the frame for the wire.
func (f Frame) Bytes() []byte {
	return Encode(f.Command, f.Parameters...)
}

// String renders the frame for logs.
func (f Frame) String() string {
	if len(f.Parameters) == 0 {
		return f.Command
	}
	return f.Command + " " + strings.Join(f.Parameters, ",")
}

// PongFrame answers a controller ping.
func PongFrame() Frame {
	return Frame{Command: OutPong}
}

// StatusRequestFrame asks for the full status of a device class (GSF).
func StatusRequestFrame(class int) Frame {
	return Frame{Command: OutStatusRequest, Parameters: []string{strconv.Itoa(class)}}
}

// ToggleLightFrame toggles a light (EBI <id>,10).
func ToggleLightFrame(id int) Frame {
	return Frame{Command: OutToggleLight, Parameters: []string{strconv.Itoa(id), toggleAction}}
}

// SubscribeEventsFrame switches the controller to event subscription mode (SU3).
func SubscribeEventsFrame() Frame {
	return Frame{Command: OutSubscribeEvents}
}

// ForceRefreshFrame forces a refresh of a device class (WSF).
func ForceRefreshFrame(class int) Frame {
	return Frame{Command: OutForceRefresh, Parameters: []string{strconv.Itoa(class)}}
}

// UpdateKind classifies the sub-variants of an upd event.
type UpdateKind int

const (
	UpdateUnknown UpdateKind = iota
	UpdateAntitheftSensor
	UpdateAntitheftArea
	UpdateAntitheftUnit
	UpdateThermostat
	UpdateGUIRefresh
)

// String returns a log-friendly name.
func (k UpdateKind) String() string {
	switch k {
	case UpdateAntitheftSensor:
		return "antitheft_sensor"
	case UpdateAntitheftArea:
		return "antitheft_area"
	case UpdateAntitheftUnit:
		return "antitheft_unit"
	case UpdateThermostat:
		return "thermostat"
	case UpdateGUIRefresh:
		return "gui_refresh"
	default:
		return "unknown"
	}
}

// ParseUpdateKind inspects the leading upd parameters.
func ParseUpdateKind(params []string) UpdateKind {
	if len(params) == 0 {
		return UpdateUnknown
	}

	switch head := params[0]; {
	case head == "X":
		if len(params) < 2 {
			return UpdateUnknown
		}
		switch params[1] {
		case "S":
			return UpdateAntitheftSensor
		case "A":
			return UpdateAntitheftArea
		case "U":
			return UpdateAntitheftUnit
		}
	case strings.HasPrefix(head, "WT"), head == "TT", head == "TP", head == "TR":
		return UpdateThermostat
	case head == "GUI":
		return UpdateGUIRefresh
	}

	return UpdateUnknown
}
