package avews

import (
	"reflect"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  Command
	}{
		{"ping", CommandPing},
		{"pong", CommandPong},
		{"ack", CommandAck},
		{"gsf", CommandGSF},
		{"upd", CommandUPD},
		{"cld", CommandCLD},
		{"net", CommandNET},
		{"GSF", CommandUnknown},
		{"xyz", CommandUnknown},
		{"", CommandUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseCommand(tt.input); got != tt.want {
				t.Errorf("ParseCommand(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCommand_String(t *testing.T) {
	if got := CommandGSF.String(); got != "gsf" {
		t.Errorf("CommandGSF.String() = %q, want gsf", got)
	}
	if got := CommandUnknown.String(); got != "unknown" {
		t.Errorf("CommandUnknown.String() = %q, want unknown", got)
	}
}

func TestOutboundFrames(t *testing.T) {
	tests := []struct {
		name       string
		frame      Frame
		wantCmd    string
		wantParams []string
		wantString string
	}{
		{"pong", PongFrame(), "PONG", nil, "PONG"},
		{"status lighting", StatusRequestFrame(ClassLighting), "GSF", []string{"1"}, "GSF 1"},
		{"status antitheft", StatusRequestFrame(ClassAntitheftSensor), "GSF", []string{"12"}, "GSF 12"},
		{"toggle", ToggleLightFrame(7), "EBI", []string{"7", "10"}, "EBI 7,10"},
		{"subscribe", SubscribeEventsFrame(), "SU3", nil, "SU3"},
		{"refresh", ForceRefreshFrame(ClassAntitheftSensor), "WSF", []string{"12"}, "WSF 12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.frame.Command != tt.wantCmd {
				t.Errorf("Command = %q, want %q", tt.frame.Command, tt.wantCmd)
			}
			if !reflect.DeepEqual(tt.frame.Parameters, tt.wantParams) {
				t.Errorf("Parameters = %v, want %v", tt.frame.Parameters, tt.wantParams)
			}
			if got := tt.frame.String(); got != tt.wantString {
				t.Errorf("String() = %q, want %q", got, tt.wantString)
			}
			if got, want := string(tt.frame.Bytes()), string(Encode(tt.wantCmd, tt.wantParams...)); got != want {
				t.Errorf("Bytes() = %q, want %q", got, want)
			}
		})
	}
}

func TestParseUpdateKind(t *testing.T) {
	tests := []struct {
		name   string
		params []string
		want   UpdateKind
	}{
		{"antitheft sensor", []string{"X", "S", "4", "0", "1"}, UpdateAntitheftSensor},
		{"antitheft area", []string{"X", "A", "1", "2"}, UpdateAntitheftArea},
		{"antitheft unit", []string{"X", "U", "1"}, UpdateAntitheftUnit},
		{"antitheft other", []string{"X", "Q"}, UpdateUnknown},
		{"antitheft short", []string{"X"}, UpdateUnknown},
		{"thermostat WT", []string{"WTO", "3", "215"}, UpdateThermostat},
		{"thermostat TT", []string{"TT", "3", "205"}, UpdateThermostat},
		{"thermostat TP", []string{"TP", "3", "1"}, UpdateThermostat},
		{"thermostat TR", []string{"TR", "3", "0"}, UpdateThermostat},
		{"gui refresh", []string{"GUI"}, UpdateGUIRefresh},
		{"empty", nil, UpdateUnknown},
		{"other", []string{"D", "1"}, UpdateUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseUpdateKind(tt.params); got != tt.want {
				t.Errorf("ParseUpdateKind(%v) = %v, want %v", tt.params, got, tt.want)
			}
		})
	}
}
