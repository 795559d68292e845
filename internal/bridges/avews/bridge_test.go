package avews

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

const (
	testCommandTopic = "avews/test-hw/switch/+/set"
	testHealthTopic  = "avews/test-hw/health"
)

type bridgeFixture struct {
	bridge *Bridge
	sink   *mockSink
	mqtt   *MockMQTTClient
	dialer *fakeDialer
}

func newBridgeFixture(t *testing.T, withMQTT bool) *bridgeFixture {
	t.Helper()

	f := &bridgeFixture{
		sink:   &mockSink{},
		dialer: newFakeDialer(),
	}

	opts := BridgeOptions{
		BridgeID: "test-hw",
		Version:  "1.0.0-test",
		Devices:  testDevices(),
		Sink:     f.sink,
		Supervisor: SupervisorConfig{
			URL:            "ws://controller.test:14001",
			Dialer:         f.dialer,
			ReconnectDelay: 10 * time.Millisecond,
		},
		CommandTopic:   testCommandTopic,
		HealthTopic:    testHealthTopic,
		HealthInterval: time.Hour,
	}
	if withMQTT {
		f.mqtt = NewMockMQTTClient()
		opts.MQTTClient = f.mqtt
	}

	b, err := NewBridge(opts)
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	f.bridge = b
	t.Cleanup(b.Stop)
	return f
}

// startAndConnect starts the bridge and waits for the controller link.
func (f *bridgeFixture) startAndConnect(t *testing.T) *fakeConn {
	t.Helper()
	if err := f.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	conn := f.dialer.nextConn(t)
	waitFor(t, "controller link", f.bridge.IsConnected)
	return conn
}

func TestNewBridge(t *testing.T) {
	f := newBridgeFixture(t, true)

	if f.bridge.health == nil {
		t.Error("NewBridge() did not create health reporter")
	}
	if got := len(f.bridge.Devices()); got != 3 {
		t.Errorf("Devices() len = %d, want 3", got)
	}
}

func TestNewBridge_WithoutMQTT(t *testing.T) {
	f := newBridgeFixture(t, false)

	if f.bridge.health != nil {
		t.Error("health reporter created without an MQTT client")
	}
}

func TestNewBridge_Errors(t *testing.T) {
	base := func() BridgeOptions {
		return BridgeOptions{
			Sink:       &mockSink{},
			Supervisor: SupervisorConfig{URL: "ws://x:14001", Dialer: newFakeDialer()},
		}
	}

	tests := []struct {
		name   string
		mutate func(*BridgeOptions)
		is     error
	}{
		{"missing sink", func(o *BridgeOptions) { o.Sink = nil }, nil},
		{"missing url", func(o *BridgeOptions) { o.Supervisor.URL = "" }, nil},
		{"duplicate devices", func(o *BridgeOptions) {
			o.Devices = []Device{{Type: 12, ID: 1}, {Type: 12, ID: 1}}
		}, ErrDuplicateDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := base()
			tt.mutate(&opts)

			_, err := NewBridge(opts)
			if err == nil {
				t.Fatal("NewBridge() expected error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("NewBridge() error = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestBridge_StartAnnouncesSensors(t *testing.T) {
	f := newBridgeFixture(t, true)
	f.startAndConnect(t)

	want := []sinkCall{
		{Method: "create", ID: "at_area_2", Label: "Area 2", DeviceClass: "motion"},
		{Method: "create", ID: "at_pt_garage", Label: "Perimetrale Garage", DeviceClass: "motion"},
		{Method: "create", ID: "at_pt_rustico", Label: "Perimetrale rustico", DeviceClass: "motion"},
	}
	if got := f.sink.getCalls(); !reflect.DeepEqual(got, want) {
		t.Errorf("announcements = %+v, want %+v", got, want)
	}

	subs := f.mqtt.GetSubscriptions()
	if len(subs) != 1 || subs[0].Topic != testCommandTopic {
		t.Errorf("subscriptions = %+v, want %s", subs, testCommandTopic)
	}
}

func TestBridge_AnnouncementFailureIsNotFatal(t *testing.T) {
	f := newBridgeFixture(t, false)
	f.sink.err = errors.New("hub unavailable")

	if err := f.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v, want nil despite failed announcements", err)
	}
	if got := len(f.sink.getCalls()); got != 3 {
		t.Errorf("announcement attempts = %d, want 3", got)
	}
}

func TestBridge_PublishesStartingAndStopping(t *testing.T) {
	f := newBridgeFixture(t, true)
	f.startAndConnect(t)
	f.bridge.Stop()

	var statuses []HealthStatus
	for _, p := range f.mqtt.GetPublished() {
		if p.Topic != testHealthTopic {
			continue
		}
		if !p.Retained || p.QoS != 1 {
			t.Errorf("health publish qos=%d retained=%v, want 1/true", p.QoS, p.Retained)
		}
		var msg HealthMessage
		if err := json.Unmarshal(p.Payload, &msg); err != nil {
			t.Fatalf("health payload: %v", err)
		}
		statuses = append(statuses, msg.Status)
	}

	want := []HealthStatus{HealthStarting, HealthStopping}
	if !reflect.DeepEqual(statuses, want) {
		t.Errorf("health statuses = %v, want %v", statuses, want)
	}
}

func TestBridge_SwitchCommandToggle(t *testing.T) {
	f := newBridgeFixture(t, true)
	conn := f.startAndConnect(t)

	f.mqtt.SimulateMessage(testCommandTopic, "avews/test-hw/switch/light_4/set", []byte("TOGGLE"))

	if got := conn.getWritten(); !reflect.DeepEqual(got, []string{"EBI 4,10"}) {
		t.Errorf("written = %v, want [EBI 4,10]", got)
	}
}

func TestBridge_SwitchCommandIgnoresBadInput(t *testing.T) {
	f := newBridgeFixture(t, true)
	conn := f.startAndConnect(t)

	f.mqtt.SimulateMessage(testCommandTopic, "avews/test-hw/switch/light_4/set", []byte("DIM"))
	f.mqtt.SimulateMessage(testCommandTopic, "avews/test-hw/switch/fan_4/set", []byte("TOGGLE"))
	f.mqtt.SimulateMessage(testCommandTopic, "avews/test-hw/switch/light_4/state", []byte("TOGGLE"))

	if got := conn.getWritten(); len(got) != 0 {
		t.Errorf("written = %v, want nothing", got)
	}
}

func TestBridge_SetLightUnknownRequestsStatus(t *testing.T) {
	f := newBridgeFixture(t, false)
	conn := f.startAndConnect(t)

	err := f.bridge.SetLight(6, LightCommandOn)
	if !errors.Is(err, ErrUnknownLight) {
		t.Errorf("SetLight() error = %v, want ErrUnknownLight", err)
	}
	if got := conn.getWritten(); !reflect.DeepEqual(got, []string{"GSF 1"}) {
		t.Errorf("written = %v, want [GSF 1]", got)
	}
}

func TestBridge_SetLightUsesReportedState(t *testing.T) {
	f := newBridgeFixture(t, false)
	conn := f.startAndConnect(t)

	conn.inbound <- []byte(frame("gsf\x1d1\x1e4\x1d0\x1e5\x1d1"))
	waitFor(t, "lighting status", func() bool { return len(f.bridge.Lights()) == 2 })

	tests := []struct {
		name string
		id   int
		cmd  LightCommand
		want []string
	}{
		{"on when off toggles", 4, LightCommandOn, []string{"EBI 4,10"}},
		{"off when off is a no-op", 4, LightCommandOff, nil},
		{"on when on is a no-op", 5, LightCommandOn, nil},
		{"off when on toggles", 5, LightCommandOff, []string{"EBI 5,10"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(conn.getWritten())
			if err := f.bridge.SetLight(tt.id, tt.cmd); err != nil {
				t.Fatalf("SetLight() error = %v", err)
			}
			got := conn.getWritten()[before:]
			if len(got) == 0 {
				got = nil
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("written = %v, want %v", got, tt.want)
			}
		})
	}

	// Switch state reached the hub for both lights.
	var switches []string
	for _, c := range f.sink.getCalls() {
		if c.Method == "switch" {
			switches = append(switches, c.ID)
		}
	}
	if !reflect.DeepEqual(switches, []string{"light_4", "light_5"}) {
		t.Errorf("switch pushes = %v, want [light_4 light_5]", switches)
	}
}

func TestBridge_CommandsWhileDisconnected(t *testing.T) {
	f := newBridgeFixture(t, false)

	if err := f.bridge.ToggleLight(1); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ToggleLight() error = %v, want ErrNotConnected", err)
	}
	if err := f.bridge.RequestStatus(ClassAntitheftSensor); !errors.Is(err, ErrNotConnected) {
		t.Errorf("RequestStatus() error = %v, want ErrNotConnected", err)
	}
}

func TestBridge_DeviceLookup(t *testing.T) {
	f := newBridgeFixture(t, false)
	conn := f.startAndConnect(t)

	conn.inbound <- []byte(frame("upd\x1dX\x1dS\x1d21\x1d0\x1d1"))
	waitFor(t, "dynamic sensor", func() bool {
		_, ok := f.bridge.Device("at_sensor_21")
		return ok
	})

	d, _ := f.bridge.Device("at_sensor_21")
	if d.Type != ClassDynamicSensor || !d.On() {
		t.Errorf("Device() = %+v, want dynamic sensor that is on", d)
	}
	if _, ok := f.bridge.Device("nope"); ok {
		t.Error("Device(nope) found a device")
	}
}

func TestBridge_StopIsIdempotent(t *testing.T) {
	f := newBridgeFixture(t, true)
	f.startAndConnect(t)

	f.bridge.Stop()
	f.bridge.Stop()

	if f.bridge.IsConnected() {
		t.Error("IsConnected() = true after Stop")
	}
}
