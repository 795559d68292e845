package avews

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// sinkCall records one StateSink invocation.
type sinkCall struct {
	Method      string
	ID          string
	Label       string
	DeviceClass string
	On          bool
}

// mockSink implements StateSink for testing.
type mockSink struct {
	mu    sync.Mutex
	calls []sinkCall
	err   error
}

func (m *mockSink) CreateBinarySensor(_ context.Context, externalID, label, deviceClass string, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sinkCall{Method: "create", ID: externalID, Label: label, DeviceClass: deviceClass, On: on})
	return m.err
}

func (m *mockSink) UpdateBinarySensor(_ context.Context, externalID string, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sinkCall{Method: "update", ID: externalID, On: on})
	return m.err
}

func (m *mockSink) PublishSwitchState(_ context.Context, uniqueID string, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sinkCall{Method: "switch", ID: uniqueID, On: on})
	return m.err
}

func (m *mockSink) getCalls() []sinkCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]sinkCall, len(m.calls))
	copy(result, m.calls)
	return result
}

func (m *mockSink) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// mockSender implements Sender for testing.
type mockSender struct {
	mu     sync.Mutex
	frames []Frame
	err    error
}

func (m *mockSender) Send(f Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.frames = append(m.frames, f)
	return nil
}

func (m *mockSender) sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.frames))
	for _, f := range m.frames {
		out = append(out, f.String())
	}
	return out
}

// recordingLogger captures log calls.
type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLogger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+": "+msg)
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.log("DEBUG", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.log("INFO", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.log("WARN", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.log("ERROR", msg) }

func (l *recordingLogger) has(entry string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e == entry {
			return true
		}
	}
	return false
}

var errConnClosed = errors.New("fake connection closed")

// fakeConn implements Conn over channels.
type fakeConn struct {
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once

	mu      sync.Mutex
	written []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case <-c.closed:
		return nil, errConnClosed
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}

	msgs, _ := Decode(data)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		c.written = append(c.written, Frame{Command: m.Name, Parameters: m.Parameters}.String())
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// drop simulates the controller hanging up.
func (c *fakeConn) drop() {
	//nolint:errcheck // fake close never fails
	c.Close()
}

func (c *fakeConn) getWritten() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]string, len(c.written))
	copy(result, c.written)
	return result
}

func (c *fakeConn) count(frame string) int {
	n := 0
	for _, w := range c.getWritten() {
		if w == frame {
			n++
		}
	}
	return n
}

// fakeDialer hands out fakeConns and publishes each one on conns.
type fakeDialer struct {
	conns chan *fakeConn

	mu       sync.Mutex
	failNext int
	dials    int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 32)}
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	if d.failNext > 0 {
		d.failNext--
		d.mu.Unlock()
		return nil, fmt.Errorf("connection refused")
	}
	d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := newFakeConn()
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// nextConn waits for the dialer to hand out a connection.
func (d *fakeDialer) nextConn(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a connection")
		return nil
	}
}

// handlerFunc adapts a function to MessageHandler.
type handlerFunc func(ctx context.Context, msg Message)

func (f handlerFunc) Handle(ctx context.Context, msg Message) { f(ctx, msg) }

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []mockSubscription
	connected     bool
	handlers      map[string]func(topic string, payload []byte)
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type mockSubscription struct {
	Topic string
	QoS   byte
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, mockSubscription{Topic: topic, QoS: qos})
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]mockPublish, len(m.published))
	copy(result, m.published)
	return result
}

func (m *MockMQTTClient) GetSubscriptions() []mockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscriptions
}

// SimulateMessage delivers a message to the handler subscribed on pattern.
func (m *MockMQTTClient) SimulateMessage(pattern, topic string, payload []byte) {
	m.mu.Lock()
	handler, ok := m.handlers[pattern]
	m.mu.Unlock()
	if ok {
		handler(topic, payload)
	}
}
