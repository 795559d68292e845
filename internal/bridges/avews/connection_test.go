package avews

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

type supervisorRun struct {
	sup    *Supervisor
	dialer *fakeDialer
	cancel context.CancelFunc
	done   chan struct{}
}

func startSupervisor(t *testing.T, cfg SupervisorConfig, h MessageHandler) *supervisorRun {
	t.Helper()

	dialer := newFakeDialer()
	cfg.URL = "ws://controller.test:14001"
	cfg.Dialer = dialer
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 10 * time.Millisecond
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 20 * time.Millisecond
	}

	sup, err := NewSupervisor(cfg)
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}
	if h == nil {
		h = handlerFunc(func(context.Context, Message) {})
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &supervisorRun{sup: sup, dialer: dialer, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(r.done)
		sup.Run(ctx, h)
	}()

	t.Cleanup(r.stop)
	return r
}

func (r *supervisorRun) stop() {
	r.cancel()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		panic("supervisor did not stop")
	}
}

func TestNewSupervisor_Defaults(t *testing.T) {
	sup, err := NewSupervisor(SupervisorConfig{URL: "ws://x:14001"})
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}
	if sup.cfg.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("ReconnectDelay = %v, want %v", sup.cfg.ReconnectDelay, DefaultReconnectDelay)
	}
	if sup.cfg.PollInterval != DefaultPollInterval {
		t.Errorf("PollInterval = %v, want %v", sup.cfg.PollInterval, DefaultPollInterval)
	}
	if _, ok := sup.dialer.(*WebSocketDialer); !ok {
		t.Errorf("dialer = %T, want *WebSocketDialer", sup.dialer)
	}
	if sup.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", sup.State())
	}

	if _, err := NewSupervisor(SupervisorConfig{}); err == nil {
		t.Error("NewSupervisor() expected error without URL")
	}
}

func TestSupervisor_SendWhenDisconnected(t *testing.T) {
	logger := &recordingLogger{}
	sup, err := NewSupervisor(SupervisorConfig{URL: "ws://x:14001", Logger: logger})
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}

	err = sup.Send(StatusRequestFrame(ClassLighting))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
	if !logger.has("WARN: cannot send, controller not connected") {
		t.Error("expected a warning for the dropped frame")
	}
	if sup.Stats().FramesTx != 0 {
		t.Error("FramesTx incremented for a dropped frame")
	}
}

func TestSupervisor_ConnectSendsStartupFrames(t *testing.T) {
	r := startSupervisor(t, SupervisorConfig{
		SyncLightsOnStartup: true,
		SubscribeToEvents:   true,
	}, nil)

	conn := r.dialer.nextConn(t)
	waitFor(t, "startup frames", func() bool { return len(conn.getWritten()) >= 4 })

	want := []string{"GSF 1", "SU3", "WSF 1", "WSF 12"}
	if got := conn.getWritten(); !reflect.DeepEqual(got, want) {
		t.Errorf("written = %v, want %v", got, want)
	}
	if !r.sup.IsConnected() {
		t.Error("IsConnected() = false after connect")
	}
}

func TestSupervisor_NoOptionalFramesWhenDisabled(t *testing.T) {
	r := startSupervisor(t, SupervisorConfig{}, nil)

	conn := r.dialer.nextConn(t)
	waitFor(t, "connected", r.sup.IsConnected)
	time.Sleep(50 * time.Millisecond)

	if got := conn.getWritten(); len(got) != 0 {
		t.Errorf("written = %v, want nothing", got)
	}
}

func TestSupervisor_LightSyncOncePerProcess(t *testing.T) {
	r := startSupervisor(t, SupervisorConfig{SyncLightsOnStartup: true}, nil)

	var conns []*fakeConn
	for i := 0; i < 3; i++ {
		conn := r.dialer.nextConn(t)
		waitFor(t, "connected", r.sup.IsConnected)
		conns = append(conns, conn)
		conn.drop()
	}

	total := 0
	for _, c := range conns {
		total += c.count("GSF 1")
	}
	if total != 1 {
		t.Errorf("GSF 1 sent %d times across reconnects, want exactly 1", total)
	}
	if conns[0].count("GSF 1") != 1 {
		t.Error("light sync was not sent on the first connection")
	}
}

func TestSupervisor_AtMostOnePollerAcrossReconnects(t *testing.T) {
	r := startSupervisor(t, SupervisorConfig{PollAntitheft: true}, nil)

	var peak int
	sampled := make(chan struct{})
	sampling, stopSampling := context.WithCancel(context.Background())
	go func() {
		defer close(sampled)
		for sampling.Err() == nil {
			if n := r.sup.Stats().ActivePollers; n > peak {
				peak = n
			}
			time.Sleep(time.Millisecond)
		}
	}()

	const generations = 5
	for i := 0; i < generations; i++ {
		conn := r.dialer.nextConn(t)
		waitFor(t, "first poll", func() bool { return conn.count("GSF 12") >= 1 })
		if i == 0 {
			// Let the ticker fire a few times on one connection.
			waitFor(t, "periodic poll", func() bool { return conn.count("GSF 12") >= 3 })
		}
		conn.drop()
	}

	r.stop()
	stopSampling()
	<-sampled

	if peak != 1 {
		t.Errorf("peak concurrent pollers = %d, want 1", peak)
	}
	if active := r.sup.Stats().ActivePollers; active != 0 {
		t.Errorf("ActivePollers after stop = %d, want 0", active)
	}
	if got := r.sup.Stats().Connects; got < generations {
		t.Errorf("Connects = %d, want >= %d", got, generations)
	}
}

func TestSupervisor_FirstPollAfterOneInterval(t *testing.T) {
	const interval = 200 * time.Millisecond
	r := startSupervisor(t, SupervisorConfig{
		PollAntitheft:     true,
		SubscribeToEvents: true,
		PollInterval:      interval,
	}, nil)

	conn := r.dialer.nextConn(t)
	waitFor(t, "subscription frames", func() bool { return len(conn.getWritten()) >= 3 })
	connected := time.Now()
	if n := conn.count("GSF 12"); n != 0 {
		t.Fatalf("GSF 12 sent %d times on connect, want none before the first interval", n)
	}

	waitFor(t, "first poll", func() bool { return conn.count("GSF 12") >= 1 })
	if elapsed := time.Since(connected); elapsed < interval/2 {
		t.Errorf("first poll after %v, want about %v", elapsed, interval)
	}

	want := []string{"SU3", "WSF 1", "WSF 12", "GSF 12"}
	if got := conn.getWritten()[:4]; !reflect.DeepEqual(got, want) {
		t.Errorf("written = %v, want %v", got, want)
	}
}

func TestSupervisor_DispatchesInOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		names []string
	)
	h := handlerFunc(func(_ context.Context, msg Message) {
		mu.Lock()
		names = append(names, msg.Name)
		mu.Unlock()
	})

	r := startSupervisor(t, SupervisorConfig{}, h)
	conn := r.dialer.nextConn(t)

	conn.inbound <- []byte(frame("ping") + frame("gsf\x1d12\x1e1\x1d0"))
	conn.inbound <- []byte(frame("upd\x1dX\x1dS\x1d4\x1d0\x1d1"))
	conn.inbound <- []byte("\x02bad\xff\x03AA\x04" + frame("net") + "Xcld\x0300\x04")

	waitFor(t, "five messages", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(names) == 5
	})

	mu.Lock()
	got := append([]string(nil), names...)
	mu.Unlock()

	if want := []string{"ping", "gsf", "upd", "net", "cld"}; !reflect.DeepEqual(got, want) {
		t.Errorf("handled = %v, want %v", got, want)
	}

	stats := r.sup.Stats()
	if stats.FramesRx != 5 {
		t.Errorf("FramesRx = %d, want 5", stats.FramesRx)
	}
	if stats.DecodeErrors != 1 {
		t.Errorf("DecodeErrors = %d, want 1", stats.DecodeErrors)
	}
	if stats.LastActivity.IsZero() {
		t.Error("LastActivity not set")
	}
}

func TestSupervisor_RetriesAfterDialFailure(t *testing.T) {
	dialer := newFakeDialer()
	dialer.failNext = 2

	sup, err := NewSupervisor(SupervisorConfig{
		URL:            "ws://controller.test:14001",
		Dialer:         dialer,
		ReconnectDelay: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Run(ctx, handlerFunc(func(context.Context, Message) {}))
	}()

	dialer.nextConn(t)
	waitFor(t, "connected", sup.IsConnected)

	if got := dialer.dialCount(); got != 3 {
		t.Errorf("dial attempts = %d, want 3", got)
	}

	cancel()
	<-done
	if sup.State() != StateDisconnected {
		t.Errorf("State() after stop = %v, want disconnected", sup.State())
	}
}

func TestSupervisor_SendWritesEncodedFrame(t *testing.T) {
	r := startSupervisor(t, SupervisorConfig{}, nil)
	conn := r.dialer.nextConn(t)
	waitFor(t, "connected", r.sup.IsConnected)

	if err := r.sup.Send(ToggleLightFrame(3)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := conn.getWritten(); !reflect.DeepEqual(got, []string{"EBI 3,10"}) {
		t.Errorf("written = %v, want [EBI 3,10]", got)
	}
	if r.sup.Stats().FramesTx != 1 {
		t.Errorf("FramesTx = %d, want 1", r.sup.Stats().FramesTx)
	}
}

func TestSupervisor_SendAfterDrop(t *testing.T) {
	r := startSupervisor(t, SupervisorConfig{ReconnectDelay: time.Hour}, nil)
	conn := r.dialer.nextConn(t)
	waitFor(t, "connected", r.sup.IsConnected)

	conn.drop()
	waitFor(t, "disconnected", func() bool { return !r.sup.IsConnected() })

	if err := r.sup.Send(PongFrame()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
	if r.sup.Stats().Disconnects != 1 {
		t.Errorf("Disconnects = %d, want 1", r.sup.Stats().Disconnects)
	}
}

func TestConnectionState_String(t *testing.T) {
	states := map[ConnectionState]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
	}
	for s, want := range states {
		if got := s.String(); got != want {
			t.Errorf("ConnectionState(%d).String() = %q, want %q", s, got, want)
		}
	}
}
