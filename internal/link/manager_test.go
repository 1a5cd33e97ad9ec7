package link

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kucendro/g1/internal/config"
	"github.com/kucendro/g1/internal/dispatch"
	"github.com/kucendro/g1/internal/glass"
	"github.com/kucendro/g1/internal/logging"
	"github.com/kucendro/g1/internal/pairing"
	"github.com/kucendro/g1/internal/protocol"
	"github.com/kucendro/g1/internal/transport"
	"github.com/kucendro/g1/internal/transport/fake"
)

const (
	leftAddr  = "AA:BB:CC:DD:EE:01"
	rightAddr = "AA:BB:CC:DD:EE:02"
	leftName  = "G1_77_L_8F2A"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.ReconnectAttempts = 3
	cfg.ReconnectDelaySec = 0.001
	cfg.ConnectionTimeoutSec = 0.2
	cfg.HandshakeTimeoutSec = 0.2
	cfg.ScanTimeoutSec = 0.2
	cfg.HeartbeatIntervalSec = 0.01
	cfg.HeartbeatMisses = 3
	cfg.LeftAddress = leftAddr
	cfg.RightAddress = rightAddr
	return cfg
}

func newTestManager(t *testing.T, tr *fake.Transport, cfg *config.Config) *Manager {
	t.Helper()
	disp := dispatch.NewDispatcher(dispatch.NewBus(logging.Nop()), logging.Nop())
	return NewManager(glass.Left, tr, cfg, nil, disp, logging.Nop())
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRunReachesReady(t *testing.T) {
	tr := fake.NewTransport(leftName)
	m := newTestManager(t, tr, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return m.State() == glass.Ready }, "never reached Ready")

	identity, ok := m.Identity()
	if !ok {
		t.Fatal("Identity() not available in Ready")
	}
	if identity.Name != leftName {
		t.Errorf("identity name = %q, want %q", identity.Name, leftName)
	}
	if identity.Address != leftAddr {
		t.Errorf("identity address = %q, want %q", identity.Address, leftAddr)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
	if got := m.State(); got != glass.Disconnected {
		t.Errorf("state after cancel = %v, want Disconnected", got)
	}
	if link := tr.LastLink(); link == nil || !link.Closed() {
		t.Error("link not released on exit")
	}
}

func TestZeroAttemptBudget(t *testing.T) {
	tr := fake.NewTransport(leftName)
	cfg := testConfig()
	cfg.ReconnectAttempts = 0
	m := newTestManager(t, tr, cfg)

	err := m.Run(context.Background())
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("Run() = %v, want ErrAttemptsExhausted", err)
	}
	if got := tr.ConnectCount(); got != 0 {
		t.Errorf("connect attempts = %d, want 0", got)
	}
	if got := m.State(); got != glass.Failed {
		t.Errorf("state = %v, want Failed", got)
	}
}

func TestAttemptsExhaustedTerminalFailed(t *testing.T) {
	tr := fake.NewTransport(leftName)
	tr.FailConnectWith(transport.ErrConnectTimeout)
	m := newTestManager(t, tr, testConfig())

	err := m.Run(context.Background())
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("Run() = %v, want ErrAttemptsExhausted", err)
	}
	if got := tr.ConnectCount(); got != 3 {
		t.Errorf("connect attempts = %d, want 3", got)
	}
	if got := m.State(); got != glass.Failed {
		t.Errorf("state = %v, want Failed", got)
	}
}

func TestTransientFailureThenSuccess(t *testing.T) {
	tr := fake.NewTransport(leftName)
	tr.QueueConnectErr(transport.ErrConnectTimeout)
	tr.QueueConnectErr(transport.ErrConnectRefused)
	m := newTestManager(t, tr, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	waitFor(t, 2*time.Second, func() bool { return m.State() == glass.Ready }, "never recovered to Ready")
	if got := tr.ConnectCount(); got != 3 {
		t.Errorf("connect attempts = %d, want 3", got)
	}
}

func TestHandshakeRejectIsTerminal(t *testing.T) {
	tr := fake.NewTransport(leftName)
	tr.RejectHandshake(true)
	m := newTestManager(t, tr, testConfig())

	err := m.Run(context.Background())
	if !errors.Is(err, ErrHandshakeRejected) {
		t.Fatalf("Run() = %v, want ErrHandshakeRejected", err)
	}
	if got := tr.ConnectCount(); got != 1 {
		t.Errorf("connect attempts = %d, want 1 (no retry on reject)", got)
	}
	if got := m.State(); got != glass.Failed {
		t.Errorf("state = %v, want Failed", got)
	}
}

func TestHeartbeatSequencesKeepLinkAlive(t *testing.T) {
	tr := fake.NewTransport(leftName)
	cfg := testConfig()
	cfg.HeartbeatIntervalSec = 0.005
	m := newTestManager(t, tr, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	waitFor(t, 2*time.Second, func() bool { return m.State() == glass.Ready }, "never reached Ready")

	// Several keepalive rounds with advancing sequence numbers must be
	// acknowledged without tripping integrity checks or reconnecting.
	link := tr.LastLink()
	heartbeats := func() [][]byte {
		var out [][]byte
		for _, frame := range link.Writes() {
			if len(frame) > 0 && frame[0] == protocol.OpHeartbeat {
				out = append(out, frame)
			}
		}
		return out
	}
	waitFor(t, 2*time.Second, func() bool { return len(heartbeats()) >= 4 }, "fewer than 4 keepalives written")

	if got := m.State(); got != glass.Ready {
		t.Errorf("state = %v after keepalive rounds, want Ready", got)
	}
	if got := tr.ConnectCount(); got != 1 {
		t.Errorf("connect attempts = %d, want 1 (no reconnect with acked keepalives)", got)
	}
	for _, frame := range heartbeats() {
		if len(frame) != 6 || frame[5] != frame[3] {
			t.Errorf("keepalive frame % 02x does not echo its sequence as trailer", frame)
		}
	}
}

func TestHeartbeatMissesForceReconnect(t *testing.T) {
	tr := fake.NewTransport(leftName)
	tr.MuteHeartbeatAcks(true)
	cfg := testConfig()
	cfg.HeartbeatIntervalSec = 0.005
	cfg.HeartbeatMisses = 2
	cfg.ReconnectAttempts = 100
	m := newTestManager(t, tr, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// The muted link reaches Ready, misses two acks and reconnects.
	waitFor(t, 3*time.Second, func() bool { return tr.ConnectCount() >= 2 }, "no reconnect after missed heartbeats")
}

func TestScanDiscoversSideByMarker(t *testing.T) {
	tr := fake.NewTransport(leftName)
	tr.AddAdvertisement("G1_77_R_8F2A", rightAddr)
	tr.AddAdvertisement(leftName, leftAddr)
	cfg := testConfig()
	cfg.LeftAddress = "" // force discovery

	m := newTestManager(t, tr, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	waitFor(t, 2*time.Second, func() bool { return m.State() == glass.Ready }, "never reached Ready via scan")
	if got := m.Device().Address; got != leftAddr {
		t.Errorf("device address = %q, want %q (left marker)", got, leftAddr)
	}
}

func TestScanTimeoutWhenNothingAdvertises(t *testing.T) {
	tr := fake.NewTransport(leftName)
	cfg := testConfig()
	cfg.LeftAddress = ""
	cfg.ReconnectAttempts = 1
	m := newTestManager(t, tr, cfg)

	err := m.Run(context.Background())
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("Run() = %v, want ErrAttemptsExhausted", err)
	}
	if got := tr.ConnectCount(); got != 0 {
		t.Errorf("connect attempts = %d, want 0 (scan never produced a candidate)", got)
	}
}

func TestIdentityMismatchFlagsRecord(t *testing.T) {
	store := pairing.NewStore(filepath.Join(t.TempDir(), "pairing.yaml"), logging.Nop())
	other := glass.Identity{Side: glass.Left, Address: "11:22:33:44:55:66", Name: "G1_42_L_0000"}
	right := glass.Identity{Side: glass.Right, Address: rightAddr, Name: "G1_42_R_0000"}
	if err := store.ValidateAndStore(other, right); err != nil {
		t.Fatalf("seed pairing record: %v", err)
	}

	tr := fake.NewTransport(leftName)
	disp := dispatch.NewDispatcher(dispatch.NewBus(logging.Nop()), logging.Nop())
	m := NewManager(glass.Left, tr, testConfig(), store, disp, logging.Nop())

	err := m.Run(context.Background())
	if !errors.Is(err, pairing.ErrIdentityMismatch) {
		t.Fatalf("Run() = %v, want ErrIdentityMismatch", err)
	}
	if got := m.State(); got != glass.Failed {
		t.Errorf("state = %v, want Failed", got)
	}

	rec, lerr := store.Load()
	if lerr != nil {
		t.Fatalf("Load() = %v", lerr)
	}
	if rec.Validated {
		t.Error("record still validated after mismatch, want flagged")
	}
}

func TestSendOnlyInReady(t *testing.T) {
	tr := fake.NewTransport(leftName)
	m := newTestManager(t, tr, testConfig())

	if err := m.Send(context.Background(), protocol.NewBatteryQuery()); !errors.Is(err, ErrNotReady) {
		t.Errorf("Send() before Ready = %v, want ErrNotReady", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)
	waitFor(t, 2*time.Second, func() bool { return m.State() == glass.Ready }, "never reached Ready")

	if err := m.Send(context.Background(), protocol.NewBatteryQuery()); err != nil {
		t.Fatalf("Send() in Ready = %v", err)
	}
	link := tr.LastLink()
	waitFor(t, time.Second, func() bool {
		for _, frame := range link.Writes() {
			if len(frame) > 0 && frame[0] == protocol.OpBattery {
				return true
			}
		}
		return false
	}, "battery query never written")
}
