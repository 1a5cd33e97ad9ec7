package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kucendro/g1/internal/config"
	"github.com/kucendro/g1/internal/dispatch"
	"github.com/kucendro/g1/internal/glass"
	"github.com/kucendro/g1/internal/pairing"
	"github.com/kucendro/g1/internal/protocol"
	"github.com/kucendro/g1/internal/transport"
)

// Manager owns one side's connection lifecycle. Run drives the machine;
// all other methods are safe for concurrent use.
type Manager struct {
	side  glass.Side
	tr    transport.Transport
	cfg   *config.Config
	store *pairing.Store
	disp  *dispatch.Dispatcher
	log   zerolog.Logger

	mu       sync.Mutex
	state    glass.ConnState
	device   glass.Device
	link     transport.Link
	identity glass.Identity
	haveID   bool
	session  *Session

	changed chan struct{}
}

// NewManager creates a manager for one side. The pairing store may be
// nil when running unpaired (first scan).
func NewManager(side glass.Side, tr transport.Transport, cfg *config.Config, store *pairing.Store, disp *dispatch.Dispatcher, log zerolog.Logger) *Manager {
	return &Manager{
		side:    side,
		tr:      tr,
		cfg:     cfg,
		store:   store,
		disp:    disp,
		log:     log.With().Str("component", "link").Str("side", side.String()).Logger(),
		device:  glass.Device{Side: side},
		changed: make(chan struct{}, 1),
	}
}

// State returns the current connection state.
func (m *Manager) State() glass.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Device returns a value snapshot of the managed unit.
func (m *Manager) Device() glass.Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.device
}

// Identity returns the peer identity validated by the last handshake.
// ok is false before the first successful handshake.
func (m *Manager) Identity() (glass.Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity, m.haveID
}

// Changed signals coalesced state transitions; receivers re-read State.
func (m *Manager) Changed() <-chan struct{} {
	return m.changed
}

// Send encodes and writes cmd. Valid only in Ready.
func (m *Manager) Send(ctx context.Context, cmd protocol.Command) error {
	m.mu.Lock()
	link := m.link
	ready := m.state == glass.Ready
	m.mu.Unlock()

	if !ready || link == nil {
		return ErrNotReady
	}
	return link.Write(ctx, cmd.Encode())
}

// Run drives the connection machine until ctx is cancelled or the side
// fails terminally. The reconnect budget applies to consecutive failed
// attempts; reaching Ready restores the full budget.
func (m *Manager) Run(ctx context.Context) error {
	// A zero budget permits no attempt at all.
	if m.cfg.ReconnectAttempts < 1 {
		m.setState(glass.Failed)
		return fmt.Errorf("%w: no attempts configured", ErrAttemptsExhausted)
	}

	attempts := 0
	delay := m.cfg.ReconnectDelay()

	for {
		if ctx.Err() != nil {
			m.setState(glass.Disconnected)
			return ctx.Err()
		}

		sess := newSession(attempts+1, delay)
		m.mu.Lock()
		m.session = sess
		m.mu.Unlock()

		err := m.runCycle(ctx, sess)
		if ctx.Err() != nil {
			m.setState(glass.Disconnected)
			return ctx.Err()
		}

		if sess.reachedReady {
			// The link was up and then dropped: fresh budget.
			attempts = 0
			delay = m.cfg.ReconnectDelay()
			m.log.Warn().Err(err).Msg("link dropped, reconnecting")
			m.setState(glass.Disconnected)
		} else {
			attempts++
			sess.LastErr = err
			m.log.Warn().Err(err).Int("attempt", attempts).Msg("connect attempt failed")

			if errors.Is(err, ErrHandshakeRejected) || errors.Is(err, pairing.ErrIdentityMismatch) {
				m.setState(glass.Failed)
				return err
			}
			if attempts >= m.cfg.ReconnectAttempts {
				m.setState(glass.Failed)
				return fmt.Errorf("%w after %d attempts: %v", ErrAttemptsExhausted, attempts, err)
			}
		}

		m.setState(glass.Reconnecting)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			m.setState(glass.Disconnected)
			return ctx.Err()
		}
		if m.cfg.BackoffFactor > 1.0 {
			delay = time.Duration(float64(delay) * m.cfg.BackoffFactor)
		}
	}
}

// runCycle performs one scan/connect/handshake/serve pass. The link is
// released on every exit path.
func (m *Manager) runCycle(ctx context.Context, sess *Session) error {
	address, name := m.target()
	if address == "" {
		adv, err := m.scan(ctx)
		if err != nil {
			return err
		}
		address, name = adv.Address, adv.Name
	}
	m.mu.Lock()
	m.device.Address = address
	m.device.Name = name
	m.mu.Unlock()

	m.setState(glass.Connecting)
	connCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectionTimeout())
	link, err := m.tr.Connect(connCtx, address)
	cancel()
	if err != nil {
		return err
	}
	defer link.Close()

	m.mu.Lock()
	m.link = link
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.link = nil
		m.mu.Unlock()
	}()

	m.setState(glass.Handshaking)
	identity, err := m.handshake(ctx, link, address)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.identity = identity
	m.haveID = true
	m.device.Name = identity.Name
	m.device.RSSI = link.RSSI()
	m.device.LastSeen = time.Now()
	m.mu.Unlock()

	sess.reachedReady = true
	m.setState(glass.Ready)
	return m.serve(ctx, link)
}

// scan discovers this side's unit by its name marker within the scan
// window.
func (m *Manager) scan(ctx context.Context) (transport.Advertisement, error) {
	m.setState(glass.Scanning)

	scanCtx, cancel := context.WithTimeout(ctx, m.cfg.ScanTimeout())
	defer cancel()

	ch, err := m.tr.Scan(scanCtx, m.side.NameMarker())
	if err != nil {
		return transport.Advertisement{}, err
	}
	for {
		select {
		case adv, ok := <-ch:
			if !ok {
				return transport.Advertisement{}, transport.ErrScanTimeout
			}
			m.log.Info().
				Str("name", adv.Name).
				Str("address", adv.Address).
				Int("rssi", adv.RSSI).
				Msg("candidate discovered")
			return adv, nil
		case <-scanCtx.Done():
			return transport.Advertisement{}, transport.ErrScanTimeout
		}
	}
}

// handshake runs the init exchange and validates the peer identity
// against the trust store.
func (m *Manager) handshake(ctx context.Context, link transport.Link, address string) (glass.Identity, error) {
	marker := protocol.HandshakeLeft
	if m.side == glass.Right {
		marker = protocol.HandshakeRight
	}

	hsCtx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout())
	defer cancel()

	if err := link.Write(hsCtx, protocol.NewHandshake(marker).Encode()); err != nil {
		return glass.Identity{}, fmt.Errorf("write init: %w", err)
	}

	for {
		select {
		case raw, ok := <-link.Notifications():
			if !ok {
				return glass.Identity{}, ErrHandshakeTimeout
			}
			pkt, err := protocol.Decode(raw)
			if err != nil {
				m.log.Warn().Err(err).Msg("malformed frame during handshake dropped")
				continue
			}
			if protocol.IsHandshakeReject(pkt) {
				return glass.Identity{}, ErrHandshakeRejected
			}
			name, ok := protocol.HandshakeIdentity(pkt)
			if !ok {
				// Unrelated traffic before the init reply.
				continue
			}
			identity := glass.Identity{Side: m.side, Address: address, Name: name}
			if err := m.checkTrust(identity); err != nil {
				return glass.Identity{}, err
			}
			return identity, nil
		case <-hsCtx.Done():
			return glass.Identity{}, ErrHandshakeTimeout
		}
	}
}

// checkTrust compares the connected identity against a previously
// validated pairing record. A mismatch flags the record and fails the
// side without retries.
func (m *Manager) checkTrust(identity glass.Identity) error {
	if m.store == nil {
		return nil
	}
	rec, err := m.store.Load()
	if errors.Is(err, pairing.ErrNotPaired) {
		return nil
	}
	if err != nil {
		return err
	}
	if !rec.Validated {
		return nil
	}

	stored := rec.LeftAddress
	if m.side == glass.Right {
		stored = rec.RightAddress
	}
	if stored != identity.Address {
		m.log.Error().
			Str("stored", stored).
			Str("connected", identity.Address).
			Msg("identity deviates from pairing record")
		if ierr := m.store.Invalidate(); ierr != nil {
			m.log.Warn().Err(ierr).Msg("failed to flag pairing record")
		}
		return pairing.ErrIdentityMismatch
	}
	return nil
}

// serve supervises an established link: keepalive cadence, inbound
// decode and dispatch, integrity accounting. Returns when the link
// drops, degrades, or ctx ends.
func (m *Manager) serve(ctx context.Context, link transport.Link) error {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval())
	defer ticker.Stop()

	var (
		seq          byte = 1
		misses       int
		awaitingAck  bool
		checksumErrs int
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if awaitingAck {
				misses++
				m.log.Warn().Int("misses", misses).Msg("heartbeat unacknowledged")
				if misses >= m.cfg.HeartbeatMisses {
					return ErrHeartbeatTimeout
				}
			}
			if err := link.Write(ctx, protocol.NewHeartbeat(seq).Encode()); err != nil {
				return fmt.Errorf("write heartbeat: %w", err)
			}
			awaitingAck = true
			seq++
			if seq == 0 {
				seq = 1
			}

		case raw, ok := <-link.Notifications():
			if !ok {
				return nil // link dropped
			}
			pkt, err := protocol.Decode(raw)
			if err != nil {
				checksumErrs++
				m.log.Warn().Err(err).Int("count", checksumErrs).Msg("integrity failure, packet dropped")
				if checksumErrs >= m.cfg.ChecksumErrorThreshold {
					m.log.Error().Msg("integrity failures past threshold, reconnecting")
					return nil
				}
				continue
			}
			if protocol.IsHeartbeatAck(pkt) {
				awaitingAck = false
				misses = 0
				continue
			}
			m.disp.Dispatch(m.side, pkt)
		}
	}
}

func (m *Manager) target() (address, name string) {
	if m.side == glass.Left {
		return m.cfg.LeftAddress, m.cfg.LeftName
	}
	return m.cfg.RightAddress, m.cfg.RightName
}

func (m *Manager) setState(s glass.ConnState) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = s
	m.device.State = s
	m.mu.Unlock()

	m.log.Info().
		Str("from", prev.String()).
		Str("to", s.String()).
		Msg("connection state")
	m.disp.ConnStateChanged(m.side, s)

	select {
	case m.changed <- struct{}{}:
	default:
	}
}
