package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kucendro/g1/internal/config"
	"github.com/kucendro/g1/internal/dispatch"
	"github.com/kucendro/g1/internal/glass"
	"github.com/kucendro/g1/internal/link"
	"github.com/kucendro/g1/internal/pairing"
	"github.com/kucendro/g1/internal/protocol"
	"github.com/kucendro/g1/internal/transport"
)

// Coordinator owns both connection managers. Attempts always run
// concurrently; one side failing never blocks the other.
type Coordinator struct {
	left  *link.Manager
	right *link.Manager
	store *pairing.Store
	disp  *dispatch.Dispatcher
	log   zerolog.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	runErrs   map[glass.Side]error
	reported  map[glass.Side]bool
	paired    bool
	lastState State
	resolved  chan struct{}
}

// NewCoordinator builds a coordinator and its two side managers over a
// shared transport.
func NewCoordinator(tr transport.Transport, cfg *config.Config, store *pairing.Store, disp *dispatch.Dispatcher, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		left:  link.NewManager(glass.Left, tr, cfg, store, disp, log),
		right: link.NewManager(glass.Right, tr, cfg, store, disp, log),
		store: store,
		disp:  disp,
		log:   log.With().Str("component", "session").Logger(),
	}
}

// Connect starts both sides and returns once both resolve, each either
// Ready or terminally Failed. One failed side yields a PartialFailure;
// both failed yields a combined error. The managers keep running until
// Disconnect or ctx cancellation.
func (c *Coordinator) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		cancel()
		return errors.New("already connected")
	}
	c.cancel = cancel
	c.runErrs = make(map[glass.Side]error)
	c.reported = make(map[glass.Side]bool)
	c.paired = false
	c.lastState = Disconnected
	c.resolved = make(chan struct{})
	resolved := c.resolved
	c.mu.Unlock()

	for _, m := range []*link.Manager{c.left, c.right} {
		m := m
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			err := m.Run(runCtx)
			c.mu.Lock()
			c.runErrs[m.Device().Side] = err
			c.mu.Unlock()
		}()
	}

	c.wg.Add(1)
	go c.monitor(runCtx)

	select {
	case <-resolved:
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.resolutionError()
}

// monitor recomputes the logical state on every side transition.
func (c *Coordinator) monitor(ctx context.Context) {
	defer c.wg.Done()
	c.evaluate()
	for {
		select {
		case <-ctx.Done():
			c.publishState(Disconnected)
			return
		case <-c.left.Changed():
		case <-c.right.Changed():
		}
		c.evaluate()
	}
}

func (c *Coordinator) evaluate() {
	leftState := c.left.State()
	rightState := c.right.State()

	c.publishState(derive(leftState, rightState))

	for _, m := range []*link.Manager{c.left, c.right} {
		if m.State() == glass.Failed {
			c.reportFailure(m)
		}
	}

	if leftState == glass.Ready && rightState == glass.Ready {
		c.storePairing()
	}

	if resolvedState(leftState) && resolvedState(rightState) {
		c.mu.Lock()
		select {
		case <-c.resolved:
		default:
			close(c.resolved)
		}
		c.mu.Unlock()
	}
}

func derive(left, right glass.ConnState) State {
	switch {
	case left == glass.Ready && right == glass.Ready:
		return Ready
	case left == glass.Ready || right == glass.Ready:
		return Degraded
	default:
		return Disconnected
	}
}

// resolvedState reports whether a side finished its first resolution:
// it is up, or it can no longer come up on its own.
func resolvedState(s glass.ConnState) bool {
	return s == glass.Ready || s.Terminal()
}

func (c *Coordinator) publishState(s State) {
	c.mu.Lock()
	changed := c.lastState != s
	c.lastState = s
	c.mu.Unlock()

	if changed {
		c.log.Info().Str("state", s.String()).Msg("session state")
		c.disp.SessionStateChanged(s.String())
	}
}

// reportFailure publishes one upward notification per terminal side.
func (c *Coordinator) reportFailure(m *link.Manager) {
	side := m.Device().Side

	c.mu.Lock()
	if c.reported[side] {
		c.mu.Unlock()
		return
	}
	c.reported[side] = true
	err := c.runErrs[side]
	c.mu.Unlock()

	if err == nil {
		err = link.ErrAttemptsExhausted
	}
	c.log.Error().Err(err).Str("side", side.String()).Msg("side failed, continuing degraded")
	c.disp.ReportPartialFailure(side, err)
}

// storePairing writes the trust record exactly once per run, after both
// sides validated in the same session. Persistence failures leave the
// session connected but unpaired.
func (c *Coordinator) storePairing() {
	c.mu.Lock()
	if c.paired || c.store == nil {
		c.mu.Unlock()
		return
	}
	c.paired = true
	c.mu.Unlock()

	leftID, okL := c.left.Identity()
	rightID, okR := c.right.Identity()
	if !okL || !okR {
		return
	}
	if err := c.store.ValidateAndStore(leftID, rightID); err != nil {
		c.log.Warn().Err(err).Msg("pairing record not stored, continuing unpaired")
		return
	}
}

func (c *Coordinator) resolutionError() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var failed []*PartialFailure
	for _, m := range []*link.Manager{c.left, c.right} {
		if m.State() == glass.Failed {
			err := c.runErrs[m.Device().Side]
			if err == nil {
				err = link.ErrAttemptsExhausted
			}
			failed = append(failed, &PartialFailure{Side: m.Device().Side, Err: err})
		}
	}
	switch len(failed) {
	case 0:
		return nil
	case 1:
		return failed[0]
	default:
		return fmt.Errorf("both sides failed: left: %v, right: %v", failed[0].Err, failed[1].Err)
	}
}

// State derives the logical state from live side states; there is no
// cached value to go stale.
func (c *Coordinator) State() State {
	return derive(c.left.State(), c.right.State())
}

// IsReady reports whether both sides are Ready right now.
func (c *Coordinator) IsReady() bool { return c.State() == Ready }

// Devices returns value snapshots of both units.
func (c *Coordinator) Devices() (left, right glass.Device) {
	return c.left.Device(), c.right.Device()
}

// Send routes cmd to the selected side or both. Routing to Both returns
// a PartialFailure when exactly one write fails.
func (c *Coordinator) Send(ctx context.Context, target Target, cmd protocol.Command) error {
	switch target {
	case TargetLeft:
		return c.left.Send(ctx, cmd)
	case TargetRight:
		return c.right.Send(ctx, cmd)
	case TargetBoth:
		leftErr := c.left.Send(ctx, cmd)
		rightErr := c.right.Send(ctx, cmd)
		switch {
		case leftErr != nil && rightErr != nil:
			return fmt.Errorf("both sides failed: left: %v, right: %v", leftErr, rightErr)
		case leftErr != nil:
			return &PartialFailure{Side: glass.Left, Err: leftErr}
		case rightErr != nil:
			return &PartialFailure{Side: glass.Right, Err: rightErr}
		default:
			return nil
		}
	default:
		return fmt.Errorf("unknown target %d", target)
	}
}

// Disconnect tears both sides down best-effort and waits for the
// managers to stop. Safe to call more than once.
func (c *Coordinator) Disconnect() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()

	c.mu.Lock()
	for side, err := range c.runErrs {
		if err != nil && !errors.Is(err, context.Canceled) {
			c.log.Warn().Err(err).Str("side", side.String()).Msg("side ended with error")
			break
		}
	}
	c.mu.Unlock()
	c.log.Info().Msg("session closed")
}
