// Package fake provides a scripted in-memory transport for testing the
// connection layer without radio hardware.
package fake

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kucendro/g1/internal/protocol"
	"github.com/kucendro/g1/internal/transport"
)

// Transport implements transport.Transport with scripted behavior.
type Transport struct {
	mu          sync.Mutex
	adverts     []transport.Advertisement
	identity    string
	failWith    error
	queuedErrs  []error
	connects    int
	links       []*Link
	rejectInit  bool
	muteAcks    bool
	connectHold time.Duration
}

// NewTransport creates a fake transport whose links answer handshakes
// with the given advertised identity.
func NewTransport(identity string) *Transport {
	return &Transport{identity: identity}
}

// AddAdvertisement scripts one scan result.
func (t *Transport) AddAdvertisement(name, address string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.adverts = append(t.adverts, transport.Advertisement{
		Address: address,
		Name:    name,
		RSSI:    -55,
		SeenAt:  time.Now(),
	})
}

// FailConnectWith makes every subsequent Connect fail with err. Pass nil
// to restore successful connects.
func (t *Transport) FailConnectWith(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failWith = err
}

// QueueConnectErr scripts a failure for the next Connect attempt only.
func (t *Transport) QueueConnectErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queuedErrs = append(t.queuedErrs, err)
}

// RejectHandshake makes links answer init requests with a failure
// response.
func (t *Transport) RejectHandshake(reject bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rejectInit = reject
}

// MuteHeartbeatAcks stops links from acknowledging heartbeats.
func (t *Transport) MuteHeartbeatAcks(mute bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.muteAcks = mute
	for _, l := range t.links {
		l.setMuteAcks(mute)
	}
}

// HoldConnect delays every Connect attempt, for timeout exercises.
func (t *Transport) HoldConnect(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectHold = d
}

// ConnectCount returns the number of Connect attempts observed.
func (t *Transport) ConnectCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

// LastLink returns the most recently established link, nil when none.
func (t *Transport) LastLink() *Link {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.links) == 0 {
		return nil
	}
	return t.links[len(t.links)-1]
}

// Scan implements transport.Transport.
func (t *Transport) Scan(ctx context.Context, filter string) (<-chan transport.Advertisement, error) {
	t.mu.Lock()
	adverts := make([]transport.Advertisement, len(t.adverts))
	copy(adverts, t.adverts)
	t.mu.Unlock()

	ch := make(chan transport.Advertisement, len(adverts))
	go func() {
		defer close(ch)
		for _, adv := range adverts {
			if filter != "" && !strings.Contains(adv.Name, filter) {
				continue
			}
			select {
			case ch <- adv:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Connect implements transport.Transport.
func (t *Transport) Connect(ctx context.Context, address string) (transport.Link, error) {
	t.mu.Lock()
	t.connects++
	hold := t.connectHold
	var err error
	if len(t.queuedErrs) > 0 {
		err = t.queuedErrs[0]
		t.queuedErrs = t.queuedErrs[1:]
	} else {
		err = t.failWith
	}
	t.mu.Unlock()

	if hold > 0 {
		select {
		case <-time.After(hold):
		case <-ctx.Done():
			return nil, transport.ErrConnectTimeout
		}
	}
	select {
	case <-ctx.Done():
		return nil, transport.ErrConnectTimeout
	default:
	}
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	link := newLink(t.identity, t.rejectInit, t.muteAcks)
	t.links = append(t.links, link)
	return link, nil
}

// Link is one scripted in-memory connection.
type Link struct {
	mu         sync.Mutex
	identity   string
	rejectInit bool
	muteAcks   bool
	writes     [][]byte
	notify     chan []byte
	closed     bool
}

func newLink(identity string, rejectInit, muteAcks bool) *Link {
	return &Link{
		identity:   identity,
		rejectInit: rejectInit,
		muteAcks:   muteAcks,
		notify:     make(chan []byte, 32),
	}
}

// Write records the frame and produces the scripted peer response.
func (l *Link) Write(ctx context.Context, frame []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return transport.ErrLinkClosed
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	l.writes = append(l.writes, buf)

	pkt, err := protocol.Decode(frame)
	if err != nil {
		return nil
	}
	switch pkt.Opcode {
	case protocol.OpInit:
		if l.rejectInit {
			l.inject(protocol.MustCommand(protocol.RespFailure, []byte{protocol.OpInit}).Encode())
		} else {
			reply := append([]byte{protocol.OpInit}, []byte(l.identity)...)
			l.inject(protocol.MustCommand(protocol.RespSuccess, reply).Encode())
		}
	case protocol.OpHeartbeat:
		if !l.muteAcks {
			seq := byte(0x01)
			if len(pkt.Payload) > 1 {
				seq = pkt.Payload[1]
			}
			l.inject(protocol.NewHeartbeat(seq).Encode())
		}
	}
	return nil
}

// Inject delivers a raw notification frame to the subscriber.
func (l *Link) Inject(frame []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inject(frame)
}

func (l *Link) inject(frame []byte) {
	if l.closed {
		return
	}
	select {
	case l.notify <- frame:
	default:
	}
}

// Writes returns all frames written so far.
func (l *Link) Writes() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.writes))
	copy(out, l.writes)
	return out
}

func (l *Link) setMuteAcks(mute bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.muteAcks = mute
}

// Notifications implements transport.Link.
func (l *Link) Notifications() <-chan []byte {
	return l.notify
}

// RSSI implements transport.Link.
func (l *Link) RSSI() int { return -55 }

// Close implements transport.Link.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.notify)
	}
	return nil
}

// Closed reports whether Close was called.
func (l *Link) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
