package peer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/BioHazard786/Roomdrop/internal/room"
)

const (
	loopbackSDPPrefix       = "loopback "
	loopbackCandidatePrefix = "candidate:loopback "
)

var errNoRemoteDescription = errors.New("remote description not set")

// Switchboard connects in-process channels to each other. Descriptors carry
// the endpoint id, so two channels become linked once one applies the
// other's description, the same way a real offer/answer exchange links two
// peer connections. Useful in tests and for same-process demos.
type Switchboard struct {
	mu        sync.Mutex
	endpoints []*Loopback
}

func NewSwitchboard() *Switchboard {
	return &Switchboard{}
}

// Factory returns a Factory that creates endpoints on this switchboard.
func (s *Switchboard) Factory() Factory {
	return func(role room.Role, h Handlers) (Channel, error) {
		return s.newEndpoint(role, h), nil
	}
}

// Endpoints returns every endpoint created so far, in creation order.
func (s *Switchboard) Endpoints() []*Loopback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Loopback(nil), s.endpoints...)
}

func (s *Switchboard) newEndpoint(role room.Role, h Handlers) *Loopback {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := &Loopback{
		sb:       s,
		id:       len(s.endpoints),
		role:     role,
		handlers: h,
		state:    StateConnecting,
		events:   newDispatcher(),
	}
	s.endpoints = append(s.endpoints, l)
	return l
}

func (s *Switchboard) lookup(sdp string) (*Loopback, error) {
	if !strings.HasPrefix(sdp, loopbackSDPPrefix) {
		return nil, fmt.Errorf("malformed loopback descriptor %q", sdp)
	}
	id, err := strconv.Atoi(strings.TrimPrefix(sdp, loopbackSDPPrefix))
	if err != nil || id < 0 || id >= len(s.endpoints) {
		return nil, fmt.Errorf("unknown loopback endpoint %q", sdp)
	}
	return s.endpoints[id], nil
}

// Loopback is one end of an in-process channel. All state is guarded by the
// switchboard mutex; callbacks run on a per-endpoint goroutine in order.
type Loopback struct {
	sb       *Switchboard
	id       int
	role     room.Role
	handlers Handlers
	events   *dispatcher

	state      State
	terminated bool
	local      *Description
	remote     *Description
	peer       *Loopback
	candidates []Candidate
}

func (l *Loopback) Role() room.Role {
	return l.role
}

// RemoteCandidates returns the candidates applied so far.
func (l *Loopback) RemoteCandidates() []Candidate {
	l.sb.mu.Lock()
	defer l.sb.mu.Unlock()
	return append([]Candidate(nil), l.candidates...)
}

func (l *Loopback) descriptor(typ string) Description {
	return Description{Type: typ, SDP: loopbackSDPPrefix + strconv.Itoa(l.id)}
}

func (l *Loopback) CreateOffer() (Description, error) {
	return l.descriptor(TypeOffer), nil
}

func (l *Loopback) CreateAnswer() (Description, error) {
	l.sb.mu.Lock()
	defer l.sb.mu.Unlock()

	if l.remote == nil {
		return Description{}, errNoRemoteDescription
	}
	return l.descriptor(TypeAnswer), nil
}

func (l *Loopback) SetLocalDescription(d Description) error {
	l.sb.mu.Lock()
	defer l.sb.mu.Unlock()

	if l.terminated {
		return ErrChannelNotReady
	}
	l.local = &d
	candidate := Candidate{Candidate: loopbackCandidatePrefix + strconv.Itoa(l.id)}
	l.post(func() {
		if l.handlers.OnLocalCandidate != nil {
			l.handlers.OnLocalCandidate(candidate)
		}
	})
	l.maybeOpenLocked()
	return nil
}

func (l *Loopback) SetRemoteDescription(d Description) error {
	l.sb.mu.Lock()
	defer l.sb.mu.Unlock()

	if l.terminated {
		return ErrChannelNotReady
	}
	if d.Type != TypeOffer && d.Type != TypeAnswer {
		return fmt.Errorf("unsupported description type %q", d.Type)
	}
	peer, err := l.sb.lookup(d.SDP)
	if err != nil {
		return err
	}
	if peer == l {
		return errors.New("cannot link endpoint to itself")
	}

	l.remote = &d
	l.peer = peer
	if peer.peer == nil {
		peer.peer = l
	}
	l.maybeOpenLocked()
	return nil
}

func (l *Loopback) HasRemoteDescription() bool {
	l.sb.mu.Lock()
	defer l.sb.mu.Unlock()
	return l.remote != nil
}

func (l *Loopback) AddRemoteCandidate(c Candidate) error {
	l.sb.mu.Lock()
	defer l.sb.mu.Unlock()

	if l.remote == nil {
		return errNoRemoteDescription
	}
	if !strings.HasPrefix(c.Candidate, loopbackCandidatePrefix) {
		return fmt.Errorf("malformed loopback candidate %q", c.Candidate)
	}
	l.candidates = append(l.candidates, c)
	return nil
}

// maybeOpenLocked opens both ends once each has a local and remote description.
func (l *Loopback) maybeOpenLocked() {
	p := l.peer
	if p == nil || p.peer != l {
		return
	}
	if l.local == nil || l.remote == nil || p.local == nil || p.remote == nil {
		return
	}
	if l.state != StateConnecting || p.state != StateConnecting {
		return
	}

	for _, end := range []*Loopback{l, p} {
		end.state = StateOpen
		end.post(func() {
			if end.handlers.OnOpen != nil {
				end.handlers.OnOpen()
			}
		})
	}
}

func (l *Loopback) Send(data []byte) error {
	l.sb.mu.Lock()
	defer l.sb.mu.Unlock()

	if l.state != StateOpen || l.peer == nil {
		return ErrChannelNotReady
	}

	p := l.peer
	msg := append([]byte(nil), data...)
	p.post(func() {
		if p.handlers.OnMessage != nil {
			p.handlers.OnMessage(msg)
		}
	})
	return nil
}

func (l *Loopback) State() State {
	l.sb.mu.Lock()
	defer l.sb.mu.Unlock()
	return l.state
}

// Close closes this end. The remote end observes OnClose.
func (l *Loopback) Close() error {
	l.sb.mu.Lock()
	defer l.sb.mu.Unlock()

	if !l.terminated {
		l.terminated = true
		l.state = StateClosed
		if p := l.peer; p != nil && p.peer == l {
			p.closeLocked(nil)
		}
	}
	l.events.stop()
	return nil
}

// Fail simulates a transport error on this end. The local side observes
// OnError and the remote side OnClose.
func (l *Loopback) Fail(err error) {
	l.sb.mu.Lock()
	defer l.sb.mu.Unlock()

	if l.terminated {
		return
	}
	l.closeLocked(err)
	if p := l.peer; p != nil && p.peer == l {
		p.closeLocked(nil)
	}
}

func (l *Loopback) closeLocked(err error) {
	if l.terminated {
		return
	}
	l.terminated = true
	if err != nil {
		l.state = StateErrored
		l.post(func() {
			if l.handlers.OnError != nil {
				l.handlers.OnError(err)
			}
		})
		return
	}
	l.state = StateClosed
	l.post(func() {
		if l.handlers.OnClose != nil {
			l.handlers.OnClose()
		}
	})
}

func (l *Loopback) post(fn func()) {
	l.events.post(fn)
}

// dispatcher runs callbacks one at a time in submission order. The queue is
// unbounded so senders never block on a slow receiver.
type dispatcher struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) post(fn func()) {
	d.mu.Lock()
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	for {
		select {
		case <-d.wake:
		case <-d.done:
			return
		}

		for {
			select {
			case <-d.done:
				return
			default:
			}

			d.mu.Lock()
			if len(d.queue) == 0 {
				d.mu.Unlock()
				break
			}
			fn := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			d.mu.Unlock()

			fn()
		}
	}
}

func (d *dispatcher) stop() {
	d.once.Do(func() { close(d.done) })
}
