package peer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BioHazard786/Roomdrop/internal/config"
	"github.com/BioHazard786/Roomdrop/internal/room"
	"github.com/pion/webrtc/v4"
)

// --- Buffer Management Constants ---
const (
	HighWaterMark = 2 * 1024 * 1024 // 2 MB - backpressure threshold
	LowWaterMark  = 512 * 1024      // 512 KB - resume threshold
)

var errBufferTimeout = errors.New("buffer drain timeout")

// NewPionFactory returns a Factory that builds WebRTC data channel links
// using the ICE servers from cfg.
func NewPionFactory(cfg *config.Config) Factory {
	return func(role room.Role, h Handlers) (Channel, error) {
		return newPionChannel(cfg, role, h)
	}
}

type pionChannel struct {
	pc          *webrtc.PeerConnection
	handlers    Handlers
	sendTimeout time.Duration

	mu         sync.Mutex
	dc         *webrtc.DataChannel
	state      State
	terminated bool
	drained    chan struct{}
}

func newPionChannel(cfg *config.Config, role room.Role, h Handlers) (*pionChannel, error) {
	pc, err := newPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	c := &pionChannel{
		pc:          pc,
		handlers:    h,
		sendTimeout: cfg.SendTimeout,
		state:       StateConnecting,
		drained:     make(chan struct{}, 1),
	}
	if c.sendTimeout <= 0 {
		c.sendTimeout = config.DefaultSendTimeout
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil || h.OnLocalCandidate == nil {
			return
		}
		init := candidate.ToJSON()
		h.OnLocalCandidate(Candidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Debug("peer connection state changed", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed:
			c.finish(StateErrored, errors.New("peer connection failed"))
		case webrtc.PeerConnectionStateClosed:
			c.finish(StateClosed, nil)
		}
	})

	if role == room.Initiator {
		ordered := true
		dc, err := pc.CreateDataChannel(Label, &webrtc.DataChannelInit{Ordered: &ordered})
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("create data channel: %w", err)
		}
		c.attach(dc)
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			if dc.Label() != Label {
				slog.Warn("ignoring unexpected data channel", "label", dc.Label())
				return
			}
			c.attach(dc)
		})
	}

	return c, nil
}

// newPeerConnection centralizes ICE server configuration
func newPeerConnection(cfg *config.Config) (*webrtc.PeerConnection, error) {
	var iceServers []webrtc.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	// ForceRelay uses only TURN servers (useful behind restrictive networks)
	policy := webrtc.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || restrictedNetwork()) {
		policy = webrtc.ICETransportPolicyRelay
	}

	return webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	})
}

func (c *pionChannel) attach(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.SetBufferedAmountLowThreshold(LowWaterMark)
	dc.OnBufferedAmountLow(func() {
		select {
		case c.drained <- struct{}{}:
		default:
		}
	})

	dc.OnOpen(func() {
		c.mu.Lock()
		if c.terminated {
			c.mu.Unlock()
			return
		}
		c.state = StateOpen
		c.mu.Unlock()

		if c.handlers.OnOpen != nil {
			c.handlers.OnOpen()
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(msg.Data)
		}
	})

	dc.OnClose(func() {
		c.finish(StateClosed, nil)
	})

	dc.OnError(func(err error) {
		c.finish(StateErrored, err)
	})
}

// finish records a terminal state and reports it once.
func (c *pionChannel) finish(state State, err error) {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return
	}
	c.terminated = true
	c.state = state
	c.mu.Unlock()

	if err != nil {
		if c.handlers.OnError != nil {
			c.handlers.OnError(err)
		}
		return
	}
	if c.handlers.OnClose != nil {
		c.handlers.OnClose()
	}
}

func (c *pionChannel) CreateOffer() (Description, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return Description{}, fmt.Errorf("create offer: %w", err)
	}
	return fromPion(offer), nil
}

func (c *pionChannel) CreateAnswer() (Description, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return Description{}, fmt.Errorf("create answer: %w", err)
	}
	return fromPion(answer), nil
}

func (c *pionChannel) SetLocalDescription(d Description) error {
	if err := c.pc.SetLocalDescription(toPion(d)); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	return nil
}

func (c *pionChannel) SetRemoteDescription(d Description) error {
	if err := c.pc.SetRemoteDescription(toPion(d)); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (c *pionChannel) HasRemoteDescription() bool {
	return c.pc.RemoteDescription() != nil
}

func (c *pionChannel) AddRemoteCandidate(candidate Candidate) error {
	err := c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        candidate.Candidate,
		SDPMid:           candidate.SDPMid,
		SDPMLineIndex:    candidate.SDPMLineIndex,
		UsernameFragment: candidate.UsernameFragment,
	})
	if err != nil {
		return fmt.Errorf("add ICE candidate: %w", err)
	}
	return nil
}

func (c *pionChannel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send writes one message, waiting while the SCTP buffer is above the high
// water mark.
func (c *pionChannel) Send(data []byte) error {
	c.mu.Lock()
	dc, state := c.dc, c.state
	c.mu.Unlock()

	if dc == nil || state != StateOpen {
		return ErrChannelNotReady
	}
	if err := c.waitForWindow(dc); err != nil {
		return err
	}
	if err := dc.Send(data); err != nil {
		if c.State() != StateOpen {
			return ErrChannelNotReady
		}
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (c *pionChannel) waitForWindow(dc *webrtc.DataChannel) error {
	bufferedAmount := dc.BufferedAmount()
	if bufferedAmount < HighWaterMark {
		return nil
	}

	select {
	case <-c.drained:
		return nil
	case <-time.After(c.sendTimeout):
		// Slow links still count as progress
		if dc.BufferedAmount() < bufferedAmount {
			return nil
		}
		return errBufferTimeout
	}
}

func (c *pionChannel) Close() error {
	c.mu.Lock()
	c.terminated = true
	if c.state == StateConnecting || c.state == StateOpen {
		c.state = StateClosed
	}
	dc := c.dc
	c.mu.Unlock()

	if dc != nil {
		dc.Close()
	}
	return c.pc.Close()
}

func toPion(d Description) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(d.Type), SDP: d.SDP}
}

func fromPion(d webrtc.SessionDescription) Description {
	return Description{Type: d.Type.String(), SDP: d.SDP}
}
