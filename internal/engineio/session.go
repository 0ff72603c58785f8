package engineio

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transport identifies which carrier currently owns delivery for a session.
type Transport string

const (
	TransportPolling   Transport = "polling"
	TransportWebsocket Transport = "websocket"
)

// state is the heartbeat/session lifecycle state from spec.md §4.3.
type state int

const (
	stateOpen state = iota
	stateLive
	stateClosed
)

// MessageHandler receives decoded MESSAGE payloads (text or binary) in
// arrival order, on the session's single logical executor.
type MessageHandler func(s *Session, text string, binary []byte)

// CloseHandler is invoked exactly once when a session tears down.
type CloseHandler func(s *Session, reason CloseReason)

// Session is one open Engine.IO connection: the per-connection state
// machine described in spec.md §3/§4.3. All mutable fields are guarded by
// mu; outbound delivery is signalled through a replace-and-close channel so
// both the blocking long-poll GET and the websocket writer can wait on it
// with (or without) a timeout.
type Session struct {
	sid string
	cfg Config

	registry *Registry

	mu           sync.Mutex
	state        state
	transport    Transport
	upgrading    bool
	pendingPoll  bool
	outbound     []Packet
	notify       chan struct{}
	closedCh     chan struct{}
	closeOnce    sync.Once
	lastPongAt   time.Time
	awaitingPong bool
	pingSentAt   time.Time

	peerInfo any

	onMessage    MessageHandler
	onCloseHooks []CloseHandler

	stopHeartbeat chan struct{}

	closing       bool
	closingReason CloseReason
}

func newSession(registry *Registry, cfg Config, transport Transport, peerInfo any) *Session {
	s := &Session{
		sid:           uuid.NewString(),
		cfg:           cfg,
		registry:      registry,
		state:         stateOpen,
		transport:     transport,
		notify:        make(chan struct{}),
		closedCh:      make(chan struct{}),
		lastPongAt:    time.Now(),
		peerInfo:      peerInfo,
		stopHeartbeat: make(chan struct{}),
	}
	return s
}

// SID returns the session's opaque id.
func (s *Session) SID() string { return s.sid }

// PeerInfo returns the opaque client metadata the host forwarded at handshake.
func (s *Session) PeerInfo() any { return s.peerInfo }

// Transport returns the currently authoritative transport.
func (s *Session) Transport() Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// OnMessage registers the MESSAGE callback. Must be set before the session
// starts reading (i.e. immediately after creation).
func (s *Session) OnMessage(h MessageHandler) {
	s.mu.Lock()
	s.onMessage = h
	s.mu.Unlock()
}

// OnClose registers a teardown callback. Multiple callbacks may be
// registered (the owning transport closes its physical connection; the
// Socket.IO layer detaches namespace sockets) — all run, in registration
// order, exactly once.
func (s *Session) OnClose(h CloseHandler) {
	s.mu.Lock()
	s.onCloseHooks = append(s.onCloseHooks, h)
	s.mu.Unlock()
}

// Done is closed exactly once, when the session has fully torn down.
func (s *Session) Done() <-chan struct{} { return s.closedCh }

// IsLive reports whether the session has completed at least one heartbeat
// round trip (spec.md §4.3's OPEN -> LIVE transition), as opposed to still
// sitting in its just-handshaked OPEN state.
func (s *Session) IsLive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateLive
}

func (s *Session) IsClosed() bool {
	select {
	case <-s.closedCh:
		return true
	default:
		return false
	}
}

// dispatch feeds a decoded inbound packet to the session's message handler
// (for MESSAGE) or handles PING/PONG/CLOSE directly. Transport adapters call
// this for every packet they decode, in arrival order.
func (s *Session) dispatch(p Packet) {
	switch p.Type {
	case Pong:
		s.handlePong()
	case Message:
		s.mu.Lock()
		h := s.onMessage
		s.mu.Unlock()
		if h != nil {
			h(s, p.Text, p.Binary)
		}
	case Close:
		// A NOOP is flushed to any in-flight/next poll before the session is
		// actually removed, so that poll completes cleanly instead of
		// racing a 400 (spec.md §8 scenario 3).
		s.MarkClosing(ReasonClientDisconnect)
	default:
		// PING/OPEN/UPGRADE/NOOP from a client are protocol noise; ignored.
	}
}

func (s *Session) handlePong() {
	s.mu.Lock()
	s.awaitingPong = false
	s.lastPongAt = time.Now()
	if s.state == stateOpen {
		// First heartbeat round trip promotes the session out of the
		// handshake-only OPEN state (spec.md §4.3).
		s.state = stateLive
	}
	s.mu.Unlock()
}

// Enqueue appends a packet to the outbound FIFO and wakes any waiter. Safe
// to call from any goroutine (heartbeat, Socket.IO emit, transport upgrade).
func (s *Session) Enqueue(p Packet) {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	s.outbound = append(s.outbound, p)
	ch := s.notify
	s.notify = make(chan struct{})
	s.mu.Unlock()
	close(ch)
}

// requeueFront puts packets back at the head of the outbound queue, used
// when a drained poll batch must be un-drained after the client connection
// dropped mid-response (spec.md §5 cancellation rules).
func (s *Session) requeueFront(packets []Packet) {
	if len(packets) == 0 {
		return
	}
	s.mu.Lock()
	s.outbound = append(append([]Packet{}, packets...), s.outbound...)
	ch := s.notify
	s.notify = make(chan struct{})
	s.mu.Unlock()
	close(ch)
}

// drainAll atomically empties and returns the outbound queue.
func (s *Session) drainAll() []Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.outbound
	s.outbound = nil
	return out
}

// WaitOutbound blocks until the outbound queue is non-empty, the session
// closes, timeout elapses (timeout<=0 means block indefinitely), or cancel
// fires, then returns a drained batch. ok is false only if the session
// closed with nothing queued. cancelled is true if cancel fired first, in
// which case the caller must requeueFront(packets) instead of delivering
// them (spec.md §5's cancellation rule).
func (s *Session) WaitOutbound(timeout time.Duration, cancel <-chan struct{}) (packets []Packet, ok bool, cancelled bool) {
	for {
		s.mu.Lock()
		if len(s.outbound) > 0 {
			out := s.outbound
			s.outbound = nil
			s.mu.Unlock()
			return out, true, false
		}
		if s.state == stateClosed {
			s.mu.Unlock()
			return nil, false, false
		}
		ch := s.notify
		s.mu.Unlock()

		var timer *time.Timer
		var timerC <-chan time.Time
		if timeout > 0 {
			timer = time.NewTimer(timeout)
			timerC = timer.C
		}

		select {
		case <-ch:
			stopTimer(timer)
			continue
		case <-s.closedCh:
			stopTimer(timer)
			return s.drainAll(), true, false
		case <-cancel:
			stopTimer(timer)
			return s.drainAll(), true, true
		case <-timerC:
			return s.drainAll(), true, false
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// TryAcquirePoll enforces "only one concurrent GET per session".
func (s *Session) TryAcquirePoll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingPoll {
		return false
	}
	s.pendingPoll = true
	return true
}

func (s *Session) ReleasePoll() {
	s.mu.Lock()
	s.pendingPoll = false
	s.mu.Unlock()
}

// BeginUpgrade marks the session as having a probing secondary transport.
func (s *Session) BeginUpgrade() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upgrading || s.transport == TransportWebsocket {
		return false
	}
	s.upgrading = true
	return true
}

// CompleteUpgrade switches the authoritative transport to websocket. Packets
// still sitting in the outbound queue stay there and are delivered by the
// new websocket writer; if a poll is suspended, a NOOP is queued to wake it.
func (s *Session) CompleteUpgrade() {
	s.mu.Lock()
	s.transport = TransportWebsocket
	s.upgrading = false
	wasPolling := s.pendingPoll
	s.mu.Unlock()
	if wasPolling {
		// Wake the suspended GET with a NOOP so it completes instead of
		// blocking until its timeout (spec.md §4.3 Upgrade).
		s.Enqueue(Packet{Type: Noop})
	}
}

func (s *Session) AbortUpgrade() {
	s.mu.Lock()
	s.upgrading = false
	s.mu.Unlock()
}

func (s *Session) IsUpgrading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upgrading
}

// MarkClosing queues a NOOP and flags the session to be finalized (removed
// from its registry) once that NOOP has actually been flushed to the
// client, instead of racing an in-flight poll with immediate removal.
func (s *Session) MarkClosing(reason CloseReason) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.closing = true
	s.closingReason = reason
	s.mu.Unlock()
	s.Enqueue(Packet{Type: Noop})
}

// TakeClosingReason reports whether the session has been marked for
// finalization; transport adapters call this after flushing a batch.
func (s *Session) TakeClosingReason() (CloseReason, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closing {
		return "", false
	}
	return s.closingReason, true
}

// Close tears the session down exactly once and removes it from its
// registry.
func (s *Session) Close(reason CloseReason) {
	s.registry.remove(s.sid, reason)
}

// shutdown performs the actual teardown; only the registry calls this,
// after removing the session from its map, guaranteeing it runs once.
func (s *Session) shutdown(reason CloseReason) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = stateClosed
		hooks := s.onCloseHooks
		s.mu.Unlock()

		close(s.stopHeartbeat)
		close(s.closedCh)

		for _, hook := range hooks {
			hook(s, reason)
		}
	})
}

func (s *Session) heartbeatLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	nextPingAt := time.Now().Add(s.cfg.PingInterval)
	for {
		select {
		case <-s.stopHeartbeat:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			awaiting := s.awaitingPong
			lastPongAt := s.lastPongAt
			s.mu.Unlock()

			if awaiting && now.Sub(lastPongAt) > s.cfg.PingInterval+s.cfg.PingTimeout {
				s.Close(ReasonPingTimeout)
				return
			}
			if !awaiting && !now.Before(nextPingAt) {
				s.mu.Lock()
				s.awaitingPong = true
				s.pingSentAt = now
				s.mu.Unlock()
				nextPingAt = now.Add(s.cfg.PingInterval)
				s.Enqueue(Packet{Type: Ping})
			}
		}
	}
}
