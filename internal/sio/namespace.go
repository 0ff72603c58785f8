package sio

import (
	"context"
	"encoding/json"
	"sync"

	"sio-engine/internal/channel"
	"sio-engine/internal/engineio"
	"sio-engine/internal/roomlog"
)

// ConnectHook is invoked when a socket attempts CONNECT to a namespace,
// with the raw JSON auth payload the client sent alongside the CONNECT
// packet (may be empty). A non-nil error rejects the connection with
// CONNECT_ERROR, carrying the error's message as the reason (spec.md §4.5).
type ConnectHook func(sock *NamespaceSocket, auth json.RawMessage) error

// DisconnectHook is invoked once, after a namespace socket has left all its
// rooms, with the reason the session or namespace socket closed.
type DisconnectHook func(sock *NamespaceSocket, reason string)

// EventHandler receives a decoded event's arguments. If ack is non-nil, the
// handler may call it at most once to reply.
type EventHandler func(sock *NamespaceSocket, args []Argument, ack AckFunc)

// AckFunc sends an ACK/BINARY_ACK back to the client carrying args.
type AckFunc func(args ...any)

// Argument is one decoded EVENT argument: either typed JSON (Raw) or a
// reassembled binary attachment (Binary, non-nil).
type Argument struct {
	Raw    interface{}
	Binary []byte
}

// Namespace is a registered Socket.IO namespace (spec.md's "Namespace"
// type): a fixed path plus the event handlers and connect/disconnect hooks
// registered for it at startup.
type Namespace struct {
	path    string
	channel channel.Layer

	mu       sync.RWMutex
	sockets  map[string]*NamespaceSocket // nsid -> socket
	handlers map[string]EventHandler

	onConnect    ConnectHook
	onDisconnect DisconnectHook

	history *roomlog.Log
}

func newNamespace(path string, ch channel.Layer) *Namespace {
	return &Namespace{
		path:     path,
		channel:  ch,
		sockets:  make(map[string]*NamespaceSocket),
		handlers: make(map[string]EventHandler),
	}
}

// Path returns the namespace's path, e.g. "/" or "/chat".
func (n *Namespace) Path() string { return n.path }

// EnableHistory turns on replay-on-join history for this namespace's rooms,
// retaining up to capacity broadcasts per room (spec.md's supplemented
// "room history replay" feature). Not part of the core protocol: a
// namespace with no history enabled behaves exactly as spec.md describes.
func (n *Namespace) EnableHistory(capacity int) {
	n.mu.Lock()
	n.history = roomlog.New(capacity)
	n.mu.Unlock()
}

// ReplayRoom returns every retained broadcast for room after the given
// sequence number (0 to replay everything retained), or nil if history
// isn't enabled for this namespace.
func (n *Namespace) ReplayRoom(room string, after int64) []roomlog.Entry {
	n.mu.RLock()
	h := n.history
	n.mu.RUnlock()
	if h == nil {
		return nil
	}
	return h.ReplayAfter(n.path, room, after)
}

// On registers the handler invoked for EVENT/BINARY_EVENT packets named
// event. Must be called before the server starts accepting connections.
func (n *Namespace) On(event string, h EventHandler) {
	n.mu.Lock()
	n.handlers[event] = h
	n.mu.Unlock()
}

// OnConnect registers the hook run for every CONNECT attempt.
func (n *Namespace) OnConnect(h ConnectHook) {
	n.mu.Lock()
	n.onConnect = h
	n.mu.Unlock()
}

// OnDisconnect registers the hook run when a namespace socket detaches.
func (n *Namespace) OnDisconnect(h DisconnectHook) {
	n.mu.Lock()
	n.onDisconnect = h
	n.mu.Unlock()
}

func (n *Namespace) handlerFor(event string) (EventHandler, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	h, ok := n.handlers[event]
	return h, ok
}

func (n *Namespace) attach(sock *NamespaceSocket) {
	n.mu.Lock()
	n.sockets[sock.nsid] = sock
	n.mu.Unlock()
}

func (n *Namespace) detach(nsid string) (*NamespaceSocket, bool) {
	n.mu.Lock()
	sock, ok := n.sockets[nsid]
	if ok {
		delete(n.sockets, nsid)
	}
	n.mu.Unlock()
	return sock, ok
}

// broadcastKey returns the channel-layer key for (namespace, room). room=""
// denotes the well-known per-namespace key ("every socket in the namespace").
func (n *Namespace) broadcastKey(room string) string {
	return n.path + "\x00" + room
}

// Broadcast publishes an already-encoded packet to every socket joined to
// room in this namespace (room="" means the whole namespace), excluding
// skipNSID if set. Cross-process fan-out happens via the channel layer;
// local delivery happens identically whether the publisher or a remote
// process produced the message.
func (n *Namespace) Broadcast(ctx context.Context, room string, data []byte, binary [][]byte, skipNSID string) error {
	return n.channel.GroupSend(ctx, channel.Message{
		Key:    n.broadcastKey(room),
		Data:   data,
		Binary: binary,
		Skip:   skipNSID,
	})
}

// Emit encodes event/args as a Socket.IO EVENT (or BINARY_EVENT, if any arg
// is a []byte) and broadcasts it to room ("" for the whole namespace),
// optionally excluding the emitting socket.
func (n *Namespace) Emit(ctx context.Context, room string, skip *NamespaceSocket, event string, args ...any) error {
	attachments := make([][]byte, 0)
	encodedArgs := make([]any, len(args))
	for i, a := range args {
		if b, ok := a.([]byte); ok {
			idx := len(attachments)
			attachments = append(attachments, b)
			encodedArgs[i] = engineio.Placeholder{Placeholder: true, Num: idx}
		} else {
			encodedArgs[i] = a
		}
	}

	pkt, err := EncodeEvent(n.path, nil, event, encodedArgs...)
	if err != nil {
		return err
	}
	if len(attachments) > 0 {
		pkt.Type = BinaryEvent
		pkt.AttachmentCount = len(attachments)
	}

	skipNSID := ""
	if skip != nil {
		skipNSID = skip.nsid
	}
	frame := pkt.Encode()

	if room != "" && len(attachments) == 0 {
		// Binary broadcasts aren't retained: a replayed frame can't be
		// followed by the attachment frames that arrived with it.
		n.mu.RLock()
		h := n.history
		n.mu.RUnlock()
		if h != nil {
			h.Append(n.path, room, event, frame)
		}
	}

	return n.Broadcast(ctx, room, []byte(frame), attachments, skipNSID)
}

// NamespaceSocket is one (session, namespace) pair after a successful
// CONNECT (spec.md's "Namespace socket" type).
type NamespaceSocket struct {
	nsid      string
	namespace *Namespace
	session   *serverSession

	subscription channel.Subscription

	mu    sync.Mutex
	rooms map[string]struct{}
}

// NSID returns the namespace-scoped socket id.
func (s *NamespaceSocket) NSID() string { return s.nsid }

// Namespace returns the owning namespace.
func (s *NamespaceSocket) Namespace() *Namespace { return s.namespace }

// SessionID returns the parent Engine.IO session id.
func (s *NamespaceSocket) SessionID() string { return s.session.sid() }

// Join adds room to this socket's membership and registers it with the
// channel layer under (namespace, room).
func (s *NamespaceSocket) Join(ctx context.Context, room string) error {
	s.mu.Lock()
	s.rooms[room] = struct{}{}
	s.mu.Unlock()
	return s.namespace.channel.GroupAdd(ctx, s.namespace.broadcastKey(room), s.nsid)
}

// Leave removes room from this socket's membership.
func (s *NamespaceSocket) Leave(ctx context.Context, room string) error {
	s.mu.Lock()
	delete(s.rooms, room)
	s.mu.Unlock()
	return s.namespace.channel.GroupDiscard(ctx, s.namespace.broadcastKey(room), s.nsid)
}

// Rooms returns a snapshot of the socket's current room membership.
func (s *NamespaceSocket) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		out = append(out, r)
	}
	return out
}

func (s *NamespaceSocket) leaveAll(ctx context.Context) {
	s.mu.Lock()
	rooms := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.rooms = nil
	s.mu.Unlock()
	for _, r := range rooms {
		_ = s.namespace.channel.GroupDiscard(ctx, s.namespace.broadcastKey(r), s.nsid)
	}
	_ = s.namespace.channel.GroupDiscard(ctx, s.namespace.broadcastKey(""), s.nsid)
	if s.subscription != nil {
		_ = s.subscription.Close()
	}
}
