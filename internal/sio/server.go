package sio

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sio-engine/internal/channel"
	"sio-engine/internal/engineio"
	"sio-engine/internal/logging"
)

// Server is the Socket.IO layer sitting on top of an engineio.Handler: it
// receives decoded MESSAGE payloads from each session, parses the Socket.IO
// framing, and dispatches to the registered namespaces (spec.md §4.5).
type Server struct {
	engine  *engineio.Handler
	channel channel.Layer
	log     *logrus.Entry

	mu         sync.RWMutex
	namespaces map[string]*Namespace

	sessMu   sync.Mutex
	sessions map[string]*serverSession // engine sid -> session state
}

// NewServer builds a Socket.IO server bound to an Engine.IO config and a
// channel layer used for room broadcast fan-out. Pass channel.NewMemory()
// for a single-process deployment or channel.NewRedis(...) for multi-process.
func NewServer(eioCfg engineio.Config, ch channel.Layer, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	srv := &Server{
		channel:    ch,
		log:        log,
		namespaces: make(map[string]*Namespace),
		sessions:   make(map[string]*serverSession),
	}
	srv.engine = engineio.NewHandler(eioCfg, srv.onConnection)
	return srv
}

// EngineHandler returns the plain http.Handler a host router mounts at
// whatever path it chooses (spec.md's Design Notes §9 open question).
func (srv *Server) EngineHandler() *engineio.Handler { return srv.engine }

// Of registers (or returns the existing) namespace at path. path must begin
// with "/"; the empty string is treated as "/".
func (srv *Server) Of(path string) *Namespace {
	if path == "" {
		path = "/"
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	ns, ok := srv.namespaces[path]
	if !ok {
		ns = newNamespace(path, srv.channel)
		srv.namespaces[path] = ns
	}
	return ns
}

func (srv *Server) namespace(path string) (*Namespace, bool) {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	ns, ok := srv.namespaces[path]
	return ns, ok
}

// serverSession tracks the Socket.IO-level state for one Engine.IO session:
// its attached namespace sockets and in-flight binary reassembly buffer.
// Single-writer per session (the engine's MessageHandler callback runs on
// one logical executor per spec.md §5), so no locking is needed on the
// reassembly buffer itself.
type serverSession struct {
	eio *engineio.Session
	srv *Server
	log *logrus.Entry

	socketsMu sync.Mutex
	sockets   map[string]*NamespaceSocket // namespace path -> socket

	acks *ackTracker

	pending      *Packet // header awaiting its binary attachments
	pendingCount int
	pendingBuf   [][]byte
}

func (s *serverSession) sid() string { return s.eio.SID() }

// deliverBroadcast is the channel-layer delivery callback: it enqueues a
// room/namespace broadcast published by any process into this session's
// Engine.IO outbound queue, verbatim.
func (sess *serverSession) deliverBroadcast(msg channel.Message) {
	sess.eio.Enqueue(engineio.Packet{Type: engineio.Message, Text: string(msg.Data)})
	for _, b := range msg.Binary {
		sess.eio.Enqueue(engineio.Packet{Type: engineio.Message, Binary: b})
	}
}

func (srv *Server) onConnection(eio *engineio.Session) {
	sess := &serverSession{
		eio:     eio,
		srv:     srv,
		log:     logging.WithSession(srv.log.Logger, eio.SID()),
		sockets: make(map[string]*NamespaceSocket),
		acks:    newAckTracker(),
	}
	sess.log.Debug("sio: session attached")
	srv.sessMu.Lock()
	srv.sessions[eio.SID()] = sess
	srv.sessMu.Unlock()

	eio.OnMessage(sess.onMessage)
	eio.OnClose(func(_ *engineio.Session, reason engineio.CloseReason) {
		srv.sessMu.Lock()
		delete(srv.sessions, eio.SID())
		srv.sessMu.Unlock()
		sess.teardown(string(reason))
	})
}

func (sess *serverSession) onMessage(eio *engineio.Session, text string, binary []byte) {
	if sess.pending != nil {
		sess.feedAttachment(binary)
		return
	}

	pkt, err := Decode(text)
	if err != nil {
		eio.Close(engineio.ReasonParseError)
		return
	}

	if pkt.Type.isBinary() && pkt.AttachmentCount > 0 {
		// Size the reassembly buffer off the placeholders actually present
		// in the payload, not just the wire header, so a header/payload
		// mismatch is caught here instead of silently under/over-reading
		// attachment frames.
		var decoded any
		if err := json.Unmarshal(pkt.Data, &decoded); err != nil {
			eio.Close(engineio.ReasonParseError)
			return
		}
		count := engineio.CountPlaceholders(decoded)
		if count != pkt.AttachmentCount {
			eio.Close(engineio.ReasonParseError)
			return
		}
		sess.pending = &pkt
		sess.pendingCount = pkt.AttachmentCount
		sess.pendingBuf = make([][]byte, 0, count)
		return
	}

	sess.dispatch(pkt, nil)
}

func (sess *serverSession) feedAttachment(binary []byte) {
	sess.pendingBuf = append(sess.pendingBuf, binary)
	if len(sess.pendingBuf) < sess.pendingCount {
		return
	}
	pkt := *sess.pending
	attachments := sess.pendingBuf
	sess.pending = nil
	sess.pendingCount = 0
	sess.pendingBuf = nil
	sess.dispatch(pkt, attachments)
}

func (sess *serverSession) dispatch(pkt Packet, attachments [][]byte) {
	switch pkt.Type {
	case Connect:
		sess.handleConnect(pkt)
	case Disconnect:
		sess.handleDisconnect(pkt, "client-disconnect")
	case Event, BinaryEvent:
		sess.handleEvent(pkt, attachments)
	case Ack, BinaryAck:
		sess.handleAck(pkt, attachments)
	case ConnectError:
		// Servers don't receive CONNECT_ERROR from clients; ignore.
	}
}

func (sess *serverSession) handleConnect(pkt Packet) {
	ns, ok := sess.srv.namespace(pkt.Namespace)
	if !ok {
		sess.sendConnectError(pkt.Namespace, "Invalid namespace")
		return
	}

	sess.socketsMu.Lock()
	_, already := sess.sockets[pkt.Namespace]
	sess.socketsMu.Unlock()
	if already {
		// CONNECT to an already-connected namespace is a protocol error
		// (resolved Open Question, see DESIGN.md): force-close the session.
		sess.eio.Close(engineio.ReasonParseError)
		return
	}

	sock := &NamespaceSocket{
		nsid:      uuid.NewString(),
		namespace: ns,
		session:   sess,
		rooms:     make(map[string]struct{}),
	}

	if hook := ns.connectHook(); hook != nil {
		if err := hook(sock, pkt.Data); err != nil {
			sess.sendConnectError(pkt.Namespace, err.Error())
			return
		}
	}

	ns.attach(sock)
	sess.socketsMu.Lock()
	sess.sockets[pkt.Namespace] = sock
	sess.socketsMu.Unlock()

	sub, err := ns.channel.Subscribe(context.Background(), sock.nsid, sess.deliverBroadcast)
	if err == nil {
		sock.subscription = sub
	}
	// A socket is implicitly a member of its namespace's well-known
	// "every socket" group (room="") so room-less broadcasts reach it.
	_ = ns.channel.GroupAdd(context.Background(), ns.broadcastKey(""), sock.nsid)

	reply, err := EncodeConnect(pkt.Namespace, sock.nsid)
	if err != nil {
		sess.sendConnectError(pkt.Namespace, "internal error")
		return
	}
	sess.send(reply, nil)
}

func (sess *serverSession) sendConnectError(ns, reason string) {
	pkt, err := EncodeConnectError(ns, reason)
	if err != nil {
		return
	}
	sess.send(pkt, nil)
}

func (sess *serverSession) handleDisconnect(pkt Packet, reason string) {
	sess.detachNamespace(pkt.Namespace, reason)
}

func (sess *serverSession) detachNamespace(ns string, reason string) {
	sess.socketsMu.Lock()
	sock, ok := sess.sockets[ns]
	if ok {
		delete(sess.sockets, ns)
	}
	sess.socketsMu.Unlock()
	if !ok {
		return
	}

	sock.leaveAll(context.Background())
	sock.namespace.detach(sock.nsid)
	if hook := sock.namespace.disconnectHook(); hook != nil {
		hook(sock, reason)
	}
}

func (sess *serverSession) teardown(reason string) {
	sess.log.WithField("reason", reason).Debug("sio: session detached")
	sess.socketsMu.Lock()
	all := make([]*NamespaceSocket, 0, len(sess.sockets))
	for _, sock := range sess.sockets {
		all = append(all, sock)
	}
	sess.sockets = make(map[string]*NamespaceSocket)
	sess.socketsMu.Unlock()

	for _, sock := range all {
		sock.leaveAll(context.Background())
		sock.namespace.detach(sock.nsid)
		if hook := sock.namespace.disconnectHook(); hook != nil {
			hook(sock, reason)
		}
	}
	sess.acks.failAll()
}

func (sess *serverSession) handleEvent(pkt Packet, attachments [][]byte) {
	sess.socketsMu.Lock()
	sock, ok := sess.sockets[pkt.Namespace]
	sess.socketsMu.Unlock()
	if !ok {
		return
	}

	name, rawArgs, err := EventArgs(pkt.Data)
	if err != nil {
		sess.eio.Close(engineio.ReasonParseError)
		return
	}

	handler, ok := sock.namespace.handlerFor(name)
	if !ok {
		return
	}

	args, err := decodeArguments(rawArgs, attachments)
	if err != nil {
		sess.eio.Close(engineio.ReasonParseError)
		return
	}

	var ackFn AckFunc
	if pkt.AckID != nil {
		id := *pkt.AckID
		ns := pkt.Namespace
		ackFn = func(replyArgs ...any) {
			sess.sendAckReply(ns, id, replyArgs...)
		}
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				sess.log.WithField("event", name).WithField("panic", r).
					Error("sio: event handler panicked")
			}
		}()
		handler(sock, args, ackFn)
	}()
}

func (sess *serverSession) sendAckReply(ns string, id int, args ...any) {
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

	pkt, err := EncodeAck(ns, id, encodedArgs...)
	if err != nil {
		return
	}
	if len(attachments) > 0 {
		pkt.Type = BinaryAck
		pkt.AttachmentCount = len(attachments)
	}
	sess.send(pkt, attachments)
}

func (sess *serverSession) handleAck(pkt Packet, attachments [][]byte) {
	if pkt.AckID == nil {
		return
	}
	var arr []json.RawMessage
	if len(pkt.Data) > 0 {
		_ = json.Unmarshal(pkt.Data, &arr)
	}
	sess.acks.resolve(*pkt.AckID, arr)
}

// send frames pkt (plus any binary attachments, in order) into the
// session's Engine.IO outbound queue.
func (sess *serverSession) send(pkt Packet, attachments [][]byte) {
	sess.eio.Enqueue(engineio.Packet{Type: engineio.Message, Text: pkt.Encode()})
	for _, b := range attachments {
		sess.eio.Enqueue(engineio.Packet{Type: engineio.Message, Binary: b})
	}
}

// decodeArguments turns an EVENT's JSON argument array plus any reassembled
// binary attachments into the Argument slice handlers see.
func decodeArguments(rawArgs []json.RawMessage, attachments [][]byte) ([]Argument, error) {
	out := make([]Argument, 0, len(rawArgs))
	for _, raw := range rawArgs {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		rebuilt, err := engineio.Reconstruct(v, attachments)
		if err != nil {
			return nil, err
		}
		if b, ok := rebuilt.([]byte); ok {
			out = append(out, Argument{Binary: b})
		} else {
			out = append(out, Argument{Raw: rebuilt})
		}
	}
	return out, nil
}

// EmitWithAck sends an EVENT on behalf of a server-initiated emit (not a
// reply to a client ack) and blocks until the client acks or timeout
// elapses, mirroring the teacher's conn.emitWithAck.
func (sock *NamespaceSocket) EmitWithAck(ctx context.Context, event string, timeout time.Duration, args ...any) ([]json.RawMessage, error) {
	id, ch := sock.session.acks.alloc()
	pkt, err := EncodeEvent(sock.namespace.path, &id, event, args...)
	if err != nil {
		sock.session.acks.cancel(id)
		return nil, err
	}
	sock.session.send(pkt, nil)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res.args, res.err
	case <-timer.C:
		sock.session.acks.cancel(id)
		return nil, context.DeadlineExceeded
	case <-ctx.Done():
		sock.session.acks.cancel(id)
		return nil, ctx.Err()
	}
}

// Emit sends a fire-and-forget EVENT to this socket only.
func (sock *NamespaceSocket) Emit(event string, args ...any) error {
	pkt, err := EncodeEvent(sock.namespace.path, nil, event, args...)
	if err != nil {
		return err
	}
	sock.session.send(pkt, nil)
	return nil
}

// ReplayRoom sends every retained history frame for room (see
// Namespace.EnableHistory) directly to this socket, e.g. right after it
// joins, without touching any other subscriber.
func (sock *NamespaceSocket) ReplayRoom(room string, after int64) {
	for _, entry := range sock.namespace.ReplayRoom(room, after) {
		sock.session.eio.Enqueue(engineio.Packet{Type: engineio.Message, Text: entry.Frame})
	}
}

func (n *Namespace) connectHook() ConnectHook {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.onConnect
}

func (n *Namespace) disconnectHook() DisconnectHook {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.onDisconnect
}
