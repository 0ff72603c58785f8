package engineio

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ConnectionHandler is invoked exactly once per new session, right before its
// OPEN packet is queued, so the caller (the Socket.IO layer) can wire up
// Session.OnMessage/OnClose before any traffic arrives.
type ConnectionHandler func(s *Session)

// Handler is the Engine.IO HTTP entrypoint: a plain http.Handler that a host
// router mounts at whatever path it chooses (spec.md's Design Notes §9 open
// question — this type never hardcodes one). It derives sid/transport
// solely from query parameters, per spec.md §6.
type Handler struct {
	registry *Registry
	cfg      Config
	onConn   ConnectionHandler
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

// NewHandler builds an Engine.IO handler bound to cfg. onConn is called
// synchronously for every newly handshaked session, before its OPEN packet
// is flushed to the client.
func NewHandler(cfg Config, onConn ConnectionHandler) *Handler {
	return &Handler{
		registry: NewRegistry(cfg),
		cfg:      cfg,
		onConn:   onConn,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logrus.NewEntry(logrus.StandardLogger()),
	}
}

// Registry exposes the session registry for host-level introspection
// (metrics, graceful shutdown).
func (h *Handler) Registry() *Registry { return h.registry }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("EIO") != "4" {
		http.Error(w, ErrBadQuery.Error(), http.StatusBadRequest)
		return
	}

	transport := q.Get("transport")
	sid := q.Get("sid")

	switch transport {
	case "polling":
		h.servePolling(w, r, sid)
	case "websocket":
		h.serveWebsocket(w, r, sid)
	default:
		http.Error(w, ErrBadQuery.Error(), http.StatusBadRequest)
	}
}

type openPayload struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"`
	PingTimeout  int64    `json:"pingTimeout"`
	MaxPayload   int64    `json:"maxPayload"`
}

func (h *Handler) openPacket(s *Session, upgrades []string) Packet {
	body := openPayload{
		SID:          s.SID(),
		Upgrades:     upgrades,
		PingInterval: h.cfg.PingInterval.Milliseconds(),
		PingTimeout:  h.cfg.PingTimeout.Milliseconds(),
		MaxPayload:   h.cfg.MaxPayload,
	}
	data, _ := json.Marshal(body)
	return Packet{Type: Open, Text: string(data)}
}

func (h *Handler) handshake(transport Transport, peerInfo any, upgrades []string) *Session {
	s := h.registry.Create(transport, peerInfo)
	if h.onConn != nil {
		h.onConn(s)
	}
	s.Enqueue(h.openPacket(s, upgrades))
	return s
}
