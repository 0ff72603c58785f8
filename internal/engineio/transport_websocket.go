package engineio

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// serveWebsocket implements spec.md §4.4's websocket adapter, including the
// probe/upgrade handshake of §4.3 when sid names an existing polling
// session.
func (h *Handler) serveWebsocket(w http.ResponseWriter, r *http.Request, sid string) {
	if sid == "" {
		ws, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s := h.handshake(TransportWebsocket, peerInfoFromRequest(r), []string{})
		h.runWebsocket(s, ws)
		return
	}

	s, ok := h.registry.Get(sid)
	if !ok {
		http.Error(w, ErrUnknownSID.Error(), http.StatusBadRequest)
		return
	}
	if !s.BeginUpgrade() {
		// A second websocket racing the same sid (spec.md §4.3: "a second
		// websocket open with the same sid is closed immediately"). The
		// handshake still completes so the racing client observes a normal
		// upgrade followed by an immediate close, rather than a rejected
		// handshake.
		h.log.WithField("sid", sid).WithError(ErrUpgradeCollision).Warn("engineio: rejecting racing websocket upgrade")
		ws, err := h.upgrader.Upgrade(w, r, nil)
		if err == nil {
			_ = ws.Close()
		}
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.AbortUpgrade()
		return
	}

	if !h.runProbe(s, ws) {
		s.AbortUpgrade()
		_ = ws.Close()
		return
	}

	s.CompleteUpgrade()
	h.runWebsocket(s, ws)
}

// runProbe expects exactly "2probe", replies "3probe", then waits for the
// UPGRADE packet ("5").
func (h *Handler) runProbe(s *Session, ws *websocket.Conn) bool {
	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PingInterval + h.cfg.PingTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil || string(data) != "2probe" {
		return false
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, []byte("3probe")); err != nil {
		return false
	}

	_, data, err = ws.ReadMessage()
	if err != nil || len(data) == 0 || PacketType(data[0]) != Upgrade {
		return false
	}
	_ = ws.SetReadDeadline(time.Time{})
	return true
}

func (h *Handler) runWebsocket(s *Session, ws *websocket.Conn) {
	ws.SetReadLimit(h.cfg.MaxPayload)

	s.OnClose(func(_ *Session, _ CloseReason) {
		_ = ws.Close()
	})

	done := make(chan struct{})
	go func() {
		h.websocketWriter(s, ws, done)
	}()

	h.websocketReader(s, ws)
	close(done)
}

func (h *Handler) websocketReader(s *Session, ws *websocket.Conn) {
	defer s.Close(ReasonTransportClose)
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		pkt, decodeErr := decodeWebsocketFrame(data, msgType == websocket.BinaryMessage)
		if decodeErr != nil {
			s.Close(ReasonParseError)
			return
		}
		s.dispatch(pkt)
	}
}

func (h *Handler) websocketWriter(s *Session, ws *websocket.Conn, done <-chan struct{}) {
	for {
		packets, ok, cancelled := s.WaitOutbound(0, done)
		if cancelled || !ok {
			return
		}
		for _, p := range packets {
			payload, isBinary := p.encodeForWebsocket()
			mt := websocket.TextMessage
			if isBinary {
				mt = websocket.BinaryMessage
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(mt, payload); err != nil {
				s.Close(ReasonTransportClose)
				return
			}
		}
		if reason, closing := s.TakeClosingReason(); closing {
			s.Close(reason)
			return
		}
	}
}
