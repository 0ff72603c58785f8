package engineio

import (
	"io"
	"net/http"
)

// servePolling implements spec.md §4.4's long-polling adapter: GET performs
// handshake-or-poll, POST feeds packets into an existing session.
func (h *Handler) servePolling(w http.ResponseWriter, r *http.Request, sid string) {
	switch r.Method {
	case http.MethodGet:
		h.pollingGET(w, r, sid)
	case http.MethodPost:
		h.pollingPOST(w, r, sid)
	default:
		http.Error(w, ErrBadQuery.Error(), http.StatusBadRequest)
	}
}

func (h *Handler) pollingGET(w http.ResponseWriter, r *http.Request, sid string) {
	if sid == "" {
		s := h.handshake(TransportPolling, peerInfoFromRequest(r), []string{"websocket"})
		h.writePollBatch(w, r, s)
		return
	}

	s, ok := h.registry.Get(sid)
	if !ok {
		http.Error(w, ErrUnknownSID.Error(), http.StatusBadRequest)
		return
	}
	if s.Transport() != TransportPolling || s.IsUpgrading() {
		http.Error(w, ErrUpgraded.Error(), http.StatusBadRequest)
		return
	}
	if !s.TryAcquirePoll() {
		http.Error(w, ErrSecondConcurrentGET.Error(), http.StatusBadRequest)
		return
	}
	defer s.ReleasePoll()

	h.writePollBatch(w, r, s)
}

// writePollBatch waits for outbound packets and writes them framed as a
// polling payload. If the client disconnects mid-wait, the drained batch is
// requeued at the head of the outbound queue per spec.md §5.
func (h *Handler) writePollBatch(w http.ResponseWriter, r *http.Request, s *Session) {
	timeout := h.cfg.PingInterval + h.cfg.PingTimeout
	packets, ok, cancelled := s.WaitOutbound(timeout, r.Context().Done())
	if cancelled {
		s.requeueFront(packets)
		return
	}
	if !ok {
		// Session closed while we waited and nothing was queued.
		http.Error(w, ErrUnknownSID.Error(), http.StatusBadRequest)
		return
	}

	batch, consumed := encodePollingBatch(packets, int(h.cfg.MaxPayload))
	// Packets that didn't fit under MaxPayload stay queued for the next poll.
	s.requeueFront(packets[consumed:])
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, batch)

	if reason, done := s.TakeClosingReason(); done {
		s.Close(reason)
	}
}

func (h *Handler) pollingPOST(w http.ResponseWriter, r *http.Request, sid string) {
	if sid == "" {
		http.Error(w, ErrBadQuery.Error(), http.StatusBadRequest)
		return
	}
	s, ok := h.registry.Get(sid)
	if !ok {
		http.Error(w, ErrUnknownSID.Error(), http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.cfg.MaxPayload+1))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	packets, err := decodePollingBatch(body, int(h.cfg.MaxPayload))
	if err != nil {
		s.Close(ReasonParseError)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	for _, p := range packets {
		s.dispatch(p)
	}

	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

// peerInfoFromRequest captures the opaque client metadata the host may want
// forwarded to handlers (remote addr, user agent). The core never
// interprets this value.
func peerInfoFromRequest(r *http.Request) any {
	return map[string]string{
		"remoteAddr": r.RemoteAddr,
		"userAgent":  r.UserAgent(),
	}
}
