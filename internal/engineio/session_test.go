package engineio

import (
	"testing"
	"time"
)

func newTestSession() *Session {
	reg := NewRegistry(DefaultConfig())
	return reg.Create(TransportPolling, nil)
}

func TestSession_EnqueueWaitOutbound_FIFO(t *testing.T) {
	s := newTestSession()
	defer s.Close(ReasonClientDisconnect)

	s.Enqueue(Packet{Type: Message, Text: "one"})
	s.Enqueue(Packet{Type: Message, Text: "two"})

	packets, ok, cancelled := s.WaitOutbound(time.Second, nil)
	if !ok || cancelled {
		t.Fatalf("expected ok=true cancelled=false, got ok=%v cancelled=%v", ok, cancelled)
	}
	if len(packets) != 2 || packets[0].Text != "one" || packets[1].Text != "two" {
		t.Fatalf("expected FIFO order [one two], got %+v", packets)
	}
}

func TestSession_WaitOutbound_WakesOnEnqueue(t *testing.T) {
	s := newTestSession()
	defer s.Close(ReasonClientDisconnect)

	done := make(chan []Packet, 1)
	go func() {
		packets, _, _ := s.WaitOutbound(5*time.Second, nil)
		done <- packets
	}()

	time.Sleep(20 * time.Millisecond)
	s.Enqueue(Packet{Type: Message, Text: "woken"})

	select {
	case packets := <-done:
		if len(packets) != 1 || packets[0].Text != "woken" {
			t.Fatalf("unexpected packets: %+v", packets)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitOutbound did not wake on Enqueue")
	}
}

func TestSession_WaitOutbound_CancelRequeues(t *testing.T) {
	s := newTestSession()
	defer s.Close(ReasonClientDisconnect)

	s.Enqueue(Packet{Type: Message, Text: "pending"})
	cancel := make(chan struct{})
	close(cancel)

	// The packet may already be drained before cancel is observed, or
	// cancel may win the race; either is valid, but a cancelled result
	// must requeue so nothing is lost.
	packets, ok, cancelled := s.WaitOutbound(time.Second, cancel)
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if cancelled {
		s.requeueFront(packets)
		requeued, ok2, _ := s.WaitOutbound(time.Second, nil)
		if !ok2 || len(requeued) != 1 || requeued[0].Text != "pending" {
			t.Fatalf("expected requeued packet to be redelivered, got %+v", requeued)
		}
	} else if len(packets) != 1 || packets[0].Text != "pending" {
		t.Fatalf("unexpected packets: %+v", packets)
	}
}

func TestSession_WaitOutbound_TimesOut(t *testing.T) {
	s := newTestSession()
	defer s.Close(ReasonClientDisconnect)

	start := time.Now()
	packets, ok, cancelled := s.WaitOutbound(50*time.Millisecond, nil)
	if !ok || cancelled {
		t.Fatalf("expected ok=true cancelled=false on timeout, got ok=%v cancelled=%v", ok, cancelled)
	}
	if len(packets) != 0 {
		t.Fatalf("expected no packets on bare timeout, got %+v", packets)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Fatalf("returned before timeout elapsed")
	}
}

func TestSession_Close_IsIdempotent(t *testing.T) {
	s := newTestSession()
	calls := 0
	s.OnClose(func(_ *Session, _ CloseReason) { calls++ })

	s.Close(ReasonClientDisconnect)
	s.Close(ReasonClientDisconnect)
	s.Close(ReasonPingTimeout)

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session never closed")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 close hook invocation, got %d", calls)
	}
	if !s.IsClosed() {
		t.Fatal("expected IsClosed() true after Close")
	}
}

func TestSession_WaitOutbound_UnblocksOnClose(t *testing.T) {
	s := newTestSession()
	done := make(chan bool, 1)
	go func() {
		_, ok, _ := s.WaitOutbound(5*time.Second, nil)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	s.Close(ReasonClientDisconnect)

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected ok=true when queue is empty at close")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitOutbound did not unblock on Close")
	}
}

func TestSession_TryAcquirePoll_SingleConcurrentGET(t *testing.T) {
	s := newTestSession()
	defer s.Close(ReasonClientDisconnect)

	if !s.TryAcquirePoll() {
		t.Fatal("expected first acquire to succeed")
	}
	if s.TryAcquirePoll() {
		t.Fatal("expected second concurrent acquire to fail")
	}
	s.ReleasePoll()
	if !s.TryAcquirePoll() {
		t.Fatal("expected acquire to succeed again after release")
	}
}

func TestSession_BeginUpgrade_RejectsSecondProbe(t *testing.T) {
	s := newTestSession()
	defer s.Close(ReasonClientDisconnect)

	if !s.BeginUpgrade() {
		t.Fatal("expected first BeginUpgrade to succeed")
	}
	if s.BeginUpgrade() {
		t.Fatal("expected concurrent second BeginUpgrade to fail")
	}
	s.AbortUpgrade()
	if !s.BeginUpgrade() {
		t.Fatal("expected BeginUpgrade to succeed again after abort")
	}
}

func TestSession_CompleteUpgrade_SwitchesTransport(t *testing.T) {
	s := newTestSession()
	defer s.Close(ReasonClientDisconnect)

	s.BeginUpgrade()
	s.CompleteUpgrade()

	if s.Transport() != TransportWebsocket {
		t.Fatalf("expected transport websocket after CompleteUpgrade, got %v", s.Transport())
	}
	if s.IsUpgrading() {
		t.Fatal("expected upgrading flag cleared")
	}
}

func TestSession_MarkClosing_EnqueuesNoopThenReportsReason(t *testing.T) {
	s := newTestSession()
	defer s.Close(ReasonClientDisconnect)

	s.MarkClosing(ReasonClientDisconnect)

	packets, ok, _ := s.WaitOutbound(time.Second, nil)
	if !ok || len(packets) != 1 || packets[0].Type != Noop {
		t.Fatalf("expected a single NOOP queued, got %+v", packets)
	}

	reason, closing := s.TakeClosingReason()
	if !closing || reason != ReasonClientDisconnect {
		t.Fatalf("expected closing=true reason=%v, got closing=%v reason=%v", ReasonClientDisconnect, closing, reason)
	}
}

func TestSession_Dispatch_PongPromotesToLive(t *testing.T) {
	s := newTestSession()
	defer s.Close(ReasonClientDisconnect)

	if s.IsLive() {
		t.Fatal("expected a freshly created session not to be live yet")
	}

	s.dispatch(Packet{Type: Pong})

	if !s.IsLive() {
		t.Fatal("expected the session to be live after its first PONG")
	}
}

func TestSession_Enqueue_NoopAfterClose(t *testing.T) {
	s := newTestSession()
	s.Close(ReasonClientDisconnect)
	<-s.Done()

	s.Enqueue(Packet{Type: Message, Text: "too-late"})
	// No panic, no delivery: Enqueue on a closed session is a silent no-op.
}
