package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"sio-engine/internal/auth"
	"sio-engine/internal/config"
)

func testDeps() Deps {
	return Deps{
		TokenConfig: auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"},
		Log:         logrus.New(),
	}
}

func TestNewRouter_Health(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Config{EngineIOPath: "/socket.io/", RoomLogSize: 10}
	r, _ := NewRouter(cfg, testDeps())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestNewRouter_ChatNamespaceRequiresToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Config{EngineIOPath: "/socket.io/", RoomLogSize: 10}
	r, _ := NewRouter(cfg, testDeps())

	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket.io/?EIO=4&transport=websocket"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.ReadMessage() // OPEN

	if err := conn.WriteMessage(websocket.TextMessage, []byte("40/chat,")); err != nil {
		t.Fatalf("write connect: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read connect reply: %v", err)
	}
	if !strings.HasPrefix(string(data), "44") {
		t.Fatalf("expected a CONNECT_ERROR frame for a missing token, got %q", data)
	}
}

func TestNewRouter_ChatNamespaceEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Config{EngineIOPath: "/socket.io/", RoomLogSize: 10}
	deps := testDeps()
	r, _ := NewRouter(cfg, deps)

	srv := httptest.NewServer(r)
	defer srv.Close()

	authResp, err := http.Post(srv.URL+"/v1/auth", "application/json", strings.NewReader(`{"userId":"alice"}`))
	if err != nil {
		t.Fatalf("auth request: %v", err)
	}
	defer authResp.Body.Close()
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(authResp.Body).Decode(&body); err != nil {
		t.Fatalf("decode auth response: %v", err)
	}
	if body.Token == "" {
		t.Fatal("expected a non-empty token")
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket.io/?EIO=4&transport=websocket"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.ReadMessage() // OPEN

	connectFrame := `40/chat,{"token":"` + body.Token + `"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(connectFrame)); err != nil {
		t.Fatalf("write connect: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read connect reply: %v", err)
	}
	if !strings.HasPrefix(string(data), "40") {
		t.Fatalf("expected a CONNECT reply, got %q", data)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`42/chat,1["join-room","lobby"]`)); err != nil {
		t.Fatalf("write join-room: %v", err)
	}
	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read join ack: %v", err)
	}
	if !strings.HasPrefix(string(data), "43/chat,1") {
		t.Fatalf("expected an ACK for join-room, got %q", data)
	}

	conn2, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial second conn: %v", err)
	}
	defer conn2.Close()
	conn2.ReadMessage() // OPEN
	if err := conn2.WriteMessage(websocket.TextMessage, []byte(connectFrame)); err != nil {
		t.Fatalf("write connect: %v", err)
	}
	conn2.ReadMessage() // CONNECT reply
	if err := conn2.WriteMessage(websocket.TextMessage, []byte(`42/chat,["join-room","lobby"]`)); err != nil {
		t.Fatalf("write join-room: %v", err)
	}

	if err := conn2.WriteMessage(websocket.TextMessage, []byte(`42/chat,["room-message","lobby","hi there"]`)); err != nil {
		t.Fatalf("write room-message: %v", err)
	}

	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if !strings.Contains(string(data), "room-message") || !strings.Contains(string(data), "hi there") {
		t.Fatalf("expected room-message broadcast, got %q", data)
	}
}
