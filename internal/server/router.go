package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"sio-engine/internal/auth"
	"sio-engine/internal/channel"
	"sio-engine/internal/config"
	"sio-engine/internal/engineio"
	"sio-engine/internal/middleware"
	"sio-engine/internal/sio"
)

// Deps are the dependencies NewRouter needs beyond cfg itself.
type Deps struct {
	TokenConfig auth.TokenConfig
	Log         *logrus.Logger
}

// connectAuth is the shape the demo expects in a CONNECT packet's auth
// payload: {"token": "<jwt from /v1/auth>"}.
type connectAuth struct {
	Token string `json:"token"`
}

// NewRouter builds the demo host's gin.Engine: a health check, a JWT
// issuance endpoint, and the Socket.IO engine mounted at cfg.EngineIOPath,
// wired with a demo "/chat" namespace exercising rooms, broadcast, room
// history replay, and acks. Grounded on the teacher's router.go wiring shape
// (gin.New + gin.Recovery + gin.Logger, gin.WrapH to mount a plain
// http.Handler), generalized from the teacher's hardcoded socket.io app.
func NewRouter(cfg config.Config, deps Deps) (*gin.Engine, *sio.Server) {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	authLimiter := middleware.NewRateLimiter(20, time.Minute)
	authHandler := &AuthHandler{TokenConfig: deps.TokenConfig, AuthRequestLimiter: authLimiter}
	r.POST("/v1/auth", authHandler.Issue)

	var chLayer channel.Layer
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		chLayer = channel.NewRedis(rdb, "sio:")
	} else {
		chLayer = channel.NewMemory()
	}

	eioCfg, err := engineio.LoadConfig()
	if err != nil {
		eioCfg = engineio.DefaultConfig()
	}
	srv := sio.NewServer(eioCfg, chLayer, deps.Log.WithField("component", "sio"))
	registerChatNamespace(srv, deps.TokenConfig, cfg.RoomLogSize)

	engineHandler := srv.EngineHandler()
	r.Any(cfg.EngineIOPath, gin.WrapH(engineHandler))
	r.Any(cfg.EngineIOPath+"*any", gin.WrapH(engineHandler))

	return r, srv
}

// registerChatNamespace wires a "/chat" namespace demonstrating the full
// operation set: JWT-gated CONNECT, room join/leave, broadcast with
// room-history replay, and acked events.
func registerChatNamespace(srv *sio.Server, tokenCfg auth.TokenConfig, historySize int) {
	chat := srv.Of("/chat")
	chat.EnableHistory(historySize)

	chat.OnConnect(func(sock *sio.NamespaceSocket, rawAuth json.RawMessage) error {
		var a connectAuth
		if len(rawAuth) > 0 {
			_ = json.Unmarshal(rawAuth, &a)
		}
		if a.Token == "" {
			return errUnauthorized
		}
		if _, err := auth.VerifyToken(a.Token, tokenCfg); err != nil {
			return errUnauthorized
		}
		return nil
	})

	chat.On("join-room", func(sock *sio.NamespaceSocket, args []sio.Argument, ack sio.AckFunc) {
		room, ok := stringArg(args, 0)
		if !ok {
			return
		}
		if err := sock.Join(context.Background(), room); err != nil {
			return
		}
		sock.ReplayRoom(room, 0)
		if ack != nil {
			ack(true)
		}
	})

	chat.On("leave-room", func(sock *sio.NamespaceSocket, args []sio.Argument, ack sio.AckFunc) {
		room, ok := stringArg(args, 0)
		if !ok {
			return
		}
		_ = sock.Leave(context.Background(), room)
		if ack != nil {
			ack(true)
		}
	})

	chat.On("room-message", func(sock *sio.NamespaceSocket, args []sio.Argument, ack sio.AckFunc) {
		room, ok := stringArg(args, 0)
		if !ok || len(args) < 2 {
			return
		}
		_ = chat.Emit(context.Background(), room, nil, "room-message", sock.NSID(), args[1].Raw)
		if ack != nil {
			ack(true)
		}
	})
}

func stringArg(args []sio.Argument, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	s, ok := args[i].Raw.(string)
	return s, ok
}

var errUnauthorized = authError("missing or invalid token")

type authError string

func (e authError) Error() string { return string(e) }
