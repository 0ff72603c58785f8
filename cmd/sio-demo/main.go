package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"sio-engine/internal/auth"
	"sio-engine/internal/config"
	"sio-engine/internal/logging"
	"sio-engine/internal/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	log := logging.New(cfg.GinMode)
	gin.SetMode(cfg.GinMode)

	tokenCfg := auth.TokenConfig{
		Secret: cfg.MasterSecret,
		Expiry: cfg.TokenExpiry,
		Issuer: "sio-engine",
	}

	router, sioSrv := server.NewRouter(cfg, server.Deps{TokenConfig: tokenCfg, Log: log})
	httpSrv := server.NewHTTPServer(cfg, router)

	go func() {
		log.Infof("listening on %s", fmt.Sprintf(":%d", cfg.Port))
		var err error
		if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
			err = httpSrv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down: force-closing live sessions")
	sioSrv.EngineHandler().Registry().CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Errorf("graceful shutdown failed: %v", err)
	}
}
