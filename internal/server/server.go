package server

import (
	"fmt"
	"net/http"
	"time"

	"sio-engine/internal/config"
)

// NewHTTPServer wraps handler with the process-level timeouts the teacher
// applies, generalized from its gin-only router to whatever handler the
// caller assembled (gin engine or engine.Handler directly).
func NewHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Run starts serving handler per cfg, over TLS if both cert and key are set.
func Run(cfg config.Config, handler http.Handler) error {
	srv := NewHTTPServer(cfg, handler)
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		return srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	}
	return srv.ListenAndServe()
}
