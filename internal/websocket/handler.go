package websocket

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"riskdash/internal/config"
	"riskdash/internal/infrastructure"
)

// HandlerConfig configures the upgrade endpoint
type HandlerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	// AllowedOrigins lists permitted Origin headers; empty or "*" allows all
	AllowedOrigins []string
	Client         ClientConfig
}

// HandlerConfigFrom maps the server configuration
func HandlerConfigFrom(ws config.WebSocketConfig, security config.SecurityConfig) HandlerConfig {
	return HandlerConfig{
		ReadBufferSize:  ws.ReadBufferSize,
		WriteBufferSize: ws.WriteBufferSize,
		AllowedOrigins:  security.AllowedOrigins,
		Client: ClientConfig{
			PingPeriod: ws.PingPeriod,
			PongWait:   ws.PongWait,
		},
	}
}

// NewHandler upgrades requests to websocket connections attached to hub
func NewHandler(hub *Hub, cfg HandlerConfig, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger = logger.With(slog.String("component", "websocket.handler"))

	upgrader := websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// the upgrader has already written the error response
			logger.WarnContext(r.Context(), "websocket upgrade failed",
				slog.String("error", err.Error()),
				slog.String("remote_addr", r.RemoteAddr))
			return
		}
		Serve(hub, NewConnectionWrapper(conn), cfg.Client, infrastructure.GetTraceID(r.Context()), logger)
	})
}

func originChecker(allowed []string) func(r *http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}
