package realtime

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/BradenHooton/agora/internal/auth"
	pkghttp "github.com/BradenHooton/agora/pkg/http"
	"github.com/gorilla/websocket"
)

// Handler upgrades authenticated requests to chat connections.
type Handler struct {
	hub      *Hub
	sender   MessageSender
	upgrader websocket.Upgrader
	buffer   int
	logger   *slog.Logger
}

// NewHandler builds the websocket endpoint. Browsers are only accepted from
// allowedOrigins; requests without an Origin header are non-browser clients.
func NewHandler(hub *Hub, sender MessageSender, allowedOrigins []string, buffer int, logger *slog.Logger) *Handler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	if buffer <= 0 {
		buffer = 256
	}

	return &Handler{
		hub:    hub,
		sender: sender,
		buffer: buffer,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || origins[origin] {
					return true
				}
				u, err := url.Parse(origin)
				return err == nil && u.Host == r.Host
			},
		},
	}
}

// ServeWS must sit behind auth.Authenticate.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := newClient(h.hub, conn, claims.UserID, h.buffer, h.sender, h.logger)
	h.hub.register(c)
	h.logger.Info("websocket connected", slog.String("user_id", claims.UserID))

	go c.writePump()
	go c.readPump()
}
