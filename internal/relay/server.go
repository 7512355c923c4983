package relay

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  maxMessageSize,
	WriteBufferSize: maxMessageSize,

	// Browsers on any origin may signal; rooms are protected only by their id.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewRouter exposes the hub over HTTP: GET /health and GET /ws.
func NewRouter(hub *Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(hub))

	r.Get("/health", healthCheck)
	r.Get("/ws", ServeWs(hub))

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Relay is healthy."))
}

// ServeWs upgrades the request and attaches the connection to hub.
func ServeWs(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn().Err(err).Msg("failed to upgrade connection")
			return
		}

		c := newConn(hub, ws)
		select {
		case hub.register <- c:
		case <-hub.quit:
			ws.Close()
			return
		}

		go c.WritePump()
		go c.ReadPump()
	}
}

func accessLog(hub *Hub) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			hub.log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Dur("elapsed", time.Since(start)).
				Msg("http request")
		})
	}
}
