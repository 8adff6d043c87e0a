package server

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewHandler creates the HTTP handler with all routes. Static files are
// served from staticDir.
func NewHandler(hub *Hub, staticDir string) http.Handler {
	mux := http.NewServeMux()

	// Serve static files.
	fs := http.FileServer(http.Dir(staticDir))
	mux.Handle("/", fs)

	// Project API.
	api := &projectAPI{hub: hub}
	mux.HandleFunc("GET /api/projects", api.list)
	mux.HandleFunc("POST /api/projects", api.create)
	mux.HandleFunc("GET /api/projects/{id}", api.get)
	mux.HandleFunc("PUT /api/projects/{id}", api.update)
	mux.HandleFunc("DELETE /api/projects/{id}", api.delete)
	mux.HandleFunc("GET /api/projects/{id}/image.png", api.image)
	mux.HandleFunc("GET /api/projects/{id}/export.pdf", api.pdf)
	mux.HandleFunc("POST /api/projects/{id}/layers/{layer}/import", api.importImage)

	// WebSocket endpoint.
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warn("websocket upgrade error", "err", err)
			return
		}
		client := newClient(hub, conn)
		go client.WritePump()
		go client.ReadPump()
	})

	return mux
}
