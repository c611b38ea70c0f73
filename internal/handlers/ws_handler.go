package handlers

import (
	"log"
	"net/http"

	"raceroom/internal/realtime"
	"raceroom/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	races *services.RaceService
}

func NewWSHandler(races *services.RaceService) *WSHandler {
	return &WSHandler{races: races}
}

// RaceWebSocket handles WebSocket connections for a specific race room
// GET /ws/:category/:race
func (h *WSHandler) RaceWebSocket(c *gin.Context) {
	race, err := h.races.Get(c.Request.Context(), c.Param("category"), c.Param("race"))
	if err != nil {
		writeError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	name := race.Name()
	realtime.RegisterClient(name, conn)
	defer func() {
		realtime.UnregisterClient(name, conn)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
