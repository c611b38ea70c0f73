package realtime

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

var (
	raceClients = make(map[string]map[*websocket.Conn]bool) // Map of race name to connected clients
	broadcast   = make(chan RaceUpdate)                     // Broadcast channel for updates
	mutex       sync.Mutex                                  // Mutex to protect raceClients map
)

// RaceUpdate carries a fresh race snapshot to everyone watching the room.
type RaceUpdate struct {
	Race       string          `json:"race"`
	UpdateType string          `json:"update_type"` // "race" or "chat"
	Data       json.RawMessage `json:"data"`
}

// RegisterClient adds a WebSocket client to a specific race room
func RegisterClient(race string, conn *websocket.Conn) {
	mutex.Lock()
	if raceClients[race] == nil {
		raceClients[race] = make(map[*websocket.Conn]bool)
	}
	raceClients[race][conn] = true
	mutex.Unlock()
}

// UnregisterClient removes a WebSocket client from a specific race room
func UnregisterClient(race string, conn *websocket.Conn) {
	mutex.Lock()
	if clients, exists := raceClients[race]; exists {
		delete(clients, conn)
		if len(clients) == 0 {
			delete(raceClients, race)
		}
	}
	mutex.Unlock()
}

// BroadcastRaceUpdate sends an update to all clients connected to a race room
func BroadcastRaceUpdate(update RaceUpdate) {
	broadcast <- update
}

func handleBroadcast() {
	for {
		update := <-broadcast
		mutex.Lock()
		if clients, exists := raceClients[update.Race]; exists {
			for client := range clients {
				if err := client.WriteJSON(update); err != nil {
					log.Printf("WebSocket write error: %v", err)
					client.Close()
					delete(clients, client)
				}
			}
		}
		mutex.Unlock()
	}
}

func init() {
	go handleBroadcast()
}
