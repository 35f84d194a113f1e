package socket

import (
	"context"
	"encoding/json"
	"sync"

	"docuchain/internal/chain"
	"docuchain/pkg/logger"
)

const (
	SubscribedType         = "SUBSCRIBED"          // Sent to a client once it joined its address room
	DocumentUploadedType   = "DOCUMENT_UPLOADED"   // A claim was recorded for the address
	DocumentSharedType     = "DOCUMENT_SHARED"     // A grant names the address
	DocumentReassignedType = "DOCUMENT_REASSIGNED" // Owner or id changed
	DocumentDeletedType    = "DOCUMENT_DELETED"    // Soft delete by the owner
	WalletSwitchedType     = "WALLET_SWITCHED"     // The account's active address changed

	broadcastBuffer = 256
)

type WSMessage struct {
	Type    string          `json:"type"`
	Address string          `json:"address"`
	DocID   string          `json:"document_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hub fans registry events out to the websocket clients watching an address.
type Hub struct {
	Rooms      map[string]map[*Client]bool // address -> clients
	Broadcast  chan WSMessage
	Register   chan *Client
	Unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		Rooms:      make(map[string]map[*Client]bool),
		Broadcast:  make(chan WSMessage, broadcastBuffer),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case client := <-h.Register:
			h.mu.Lock()
			if h.Rooms[client.Address] == nil {
				h.Rooms[client.Address] = make(map[*Client]bool)
			}
			h.Rooms[client.Address][client] = true
			h.mu.Unlock()

			hello, _ := json.Marshal(WSMessage{Type: SubscribedType, Address: client.Address})
			client.Send <- hello

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.Rooms[client.Address][client]; ok {
				delete(h.Rooms[client.Address], client)
				close(client.Send)
				if len(h.Rooms[client.Address]) == 0 {
					delete(h.Rooms, client.Address)
					logger.Sugar.Debugf("Closed empty room: %s", client.Address)
				}
			}
			h.mu.Unlock()

		case msg := <-h.Broadcast:
			payload, err := json.Marshal(msg)
			if err != nil {
				logger.Sugar.Errorf("Error marshalling broadcast message: %v", err)
				continue
			}

			// Copy recipients so no lock is held during channel sends.
			h.mu.Lock()
			clientsToSend := make([]*Client, 0, len(h.Rooms[msg.Address]))
			for client := range h.Rooms[msg.Address] {
				clientsToSend = append(clientsToSend, client)
			}
			h.mu.Unlock()

			for _, client := range clientsToSend {
				select {
				case client.Send <- payload:
				default:
					logger.Sugar.Warnf("Client %s's send buffer is full. Dropping connection.", client.AccountID)
					h.drop(client)
				}
			}
		}
	}
}

// Publish queues an event for address. It never blocks; when the hub is
// saturated the event is dropped, since clients can always re-query.
func (h *Hub) Publish(address, msgType, docID string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s payload: %v", msgType, err)
		return
	}
	msg := WSMessage{Type: msgType, Address: chain.Normalize(address), DocID: docID, Payload: raw}
	select {
	case h.Broadcast <- msg:
	default:
		logger.Sugar.Warnf("Broadcast queue full, dropped %s for %s", msgType, msg.Address)
	}
}

// join registers client, reporting false once the hub has stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters client unless the hub already stopped.
func (h *Hub) leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// drop removes a lagging client from inside Run.
func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.Rooms[client.Address][client]; ok {
		delete(h.Rooms[client.Address], client)
		close(client.Send)
		if len(h.Rooms[client.Address]) == 0 {
			delete(h.Rooms, client.Address)
		}
	}
	client.Conn.Close()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for address, clients := range h.Rooms {
		for client := range clients {
			close(client.Send)
			client.Conn.Close()
		}
		delete(h.Rooms, address)
	}
}

// Watchers reports how many clients are subscribed to address.
func (h *Hub) Watchers(address string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Rooms[chain.Normalize(address)])
}
