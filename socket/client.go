package socket

import (
	"context"
	"net/http"
	"time"

	"docuchain/internal/chain"
	"docuchain/pkg/apperr"
	"docuchain/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// BindingChecker confirms that an account controls an address.
type BindingChecker interface {
	RequireBound(ctx context.Context, accountID, address string) error
}

type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Address   string
	AccountID string
	Send      chan []byte
}

// NewUpgrader accepts browser connections from allowedOrigins. An empty list
// accepts any origin.
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if len(allowedOrigins) == 0 || origin == "" {
				return true
			}
			for _, o := range allowedOrigins {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
}

// ServeWs subscribes the caller to events for an address bound to their
// account. The binding is checked before the upgrade so refusals are plain
// HTTP errors.
func ServeWs(hub *Hub, upgrader websocket.Upgrader, bindings BindingChecker, w http.ResponseWriter, r *http.Request, accountID string) {
	address := r.URL.Query().Get("address")
	if !chain.ValidateAddress(address) {
		apperr.Write(w, apperr.Malformed("invalid address %q", address))
		return
	}
	if err := bindings.RequireBound(r.Context(), accountID, address); err != nil {
		logger.Sugar.Warnf("Connection rejected: %s watching %s: %v", accountID, address, err)
		apperr.Write(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	client := &Client{
		Hub:       hub,
		Conn:      conn,
		Address:   chain.Normalize(address),
		AccountID: accountID,
		Send:      make(chan []byte, 256),
	}
	if !hub.join(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump only watches for the peer going away; the stream is server to
// client.
func (c *Client) readPump() {
	defer func() {
		c.Hub.leave(c)
		c.Conn.Close()
	}()

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
