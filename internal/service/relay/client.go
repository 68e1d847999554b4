package relay

import (
	"sync"

	"github.com/gorilla/websocket"

	"bone_chat/internal/model"
)

type (
	// wsClient is a Client backed by one websocket connection. Writes are
	// serialized; the hub and the session timer both send to it.
	wsClient struct {
		userID string
		conn   *websocket.Conn

		mu sync.Mutex
	}
)

func newWSClient(userID string, conn *websocket.Conn) *wsClient {
	return &wsClient{
		userID: userID,
		conn:   conn,
	}
}

func (c *wsClient) UserID() string {
	return c.userID
}

func (c *wsClient) Send(env model.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(&env)
}
