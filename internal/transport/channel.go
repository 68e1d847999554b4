package transport

import (
	"encoding/json"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"bone_chat/internal/model"
	"bone_chat/internal/utils/log"
)

type (
	// Channel is one full-duplex connection to the relay. Inbound envelopes
	// are delivered in arrival order on Events; the channel never reconnects,
	// a failed connection ends the session.
	Channel struct {
		conn   *websocket.Conn
		events chan model.Envelope

		writeMu sync.Mutex

		mu     sync.Mutex
		closed bool
		err    error
	}
)

// Dial opens the chat websocket, authenticating with the bearer token as a
// query parameter.
func Dial(host, token string) (*Channel, error) {
	params := url.Values{
		"token": []string{token},
	}

	u := url.URL{
		Scheme:   "ws",
		Host:     host,
		Path:     "/chat/ws",
		RawQuery: params.Encode(),
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}

	c := &Channel{
		conn:   conn,
		events: make(chan model.Envelope, 16),
	}
	go c.readLoop()
	return c, nil
}

// Events is the inbound stream. It is closed when the connection drops or
// Close is called; Err reports why afterwards.
func (c *Channel) Events() <-chan model.Envelope {
	return c.events
}

// Err returns the terminal connection error, or nil after a deliberate Close.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Channel) Send(env model.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(&env)
}

// Close tears the connection down. Safe to call more than once and on every
// exit path; the read loop drains and closes the events channel.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	return c.conn.Close()
}

func (c *Channel) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if !c.closed {
				c.err = err
			}
			c.mu.Unlock()

			c.conn.Close()
			return
		}

		var env model.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Error("decode relay event failed", zap.Error(err))
			continue
		}

		c.events <- env
	}
}
