package main

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 100
)

// Client represents one WebSocket connection bound to a player in a
// room. Intent handling runs on the read pump goroutine; outbound
// frames are queued to the write pump.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	playerName string
	accountID  int64
	roomID     string
	room       *Room
	binary     bool // client asked for msgpack snapshots
	remoteAddr string
	msgCount   int
	msgResetAt time.Time
}

// NewClient creates a client for an admitted connection.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, binary bool) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
		binary:     binary,
	}
}

// ReadPump consumes inbound intents until the connection drops, then
// synchronously removes the player from the room before exiting.
// Connection and player entry are cleaned up together; the room is torn
// down by the registry if it became empty.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.Depart(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error: %v", err)
			}
			break
		}

		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes queued frames and keepalive pings. Binary frames are
// marked with a 0xFF prefix byte by SendBinary.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON marshals and queues a text frame.
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw queues pre-marshaled bytes as a text frame. A full queue means
// the client cannot keep up; the frame is dropped and logged, never
// blocking the tick.
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		log.Printf("client %s (%s): send queue full, dropping frame", c.playerName, c.remoteAddr)
	}
}

// SendBinary queues bytes as a binary frame, prefixed with the 0xFF
// marker WritePump strips.
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
		log.Printf("client %s (%s): send queue full, dropping frame", c.playerName, c.remoteAddr)
	}
}

// WantsBinary reports whether the client opted into msgpack snapshots.
func (c *Client) WantsBinary() bool {
	return c.binary
}

// handleMessage decodes one intent and applies it to the player's room.
// Malformed messages are dropped; the connection stays open.
func (c *Client) handleMessage(raw []byte) {
	in, err := DecodeIntent(raw)
	if err != nil || c.room == nil {
		return
	}
	switch in.Type {
	case MsgMove:
		c.room.HandleMove(c.playerName, in.Move)
	case MsgShoot:
		c.room.HandleShoot(c.playerName, in.Shoot)
	case MsgRespawn:
		c.room.HandleRespawn(c.playerName)
	}
}
