// network/connection.go
package network

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

var ErrConnectionClosed = errors.New("connection closed")

// Packet is one inbound text frame. Data keeps the whole frame so the
// action decoder can read the fields next to "type".
type Packet struct {
	Type string
	Data []byte
}

type Connection interface {
	Send(msg any) error
	Close() error
	RemoteAddr() net.Addr
	StartHeartbeat(interval time.Duration, maxMissed int)
	ReadPacket() (*Packet, error)
}

type WSConnection struct {
	conn      *websocket.Conn
	sendMutex sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	return &WSConnection{conn: conn, done: make(chan struct{})}
}

// Send writes msg as a JSON text frame.
func (c *WSConnection) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WSConnection) ReadPacket() (*Packet, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, &MalformedError{Err: err}
	}
	if head.Type == "" {
		return nil, &MalformedError{Err: errors.New("missing message type")}
	}
	return &Packet{Type: head.Type, Data: data}, nil
}

// StartHeartbeat pings every interval. The read deadline is pushed forward
// on every pong, so a peer that misses maxMissed pongs fails its next read.
func (c *WSConnection) StartHeartbeat(interval time.Duration, maxMissed int) {
	if interval <= 0 {
		return
	}
	if maxMissed < 1 {
		maxMissed = 1
	}
	wait := interval * time.Duration(maxMissed+1)
	c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
				c.sendMutex.Lock()
				err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				c.sendMutex.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()
}

func (c *WSConnection) Close() error {
	err := ErrConnectionClosed
	c.closeOnce.Do(func() {
		close(c.done)
		c.sendMutex.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.sendMutex.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// MalformedError marks a frame that is not a protocol message. The
// connection stays usable.
type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string { return "malformed message: " + e.Err.Error() }

func (e *MalformedError) Unwrap() error { return e.Err }
