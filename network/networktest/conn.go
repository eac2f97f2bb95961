// Package networktest provides an in-memory network.Connection for tests.
package networktest

import (
	"encoding/json"
	"io"
	"net"
	"sync"
	"time"

	"github.com/wfunc/dominoserver/network"
)

// Conn records every message sent to it as decoded JSON and replays
// queued inbound packets from ReadPacket.
type Conn struct {
	mu       sync.Mutex
	sent     []map[string]any
	closed   bool
	inbound  chan *network.Packet
	done     chan struct{}
	once     sync.Once
	notify   chan struct{}
	interval time.Duration
}

func NewConn() *Conn {
	return &Conn{
		inbound: make(chan *network.Packet, 64),
		done:    make(chan struct{}),
		notify:  make(chan struct{}, 1),
	}
}

func (c *Conn) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return network.ErrConnectionClosed
	}
	c.sent = append(c.sent, decoded)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *Conn) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

func (c *Conn) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

func (c *Conn) StartHeartbeat(interval time.Duration, maxMissed int) {
	c.mu.Lock()
	c.interval = interval
	c.mu.Unlock()
}

// HeartbeatInterval returns the interval passed to StartHeartbeat.
func (c *Conn) HeartbeatInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// Push queues an inbound frame.
func (c *Conn) Push(raw string) {
	var head struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal([]byte(raw), &head)
	c.inbound <- &network.Packet{Type: head.Type, Data: []byte(raw)}
}

func (c *Conn) ReadPacket() (*network.Packet, error) {
	select {
	case p := <-c.inbound:
		return p, nil
	case <-c.done:
		return nil, io.EOF
	}
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Messages returns a copy of everything sent so far.
func (c *Conn) Messages() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.sent...)
}

// OfType returns the sent messages whose "type" equals typ.
func (c *Conn) OfType(typ string) []map[string]any {
	var out []map[string]any
	for _, m := range c.Messages() {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

// Last returns the most recent message of typ, or nil.
func (c *Conn) Last(typ string) map[string]any {
	msgs := c.OfType(typ)
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

// WaitFor blocks until a message of typ has been sent or the timeout passes.
func (c *Conn) WaitFor(typ string, timeout time.Duration) map[string]any {
	deadline := time.After(timeout)
	for {
		if m := c.Last(typ); m != nil {
			return m
		}
		select {
		case <-c.notify:
		case <-deadline:
			return nil
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// Reset forgets recorded messages.
func (c *Conn) Reset() {
	c.mu.Lock()
	c.sent = nil
	c.mu.Unlock()
}
