package server

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/NeillJohnston/macropinna/internal/device"
	apperrors "github.com/NeillJohnston/macropinna/internal/errors"
	"github.com/NeillJohnston/macropinna/internal/input"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second

	// maxEventSize bounds one control event frame.
	maxEventSize = 64 << 10
)

// session is one active control connection. It is the registry sink for
// its device: closing it ends the connection.
type session struct {
	conn     *websocket.Conn
	identity device.Identity
	registry *device.Registry
	player   EventPlayer
	limiter  *rate.Limiter

	done      chan struct{}
	closeOnce sync.Once
}

// Close signals the write pump to send a close frame and shut the
// connection. Safe to call more than once from any goroutine.
func (c *session) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

// writePump owns all writes: periodic pings and the final close frame.
func (c *session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump decodes text frames into control events and hands them to the
// player. Malformed frames are logged and skipped. When the connection ends
// the device leaves the active list.
func (c *session) readPump() {
	var closeErr error
	defer func() {
		c.registry.RemoveActive(c.identity.UUID)
		c.Close()
		log.Printf("server: device %q disconnected: %v", c.identity.Name, apperrors.TransportClosed(closeErr))
	}()

	c.conn.SetReadLimit(maxEventSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			closeErr = err
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				log.Printf("server: read error from %s: %v", c.identity.UUID, err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if msgType != websocket.TextMessage {
			continue
		}
		if !c.limiter.Allow() {
			log.Printf("server: dropping event from %s: rate limited", c.identity.UUID)
			continue
		}

		ev, err := input.Decode(data)
		if err != nil {
			log.Printf("server: bad event from %s: %v", c.identity.UUID, apperrors.InvalidEvent(err))
			continue
		}
		c.player.Play(ev)
	}
}
