package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"quantdesk/internal/heatmap"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	requestWait    = 30 * time.Second
)

// WSMessage is one server-to-client frame of the heatmap socket. Exactly
// one of Progress, Result and Error is set, matching Type.
type WSMessage struct {
	Type     string            `json:"type"`
	Progress *heatmap.Progress `json:"progress,omitempty"`
	Result   *heatmap.Result   `json:"result,omitempty"`
	Error    *ErrorResponse    `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsConn owns the write side of one socket.
type wsConn struct {
	conn *websocket.Conn
	send chan WSMessage
	done chan struct{}
}

// handleHeatmapWS runs one heatmap per connection. The client sends a
// heatmap request as its first message; the server replies with progress
// frames and a final result or error frame, then closes. Closing the
// socket early cancels the scan.
func (s *Server) handleHeatmapWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(requestWait))
	var req heatmap.Request
	if err := conn.ReadJSON(&req); err != nil {
		s.log.Debug("reading websocket request", "err", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "expected a heatmap request"),
			time.Now().Add(writeWait))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &wsConn{conn: conn, send: make(chan WSMessage, 16), done: make(chan struct{})}
	go c.readPump(cancel)
	go c.writePump(cancel)

	push := func(m WSMessage) {
		select {
		case c.send <- m:
		case <-ctx.Done():
		}
	}

	res, err := s.deps.Aggregator.Scan(ctx, s.deps.Provider, req, func(p heatmap.Progress) {
		push(WSMessage{Type: EventProgress, Progress: &p})
	})
	if err != nil {
		s.logFailure(r, err)
		body := errorBody(err)
		push(WSMessage{Type: EventError, Error: &body})
	} else {
		push(WSMessage{Type: EventResult, Result: res})
	}
	close(c.send)
	<-c.done
}

// readPump discards client frames and cancels the scan when the peer goes
// away.
func (c *wsConn) readPump(cancel context.CancelFunc) {
	defer cancel()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsConn) writePump(cancel context.CancelFunc) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.done)
	}()

	for {
		select {
		case m, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(m); err != nil {
				cancel()
				// Drain so the producer never blocks on a dead socket.
				for range c.send {
				}
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cancel()
				for range c.send {
				}
				return
			}
		}
	}
}
