package publish

import (
	"context"

	"github.com/coder/websocket"
)

// WebSocketDialer dials the publication channel over a websocket. The
// websocket transport gives the persistent connection and built-in ping the
// stream sink's liveness check needs; frames travel as binary messages.
type WebSocketDialer struct {
	// URL is the publication endpoint (ws:// or wss://).
	URL string
}

// Dial implements Dialer.
func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, d.URL, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) WriteFrame(ctx context.Context, frame []byte) error {
	return c.conn.Write(ctx, websocket.MessageBinary, frame)
}

func (c *wsConn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
