package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MainListActivity/cuckoox-google-sub012/internal/logging"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

// WebSocketPort carries bridge traffic over a websocket connection to the
// remote service endpoint.
type WebSocketPort struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// DialWebSocket opens a websocket port to the endpoint and starts its read
// pump. Inbound frames are fed to handler; onClose fires once when the
// connection drops for any reason other than an explicit Close.
func DialWebSocket(ctx context.Context, endpoint string, handler func([]byte), onClose func(error)) (*WebSocketPort, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", endpoint, err)
	}

	port := &WebSocketPort{
		conn:   conn,
		closed: make(chan struct{}),
	}

	go port.readPump(handler, onClose)
	return port, nil
}

// readPump feeds inbound frames to the handler until the connection drops.
func (p *WebSocketPort) readPump(handler func([]byte), onClose func(error)) {
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			select {
			case <-p.closed:
				// Explicit Close; not a transport failure.
			default:
				logging.Warn("Transport connection lost", map[string]interface{}{
					"error": err.Error(),
				})
				if onClose != nil {
					onClose(err)
				}
			}
			return
		}
		handler(data)
	}
}

// Send writes one frame. Safe for concurrent use.
func (p *WebSocketPort) Send(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// Close shuts the connection down without firing onClose.
func (p *WebSocketPort) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.conn.Close()
	})
	return err
}
