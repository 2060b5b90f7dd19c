package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketDialer dials the relay over a websocket.
type WebsocketDialer struct {
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Dial implements Dialer.
func (d WebsocketDialer) Dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	wd := d.Dialer
	if wd == nil {
		wd = websocket.DefaultDialer
	}
	c, resp, err := wd.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsSocket{c: c}, nil
}

type wsSocket struct {
	c  *websocket.Conn
	mu sync.Mutex // serialises writers
}

func (s *wsSocket) ReadMessage() ([]byte, error) {
	_, b, err := s.c.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &CloseError{Code: ce.Code, Reason: ce.Text}
		}
		return nil, err
	}
	return b, nil
}

func (s *wsSocket) WriteMessage(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.WriteMessage(websocket.TextMessage, b)
}

func (s *wsSocket) Close(code int, reason string) error {
	s.mu.Lock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = s.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.mu.Unlock()
	return s.c.Close()
}
