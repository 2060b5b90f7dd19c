package relay

import (
	"context"
	"fmt"
	"net/http"
)

// Socket is one message-oriented connection to the relay. WriteMessage may
// be called concurrently with ReadMessage.
type Socket interface {
	ReadMessage() ([]byte, error)
	WriteMessage(b []byte) error
	Close(code int, reason string) error
}

// Dialer opens sockets.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Socket, error)
}

// CloseError is returned by ReadMessage when the peer closed the socket.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("socket closed (%d)", e.Code)
	}
	return fmt.Sprintf("socket closed (%d): %s", e.Code, e.Reason)
}
