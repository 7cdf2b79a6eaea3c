package core

import (
	"errors"

	"github.com/dkeye/Hush/internal/domain"
)

// Frame is an encoded outbound protocol message.
type Frame []byte

// Endpoint abstracts one connected client's messaging transport.
// Owned by the adapter; the Hub only calls TrySend and Close.
type Endpoint interface {
	ID() domain.EndpointID
	// ClientToken is the browser/CLI identity carried by the session cookie.
	// It outlives individual connections and keys rate limits.
	ClientToken() string
	// TrySend queues f without blocking.
	TrySend(f Frame) error
	// Close flushes queued frames and severs the connection. Idempotent.
	Close()
}

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrEndpointClosed = errors.New("endpoint closed")
)
