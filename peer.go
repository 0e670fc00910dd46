package wamp

import (
	"errors"
	"log/slog"
	"sync"
)

type Serializer interface {
	Code() string
	Binary() bool
	Encode(Event) ([]byte, error)
	Decode([]byte) (Event, error)
}

type Transport interface {
	Read() (Event, error)
	Write(Event) error
	Close() error
}

const DEFAULT_OUTBOX_SIZE = 1024

// Peer owns the transport of a session.
// A single reader goroutine hands every inbound event to the handler in arrival order,
// a single writer goroutine drains the outbox so writes keep submission order.
type Peer struct {
	transport  Transport
	outbox     chan Event
	writeMutex sync.Mutex
	handler    func(Event)
	onClose    func(error)
	closed     chan struct{}
	closeOnce  sync.Once
	e          error
	logger     *slog.Logger
}

func SpawnPeer(
	transport Transport,
	handler func(Event),
	onClose func(error),
	logger *slog.Logger,
) *Peer {
	peer := Peer{
		transport: transport,
		outbox:    make(chan Event, DEFAULT_OUTBOX_SIZE),
		handler:   handler,
		onClose:   onClose,
		closed:    make(chan struct{}),
		logger:    logger.With("name", "Peer"),
	}
	go peer.writeLoop()
	go peer.readLoop()
	return &peer
}

func (peer *Peer) readLoop() {
	for {
		event, e := peer.transport.Read()
		if e != nil {
			peer.Close(e)
			return
		}
		peer.handler(event)
	}
}

func (peer *Peer) writeLoop() {
	for {
		select {
		case <-peer.closed:
			return
		case event := <-peer.outbox:
			peer.writeMutex.Lock()
			e := peer.transport.Write(event)
			peer.writeMutex.Unlock()
			if e != nil {
				peer.logger.Error("during write", "error", e, "kind", event.Kind())
				peer.Close(e)
				return
			}
		}
	}
}

// Send enqueues an event onto the writer loop
func (peer *Peer) Send(event Event) error {
	select {
	case <-peer.closed:
		return ErrorConnectionClosed
	default:
	}
	select {
	case peer.outbox <- event:
		return nil
	case <-peer.closed:
		return ErrorConnectionClosed
	}
}

// SendNow writes an event bypassing the outbox
func (peer *Peer) SendNow(event Event) error {
	select {
	case <-peer.closed:
		return ErrorConnectionClosed
	default:
	}
	peer.writeMutex.Lock()
	defer peer.writeMutex.Unlock()
	return peer.transport.Write(event)
}

func (peer *Peer) Closed() <-chan struct{} {
	return peer.closed
}

func (peer *Peer) Err() error {
	select {
	case <-peer.closed:
		return peer.e
	default:
		return nil
	}
}

// Close shuts the transport down. A nil reason means an orderly close.
func (peer *Peer) Close(reason error) {
	peer.closeOnce.Do(func() {
		peer.e = reason
		close(peer.closed)
		e := peer.transport.Close()
		if e != nil && !errors.Is(e, ErrorConnectionClosed) {
			peer.logger.Debug("during transport close", "error", e)
		}
		peer.onClose(reason)
	})
}
