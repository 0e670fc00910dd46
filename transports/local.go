package wampTransports

import (
	"sync"

	wamp "github.com/wamp3hub/wampytester"
)

type localTransport struct {
	tq        chan wamp.Event
	rq        chan wamp.Event
	closed    chan struct{}
	closeOnce *sync.Once
	peer      *localTransport
}

// NewDuplexLocalTransport returns two connected in-memory transports
func NewDuplexLocalTransport(size int) (*localTransport, *localTransport) {
	alpha := make(chan wamp.Event, size)
	beta := make(chan wamp.Event, size)
	left := localTransport{alpha, beta, make(chan struct{}), new(sync.Once), nil}
	right := localTransport{beta, alpha, make(chan struct{}), new(sync.Once), &left}
	left.peer = &right
	return &left, &right
}

func (transport *localTransport) Write(event wamp.Event) error {
	select {
	case <-transport.closed:
		return wamp.ErrorConnectionClosed
	case <-transport.peer.closed:
		return wamp.ErrorConnectionClosed
	default:
	}
	select {
	case transport.tq <- event:
		return nil
	case <-transport.closed:
		return wamp.ErrorConnectionClosed
	case <-transport.peer.closed:
		return wamp.ErrorConnectionClosed
	}
}

func (transport *localTransport) Read() (wamp.Event, error) {
	select {
	case event := <-transport.rq:
		return event, nil
	default:
	}
	select {
	case event := <-transport.rq:
		return event, nil
	case <-transport.closed:
		return nil, wamp.ErrorConnectionClosed
	case <-transport.peer.closed:
		// deliver what the peer wrote before closing
		select {
		case event := <-transport.rq:
			return event, nil
		default:
			return nil, wamp.ErrorConnectionClosed
		}
	}
}

func (transport *localTransport) Close() error {
	transport.closeOnce.Do(func() {
		close(transport.closed)
	})
	return nil
}
