package wampTransports

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	wamp "github.com/wamp3hub/wampytester"
	wampSerializers "github.com/wamp3hub/wampytester/serializers"
)

const (
	SubprotocolJSON    = "wamp.2.json"
	SubprotocolMsgpack = "wamp.2.msgpack"
)

func Subprotocol(serializer wamp.Serializer) string {
	return "wamp.2." + serializer.Code()
}

func serializerBySubprotocol(subprotocol string) (wamp.Serializer, error) {
	switch subprotocol {
	case SubprotocolJSON:
		return new(wampSerializers.JSONSerializer), nil
	case SubprotocolMsgpack:
		return new(wampSerializers.MsgpackSerializer), nil
	}
	return nil, fmt.Errorf("unsupported subprotocol %q", subprotocol)
}

type WSTransport struct {
	Address    string
	Serializer wamp.Serializer
	Connection *websocket.Conn
}

func (transport *WSTransport) Close() error {
	// best effort close frame, the connection is dropped right after
	_ = transport.Connection.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline(),
	)
	return transport.Connection.Close()
}

func (transport *WSTransport) Write(event wamp.Event) error {
	rawMessage, e := transport.Serializer.Encode(event)
	if e != nil {
		return e
	}
	messageType := websocket.TextMessage
	if transport.Serializer.Binary() {
		messageType = websocket.BinaryMessage
	}
	return transport.Connection.WriteMessage(messageType, rawMessage)
}

func (transport *WSTransport) Read() (wamp.Event, error) {
	_, rawMessage, e := transport.Connection.ReadMessage()
	if e == nil {
		return transport.Serializer.Decode(rawMessage)
	}
	if websocket.IsCloseError(e, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil, wamp.ErrorConnectionClosed
	}
	return nil, errors.Join(wamp.ErrorConnectionClosed, e)
}

func deadline() time.Time {
	return time.Now().Add(time.Second)
}

func dialWebsocket(
	ctx context.Context,
	address string,
	serializer wamp.Serializer,
) (wamp.Transport, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
		Subprotocols:     []string{Subprotocol(serializer)},
	}
	connection, response, e := dialer.DialContext(ctx, address, nil)
	if e != nil {
		if response != nil {
			return nil, fmt.Errorf("websocket %s: %w", response.Status, e)
		}
		return nil, e
	}
	if connection.Subprotocol() != Subprotocol(serializer) {
		connection.Close()
		return nil, fmt.Errorf("router did not accept subprotocol %s", Subprotocol(serializer))
	}
	return &WSTransport{address, serializer, connection}, nil
}

var upgrader = websocket.Upgrader{
	Subprotocols: []string{SubprotocolJSON, SubprotocolMsgpack},
	CheckOrigin:  func(*http.Request) bool { return true },
}

// WebsocketAccept upgrades an HTTP request into a router-side transport
func WebsocketAccept(w http.ResponseWriter, r *http.Request) (wamp.Transport, error) {
	connection, e := upgrader.Upgrade(w, r, nil)
	if e != nil {
		return nil, e
	}
	serializer, e := serializerBySubprotocol(connection.Subprotocol())
	if e != nil {
		connection.Close()
		return nil, e
	}
	return &WSTransport{r.RemoteAddr, serializer, connection}, nil
}
