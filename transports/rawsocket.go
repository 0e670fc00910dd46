package wampTransports

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	wamp "github.com/wamp3hub/wampytester"
	wampSerializers "github.com/wamp3hub/wampytester/serializers"
)

const (
	rawSocketMagic     byte = 0x7F
	rawSocketJSON      byte = 1
	rawSocketMsgpack   byte = 2
	rawSocketMaxLength byte = 0xF

	frameRegular byte = 0
	framePing    byte = 1
	framePong    byte = 2
)

var ErrorRawSocketHandshake = errors.New("RawSocketHandshake")

func rawSocketSerializerID(serializer wamp.Serializer) (byte, error) {
	switch serializer.Code() {
	case "json":
		return rawSocketJSON, nil
	case "msgpack":
		return rawSocketMsgpack, nil
	}
	return 0, fmt.Errorf("%w: unsupported serializer %s", ErrorRawSocketHandshake, serializer.Code())
}

func maxLength(exponent byte) uint32 {
	return 1 << (9 + uint32(exponent))
}

type rawSocketTransport struct {
	Serializer wamp.Serializer
	Connection net.Conn
	buffer     *bufio.Reader
	limit      uint32
	writing    sync.Mutex
}

func RawSocketTransport(
	serializer wamp.Serializer,
	connection net.Conn,
	limit uint32,
) *rawSocketTransport {
	return &rawSocketTransport{
		Serializer: serializer,
		Connection: connection,
		buffer:     bufio.NewReader(connection),
		limit:      limit,
	}
}

func (transport *rawSocketTransport) Close() error {
	return transport.Connection.Close()
}

func (transport *rawSocketTransport) writeFrame(frameType byte, data []byte) error {
	if uint32(len(data)) > transport.limit {
		return fmt.Errorf("message of %d bytes exceeds the negotiated limit", len(data))
	}
	header := make([]byte, 4, 4+len(data))
	binary.BigEndian.PutUint32(header, uint32(len(data)))
	header[0] = frameType
	transport.writing.Lock()
	defer transport.writing.Unlock()
	_, e := transport.Connection.Write(append(header, data...))
	return e
}

func (transport *rawSocketTransport) Write(event wamp.Event) error {
	rawMessage, e := transport.Serializer.Encode(event)
	if e == nil {
		e = transport.writeFrame(frameRegular, rawMessage)
	}
	return e
}

func (transport *rawSocketTransport) readFrame() (byte, []byte, error) {
	header := make([]byte, 4)
	_, e := io.ReadFull(transport.buffer, header)
	if e != nil {
		return 0, nil, e
	}
	frameType := header[0] & 0x07
	header[0] = 0
	length := binary.BigEndian.Uint32(header)
	data := make([]byte, length)
	_, e = io.ReadFull(transport.buffer, data)
	return frameType, data, e
}

func (transport *rawSocketTransport) Read() (wamp.Event, error) {
	for {
		frameType, data, e := transport.readFrame()
		if e != nil {
			if errors.Is(e, io.EOF) {
				return nil, wamp.ErrorConnectionClosed
			}
			return nil, errors.Join(wamp.ErrorConnectionClosed, e)
		}
		switch frameType {
		case frameRegular:
			return transport.Serializer.Decode(data)
		case framePing:
			e = transport.writeFrame(framePong, data)
			if e != nil {
				return nil, e
			}
		case framePong:
		default:
			return nil, fmt.Errorf("%w: unknown frame type %d", wamp.ErrorProtocolViolation, frameType)
		}
	}
}

// RawSocketHandshake negotiates serializer and message limit as the connecting peer
func RawSocketHandshake(
	connection net.Conn,
	serializer wamp.Serializer,
) (wamp.Transport, error) {
	serializerID, e := rawSocketSerializerID(serializer)
	if e != nil {
		return nil, e
	}
	_, e = connection.Write([]byte{rawSocketMagic, rawSocketMaxLength<<4 | serializerID, 0, 0})
	if e != nil {
		return nil, e
	}
	reply := make([]byte, 4)
	_, e = io.ReadFull(connection, reply)
	if e != nil {
		return nil, e
	}
	if reply[0] != rawSocketMagic {
		return nil, fmt.Errorf("%w: bad magic octet", ErrorRawSocketHandshake)
	}
	if reply[1]&0x0F == 0 {
		return nil, fmt.Errorf("%w: router error code %d", ErrorRawSocketHandshake, reply[1]>>4)
	}
	if reply[1]&0x0F != serializerID {
		return nil, fmt.Errorf("%w: serializer mismatch", ErrorRawSocketHandshake)
	}
	return RawSocketTransport(serializer, connection, maxLength(reply[1]>>4)), nil
}

// RawSocketAccept performs the router side of the handshake
func RawSocketAccept(connection net.Conn) (wamp.Transport, error) {
	request := make([]byte, 4)
	_, e := io.ReadFull(connection, request)
	if e != nil {
		return nil, e
	}
	if request[0] != rawSocketMagic {
		return nil, fmt.Errorf("%w: bad magic octet", ErrorRawSocketHandshake)
	}
	var serializer wamp.Serializer
	switch request[1] & 0x0F {
	case rawSocketJSON:
		serializer = new(wampSerializers.JSONSerializer)
	case rawSocketMsgpack:
		serializer = new(wampSerializers.MsgpackSerializer)
	default:
		connection.Write([]byte{rawSocketMagic, 1 << 4, 0, 0})
		return nil, fmt.Errorf("%w: unsupported serializer", ErrorRawSocketHandshake)
	}
	_, e = connection.Write([]byte{rawSocketMagic, rawSocketMaxLength<<4 | request[1]&0x0F, 0, 0})
	if e != nil {
		return nil, e
	}
	return RawSocketTransport(serializer, connection, maxLength(request[1]>>4)), nil
}

func dialRawSocket(
	ctx context.Context,
	network string,
	address string,
	serializer wamp.Serializer,
) (wamp.Transport, error) {
	dialer := net.Dialer{Timeout: 10 * time.Second}
	connection, e := dialer.DialContext(ctx, network, address)
	if e != nil {
		return nil, e
	}
	transport, e := RawSocketHandshake(connection, serializer)
	if e != nil {
		connection.Close()
		return nil, e
	}
	return transport, nil
}
