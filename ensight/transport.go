package ensight

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/golang/glog"

	"github.com/ansys/pyensight-sub000/protocol"
)

// Transport carries frames to one engine. `Call` is strict request/response
// and is serialized by the session: one outstanding command at a time.
// `Events` is the engine-push channel; it closes when the transport dies.
// Any transport failure is fatal, with no reconnect: resuming a
// stateful command stream on a fresh connection would silently desync client
// and engine state.
type Transport interface {
	Call(ctx context.Context, frame *protocol.Frame) (*protocol.Frame, error)
	Events() <-chan *protocol.EventNotice
	Welcome() *protocol.SessionWelcome
	Close() error
}

type WsTransportSettings struct {
	WsHandshakeTimeout time.Duration
	HelloTimeout       time.Duration
	PingTimeout        time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
	EventBufferSize    int
}

func DefaultWsTransportSettings() *WsTransportSettings {
	return &WsTransportSettings{
		WsHandshakeTimeout: 5 * time.Second,
		HelloTimeout:       5 * time.Second,
		PingTimeout:        1 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReadTimeout:        60 * time.Second,
		EventBufferSize:    32,
	}
}

// WsTransport speaks the wire protocol over two websockets: `<url>/commands`
// (request/response) and `<url>/events` (engine push). Both perform the
// hello/welcome handshake; the engine pairs them by the hello instance id.
type WsTransport struct {
	ctx    context.Context
	cancel context.CancelFunc

	url        string
	instanceId string

	settings *WsTransportSettings

	commandWs *websocket.Conn
	eventWs   *websocket.Conn

	welcome *protocol.SessionWelcome

	// guards writes to the command socket (calls and pings)
	writeLock sync.Mutex

	responses chan []byte
	events    chan *protocol.EventNotice

	failLock sync.Mutex
	failErr  *Error
}

func NewWsTransportWithDefaults(ctx context.Context, url string, client string) (*WsTransport, error) {
	return NewWsTransport(ctx, url, client, DefaultWsTransportSettings())
}

func NewWsTransport(ctx context.Context, url string, client string, settings *WsTransportSettings) (*WsTransport, error) {
	cancelCtx, cancel := context.WithCancel(ctx)

	transport := &WsTransport{
		ctx:        cancelCtx,
		cancel:     cancel,
		url:        url,
		instanceId: NewInstanceId(),
		settings:   settings,
		responses:  make(chan []byte, 1),
		events:     make(chan *protocol.EventNotice, settings.EventBufferSize),
	}

	success := false
	defer func() {
		if !success {
			cancel()
			if transport.commandWs != nil {
				transport.commandWs.Close()
			}
			if transport.eventWs != nil {
				transport.eventWs.Close()
			}
		}
	}()

	dialer := &websocket.Dialer{
		HandshakeTimeout: settings.WsHandshakeTimeout,
	}

	base := strings.TrimSuffix(url, "/")

	commandWs, _, err := dialer.DialContext(cancelCtx, base+"/commands", nil)
	if err != nil {
		return nil, transportError(err, "dial commands %s", base)
	}
	transport.commandWs = commandWs

	welcome, err := transport.hello(commandWs, client)
	if err != nil {
		return nil, err
	}
	transport.welcome = welcome

	eventWs, _, err := dialer.DialContext(cancelCtx, base+"/events", nil)
	if err != nil {
		return nil, transportError(err, "dial events %s", base)
	}
	transport.eventWs = eventWs

	if _, err := transport.hello(eventWs, client); err != nil {
		return nil, err
	}

	glog.Infof("[wt]connect %s engine %q protocol %d\n",
		transport.instanceId, welcome.EngineVersion, welcome.ProtocolVersion)

	go transport.commandLoop()
	go transport.eventLoop()

	success = true
	return transport, nil
}

// hello performs the handshake on one socket: send SessionHello, read
// SessionWelcome, check version and status.
func (self *WsTransport) hello(ws *websocket.Conn, client string) (*protocol.SessionWelcome, error) {
	helloBytes, err := protocol.EncodeMessage(&protocol.SessionHello{
		Client:          client,
		InstanceId:      self.instanceId,
		ProtocolVersion: protocol.ProtocolVersion,
	})
	if err != nil {
		return nil, transportError(err, "encode hello")
	}

	ws.SetWriteDeadline(time.Now().Add(self.settings.HelloTimeout))
	if err := ws.WriteMessage(websocket.BinaryMessage, helloBytes); err != nil {
		return nil, transportError(err, "send hello")
	}
	ws.SetReadDeadline(time.Now().Add(self.settings.HelloTimeout))
	messageType, message, err := ws.ReadMessage()
	if err != nil {
		return nil, transportError(err, "read welcome")
	}
	if messageType != websocket.BinaryMessage {
		return nil, transportError(nil, "welcome response error")
	}

	parsed, err := protocol.DecodeMessage(message)
	if err != nil {
		return nil, transportError(err, "decode welcome")
	}
	welcome, ok := parsed.(*protocol.SessionWelcome)
	if !ok {
		return nil, transportError(nil, "welcome response error: %T", parsed)
	}
	if welcome.Status != protocol.StatusOk {
		return nil, transportError(nil, "engine refused session: %s", welcome.Message)
	}
	if welcome.ProtocolVersion != protocol.ProtocolVersion {
		return nil, transportError(nil, "protocol version mismatch: engine %d, client %d",
			welcome.ProtocolVersion, protocol.ProtocolVersion)
	}
	return welcome, nil
}

// commandLoop reads the command socket: responses flow to the in-flight
// `Call`, empty messages are pings. It also owns the command socket
// keepalive.
func (self *WsTransport) commandLoop() {
	defer close(self.responses)

	go func() {
		for {
			select {
			case <-self.ctx.Done():
				return
			case <-time.After(self.settings.PingTimeout):
				self.writeLock.Lock()
				self.commandWs.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
				err := self.commandWs.WriteMessage(websocket.BinaryMessage, make([]byte, 0))
				self.writeLock.Unlock()
				if err != nil {
					self.fail(transportError(err, "command ping"))
					return
				}
			}
		}
	}()

	for {
		select {
		case <-self.ctx.Done():
			return
		default:
		}

		self.commandWs.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
		messageType, message, err := self.commandWs.ReadMessage()
		if err != nil {
			self.fail(transportError(err, "command read"))
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			if 0 == len(message) {
				// ping
				glog.V(2).Infof("[wt]ping %s<-\n", self.instanceId)
				continue
			}
			select {
			case <-self.ctx.Done():
				return
			case self.responses <- message:
				glog.V(2).Infof("[wt]%s<-\n", self.instanceId)
			}
		default:
			glog.V(2).Infof("[wt]other=%d %s<-\n", messageType, self.instanceId)
		}
	}
}

// eventLoop reads the event socket and delivers decoded notices in arrival
// order. Delivery is blocking: dropping an event would break the ordering
// guarantee the session gives its subscribers.
func (self *WsTransport) eventLoop() {
	defer close(self.events)

	go func() {
		for {
			select {
			case <-self.ctx.Done():
				return
			case <-time.After(self.settings.PingTimeout):
				self.eventWs.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
				if err := self.eventWs.WriteMessage(websocket.BinaryMessage, make([]byte, 0)); err != nil {
					self.fail(transportError(err, "event ping"))
					return
				}
			}
		}
	}()

	for {
		select {
		case <-self.ctx.Done():
			return
		default:
		}

		self.eventWs.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
		messageType, message, err := self.eventWs.ReadMessage()
		if err != nil {
			self.fail(transportError(err, "event read"))
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			if 0 == len(message) {
				// ping
				continue
			}
			parsed, err := protocol.DecodeMessage(message)
			if err != nil {
				self.fail(transportError(err, "event decode"))
				return
			}
			notice, ok := parsed.(*protocol.EventNotice)
			if !ok {
				glog.Infof("[wt]unexpected event message %T\n", parsed)
				continue
			}
			select {
			case <-self.ctx.Done():
				return
			case self.events <- notice:
				glog.V(2).Infof("[wt]event %s<-\n", self.instanceId)
			}
		}
	}
}

func (self *WsTransport) Call(ctx context.Context, frame *protocol.Frame) (*protocol.Frame, error) {
	if err := self.failed(); err != nil {
		return nil, err
	}

	b := protocol.EncodeFrame(frame)

	self.writeLock.Lock()
	self.commandWs.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
	err := self.commandWs.WriteMessage(websocket.BinaryMessage, b)
	self.writeLock.Unlock()
	if err != nil {
		failErr := transportError(err, "command write")
		self.fail(failErr)
		return nil, failErr
	}
	glog.V(2).Infof("[wt]%s %s->\n", self.instanceId, frame.MessageType)

	select {
	case <-ctx.Done():
		// the response may still arrive later, which would desync the
		// request/response pairing. the transport cannot be reused.
		failErr := transportError(ctx.Err(), "call abandoned")
		self.fail(failErr)
		return nil, failErr
	case <-self.ctx.Done():
		if failErr := self.failed(); failErr != nil {
			return nil, failErr
		}
		return nil, transportError(self.ctx.Err(), "transport closed")
	case message, ok := <-self.responses:
		if !ok {
			if failErr := self.failed(); failErr != nil {
				return nil, failErr
			}
			return nil, transportError(nil, "transport closed")
		}
		response, err := protocol.DecodeFrame(message)
		if err != nil {
			failErr := transportError(err, "response decode")
			self.fail(failErr)
			return nil, failErr
		}
		return response, nil
	}
}

func (self *WsTransport) Events() <-chan *protocol.EventNotice {
	return self.events
}

func (self *WsTransport) Welcome() *protocol.SessionWelcome {
	return self.welcome
}

func (self *WsTransport) Close() error {
	self.fail(transportError(nil, "transport closed"))
	return nil
}

// fail latches the first failure and tears down both sockets. Idempotent.
func (self *WsTransport) fail(failErr *Error) {
	self.failLock.Lock()
	first := false
	if self.failErr == nil {
		self.failErr = failErr
		first = true
	}
	self.failLock.Unlock()

	if first {
		if failErr.Message != "transport closed" {
			glog.Infof("[wt]fail %s = %s\n", self.instanceId, failErr)
		}
		self.cancel()
		self.commandWs.Close()
		self.eventWs.Close()
	}
}

func (self *WsTransport) failed() *Error {
	self.failLock.Lock()
	defer self.failLock.Unlock()

	if self.failErr != nil {
		return self.failErr
	}
	return nil
}
