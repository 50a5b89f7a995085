package ensim

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/golang/glog"

	"github.com/ansys/pyensight-sub000/protocol"
)

type ServerSettings struct {
	HelloTimeout time.Duration
	PingTimeout  time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

func DefaultServerSettings() *ServerSettings {
	return &ServerSettings{
		HelloTimeout: 5 * time.Second,
		PingTimeout:  1 * time.Second,
		WriteTimeout: 5 * time.Second,
		ReadTimeout:  60 * time.Second,
	}
}

// Server exposes an engine over the websocket protocol: `/commands` for
// request/response, `/events` for engine push. A session's two sockets are
// paired by the instance id each sends in its hello; both share one engine
// listener, so registrations made on the command socket route notices out
// the event socket.
type Server struct {
	ctx    context.Context
	cancel context.CancelFunc

	engine   *Engine
	settings *ServerSettings

	upgrader websocket.Upgrader

	stateLock sync.Mutex
	instances map[string]*serverInstance
}

type serverInstance struct {
	instanceId string
	listenerId uint64
	events     <-chan *protocol.EventNotice
	refs       int
}

func NewServerWithDefaults(ctx context.Context, engine *Engine) *Server {
	return NewServer(ctx, engine, DefaultServerSettings())
}

func NewServer(ctx context.Context, engine *Engine, settings *ServerSettings) *Server {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &Server{
		ctx:       cancelCtx,
		cancel:    cancel,
		engine:    engine,
		settings:  settings,
		instances: map[string]*serverInstance{},
	}
}

// Handler mounts the protocol endpoints. Useful for tests and for embedding
// in a larger mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/commands", s.handleCommands)
	mux.HandleFunc("/events", s.handleEvents)
	return mux
}

func (s *Server) ListenAndServe(addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	go func() {
		select {
		case <-s.ctx.Done():
		}
		server.Close()
	}()

	glog.Infof("[sim]listen %s\n", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Close() {
	s.cancel()
}

// hello reads the session hello on a fresh socket and answers with the
// welcome. A rejected hello gets an error welcome before the socket closes.
func (s *Server) hello(ws *websocket.Conn) (*serverInstance, bool) {
	ws.SetReadDeadline(time.Now().Add(s.settings.HelloTimeout))
	messageType, message, err := ws.ReadMessage()
	if err != nil || messageType != websocket.BinaryMessage {
		return nil, false
	}
	parsed, err := protocol.DecodeMessage(message)
	if err != nil {
		return nil, false
	}
	hello, ok := parsed.(*protocol.SessionHello)
	if !ok {
		return nil, false
	}

	refuse := func(message string) {
		welcome := s.engine.Welcome()
		welcome.Status = protocol.StatusError
		welcome.Message = message
		s.writeWelcome(ws, welcome)
	}

	if hello.ProtocolVersion != protocol.ProtocolVersion {
		refuse("protocol version not supported")
		return nil, false
	}
	if hello.InstanceId == "" {
		refuse("missing instance id")
		return nil, false
	}

	instance := s.attach(hello.InstanceId)
	if !s.writeWelcome(ws, s.engine.Welcome()) {
		s.detach(instance)
		return nil, false
	}
	glog.V(1).Infof("[sim]hello %s client %q\n", hello.InstanceId, hello.Client)
	return instance, true
}

func (s *Server) writeWelcome(ws *websocket.Conn, welcome *protocol.SessionWelcome) bool {
	welcomeBytes, err := protocol.EncodeMessage(welcome)
	if err != nil {
		return false
	}
	ws.SetWriteDeadline(time.Now().Add(s.settings.HelloTimeout))
	return ws.WriteMessage(websocket.BinaryMessage, welcomeBytes) == nil
}

func (s *Server) attach(instanceId string) *serverInstance {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	instance, ok := s.instances[instanceId]
	if !ok {
		listenerId, events := s.engine.Subscribe()
		instance = &serverInstance{
			instanceId: instanceId,
			listenerId: listenerId,
			events:     events,
		}
		s.instances[instanceId] = instance
	}
	instance.refs += 1
	return instance
}

// detach drops one socket's reference. The last socket out releases the
// engine listener.
func (s *Server) detach(instance *serverInstance) {
	s.stateLock.Lock()
	instance.refs -= 1
	last := instance.refs == 0
	if last {
		delete(s.instances, instance.instanceId)
	}
	s.stateLock.Unlock()

	if last {
		s.engine.Unsubscribe(instance.listenerId)
		glog.V(1).Infof("[sim]release %s\n", instance.instanceId)
	}
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	instance, ok := s.hello(ws)
	if !ok {
		return
	}
	defer s.detach(instance)

	handleCtx, handleCancel := context.WithCancel(s.ctx)
	defer handleCancel()

	// the pinger and the response writer share the socket
	var writeLock sync.Mutex

	go func() {
		for {
			select {
			case <-handleCtx.Done():
				return
			case <-time.After(s.settings.PingTimeout):
				writeLock.Lock()
				ws.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout))
				err := ws.WriteMessage(websocket.BinaryMessage, make([]byte, 0))
				writeLock.Unlock()
				if err != nil {
					handleCancel()
					return
				}
			}
		}
	}()

	for {
		select {
		case <-handleCtx.Done():
			return
		default:
		}

		ws.SetReadDeadline(time.Now().Add(s.settings.ReadTimeout))
		messageType, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		if 0 == len(message) {
			// ping
			continue
		}

		frame, err := protocol.DecodeFrame(message)
		if err != nil {
			glog.Infof("[sim]bad frame from %s = %s\n", instance.instanceId, err)
			return
		}
		response, err := s.engine.Dispatch(instance.listenerId, frame)
		if err != nil {
			glog.Infof("[sim]dispatch %s = %s\n", instance.instanceId, err)
			return
		}

		writeLock.Lock()
		ws.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout))
		err = ws.WriteMessage(websocket.BinaryMessage, protocol.EncodeFrame(response))
		writeLock.Unlock()
		if err != nil {
			return
		}
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	instance, ok := s.hello(ws)
	if !ok {
		return
	}
	defer s.detach(instance)

	handleCtx, handleCancel := context.WithCancel(s.ctx)
	defer handleCancel()

	// drain the socket to see client pings and the close
	go func() {
		defer handleCancel()
		for {
			ws.SetReadDeadline(time.Now().Add(s.settings.ReadTimeout))
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-handleCtx.Done():
			return
		case <-time.After(s.settings.PingTimeout):
			ws.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout))
			if err := ws.WriteMessage(websocket.BinaryMessage, make([]byte, 0)); err != nil {
				return
			}
		case notice, ok := <-instance.events:
			if !ok {
				return
			}
			noticeBytes, err := protocol.EncodeMessage(notice)
			if err != nil {
				glog.Infof("[sim]encode notice = %s\n", err)
				continue
			}
			ws.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout))
			if err := ws.WriteMessage(websocket.BinaryMessage, noticeBytes); err != nil {
				return
			}
		}
	}
}
