package ensim

import (
	"context"
	"errors"
	"sync"

	"github.com/ansys/pyensight-sub000/protocol"
)

// LocalTransport connects a session to an in-process engine with no network
// in between. It satisfies the session transport: strict request/response on
// Call, engine-ordered notices on Events, and a closed channel once Close
// runs.
type LocalTransport struct {
	engine     *Engine
	listenerId uint64
	events     <-chan *protocol.EventNotice
	welcome    *protocol.SessionWelcome

	closeLock sync.Mutex
	closed    bool
}

func NewLocalTransport(engine *Engine) *LocalTransport {
	listenerId, events := engine.Subscribe()
	return &LocalTransport{
		engine:     engine,
		listenerId: listenerId,
		events:     events,
		welcome:    engine.Welcome(),
	}
}

func (t *LocalTransport) Call(ctx context.Context, frame *protocol.Frame) (*protocol.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	t.closeLock.Lock()
	closed := t.closed
	t.closeLock.Unlock()
	if closed {
		return nil, errors.New("transport closed")
	}

	return t.engine.Dispatch(t.listenerId, frame)
}

func (t *LocalTransport) Events() <-chan *protocol.EventNotice {
	return t.events
}

func (t *LocalTransport) Welcome() *protocol.SessionWelcome {
	return t.welcome
}

func (t *LocalTransport) Close() error {
	t.closeLock.Lock()
	defer t.closeLock.Unlock()

	if !t.closed {
		t.closed = true
		t.engine.Unsubscribe(t.listenerId)
	}
	return nil
}
