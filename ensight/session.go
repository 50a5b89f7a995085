package ensight

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/golang/glog"

	"github.com/ansys/pyensight-sub000/protocol"
)

type SessionSettings struct {
	// Client is the client name sent in the transport hello.
	Client string
	// StrictErrors is the initial strict mode; see SetStrictErrors.
	StrictErrors bool
}

func DefaultSessionSettings() *SessionSettings {
	return &SessionSettings{
		Client: "ensight-go",
	}
}

// Session is the façade over one engine connection: the journal command
// surface, the selection/batch verbs, proxy resolution, attribute traffic,
// and event subscriptions.
//
// Commands are serialized: one request is outstanding at a time, and the
// response is paired by sequence number. A sequence mismatch, like any
// transport failure, is fatal: the session latches the failure, marks every
// proxy stale, drops all subscriptions, and fails every later call with the
// same TransportFailure, so callers never retry commands on a dead
// connection.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	transport Transport
	settings  *SessionSettings

	registry  *Registry
	catalog   *attrCatalog
	selection *selectionController
	router    *eventRouter

	engineVersion string

	// one outstanding command; guards seq
	callLock sync.Mutex
	seq      uint64

	stateLock    sync.Mutex
	strictErrors bool
	lastCommand  string
	lastMessage  string

	journalLock sync.Mutex
	journal     io.Writer

	failLock         sync.Mutex
	failErr          *Error
	failureCallbacks *CallbackList[FailureFunction]
}

func NewSessionWithDefaults(ctx context.Context, transport Transport) *Session {
	return NewSession(ctx, transport, DefaultSessionSettings())
}

func NewSession(ctx context.Context, transport Transport, settings *SessionSettings) *Session {
	cancelCtx, cancel := context.WithCancel(ctx)

	session := &Session{
		ctx:              cancelCtx,
		cancel:           cancel,
		transport:        transport,
		settings:         settings,
		catalog:          newAttrCatalog(),
		strictErrors:     settings.StrictErrors,
		failureCallbacks: NewCallbackList[FailureFunction](),
	}
	session.registry = newRegistry(session)
	session.selection = newSelectionController(session)
	session.router = newEventRouter(session)

	welcome := transport.Welcome()
	if welcome != nil {
		session.engineVersion = welcome.EngineVersion
		glog.V(1).Infof("[s]session engine %q next id %d\n",
			welcome.EngineVersion, welcome.NextObjectId)
	}

	go session.router.run()

	return session
}

// Connect dials a websocket transport and opens a session over it.
func Connect(ctx context.Context, url string, settings *SessionSettings) (*Session, error) {
	transport, err := NewWsTransport(ctx, url, settings.Client, DefaultWsTransportSettings())
	if err != nil {
		return nil, err
	}
	return NewSession(ctx, transport, settings), nil
}

func (self *Session) EngineVersion() string {
	return self.engineVersion
}

// Objects is the session's proxy registry.
func (self *Session) Objects() *Registry {
	return self.registry
}

// Selection is a snapshot of the selection/batch state.
func (self *Session) Selection() Selection {
	return self.selection.snapshot()
}

// FindObject resolves a query against one class using the local name index:
// an all-digit query is an object id, anything else matches DESCRIPTION text
// case-insensitively. First wrapped match wins.
func (self *Session) FindObject(class string, query string) (*Proxy, error) {
	return self.registry.Find(class, query)
}

// LastMessage is the engine message of the most recent command, mirroring
// the engine's own last-error text.
func (self *Session) LastMessage() string {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.lastMessage
}

// LastCommand is the rendered journal text of the most recent command.
func (self *Session) LastCommand() string {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.lastCommand
}

func (self *Session) setLast(command string, message string) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.lastCommand = command
	self.lastMessage = message
}

// StrictErrors reports the strict mode. When strict, an engine-rejected
// journal command returns an error in addition to its nonzero status.
func (self *Session) StrictErrors() bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.strictErrors
}

// SetStrictErrors toggles strict mode for the whole session, mirroring the
// engine's own session-wide flag. Toggling while commands are in flight on
// other goroutines leaves those commands on an unspecified side of the
// toggle; callers sequence the toggle against their own commands.
func (self *Session) SetStrictErrors(strict bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.strictErrors = strict
}

// RecordJournal mirrors every successfully issued journal line to w, one
// line per command. RecordJournal(nil) stops recording.
func (self *Session) RecordJournal(w io.Writer) {
	self.journalLock.Lock()
	defer self.journalLock.Unlock()

	self.journal = w
}

func (self *Session) mirrorJournal(line string) {
	self.journalLock.Lock()
	w := self.journal
	self.journalLock.Unlock()

	if w != nil {
		if _, err := fmt.Fprintln(w, line); err != nil {
			glog.Infof("[s]journal write error = %s\n", err)
		}
	}
}

// Command issues one journal command: `class: command args`. The engine
// status is always returned. With strict errors off, an engine rejection is
// a nonzero status with a nil error and the message retrievable via
// LastMessage; with strict errors on it is additionally a RemoteCommandError
// carrying the rendered journal text. Transport failures are errors in both
// modes.
//
// Selection and batch verbs given here are routed through the selection
// controller, so the group state machine cannot be bypassed.
func (self *Session) Command(ctx context.Context, class string, command string, args ...any) (int, error) {
	if status, err, handled := self.selection.journalVerb(ctx, class, command, args); handled {
		return status, err
	}

	values, err := toValues(args)
	if err != nil {
		return 0, err
	}
	_, status, err := self.journalCommand(ctx, class, command, values)
	if err != nil {
		return int(status), err
	}
	if status == protocol.StatusOk {
		// an accepted attribute command bypasses the typed set path, so any
		// cached value for that attribute on the selected objects is now
		// unconfirmed. invalidate so the next read round-trips.
		self.invalidateCommandAttr(class, command)
	}
	return self.commandResult(status, nil)
}

func (self *Session) invalidateCommandAttr(class string, command string) {
	name := canonicalAttrName(command)
	for _, objectId := range self.selection.selectedIds(class) {
		if proxy, ok := self.registry.Lookup(objectId); ok {
			proxy.cache.invalidate(name)
		}
	}
}

// selection / batch verbs

func (self *Session) SelectBegin(ctx context.Context, class string, ids ...ObjectId) (int, error) {
	return self.selection.openGroup(ctx, class, GroupSelect, "select_begin", ids)
}

func (self *Session) SelectAdd(ctx context.Context, class string, ids ...ObjectId) (int, error) {
	return self.selection.adjustSelection(ctx, class, "select_add", ids)
}

func (self *Session) SelectRemove(ctx context.Context, class string, ids ...ObjectId) (int, error) {
	return self.selection.adjustSelection(ctx, class, "select_remove", ids)
}

func (self *Session) SelectEnd(ctx context.Context, class string) (int, error) {
	return self.selection.closeGroup(ctx, class, GroupSelect, "select_end")
}

// SelectDefault retargets the class selection at the per-class default
// pseudo-object: attribute commands then edit the defaults, and a following
// Create materializes a concrete object seeded from them.
func (self *Session) SelectDefault(ctx context.Context, class string) (int, error) {
	return self.selection.selectDefault(ctx, class)
}

func (self *Session) ModifyBegin(ctx context.Context, class string) (int, error) {
	return self.selection.openGroup(ctx, class, GroupModify, "modify_begin", nil)
}

func (self *Session) ModifyEnd(ctx context.Context, class string) (int, error) {
	return self.selection.closeGroup(ctx, class, GroupModify, "modify_end")
}

func (self *Session) BeginBatch(ctx context.Context, class string) (int, error) {
	return self.selection.openGroup(ctx, class, GroupBatch, "begin", nil)
}

func (self *Session) EndBatch(ctx context.Context, class string) (int, error) {
	return self.selection.closeGroup(ctx, class, GroupBatch, "end")
}

// Create materializes a new object from the class defaults and returns its
// proxy. The engine selects the new object; the local mirror follows.
func (self *Session) Create(ctx context.Context, class string) (*Proxy, error) {
	return self.selection.create(ctx, class)
}

// DeleteSelected deletes the selected objects of a class. The engine
// broadcasts one ObjectDeleted per object; the registry forgets them as the
// notices arrive.
func (self *Session) DeleteSelected(ctx context.Context, class string) (int, error) {
	return self.selection.deleteSelected(ctx, class)
}

// NextObjectId probes the engine's monotonic id allocator without
// allocating.
func (self *Session) NextObjectId(ctx context.Context) (ObjectId, error) {
	response, err := callTyped[*protocol.NextIdResponse](self, ctx, &protocol.NextIdRequest{})
	if err != nil {
		return 0, err
	}
	return ObjectId(response.NextObjectId), nil
}

// SetAttrsBulk assigns the same attributes across several objects in one
// engine request. With suppressErrors false the request is all-or-nothing:
// any failure leaves every object and cache untouched and returns an
// aggregate error. With suppressErrors true, failures are isolated per
// object: valid members are applied, and the returned map carries one error
// per failed object.
func (self *Session) SetAttrsBulk(ctx context.Context, proxies []*Proxy, assigns []AttrAssignment, suppressErrors bool) (map[ObjectId]error, error) {
	results, err := self.setAttrs(ctx, proxies, assigns, suppressErrors)
	out := map[ObjectId]error{}
	for objectId, resultErr := range results {
		out[objectId] = resultErr
	}
	return out, err
}

// event subscriptions

// SubscribeClass delivers notices for every object of a class. An empty
// attrs list matches any attribute. Callbacks run sequentially on the
// session's dispatch goroutine, in engine event order.
func (self *Session) SubscribeClass(ctx context.Context, class string, attrs []AttrKey, callback EventCallback) (SubscriptionId, error) {
	return self.subscribe(ctx, class, 0, attrs, callback)
}

// SubscribeObject delivers notices for one object.
func (self *Session) SubscribeObject(ctx context.Context, proxy *Proxy, attrs []AttrKey, callback EventCallback) (SubscriptionId, error) {
	if err := proxy.checkLive(""); err != nil {
		return SubscriptionId{}, err
	}
	return self.subscribe(ctx, "", proxy.Id(), attrs, callback)
}

func (self *Session) subscribe(ctx context.Context, class string, objectId ObjectId, attrs []AttrKey, callback EventCallback) (SubscriptionId, error) {
	sub := &subscription{
		subscriptionId: NewSubscriptionId(),
		class:          class,
		objectId:       objectId,
		attrNames:      map[string]bool{},
		attrEnums:      map[int32]bool{},
		callback:       callback,
	}
	wireAttrs := make([]protocol.AttrRef, 0, len(attrs))
	for _, key := range attrs {
		if name, ok := self.catalog.canonicalName(key); ok {
			sub.attrNames[name] = true
			wireAttrs = append(wireAttrs, protocol.AttrRef{Name: name})
		} else {
			sub.attrEnums[key.enum] = true
			wireAttrs = append(wireAttrs, key.ref())
		}
	}

	// local first, so a notice arriving right after the engine registers is
	// not missed
	self.router.add(sub)

	request := &protocol.EventRegisterRequest{
		Class:    class,
		ObjectId: uint64(objectId),
		Attrs:    wireAttrs,
	}
	response, err := callTyped[*protocol.EventRegisterResponse](self, ctx, request)
	if err != nil {
		self.router.remove(sub.subscriptionId)
		return SubscriptionId{}, err
	}
	if response.Status != protocol.StatusOk {
		self.router.remove(sub.subscriptionId)
		return SubscriptionId{}, statusError(response.Status, response.Message, "")
	}
	sub.routingId = response.RoutingId
	glog.V(1).Infof("[er]subscribe %s class=%s object=%d routing=%d\n",
		sub.subscriptionId, class, objectId, response.RoutingId)
	return sub.subscriptionId, nil
}

// Unsubscribe stops local delivery immediately and deregisters with the
// engine best-effort.
func (self *Session) Unsubscribe(ctx context.Context, subscriptionId SubscriptionId) error {
	sub, ok := self.router.remove(subscriptionId)
	if !ok {
		return &Error{
			Kind:    KindBadIdentifier,
			Message: fmt.Sprintf("unknown subscription %s", subscriptionId),
		}
	}
	glog.V(1).Infof("[er]unsubscribe %s\n", subscriptionId)

	request := &protocol.EventDeregisterRequest{RoutingId: sub.routingId}
	response, err := callTyped[*protocol.EventDeregisterResponse](self, ctx, request)
	if err != nil {
		return err
	}
	if statusErr := statusError(response.Status, response.Message, ""); statusErr != nil {
		return statusErr
	}
	return nil
}

// Close tears down the session. Later calls fail with TransportFailure.
func (self *Session) Close() {
	self.fail(transportError(nil, sessionClosedMessage))
}

// core call path

// journalCommand sends one journal command and tracks last command/message
// and the journal mirror. The returned error is transport or encoding only;
// engine rejection is the status.
func (self *Session) journalCommand(ctx context.Context, class string, command string, args []protocol.Value) (*protocol.CommandResponse, int32, error) {
	rendered := RenderCommand(class, command, args)

	request := &protocol.CommandRequest{
		Class:   class,
		Command: command,
		Args:    args,
	}
	response, err := callTyped[*protocol.CommandResponse](self, ctx, request)
	if err != nil {
		self.setLast(rendered, err.Error())
		return nil, 0, err
	}
	self.setLast(rendered, response.Message)

	if response.Status == protocol.StatusOk {
		glog.V(1).Infof("[s]%s\n", rendered)
		self.mirrorJournal(rendered)
	} else {
		glog.V(1).Infof("[s]%s = %d %q\n", rendered, response.Status, response.Message)
	}
	return response, response.Status, nil
}

// commandResult folds an engine status into the journal surface contract:
// the status is always returned; strict mode adds the error.
func (self *Session) commandResult(status int32, err error) (int, error) {
	if err != nil {
		return int(status), err
	}
	if status != protocol.StatusOk && self.StrictErrors() {
		return int(status), statusError(status, self.LastMessage(), self.LastCommand())
	}
	return int(status), nil
}

// callMethod invokes a method on one object. Method failures are always
// errors; the strict mode flag only governs the journal surface.
func (self *Session) callMethod(ctx context.Context, proxy *Proxy, name string, args []any) ([]any, error) {
	values, err := toValues(args)
	if err != nil {
		return nil, err
	}
	rendered := RenderMethod(proxy.Ref(), name, values)

	request := &protocol.CommandRequest{
		Class:    proxy.Class(),
		Command:  name,
		Args:     values,
		ObjectId: uint64(proxy.Id()),
	}
	response, err := callTyped[*protocol.CommandResponse](self, ctx, request)
	if err != nil {
		self.setLast(rendered, err.Error())
		return nil, err
	}
	self.setLast(rendered, response.Message)

	if response.Status != protocol.StatusOk {
		methodErr := statusError(response.Status, response.Message, rendered)
		if methodErr.Kind == KindStaleObject {
			self.registry.Forget(proxy.Id())
		}
		return nil, methodErr
	}
	glog.V(1).Infof("[s]%s\n", rendered)
	return fromValues(self.registry, response.Results), nil
}

// getAttr is the cache-miss read path: one engine round trip, then the
// catalog, the proxy cache, and the name index learn from the response.
func (self *Session) getAttr(ctx context.Context, proxy *Proxy, key AttrKey) (attrEntry, error) {
	request := &protocol.AttrGetRequest{
		Object: proxy.Ref(),
		Attr:   key.ref(),
	}
	response, err := callTyped[*protocol.AttrGetResponse](self, ctx, request)
	if err != nil {
		return attrEntry{}, err
	}
	if response.Status != protocol.StatusOk {
		getErr := statusError(response.Status, response.Message, fmt.Sprintf("%s get %s", proxy, key))
		if getErr.Kind == KindStaleObject {
			self.registry.Forget(proxy.Id())
		}
		return attrEntry{}, getErr
	}

	self.catalog.learn(response.Info)
	entry := attrEntry{
		values: response.Values,
		multi:  response.Info.Multi,
	}
	name := canonicalAttrName(response.Info.Name)
	if name != "" {
		proxy.cache.store(name, entry.values, entry.multi)
		if name == AttrDescription && 0 < len(entry.values) && entry.values[0].Kind == protocol.ValueKindString {
			self.registry.noteDescription(proxy.Id(), entry.values[0].Str)
		}
	}
	return entry, nil
}

// setAttrs is the shared write path for single and bulk assignment. Engine
// first: caches change only for objects the engine applied.
func (self *Session) setAttrs(ctx context.Context, proxies []*Proxy, assigns []AttrAssignment, suppressErrors bool) (map[ObjectId]*Error, error) {
	objects := make([]protocol.ObjectRef, len(proxies))
	for i, proxy := range proxies {
		objects[i] = proxy.Ref()
	}
	wireAssigns := make([]protocol.AttrAssign, len(assigns))
	for i, assign := range assigns {
		values, err := toAttrValues(assign.Value)
		if err != nil {
			return nil, err
		}
		wireAssigns[i] = protocol.AttrAssign{
			Attr:   assign.Key.ref(),
			Values: values,
		}
	}
	rendered := RenderAttrSet(objects, wireAssigns)

	request := &protocol.AttrSetRequest{
		Objects:        objects,
		Assigns:        wireAssigns,
		SuppressErrors: suppressErrors,
	}
	response, err := callTyped[*protocol.AttrSetResponse](self, ctx, request)
	if err != nil {
		self.setLast(rendered, err.Error())
		return nil, err
	}
	self.setLast(rendered, response.Message)

	for _, info := range response.Infos {
		self.catalog.learn(info)
	}

	results := map[ObjectId]*Error{}
	applied := map[ObjectId]bool{}
	for _, result := range response.Results {
		objectId := ObjectId(result.Object.Id)
		if result.Status == protocol.StatusOk {
			applied[objectId] = true
		} else {
			resultErr := statusError(result.Status, result.Message, rendered)
			results[objectId] = resultErr
			if resultErr.Kind == KindStaleObject {
				self.registry.Forget(objectId)
			}
		}
	}

	if response.Status != protocol.StatusOk {
		// request-level failure. with suppressErrors off this is the
		// all-or-nothing rejection: the engine applied nothing, so no cache
		// moves either.
		glog.V(1).Infof("[s]%s = %d %q\n", rendered, response.Status, response.Message)
		return results, statusError(response.Status, response.Message, rendered)
	}
	if len(response.Results) == 0 {
		for _, proxy := range proxies {
			applied[proxy.Id()] = true
		}
	}

	if len(response.Infos) == len(wireAssigns) {
		for i, assign := range wireAssigns {
			info := response.Infos[i]
			name := canonicalAttrName(info.Name)
			if name == "" {
				continue
			}
			for _, proxy := range proxies {
				if !applied[proxy.Id()] {
					continue
				}
				proxy.cache.store(name, assign.Values, info.Multi)
				if name == AttrDescription && 0 < len(assign.Values) && assign.Values[0].Kind == protocol.ValueKindString {
					self.registry.noteDescription(proxy.Id(), assign.Values[0].Str)
				}
			}
		}
	}

	glog.V(1).Infof("[s]%s\n", rendered)
	self.mirrorJournal(rendered)
	return results, nil
}

// call sends one frame and pairs its response by sequence number. One
// outstanding call at a time.
func (self *Session) call(ctx context.Context, request protocol.Message) (protocol.Message, error) {
	if failErr := self.failedErr(); failErr != nil {
		return nil, failErr
	}

	self.callLock.Lock()
	defer self.callLock.Unlock()

	self.seq += 1
	seq := self.seq
	protocol.SetSeq(request, seq)

	frame, err := protocol.ToFrame(request)
	if err != nil {
		return nil, encodingError("encode %T: %s", request, err)
	}

	responseFrame, err := self.transport.Call(ctx, frame)
	if err != nil {
		failErr, ok := err.(*Error)
		if !ok {
			failErr = transportError(err, "call failed")
		}
		self.fail(failErr)
		return nil, failErr
	}

	response, err := protocol.FromFrame(responseFrame)
	if err != nil {
		failErr := transportError(err, "decode %s response", responseFrame.MessageType)
		self.fail(failErr)
		return nil, failErr
	}
	if responseSeq, ok := protocol.Seq(response); !ok || responseSeq != seq {
		failErr := transportError(nil, "sequence desync: sent %d, received %d", seq, responseSeq)
		self.fail(failErr)
		return nil, failErr
	}
	return response, nil
}

// callTyped narrows a call's response to the expected message type. A
// mismatched type means the channel pairing is broken, which is fatal.
func callTyped[R protocol.Message](self *Session, ctx context.Context, request protocol.Message) (R, error) {
	var zero R
	response, err := self.call(ctx, request)
	if err != nil {
		return zero, err
	}
	typed, ok := response.(R)
	if !ok {
		failErr := transportError(nil, "response type mismatch: %T", response)
		self.fail(failErr)
		return zero, failErr
	}
	return typed, nil
}

// failure path

const sessionClosedMessage = "session closed"

type FailureFunction = func(failErr error)

// AddFailureCallback registers a callback fired once when the session latches
// a fatal error, including Close. The session state is fully converged before
// the callback runs. Returns a function to remove the callback.
func (self *Session) AddFailureCallback(failureCallback FailureFunction) func() {
	callbackId := self.failureCallbacks.Add(failureCallback)
	return func() {
		self.failureCallbacks.Remove(callbackId)
	}
}

// fail latches the first fatal error and converges all session state to
// failed: proxies stale, subscriptions dropped, transport closed.
func (self *Session) fail(failErr *Error) {
	self.failLock.Lock()
	first := false
	if self.failErr == nil {
		self.failErr = failErr
		first = true
	}
	self.failLock.Unlock()

	if first {
		if failErr.Message != sessionClosedMessage {
			glog.Infof("[s]session failed = %s\n", failErr)
		}
		self.cancel()
		self.registry.markStaleAll()
		self.router.clear()
		self.transport.Close()
		for _, failureCallback := range self.failureCallbacks.Get() {
			func() {
				defer func() {
					if r := recover(); r != nil {
						glog.Errorf("[s]failure callback panic = %s\n", r)
					}
				}()
				failureCallback(failErr)
			}()
		}
	}
}

func (self *Session) transportDied() {
	self.fail(transportError(nil, "connection to engine lost"))
}

func (self *Session) failedErr() *Error {
	self.failLock.Lock()
	defer self.failLock.Unlock()

	return self.failErr
}
