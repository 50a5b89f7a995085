// Package ensim is an in-process double of the visualization engine's
// protocol endpoint. It interprets the journal verbs (selection, batch,
// create/delete, attribute commands), keeps an object table with canonical
// attributes, and broadcasts change notices to registered listeners. It
// backs the package tests, the diagnostic CLI, and the websocket server in
// this package.
package ensim

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/ansys/pyensight-sub000/protocol"
)

var (
	ErrUnknownClass    = errors.New("unknown object class")
	ErrUnknownListener = errors.New("unknown listener")
)

type EngineSettings struct {
	Version string
	// StartId is the first object id handed out.
	StartId uint64
	// EventBufferSize is the per-listener notice buffer. A listener that
	// falls this far behind starts losing notices.
	EventBufferSize int
}

func DefaultEngineSettings() *EngineSettings {
	return &EngineSettings{
		Version:         "2024 R1 (ensim)",
		StartId:         1,
		EventBufferSize: 64,
	}
}

// attribute schema. enums are stable engine constants.
type attrDef struct {
	name     string
	enum     int32
	multi    bool
	defaults []protocol.Value
}

func (a attrDef) info() protocol.AttrInfo {
	return protocol.AttrInfo{
		Name:  a.name,
		Enum:  a.enum,
		Multi: a.multi,
	}
}

var attrDefs = []attrDef{
	{name: "DESCRIPTION", enum: 1000, defaults: []protocol.Value{protocol.String("")}},
	{name: "VISIBLE", enum: 1001, defaults: []protocol.Value{protocol.Bool(true)}},
	{name: "COLORBYRGB", enum: 1002, multi: true, defaults: []protocol.Value{
		protocol.Number(0.5), protocol.Number(0.5), protocol.Number(0.5)}},
	{name: "OPAQUENESS", enum: 1003, defaults: []protocol.Value{protocol.Number(1)}},
	{name: "TIMESTEP", enum: 1100, defaults: []protocol.Value{protocol.Number(0)}},
	{name: "TIMESTEP_LIMITS", enum: 1101, multi: true, defaults: []protocol.Value{
		protocol.Number(0), protocol.Number(0)}},
	{name: "TEXT", enum: 1200, defaults: []protocol.Value{protocol.String("")}},
}

// class schema, keyed by journal noun. The object class is ENS_ + upper noun.
type classDef struct {
	noun      string
	attrs     []string
	singleton bool
}

func (c classDef) class() string {
	return "ENS_" + strings.ToUpper(c.noun)
}

var classDefs = []classDef{
	{noun: "globals", attrs: []string{"DESCRIPTION", "TIMESTEP", "TIMESTEP_LIMITS"}, singleton: true},
	{noun: "part", attrs: []string{"DESCRIPTION", "VISIBLE", "COLORBYRGB", "OPAQUENESS"}},
	{noun: "annot", attrs: []string{"DESCRIPTION", "VISIBLE", "TEXT"}},
	{noun: "variable", attrs: []string{"DESCRIPTION"}},
	{noun: "tool", attrs: []string{"DESCRIPTION", "VISIBLE"}},
}

type object struct {
	objectId uint64
	noun     string
	class    string
	attrs    map[string][]protocol.Value
}

func (o *object) ref() protocol.ObjectRef {
	return protocol.ObjectRef{Class: o.class, Id: o.objectId}
}

type selection struct {
	ids         []uint64
	defaultMode bool
}

type group struct {
	noun string
	kind string
}

type registration struct {
	routingId uint64
	class     string
	objectId  uint64
	attrNames map[string]bool
	attrEnums map[int32]bool
}

func (r *registration) matches(notice *protocol.EventNotice) bool {
	if r.objectId != 0 {
		if notice.Object.Id != r.objectId {
			return false
		}
	} else if r.class != notice.Object.Class {
		return false
	}
	if notice.Kind != protocol.EventKindAttrChanged {
		return true
	}
	if len(r.attrNames) == 0 && len(r.attrEnums) == 0 {
		return true
	}
	return r.attrNames[notice.Attr.Name] || r.attrEnums[notice.Attr.Enum]
}

type listener struct {
	listenerId    uint64
	events        chan *protocol.EventNotice
	registrations map[uint64]*registration
}

// Engine is the simulated endpoint. All state lives behind one lock; every
// dispatch is atomic, which gives the same per-connection ordering a real
// engine gives its single journal stream.
type Engine struct {
	settings *EngineSettings

	attrsByName map[string]attrDef
	attrsByEnum map[int32]attrDef
	classByNoun map[string]classDef

	stateLock sync.Mutex

	nextObjectId uint64
	objects      map[uint64]*object
	classObjects map[string][]uint64
	deletedIds   map[uint64]bool

	defaults   map[string]map[string][]protocol.Value
	selections map[string]*selection
	open       []group

	nextListenerId uint64
	nextRoutingId  uint64
	listeners      map[uint64]*listener
}

func NewEngineWithDefaults() *Engine {
	return NewEngine(DefaultEngineSettings())
}

func NewEngine(settings *EngineSettings) *Engine {
	e := &Engine{
		settings:     settings,
		attrsByName:  map[string]attrDef{},
		attrsByEnum:  map[int32]attrDef{},
		classByNoun:  map[string]classDef{},
		nextObjectId: settings.StartId,
		objects:      map[uint64]*object{},
		classObjects: map[string][]uint64{},
		deletedIds:   map[uint64]bool{},
		defaults:     map[string]map[string][]protocol.Value{},
		selections:   map[string]*selection{},
		listeners:    map[uint64]*listener{},
	}
	for _, a := range attrDefs {
		e.attrsByName[a.name] = a
		e.attrsByEnum[a.enum] = a
	}
	for _, c := range classDefs {
		e.classByNoun[c.noun] = c
		defaults := map[string][]protocol.Value{}
		for _, name := range c.attrs {
			defaults[name] = slices.Clone(e.attrsByName[name].defaults)
		}
		e.defaults[c.noun] = defaults
		e.selections[c.noun] = &selection{}
		if c.singleton {
			o := e.materialize(c.noun)
			o.attrs["DESCRIPTION"] = []protocol.Value{protocol.String(c.noun)}
		}
	}
	return e
}

// Welcome describes the engine for the session handshake.
func (e *Engine) Welcome() *protocol.SessionWelcome {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	return &protocol.SessionWelcome{
		ProtocolVersion: protocol.ProtocolVersion,
		EngineVersion:   e.settings.Version,
		NextObjectId:    e.nextObjectId,
		Status:          protocol.StatusOk,
	}
}

// Subscribe creates a listener. Notices that match the listener's event
// registrations are delivered on the returned channel in engine order.
func (e *Engine) Subscribe() (uint64, <-chan *protocol.EventNotice) {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	e.nextListenerId += 1
	l := &listener{
		listenerId:    e.nextListenerId,
		events:        make(chan *protocol.EventNotice, e.settings.EventBufferSize),
		registrations: map[uint64]*registration{},
	}
	e.listeners[l.listenerId] = l
	return l.listenerId, l.events
}

// Unsubscribe removes a listener and closes its channel.
func (e *Engine) Unsubscribe(listenerId uint64) {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	if l, ok := e.listeners[listenerId]; ok {
		delete(e.listeners, listenerId)
		close(l.events)
	}
}

// AddObject creates an object of the given class noun with a description,
// outside any selection flow. Used to seed scenes.
func (e *Engine) AddObject(noun string, description string) (uint64, error) {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	if _, ok := e.classByNoun[noun]; !ok {
		return 0, fmt.Errorf("class %s: %w", noun, ErrUnknownClass)
	}
	o := e.materialize(noun)
	o.attrs["DESCRIPTION"] = []protocol.Value{protocol.String(description)}
	e.broadcast(&protocol.EventNotice{
		Kind:   protocol.EventKindObjectCreated,
		Object: o.ref(),
	})
	return o.objectId, nil
}

// AdvanceTime steps the globals clock and broadcasts the change. This is the
// spontaneous, engine-initiated mutation path: nothing on the command
// channel triggers it.
func (e *Engine) AdvanceTime() {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	ids := e.classObjects["ENS_GLOBALS"]
	if len(ids) == 0 {
		return
	}
	o := e.objects[ids[0]]
	step := float64(0)
	if values := o.attrs["TIMESTEP"]; 0 < len(values) {
		step = values[0].Num
	}
	values := []protocol.Value{protocol.Number(step + 1)}
	o.attrs["TIMESTEP"] = values
	e.broadcast(&protocol.EventNotice{
		Kind:   protocol.EventKindAttrChanged,
		Object: o.ref(),
		Attr:   e.attrsByName["TIMESTEP"].info(),
		Values: values,
	})
}

// Dispatch handles one request frame and returns the response frame. The
// response echoes the request's sequence number. Protocol-level problems are
// in-band statuses; the error return is reserved for undecodable input,
// which a server treats as connection-fatal.
func (e *Engine) Dispatch(listenerId uint64, frame *protocol.Frame) (*protocol.Frame, error) {
	request, err := protocol.FromFrame(frame)
	if err != nil {
		return nil, err
	}

	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	var response protocol.Message
	switch v := request.(type) {
	case *protocol.SessionHello:
		welcome := &protocol.SessionWelcome{
			ProtocolVersion: protocol.ProtocolVersion,
			EngineVersion:   e.settings.Version,
			NextObjectId:    e.nextObjectId,
		}
		if v.ProtocolVersion != protocol.ProtocolVersion {
			welcome.Status = protocol.StatusError
			welcome.Message = fmt.Sprintf("protocol version %d not supported", v.ProtocolVersion)
		}
		response = welcome
	case *protocol.CommandRequest:
		if v.ObjectId != 0 {
			response = e.handleMethod(v)
		} else {
			response = e.handleCommand(v)
		}
	case *protocol.AttrGetRequest:
		response = e.handleAttrGet(v)
	case *protocol.AttrSetRequest:
		response = e.handleAttrSet(v)
	case *protocol.EventRegisterRequest:
		response = e.handleEventRegister(listenerId, v)
	case *protocol.EventDeregisterRequest:
		response = e.handleEventDeregister(listenerId, v)
	case *protocol.NextIdRequest:
		response = &protocol.NextIdResponse{NextObjectId: e.nextObjectId}
	default:
		return nil, fmt.Errorf("unexpected request %T", request)
	}

	if seq, ok := protocol.Seq(request); ok {
		protocol.SetSeq(response, seq)
	}
	return protocol.ToFrame(response)
}

// journal commands

func (e *Engine) handleCommand(req *protocol.CommandRequest) *protocol.CommandResponse {
	fail := func(status int32, format string, args ...any) *protocol.CommandResponse {
		glog.V(1).Infof("[sim]%s: %s = %d\n", req.Class, req.Command, status)
		return &protocol.CommandResponse{
			Status:  status,
			Message: fmt.Sprintf(format, args...),
		}
	}

	c, ok := e.classByNoun[req.Class]
	if !ok {
		return fail(protocol.StatusBadIdentifier, "unknown class %q", req.Class)
	}
	sel := e.selections[c.noun]

	switch req.Command {
	case "select_begin", "modify_begin", "begin":
		for _, g := range e.open {
			if g.noun == c.noun {
				return fail(protocol.StatusSequence,
					"%s: %s while a %s group is open", c.noun, req.Command, c.noun)
			}
		}
		kind := map[string]string{
			"select_begin": "select",
			"modify_begin": "modify",
			"begin":        "batch",
		}[req.Command]
		if req.Command == "select_begin" {
			ids, status, message := e.checkIds(c, req.Args)
			if status != protocol.StatusOk {
				return fail(status, "%s", message)
			}
			sel.ids = ids
			sel.defaultMode = false
		}
		e.open = append(e.open, group{noun: c.noun, kind: kind})
		return &protocol.CommandResponse{}

	case "select_end", "modify_end", "end":
		kind := map[string]string{
			"select_end": "select",
			"modify_end": "modify",
			"end":        "batch",
		}[req.Command]
		if len(e.open) == 0 {
			return fail(protocol.StatusSequence, "%s: %s with no open group", c.noun, req.Command)
		}
		innermost := e.open[len(e.open)-1]
		if innermost.noun != c.noun || innermost.kind != kind {
			return fail(protocol.StatusSequence,
				"%s: %s does not close the innermost group (%s %s)",
				c.noun, req.Command, innermost.noun, innermost.kind)
		}
		e.open = e.open[:len(e.open)-1]
		return &protocol.CommandResponse{}

	case "select_add", "select_remove":
		if !e.hasOpenGroup(c.noun, "select") {
			return fail(protocol.StatusSequence,
				"%s: %s with no open select group", c.noun, req.Command)
		}
		ids, status, message := e.checkIds(c, req.Args)
		if status != protocol.StatusOk {
			return fail(status, "%s", message)
		}
		if req.Command == "select_add" {
			for _, id := range ids {
				if !slices.Contains(sel.ids, id) {
					sel.ids = append(sel.ids, id)
				}
			}
		} else {
			for _, id := range ids {
				if i := slices.Index(sel.ids, id); 0 <= i {
					sel.ids = slices.Delete(sel.ids, i, i+1)
				}
			}
		}
		return &protocol.CommandResponse{}

	case "select_default":
		sel.ids = nil
		sel.defaultMode = true
		return &protocol.CommandResponse{}

	case "create":
		o := e.materialize(c.noun)
		sel.ids = []uint64{o.objectId}
		sel.defaultMode = false
		e.broadcast(&protocol.EventNotice{
			Kind:   protocol.EventKindObjectCreated,
			Object: o.ref(),
		})
		glog.V(1).Infof("[sim]create %s = %d\n", c.noun, o.objectId)
		return &protocol.CommandResponse{CreatedId: o.objectId}

	case "delete":
		deleted := slices.Clone(sel.ids)
		for _, id := range deleted {
			o, ok := e.objects[id]
			if !ok {
				// deleted through another session since selection
				continue
			}
			delete(e.objects, id)
			e.deletedIds[id] = true
			if ids, ok := e.classObjects[o.class]; ok {
				if i := slices.Index(ids, id); 0 <= i {
					e.classObjects[o.class] = slices.Delete(ids, i, i+1)
				}
			}
			e.broadcast(&protocol.EventNotice{
				Kind:   protocol.EventKindObjectDeleted,
				Object: o.ref(),
			})
			glog.V(1).Infof("[sim]delete %s %d\n", c.noun, id)
		}
		sel.ids = nil
		return &protocol.CommandResponse{}

	default:
		// any other verb is an attribute command applied to the selection,
		// or to the class defaults in default mode
		a, ok := e.attrsByName[strings.ToUpper(req.Command)]
		if !ok || !slices.Contains(c.attrs, a.name) {
			return fail(protocol.StatusError, "%s: unknown command %q", c.noun, req.Command)
		}
		if sel.defaultMode {
			e.defaults[c.noun][a.name] = req.Args
			return &protocol.CommandResponse{}
		}
		for _, id := range sel.ids {
			o, ok := e.objects[id]
			if !ok {
				continue
			}
			o.attrs[a.name] = req.Args
			e.broadcast(&protocol.EventNotice{
				Kind:   protocol.EventKindAttrChanged,
				Object: o.ref(),
				Attr:   a.info(),
				Values: req.Args,
			})
		}
		return &protocol.CommandResponse{}
	}
}

// checkIds validates selection arguments: every id must name a live object
// of the class.
func (e *Engine) checkIds(c classDef, args []protocol.Value) ([]uint64, int32, string) {
	ids := make([]uint64, 0, len(args))
	for _, arg := range args {
		if arg.Kind != protocol.ValueKindNumber {
			return nil, protocol.StatusBadIdentifier, fmt.Sprintf("bad selection id %s", arg)
		}
		id := uint64(arg.Num)
		if e.deletedIds[id] {
			return nil, protocol.StatusStaleObject, fmt.Sprintf("object %d no longer exists", id)
		}
		o, ok := e.objects[id]
		if !ok {
			return nil, protocol.StatusBadIdentifier, fmt.Sprintf("unknown object %d", id)
		}
		if o.class != c.class() {
			return nil, protocol.StatusBadIdentifier,
				fmt.Sprintf("object %d is %s, not %s", id, o.class, c.class())
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids, protocol.StatusOk, ""
}

func (e *Engine) hasOpenGroup(noun string, kind string) bool {
	for _, g := range e.open {
		if g.noun == noun && g.kind == kind {
			return true
		}
	}
	return false
}

// must be called with `stateLock`
func (e *Engine) materialize(noun string) *object {
	c := e.classByNoun[noun]
	o := &object{
		objectId: e.nextObjectId,
		noun:     noun,
		class:    c.class(),
		attrs:    map[string][]protocol.Value{},
	}
	e.nextObjectId += 1
	for name, values := range e.defaults[noun] {
		o.attrs[name] = slices.Clone(values)
	}
	e.objects[o.objectId] = o
	e.classObjects[o.class] = append(e.classObjects[o.class], o.objectId)
	return o
}

// object methods

func (e *Engine) handleMethod(req *protocol.CommandRequest) *protocol.CommandResponse {
	o, status, message := e.lookupObject(req.ObjectId)
	if status != protocol.StatusOk {
		return &protocol.CommandResponse{Status: status, Message: message}
	}

	switch req.Command {
	case "getattrs":
		c := e.classByNoun[o.noun]
		results := make([]protocol.Value, len(c.attrs))
		for i, name := range c.attrs {
			results[i] = protocol.String(name)
		}
		return &protocol.CommandResponse{Results: results}
	case "describe":
		return &protocol.CommandResponse{Results: []protocol.Value{
			protocol.String(o.class),
			protocol.Number(float64(o.objectId)),
		}}
	case "version":
		if o.class != "ENS_GLOBALS" {
			break
		}
		return &protocol.CommandResponse{Results: []protocol.Value{
			protocol.String(e.settings.Version),
		}}
	}
	return &protocol.CommandResponse{
		Status:  protocol.StatusError,
		Message: fmt.Sprintf("%s: unknown method %q", o.class, req.Command),
	}
}

// must be called with `stateLock`
func (e *Engine) lookupObject(objectId uint64) (*object, int32, string) {
	if e.deletedIds[objectId] {
		return nil, protocol.StatusStaleObject, fmt.Sprintf("object %d no longer exists", objectId)
	}
	o, ok := e.objects[objectId]
	if !ok {
		return nil, protocol.StatusBadIdentifier, fmt.Sprintf("unknown object %d", objectId)
	}
	return o, protocol.StatusOk, ""
}

// attributes

func (e *Engine) resolveAttr(ref protocol.AttrRef) (attrDef, bool) {
	if ref.ByEnum {
		a, ok := e.attrsByEnum[ref.Enum]
		return a, ok
	}
	a, ok := e.attrsByName[strings.ToUpper(ref.Name)]
	return a, ok
}

func (e *Engine) handleAttrGet(req *protocol.AttrGetRequest) *protocol.AttrGetResponse {
	o, status, message := e.lookupObject(req.Object.Id)
	if status != protocol.StatusOk {
		return &protocol.AttrGetResponse{Status: status, Message: message}
	}
	a, ok := e.resolveAttr(req.Attr)
	if !ok {
		return &protocol.AttrGetResponse{
			Status:  protocol.StatusBadIdentifier,
			Message: fmt.Sprintf("unknown attribute %s", req.Attr),
		}
	}
	values, ok := o.attrs[a.name]
	if !ok {
		return &protocol.AttrGetResponse{
			Status:  protocol.StatusError,
			Message: fmt.Sprintf("%s has no attribute %s", o.class, a.name),
		}
	}
	return &protocol.AttrGetResponse{
		Info:   a.info(),
		Values: slices.Clone(values),
	}
}

func (e *Engine) handleAttrSet(req *protocol.AttrSetRequest) *protocol.AttrSetResponse {
	// the attribute list must resolve as a whole; an unknown attribute is a
	// request-level failure regardless of suppress_errors
	attrs := make([]attrDef, len(req.Assigns))
	infos := make([]protocol.AttrInfo, len(req.Assigns))
	for i, assign := range req.Assigns {
		a, ok := e.resolveAttr(assign.Attr)
		if !ok {
			return &protocol.AttrSetResponse{
				Status:  protocol.StatusBadIdentifier,
				Message: fmt.Sprintf("unknown attribute %s", assign.Attr),
			}
		}
		attrs[i] = a
		infos[i] = a.info()
	}

	check := func(ref protocol.ObjectRef) (*object, int32, string) {
		o, status, message := e.lookupObject(ref.Id)
		if status != protocol.StatusOk {
			return nil, status, message
		}
		c := e.classByNoun[o.noun]
		for _, a := range attrs {
			if !slices.Contains(c.attrs, a.name) {
				return nil, protocol.StatusError,
					fmt.Sprintf("%s has no attribute %s", o.class, a.name)
			}
		}
		return o, protocol.StatusOk, ""
	}

	apply := func(o *object) {
		for i, assign := range req.Assigns {
			a := attrs[i]
			o.attrs[a.name] = slices.Clone(assign.Values)
			e.broadcast(&protocol.EventNotice{
				Kind:   protocol.EventKindAttrChanged,
				Object: o.ref(),
				Attr:   a.info(),
				Values: slices.Clone(assign.Values),
			})
		}
	}

	if !req.SuppressErrors {
		// all-or-nothing: validate everything, then apply everything
		for _, ref := range req.Objects {
			if _, status, message := check(ref); status != protocol.StatusOk {
				return &protocol.AttrSetResponse{
					Status:  status,
					Message: fmt.Sprintf("object %d: %s", ref.Id, message),
					Results: []protocol.ObjectResult{
						{Object: ref, Status: status, Message: message},
					},
					Infos: infos,
				}
			}
		}
		results := make([]protocol.ObjectResult, len(req.Objects))
		for i, ref := range req.Objects {
			o, _, _ := check(ref)
			apply(o)
			results[i] = protocol.ObjectResult{Object: ref}
		}
		return &protocol.AttrSetResponse{Results: results, Infos: infos}
	}

	// isolated: apply per object, report per object
	results := make([]protocol.ObjectResult, len(req.Objects))
	for i, ref := range req.Objects {
		o, status, message := check(ref)
		results[i] = protocol.ObjectResult{
			Object:  ref,
			Status:  status,
			Message: message,
		}
		if status == protocol.StatusOk {
			apply(o)
		}
	}
	return &protocol.AttrSetResponse{Results: results, Infos: infos}
}

// events

func (e *Engine) handleEventRegister(listenerId uint64, req *protocol.EventRegisterRequest) *protocol.EventRegisterResponse {
	l, ok := e.listeners[listenerId]
	if !ok {
		return &protocol.EventRegisterResponse{
			Status:  protocol.StatusError,
			Message: "no event channel for this session",
		}
	}

	r := &registration{
		class:     req.Class,
		objectId:  req.ObjectId,
		attrNames: map[string]bool{},
		attrEnums: map[int32]bool{},
	}
	if req.ObjectId != 0 {
		o, status, message := e.lookupObject(req.ObjectId)
		if status != protocol.StatusOk {
			return &protocol.EventRegisterResponse{Status: status, Message: message}
		}
		r.class = o.class
	}
	for _, ref := range req.Attrs {
		a, ok := e.resolveAttr(ref)
		if !ok {
			return &protocol.EventRegisterResponse{
				Status:  protocol.StatusBadIdentifier,
				Message: fmt.Sprintf("unknown attribute %s", ref),
			}
		}
		r.attrNames[a.name] = true
		r.attrEnums[a.enum] = true
	}

	e.nextRoutingId += 1
	r.routingId = e.nextRoutingId
	l.registrations[r.routingId] = r
	glog.V(1).Infof("[sim]register %d class=%s object=%d\n", r.routingId, r.class, r.objectId)
	return &protocol.EventRegisterResponse{RoutingId: r.routingId}
}

func (e *Engine) handleEventDeregister(listenerId uint64, req *protocol.EventDeregisterRequest) *protocol.EventDeregisterResponse {
	l, ok := e.listeners[listenerId]
	if !ok {
		return &protocol.EventDeregisterResponse{
			Status:  protocol.StatusError,
			Message: "no event channel for this session",
		}
	}
	if _, ok := l.registrations[req.RoutingId]; !ok {
		return &protocol.EventDeregisterResponse{
			Status:  protocol.StatusBadIdentifier,
			Message: fmt.Sprintf("unknown routing id %d", req.RoutingId),
		}
	}
	delete(l.registrations, req.RoutingId)
	return &protocol.EventDeregisterResponse{}
}

// broadcast delivers a notice to every listener with a matching
// registration. Delivery is non-blocking: a listener that cannot keep up
// loses notices rather than stalling the engine.
//
// must be called with `stateLock`
func (e *Engine) broadcast(notice *protocol.EventNotice) {
	for _, l := range e.listeners {
		matched := false
		for _, r := range l.registrations {
			if r.matches(notice) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		select {
		case l.events <- notice:
		default:
			glog.Infof("[sim]drop listener %d\n", l.listenerId)
		}
	}
}
