package ensight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/ansys/pyensight-sub000/ensim"
	"github.com/ansys/pyensight-sub000/protocol"
)

// newSimSession opens a session over an in-process engine.
func newSimSession(ctx context.Context) (*Session, *ensim.Engine) {
	engine := ensim.NewEngineWithDefaults()
	transport := ensim.NewLocalTransport(engine)
	return NewSessionWithDefaults(ctx, transport), engine
}

func TestSessionCreateAndAttrs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, _ := newSimSession(ctx)
	defer session.Close()

	part, err := session.Create(ctx, "part")
	assert.Equal(t, nil, err)
	assert.Equal(t, ClassPart, part.Class())

	// the engine selects the new object; the mirror follows
	assert.Equal(t, []ObjectId{part.Id()}, session.Selection().Selected["part"])

	// class defaults materialize on the new object
	visible, err := part.GetAttr(ctx, AttrName("visible"))
	assert.Equal(t, nil, err)
	assert.Equal(t, true, visible)

	// a multi attribute always reads as a list
	color, err := part.GetAttr(ctx, AttrName("colorbyrgb"))
	assert.Equal(t, nil, err)
	assert.Equal(t, []any{0.5, 0.5, 0.5}, color)

	// set goes through the engine, then the cache answers reads
	err = part.SetAttr(ctx, AttrName("visible"), false)
	assert.Equal(t, nil, err)
	_, ok := part.cache.load("VISIBLE")
	assert.Equal(t, true, ok)
	visible, err = part.GetAttr(ctx, AttrName("visible"))
	assert.Equal(t, nil, err)
	assert.Equal(t, false, visible)

	// a set by enum still lands in the name-keyed cache
	info, err := part.AttrInfo(ctx, AttrName("opaqueness"))
	assert.Equal(t, nil, err)
	assert.Equal(t, "OPAQUENESS", info.Name)
	err = part.SetAttr(ctx, AttrEnum(info.Enum), 0.25)
	assert.Equal(t, nil, err)
	opaqueness, err := part.GetAttr(ctx, AttrName("opaqueness"))
	assert.Equal(t, nil, err)
	assert.Equal(t, 0.25, opaqueness)

	// DESCRIPTION feeds the name index
	err = part.SetAttr(ctx, AttrName("description"), "engine block")
	assert.Equal(t, nil, err)
	found, err := session.FindObject(ClassPart, "Engine Block")
	assert.Equal(t, nil, err)
	assert.Equal(t, true, found == part)

	// methods return converted results; failures are always errors
	results, err := part.CallMethod(ctx, "describe")
	assert.Equal(t, nil, err)
	assert.Equal(t, []any{ClassPart, float64(part.Id())}, results)
	_, err = part.CallMethod(ctx, "explode")
	assert.Equal(t, true, errors.Is(err, ErrRemoteCommand))

	// the engine clock object answers version
	globals := session.Objects().Resolve(ClassGlobals, 1)
	results, err = globals.CallMethod(ctx, "version")
	assert.Equal(t, nil, err)
	assert.Equal(t, []any{session.EngineVersion()}, results)
}

func TestSessionCommandStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, _ := newSimSession(ctx)
	defer session.Close()

	// with strict errors off, an engine rejection is a status, not an error
	status, err := session.Command(ctx, "part", "explode")
	assert.Equal(t, int(protocol.StatusError), status)
	assert.Equal(t, nil, err)
	assert.Equal(t, "part: explode", session.LastCommand())
	assert.Equal(t, true, strings.Contains(session.LastMessage(), "unknown command"))

	// with strict errors on, the same rejection is additionally an error
	session.SetStrictErrors(true)
	status, err = session.Command(ctx, "part", "explode")
	assert.Equal(t, int(protocol.StatusError), status)
	assert.Equal(t, true, errors.Is(err, ErrRemoteCommand))

	status, err = session.Command(ctx, "widget", "visible", false)
	assert.Equal(t, int(protocol.StatusBadIdentifier), status)
	assert.Equal(t, true, errors.Is(err, ErrBadIdentifier))
	session.SetStrictErrors(false)

	// a known attribute name as a command applies to the selection
	part, err := session.Create(ctx, "part")
	assert.Equal(t, nil, err)
	visible, err := part.GetAttr(ctx, AttrName("visible"))
	assert.Equal(t, true, visible)

	status, err = session.Command(ctx, "part", "visible", false)
	assert.Equal(t, 0, status)
	assert.Equal(t, nil, err)

	// the raw command bypassed the typed set path, so the cached value was
	// invalidated and the next read round-trips to the new value
	_, ok := part.cache.load("VISIBLE")
	assert.Equal(t, false, ok)
	visible, err = part.GetAttr(ctx, AttrName("visible"))
	assert.Equal(t, nil, err)
	assert.Equal(t, false, visible)
}

func TestSessionSelectionFlow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, engine := newSimSession(ctx)
	defer session.Close()

	id1, _ := engine.AddObject("part", "inlet")
	id2, _ := engine.AddObject("part", "outlet")
	id3, _ := engine.AddObject("part", "body")

	status, err := session.SelectBegin(ctx, "part", ObjectId(id1), ObjectId(id2))
	assert.Equal(t, 0, status)
	assert.Equal(t, nil, err)
	assert.Equal(t, []ObjectId{ObjectId(id1), ObjectId(id2)}, session.Selection().Selected["part"])
	assert.Equal(t, []Group{{Class: "part", Kind: GroupSelect}}, session.Selection().Open)

	// a nested same-class group is rejected locally, before any wire traffic
	last := session.LastCommand()
	status, err = session.SelectBegin(ctx, "part", ObjectId(id3))
	assert.Equal(t, int(protocol.StatusSequence), status)
	assert.Equal(t, true, errors.Is(err, ErrProtocolSequence))
	assert.Equal(t, last, session.LastCommand())

	// closing a group that is not open is rejected the same way
	status, err = session.SelectEnd(ctx, "annot")
	assert.Equal(t, int(protocol.StatusSequence), status)
	assert.Equal(t, true, errors.Is(err, ErrProtocolSequence))

	// add and remove preserve insertion order and deduplicate
	_, err = session.SelectAdd(ctx, "part", ObjectId(id3), ObjectId(id1))
	assert.Equal(t, nil, err)
	assert.Equal(t, []ObjectId{ObjectId(id1), ObjectId(id2), ObjectId(id3)},
		session.Selection().Selected["part"])
	_, err = session.SelectRemove(ctx, "part", ObjectId(id1))
	assert.Equal(t, nil, err)
	assert.Equal(t, []ObjectId{ObjectId(id2), ObjectId(id3)}, session.Selection().Selected["part"])

	// the selection survives closing the group
	_, err = session.SelectEnd(ctx, "part")
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(session.Selection().Open))
	assert.Equal(t, []ObjectId{ObjectId(id2), ObjectId(id3)}, session.Selection().Selected["part"])

	// adjusting outside an open select group is a sequence error
	_, err = session.SelectAdd(ctx, "part", ObjectId(id1))
	assert.Equal(t, true, errors.Is(err, ErrProtocolSequence))

	// the engine validates membership; a rejected begin changes nothing
	status, err = session.SelectBegin(ctx, "part", ObjectId(424242))
	assert.Equal(t, int(protocol.StatusBadIdentifier), status)
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(session.Selection().Open))
	assert.Equal(t, []ObjectId{ObjectId(id2), ObjectId(id3)}, session.Selection().Selected["part"])

	// groups of different classes nest LIFO
	_, err = session.BeginBatch(ctx, "part")
	assert.Equal(t, nil, err)
	_, err = session.ModifyBegin(ctx, "annot")
	assert.Equal(t, nil, err)
	assert.Equal(t, []Group{
		{Class: "part", Kind: GroupBatch},
		{Class: "annot", Kind: GroupModify},
	}, session.Selection().Open)
	_, err = session.EndBatch(ctx, "part")
	assert.Equal(t, true, errors.Is(err, ErrProtocolSequence))
	_, err = session.ModifyEnd(ctx, "annot")
	assert.Equal(t, nil, err)
	_, err = session.EndBatch(ctx, "part")
	assert.Equal(t, nil, err)

	// raw journal verbs route through the same state machine
	status, err = session.Command(ctx, "part", "select_begin", id1, id3)
	assert.Equal(t, 0, status)
	assert.Equal(t, nil, err)
	assert.Equal(t, []ObjectId{ObjectId(id1), ObjectId(id3)}, session.Selection().Selected["part"])
	_, err = session.Command(ctx, "part", "end")
	assert.Equal(t, true, errors.Is(err, ErrProtocolSequence))
	_, err = session.Command(ctx, "part", "select_end")
	assert.Equal(t, nil, err)
}

func TestSessionDefaultsAndCreate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, _ := newSimSession(ctx)
	defer session.Close()

	status, err := session.SelectDefault(ctx, "part")
	assert.Equal(t, 0, status)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, session.Selection().DefaultMode["part"])

	// attribute commands now edit the class defaults, not any object
	status, err = session.Command(ctx, "part", "visible", false)
	assert.Equal(t, 0, status)
	assert.Equal(t, nil, err)

	// create materializes from the edited defaults
	part, err := session.Create(ctx, "part")
	assert.Equal(t, nil, err)
	visible, err := part.GetAttr(ctx, AttrName("visible"))
	assert.Equal(t, nil, err)
	assert.Equal(t, false, visible)

	// create leaves default mode and selects the new object
	assert.Equal(t, false, session.Selection().DefaultMode["part"])
	assert.Equal(t, []ObjectId{part.Id()}, session.Selection().Selected["part"])

	// a later create of the same class inherits the defaults too
	other, err := session.Create(ctx, "part")
	assert.Equal(t, nil, err)
	visible, err = other.GetAttr(ctx, AttrName("visible"))
	assert.Equal(t, nil, err)
	assert.Equal(t, false, visible)
}

func TestSessionDeleteSelected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, engine := newSimSession(ctx)
	defer session.Close()

	id1, _ := engine.AddObject("part", "inlet")
	id2, _ := engine.AddObject("part", "outlet")

	_, err := session.SelectBegin(ctx, "part", ObjectId(id1))
	assert.Equal(t, nil, err)
	status, err := session.DeleteSelected(ctx, "part")
	assert.Equal(t, 0, status)
	assert.Equal(t, nil, err)
	_, err = session.SelectEnd(ctx, "part")
	assert.Equal(t, nil, err)

	// the local selection mirror empties
	assert.Equal(t, 0, len(session.Selection().Selected["part"]))

	// without a subscription no deletion notice flows; the engine reports
	// the staleness on the next access and the registry converges
	p1 := session.Objects().Resolve(ClassPart, ObjectId(id1))
	_, err = p1.GetAttr(ctx, AttrName("visible"))
	assert.Equal(t, true, errors.Is(err, ErrStaleObject))
	assert.Equal(t, true, p1.Stale())
	_, ok := session.Objects().Lookup(ObjectId(id1))
	assert.Equal(t, false, ok)

	// the untouched object is unaffected
	p2 := session.Objects().Resolve(ClassPart, ObjectId(id2))
	visible, err := p2.GetAttr(ctx, AttrName("visible"))
	assert.Equal(t, nil, err)
	assert.Equal(t, true, visible)
}

func TestSessionBulkSet(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, _ := newSimSession(ctx)
	defer session.Close()

	p1, err := session.Create(ctx, "part")
	assert.Equal(t, nil, err)
	p2, err := session.Create(ctx, "part")
	assert.Equal(t, nil, err)
	p3, err := session.Create(ctx, "part")
	assert.Equal(t, nil, err)
	p4, err := session.Create(ctx, "part")
	assert.Equal(t, nil, err)

	// delete p2 and p4 engine-side. no subscription, so the local proxies
	// stay live until something touches them.
	_, err = session.SelectBegin(ctx, "part", p2.Id(), p4.Id())
	assert.Equal(t, nil, err)
	_, err = session.DeleteSelected(ctx, "part")
	assert.Equal(t, nil, err)
	_, err = session.SelectEnd(ctx, "part")
	assert.Equal(t, nil, err)
	assert.Equal(t, false, p2.Stale())

	// all-or-nothing: one stale member rejects the whole request and
	// nothing is applied or cached
	failures, err := session.SetAttrsBulk(ctx, []*Proxy{p1, p2, p3},
		[]AttrAssignment{{Key: AttrName("visible"), Value: false}}, false)
	assert.Equal(t, true, errors.Is(err, ErrStaleObject))
	assert.Equal(t, 1, len(failures))
	assert.Equal(t, true, errors.Is(failures[p2.Id()], ErrStaleObject))
	_, ok := p1.cache.load("VISIBLE")
	assert.Equal(t, false, ok)
	visible, err := p1.GetAttr(ctx, AttrName("visible"))
	assert.Equal(t, nil, err)
	assert.Equal(t, true, visible)

	// the stale report converged the registry
	assert.Equal(t, true, p2.Stale())
	err = p2.SetAttr(ctx, AttrName("visible"), true)
	assert.Equal(t, true, errors.Is(err, ErrStaleObject))

	// isolated: valid members apply, failures are reported per object
	failures, err = session.SetAttrsBulk(ctx, []*Proxy{p1, p3, p4},
		[]AttrAssignment{
			{Key: AttrName("visible"), Value: false},
			{Key: AttrName("opaqueness"), Value: 0.5},
		}, true)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(failures))
	assert.Equal(t, true, errors.Is(failures[p4.Id()], ErrStaleObject))
	assert.Equal(t, true, p4.Stale())

	visible, err = p1.GetAttr(ctx, AttrName("visible"))
	assert.Equal(t, nil, err)
	assert.Equal(t, false, visible)
	opaqueness, err := p3.GetAttr(ctx, AttrName("opaqueness"))
	assert.Equal(t, nil, err)
	assert.Equal(t, 0.5, opaqueness)
}

func TestSessionNextObjectId(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, _ := newSimSession(ctx)
	defer session.Close()

	next, err := session.NextObjectId(ctx)
	assert.Equal(t, nil, err)

	// the probe does not allocate
	again, err := session.NextObjectId(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, next, again)

	part, err := session.Create(ctx, "part")
	assert.Equal(t, nil, err)
	assert.Equal(t, next, part.Id())

	after, err := session.NextObjectId(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, next+1, after)
}

func TestSessionJournalMirror(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, engine := newSimSession(ctx)
	defer session.Close()

	id1, _ := engine.AddObject("part", "inlet")

	journal := &strings.Builder{}
	session.RecordJournal(journal)

	_, err := session.SelectBegin(ctx, "part", ObjectId(id1))
	assert.Equal(t, nil, err)
	_, err = session.Command(ctx, "part", "visible", false)
	assert.Equal(t, nil, err)
	// a rejected command is not part of the journal
	_, err = session.Command(ctx, "part", "explode")
	assert.Equal(t, nil, err)
	part := session.Objects().Resolve(ClassPart, ObjectId(id1))
	err = part.SetAttr(ctx, AttrName("opaqueness"), 0.25)
	assert.Equal(t, nil, err)
	_, err = session.SelectEnd(ctx, "part")
	assert.Equal(t, nil, err)

	// stop recording; later commands are not mirrored
	session.RecordJournal(nil)
	_, err = session.SelectDefault(ctx, "part")
	assert.Equal(t, nil, err)

	expect := fmt.Sprintf("part: select_begin %d\n", id1) +
		"part: visible OFF\n" +
		"part: opaqueness 0.25\n" +
		"part: select_end\n"
	assert.Equal(t, expect, journal.String())
}

func TestSessionClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, _ := newSimSession(ctx)

	part, err := session.Create(ctx, "part")
	assert.Equal(t, nil, err)

	session.Close()

	// the session converges to failed: proxies stale, calls failing
	assert.Equal(t, true, part.Stale())
	_, err = session.Command(ctx, "part", "create")
	assert.Equal(t, true, errors.Is(err, ErrTransportFailure))
	_, err = session.NextObjectId(ctx)
	assert.Equal(t, true, errors.Is(err, ErrTransportFailure))

	// idempotent
	session.Close()
}

func TestSessionFailureCallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, _ := newSimSession(ctx)

	part, err := session.Create(ctx, "part")
	assert.Equal(t, nil, err)

	failures := []error{}
	removeFirst := session.AddFailureCallback(func(failErr error) {
		failures = append(failures, failErr)
	})
	removeFirst()

	staleAtCallback := false
	session.AddFailureCallback(func(failErr error) {
		staleAtCallback = part.Stale()
		failures = append(failures, failErr)
	})

	session.Close()

	// only the still-registered callback fires, after state converges
	assert.Equal(t, 1, len(failures))
	assert.Equal(t, true, errors.Is(failures[0], ErrTransportFailure))
	assert.Equal(t, true, staleAtCallback)

	// the failure is latched: closing again does not re-dispatch
	session.Close()
	assert.Equal(t, 1, len(failures))
}
