package ensim

import (
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/ansys/pyensight-sub000/protocol"
)

// dispatch round-trips one message through the wire codec and the engine.
func dispatch(t *testing.T, e *Engine, listenerId uint64, request protocol.Message) protocol.Message {
	frame, err := protocol.ToFrame(request)
	assert.Equal(t, nil, err)
	responseFrame, err := e.Dispatch(listenerId, frame)
	assert.Equal(t, nil, err)
	response, err := protocol.FromFrame(responseFrame)
	assert.Equal(t, nil, err)
	return response
}

func command(t *testing.T, e *Engine, class string, verb string, args ...protocol.Value) *protocol.CommandResponse {
	response := dispatch(t, e, 0, &protocol.CommandRequest{
		Class:   class,
		Command: verb,
		Args:    args,
	})
	return response.(*protocol.CommandResponse)
}

// broadcast happens inside Dispatch under the state lock, so by the time a
// dispatch returns, its notices are already buffered
func takeNotice(t *testing.T, events <-chan *protocol.EventNotice) *protocol.EventNotice {
	select {
	case notice := <-events:
		return notice
	default:
		t.Fatal("expected a notice")
		return nil
	}
}

func assertNoNotice(t *testing.T, events <-chan *protocol.EventNotice) {
	select {
	case notice := <-events:
		t.Fatalf("unexpected notice %d %s", notice.Kind, notice.Object)
	default:
	}
}

func TestEngineHello(t *testing.T) {
	e := NewEngineWithDefaults()

	response := dispatch(t, e, 0, &protocol.SessionHello{
		Client:          "test",
		InstanceId:      "i1",
		ProtocolVersion: protocol.ProtocolVersion,
	})
	welcome := response.(*protocol.SessionWelcome)
	assert.Equal(t, int32(protocol.StatusOk), welcome.Status)
	assert.Equal(t, int32(protocol.ProtocolVersion), welcome.ProtocolVersion)
	assert.Equal(t, "2024 R1 (ensim)", welcome.EngineVersion)
	// the singleton globals took the first id
	assert.Equal(t, uint64(2), welcome.NextObjectId)

	response = dispatch(t, e, 0, &protocol.SessionHello{
		Client:          "test",
		InstanceId:      "i2",
		ProtocolVersion: 99,
	})
	welcome = response.(*protocol.SessionWelcome)
	assert.Equal(t, int32(protocol.StatusError), welcome.Status)
	assert.Equal(t, true, strings.Contains(welcome.Message, "not supported"))
}

func TestEngineSeqEcho(t *testing.T) {
	e := NewEngineWithDefaults()

	response := dispatch(t, e, 0, &protocol.CommandRequest{
		Seq:     77,
		Class:   "part",
		Command: "create",
	})
	created := response.(*protocol.CommandResponse)
	assert.Equal(t, uint64(77), created.Seq)
	assert.Equal(t, int32(protocol.StatusOk), created.Status)
	assert.Equal(t, uint64(2), created.CreatedId)
}

func TestEngineGroupSequence(t *testing.T) {
	e := NewEngineWithDefaults()

	response := command(t, e, "part", "select_end")
	assert.Equal(t, int32(protocol.StatusSequence), response.Status)

	response = command(t, e, "part", "begin")
	assert.Equal(t, int32(protocol.StatusOk), response.Status)

	// a second group for the same noun cannot open
	response = command(t, e, "part", "modify_begin")
	assert.Equal(t, int32(protocol.StatusSequence), response.Status)

	// a different noun nests
	response = command(t, e, "annot", "modify_begin")
	assert.Equal(t, int32(protocol.StatusOk), response.Status)

	// only the innermost group closes
	response = command(t, e, "part", "end")
	assert.Equal(t, int32(protocol.StatusSequence), response.Status)
	response = command(t, e, "annot", "modify_end")
	assert.Equal(t, int32(protocol.StatusOk), response.Status)
	response = command(t, e, "part", "end")
	assert.Equal(t, int32(protocol.StatusOk), response.Status)
}

func TestEngineSelectionValidation(t *testing.T) {
	e := NewEngineWithDefaults()

	id1, err := e.AddObject("part", "inlet")
	assert.Equal(t, nil, err)
	id2, err := e.AddObject("part", "outlet")
	assert.Equal(t, nil, err)
	annotId, err := e.AddObject("annot", "label")
	assert.Equal(t, nil, err)

	// ids must be numbers
	response := command(t, e, "part", "select_begin", protocol.String("inlet"))
	assert.Equal(t, int32(protocol.StatusBadIdentifier), response.Status)

	// unknown id
	response = command(t, e, "part", "select_begin", protocol.Number(424242))
	assert.Equal(t, int32(protocol.StatusBadIdentifier), response.Status)

	// class mismatch
	response = command(t, e, "part", "select_begin", protocol.Number(float64(annotId)))
	assert.Equal(t, int32(protocol.StatusBadIdentifier), response.Status)

	// a rejected begin leaves no group open
	assert.Equal(t, 0, len(e.open))

	// duplicates collapse, insertion order holds
	response = command(t, e, "part", "select_begin",
		protocol.Number(float64(id2)), protocol.Number(float64(id1)), protocol.Number(float64(id2)))
	assert.Equal(t, int32(protocol.StatusOk), response.Status)
	assert.Equal(t, []uint64{id2, id1}, e.selections["part"].ids)

	response = command(t, e, "part", "delete")
	assert.Equal(t, int32(protocol.StatusOk), response.Status)
	response = command(t, e, "part", "select_end")
	assert.Equal(t, int32(protocol.StatusOk), response.Status)

	// a deleted id is stale, not unknown
	response = command(t, e, "part", "select_begin", protocol.Number(float64(id1)))
	assert.Equal(t, int32(protocol.StatusStaleObject), response.Status)
	assert.Equal(t, true, strings.Contains(response.Message, "no longer exists"))
}

func TestEngineDefaultsAndCreate(t *testing.T) {
	e := NewEngineWithDefaults()

	response := command(t, e, "part", "select_default")
	assert.Equal(t, int32(protocol.StatusOk), response.Status)

	// in default mode an attribute command edits the class defaults
	response = command(t, e, "part", "visible", protocol.Bool(false))
	assert.Equal(t, int32(protocol.StatusOk), response.Status)
	assert.Equal(t, []protocol.Value{protocol.Bool(false)}, e.defaults["part"]["VISIBLE"])

	// an unknown verb that is not an attribute fails
	response = command(t, e, "part", "explode")
	assert.Equal(t, int32(protocol.StatusError), response.Status)
	assert.Equal(t, true, strings.Contains(response.Message, "unknown command"))

	// an attribute of another class does not apply
	response = command(t, e, "part", "text", protocol.String("hi"))
	assert.Equal(t, int32(protocol.StatusError), response.Status)

	// create materializes from the edited defaults and selects the result
	response = command(t, e, "part", "create")
	assert.Equal(t, int32(protocol.StatusOk), response.Status)
	createdId := response.CreatedId
	assert.Equal(t, []uint64{createdId}, e.selections["part"].ids)
	assert.Equal(t, false, e.selections["part"].defaultMode)

	get := dispatch(t, e, 0, &protocol.AttrGetRequest{
		Object: protocol.ObjectRef{Class: "ENS_PART", Id: createdId},
		Attr:   protocol.AttrRef{Name: "visible"},
	}).(*protocol.AttrGetResponse)
	assert.Equal(t, int32(protocol.StatusOk), get.Status)
	assert.Equal(t, "VISIBLE", get.Info.Name)
	assert.Equal(t, []protocol.Value{protocol.Bool(false)}, get.Values)
}

func TestEngineAttrSet(t *testing.T) {
	e := NewEngineWithDefaults()

	id1, _ := e.AddObject("part", "inlet")
	id2, _ := e.AddObject("part", "outlet")

	command(t, e, "part", "select_begin", protocol.Number(float64(id2)))
	command(t, e, "part", "delete")
	command(t, e, "part", "select_end")

	ref1 := protocol.ObjectRef{Class: "ENS_PART", Id: id1}
	ref2 := protocol.ObjectRef{Class: "ENS_PART", Id: id2}
	assigns := []protocol.AttrAssign{
		{Attr: protocol.AttrRef{Name: "VISIBLE"}, Values: []protocol.Value{protocol.Bool(false)}},
	}

	// an unknown attribute rejects the whole request in either mode
	response := dispatch(t, e, 0, &protocol.AttrSetRequest{
		Objects: []protocol.ObjectRef{ref1},
		Assigns: []protocol.AttrAssign{{Attr: protocol.AttrRef{Name: "BOGUS"}}},
	}).(*protocol.AttrSetResponse)
	assert.Equal(t, int32(protocol.StatusBadIdentifier), response.Status)

	// all-or-nothing: one stale target fails the request and nothing applies
	response = dispatch(t, e, 0, &protocol.AttrSetRequest{
		Objects: []protocol.ObjectRef{ref1, ref2},
		Assigns: assigns,
	}).(*protocol.AttrSetResponse)
	assert.Equal(t, int32(protocol.StatusStaleObject), response.Status)
	assert.Equal(t, 1, len(response.Results))
	assert.Equal(t, id2, response.Results[0].Object.Id)
	assert.Equal(t, 1, len(response.Infos))
	assert.Equal(t, "VISIBLE", response.Infos[0].Name)
	assert.Equal(t, []protocol.Value{protocol.Bool(true)}, e.objects[id1].attrs["VISIBLE"])

	// isolated: the live target applies, the stale one reports
	response = dispatch(t, e, 0, &protocol.AttrSetRequest{
		Objects:        []protocol.ObjectRef{ref1, ref2},
		Assigns:        assigns,
		SuppressErrors: true,
	}).(*protocol.AttrSetResponse)
	assert.Equal(t, int32(protocol.StatusOk), response.Status)
	assert.Equal(t, 2, len(response.Results))
	assert.Equal(t, int32(protocol.StatusOk), response.Results[0].Status)
	assert.Equal(t, int32(protocol.StatusStaleObject), response.Results[1].Status)
	assert.Equal(t, []protocol.Value{protocol.Bool(false)}, e.objects[id1].attrs["VISIBLE"])
}

func TestEngineEvents(t *testing.T) {
	e := NewEngineWithDefaults()
	listenerId, events := e.Subscribe()

	// registering without an event channel is refused
	noChannel := dispatch(t, e, 0, &protocol.EventRegisterRequest{
		Class: "ENS_PART",
	}).(*protocol.EventRegisterResponse)
	assert.Equal(t, int32(protocol.StatusError), noChannel.Status)

	register := dispatch(t, e, listenerId, &protocol.EventRegisterRequest{
		Class: "ENS_PART",
		Attrs: []protocol.AttrRef{{Name: "VISIBLE"}},
	}).(*protocol.EventRegisterResponse)
	assert.Equal(t, int32(protocol.StatusOk), register.Status)
	assert.NotEqual(t, uint64(0), register.RoutingId)

	// lifecycle notices ignore the attribute filter
	id, err := e.AddObject("part", "wing")
	assert.Equal(t, nil, err)
	notice := takeNotice(t, events)
	assert.Equal(t, protocol.EventKindObjectCreated, notice.Kind)
	assert.Equal(t, id, notice.Object.Id)

	command(t, e, "part", "select_begin", protocol.Number(float64(id)))
	assertNoNotice(t, events)

	// a matching attribute change delivers with the canonical identity
	command(t, e, "part", "visible", protocol.Bool(false))
	notice = takeNotice(t, events)
	assert.Equal(t, protocol.EventKindAttrChanged, notice.Kind)
	assert.Equal(t, "VISIBLE", notice.Attr.Name)
	assert.Equal(t, []protocol.Value{protocol.Bool(false)}, notice.Values)

	// a non-matching attribute does not
	command(t, e, "part", "opaqueness", protocol.Number(0.25))
	assertNoNotice(t, events)

	// deregistered: nothing more flows
	deregister := dispatch(t, e, listenerId, &protocol.EventDeregisterRequest{
		RoutingId: register.RoutingId,
	}).(*protocol.EventDeregisterResponse)
	assert.Equal(t, int32(protocol.StatusOk), deregister.Status)

	command(t, e, "part", "visible", protocol.Bool(true))
	assertNoNotice(t, events)

	deregister = dispatch(t, e, listenerId, &protocol.EventDeregisterRequest{
		RoutingId: register.RoutingId,
	}).(*protocol.EventDeregisterResponse)
	assert.Equal(t, int32(protocol.StatusBadIdentifier), deregister.Status)

	// unsubscribe closes the channel
	e.Unsubscribe(listenerId)
	_, ok := <-events
	assert.Equal(t, false, ok)
}

func TestEngineMethods(t *testing.T) {
	e := NewEngineWithDefaults()

	id, err := e.AddObject("part", "wing")
	assert.Equal(t, nil, err)

	response := dispatch(t, e, 0, &protocol.CommandRequest{
		Class:    "ENS_PART",
		Command:  "describe",
		ObjectId: id,
	}).(*protocol.CommandResponse)
	assert.Equal(t, int32(protocol.StatusOk), response.Status)
	assert.Equal(t, []protocol.Value{
		protocol.String("ENS_PART"),
		protocol.Number(float64(id)),
	}, response.Results)

	response = dispatch(t, e, 0, &protocol.CommandRequest{
		Class:    "ENS_PART",
		Command:  "getattrs",
		ObjectId: id,
	}).(*protocol.CommandResponse)
	assert.Equal(t, []protocol.Value{
		protocol.String("DESCRIPTION"),
		protocol.String("VISIBLE"),
		protocol.String("COLORBYRGB"),
		protocol.String("OPAQUENESS"),
	}, response.Results)

	// version answers only on the globals singleton
	response = dispatch(t, e, 0, &protocol.CommandRequest{
		Class:    "ENS_PART",
		Command:  "version",
		ObjectId: id,
	}).(*protocol.CommandResponse)
	assert.Equal(t, int32(protocol.StatusError), response.Status)
	assert.Equal(t, true, strings.Contains(response.Message, "unknown method"))

	response = dispatch(t, e, 0, &protocol.CommandRequest{
		Class:    "ENS_GLOBALS",
		Command:  "version",
		ObjectId: 1,
	}).(*protocol.CommandResponse)
	assert.Equal(t, int32(protocol.StatusOk), response.Status)
	assert.Equal(t, []protocol.Value{protocol.String("2024 R1 (ensim)")}, response.Results)

	response = dispatch(t, e, 0, &protocol.CommandRequest{
		Class:    "ENS_PART",
		Command:  "describe",
		ObjectId: 424242,
	}).(*protocol.CommandResponse)
	assert.Equal(t, int32(protocol.StatusBadIdentifier), response.Status)
}
