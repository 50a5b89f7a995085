package protocol

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// The engine speaks length-delimited protobuf envelopes over two websocket
// channels: a command channel (strict request/response, one in flight) and an
// event channel (engine push only). The messages are small and fixed, so they
// are encoded by hand with `protowire` instead of a codegen step. Field
// numbers below are part of the protocol and must not be reordered.

// command status codes
const (
	StatusOk            = 0
	StatusError         = 1
	StatusStaleObject   = 2
	StatusBadIdentifier = 3
	StatusSequence      = 4
)

type ValueKind int32

const (
	ValueKindNone   ValueKind = 0
	ValueKindNumber ValueKind = 1
	ValueKindString ValueKind = 2
	ValueKindBool   ValueKind = 3
	ValueKindList   ValueKind = 4
	ValueKindRef    ValueKind = 5
)

// Value is the wire value sum type. Exactly the field for `Kind` is
// meaningful; the rest are zero.
//
//	Value {
//	    kind   int32     = 1
//	    num    double    = 2
//	    str    string    = 3
//	    flag   bool      = 4
//	    items  Value[]   = 5
//	    ref    ObjectRef = 6
//	}
type Value struct {
	Kind  ValueKind
	Num   float64
	Str   string
	Flag  bool
	Items []Value
	Ref   ObjectRef
}

func None() Value {
	return Value{Kind: ValueKindNone}
}

func Number(num float64) Value {
	return Value{Kind: ValueKindNumber, Num: num}
}

func String(str string) Value {
	return Value{Kind: ValueKindString, Str: str}
}

func Bool(flag bool) Value {
	return Value{Kind: ValueKindBool, Flag: flag}
}

func List(items ...Value) Value {
	return Value{Kind: ValueKindList, Items: items}
}

func Ref(class string, id uint64) Value {
	return Value{Kind: ValueKindRef, Ref: ObjectRef{Class: class, Id: id}}
}

func (self Value) IsNone() bool {
	return self.Kind == ValueKindNone
}

func (self Value) String() string {
	switch self.Kind {
	case ValueKindNone:
		return "none"
	case ValueKindNumber:
		return fmt.Sprintf("%g", self.Num)
	case ValueKindString:
		return fmt.Sprintf("%q", self.Str)
	case ValueKindBool:
		if self.Flag {
			return "ON"
		}
		return "OFF"
	case ValueKindList:
		s := "("
		for i, item := range self.Items {
			if 0 < i {
				s += " "
			}
			s += item.String()
		}
		return s + ")"
	case ValueKindRef:
		return self.Ref.String()
	default:
		return fmt.Sprintf("value(%d)", self.Kind)
	}
}

// ObjectRef is the tag+integer-id reference token for an engine object.
//
//	ObjectRef { class string = 1, id uint64 = 2 }
type ObjectRef struct {
	Class string
	Id    uint64
}

func (self ObjectRef) String() string {
	return fmt.Sprintf("@%s:%d", self.Class, self.Id)
}

// AttrRef is an attribute key as sent: either a symbolic name or an integer
// enumeration. `ByEnum` records which form the caller used.
//
//	AttrRef { name string = 1, enum int32 = 2, by_enum bool = 3 }
type AttrRef struct {
	Name   string
	Enum   int32
	ByEnum bool
}

func (self AttrRef) String() string {
	if self.ByEnum {
		return fmt.Sprintf("attr(%d)", self.Enum)
	}
	return self.Name
}

// AttrInfo is the canonical attribute identity the engine reports with every
// attribute response and event notice: canonical name, enum, and whether the
// attribute is intrinsically multi-valued (vector/tensor).
//
//	AttrInfo { name string = 1, enum int32 = 2, multi bool = 3 }
type AttrInfo struct {
	Name  string
	Enum  int32
	Multi bool
}

// CommandRequest is a journal command when `object_id` is zero, and a method
// call on that object otherwise. For a method call `class` is the object
// class.
//
//	CommandRequest {
//	    seq       uint64  = 1
//	    class     string  = 2
//	    command   string  = 3
//	    args      Value[] = 4
//	    object_id uint64  = 5
//	}
type CommandRequest struct {
	Seq      uint64
	Class    string
	Command  string
	Args     []Value
	ObjectId uint64
}

//	CommandResponse {
//	    seq        uint64  = 1
//	    status     int32   = 2
//	    message    string  = 3
//	    results    Value[] = 4
//	    created_id uint64  = 5
//	}
type CommandResponse struct {
	Seq       uint64
	Status    int32
	Message   string
	Results   []Value
	CreatedId uint64
}

//	AttrGetRequest {
//	    seq    uint64    = 1
//	    object ObjectRef = 2
//	    attr   AttrRef   = 3
//	}
type AttrGetRequest struct {
	Seq    uint64
	Object ObjectRef
	Attr   AttrRef
}

//	AttrGetResponse {
//	    seq     uint64   = 1
//	    status  int32    = 2
//	    message string   = 3
//	    info    AttrInfo = 4
//	    values  Value[]  = 5
//	}
type AttrGetResponse struct {
	Seq     uint64
	Status  int32
	Message string
	Info    AttrInfo
	Values  []Value
}

//	AttrAssign { attr AttrRef = 1, values Value[] = 2 }
type AttrAssign struct {
	Attr   AttrRef
	Values []Value
}

//	AttrSetRequest {
//	    seq             uint64       = 1
//	    objects         ObjectRef[]  = 2
//	    assigns         AttrAssign[] = 3
//	    suppress_errors bool         = 4
//	}
type AttrSetRequest struct {
	Seq            uint64
	Objects        []ObjectRef
	Assigns        []AttrAssign
	SuppressErrors bool
}

//	ObjectResult { object ObjectRef = 1, status int32 = 2, message string = 3 }
type ObjectResult struct {
	Object  ObjectRef
	Status  int32
	Message string
}

// AttrSetResponse reports per-object outcomes. `infos` gives the canonical
// identity of each assigned attribute, aligned with the request's assigns, so
// a set by enum still teaches the client the canonical name.
//
//	AttrSetResponse {
//	    seq     uint64         = 1
//	    status  int32          = 2
//	    message string         = 3
//	    results ObjectResult[] = 4
//	    infos   AttrInfo[]     = 5
//	}
type AttrSetResponse struct {
	Seq     uint64
	Status  int32
	Message string
	Results []ObjectResult
	Infos   []AttrInfo
}

// EventRegisterRequest subscribes the session to attribute-change notices.
// Exactly one of `class` or `object_id` is set. An empty attrs list means any
// attribute.
//
//	EventRegisterRequest {
//	    seq       uint64    = 1
//	    class     string    = 2
//	    object_id uint64    = 3
//	    attrs     AttrRef[] = 4
//	}
type EventRegisterRequest struct {
	Seq      uint64
	Class    string
	ObjectId uint64
	Attrs    []AttrRef
}

//	EventRegisterResponse {
//	    seq        uint64 = 1
//	    status     int32  = 2
//	    message    string = 3
//	    routing_id uint64 = 4
//	}
type EventRegisterResponse struct {
	Seq       uint64
	Status    int32
	Message   string
	RoutingId uint64
}

//	EventDeregisterRequest { seq uint64 = 1, routing_id uint64 = 2 }
type EventDeregisterRequest struct {
	Seq       uint64
	RoutingId uint64
}

//	EventDeregisterResponse { seq uint64 = 1, status int32 = 2, message string = 3 }
type EventDeregisterResponse struct {
	Seq     uint64
	Status  int32
	Message string
}

type EventKind int32

const (
	EventKindAttrChanged   EventKind = 0
	EventKindObjectCreated EventKind = 1
	EventKindObjectDeleted EventKind = 2
)

// EventNotice is pushed by the engine on the event channel.
//
//	EventNotice {
//	    kind   int32     = 1
//	    object ObjectRef = 2
//	    attr   AttrInfo  = 3
//	    values Value[]   = 4
//	}
type EventNotice struct {
	Kind   EventKind
	Object ObjectRef
	Attr   AttrInfo
	Values []Value
}

// SessionHello opens both channels. The event channel is paired to the
// command channel by `instance_id`.
//
//	SessionHello {
//	    client           string = 1
//	    instance_id      string = 2
//	    protocol_version int32  = 3
//	}
type SessionHello struct {
	Client          string
	InstanceId      string
	ProtocolVersion int32
}

//	SessionWelcome {
//	    protocol_version int32  = 1
//	    engine_version   string = 2
//	    next_object_id   uint64 = 3
//	    status           int32  = 4
//	    message          string = 5
//	}
type SessionWelcome struct {
	ProtocolVersion int32
	EngineVersion   string
	NextObjectId    uint64
	Status          int32
	Message         string
}

//	NextIdRequest { seq uint64 = 1 }
type NextIdRequest struct {
	Seq uint64
}

//	NextIdResponse { seq uint64 = 1, next_object_id uint64 = 2 }
type NextIdResponse struct {
	Seq          uint64
	NextObjectId uint64
}

// ProtocolVersion is bumped on any wire-incompatible change.
const ProtocolVersion = 1

// encoding

func appendValue(b []byte, value Value) []byte {
	if value.Kind != ValueKindNone {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(value.Kind))
	}
	switch value.Kind {
	case ValueKindNumber:
		b = protowire.AppendTag(b, 2, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(value.Num))
	case ValueKindString:
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, value.Str)
	case ValueKindBool:
		if value.Flag {
			b = protowire.AppendTag(b, 4, protowire.VarintType)
			b = protowire.AppendVarint(b, 1)
		}
	case ValueKindList:
		for _, item := range value.Items {
			b = protowire.AppendTag(b, 5, protowire.BytesType)
			b = protowire.AppendBytes(b, appendValue(nil, item))
		}
	case ValueKindRef:
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendBytes(b, appendObjectRef(nil, value.Ref))
	}
	return b
}

func appendObjectRef(b []byte, ref ObjectRef) []byte {
	if ref.Class != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, ref.Class)
	}
	if ref.Id != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, ref.Id)
	}
	return b
}

func appendAttrRef(b []byte, attr AttrRef) []byte {
	if attr.Name != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, attr.Name)
	}
	if attr.Enum != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(uint32(attr.Enum)))
	}
	if attr.ByEnum {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	return b
}

func appendAttrInfo(b []byte, info AttrInfo) []byte {
	if info.Name != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, info.Name)
	}
	if info.Enum != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(uint32(info.Enum)))
	}
	if info.Multi {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	return b
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v != 0 {
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, v)
	}
	return b
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	if v != 0 {
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(uint32(v)))
	}
	return b
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v != "" {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, v)
	}
	return b
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if v {
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	return b
}

func appendMessage(b []byte, num protowire.Number, body []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendBytes(b, body)
	return b
}

func (self *CommandRequest) MarshalWire() []byte {
	b := appendUint(nil, 1, self.Seq)
	b = appendString(b, 2, self.Class)
	b = appendString(b, 3, self.Command)
	for _, arg := range self.Args {
		b = appendMessage(b, 4, appendValue(nil, arg))
	}
	b = appendUint(b, 5, self.ObjectId)
	return b
}

func (self *CommandResponse) MarshalWire() []byte {
	b := appendUint(nil, 1, self.Seq)
	b = appendInt32(b, 2, self.Status)
	b = appendString(b, 3, self.Message)
	for _, result := range self.Results {
		b = appendMessage(b, 4, appendValue(nil, result))
	}
	b = appendUint(b, 5, self.CreatedId)
	return b
}

func (self *AttrGetRequest) MarshalWire() []byte {
	b := appendUint(nil, 1, self.Seq)
	b = appendMessage(b, 2, appendObjectRef(nil, self.Object))
	b = appendMessage(b, 3, appendAttrRef(nil, self.Attr))
	return b
}

func (self *AttrGetResponse) MarshalWire() []byte {
	b := appendUint(nil, 1, self.Seq)
	b = appendInt32(b, 2, self.Status)
	b = appendString(b, 3, self.Message)
	b = appendMessage(b, 4, appendAttrInfo(nil, self.Info))
	for _, value := range self.Values {
		b = appendMessage(b, 5, appendValue(nil, value))
	}
	return b
}

func (self *AttrSetRequest) MarshalWire() []byte {
	b := appendUint(nil, 1, self.Seq)
	for _, object := range self.Objects {
		b = appendMessage(b, 2, appendObjectRef(nil, object))
	}
	for _, assign := range self.Assigns {
		ab := appendMessage(nil, 1, appendAttrRef(nil, assign.Attr))
		for _, value := range assign.Values {
			ab = appendMessage(ab, 2, appendValue(nil, value))
		}
		b = appendMessage(b, 3, ab)
	}
	b = appendBool(b, 4, self.SuppressErrors)
	return b
}

func (self *AttrSetResponse) MarshalWire() []byte {
	b := appendUint(nil, 1, self.Seq)
	b = appendInt32(b, 2, self.Status)
	b = appendString(b, 3, self.Message)
	for _, result := range self.Results {
		rb := appendMessage(nil, 1, appendObjectRef(nil, result.Object))
		rb = appendInt32(rb, 2, result.Status)
		rb = appendString(rb, 3, result.Message)
		b = appendMessage(b, 4, rb)
	}
	for _, info := range self.Infos {
		b = appendMessage(b, 5, appendAttrInfo(nil, info))
	}
	return b
}

func (self *EventRegisterRequest) MarshalWire() []byte {
	b := appendUint(nil, 1, self.Seq)
	b = appendString(b, 2, self.Class)
	b = appendUint(b, 3, self.ObjectId)
	for _, attr := range self.Attrs {
		b = appendMessage(b, 4, appendAttrRef(nil, attr))
	}
	return b
}

func (self *EventRegisterResponse) MarshalWire() []byte {
	b := appendUint(nil, 1, self.Seq)
	b = appendInt32(b, 2, self.Status)
	b = appendString(b, 3, self.Message)
	b = appendUint(b, 4, self.RoutingId)
	return b
}

func (self *EventDeregisterRequest) MarshalWire() []byte {
	b := appendUint(nil, 1, self.Seq)
	b = appendUint(b, 2, self.RoutingId)
	return b
}

func (self *EventDeregisterResponse) MarshalWire() []byte {
	b := appendUint(nil, 1, self.Seq)
	b = appendInt32(b, 2, self.Status)
	b = appendString(b, 3, self.Message)
	return b
}

func (self *EventNotice) MarshalWire() []byte {
	b := appendInt32(nil, 1, int32(self.Kind))
	b = appendMessage(b, 2, appendObjectRef(nil, self.Object))
	b = appendMessage(b, 3, appendAttrInfo(nil, self.Attr))
	for _, value := range self.Values {
		b = appendMessage(b, 4, appendValue(nil, value))
	}
	return b
}

func (self *SessionHello) MarshalWire() []byte {
	b := appendString(nil, 1, self.Client)
	b = appendString(b, 2, self.InstanceId)
	b = appendInt32(b, 3, self.ProtocolVersion)
	return b
}

func (self *SessionWelcome) MarshalWire() []byte {
	b := appendInt32(nil, 1, self.ProtocolVersion)
	b = appendString(b, 2, self.EngineVersion)
	b = appendUint(b, 3, self.NextObjectId)
	b = appendInt32(b, 4, self.Status)
	b = appendString(b, 5, self.Message)
	return b
}

func (self *NextIdRequest) MarshalWire() []byte {
	return appendUint(nil, 1, self.Seq)
}

func (self *NextIdResponse) MarshalWire() []byte {
	b := appendUint(nil, 1, self.Seq)
	b = appendUint(b, 2, self.NextObjectId)
	return b
}

// decoding

// fieldFunc consumes the value of one field. Unknown fields are skipped so
// the codec stays forward compatible.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func walkFields(b []byte, f fieldFunc) error {
	for 0 < len(b) {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n, err := f(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
		}
		b = b[n:]
	}
	return nil
}

func consumeUint(typ protowire.Type, b []byte, out *uint64) (int, error) {
	if typ != protowire.VarintType {
		return -1, nil
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*out = v
	return n, nil
}

func consumeInt32(typ protowire.Type, b []byte, out *int32) (int, error) {
	var v uint64
	n, err := consumeUint(typ, b, &v)
	if 0 <= n && err == nil {
		*out = int32(uint32(v))
	}
	return n, err
}

func consumeBool(typ protowire.Type, b []byte, out *bool) (int, error) {
	var v uint64
	n, err := consumeUint(typ, b, &v)
	if 0 <= n && err == nil {
		*out = v != 0
	}
	return n, err
}

func consumeString(typ protowire.Type, b []byte, out *string) (int, error) {
	if typ != protowire.BytesType {
		return -1, nil
	}
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*out = v
	return n, nil
}

func consumeMessage(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, -1, nil
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func parseValue(b []byte) (Value, error) {
	var value Value
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			var kind int32
			n, err := consumeInt32(typ, b, &kind)
			value.Kind = ValueKind(kind)
			return n, err
		case 2:
			if typ != protowire.Fixed64Type {
				return -1, nil
			}
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			value.Num = math.Float64frombits(v)
			return n, nil
		case 3:
			return consumeString(typ, b, &value.Str)
		case 4:
			return consumeBool(typ, b, &value.Flag)
		case 5:
			body, n, err := consumeMessage(typ, b)
			if err != nil || n < 0 {
				return n, err
			}
			item, err := parseValue(body)
			if err != nil {
				return 0, err
			}
			value.Items = append(value.Items, item)
			return n, nil
		case 6:
			body, n, err := consumeMessage(typ, b)
			if err != nil || n < 0 {
				return n, err
			}
			ref, err := parseObjectRef(body)
			if err != nil {
				return 0, err
			}
			value.Ref = ref
			return n, nil
		}
		return -1, nil
	})
	return value, err
}

func parseObjectRef(b []byte) (ObjectRef, error) {
	var ref ObjectRef
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &ref.Class)
		case 2:
			return consumeUint(typ, b, &ref.Id)
		}
		return -1, nil
	})
	return ref, err
}

func parseAttrRef(b []byte) (AttrRef, error) {
	var attr AttrRef
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &attr.Name)
		case 2:
			return consumeInt32(typ, b, &attr.Enum)
		case 3:
			return consumeBool(typ, b, &attr.ByEnum)
		}
		return -1, nil
	})
	return attr, err
}

func parseAttrInfo(b []byte) (AttrInfo, error) {
	var info AttrInfo
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &info.Name)
		case 2:
			return consumeInt32(typ, b, &info.Enum)
		case 3:
			return consumeBool(typ, b, &info.Multi)
		}
		return -1, nil
	})
	return info, err
}

func (self *CommandRequest) UnmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint(typ, b, &self.Seq)
		case 2:
			return consumeString(typ, b, &self.Class)
		case 3:
			return consumeString(typ, b, &self.Command)
		case 4:
			body, n, err := consumeMessage(typ, b)
			if err != nil || n < 0 {
				return n, err
			}
			arg, err := parseValue(body)
			if err != nil {
				return 0, err
			}
			self.Args = append(self.Args, arg)
			return n, nil
		case 5:
			return consumeUint(typ, b, &self.ObjectId)
		}
		return -1, nil
	})
}

func (self *CommandResponse) UnmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint(typ, b, &self.Seq)
		case 2:
			return consumeInt32(typ, b, &self.Status)
		case 3:
			return consumeString(typ, b, &self.Message)
		case 4:
			body, n, err := consumeMessage(typ, b)
			if err != nil || n < 0 {
				return n, err
			}
			result, err := parseValue(body)
			if err != nil {
				return 0, err
			}
			self.Results = append(self.Results, result)
			return n, nil
		case 5:
			return consumeUint(typ, b, &self.CreatedId)
		}
		return -1, nil
	})
}

func (self *AttrGetRequest) UnmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint(typ, b, &self.Seq)
		case 2:
			body, n, err := consumeMessage(typ, b)
			if err != nil || n < 0 {
				return n, err
			}
			self.Object, err = parseObjectRef(body)
			if err != nil {
				return 0, err
			}
			return n, nil
		case 3:
			body, n, err := consumeMessage(typ, b)
			if err != nil || n < 0 {
				return n, err
			}
			self.Attr, err = parseAttrRef(body)
			if err != nil {
				return 0, err
			}
			return n, nil
		}
		return -1, nil
	})
}

func (self *AttrGetResponse) UnmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint(typ, b, &self.Seq)
		case 2:
			return consumeInt32(typ, b, &self.Status)
		case 3:
			return consumeString(typ, b, &self.Message)
		case 4:
			body, n, err := consumeMessage(typ, b)
			if err != nil || n < 0 {
				return n, err
			}
			self.Info, err = parseAttrInfo(body)
			if err != nil {
				return 0, err
			}
			return n, nil
		case 5:
			body, n, err := consumeMessage(typ, b)
			if err != nil || n < 0 {
				return n, err
			}
			value, err := parseValue(body)
			if err != nil {
				return 0, err
			}
			self.Values = append(self.Values, value)
			return n, nil
		}
		return -1, nil
	})
}

func (self *AttrSetRequest) UnmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint(typ, b, &self.Seq)
		case 2:
			body, n, err := consumeMessage(typ, b)
			if err != nil || n < 0 {
				return n, err
			}
			ref, err := parseObjectRef(body)
			if err != nil {
				return 0, err
			}
			self.Objects = append(self.Objects, ref)
			return n, nil
		case 3:
			body, n, err := consumeMessage(typ, b)
			if err != nil || n < 0 {
				return n, err
			}
			var assign AttrAssign
			err = walkFields(body, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				switch num {
				case 1:
					abody, an, err := consumeMessage(typ, b)
					if err != nil || an < 0 {
						return an, err
					}
					assign.Attr, err = parseAttrRef(abody)
					if err != nil {
						return 0, err
					}
					return an, nil
				case 2:
					vbody, vn, err := consumeMessage(typ, b)
					if err != nil || vn < 0 {
						return vn, err
					}
					value, err := parseValue(vbody)
					if err != nil {
						return 0, err
					}
					assign.Values = append(assign.Values, value)
					return vn, nil
				}
				return -1, nil
			})
			if err != nil {
				return 0, err
			}
			self.Assigns = append(self.Assigns, assign)
			return n, nil
		case 4:
			return consumeBool(typ, b, &self.SuppressErrors)
		}
		return -1, nil
	})
}

func (self *AttrSetResponse) UnmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint(typ, b, &self.Seq)
		case 2:
			return consumeInt32(typ, b, &self.Status)
		case 3:
			return consumeString(typ, b, &self.Message)
		case 4:
			body, n, err := consumeMessage(typ, b)
			if err != nil || n < 0 {
				return n, err
			}
			var result ObjectResult
			err = walkFields(body, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				switch num {
				case 1:
					rbody, rn, err := consumeMessage(typ, b)
					if err != nil || rn < 0 {
						return rn, err
					}
					result.Object, err = parseObjectRef(rbody)
					if err != nil {
						return 0, err
					}
					return rn, nil
				case 2:
					return consumeInt32(typ, b, &result.Status)
				case 3:
					return consumeString(typ, b, &result.Message)
				}
				return -1, nil
			})
			if err != nil {
				return 0, err
			}
			self.Results = append(self.Results, result)
			return n, nil
		case 5:
			body, n, err := consumeMessage(typ, b)
			if err != nil || n < 0 {
				return n, err
			}
			info, err := parseAttrInfo(body)
			if err != nil {
				return 0, err
			}
			self.Infos = append(self.Infos, info)
			return n, nil
		}
		return -1, nil
	})
}

func (self *EventRegisterRequest) UnmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint(typ, b, &self.Seq)
		case 2:
			return consumeString(typ, b, &self.Class)
		case 3:
			return consumeUint(typ, b, &self.ObjectId)
		case 4:
			body, n, err := consumeMessage(typ, b)
			if err != nil || n < 0 {
				return n, err
			}
			attr, err := parseAttrRef(body)
			if err != nil {
				return 0, err
			}
			self.Attrs = append(self.Attrs, attr)
			return n, nil
		}
		return -1, nil
	})
}

func (self *EventRegisterResponse) UnmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint(typ, b, &self.Seq)
		case 2:
			return consumeInt32(typ, b, &self.Status)
		case 3:
			return consumeString(typ, b, &self.Message)
		case 4:
			return consumeUint(typ, b, &self.RoutingId)
		}
		return -1, nil
	})
}

func (self *EventDeregisterRequest) UnmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint(typ, b, &self.Seq)
		case 2:
			return consumeUint(typ, b, &self.RoutingId)
		}
		return -1, nil
	})
}

func (self *EventDeregisterResponse) UnmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint(typ, b, &self.Seq)
		case 2:
			return consumeInt32(typ, b, &self.Status)
		case 3:
			return consumeString(typ, b, &self.Message)
		}
		return -1, nil
	})
}

func (self *EventNotice) UnmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			var kind int32
			n, err := consumeInt32(typ, b, &kind)
			self.Kind = EventKind(kind)
			return n, err
		case 2:
			body, n, err := consumeMessage(typ, b)
			if err != nil || n < 0 {
				return n, err
			}
			self.Object, err = parseObjectRef(body)
			if err != nil {
				return 0, err
			}
			return n, nil
		case 3:
			body, n, err := consumeMessage(typ, b)
			if err != nil || n < 0 {
				return n, err
			}
			self.Attr, err = parseAttrInfo(body)
			if err != nil {
				return 0, err
			}
			return n, nil
		case 4:
			body, n, err := consumeMessage(typ, b)
			if err != nil || n < 0 {
				return n, err
			}
			value, err := parseValue(body)
			if err != nil {
				return 0, err
			}
			self.Values = append(self.Values, value)
			return n, nil
		}
		return -1, nil
	})
}

func (self *SessionHello) UnmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &self.Client)
		case 2:
			return consumeString(typ, b, &self.InstanceId)
		case 3:
			return consumeInt32(typ, b, &self.ProtocolVersion)
		}
		return -1, nil
	})
}

func (self *SessionWelcome) UnmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeInt32(typ, b, &self.ProtocolVersion)
		case 2:
			return consumeString(typ, b, &self.EngineVersion)
		case 3:
			return consumeUint(typ, b, &self.NextObjectId)
		case 4:
			return consumeInt32(typ, b, &self.Status)
		case 5:
			return consumeString(typ, b, &self.Message)
		}
		return -1, nil
	})
}

func (self *NextIdRequest) UnmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeUint(typ, b, &self.Seq)
		}
		return -1, nil
	})
}

func (self *NextIdResponse) UnmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint(typ, b, &self.Seq)
		case 2:
			return consumeUint(typ, b, &self.NextObjectId)
		}
		return -1, nil
	})
}
