package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

type MessageType int32

const (
	MessageTypeSessionHello            MessageType = 1
	MessageTypeSessionWelcome          MessageType = 2
	MessageTypeCommandRequest          MessageType = 3
	MessageTypeCommandResponse         MessageType = 4
	MessageTypeAttrGetRequest          MessageType = 5
	MessageTypeAttrGetResponse         MessageType = 6
	MessageTypeAttrSetRequest          MessageType = 7
	MessageTypeAttrSetResponse         MessageType = 8
	MessageTypeEventRegisterRequest    MessageType = 9
	MessageTypeEventRegisterResponse   MessageType = 10
	MessageTypeEventDeregisterRequest  MessageType = 11
	MessageTypeEventDeregisterResponse MessageType = 12
	MessageTypeEventNotice             MessageType = 13
	MessageTypeNextIdRequest           MessageType = 14
	MessageTypeNextIdResponse          MessageType = 15
)

func (self MessageType) String() string {
	switch self {
	case MessageTypeSessionHello:
		return "SessionHello"
	case MessageTypeSessionWelcome:
		return "SessionWelcome"
	case MessageTypeCommandRequest:
		return "CommandRequest"
	case MessageTypeCommandResponse:
		return "CommandResponse"
	case MessageTypeAttrGetRequest:
		return "AttrGetRequest"
	case MessageTypeAttrGetResponse:
		return "AttrGetResponse"
	case MessageTypeAttrSetRequest:
		return "AttrSetRequest"
	case MessageTypeAttrSetResponse:
		return "AttrSetResponse"
	case MessageTypeEventRegisterRequest:
		return "EventRegisterRequest"
	case MessageTypeEventRegisterResponse:
		return "EventRegisterResponse"
	case MessageTypeEventDeregisterRequest:
		return "EventDeregisterRequest"
	case MessageTypeEventDeregisterResponse:
		return "EventDeregisterResponse"
	case MessageTypeEventNotice:
		return "EventNotice"
	case MessageTypeNextIdRequest:
		return "NextIdRequest"
	case MessageTypeNextIdResponse:
		return "NextIdResponse"
	default:
		return fmt.Sprintf("MessageType(%d)", int32(self))
	}
}

// Message is any wire message that can ride in a frame.
type Message interface {
	MarshalWire() []byte
	UnmarshalWire(b []byte) error
}

// Frame is the envelope for every message on either channel.
//
//	Frame { type int32 = 1, body bytes = 2 }
type Frame struct {
	MessageType  MessageType
	MessageBytes []byte
}

// ToFrame wraps a message in a frame. An unregistered message type is an
// error.
func ToFrame(message Message) (*Frame, error) {
	var messageType MessageType
	switch message.(type) {
	case *SessionHello:
		messageType = MessageTypeSessionHello
	case *SessionWelcome:
		messageType = MessageTypeSessionWelcome
	case *CommandRequest:
		messageType = MessageTypeCommandRequest
	case *CommandResponse:
		messageType = MessageTypeCommandResponse
	case *AttrGetRequest:
		messageType = MessageTypeAttrGetRequest
	case *AttrGetResponse:
		messageType = MessageTypeAttrGetResponse
	case *AttrSetRequest:
		messageType = MessageTypeAttrSetRequest
	case *AttrSetResponse:
		messageType = MessageTypeAttrSetResponse
	case *EventRegisterRequest:
		messageType = MessageTypeEventRegisterRequest
	case *EventRegisterResponse:
		messageType = MessageTypeEventRegisterResponse
	case *EventDeregisterRequest:
		messageType = MessageTypeEventDeregisterRequest
	case *EventDeregisterResponse:
		messageType = MessageTypeEventDeregisterResponse
	case *EventNotice:
		messageType = MessageTypeEventNotice
	case *NextIdRequest:
		messageType = MessageTypeNextIdRequest
	case *NextIdResponse:
		messageType = MessageTypeNextIdResponse
	default:
		return nil, fmt.Errorf("Message type not supported: %T", message)
	}
	return &Frame{
		MessageType:  messageType,
		MessageBytes: message.MarshalWire(),
	}, nil
}

func RequireToFrame(message Message) *Frame {
	frame, err := ToFrame(message)
	if err != nil {
		panic(err)
	}
	return frame
}

// FromFrame parses the frame body into its concrete message.
func FromFrame(frame *Frame) (Message, error) {
	var message Message
	switch frame.MessageType {
	case MessageTypeSessionHello:
		message = &SessionHello{}
	case MessageTypeSessionWelcome:
		message = &SessionWelcome{}
	case MessageTypeCommandRequest:
		message = &CommandRequest{}
	case MessageTypeCommandResponse:
		message = &CommandResponse{}
	case MessageTypeAttrGetRequest:
		message = &AttrGetRequest{}
	case MessageTypeAttrGetResponse:
		message = &AttrGetResponse{}
	case MessageTypeAttrSetRequest:
		message = &AttrSetRequest{}
	case MessageTypeAttrSetResponse:
		message = &AttrSetResponse{}
	case MessageTypeEventRegisterRequest:
		message = &EventRegisterRequest{}
	case MessageTypeEventRegisterResponse:
		message = &EventRegisterResponse{}
	case MessageTypeEventDeregisterRequest:
		message = &EventDeregisterRequest{}
	case MessageTypeEventDeregisterResponse:
		message = &EventDeregisterResponse{}
	case MessageTypeEventNotice:
		message = &EventNotice{}
	case MessageTypeNextIdRequest:
		message = &NextIdRequest{}
	case MessageTypeNextIdResponse:
		message = &NextIdResponse{}
	default:
		return nil, fmt.Errorf("Message type not supported: %s", frame.MessageType)
	}
	if err := message.UnmarshalWire(frame.MessageBytes); err != nil {
		return nil, err
	}
	return message, nil
}

func RequireFromFrame(frame *Frame) Message {
	message, err := FromFrame(frame)
	if err != nil {
		panic(err)
	}
	return message
}

// EncodeFrame serializes the envelope for a single websocket message.
func EncodeFrame(frame *Frame) []byte {
	b := appendInt32(nil, 1, int32(frame.MessageType))
	if 0 < len(frame.MessageBytes) {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, frame.MessageBytes)
	}
	return b
}

// DecodeFrame parses one websocket message back into the envelope.
func DecodeFrame(b []byte) (*Frame, error) {
	frame := &Frame{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			var messageType int32
			n, err := consumeInt32(typ, b, &messageType)
			frame.MessageType = MessageType(messageType)
			return n, err
		case 2:
			if typ != protowire.BytesType {
				return -1, nil
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			frame.MessageBytes = v
			return n, nil
		}
		return -1, nil
	})
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// Seq returns the sequence number of a message, if the message carries one.
// Event notices and hello/welcome do not.
func Seq(message Message) (uint64, bool) {
	switch v := message.(type) {
	case *CommandRequest:
		return v.Seq, true
	case *CommandResponse:
		return v.Seq, true
	case *AttrGetRequest:
		return v.Seq, true
	case *AttrGetResponse:
		return v.Seq, true
	case *AttrSetRequest:
		return v.Seq, true
	case *AttrSetResponse:
		return v.Seq, true
	case *EventRegisterRequest:
		return v.Seq, true
	case *EventRegisterResponse:
		return v.Seq, true
	case *EventDeregisterRequest:
		return v.Seq, true
	case *EventDeregisterResponse:
		return v.Seq, true
	case *NextIdRequest:
		return v.Seq, true
	case *NextIdResponse:
		return v.Seq, true
	default:
		return 0, false
	}
}

// SetSeq stamps the sequence number on a message that carries one.
func SetSeq(message Message, seq uint64) {
	switch v := message.(type) {
	case *CommandRequest:
		v.Seq = seq
	case *CommandResponse:
		v.Seq = seq
	case *AttrGetRequest:
		v.Seq = seq
	case *AttrGetResponse:
		v.Seq = seq
	case *AttrSetRequest:
		v.Seq = seq
	case *AttrSetResponse:
		v.Seq = seq
	case *EventRegisterRequest:
		v.Seq = seq
	case *EventRegisterResponse:
		v.Seq = seq
	case *EventDeregisterRequest:
		v.Seq = seq
	case *EventDeregisterResponse:
		v.Seq = seq
	case *NextIdRequest:
		v.Seq = seq
	case *NextIdResponse:
		v.Seq = seq
	}
}

// EncodeMessage is ToFrame+EncodeFrame in one step.
func EncodeMessage(message Message) ([]byte, error) {
	frame, err := ToFrame(message)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(frame), nil
}

// DecodeMessage is DecodeFrame+FromFrame in one step.
func DecodeMessage(b []byte) (Message, error) {
	frame, err := DecodeFrame(b)
	if err != nil {
		return nil, err
	}
	return FromFrame(frame)
}
