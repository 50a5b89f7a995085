package ensight

import (
	"strings"

	"github.com/ansys/pyensight-sub000/protocol"
)

// toValue converts a caller argument to its wire form. Object references are
// passed as *Proxy or protocol.ObjectRef; plain integers (including ObjectId)
// are numbers, because journal verbs take ids as numeric arguments.
func toValue(arg any) (protocol.Value, error) {
	switch v := arg.(type) {
	case nil:
		return protocol.None(), nil
	case bool:
		return protocol.Bool(v), nil
	case int:
		return protocol.Number(float64(v)), nil
	case int32:
		return protocol.Number(float64(v)), nil
	case int64:
		return protocol.Number(float64(v)), nil
	case uint32:
		return protocol.Number(float64(v)), nil
	case uint64:
		return protocol.Number(float64(v)), nil
	case float32:
		return protocol.Number(float64(v)), nil
	case float64:
		return protocol.Number(v), nil
	case ObjectId:
		return protocol.Number(float64(v)), nil
	case string:
		return protocol.String(v), nil
	case *Proxy:
		return protocol.Value{Kind: protocol.ValueKindRef, Ref: v.Ref()}, nil
	case protocol.ObjectRef:
		return protocol.Value{Kind: protocol.ValueKindRef, Ref: v}, nil
	case protocol.Value:
		return v, nil
	case []any:
		items, err := toValues(v)
		if err != nil {
			return protocol.Value{}, err
		}
		return protocol.List(items...), nil
	case []float64:
		items := make([]protocol.Value, len(v))
		for i, item := range v {
			items[i] = protocol.Number(item)
		}
		return protocol.List(items...), nil
	case []int:
		items := make([]protocol.Value, len(v))
		for i, item := range v {
			items[i] = protocol.Number(float64(item))
		}
		return protocol.List(items...), nil
	case []string:
		items := make([]protocol.Value, len(v))
		for i, item := range v {
			items[i] = protocol.String(item)
		}
		return protocol.List(items...), nil
	default:
		return protocol.Value{}, encodingError("cannot encode %T as a wire value", arg)
	}
}

func toValues(args []any) ([]protocol.Value, error) {
	values := make([]protocol.Value, len(args))
	for i, arg := range args {
		value, err := toValue(arg)
		if err != nil {
			return nil, err
		}
		values[i] = value
	}
	return values, nil
}

// toAttrValues converts one assignment's value to the wire list form.
// Attribute values always cross the wire as lists; a scalar becomes a one
// element list, a slice becomes its elements.
func toAttrValues(value any) ([]protocol.Value, error) {
	wire, err := toValue(value)
	if err != nil {
		return nil, err
	}
	if wire.Kind == protocol.ValueKindList {
		return wire.Items, nil
	}
	return []protocol.Value{wire}, nil
}

// fromValue converts a wire value to its caller form. Refs resolve through
// the registry so a returned object is the same *Proxy everywhere.
func fromValue(registry *Registry, value protocol.Value) any {
	switch value.Kind {
	case protocol.ValueKindNone:
		return nil
	case protocol.ValueKindNumber:
		return value.Num
	case protocol.ValueKindString:
		return value.Str
	case protocol.ValueKindBool:
		return value.Flag
	case protocol.ValueKindList:
		return fromValues(registry, value.Items)
	case protocol.ValueKindRef:
		return registry.Resolve(value.Ref.Class, ObjectId(value.Ref.Id))
	default:
		return nil
	}
}

func fromValues(registry *Registry, values []protocol.Value) []any {
	out := make([]any, len(values))
	for i, value := range values {
		out[i] = fromValue(registry, value)
	}
	return out
}

// unwrapAttr applies the scalar rule: a single value of a non multi
// attribute is returned bare, everything else as a list.
func unwrapAttr(registry *Registry, entry attrEntry) any {
	if !entry.multi && len(entry.values) == 1 {
		return fromValue(registry, entry.values[0])
	}
	return fromValues(registry, entry.values)
}

// RenderCommand renders one journal line: `class: command arg ...`. Strings
// are quoted, booleans are ON/OFF, numbers use %g, references render as
// @class:id, lists are parenthesized.
func RenderCommand(class string, command string, args []protocol.Value) string {
	var b strings.Builder
	b.WriteString(class)
	b.WriteString(": ")
	b.WriteString(command)
	for _, arg := range args {
		b.WriteString(" ")
		b.WriteString(arg.String())
	}
	return b.String()
}

// RenderMethod renders a method call for journal mirroring and error
// context: `@class:id.method arg ...`.
func RenderMethod(object protocol.ObjectRef, method string, args []protocol.Value) string {
	var b strings.Builder
	b.WriteString(object.String())
	b.WriteString(".")
	b.WriteString(method)
	for _, arg := range args {
		b.WriteString(" ")
		b.WriteString(arg.String())
	}
	return b.String()
}

// RenderAttrSet renders an attribute assignment in journal grammar, on the
// class noun of the first target: `part: visible OFF`.
func RenderAttrSet(objects []protocol.ObjectRef, assigns []protocol.AttrAssign) string {
	noun := ""
	if 0 < len(objects) {
		noun = NounForClass(objects[0].Class)
	}
	var b strings.Builder
	for i, assign := range assigns {
		if 0 < i {
			b.WriteString("; ")
		}
		b.WriteString(noun)
		b.WriteString(": ")
		if assign.Attr.ByEnum {
			b.WriteString(assign.Attr.String())
		} else {
			b.WriteString(strings.ToLower(assign.Attr.Name))
		}
		for _, value := range assign.Values {
			b.WriteString(" ")
			b.WriteString(value.String())
		}
	}
	return b.String()
}

// NounForClass maps an object class to its journal noun: ENS_PART -> part.
func NounForClass(class string) string {
	return strings.ToLower(strings.TrimPrefix(class, "ENS_"))
}
