// Package ensight is the client side of the engine's remote object and
// command protocol. A `Session` owns one `Transport` to a running engine and
// exposes the engine's state as `Proxy` objects resolved through a
// `Registry`, a journal command surface (`Command` and the selection/batch
// verbs), and attribute-change subscriptions routed by an event router.
//
// The session serializes commands: one request is outstanding at a time, and
// the response to command k is read before command k+1 is sent. Events arrive
// on a separate channel and are dispatched by a single goroutine, so callback
// order matches engine order.
//
// Logging convention, in glog verbosity levels:
//
//	Info: abnormal behavior only (protocol desync, dropped events, panics in
//	      callbacks), plus one-time connect info
//	V(1): per-command and per-subscription lifecycle
//	V(2): per-event and per-frame traces
package ensight

import (
	"github.com/oklog/ulid/v2"
)

// ObjectId identifies one remote object for the lifetime of the engine
// process. Ids are allocated engine-side, monotonically increasing, and never
// reused.
type ObjectId uint64

// Well known object classes. The engine may expose more; class names are
// opaque strings everywhere in this layer. Classes map to journal nouns by
// dropping the ENS_ prefix: ENS_PART <-> part.
const (
	ClassGlobals  = "ENS_GLOBALS"
	ClassPart     = "ENS_PART"
	ClassAnnot    = "ENS_ANNOT"
	ClassVariable = "ENS_VARIABLE"
	ClassTool     = "ENS_TOOL"
)

// AttrDescription is the attribute backing the per-class name index: objects
// are found by their DESCRIPTION text.
const AttrDescription = "DESCRIPTION"

// comparable
type SubscriptionId [16]byte

func NewSubscriptionId() SubscriptionId {
	return SubscriptionId(ulid.Make())
}

func (self SubscriptionId) String() string {
	return ulid.ULID(self).String()
}

// NewInstanceId returns a fresh session instance id for the transport
// handshake. The event channel is paired to the command channel by this id.
func NewInstanceId() string {
	return ulid.Make().String()
}
