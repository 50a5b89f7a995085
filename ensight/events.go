package ensight

import (
	"slices"
	"sync"

	"github.com/golang/glog"

	"github.com/ansys/pyensight-sub000/protocol"
)

// Event is one engine notice after resolution: the object as a registry
// proxy, the canonical attribute identity, and the converted values. Shared
// across callbacks; callbacks must not mutate it.
type Event struct {
	Kind   protocol.EventKind
	Object *Proxy
	Attr   protocol.AttrInfo
	Values []any
}

type EventCallback = func(event *Event)

type subscription struct {
	subscriptionId SubscriptionId

	// exactly one of class / objectId is set
	class    string
	objectId ObjectId

	// empty filters match any attribute. enums stay enums until the catalog
	// learns their names.
	attrNames map[string]bool
	attrEnums map[int32]bool

	routingId uint64
	callback  EventCallback
}

// matches applies the object/class filter, and for attribute changes the
// attribute filter. Lifecycle notices (created, deleted) ignore the
// attribute filter.
func (self *subscription) matches(notice *protocol.EventNotice) bool {
	if self.objectId != 0 {
		if ObjectId(notice.Object.Id) != self.objectId {
			return false
		}
	} else if self.class != notice.Object.Class {
		return false
	}

	if notice.Kind != protocol.EventKindAttrChanged {
		return true
	}
	if len(self.attrNames) == 0 && len(self.attrEnums) == 0 {
		return true
	}
	if self.attrNames[canonicalAttrName(notice.Attr.Name)] {
		return true
	}
	return self.attrEnums[notice.Attr.Enum]
}

// eventRouter drives all subscription callbacks from a single goroutine, so
// callback order equals engine event order and each cache update is visible
// before its own callbacks and before any later event is processed.
type eventRouter struct {
	session *Session

	stateLock sync.Mutex

	subscriptions map[SubscriptionId]*subscription
	order         []SubscriptionId
}

func newEventRouter(session *Session) *eventRouter {
	return &eventRouter{
		session:       session,
		subscriptions: map[SubscriptionId]*subscription{},
		order:         []SubscriptionId{},
	}
}

// run consumes the transport event channel until it closes. Channel close
// means the transport is dead; the session converges to failed.
func (self *eventRouter) run() {
	for notice := range self.session.transport.Events() {
		self.dispatch(notice)
	}
	self.session.transportDied()
}

func (self *eventRouter) dispatch(notice *protocol.EventNotice) {
	registry := self.session.registry

	if notice.Attr.Name != "" {
		self.session.catalog.learn(notice.Attr)
	}

	proxy := registry.Resolve(notice.Object.Class, ObjectId(notice.Object.Id))

	// apply the notice to local state before any callback runs, so callbacks
	// observe the post-event state
	switch notice.Kind {
	case protocol.EventKindAttrChanged:
		name := canonicalAttrName(notice.Attr.Name)
		if name != "" {
			proxy.cache.store(name, notice.Values, notice.Attr.Multi)
			if name == AttrDescription {
				if 0 < len(notice.Values) && notice.Values[0].Kind == protocol.ValueKindString {
					registry.noteDescription(proxy.Id(), notice.Values[0].Str)
				}
			}
		}
	case protocol.EventKindObjectDeleted:
		registry.Forget(proxy.Id())
	}
	glog.V(2).Infof("[er]%d %s %s\n", notice.Kind, proxy, notice.Attr.Name)

	subscriptions := self.matching(notice)
	if len(subscriptions) == 0 {
		return
	}

	event := &Event{
		Kind:   notice.Kind,
		Object: proxy,
		Attr:   notice.Attr,
		Values: fromValues(registry, notice.Values),
	}
	for _, sub := range subscriptions {
		func() {
			defer func() {
				if r := recover(); r != nil {
					glog.Errorf("[er]callback panic %s = %s\n", sub.subscriptionId, r)
				}
			}()
			sub.callback(event)
		}()
	}
}

// matching returns the subscriptions for a notice in subscription order.
// Each subscription appears at most once.
func (self *eventRouter) matching(notice *protocol.EventNotice) []*subscription {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	subscriptions := []*subscription{}
	for _, subscriptionId := range self.order {
		sub := self.subscriptions[subscriptionId]
		if sub.matches(notice) {
			subscriptions = append(subscriptions, sub)
		}
	}
	return subscriptions
}

func (self *eventRouter) add(sub *subscription) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.subscriptions[sub.subscriptionId] = sub
	self.order = append(self.order, sub.subscriptionId)
}

func (self *eventRouter) remove(subscriptionId SubscriptionId) (*subscription, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	sub, ok := self.subscriptions[subscriptionId]
	if !ok {
		return nil, false
	}
	delete(self.subscriptions, subscriptionId)
	if i := slices.Index(self.order, subscriptionId); 0 <= i {
		self.order = slices.Delete(self.order, i, i+1)
	}
	return sub, true
}

func (self *eventRouter) clear() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.subscriptions = map[SubscriptionId]*subscription{}
	self.order = []SubscriptionId{}
}
