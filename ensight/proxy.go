package ensight

import (
	"context"
	"sync"

	"github.com/ansys/pyensight-sub000/protocol"
)

// Proxy is the client-side handle for one remote object. Proxies are
// allocated only by the registry; holding one does not keep the remote
// object alive, and a deleted remote object turns the proxy stale.
//
// All attribute reads go through the per-proxy cache; all writes go through
// the engine first and update the cache only on success.
type Proxy struct {
	session  *Session
	class    string
	objectId ObjectId

	cache *attrCache

	staleLock sync.Mutex
	stale     bool
}

func newProxy(session *Session, class string, objectId ObjectId) *Proxy {
	return &Proxy{
		session:  session,
		class:    class,
		objectId: objectId,
		cache:    newAttrCache(),
	}
}

func (self *Proxy) Class() string {
	return self.class
}

func (self *Proxy) Id() ObjectId {
	return self.objectId
}

func (self *Proxy) Ref() protocol.ObjectRef {
	return protocol.ObjectRef{
		Class: self.class,
		Id:    uint64(self.objectId),
	}
}

func (self *Proxy) String() string {
	return self.Ref().String()
}

func (self *Proxy) Stale() bool {
	self.staleLock.Lock()
	defer self.staleLock.Unlock()

	return self.stale
}

func (self *Proxy) markStale() {
	self.staleLock.Lock()
	self.stale = true
	self.staleLock.Unlock()

	// the cache is unreachable once stale; drop the values
	self.cache.clear()
}

// checkLive gates every engine access through this proxy. A stale proxy
// fails locally, before any wire traffic.
func (self *Proxy) checkLive(command string) *Error {
	if self.Stale() {
		return staleError(command, "%s no longer exists", self)
	}
	return nil
}

// GetAttr returns the attribute value, from cache when present. A single
// value of a non multi-valued attribute is returned bare; everything else is
// a []any.
func (self *Proxy) GetAttr(ctx context.Context, key AttrKey) (any, error) {
	entry, err := self.getAttrEntry(ctx, key)
	if err != nil {
		return nil, err
	}
	return unwrapAttr(self.session.registry, entry), nil
}

// GetAttrList is GetAttr without the scalar unwrap: always the full list.
func (self *Proxy) GetAttrList(ctx context.Context, key AttrKey) ([]any, error) {
	entry, err := self.getAttrEntry(ctx, key)
	if err != nil {
		return nil, err
	}
	return fromValues(self.session.registry, entry.values), nil
}

func (self *Proxy) getAttrEntry(ctx context.Context, key AttrKey) (attrEntry, error) {
	if err := self.checkLive(""); err != nil {
		return attrEntry{}, err
	}

	if name, ok := self.session.catalog.canonicalName(key); ok {
		if entry, ok := self.cache.load(name); ok {
			return entry, nil
		}
	}

	return self.session.getAttr(ctx, self, key)
}

// AttrInfo returns the canonical identity of an attribute. Answered from the
// session catalog when already learned, otherwise by one engine round trip.
func (self *Proxy) AttrInfo(ctx context.Context, key AttrKey) (protocol.AttrInfo, error) {
	if name, ok := self.session.catalog.canonicalName(key); ok {
		if info, ok := self.session.catalog.info(name); ok {
			return info, nil
		}
	}
	if err := self.checkLive(""); err != nil {
		return protocol.AttrInfo{}, err
	}
	if _, err := self.session.getAttr(ctx, self, key); err != nil {
		return protocol.AttrInfo{}, err
	}
	name, _ := self.session.catalog.canonicalName(key)
	info, _ := self.session.catalog.info(name)
	return info, nil
}

// SetAttr assigns one attribute on this object, engine first. The cache
// reflects the new value only after the engine accepts it.
func (self *Proxy) SetAttr(ctx context.Context, key AttrKey, value any) error {
	return self.SetAttrs(ctx, []AttrAssignment{{Key: key, Value: value}})
}

// AttrAssignment pairs an attribute key with its new value. A slice value
// assigns the whole list; a scalar assigns a one element list.
type AttrAssignment struct {
	Key   AttrKey
	Value any
}

// SetAttrs assigns several attributes on this object in one engine request.
// The request is all-or-nothing for this object.
func (self *Proxy) SetAttrs(ctx context.Context, assigns []AttrAssignment) error {
	if err := self.checkLive(""); err != nil {
		return err
	}
	results, err := self.session.setAttrs(ctx, []*Proxy{self}, assigns, false)
	if err != nil {
		return err
	}
	if result, ok := results[self.objectId]; ok {
		return result
	}
	return nil
}

// CallMethod invokes a remote method on this object and returns its results.
// Unlike the journal command surface, a method failure is always an error.
func (self *Proxy) CallMethod(ctx context.Context, name string, args ...any) ([]any, error) {
	if err := self.checkLive(name); err != nil {
		return nil, err
	}
	return self.session.callMethod(ctx, self, name, args)
}
