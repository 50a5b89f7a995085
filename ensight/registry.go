package ensight

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/golang/glog"
)

// Registry is the sole allocation authority for proxies. While an id is
// live, `Resolve` returns the same *Proxy for it, so caller code can compare
// proxies by identity. `Forget` breaks that tie: the forgotten proxy fails
// fast as stale, and a later resolve of the same id yields a fresh proxy
// whose first engine access reports the staleness remotely.
type Registry struct {
	session *Session

	stateLock sync.Mutex

	proxies      map[ObjectId]*Proxy
	classIds     map[string][]ObjectId
	descriptions map[ObjectId]string
}

func newRegistry(session *Session) *Registry {
	return &Registry{
		session:      session,
		proxies:      map[ObjectId]*Proxy{},
		classIds:     map[string][]ObjectId{},
		descriptions: map[ObjectId]string{},
	}
}

// Resolve returns the proxy for objectId, allocating lazily on first use.
// Resolution is purely local: no wire traffic, no existence check. If the id
// is already live its class wins over the class argument.
func (self *Registry) Resolve(class string, objectId ObjectId) *Proxy {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if proxy, ok := self.proxies[objectId]; ok {
		return proxy
	}

	proxy := newProxy(self.session, class, objectId)
	self.proxies[objectId] = proxy
	self.classIds[class] = append(self.classIds[class], objectId)
	glog.V(2).Infof("[reg]wrap %s\n", proxy)
	return proxy
}

// Lookup returns the live proxy for objectId without allocating.
func (self *Registry) Lookup(objectId ObjectId) (*Proxy, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	proxy, ok := self.proxies[objectId]
	return proxy, ok
}

// Forget drops objectId from the live set and marks its proxy stale. Held
// borrows of the proxy keep working as fail-fast stale references.
func (self *Registry) Forget(objectId ObjectId) {
	var proxy *Proxy
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		var ok bool
		proxy, ok = self.proxies[objectId]
		if !ok {
			return
		}
		delete(self.proxies, objectId)
		delete(self.descriptions, objectId)
		class := proxy.Class()
		if ids, ok := self.classIds[class]; ok {
			if i := slices.Index(ids, objectId); 0 <= i {
				self.classIds[class] = slices.Delete(ids, i, i+1)
			}
		}
	}()

	if proxy != nil {
		proxy.markStale()
		glog.V(1).Infof("[reg]forget %s\n", proxy)
	}
}

// Find resolves a query against one class: an all-digit query is an id, any
// other query matches the DESCRIPTION text case-insensitively and exactly.
// First match in wrap order wins.
func (self *Registry) Find(class string, query string) (*Proxy, error) {
	if query != "" && isAllDigits(query) {
		id, err := strconv.ParseUint(query, 10, 64)
		if err != nil {
			return nil, &Error{
				Kind:    KindBadIdentifier,
				Message: fmt.Sprintf("bad object id %q", query),
				Cause:   err,
			}
		}
		return self.Resolve(class, ObjectId(id)), nil
	}

	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	for _, objectId := range self.classIds[class] {
		if strings.EqualFold(self.descriptions[objectId], query) {
			return self.proxies[objectId], nil
		}
	}
	return nil, &Error{
		Kind:    KindBadIdentifier,
		Message: fmt.Sprintf("no %s named %q", class, query),
	}
}

// Objects returns the live proxies of one class in wrap order.
func (self *Registry) Objects(class string) []*Proxy {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	proxies := make([]*Proxy, 0, len(self.classIds[class]))
	for _, objectId := range self.classIds[class] {
		proxies = append(proxies, self.proxies[objectId])
	}
	return proxies
}

func (self *Registry) Classes() []string {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	classes := maps.Keys(self.classIds)
	slices.Sort(classes)
	return classes
}

func (self *Registry) Size() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return len(self.proxies)
}

// noteDescription feeds the name index from DESCRIPTION values passing
// through the attribute paths.
func (self *Registry) noteDescription(objectId ObjectId, text string) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if _, ok := self.proxies[objectId]; ok {
		self.descriptions[objectId] = text
	}
}

// markStaleAll is the fatal-failure path: every live proxy becomes stale at
// once. The maps are kept so held references still render.
func (self *Registry) markStaleAll() {
	self.stateLock.Lock()
	proxies := maps.Values(self.proxies)
	self.stateLock.Unlock()

	for _, proxy := range proxies {
		proxy.markStale()
	}
}

func isAllDigits(s string) bool {
	for i := 0; i < len(s); i += 1 {
		if !isDigit(s[i]) {
			return false
		}
	}
	return s != ""
}
