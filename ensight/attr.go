package ensight

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/ansys/pyensight-sub000/protocol"
)

// AttrKey addresses an attribute either by symbolic name or by integer enum.
// Both address the same attribute; the engine reports the canonical identity
// (AttrInfo) with every attribute response, and the session catalog learns
// the name<->enum pairing from those.
type AttrKey struct {
	name   string
	enum   int32
	byEnum bool
}

func AttrName(name string) AttrKey {
	return AttrKey{name: name}
}

func AttrEnum(enum int32) AttrKey {
	return AttrKey{enum: enum, byEnum: true}
}

func (self AttrKey) ByEnum() bool {
	return self.byEnum
}

func (self AttrKey) String() string {
	if self.byEnum {
		return fmt.Sprintf("attr(%d)", self.enum)
	}
	return canonicalAttrName(self.name)
}

func (self AttrKey) ref() protocol.AttrRef {
	if self.byEnum {
		return protocol.AttrRef{Enum: self.enum, ByEnum: true}
	}
	return protocol.AttrRef{Name: canonicalAttrName(self.name)}
}

// canonical attribute names are UPPER_SNAKE
func canonicalAttrName(name string) string {
	return strings.ToUpper(name)
}

// attrCatalog is the session-wide name<->enum table, filled lazily from the
// AttrInfo the engine attaches to responses and event notices. Never
// pre-populated: the engine owns the attribute schema.
type attrCatalog struct {
	stateLock sync.Mutex

	enumNames map[int32]string
	nameInfos map[string]protocol.AttrInfo
}

func newAttrCatalog() *attrCatalog {
	return &attrCatalog{
		enumNames: map[int32]string{},
		nameInfos: map[string]protocol.AttrInfo{},
	}
}

func (self *attrCatalog) learn(info protocol.AttrInfo) {
	if info.Name == "" {
		return
	}
	name := canonicalAttrName(info.Name)

	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if info.Enum != 0 {
		self.enumNames[info.Enum] = name
	}
	self.nameInfos[name] = protocol.AttrInfo{
		Name:  name,
		Enum:  info.Enum,
		Multi: info.Multi,
	}
}

// canonicalName resolves a key to its canonical name. A name key resolves by
// itself; an enum key resolves only once the catalog has learned the enum.
func (self *attrCatalog) canonicalName(key AttrKey) (string, bool) {
	if !key.byEnum {
		return canonicalAttrName(key.name), true
	}

	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	name, ok := self.enumNames[key.enum]
	return name, ok
}

func (self *attrCatalog) info(name string) (protocol.AttrInfo, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	info, ok := self.nameInfos[canonicalAttrName(name)]
	return info, ok
}

type attrEntry struct {
	values []protocol.Value
	multi  bool
}

// attrCache is the per-proxy read cache, keyed by canonical attribute name.
// Writes go through the engine first; the cache is updated only from engine
// confirmed state (set responses and event notices), so it never holds a
// value the engine has not acknowledged.
type attrCache struct {
	stateLock sync.Mutex

	entries map[string]attrEntry
}

func newAttrCache() *attrCache {
	return &attrCache{
		entries: map[string]attrEntry{},
	}
}

func (self *attrCache) load(name string) (attrEntry, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	entry, ok := self.entries[name]
	return entry, ok
}

func (self *attrCache) store(name string, values []protocol.Value, multi bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.entries[name] = attrEntry{
		values: values,
		multi:  multi,
	}
}

func (self *attrCache) invalidate(name string) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	delete(self.entries, name)
}

func (self *attrCache) clear() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	maps.Clear(self.entries)
}
