package ensight

import (
	"slices"
	"sync"
)

// CallbackList is an ordered callback registry. `Get` returns a snapshot so
// callers invoke callbacks outside any lock.
type CallbackList[T any] struct {
	stateLock sync.Mutex

	nextCallbackId int
	callbackIds    []int
	callbacks      map[int]T
}

func NewCallbackList[T any]() *CallbackList[T] {
	return &CallbackList[T]{
		callbackIds: []int{},
		callbacks:   map[int]T{},
	}
}

func (self *CallbackList[T]) Get() []T {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	callbacks := make([]T, 0, len(self.callbackIds))
	for _, callbackId := range self.callbackIds {
		callbacks = append(callbacks, self.callbacks[callbackId])
	}
	return callbacks
}

func (self *CallbackList[T]) Add(callback T) int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	callbackId := self.nextCallbackId
	self.nextCallbackId += 1
	self.callbackIds = append(self.callbackIds, callbackId)
	self.callbacks[callbackId] = callback
	return callbackId
}

func (self *CallbackList[T]) Remove(callbackId int) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if i := slices.Index(self.callbackIds, callbackId); 0 <= i {
		self.callbackIds = slices.Delete(self.callbackIds, i, i+1)
		delete(self.callbacks, callbackId)
	}
}
