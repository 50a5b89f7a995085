package ensight

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestCallbackList(t *testing.T) {
	callbackList := NewCallbackList[func() int]()

	assert.Equal(t, 0, len(callbackList.Get()))

	n := 16
	callbackIds := []int{}
	for i := 0; i < n; i += 1 {
		value := i
		callbackId := callbackList.Add(func() int {
			return value
		})
		callbackIds = append(callbackIds, callbackId)
	}

	// snapshot preserves add order
	callbacks := callbackList.Get()
	assert.Equal(t, n, len(callbacks))
	for i, callback := range callbacks {
		assert.Equal(t, i, callback())
	}

	// remove from the middle keeps the rest in order
	callbackList.Remove(callbackIds[4])
	callbackList.Remove(callbackIds[9])
	callbacks = callbackList.Get()
	assert.Equal(t, n-2, len(callbacks))
	expect := []int{}
	for i := 0; i < n; i += 1 {
		if i != 4 && i != 9 {
			expect = append(expect, i)
		}
	}
	for i, callback := range callbacks {
		assert.Equal(t, expect[i], callback())
	}

	// removing an unknown id is a no-op
	callbackList.Remove(10000)
	assert.Equal(t, n-2, len(callbackList.Get()))
}
