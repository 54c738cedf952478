package core

import (
	"reflect"
	"sync"
)

type EventContext struct {
	Data struct {
		U32 [4]uint32
		F32 [4]float32
		S   string
	}
}

// System internal event codes. Applications should use codes beyond MAX_EVENT_CODE.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Resized/resolution changed from the OS.
	/* Context usage:
	 * u32 width = data.U32[0];
	 * u32 height = data.U32[1];
	 */
	EVENT_CODE_RESIZED SystemEventCode = 0x02

	// A compiled shader changed on disk.
	/* Context usage:
	 * string name = data.S;
	 */
	EVENT_CODE_SHADER_CHANGED SystemEventCode = 0x03

	// The renderer finished a frame.
	/* Context usage:
	 * u32 frameNumber = data.U32[0];
	 */
	EVENT_CODE_FRAME_RENDERED SystemEventCode = 0x04

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

type eventSystemState struct {
	mu         sync.RWMutex
	registered map[SystemEventCode][]*registeredEvent
}

var onceEvent sync.Once
var eventState *eventSystemState

func events() *eventSystemState {
	onceEvent.Do(func() {
		eventState = &eventSystemState{
			registered: make(map[SystemEventCode][]*registeredEvent),
		}
	})
	return eventState
}

func EventShutdown() {
	s := events()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registered = make(map[SystemEventCode][]*registeredEvent)
}

/**
 * Register to listen for when events are sent with the provided code. A listener may
 * only be registered once per code; duplicates return false.
 */
func EventRegister(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	s := events()
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.registered[code] {
		if sameListener(e.listener, listener) {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	s.registered[code] = append(s.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

func EventUnregister(code SystemEventCode, listener interface{}) bool {
	s := events()
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.registered[code]
	for i, e := range entries {
		if sameListener(e.listener, listener) {
			s.registered[code] = append(entries[:i], entries[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * true, the event is considered handled and is not passed on to any more listeners.
 */
func EventFire(code SystemEventCode, sender interface{}, context EventContext) bool {
	s := events()
	s.mu.RLock()
	entries := append([]*registeredEvent(nil), s.registered[code]...)
	s.mu.RUnlock()

	for _, e := range entries {
		if e.callback(code, sender, context) {
			return true
		}
	}
	return false
}

func sameListener(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == b
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	switch ta.Kind() {
	case reflect.Func, reflect.Map, reflect.Slice:
		return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
	}
	return false
}
