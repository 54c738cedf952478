package core

import (
	"testing"

	"github.com/cockroachdb/errors"
)

func TestAssertPanicsWithAssertionFailure(t *testing.T) {
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.IsAssertionFailure(err) {
			t.Fatalf("expected assertion failure, got %v", r)
		}
	}()
	Assert(false, "slot %d overflow", 3)
}

func TestAssertHolds(t *testing.T) {
	Assert(true, "never fires")
}

func TestNodeID(t *testing.T) {
	if !NullNodeID.IsNull() {
		t.Fatal("zero node id must be null")
	}
	id := NewNodeID()
	if id.IsNull() {
		t.Fatal("new node id must not be null")
	}
	parsed, err := ParseNodeID(id.String())
	if err != nil || parsed != id {
		t.Fatalf("round trip failed: %v %v", parsed, err)
	}
}

type listener struct{ calls int }

func TestEventFireStopsAtFirstHandler(t *testing.T) {
	defer EventShutdown()

	first, second := &listener{}, &listener{}
	EventRegister(EVENT_CODE_SHADER_CHANGED, first, func(code SystemEventCode, sender interface{}, data EventContext) bool {
		first.calls++
		return data.Data.S == "raygen.rgen"
	})
	EventRegister(EVENT_CODE_SHADER_CHANGED, second, func(code SystemEventCode, sender interface{}, data EventContext) bool {
		second.calls++
		return true
	})
	if EventRegister(EVENT_CODE_SHADER_CHANGED, first, nil) {
		t.Fatal("duplicate listener registered")
	}

	var ctx EventContext
	ctx.Data.S = "raygen.rgen"
	if !EventFire(EVENT_CODE_SHADER_CHANGED, nil, ctx) {
		t.Fatal("event not handled")
	}
	if first.calls != 1 || second.calls != 0 {
		t.Fatalf("calls: first=%d second=%d", first.calls, second.calls)
	}

	if !EventUnregister(EVENT_CODE_SHADER_CHANGED, first) {
		t.Fatal("unregister failed")
	}
	ctx.Data.S = "miss.rmiss"
	EventFire(EVENT_CODE_SHADER_CHANGED, nil, ctx)
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("calls after unregister: first=%d second=%d", first.calls, second.calls)
	}
}
