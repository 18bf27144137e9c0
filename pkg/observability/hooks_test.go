package observability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	p := NoopPlanHooks{}
	p.OnPlanStart(ctx, 0, [3]float64{1, 0, 0})
	p.OnPlanComplete(ctx, 0, 16, 1, time.Millisecond, nil)

	s := NoopSweepHooks{}
	s.OnAngleSetState(ctx, 1, 3, "RECEIVING")
	s.OnChunkReceived(ctx, 1, 3, 0, 2, 4096)
	s.OnSweepComplete(ctx, 1, 0, time.Second, nil)

	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "plan")
	c.OnCacheMiss(ctx, "plan")
	c.OnCacheSet(ctx, "plan", 1024)

	tr := NoopTransportHooks{}
	tr.OnSend(ctx, 0, 1, 1000, 256)
	tr.OnTransportError(ctx, "recv", errors.New("boom"))
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()

	if _, ok := Plan().(NoopPlanHooks); !ok {
		t.Error("Plan() should return NoopPlanHooks by default")
	}
	if _, ok := Sweep().(NoopSweepHooks); !ok {
		t.Error("Sweep() should return NoopSweepHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := Transport().(NoopTransportHooks); !ok {
		t.Error("Transport() should return NoopTransportHooks by default")
	}

	customPlan := &testPlanHooks{}
	SetPlanHooks(customPlan)
	if Plan() != customPlan {
		t.Error("SetPlanHooks should set custom hooks")
	}

	customSweep := &testSweepHooks{}
	SetSweepHooks(customSweep)
	if Sweep() != customSweep {
		t.Error("SetSweepHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	customTransport := &testTransportHooks{}
	SetTransportHooks(customTransport)
	if Transport() != customTransport {
		t.Error("SetTransportHooks should set custom hooks")
	}

	Reset()
	if _, ok := Sweep().(NoopSweepHooks); !ok {
		t.Error("Reset() should restore NoopSweepHooks")
	}
	if _, ok := Transport().(NoopTransportHooks); !ok {
		t.Error("Reset() should restore NoopTransportHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()
	defer Reset()

	custom := &testSweepHooks{}
	SetSweepHooks(custom)
	SetSweepHooks(nil)

	if Sweep() != custom {
		t.Error("SetSweepHooks(nil) should be ignored")
	}
}

type testPlanHooks struct{ NoopPlanHooks }
type testSweepHooks struct{ NoopSweepHooks }
type testCacheHooks struct{ NoopCacheHooks }
type testTransportHooks struct{ NoopTransportHooks }
