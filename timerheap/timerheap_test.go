package timerheap_test

import (
	"testing"

	"github.com/reactorweb/httpd/timerheap"
)

type fakeOwner struct {
	fired bool
	name  string
	owned bool
}

func (f *fakeOwner) OnTimerExpired() { f.fired = true }
func (f *fakeOwner) OwnedByWorker() bool { return f.owned }

func TestHeapPopOrder(t *testing.T) {
	hp := timerheap.New()
	a := &fakeOwner{name: "a"}
	b := &fakeOwner{name: "b"}
	c := &fakeOwner{name: "c"}

	ta := &timerheap.Timer{Expiry: 30, Owner: a}
	tb := &timerheap.Timer{Expiry: 10, Owner: b}
	tc := &timerheap.Timer{Expiry: 20, Owner: c}
	hp.Add(ta)
	hp.Add(tb)
	hp.Add(tc)

	if hp.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", hp.Len())
	}

	hp.Tick(10)
	if !b.fired || a.fired || c.fired {
		t.Fatalf("Tick(10): fired a=%v b=%v c=%v, want only b", a.fired, b.fired, c.fired)
	}
	if hp.Len() != 2 {
		t.Fatalf("Len() after first tick = %d, want 2", hp.Len())
	}

	hp.Tick(25)
	if !c.fired || a.fired {
		t.Fatalf("Tick(25): fired a=%v c=%v, want only c", a.fired, c.fired)
	}
	if hp.Len() != 1 {
		t.Fatalf("Len() after second tick = %d, want 1", hp.Len())
	}

	hp.Tick(30)
	if !a.fired {
		t.Fatal("Tick(30): a should have fired")
	}
	if hp.Len() != 0 {
		t.Fatalf("Len() after third tick = %d, want 0", hp.Len())
	}
}

func TestTickReturnsOnlyUnownedExpired(t *testing.T) {
	hp := timerheap.New()
	idle := &fakeOwner{name: "idle"}
	worked := &fakeOwner{name: "worked", owned: true}

	tIdle := &timerheap.Timer{Expiry: 5, Owner: idle}
	tWorked := &timerheap.Timer{Expiry: 5, Owner: worked}
	hp.Add(tIdle)
	hp.Add(tWorked)

	expired := hp.Tick(10)
	if !idle.fired || !worked.fired {
		t.Fatalf("Tick should fire both owners: idle=%v worked=%v", idle.fired, worked.fired)
	}
	if len(expired) != 1 || expired[0].Owner != idle {
		t.Fatalf("Tick(10) returned %d timers, want exactly the idle one", len(expired))
	}
}

func TestHeapAdjustRepositions(t *testing.T) {
	hp := timerheap.New()
	a := &fakeOwner{}
	b := &fakeOwner{}

	ta := &timerheap.Timer{Expiry: 100, Owner: a}
	tb := &timerheap.Timer{Expiry: 5, Owner: b}
	hp.Add(ta)
	hp.Add(tb)

	hp.Adjust(ta, 1) // a now expires before b

	hp.Tick(1)
	if !a.fired || b.fired {
		t.Fatalf("after Adjust, fired a=%v b=%v, want only a", a.fired, b.fired)
	}
}

func TestHeapRemoveIsIdempotent(t *testing.T) {
	hp := timerheap.New()
	owner := &fakeOwner{}
	timer := &timerheap.Timer{Expiry: 50, Owner: owner}
	hp.Add(timer)

	hp.Remove(timer)
	if hp.Len() != 0 {
		t.Fatalf("Len() after Remove = %d, want 0", hp.Len())
	}

	// Removing again must not panic and must stay a no-op.
	hp.Remove(timer)
	if hp.Len() != 0 {
		t.Fatalf("Len() after second Remove = %d, want 0", hp.Len())
	}

	hp.Tick(1000)
	if owner.fired {
		t.Fatal("removed timer must not fire on a later Tick")
	}
}
