package syncx

import (
	"sync"
	"testing"
)

func TestGuardGetSet(t *testing.T) {
	g := NewGuard(42)

	if got := g.Get(); got != 42 {
		t.Errorf("Get() = %d, want 42", got)
	}

	g.Set(100)
	if got := g.Get(); got != 100 {
		t.Errorf("Get() after Set = %d, want 100", got)
	}
}

func TestGuardSwap(t *testing.T) {
	g := NewGuard("CONNECTING")

	old := g.Swap("CONNECTED")
	if old != "CONNECTING" {
		t.Errorf("Swap returned %q, want %q", old, "CONNECTING")
	}
	if got := g.Get(); got != "CONNECTED" {
		t.Errorf("Get() after Swap = %q, want %q", got, "CONNECTED")
	}
}

func TestView(t *testing.T) {
	g := NewGuard([]string{"a", "b", "c"})

	if n := View(g, func(v []string) int { return len(v) }); n != 3 {
		t.Errorf("View() = %d, want 3", n)
	}
}

func TestUpdate(t *testing.T) {
	type status struct {
		state string
		msg   string
	}
	g := NewGuard(status{state: "DISCONNECTED"})

	changed := Update(g, func(s *status) bool {
		if s.state == "ERROR" {
			return false
		}
		s.state, s.msg = "ERROR", "boom"
		return true
	})
	if !changed {
		t.Error("first Update should report a change")
	}
	if got := g.Get(); got.state != "ERROR" || got.msg != "boom" {
		t.Errorf("Get() = %+v, want {ERROR boom}", got)
	}

	changed = Update(g, func(s *status) bool { return s.state != "ERROR" })
	if changed {
		t.Error("second Update should report no change")
	}
}

func TestGuardConcurrentSafety(t *testing.T) {
	g := NewGuard(0)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Write(func(v *int) {
				*v++
			})
		}()
	}

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = View(g, func(v int) int { return v })
		}()
	}

	wg.Wait()

	if got := g.Get(); got != 100 {
		t.Errorf("Get() = %d, want 100", got)
	}
}
