package clock

import (
	"testing"
	"time"
)

func TestFake_Advance(t *testing.T) {
	start := time.Unix(1000, 0)
	c := Fake(start)

	if !c.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start)
	}
	c.Advance(250 * time.Millisecond)
	if got := c.Now().Sub(start); got != 250*time.Millisecond {
		t.Errorf("elapsed = %v, want 250ms", got)
	}

	c.Set(start)
	if !c.Now().Equal(start) {
		t.Errorf("Set() did not move the clock back")
	}
}

func TestFake_Ticker(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	tk := c.NewTicker(100 * time.Millisecond)

	select {
	case <-tk.C:
		t.Fatal("ticker fired before the clock advanced")
	default:
	}

	c.Advance(100 * time.Millisecond)
	select {
	case at := <-tk.C:
		if at != time.Unix(0, 0).Add(100*time.Millisecond) {
			t.Errorf("tick time = %v", at)
		}
	default:
		t.Fatal("expected a tick")
	}

	// Several intervals at once coalesce into one buffered tick.
	c.Advance(350 * time.Millisecond)
	<-tk.C
	select {
	case <-tk.C:
		t.Fatal("expected ticks to coalesce")
	default:
	}

	tk.Stop()
	c.Advance(time.Second)
	select {
	case <-tk.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFake_TickerPanicsOnZero(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	Fake(time.Time{}).NewTicker(0)
}

func TestFake_After(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	ch := c.After(time.Second)

	c.Advance(999 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("After fired early")
	default:
	}

	c.Advance(time.Millisecond)
	select {
	case at := <-ch:
		if !at.Equal(time.Unix(1, 0)) {
			t.Errorf("fired at %v", at)
		}
	default:
		t.Fatal("After did not fire")
	}

	select {
	case <-c.After(0):
	default:
		t.Error("After(0) should fire immediately")
	}
}

func TestFake_WaitForTimers(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	done := make(chan struct{})
	go func() {
		<-c.After(time.Minute)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(time.Minute)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not released")
	}
}
