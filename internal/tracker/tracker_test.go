package tracker

import (
	"reflect"
	"sync"
	"testing"
)

func TestPresence_RegisterDeregister(t *testing.T) {
	p := NewPresence()

	if !p.Register(1, "a") {
		t.Error("First handle should report first=true")
	}
	if p.Register(1, "b") {
		t.Error("Second handle should report first=false")
	}
	if !p.IsOnline(1) {
		t.Error("Identity should be online")
	}
	if p.Count() != 1 {
		t.Errorf("Expected 1 online identity, got %d", p.Count())
	}

	if p.Deregister(1, "a") {
		t.Error("Removing one of two handles should report last=false")
	}
	if !p.IsOnline(1) {
		t.Error("Identity should stay online with one handle left")
	}
	if !p.Deregister(1, "b") {
		t.Error("Removing the final handle should report last=true")
	}
	if p.IsOnline(1) || p.Count() != 0 {
		t.Error("Identity should be offline and its entry removed")
	}
}

func TestPresence_DeregisterUnknown(t *testing.T) {
	p := NewPresence()
	p.Register(1, "a")

	if p.Deregister(1, "zzz") {
		t.Error("Unknown handle should report last=false")
	}
	if p.Deregister(2, "a") {
		t.Error("Unknown identity should report last=false")
	}
	if !p.IsOnline(1) {
		t.Error("Unrelated deregister should not affect presence")
	}
}

func TestPresence_RegisterSameHandleTwice(t *testing.T) {
	p := NewPresence()
	p.Register(1, "a")
	p.Register(1, "a")

	if !p.Deregister(1, "a") {
		t.Error("A handle registered twice is held once")
	}
}

func TestPresence_OnlineAndHandles(t *testing.T) {
	p := NewPresence()
	p.Register(3, "c")
	p.Register(1, "b")
	p.Register(1, "a")

	if got := p.Online(); !reflect.DeepEqual(got, []int64{1, 3}) {
		t.Errorf("Online() = %v", got)
	}
	if got := p.Handles(1); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Handles(1) = %v", got)
	}
}

func TestRooms_JoinIdempotent(t *testing.T) {
	r := NewRooms()

	r.Join(42, "a")
	r.Join(42, "a")

	if got := r.Members(42); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("Members(42) = %v, want [a]", got)
	}
	if !r.Leave(42, "a") {
		t.Error("Leave should report membership")
	}
	if r.Count() != 0 {
		t.Error("Empty room should be removed")
	}
}

func TestRooms_LeaveNonMember(t *testing.T) {
	r := NewRooms()
	r.Join(42, "a")

	if r.Leave(42, "b") {
		t.Error("Leave of non-member should report false")
	}
	if r.Leave(7, "a") {
		t.Error("Leave of unknown room should report false")
	}
	if !r.IsMember(42, "a") {
		t.Error("Member should remain")
	}
}

func TestRooms_LeaveAll(t *testing.T) {
	r := NewRooms()
	r.Join(3, "a")
	r.Join(1, "a")
	r.Join(1, "b")

	left := r.LeaveAll("a")
	if !reflect.DeepEqual(left, []int64{1, 3}) {
		t.Errorf("LeaveAll() = %v, want [1 3]", left)
	}
	if r.IsMember(1, "a") || r.IsMember(3, "a") {
		t.Error("Handle should be gone from every room")
	}
	if !r.IsMember(1, "b") {
		t.Error("Other members should remain")
	}
	if r.Count() != 1 {
		t.Errorf("Expected 1 room left, got %d", r.Count())
	}
	if len(r.SessionsOf("a")) != 0 {
		t.Error("Reverse index should be cleared")
	}
	if len(r.LeaveAll("a")) != 0 {
		t.Error("Second LeaveAll should be empty")
	}
}

func TestTyping_Dedup(t *testing.T) {
	ty := NewTyping()

	if !ty.Start(42, 1) {
		t.Error("First start should change state")
	}
	if ty.Start(42, 1) {
		t.Error("Second start should not change state")
	}
	if got := ty.Typing(42); !reflect.DeepEqual(got, []int64{1}) {
		t.Errorf("Typing(42) = %v", got)
	}

	if !ty.Stop(42, 1) {
		t.Error("Stop should change state")
	}
	if ty.Stop(42, 1) {
		t.Error("Second stop should not change state")
	}
	if ty.IsTyping(42, 1) || len(ty.Typing(42)) != 0 {
		t.Error("Identity should no longer be typing")
	}
}

func TestTyping_StopUnknown(t *testing.T) {
	ty := NewTyping()
	if ty.Stop(1, 1) {
		t.Error("Stop on empty tracker should not change state")
	}
}

func TestTyping_StopAll(t *testing.T) {
	ty := NewTyping()
	ty.Start(43, 1)
	ty.Start(42, 1)
	ty.Start(42, 2)

	if got := ty.StopAll(1); !reflect.DeepEqual(got, []int64{42, 43}) {
		t.Errorf("StopAll(1) = %v", got)
	}
	if ty.IsTyping(42, 1) || ty.IsTyping(43, 1) {
		t.Error("Identity 1 should not be typing anywhere")
	}
	if got := ty.Typing(42); !reflect.DeepEqual(got, []int64{2}) {
		t.Errorf("Other typists should remain, got %v", got)
	}
	if got := ty.StopAll(1); len(got) != 0 {
		t.Errorf("Second StopAll should be empty, got %v", got)
	}
}

func TestTrackers_ConcurrentReaders(t *testing.T) {
	p := NewPresence()
	r := NewRooms()
	ty := NewTyping()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			p.Register(int64(i%5), "h")
			r.Join(int64(i%3), "h")
			ty.Start(int64(i%3), int64(i%5))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = p.Count()
			_ = r.Count()
			_ = ty.Typing(int64(i % 3))
		}
	}()
	wg.Wait()
}
