package scanq_test

import (
	"testing"

	"github.com/retrodos/mzretools/address"
	"github.com/retrodos/mzretools/scanq"
)

func mustAddr(t *testing.T, seg, off uint16) address.Address {
	t.Helper()
	return address.Address{Segment: seg, Offset: off}
}

func newQueue(t *testing.T) *scanq.Queue {
	t.Helper()
	origin := mustAddr(t, 0x1000, 0)
	seed := scanq.Destination{Address: origin, RoutineIdx: 1}
	return scanq.New(origin, 0x100, seed, "start")
}

func TestNextPointDrainsFIFOOrder(t *testing.T) {
	q := newQueue(t)
	first := q.NextPoint()
	if first.RoutineIdx != 1 {
		t.Fatalf("first point routine = %d, want 1", first.RoutineIdx)
	}
	if !q.Empty() {
		t.Fatal("expected queue empty after draining seed")
	}
}

func TestSaveCallCreatesNewRoutine(t *testing.T) {
	q := newQueue(t)
	q.NextPoint()
	dest := mustAddr(t, 0x1000, 0x20)
	if !q.SaveCall(dest, scanq.RegisterState{}, true, "sub_1020") {
		t.Fatal("expected SaveCall to succeed on first call")
	}
	if q.RoutineCount() != 2 {
		t.Fatalf("RoutineCount() = %d, want 2", q.RoutineCount())
	}
	if q.SaveCall(dest, scanq.RegisterState{}, true, "sub_1020") {
		t.Fatal("expected second SaveCall to the same destination to be rejected")
	}
}

func TestSaveJumpRequiresCurrentRoutine(t *testing.T) {
	q := newQueue(t)
	cur := q.NextPoint()
	if cur.RoutineIdx != 1 {
		t.Fatalf("current routine = %d, want 1", cur.RoutineIdx)
	}
	dest := mustAddr(t, 0x1000, 0x10)
	if !q.SaveJump(dest, scanq.RegisterState{}) {
		t.Fatal("expected SaveJump to succeed")
	}
	next := q.NextPoint()
	if next.IsCall {
		t.Fatal("jump destination should not be a call")
	}
	if !next.Address.Equal(dest) {
		t.Fatalf("next address = %s, want %s", next.Address, dest)
	}
}

func TestSetAndClearRoutineIdx(t *testing.T) {
	q := newQueue(t)
	q.NextPoint()
	start := mustAddr(t, 0x1000, 0)
	if err := q.SetRoutineIdx(start, 4, 1); err != nil {
		t.Fatalf("SetRoutineIdx: %v", err)
	}
	if q.RoutineIdxAt(mustAddr(t, 0x1000, 2)) != 1 {
		t.Fatal("expected byte at offset 2 to be claimed by routine 1")
	}
	if err := q.ClearRoutineIdx(start); err != nil {
		t.Fatalf("ClearRoutineIdx: %v", err)
	}
	if q.RoutineIdxAt(mustAddr(t, 0x1000, 2)) != scanq.NullRoutine {
		t.Fatal("expected routine claim cleared")
	}
}

func TestGetUnvisitedCoalescesRanges(t *testing.T) {
	q := newQueue(t)
	q.NextPoint()
	start := mustAddr(t, 0x1000, 0)
	if err := q.SetRoutineIdx(start, 0x10, 1); err != nil {
		t.Fatalf("SetRoutineIdx: %v", err)
	}
	unvisited := q.GetUnvisited()
	if len(unvisited) != 1 {
		t.Fatalf("len(unvisited) = %d, want 1", len(unvisited))
	}
	if !unvisited[0].Begin.Equal(mustAddr(t, 0x1000, 0x10)) {
		t.Errorf("unvisited[0].Begin = %s, want 1000:0010", unvisited[0].Begin)
	}
}

func TestIsEntrypoint(t *testing.T) {
	q := newQueue(t)
	origin := mustAddr(t, 0x1000, 0)
	if q.IsEntrypoint(origin) != 1 {
		t.Fatal("expected seed address to be registered as entrypoint 1")
	}
	if q.IsEntrypoint(mustAddr(t, 0x1000, 0x99)) != scanq.NullRoutine {
		t.Fatal("expected unrelated address to not be an entrypoint")
	}
}

func TestHasPointDistinguishesCallAndJump(t *testing.T) {
	q := newQueue(t)
	q.NextPoint()
	dest := mustAddr(t, 0x1000, 0x30)
	q.SaveCall(dest, scanq.RegisterState{}, true, "sub_1030")
	if !q.HasPoint(dest, true) {
		t.Fatal("expected HasPoint(dest, true) after SaveCall")
	}
	if q.HasPoint(dest, false) {
		t.Fatal("did not expect HasPoint(dest, false) to match a call entry")
	}
}
