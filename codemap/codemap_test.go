package codemap_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/retrodos/mzretools/address"
	"github.com/retrodos/mzretools/codemap"
)

func addr(seg, off uint16) address.Address { return address.Address{Segment: seg, Offset: off} }

func TestAddRoutineRejectsCollision(t *testing.T) {
	m := codemap.New(0x1000, 0x1000)
	r1 := codemap.NewRoutine("sub_1", address.NewBlock(addr(0x1000, 0), addr(0x1000, 0x10)))
	if err := m.AddRoutine(r1); err != nil {
		t.Fatalf("AddRoutine(r1): %v", err)
	}
	r2 := codemap.NewRoutine("sub_2", address.NewBlock(addr(0x1000, 0x08), addr(0x1000, 0x20)))
	if err := m.AddRoutine(r2); err == nil {
		t.Fatal("expected collision error adding overlapping routine")
	}
}

func TestRoutineFlagImplication(t *testing.T) {
	r := codemap.NewRoutine("sub_1", address.NewBlock(addr(0, 0), addr(0, 0xf)))
	if err := r.SetFlag("external", true); err != nil {
		t.Fatalf("SetFlag(external): %v", err)
	}
	if !r.Ignore {
		t.Error("expected external to imply ignore")
	}
}

func TestFindByEntrypoint(t *testing.T) {
	m := codemap.New(0, 0x100)
	r := codemap.NewRoutine("sub_1", address.NewBlock(addr(0, 0x20), addr(0, 0x30)))
	if err := m.AddRoutine(r); err != nil {
		t.Fatalf("AddRoutine: %v", err)
	}
	got, err := m.FindByEntrypoint(addr(0, 0x20))
	if err != nil {
		t.Fatalf("FindByEntrypoint: %v", err)
	}
	if got.Name != "sub_1" {
		t.Errorf("got routine %q, want sub_1", got.Name)
	}
	if _, err := m.FindByEntrypoint(addr(0, 0x99)); err == nil {
		t.Fatal("expected error for unknown entrypoint")
	}
}

func TestGetSummaryAccountsAllBytes(t *testing.T) {
	m := codemap.New(0, 0x30)
	complete := codemap.NewRoutine("sub_1", address.NewBlock(addr(0, 0), addr(0, 0xf)))
	complete.SetFlag("complete", true)
	ignored := codemap.NewRoutine("sub_2", address.NewBlock(addr(0, 0x10), addr(0, 0x1f)))
	ignored.SetFlag("ignore", true)
	if err := m.AddRoutine(complete); err != nil {
		t.Fatalf("AddRoutine(complete): %v", err)
	}
	if err := m.AddRoutine(ignored); err != nil {
		t.Fatalf("AddRoutine(ignored): %v", err)
	}
	m.SetUnclaimed([]address.Block{address.NewBlock(addr(0, 0x20), addr(0, 0x2f))})
	s := m.GetSummary()
	if s.UnaccountedSize != 0 {
		t.Errorf("UnaccountedSize = %d, want 0", s.UnaccountedSize)
	}
	if s.CompletedSize != 0x10 || s.IgnoredSize != 0x10 || s.UnclaimedSize != 0x10 {
		t.Errorf("unexpected summary: %+v", s)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	m := codemap.New(0, 0x20)
	m.AddSegment(address.Segment{Name: "_TEXT", Type: address.SegCode, Address: 0x1000})
	r := codemap.NewRoutine("start", address.NewBlock(addr(0x1000, 0), addr(0x1000, 0xf)))
	r.SetFlag("complete", true)
	if err := m.AddRoutine(r); err != nil {
		t.Fatalf("AddRoutine: %v", err)
	}
	m.AddVariable(codemap.Variable{Name: "g_flag", Addr: addr(0x1000, 0x20)})

	path := filepath.Join(t.TempDir(), "out.map")
	if err := m.Save(path, 0, false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := m.Save(path, 0, false); err == nil {
		t.Fatal("expected second Save without overwrite to fail")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected map file to exist: %v", err)
	}

	loaded, err := codemap.Load(path, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.RoutineCount() != 1 {
		t.Fatalf("RoutineCount() = %d, want 1", loaded.RoutineCount())
	}
	got, err := loaded.GetRoutineByName("start")
	if err != nil {
		t.Fatalf("GetRoutineByName: %v", err)
	}
	if !got.Complete {
		t.Error("expected loaded routine to carry the complete flag")
	}
}

func TestMatchCountsSharedEntrypoints(t *testing.T) {
	a := codemap.New(0, 0x20)
	b := codemap.New(0, 0x20)
	r1 := codemap.NewRoutine("sub_1", address.NewBlock(addr(0, 0), addr(0, 0xf)))
	r2 := codemap.NewRoutine("sub_1", address.NewBlock(addr(0, 0), addr(0, 0xf)))
	a.AddRoutine(r1)
	b.AddRoutine(r2)
	if n := a.Match(b, true); n != 1 {
		t.Errorf("Match(onlyEntry) = %d, want 1", n)
	}
}
