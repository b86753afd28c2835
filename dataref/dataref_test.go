package dataref_test

import (
	"testing"

	"github.com/retrodos/mzretools/address"
	"github.com/retrodos/mzretools/codemap"
	"github.com/retrodos/mzretools/dataref"
	"github.com/retrodos/mzretools/memory"
)

func addr(off uint16) address.Address { return address.Address{Segment: 0x1000, Offset: off} }

func TestFindExactMemoryOperandMatch(t *testing.T) {
	// mov ax, [0010h]  (A1 10 00), ret
	code := []byte{0xa1, 0x10, 0x00, 0xc3}
	img := memory.New()
	if err := img.WriteBuf(addr(0).ToLinear(), code); err != nil {
		t.Fatalf("WriteBuf: %v", err)
	}
	m := codemap.New(0x1000, uint32(len(code)))
	r := codemap.NewRoutine("sub_1", address.NewBlock(addr(0), addr(uint16(len(code)-1))))
	r.SetFlag("complete", true)
	if err := m.AddRoutine(r); err != nil {
		t.Fatalf("AddRoutine: %v", err)
	}
	m.AddVariable(codemap.Variable{Name: "g_counter", Addr: addr(0x10)})

	refs, err := dataref.Find(m, img, dataref.Options{MaxDelta: 0})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("len(refs) = %d, want 1; refs=%+v", len(refs), refs)
	}
	if refs[0].VarName != "g_counter" || refs[0].Delta != 0 {
		t.Errorf("refs[0] = %+v, want VarName=g_counter Delta=0", refs[0])
	}
}

func TestFindSkipsExternalAndIgnoredRoutines(t *testing.T) {
	code := []byte{0xa1, 0x10, 0x00, 0xc3}
	img := memory.New()
	if err := img.WriteBuf(addr(0).ToLinear(), code); err != nil {
		t.Fatalf("WriteBuf: %v", err)
	}
	m := codemap.New(0x1000, uint32(len(code)))
	r := codemap.NewRoutine("sub_1", address.NewBlock(addr(0), addr(uint16(len(code)-1))))
	r.SetFlag("external", true)
	if err := m.AddRoutine(r); err != nil {
		t.Fatalf("AddRoutine: %v", err)
	}
	m.AddVariable(codemap.Variable{Name: "g_counter", Addr: addr(0x10)})

	refs, err := dataref.Find(m, img, dataref.Options{MaxDelta: 0})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(refs) != 0 {
		t.Fatalf("len(refs) = %d, want 0 for an external routine", len(refs))
	}
}

func TestFindMatchesWithinDeltaTolerance(t *testing.T) {
	// mov ax, [0012h] but variable sits at 0010h: 2 bytes off, within tolerance
	code := []byte{0xa1, 0x12, 0x00, 0xc3}
	img := memory.New()
	if err := img.WriteBuf(addr(0).ToLinear(), code); err != nil {
		t.Fatalf("WriteBuf: %v", err)
	}
	m := codemap.New(0x1000, uint32(len(code)))
	r := codemap.NewRoutine("sub_1", address.NewBlock(addr(0), addr(uint16(len(code)-1))))
	r.SetFlag("complete", true)
	if err := m.AddRoutine(r); err != nil {
		t.Fatalf("AddRoutine: %v", err)
	}
	m.AddVariable(codemap.Variable{Name: "g_buf", Addr: addr(0x10)})

	refs, err := dataref.Find(m, img, dataref.Options{MaxDelta: 4})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("len(refs) = %d, want 1; refs=%+v", len(refs), refs)
	}
	if refs[0].Delta != 2 {
		t.Errorf("Delta = %d, want 2", refs[0].Delta)
	}
}

func TestFindRejectsBeyondDeltaTolerance(t *testing.T) {
	code := []byte{0xa1, 0x12, 0x00, 0xc3}
	img := memory.New()
	if err := img.WriteBuf(addr(0).ToLinear(), code); err != nil {
		t.Fatalf("WriteBuf: %v", err)
	}
	m := codemap.New(0x1000, uint32(len(code)))
	r := codemap.NewRoutine("sub_1", address.NewBlock(addr(0), addr(uint16(len(code)-1))))
	r.SetFlag("complete", true)
	if err := m.AddRoutine(r); err != nil {
		t.Fatalf("AddRoutine: %v", err)
	}
	m.AddVariable(codemap.Variable{Name: "g_buf", Addr: addr(0x10)})

	refs, err := dataref.Find(m, img, dataref.Options{MaxDelta: 1})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(refs) != 0 {
		t.Fatalf("len(refs) = %d, want 0 beyond tolerance", len(refs))
	}
}
