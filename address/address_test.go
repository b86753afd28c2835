package address_test

import (
	"testing"

	"github.com/retrodos/mzretools/address"
)

func TestToLinear(t *testing.T) {
	a := address.Address{Segment: 0x06EF, Offset: 0x1234}
	if got := a.ToLinear(); got != 0x08124 {
		t.Errorf("ToLinear() = 0x%x, want 0x08124", got)
	}
}

func TestNormalize(t *testing.T) {
	a := address.Address{Segment: 0x06EF, Offset: 0x1234}
	n := a.Normalize()
	if n.Segment != 0x0812 || n.Offset != 0x0004 {
		t.Errorf("Normalize() = %04x:%04x, want 0812:0004", n.Segment, n.Offset)
	}
	if n.ToLinear() != a.ToLinear() {
		t.Errorf("Normalize() changed linear value: %x != %x", n.ToLinear(), a.ToLinear())
	}
}

func TestFromLinearRoundTrip(t *testing.T) {
	tests := []uint32{0, 0x100, 0x08124, MemTotalMinusOne()}
	for _, linear := range tests {
		a, err := address.FromLinear(linear)
		if err != nil {
			t.Fatalf("FromLinear(0x%x): %v", linear, err)
		}
		n := a.Normalize()
		if n.ToLinear() != a.ToLinear() {
			t.Errorf("FromLinear(0x%x).Normalize() linear mismatch", linear)
		}
	}
}

func MemTotalMinusOne() uint32 { return address.MemTotal - 1 }

func TestFromLinearOutOfRange(t *testing.T) {
	_, err := address.FromLinear(address.MemTotal)
	if err == nil {
		t.Fatal("expected error for out-of-range linear address")
	}
}

func TestRelocateRebase(t *testing.T) {
	a := address.Address{Segment: 0x0234, Offset: 0x000a}
	r, err := a.Relocate(0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if r.Segment != 0x1234 {
		t.Errorf("Relocate() segment = %04x, want 1234", r.Segment)
	}
	back, err := r.Rebase(0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if back != a {
		t.Errorf("Rebase() = %v, want %v", back, a)
	}
}

func TestRelocateOverflow(t *testing.T) {
	a := address.Address{Segment: 0xfff0, Offset: 0}
	if _, err := a.Relocate(0x1000); err == nil {
		t.Fatal("expected overflow error")
	}
}

func TestMove(t *testing.T) {
	a := address.Address{Segment: 0x1234, Offset: 0x000a}
	m, err := a.Move(0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if m.Segment != 0x1000 || m.ToLinear() != a.ToLinear() {
		t.Errorf("Move() = %v, linear changed", m)
	}
}

func TestMoveUnreachable(t *testing.T) {
	a := address.Address{Segment: 0x0000, Offset: 0x0010}
	if _, err := a.Move(0xffff); err == nil {
		t.Fatal("expected move failure for unreachable segment")
	}
}

func TestParseFarAddress(t *testing.T) {
	a, err := address.Parse("1234:5678")
	if err != nil {
		t.Fatal(err)
	}
	if a.Segment != 0x1234 || a.Offset != 0x5678 {
		t.Errorf("Parse() = %v", a)
	}
}
