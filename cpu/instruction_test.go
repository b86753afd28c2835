package cpu_test

import (
	"testing"

	"github.com/retrodos/mzretools/address"
	"github.com/retrodos/mzretools/cpu"
)

func decodeAt(t *testing.T, data []byte) cpu.Instruction {
	t.Helper()
	ins, err := cpu.Decode(address.Address{}, data)
	if err != nil {
		t.Fatalf("Decode(%x) error: %v", data, err)
	}
	return ins
}

func TestDecodeMovRegImm(t *testing.T) {
	// mov ax, 0x1234
	ins := decodeAt(t, []byte{0xb8, 0x34, 0x12})
	if ins.Class != cpu.ClsMov {
		t.Errorf("class = %v, want mov", ins.Class)
	}
	if ins.Op1.Type != cpu.OprRegAX {
		t.Errorf("op1 = %v, want RegAX", ins.Op1.Type)
	}
	if ins.Op2.Type != cpu.OprImm16 || ins.Op2.Imm != 0x1234 {
		t.Errorf("op2 = %v/%d, want Imm16/0x1234", ins.Op2.Type, ins.Op2.Imm)
	}
	if ins.Length != 3 {
		t.Errorf("length = %d, want 3", ins.Length)
	}
}

func TestDecodeModrmMemory(t *testing.T) {
	// add [bx+si], ax  (00 is Eb,Gb but we want word: 01 Ev,Gv, modrm 00 000 000 = mod0 reg(ax)=000 mem(bx+si)=000)
	ins := decodeAt(t, []byte{0x01, 0x00})
	if ins.Class != cpu.ClsAdd {
		t.Errorf("class = %v, want add", ins.Class)
	}
	if ins.Op1.Type != cpu.OprMemBxSi {
		t.Errorf("op1 = %v, want OprMemBxSi", ins.Op1.Type)
	}
	if ins.Op2.Type != cpu.OprRegAX {
		t.Errorf("op2 = %v, want OprRegAX", ins.Op2.Type)
	}
	if ins.Length != 2 {
		t.Errorf("length = %d, want 2", ins.Length)
	}
}

func TestDecodeGroupOpcode(t *testing.T) {
	// grp1 Eb,Ib: cmp byte [bx], 0x05 -> 80 /7 ib; modrm 00 111 111 = mod0 reg7(cmp) mem7(bx)
	ins := decodeAt(t, []byte{0x80, 0b00111111, 0x05})
	if ins.Class != cpu.ClsCmp {
		t.Errorf("class = %v, want cmp", ins.Class)
	}
	if ins.Op1.Type != cpu.OprMemBx {
		t.Errorf("op1 = %v, want OprMemBx", ins.Op1.Type)
	}
	if ins.Op2.Type != cpu.OprImm8 || ins.Op2.Imm != 5 {
		t.Errorf("op2 = %v/%d, want Imm8/5", ins.Op2.Type, ins.Op2.Imm)
	}
}

func TestDecodeNearJump(t *testing.T) {
	// jz +0x10
	ins := decodeAt(t, []byte{0x74, 0x10})
	if !ins.IsJump() || !ins.IsNearBranch() {
		t.Fatal("expected near conditional jump")
	}
	off, ok := ins.RelativeOffset()
	if !ok || off != 0x10 {
		t.Errorf("RelativeOffset() = %d, %v, want 16, true", off, ok)
	}
}

func TestDecodeSegmentPrefix(t *testing.T) {
	// mov ax, es:[0x10]  -> 26 (es prefix) 8b (mov Gv,Ev) 06 (mod0 reg0 mem110=direct addr) 10 00
	ins := decodeAt(t, []byte{0x26, 0x8b, 0x06, 0x10, 0x00})
	if ins.Prefix != cpu.PrfSegES {
		t.Errorf("prefix = %v, want PrfSegES", ins.Prefix)
	}
	if ins.Class != cpu.ClsMov {
		t.Errorf("class = %v, want mov", ins.Class)
	}
	if ins.Op2.Type != cpu.OprMemOff16 || ins.Op2.Offset != 0x10 {
		t.Errorf("op2 = %v/%d, want OprMemOff16/0x10", ins.Op2.Type, ins.Op2.Offset)
	}
}

func TestMatchFullAndDiffVal(t *testing.T) {
	a := decodeAt(t, []byte{0xb8, 0x34, 0x12}) // mov ax, 0x1234
	b := decodeAt(t, []byte{0xb8, 0x34, 0x12}) // identical
	if a.Match(b) != cpu.MatchFull {
		t.Errorf("Match() = %v, want MatchFull", a.Match(b))
	}
	c := decodeAt(t, []byte{0xb8, 0xff, 0xff}) // mov ax, 0xffff
	if a.Match(c) != cpu.MatchDiffVal {
		t.Errorf("Match() = %v, want MatchDiffVal", a.Match(c))
	}
}

func TestMatchDiffValOnPrefix(t *testing.T) {
	a := decodeAt(t, []byte{0x89, 0x07})       // mov [bx], ax
	b := decodeAt(t, []byte{0x26, 0x89, 0x07}) // mov es:[bx], ax
	if a.Match(b) != cpu.MatchDiffVal {
		t.Errorf("Match() = %v, want MatchDiffVal (same operands, differing prefix)", a.Match(b))
	}
}

func TestMatchMismatchOnClass(t *testing.T) {
	a := decodeAt(t, []byte{0xb8, 0x00, 0x00}) // mov ax, 0
	b := decodeAt(t, []byte{0x90})             // nop
	if a.Match(b) != cpu.MatchMismatch {
		t.Errorf("Match() = %v, want MatchMismatch", a.Match(b))
	}
}

func TestDecodeInvalidOpcode(t *testing.T) {
	if _, err := cpu.Decode(address.Address{}, []byte{0x0f}); err == nil {
		t.Fatal("expected error decoding 0x0f")
	}
}

func TestDecodeTruncated(t *testing.T) {
	if _, err := cpu.Decode(address.Address{}, nil); err == nil {
		t.Fatal("expected error decoding empty input")
	}
}
