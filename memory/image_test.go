package memory_test

import (
	"bytes"
	"testing"

	"github.com/retrodos/mzretools/address"
	"github.com/retrodos/mzretools/memory"
)

func TestReadWriteWord(t *testing.T) {
	img := memory.New()
	if err := img.WriteWord(0x100, 0xabcd); err != nil {
		t.Fatal(err)
	}
	v, err := img.ReadWord(0x100)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0xabcd {
		t.Errorf("ReadWord() = %04x, want abcd", v)
	}
}

func TestOutOfRangeAccess(t *testing.T) {
	img := memory.New()
	if _, err := img.ReadByte(address.MemTotal); err == nil {
		t.Fatal("expected out-of-range error")
	}
	if err := img.WriteByte(address.MemTotal, 1); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestFindPattern(t *testing.T) {
	img := memory.New()
	if err := img.WriteBuf(0x200, []byte{0x01, 0x02, 0x03, 0x04}); err != nil {
		t.Fatal(err)
	}
	pattern := []memory.Pattern{
		{Byte: 0x01}, {Wildcard: true}, {Byte: 0x03},
	}
	block := address.NewBlock(mustAddr(0), mustAddr(0x1000))
	addr, ok := img.Find(pattern, block)
	if !ok {
		t.Fatal("expected pattern to be found")
	}
	if addr.ToLinear() != 0x200 {
		t.Errorf("Find() = %v, want linear 0x200", addr)
	}
}

func TestDumpToWriter(t *testing.T) {
	img := memory.New()
	if err := img.WriteBuf(0, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	block := address.NewBlock(mustAddr(0), mustAddr(3))
	if err := img.Dump(block, "", &buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{1, 2, 3, 4}) {
		t.Errorf("Dump() = %v", buf.Bytes())
	}
}

func mustAddr(linear uint32) address.Address {
	a, err := address.FromLinear(linear)
	if err != nil {
		panic(err)
	}
	return a
}
