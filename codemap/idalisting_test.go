package codemap_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/retrodos/mzretools/address"
	"github.com/retrodos/mzretools/codemap"
)

const sampleListing = `seg000:0000                  segment byte public 'CODE' use16
seg000:0000                  assume cs:seg000
seg000:0100 start           proc near
seg000:0100                  mov ax, 1
seg000:0103                  call sub_120
seg000:0106                  retn
seg000:0106 start           endp
seg000:0120 sub_120         proc near
seg000:0120                  push bp
seg000:0121                  pop bp
seg000:0122                  retn
seg000:0122 sub_120         endp
seg000:0130 aMsg            db 'hi',0
seg000:0140                  db ?
seg000:0140                  ends
`

func writeListing(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.lst")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadIDARecognizesDirectives(t *testing.T) {
	path := writeListing(t, sampleListing)
	m, err := codemap.LoadIDA(path, 0x1000)
	if err != nil {
		t.Fatalf("LoadIDA: %v", err)
	}
	if !m.IDA {
		t.Fatalf("m.IDA = false, want true")
	}
	if m.RoutineCount() != 2 {
		t.Fatalf("RoutineCount = %d, want 2", m.RoutineCount())
	}
	start, err := m.GetRoutineByName("start")
	if err != nil {
		t.Fatalf("GetRoutineByName(start): %v", err)
	}
	wantExtents := address.NewBlock(
		address.Address{Segment: 0x1000, Offset: 0x0100},
		address.Address{Segment: 0x1000, Offset: 0x0106},
	)
	if start.Extents != wantExtents {
		t.Errorf("start.Extents = %s, want %s", start.Extents, wantExtents)
	}
	if _, err := m.GetRoutineByName("sub_120"); err != nil {
		t.Errorf("GetRoutineByName(sub_120): %v", err)
	}
	if got, want := m.VariableCount(), 1; got != want {
		t.Fatalf("VariableCount = %d, want %d", got, want)
	}
	v, err := m.GetVariableByName("aMsg")
	if err != nil {
		t.Fatalf("GetVariableByName(aMsg): %v", err)
	}
	if v.Addr.Offset != 0x0130 {
		t.Errorf("aMsg.Addr.Offset = %#x, want 0x130", v.Addr.Offset)
	}
	if segs := m.Segments(); len(segs) != 1 || segs[0].Type != address.SegCode {
		t.Errorf("Segments() = %+v, want one CODE segment", segs)
	}
}

func TestLoadIDASkipsOrphanEndp(t *testing.T) {
	path := writeListing(t, "seg000:0100 orphan          endp\n")
	m, err := codemap.LoadIDA(path, 0x1000)
	if err != nil {
		t.Fatalf("LoadIDA: %v", err)
	}
	if m.RoutineCount() != 0 {
		t.Errorf("RoutineCount = %d, want 0", m.RoutineCount())
	}
}
