package signature_test

import (
	"path/filepath"
	"testing"

	"github.com/retrodos/mzretools/address"
	"github.com/retrodos/mzretools/codemap"
	"github.com/retrodos/mzretools/memory"
	"github.com/retrodos/mzretools/signature"
)

func seg(off uint16) address.Address { return address.Address{Segment: 0x1000, Offset: off} }

func buildMap(t *testing.T, img *memory.Image, code []byte) *codemap.CodeMap {
	t.Helper()
	base := seg(0).ToLinear()
	if err := img.WriteBuf(base, code); err != nil {
		t.Fatalf("WriteBuf: %v", err)
	}
	m := codemap.New(0x1000, uint32(len(code)))
	r := codemap.NewRoutine("sub_1", address.NewBlock(seg(0), seg(uint16(len(code)-1))))
	r.SetFlag("complete", true)
	if err := m.AddRoutine(r); err != nil {
		t.Fatalf("AddRoutine: %v", err)
	}
	return m
}

func TestBuildAndSignatureShape(t *testing.T) {
	img := memory.New()
	// mov ax, 1 ; mov bx, 2 ; ret
	m := buildMap(t, img, []byte{0xb8, 0x01, 0x00, 0xbb, 0x02, 0x00, 0xc3})
	lib, err := signature.Build(m, img, 1, 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if lib.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", lib.Count())
	}
	item, _ := lib.Get(0)
	if item.Size() != 3 {
		t.Fatalf("Size() = %d, want 3", item.Size())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	img := memory.New()
	m := buildMap(t, img, []byte{0xb8, 0x01, 0x00, 0xc3})
	lib, err := signature.Build(m, img, 1, 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	path := filepath.Join(t.TempDir(), "out.sig")
	if err := lib.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := signature.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Count() != lib.Count() {
		t.Fatalf("Count() = %d, want %d", loaded.Count(), lib.Count())
	}
	a, _ := lib.Get(0)
	b, _ := loaded.Get(0)
	if len(a.Signature) != len(b.Signature) {
		t.Fatalf("signature length mismatch after round trip: %d vs %d", len(a.Signature), len(b.Signature))
	}
	for i := range a.Signature {
		if a.Signature[i] != b.Signature[i] {
			t.Errorf("signature[%d] = %x, want %x", i, b.Signature[i], a.Signature[i])
		}
	}
}

func TestEditDistanceIdentical(t *testing.T) {
	a := []signature.Signature{1, 2, 3}
	if d := signature.EditDistance(a, a, 5); d != 0 {
		t.Errorf("EditDistance(a, a) = %d, want 0", d)
	}
}

func TestEditDistanceExceedsThreshold(t *testing.T) {
	a := []signature.Signature{1, 2, 3, 4, 5}
	b := []signature.Signature{9, 9, 9, 9, 9}
	if d := signature.EditDistance(a, b, 2); d != signature.MaxDistance {
		t.Errorf("EditDistance() = %d, want MaxDistance (exceeds threshold 2)", d)
	}
}

func TestFindDuplicatesUsesRatioThreshold(t *testing.T) {
	libImg := memory.New()
	libCode := append(bytesRepeat(0x90, 10), 0xc3) // 10x nop ; ret
	libMap := buildMap(t, libImg, libCode)
	lib, err := signature.Build(libMap, libImg, 1, 0)
	if err != nil {
		t.Fatalf("Build(lib): %v", err)
	}

	candImg := memory.New()
	candCode := append([]byte{0x58, 0x58}, append(bytesRepeat(0x90, 8), 0xc3)...) // pop ax x2 ; 8x nop ; ret
	candMap := buildMap(t, candImg, candCode)
	cand, err := signature.Build(candMap, candImg, 1, 0)
	if err != nil {
		t.Fatalf("Build(cand): %v", err)
	}

	// 11 instructions on both sides, edit distance 2 (two substitutions).
	if got := signature.EditDistance(lib.Items()[0].Signature, cand.Items()[0].Signature, 11); got != 2 {
		t.Fatalf("EditDistance = %d, want 2", got)
	}

	// thresh=10 -> bound = max(11*10/100, 1) = 1, below the distance: no match.
	if dups := signature.FindDuplicates(lib, cand.Items(), 1, 10); len(dups) != 0 {
		t.Fatalf("FindDuplicates(thresh=10) = %+v, want none (bound 1 < distance 2)", dups)
	}
	// thresh=30 -> bound = max(11*30/100, 1) = 3, at or above the distance: match.
	dups := signature.FindDuplicates(lib, cand.Items(), 1, 30)
	if len(dups) != 1 {
		t.Fatalf("FindDuplicates(thresh=30) = %+v, want one match (bound 3 >= distance 2)", dups)
	}
	if dups[0].Distance != 2 {
		t.Errorf("Distance = %d, want 2", dups[0].Distance)
	}
}

func bytesRepeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestFindDuplicatesMatchesIdenticalSignature(t *testing.T) {
	img := memory.New()
	m := buildMap(t, img, []byte{0xb8, 0x01, 0x00, 0xc3})
	lib, err := signature.Build(m, img, 1, 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	dups := signature.FindDuplicates(lib, lib.Items(), 1, 0)
	if len(dups) != 1 {
		t.Fatalf("len(dups) = %d, want 1", len(dups))
	}
}
