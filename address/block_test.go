package address_test

import (
	"testing"

	"github.com/retrodos/mzretools/address"
)

func blk(begin, end uint32) address.Block {
	b, _ := address.FromLinear(begin)
	e, _ := address.FromLinear(end)
	return address.NewBlock(b, e)
}

func TestBlockCutSelf(t *testing.T) {
	b := blk(0x100, 0x200)
	if got := b.Cut(b); len(got) != 0 {
		t.Errorf("Cut(self) = %v, want empty", got)
	}
}

func TestBlockCutDisjoint(t *testing.T) {
	b1 := blk(0x100, 0x200)
	b2 := blk(0x300, 0x400)
	got := b1.Cut(b2)
	if len(got) != 1 || got[0] != b1 {
		t.Errorf("Cut(disjoint) = %v, want [b1]", got)
	}
}

func TestBlockCutOverlapMiddle(t *testing.T) {
	b1 := blk(0x100, 0x400)
	b2 := blk(0x200, 0x300)
	got := b1.Cut(b2)
	if len(got) != 2 {
		t.Fatalf("Cut(middle) = %v, want 2 pieces", got)
	}
	if got[0].End.ToLinear() != 0x1ff || got[1].Begin.ToLinear() != 0x301 {
		t.Errorf("Cut(middle) = %v", got)
	}
}

func TestBlockIntersectsAdjacent(t *testing.T) {
	b1 := blk(0x100, 0x1ff)
	b2 := blk(0x200, 0x2ff)
	if b1.Intersects(b2) {
		t.Error("adjacent blocks should not intersect")
	}
	if !b1.Adjacent(b2) {
		t.Error("expected adjacent blocks to be adjacent")
	}
	c := b1.Coalesce(b2)
	if c.Begin.ToLinear() != 0x100 || c.End.ToLinear() != 0x2ff {
		t.Errorf("Coalesce() = %v", c)
	}
}

func TestBlockSplitSegments(t *testing.T) {
	begin, _ := address.FromLinear(0x0fff0)
	end, _ := address.FromLinear(0x100ff)
	b := address.NewBlock(begin, end)
	pieces, err := b.SplitSegments()
	if err != nil {
		t.Fatal(err)
	}
	var total uint32
	for _, p := range pieces {
		total += p.Size()
		if !p.IsValid() {
			t.Errorf("invalid piece %v", p)
		}
	}
	if total != b.Size() {
		t.Errorf("split total size = %d, want %d", total, b.Size())
	}
	if len(pieces) < 2 {
		t.Errorf("expected block straddling boundary to split into >= 2 pieces, got %d", len(pieces))
	}
}

func TestBlockInvalidEndBeforeBegin(t *testing.T) {
	begin, _ := address.FromLinear(0x200)
	end, _ := address.FromLinear(0x100)
	b := address.NewBlock(begin, end)
	if b.IsValid() {
		t.Error("block with end < begin should be invalid")
	}
	if got := b.Cut(blk(0, 0xffff)); got != nil {
		t.Errorf("Cut on invalid block should return nil, got %v", got)
	}
}
