package address

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Block is an inclusive [Begin, End] byte range (spec §3.1).
type Block struct {
	Begin, End Address
}

// InvalidBlock returns the canonical invalid block (begin after end).
func InvalidBlock() Block {
	return Block{Begin: Address{Segment: uint16((MemTotal - 1) >> SegmentShift), Offset: 0xf}, End: Address{}}
}

// NewBlock builds a block from two addresses.
func NewBlock(begin, end Address) Block { return Block{Begin: begin, End: end} }

// Size returns end-begin+1, or 0 if the block is invalid.
func (b Block) Size() uint32 {
	if !b.IsValid() {
		return 0
	}
	return b.End.Sub(b.Begin) + 1
}

// IsValid reports whether both ends are valid and begin <= end.
func (b Block) IsValid() bool {
	return b.Begin.IsValid() && b.End.IsValid() && b.Begin.LessEqual(b.End)
}

// InSegment reports whether both ends fit within seg's 16-bit offset range.
func (b Block) InSegment(seg uint16) bool { return b.Begin.InSegment(seg) && b.End.InSegment(seg) }

// Contains reports whether addr lies within [Begin, End].
func (b Block) Contains(addr Address) bool {
	return !addr.Less(b.Begin) && !b.End.Less(addr)
}

// Intersects reports whether the two blocks share at least one byte.
func (b Block) Intersects(other Block) bool {
	if !b.IsValid() || !other.IsValid() {
		return false
	}
	maxBegin := maxAddr(b.Begin, other.Begin)
	minEnd := minAddr(b.End, other.End)
	return maxBegin.LessEqual(minEnd)
}

// Adjacent reports whether the two blocks are disjoint but directly
// consecutive (no gap, no overlap).
func (b Block) Adjacent(other Block) bool {
	if !b.IsValid() {
		return false
	}
	maxBegin := maxAddr(b.Begin, other.Begin)
	minEnd := minAddr(b.End, other.End)
	return maxBegin.ToLinear() > minEnd.ToLinear() && maxBegin.ToLinear()-minEnd.ToLinear() == 1
}

// Coalesce returns the union of b and other when they intersect or are
// adjacent; otherwise it returns b unchanged.
func (b Block) Coalesce(other Block) Block {
	if !b.Intersects(other) && !b.Adjacent(other) {
		return b
	}
	return Block{Begin: minAddr(b.Begin, other.Begin), End: maxAddr(b.End, other.End)}
}

// Cut returns self \ other as 0, 1 or 2 non-overlapping blocks.
func (b Block) Cut(other Block) []Block {
	if !b.IsValid() || !other.IsValid() {
		return nil
	}
	var ret []Block
	switch {
	case other.Begin.Less(b.Begin):
		switch {
		case other.End.Less(b.Begin):
			ret = append(ret, b)
		case other.End.Less(b.End):
			ret = append(ret, Block{Begin: other.End.Add(1), End: b.End})
		}
	case other.Begin.LessEqual(b.End):
		if other.Begin.ToLinear() > b.Begin.ToLinear() {
			ret = append(ret, Block{Begin: b.Begin, End: other.Begin.Add(-1)})
		}
		if other.End.Less(b.End) {
			ret = append(ret, Block{Begin: other.End.Add(1), End: b.End})
		}
	default:
		ret = append(ret, b)
	}
	return ret
}

// SplitSegments partitions a block that straddles one or more 64 KB
// boundaries into per-segment pieces, each wholly contained in one
// segment, preserving total size.
func (b Block) SplitSegments() ([]Block, error) {
	if !b.IsValid() {
		return nil, fmt.Errorf("unable to split block into segments: %s", b)
	}
	var ret []Block
	span := b.Size()
	start := b.Begin
	for span != 0 {
		maxSpan := uint32(OffsetMax) - uint32(start.Offset)
		piece := Block{Begin: start}
		if span > maxSpan {
			piece.End = Address{Segment: start.Segment, Offset: OffsetMax}
			start = Address{Segment: start.Segment + 0x1000, Offset: 0}
		} else {
			piece.End = Address{Segment: start.Segment, Offset: start.Offset + uint16(span-1)}
		}
		ret = append(ret, piece)
		span -= piece.Size()
	}
	return ret, nil
}

// Relocate advances both ends by reloc.
func (b Block) Relocate(reloc uint16) (Block, error) {
	begin, err := b.Begin.Relocate(reloc)
	if err != nil {
		return Block{}, err
	}
	end, err := b.End.Relocate(reloc)
	if err != nil {
		return Block{}, err
	}
	return Block{Begin: begin, End: end}, nil
}

// Move re-expresses both ends relative to seg.
func (b Block) Move(seg uint16) (Block, error) {
	begin, err := b.Begin.Move(seg)
	if err != nil {
		return Block{}, err
	}
	end, err := b.End.Move(seg)
	if err != nil {
		return Block{}, err
	}
	return Block{Begin: begin, End: end}, nil
}

// String renders "begin-end/size".
func (b Block) String() string {
	if !b.IsValid() {
		return "[invalid]"
	}
	return fmt.Sprintf("%s-%s/%06x", b.Begin.Brief(), b.End.Brief(), b.Size())
}

func maxAddr(a, b Address) Address {
	if a.Less(b) {
		return b
	}
	return a
}

func minAddr(a, b Address) Address {
	if a.Less(b) {
		return a
	}
	return b
}

// SortBlocks orders blocks by begin address, ascending, in place.
func SortBlocks(blocks []Block) {
	slices.SortFunc(blocks, func(a, b Block) bool { return a.Begin.Less(b.Begin) })
}
