// Package address implements the segmented/linear address model of the
// real-mode 16-bit address space (spec §3.1): Address, Block and Segment.
package address

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/retrodos/mzretools/errs"
)

const (
	// MemTotal is the size of the full real-mode address space (1 MB).
	MemTotal = 1 << 20
	// SegmentSize is the size of a single 64 KB segment.
	SegmentSize = 1 << 16
	segmentMask = 0xf0000
	// SegmentShift converts between linear offsets and segment values
	// (paragraph granularity, losing the 16-byte aliasing factor).
	SegmentShift = 4
	offsetMask   = 0xffff
	// offsetNormalMask is applied to obtain the normalized offset (the
	// aliasing factor within a paragraph).
	offsetNormalMask = 0xf
	// AddrInvalid marks an invalid segment or offset component.
	AddrInvalid = 0xffff
	// OffsetMax is the largest representable 16-bit offset.
	OffsetMax = 0xffff
)

// SegToOffset converts a segment value to its linear base offset.
func SegToOffset(seg uint16) uint32 { return uint32(seg) << SegmentShift }

// OffsetToSeg converts a linear offset to the segment value that covers it
// at zero offset.
func OffsetToSeg(off uint32) uint16 { return uint16(off >> SegmentShift) }

// linearInSegment reports whether a linear address is representable as a
// 16-bit offset from the given segment.
func linearInSegment(linear uint32, segment uint16) bool {
	base := SegToOffset(segment)
	return linear >= base && linear-base <= OffsetMax
}

// Address is a segment:offset pair. Equality and ordering are always by
// linear value (spec §3.1); two distinct segmented addresses can alias the
// same linear value.
type Address struct {
	Segment, Offset uint16
}

var farAddrRE = regexp.MustCompile(`^([0-9a-fA-F]{1,4}):([0-9a-fA-F]{1,4})$`)

// Invalid returns the canonical invalid address.
func Invalid() Address { return Address{AddrInvalid, AddrInvalid} }

// FromLinear builds the segmented address for a linear offset: the 64 KiB
// bank goes in the segment part and the low 16 bits in the offset.
func FromLinear(linear uint32) (Address, error) {
	if linear >= MemTotal {
		return Address{}, fmt.Errorf("%w: linear address too big: 0x%x", errs.ErrMemory, linear)
	}
	return Address{
		Segment: uint16((linear & segmentMask) >> SegmentShift),
		Offset:  uint16(linear & offsetMask),
	}, nil
}

// Parse accepts "SEG:OFF" or a bare hex/decimal linear offset.
func Parse(s string) (Address, error) {
	if m := farAddrRE.FindStringSubmatch(s); m != nil {
		seg, _ := strconv.ParseUint(m[1], 16, 16)
		off, _ := strconv.ParseUint(m[2], 16, 16)
		return Address{Segment: uint16(seg), Offset: uint16(off)}, nil
	}
	if len(s) > 2 && s[:2] == "0x" {
		v, err := strconv.ParseUint(s[2:], 16, 32)
		if err != nil {
			return Address{}, fmt.Errorf("%w: invalid address string: %s", errs.ErrArg, s)
		}
		return FromLinear(uint32(v))
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return Address{}, fmt.Errorf("%w: invalid address string: %s", errs.ErrArg, s)
	}
	return FromLinear(uint32(v))
}

// ToLinear returns the linear byte offset this address resolves to.
func (a Address) ToLinear() uint32 { return SegToOffset(a.Segment) + uint32(a.Offset) }

// IsValid reports whether the address differs from Invalid(); it is
// invalid only when both components equal AddrInvalid.
func (a Address) IsValid() bool { return a.Segment != AddrInvalid || a.Offset != AddrInvalid }

// IsNull reports the conventional null address 0000:0000.
func (a Address) IsNull() bool { return a.Segment == 0 && a.Offset == 0 }

// InSegment reports whether this address's linear value is representable
// as a 16-bit offset from seg.
func (a Address) InSegment(seg uint16) bool { return linearInSegment(a.ToLinear(), seg) }

// Equal compares by linear value.
func (a Address) Equal(b Address) bool { return a.ToLinear() == b.ToLinear() }

// Less orders by linear value.
func (a Address) Less(b Address) bool { return a.ToLinear() < b.ToLinear() }

// LessEqual orders by linear value.
func (a Address) LessEqual(b Address) bool { return a.ToLinear() <= b.ToLinear() }

// Add returns the address displaced within the same segment, by a signed
// or unsigned amount added to the offset.
func (a Address) Add(delta int32) Address {
	return Address{Segment: a.Segment, Offset: uint16(int32(a.Offset) + delta)}
}

// Sub returns the linear distance between two addresses (a - b).
func (a Address) Sub(b Address) uint32 { return a.ToLinear() - b.ToLinear() }

// Normalize moves the bulk of the offset into the segment part, so the
// remaining offset is < 16 (spec §3.1).
func (a Address) Normalize() Address {
	return Address{
		Segment: a.Segment + (a.Offset >> SegmentShift),
		Offset:  a.Offset & offsetNormalMask,
	}
}

// Relocate advances the segment part by reloc, e.g. relocate(234:a, 0x1000)
// -> 1234:a. Fails if the segment would overflow 16 bits.
func (a Address) Relocate(reloc uint16) (Address, error) {
	if uint32(a.Segment) > uint32(OffsetMax)-uint32(reloc) {
		return Address{}, fmt.Errorf("%w: unable to relocate address %s by 0x%x", errs.ErrMemory, a, reloc)
	}
	return Address{Segment: a.Segment + reloc, Offset: a.Offset}, nil
}

// Rebase is the inverse of Relocate: rebase(1234:a, 0x1000) -> 234:a.
func (a Address) Rebase(base uint16) (Address, error) {
	if base > a.Segment {
		return Address{}, fmt.Errorf("%w: unable to rebase address %s to 0x%x", errs.ErrMemory, a, base)
	}
	return Address{Segment: a.Segment - base, Offset: a.Offset}, nil
}

// Move re-expresses the same linear address relative to a different
// segment: move(1234:a, 1000) -> 1000:234a. Fails when the linear address
// isn't reachable from seg within a 16-bit offset.
func (a Address) Move(seg uint16) (Address, error) {
	if !a.InSegment(seg) {
		return Address{}, fmt.Errorf("%w: unable to move address %s to segment 0x%x", errs.ErrMemory, a, seg)
	}
	return Address{Segment: seg, Offset: uint16(a.ToLinear() - SegToOffset(seg))}, nil
}

// String renders "SEGM:OFFS/LINEAR", or "(invalid)".
func (a Address) String() string {
	if !a.IsValid() {
		return "(invalid)"
	}
	return fmt.Sprintf("%04x:%04x/%06x", a.Segment, a.Offset, a.ToLinear())
}

// Brief renders just "SEGM:OFFS" without the linear suffix.
func (a Address) Brief() string {
	if !a.IsValid() {
		return "(invalid)"
	}
	return fmt.Sprintf("%04x:%04x", a.Segment, a.Offset)
}
