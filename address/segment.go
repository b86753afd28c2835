package address

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/retrodos/mzretools/errs"
)

// SegmentType classifies a named segment (spec §3.1).
type SegmentType int

const (
	SegNone SegmentType = iota
	SegCode
	SegData
	SegStack
)

func (t SegmentType) String() string {
	switch t {
	case SegCode:
		return "CODE"
	case SegData:
		return "DATA"
	case SegStack:
		return "STACK"
	default:
		return "???"
	}
}

// Segment is a named, typed, paragraph-addressed segment.
type Segment struct {
	Name    string
	Type    SegmentType
	Address uint16
}

var segmentRE = regexp.MustCompile(`^([$_a-zA-Z0-9]+) (CODE|DATA|STACK) ([0-9a-fA-F]{1,4})`)

// ParseSegment parses a "name TYPE seghex" line as emitted by the code map
// text format (spec §4.5).
func ParseSegment(s string) (Segment, error) {
	m := segmentRE.FindStringSubmatch(s)
	if m == nil {
		return Segment{}, fmt.Errorf("%w: invalid segment string: %s", errs.ErrParse, s)
	}
	addr, _ := strconv.ParseUint(m[3], 16, 16)
	var typ SegmentType
	switch m[2] {
	case "CODE":
		typ = SegCode
	case "DATA":
		typ = SegData
	case "STACK":
		typ = SegStack
	}
	return Segment{Name: m[1], Type: typ, Address: uint16(addr)}, nil
}

// Equal compares by (type, address), per spec §3.1 — the name is not part
// of segment identity.
func (s Segment) Equal(other Segment) bool {
	return s.Type == other.Type && s.Address == other.Address
}

// Less orders by address, used to keep a code map's segment list sorted.
func (s Segment) Less(other Segment) bool { return s.Address < other.Address }

func (s Segment) String() string {
	return fmt.Sprintf("%s %s %04x", s.Name, s.Type, s.Address)
}
