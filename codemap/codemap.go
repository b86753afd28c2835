// Package codemap implements the code map (spec §3.2, §4.5, C6): the
// record of which bytes of an executable belong to which routine,
// variable or segment, its text serialization, and its summary report.
package codemap

import (
	"fmt"
	"sort"

	"github.com/retrodos/mzretools/address"
	"github.com/retrodos/mzretools/errs"
)

// Variable is a named, addressed piece of data discovered by the
// explorer or loaded from a linker map.
type Variable struct {
	Name     string
	Addr     address.Address
	External bool
	BSS      bool
}

func (v Variable) String() string {
	return fmt.Sprintf("%s/%s", v.Name, v.Addr.Brief())
}

// Less orders variables by address, matching the original's
// `operator<` on Variable.
func (v Variable) Less(other Variable) bool { return v.Addr.Less(other.Addr) }

// Routine bundles everything known about one routine (spec §3.2).
type Routine struct {
	Name        string
	Extents     address.Block
	Reachable   []address.Block
	Unreachable []address.Block
	Comments    []string

	Near       bool
	Ignore     bool
	Complete   bool
	External   bool
	Detached   bool
	Assembly   bool
	Duplicate  bool
	Unclaimed  bool
}

// NewRoutine constructs a routine with the near-call default; flag
// implications (external implies ignore, detached implies ignore, from
// original_source/src/routine.cpp) are enforced by SetFlag, not here.
func NewRoutine(name string, extents address.Block) *Routine {
	return &Routine{Name: name, Extents: extents, Near: true}
}

// normalizeFlags enforces the implication invariants; called whenever a
// flag is set via SetFlag so the invariant can never be violated
// mid-life, not just at construction.
func (r *Routine) normalizeFlags() {
	if r.External || r.Detached {
		r.Ignore = true
	}
}

// SetFlag sets one of the named boolean routine flags and re-validates
// the implication invariants.
func (r *Routine) SetFlag(name string, value bool) error {
	switch name {
	case "near":
		r.Near = value
	case "ignore":
		r.Ignore = value
	case "complete":
		r.Complete = value
	case "external":
		r.External = value
	case "detached":
		r.Detached = value
	case "assembly":
		r.Assembly = value
	case "duplicate":
		r.Duplicate = value
	case "unclaimed":
		r.Unclaimed = value
	default:
		return fmt.Errorf("%w: unknown routine flag %q", errs.ErrArg, name)
	}
	r.normalizeFlags()
	return nil
}

// Size is the byte length of the routine's entrypoint-to-last-byte span.
func (r *Routine) Size() uint32 { return r.Extents.Size() }

func (r *Routine) String() string {
	kind := "FAR"
	if r.Near {
		kind = "NEAR"
	}
	return fmt.Sprintf("%s: %s %s", r.Name, kind, r.Extents)
}

// Summary partitions a map's code size into the categories described in
// spec §4.5: completed/uncompleted/assembly/ignored (by reason)/
// unclaimed, plus a consistency residual that must be zero.
type Summary struct {
	CodeSize, IgnoredSize, CompletedSize, UnclaimedSize, ExternalSize   uint32
	DataCodeSize, DetachedSize, AssemblySize                            uint32
	IgnoreCount, CompleteCount, UnclaimedCount, ExternalCount           int
	DataCodeCount, DetachedCount, AssemblyCount                        int
	DataSize, OtherSize, IgnoredReachableSize, UncompleteSize          uint32
	OtherCount, IgnoredReachableCount, UncompleteCount                 int
	UnaccountedSize                                                    int64
}

// CodeMap holds the full parsed or constructed record for one
// executable image (spec §3.2).
type CodeMap struct {
	LoadSegment uint16
	MapSize     uint32
	IDA         bool

	routines []*Routine
	unclaimed []address.Block
	segments  []address.Segment
	vars      []Variable
}

// New creates an empty map for an image of mapSize bytes loaded at
// loadSegment.
func New(loadSegment uint16, mapSize uint32) *CodeMap {
	return &CodeMap{LoadSegment: loadSegment, MapSize: mapSize}
}

// Empty reports whether the map has no routines.
func (m *CodeMap) Empty() bool { return len(m.routines) == 0 }

// RoutineCount is the number of routines in the map.
func (m *CodeMap) RoutineCount() int { return len(m.routines) }

// VariableCount is the number of variables in the map.
func (m *CodeMap) VariableCount() int { return len(m.vars) }

// AddRoutine appends a routine, after checking it does not collide with
// any existing routine's extents or blocks.
func (m *CodeMap) AddRoutine(r *Routine) error {
	if c := m.FindCollision(r.Extents); c.IsValid() {
		return fmt.Errorf("%w: routine %q extents %s collide with existing block %s", errs.ErrParse, r.Name, r.Extents, c)
	}
	for _, b := range append(append([]address.Block{}, r.Reachable...), r.Unreachable...) {
		if c := m.FindCollision(b); c.IsValid() {
			return fmt.Errorf("%w: routine %q block %s collides with existing block %s", errs.ErrParse, r.Name, b, c)
		}
	}
	m.routines = append(m.routines, r)
	return nil
}

// AddVariable appends a variable to the map.
func (m *CodeMap) AddVariable(v Variable) { m.vars = append(m.vars, v) }

// AddSegment appends a segment to the map.
func (m *CodeMap) AddSegment(s address.Segment) { m.segments = append(m.segments, s) }

// SetUnclaimed replaces the map's list of unclaimed gaps.
func (m *CodeMap) SetUnclaimed(blocks []address.Block) { m.unclaimed = blocks }

// Unclaimed returns the map's unclaimed gaps.
func (m *CodeMap) Unclaimed() []address.Block { return m.unclaimed }

// Segments returns the map's segment list.
func (m *CodeMap) Segments() []address.Segment { return m.segments }

// GetRoutine looks up a routine by its zero-based index.
func (m *CodeMap) GetRoutine(idx int) (*Routine, error) {
	if idx < 0 || idx >= len(m.routines) {
		return nil, fmt.Errorf("%w: routine index %d out of range", errs.ErrArg, idx)
	}
	return m.routines[idx], nil
}

// GetRoutineByName looks up a routine by name.
func (m *CodeMap) GetRoutineByName(name string) (*Routine, error) {
	for _, r := range m.routines {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: no routine named %q", errs.ErrArg, name)
}

// GetRoutineByAddr looks up a routine whose extents contain addr.
func (m *CodeMap) GetRoutineByAddr(addr address.Address) (*Routine, error) {
	for _, r := range m.routines {
		if r.Extents.Contains(addr) {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: no routine contains %s", errs.ErrArg, addr)
}

// FindByEntrypoint looks up a routine whose entrypoint (extents.Begin)
// equals addr.
func (m *CodeMap) FindByEntrypoint(addr address.Address) (*Routine, error) {
	for _, r := range m.routines {
		if r.Extents.Begin.Equal(addr) {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: no routine with entrypoint %s", errs.ErrArg, addr)
}

// FindCollision returns the first existing block (from any routine's
// extents or reachable/unreachable chunks) that intersects b, or an
// invalid block if none collides.
func (m *CodeMap) FindCollision(b address.Block) address.Block {
	for _, r := range m.routines {
		if r.Extents.Intersects(b) {
			return r.Extents
		}
		for _, chunk := range append(append([]address.Block{}, r.Reachable...), r.Unreachable...) {
			if chunk.Intersects(b) {
				return chunk
			}
		}
	}
	return address.InvalidBlock()
}

// GetVariable looks up a variable by zero-based index.
func (m *CodeMap) GetVariable(idx int) (Variable, error) {
	if idx < 0 || idx >= len(m.vars) {
		return Variable{}, fmt.Errorf("%w: variable index %d out of range", errs.ErrArg, idx)
	}
	return m.vars[idx], nil
}

// GetVariableByName looks up a variable by name.
func (m *CodeMap) GetVariableByName(name string) (Variable, error) {
	for _, v := range m.vars {
		if v.Name == name {
			return v, nil
		}
	}
	return Variable{}, fmt.Errorf("%w: no variable named %q", errs.ErrArg, name)
}

// Order sorts routines by entrypoint, segments by address, and
// unclaimed blocks by begin address — the map invariants of spec §3.2.
func (m *CodeMap) Order() {
	sort.Slice(m.routines, func(i, j int) bool {
		return m.routines[i].Extents.Begin.Less(m.routines[j].Extents.Begin)
	})
	sort.Slice(m.segments, func(i, j int) bool { return m.segments[i].Less(m.segments[j]) })
	sort.Slice(m.unclaimed, func(i, j int) bool { return m.unclaimed[i].Begin.Less(m.unclaimed[j].Begin) })
}

// Match counts routines shared between this map and other: by equal
// extents, or (if onlyEntry) just equal entrypoint address.
func (m *CodeMap) Match(other *CodeMap, onlyEntry bool) int {
	count := 0
	for _, r := range m.routines {
		for _, o := range other.routines {
			if onlyEntry {
				if r.Extents.Begin.Equal(o.Extents.Begin) {
					count++
					break
				}
			} else if r.Extents.Begin.Equal(o.Extents.Begin) && r.Extents.End.Equal(o.Extents.End) {
				count++
				break
			}
		}
	}
	return count
}

// GetSummary partitions the map's code size into the categories of
// spec §4.5, and computes the "unaccounted" consistency residual
// `mapSize - (completed+uncompleted+assembly+ignored+unclaimed)`
// (folded in from original_source/src/codemap.cpp). A nonzero residual
// does not fail the call; the caller is expected to log it.
func (m *CodeMap) GetSummary() Summary {
	var s Summary
	s.CodeSize = m.MapSize
	for _, r := range m.routines {
		size := r.Size()
		switch {
		case r.External:
			s.ExternalSize += size
			s.ExternalCount++
			s.IgnoredSize += size
			s.IgnoreCount++
		case r.Detached:
			s.DetachedSize += size
			s.DetachedCount++
			s.IgnoredSize += size
			s.IgnoreCount++
		case r.Ignore:
			s.IgnoredSize += size
			s.IgnoreCount++
		case r.Assembly:
			s.AssemblySize += size
			s.AssemblyCount++
		case r.Complete:
			s.CompletedSize += size
			s.CompleteCount++
		default:
			s.UncompleteSize += size
			s.UncompleteCount++
		}
	}
	for _, b := range m.unclaimed {
		s.UnclaimedSize += b.Size()
		s.UnclaimedCount++
	}
	accounted := int64(s.CompletedSize) + int64(s.UncompleteSize) + int64(s.AssemblySize) + int64(s.IgnoredSize) + int64(s.UnclaimedSize)
	s.UnaccountedSize = int64(s.CodeSize) - accounted
	return s
}

// Report renders the summary as multi-line text, in the order the
// original tool prints its map report.
// Report renders the summary as multi-line text. With brief set, only
// the uncompleted and unclaimed lines are shown, matching the
// original's "--brief: show only uncompleted and unclaimed areas"
// behavior for a quick progress check on a large map.
func (s Summary) Report(brief bool) string {
	if brief {
		return fmt.Sprintf(
			"uncomplete: %d (%d routines)\nunclaimed: %d (%d ranges)\n",
			s.UncompleteSize, s.UncompleteCount,
			s.UnclaimedSize, s.UnclaimedCount,
		)
	}
	return fmt.Sprintf(
		"code size: %d\ncompleted: %d (%d routines)\nuncomplete: %d (%d routines)\nassembly: %d (%d routines)\nignored: %d (%d routines, %d external, %d detached)\nunclaimed: %d (%d ranges)\nunaccounted: %d\n",
		s.CodeSize,
		s.CompletedSize, s.CompleteCount,
		s.UncompleteSize, s.UncompleteCount,
		s.AssemblySize, s.AssemblyCount,
		s.IgnoredSize, s.IgnoreCount, s.ExternalCount, s.DetachedCount,
		s.UnclaimedSize, s.UnclaimedCount,
		s.UnaccountedSize,
	)
}
