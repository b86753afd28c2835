package codemap

import (
	"strconv"

	"github.com/retrodos/mzretools/address"
	"github.com/retrodos/mzretools/scanq"
)

// FromQueue builds a code map from a finished scan queue (spec §4.5
// "Load from queue"): it walks the visited map once, tracking the
// currently open block and its owning routine, and records one reachable
// block per contiguous run of a single non-null id. Every null run,
// including one bracketed by the same id on both sides, becomes an
// unclaimed block (as returned by GetUnvisited); no unreachable blocks
// are produced. Unclaimed blocks that would straddle a 64 KB segment
// boundary are split via address.Block.SplitSegments; reachable blocks
// are not split.
func FromQueue(sq *scanq.Queue, segs []address.Segment, vars []address.Address, loadSegment uint16, mapSize uint32) *CodeMap {
	m := New(loadSegment, mapSize)
	for _, s := range segs {
		m.AddSegment(s)
	}
	entrypoints := sq.Entrypoints()
	routinesByIdx := make(map[scanq.RoutineIdx]*Routine, len(entrypoints))
	for _, ep := range entrypoints {
		name := ep.Name
		if name == "" {
			name = routineNameFor(ep.Idx)
		}
		r := NewRoutine(name, address.NewBlock(ep.Addr, ep.Addr))
		r.Near = ep.Near
		m.routines = append(m.routines, r)
		routinesByIdx[ep.Idx] = r
	}

	unclaimed := sq.GetUnvisited()
	for _, b := range unclaimed {
		pieces, err := b.SplitSegments()
		if err != nil {
			continue
		}
		m.unclaimed = append(m.unclaimed, pieces...)
	}

	for i, v := range vars {
		m.AddVariable(Variable{Name: fmtVarName(i), Addr: v})
	}

	m.assignReachability(sq, routinesByIdx)
	m.Order()
	return m
}

// assignReachability grows each routine's extents to cover the claimed
// bytes recorded in the queue's visited map and records each claimed run
// as a reachable block; gaps inside a routine's span are not recorded as
// unreachable blocks.
func (m *CodeMap) assignReachability(sq *scanq.Queue, byIdx map[scanq.RoutineIdx]*Routine) {
	origin := sq.Origin()
	var curIdx scanq.RoutineIdx
	var blockStart address.Address
	open := false

	flush := func(end address.Address) {
		if !open {
			return
		}
		open = false
		r, ok := byIdx[curIdx]
		if !ok {
			return
		}
		block := address.NewBlock(blockStart, end)
		if block.Begin.Less(r.Extents.Begin) || !r.Extents.IsValid() {
			r.Extents.Begin = block.Begin
		}
		if r.Extents.End.Less(block.End) {
			r.Extents.End = block.End
		}
		r.Reachable = append(r.Reachable, block)
	}

	last := origin
	for off := uint32(0); ; off++ {
		addr, err := address.FromLinear(origin.ToLinear() + off)
		if err != nil {
			flush(last)
			break
		}
		idx := sq.RoutineIdxAt(addr)
		switch {
		case idx != scanq.NullRoutine && !open:
			open = true
			blockStart = addr
			curIdx = idx
		case idx != scanq.NullRoutine && open && idx != curIdx:
			flush(last)
			open = true
			blockStart = addr
			curIdx = idx
		case idx == scanq.NullRoutine && open:
			flush(last)
		}
		last = addr
	}
}

func routineNameFor(idx scanq.RoutineIdx) string {
	return "sub_" + strconv.FormatUint(uint64(idx), 10)
}

func fmtVarName(i int) string {
	return "var_" + strconv.Itoa(i)
}
