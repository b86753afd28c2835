// Package comparator implements the differential comparator (spec
// §4.6, §4.9, C9): walking a reference and target executable in
// lockstep, matching instructions under a configurable strictness, and
// reporting per-routine and aggregate results.
package comparator

import "github.com/retrodos/mzretools/address"

// OffsetMap tracks the three families of ref->target correspondences
// maintained across a whole comparison run (spec §4.6 "Offset maps"),
// grounded on original_source/include/dos/analysis.h's `OffsetMap`.
type OffsetMap struct {
	maxData int
	code    map[address.Address]address.Address
	data    map[int32][]int32
	stack   map[int32]int32
}

// NewOffsetMap creates an offset map allowing up to maxData alternative
// data-offset bindings per reference offset (at least 1 — tiny-model
// executables with DS==CS still get one data segment's worth of slack).
func NewOffsetMap(maxData int) *OffsetMap {
	if maxData < 1 {
		maxData = 1
	}
	return &OffsetMap{
		maxData: maxData,
		code:    make(map[address.Address]address.Address),
		data:    make(map[int32][]int32),
		stack:   make(map[int32]int32),
	}
}

// GetCode returns the target address bound to a reference address, if any.
func (m *OffsetMap) GetCode(from address.Address) (address.Address, bool) {
	to, ok := m.code[from]
	return to, ok
}

// SetCode binds a reference code address to a target address.
func (m *OffsetMap) SetCode(from, to address.Address) { m.code[from] = to }

// CodeMatch reports whether (from, to) is consistent with any existing
// binding for from: either no binding yet (in which case one is
// created), or an existing binding that equals to.
func (m *OffsetMap) CodeMatch(from, to address.Address) bool {
	if bound, ok := m.code[from]; ok {
		return bound.Equal(to)
	}
	m.code[from] = to
	return true
}

// DataMatch reports whether (from, to) is consistent with the data
// offset map: from may bind to up to maxData distinct target offsets;
// a binding within that set matches, a new one is added if there is
// room, and exceeding the limit is a mismatch.
func (m *OffsetMap) DataMatch(from, to int32) bool {
	alts := m.data[from]
	for _, a := range alts {
		if a == to {
			return true
		}
	}
	if len(alts) >= m.maxData {
		return false
	}
	m.data[from] = append(alts, to)
	return true
}

// StackMatch reports whether (from, to) is consistent with the strict
// 1-to-1 stack offset map.
func (m *OffsetMap) StackMatch(from, to int32) bool {
	if bound, ok := m.stack[from]; ok {
		return bound == to
	}
	m.stack[from] = to
	return true
}

// ResetStack clears the stack offset map; called once per routine,
// since stack displacements are only meaningful within one frame.
func (m *OffsetMap) ResetStack() { m.stack = make(map[int32]int32) }
