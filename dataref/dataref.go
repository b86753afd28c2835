// Package dataref implements the data-reference finder (spec §4.8,
// C10): a read-only scan over a code map's non-ignored routines that
// flags memory operands and plausible-looking immediates matching a
// known variable address, for an engineer to turn into real variable
// references by hand.
package dataref

import (
	"fmt"

	"github.com/retrodos/mzretools/address"
	"github.com/retrodos/mzretools/codemap"
	"github.com/retrodos/mzretools/cpu"
	"github.com/retrodos/mzretools/errs"
	"github.com/retrodos/mzretools/memory"
)

// Reference is one suggested routine-instruction-to-variable binding.
type Reference struct {
	RoutineName string
	InsAddr     address.Address
	VarName     string
	VarAddr     address.Address
	Delta       int32
}

func (r Reference) String() string {
	if r.Delta == 0 {
		return fmt.Sprintf("%s:%s -> %s", r.RoutineName, r.InsAddr.Brief(), r.VarName)
	}
	return fmt.Sprintf("%s:%s -> %s (%+d)", r.RoutineName, r.InsAddr.Brief(), r.VarName, r.Delta)
}

// Options configures the search's tolerance for matching an operand
// offset to a nearby variable rather than requiring an exact hit
// (SPEC_FULL's delta-tolerant supplement over the original's exact
// `findDataRefs`, for variables whose size is itself unknown).
type Options struct {
	MaxDelta uint16
}

// Find walks every non-ignored, non-external, non-detached routine's
// reachable code in m, decoding each instruction and comparing any
// OPR_MEM_OFF16 operand or explicit immediate against every known
// variable address in m, within opts.MaxDelta bytes.
func Find(m *codemap.CodeMap, img *memory.Image, opts Options) ([]Reference, error) {
	var refs []Reference
	for i := 0; i < m.RoutineCount(); i++ {
		r, err := m.GetRoutine(i)
		if err != nil {
			return nil, err
		}
		if r.Ignore || r.External || r.Detached {
			continue
		}
		blocks := append([]address.Block{r.Extents}, r.Reachable...)
		for _, b := range blocks {
			found, err := scanBlock(r.Name, b, img, m, opts)
			if err != nil {
				return nil, err
			}
			refs = append(refs, found...)
		}
	}
	return refs, nil
}

func scanBlock(routineName string, b address.Block, img *memory.Image, m *codemap.CodeMap, opts Options) ([]Reference, error) {
	var found []Reference
	cur := b.Begin
	for cur.LessEqual(b.End) {
		lin := cur.ToLinear()
		if lin >= address.MemTotal {
			break
		}
		ins, err := cpu.Decode(cur, img.Base()[lin:])
		if err != nil {
			return nil, fmt.Errorf("%w: dataref decode failed in %q at %s: %v", errs.ErrDecode, routineName, cur, err)
		}
		for _, op := range []cpu.Operand{ins.Op1, ins.Op2} {
			candidate, ok := candidateOffset(op)
			if !ok {
				continue
			}
			if ref, matched := matchVariable(routineName, ins.Addr, candidate, cur.Segment, m, opts); matched {
				found = append(found, ref)
			}
		}
		cur = cur.Add(int32(ins.Length))
	}
	return found, nil
}

// candidateOffset extracts a plausible data-segment offset from an
// operand: a direct memory reference's absolute displacement, or an
// explicit immediate's literal value (spec §4.8: "OPR_MEM_OFF16 or an
// immediate value that plausibly points into a known DATA segment").
func candidateOffset(op cpu.Operand) (uint16, bool) {
	switch {
	case op.Type.IsMemImmediate():
		return uint16(op.Offset), true
	case op.Type.IsExplicitImmediate():
		if op.Imm < 0 || op.Imm > 0xffff {
			return 0, false
		}
		return uint16(op.Imm), true
	default:
		return 0, false
	}
}

func matchVariable(routineName string, insAddr address.Address, candidate uint16, seg uint16, m *codemap.CodeMap, opts Options) (Reference, bool) {
	target := address.Address{Segment: seg, Offset: candidate}
	best := Reference{Delta: int32(opts.MaxDelta) + 1}
	matched := false
	for i := 0; i < m.VariableCount(); i++ {
		v, err := m.GetVariable(i)
		if err != nil {
			continue
		}
		if v.Addr.Segment != seg {
			continue
		}
		delta := int32(target.Offset) - int32(v.Addr.Offset)
		abs := delta
		if abs < 0 {
			abs = -abs
		}
		if uint16(abs) > opts.MaxDelta {
			continue
		}
		if !matched || abs < absInt32(best.Delta) {
			best = Reference{RoutineName: routineName, InsAddr: insAddr, VarName: v.Name, VarAddr: v.Addr, Delta: delta}
			matched = true
		}
	}
	return best, matched
}

func absInt32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
