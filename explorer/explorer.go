// Package explorer implements the control-flow explorer (spec §4.4,
// C7): it drives the instruction decoder over a scan queue, tracking an
// abstract register state, and turns the result into a code map.
package explorer

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"

	"github.com/retrodos/mzretools/address"
	"github.com/retrodos/mzretools/codemap"
	"github.com/retrodos/mzretools/cpu"
	"github.com/retrodos/mzretools/errs"
	"github.com/retrodos/mzretools/memory"
	"github.com/retrodos/mzretools/scanq"
)

// Options configures one exploration run.
type Options struct {
	// StopAddr, if valid, ends exploration at this address regardless
	// of what remains queued.
	StopAddr address.Address
	// Verbose enables a spew.Fdump trace of each rollback, mirroring
	// the ambient diagnostic-dump style used elsewhere in the module.
	Verbose bool
	LogSink func(string)
}

func (o Options) log(format string, args ...any) {
	if o.LogSink != nil {
		o.LogSink(fmt.Sprintf(format, args...))
	}
}

// Explorer walks an executable image's code starting from one or more
// entrypoints, discovering routines via control flow and building a
// code map.
type Explorer struct {
	img     *memory.Image
	queue   *scanq.Queue
	opts    Options
	extents address.Block
	vars    []address.Address
}

// New creates an explorer over img, seeded at entrypoint ep.
func New(img *memory.Image, ep address.Address, codeExtents address.Block, opts Options) *Explorer {
	seed := scanq.Destination{Address: ep, RoutineIdx: 1}
	q := scanq.New(codeExtents.Begin, codeExtents.Size(), seed, "start")
	return &Explorer{img: img, queue: q, opts: opts, extents: codeExtents}
}

// Explore runs the worklist to completion (or until the configured stop
// address), decoding one instruction at a time and following calls and
// jumps, per spec §4.4.
func (e *Explorer) Explore() error {
	for !e.queue.Empty() {
		dest := e.queue.NextPoint()
		if e.opts.StopAddr.IsValid() && dest.Address.Equal(e.opts.StopAddr) {
			continue
		}
		if err := e.walkRoutine(dest); err != nil {
			if !errs.Fatal(err) {
				e.opts.log("rollback at %s: %v", dest.Address, err)
				if e.opts.Verbose {
					e.opts.log("%s", spew.Sdump(dest))
				}
				if rbErr := e.queue.ClearRoutineIdx(dest.Address); rbErr != nil {
					return rbErr
				}
				continue
			}
			return err
		}
	}
	return nil
}

// walkRoutine decodes and follows instructions starting at dest until
// it runs off the end of the claimed code extents, hits an
// unconditional transfer of control, or decoding fails (a rollback
// candidate returned as an ErrDecode-wrapped error).
func (e *Explorer) walkRoutine(dest scanq.Destination) error {
	regs := dest.Regs
	cur := dest.Address
	for e.extents.Contains(cur) {
		lin := cur.ToLinear()
		if lin >= address.MemTotal {
			return fmt.Errorf("%w: instruction at %s runs past end of image", errs.ErrDecode, cur)
		}
		data := e.img.Base()[lin:]
		ins, err := cpu.Decode(cur, data)
		if err != nil {
			return fmt.Errorf("%w: decode failed at %s: %v", errs.ErrDecode, cur, err)
		}
		if err := e.queue.SetRoutineIdx(cur, uint32(ins.Length), dest.RoutineIdx); err != nil {
			return err
		}
		e.applyMov(ins, &regs)
		e.recordDataRef(ins)

		if branch, ok := e.branchOf(ins, regs); ok {
			e.queue.SaveBranch(branch, regs, e.extents)
		}
		if ins.IsReturn() || ins.IsUnconditionalJump() {
			return nil
		}
		cur = cur.Add(int32(ins.Length))
	}
	return nil
}

// branchOf classifies a decoded instruction as a call/jump branch with
// a resolved destination, when the destination is statically knowable
// (spec §9 Open Question 1: register-indirect targets are resolved only
// when the abstract register state has a known value for the source
// register; anything else is dropped).
func (e *Explorer) branchOf(ins cpu.Instruction, regs scanq.RegisterState) (scanq.Branch, bool) {
	if off, ok := ins.RelativeOffset(); ok {
		dest := ins.Addr.Add(int32(ins.Length) + off)
		return scanq.Branch{
			Source:      ins.Addr,
			Destination: dest,
			IsCall:      ins.IsCall(),
			IsNear:      !ins.IsFarCall(),
		}, true
	}
	if far, ok := ins.FarTarget(); ok {
		return scanq.Branch{Source: ins.Addr, Destination: far, IsCall: ins.IsCall(), IsNear: false}, true
	}
	if ins.IsBranch() && ins.Op1.Type.IsReg() {
		if v, ok := regs.Get(ins.Op1.Type.RegOf()); ok {
			// a near indirect target is an offset in the current code segment
			addr := address.Address{Segment: ins.Addr.Segment, Offset: uint16(v)}
			return scanq.Branch{Source: ins.Addr, Destination: addr, IsCall: ins.IsCall(), IsNear: true}, true
		}
	}
	return scanq.Branch{}, false
}

// applyMov folds a `mov reg, imm` instruction into the abstract
// register state so a later register-indirect branch can be resolved;
// anything else invalidates the destination register's known value.
func (e *Explorer) applyMov(ins cpu.Instruction, regs *scanq.RegisterState) {
	if ins.Class == cpu.ClsMov && ins.Op1.Type.IsReg() && ins.Op2.Type.IsImmediate() {
		regs.Set(ins.Op1.Type.RegOf(), uint16(ins.Op2.Imm))
		return
	}
	if ins.Op1.Type.IsReg() {
		regs.Clear(ins.Op1.Type.RegOf())
	}
}

// recordDataRef tracks operands referencing a fixed memory offset as
// candidate variables (spec §4.8, folded in here since the explorer is
// the only place that already walks every decoded instruction; the
// dataref package consumes the accumulated list after exploration).
func (e *Explorer) recordDataRef(ins cpu.Instruction) {
	for _, op := range []cpu.Operand{ins.Op1, ins.Op2} {
		if op.Type.IsMemImmediate() {
			e.vars = append(e.vars, address.Address{Segment: ins.Addr.Segment, Offset: uint16(op.Offset)})
		}
	}
}

// DataRefs returns the direct-memory operand addresses observed during
// exploration, as candidate variables for the code map.
func (e *Explorer) DataRefs() []address.Address { return e.vars }

// BuildMap finalizes exploration into a code map, per spec §4.5 "Load
// from queue".
func (e *Explorer) BuildMap(segs []address.Segment, loadSegment uint16) *codemap.CodeMap {
	return codemap.FromQueue(e.queue, segs, e.vars, loadSegment, e.extents.Size())
}
