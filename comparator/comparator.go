package comparator

import (
	"fmt"
	"strings"

	"github.com/andreyvit/diff"

	"github.com/retrodos/mzretools/address"
	"github.com/retrodos/mzretools/codemap"
	"github.com/retrodos/mzretools/cpu"
	"github.com/retrodos/mzretools/errs"
	"github.com/retrodos/mzretools/memory"
)

// Options configures one comparison run (spec §4.6's `--loose`,
// `--variant`, `--rskip`, `--tskip`, `--ctx`, `--nocall`, `--asm`,
// `--idiff` flags).
type Options struct {
	Loose         bool
	Variant       bool
	NoCall        bool
	IncludeAsm    bool
	// ContinueDiff is not consulted: a mismatch that no skip resolves
	// always ends that routine's comparison.
	ContinueDiff  bool
	RefSkip       int
	TargetSkip    int
	CtxCount      int
	StopAddr      address.Address
	MaxDataAlts   int
}

// RoutineResult is the outcome of comparing one routine.
type RoutineResult struct {
	Name      string
	Matched   bool
	Mismatch  *Mismatch
	Compared  uint32
	Excluded  uint32
}

// Mismatch describes a comparison failure point, including a rendered
// diff context (spec §4.6.c "print up to ctx_count surrounding
// instructions").
type Mismatch struct {
	RefAddr, TgtAddr address.Address
	Context          string
}

// Result is the aggregate outcome of a full comparison run.
type Result struct {
	AllMatched bool
	Routines   []RoutineResult
	Missed     []string
}

// pendingPair is one (reference, target) routine-comparison job.
type pendingPair struct {
	ref codemap.Routine
	tgt address.Address
}

// Comparator drives the per-routine lockstep walk.
type Comparator struct {
	opts        Options
	refImg      *memory.Image
	tgtImg      *memory.Image
	refMap      *codemap.CodeMap
	offsets     *OffsetMap
	pending     []pendingPair
	seen        map[string]bool
}

// New creates a comparator over a reference image/map and a target
// image, seeded from the reference map's first routine (GetRoutine(0)),
// compared at the same address in the target. The executables' own
// entrypoints are not consulted.
func New(refImg, tgtImg *memory.Image, refMap *codemap.CodeMap, opts Options) (*Comparator, error) {
	if refMap.RoutineCount() == 0 {
		return nil, fmt.Errorf("%w: reference map has no routines to compare", errs.ErrArg)
	}
	entry, err := refMap.GetRoutine(0)
	if err != nil {
		return nil, err
	}
	c := &Comparator{
		opts:    opts,
		refImg:  refImg,
		tgtImg:  tgtImg,
		refMap:  refMap,
		offsets: NewOffsetMap(opts.MaxDataAlts),
		seen:    make(map[string]bool),
	}
	c.offsets.SetCode(entry.Extents.Begin, entry.Extents.Begin)
	c.pending = append(c.pending, pendingPair{ref: *entry, tgt: entry.Extents.Begin})
	return c, nil
}

// Compare runs the comparison to completion (spec §4.6 "Per-routine loop").
func (c *Comparator) Compare() (Result, error) {
	var result Result
	result.AllMatched = true
	for len(c.pending) > 0 {
		job := c.pending[0]
		c.pending = c.pending[1:]
		if c.seen[job.ref.Name] {
			continue
		}
		c.seen[job.ref.Name] = true

		if job.ref.Ignore || job.ref.External || (job.ref.Assembly && !c.opts.IncludeAsm) {
			result.Routines = append(result.Routines, RoutineResult{Name: job.ref.Name, Matched: true, Excluded: job.ref.Size()})
			continue
		}
		rr, err := c.compareRoutine(job)
		if err != nil {
			return result, err
		}
		result.Routines = append(result.Routines, rr)
		if !rr.Matched {
			result.AllMatched = false
		}
	}
	for i := 0; i < c.refMap.RoutineCount(); i++ {
		r, _ := c.refMap.GetRoutine(i)
		if r != nil && !c.seen[r.Name] && !r.Ignore && !r.External {
			result.Missed = append(result.Missed, r.Name)
		}
	}
	return result, nil
}

// compareRoutine runs the inner step loop for one routine (spec §4.6
// step 4): decode both sides, match, advance, enqueue calls.
func (c *Comparator) compareRoutine(job pendingPair) (RoutineResult, error) {
	c.offsets.ResetStack()
	refCsip := job.ref.Extents.Begin
	tgtCsip := job.tgt
	var compared uint32

	for job.ref.Extents.Contains(refCsip) {
		if c.opts.StopAddr.IsValid() && refCsip.Equal(c.opts.StopAddr) {
			break
		}
		refIns, refErr := decodeAt(c.refImg, refCsip)
		tgtIns, tgtErr := decodeAt(c.tgtImg, tgtCsip)
		if refErr != nil || tgtErr != nil {
			return c.fail(job.ref.Name, refCsip, tgtCsip, compared)
		}

		m := c.matchInstructions(refIns, tgtIns)
		if m == cpu.MatchMismatch {
			resync, newRef, newTgt := c.trySkip(job, refCsip, tgtCsip)
			if !resync {
				return c.fail(job.ref.Name, refCsip, tgtCsip, compared)
			}
			refCsip, tgtCsip = newRef, newTgt
			continue
		}

		if refIns.IsCall() && !c.opts.NoCall {
			if tgtDest, ok := c.callDestination(refIns, tgtIns); ok {
				c.offsets.SetCode(refCsip, tgtCsip)
				callRoutine, err := c.refMap.GetRoutineByAddr(refDest(refIns))
				if err == nil {
					c.pending = append(c.pending, pendingPair{ref: *callRoutine, tgt: tgtDest})
				}
			}
		}
		c.recordOperandOffsets(refIns, tgtIns)

		compared += uint32(refIns.Length)
		refCsip = refCsip.Add(int32(refIns.Length))
		tgtCsip = tgtCsip.Add(int32(tgtIns.Length))
	}
	return RoutineResult{Name: job.ref.Name, Matched: true, Compared: compared}, nil
}

func (c *Comparator) fail(name string, refAddr, tgtAddr address.Address, compared uint32) (RoutineResult, error) {
	ctx := c.diffContext(refAddr, tgtAddr)
	return RoutineResult{
		Name:     name,
		Matched:  false,
		Compared: compared,
		Mismatch: &Mismatch{RefAddr: refAddr, TgtAddr: tgtAddr, Context: ctx},
	}, nil
}

// diffContext renders up to CtxCount instructions of disassembly text
// starting at the mismatch point on each side as a unified diff; no
// instructions before the mismatch are shown (spec
// §4.6.c), using andreyvit/diff the way SPEC_FULL's domain stack wires
// it in for this exact concern.
func (c *Comparator) diffContext(refAddr, tgtAddr address.Address) string {
	refLines := disasmWindow(c.refImg, refAddr, c.opts.CtxCount)
	tgtLines := disasmWindow(c.tgtImg, tgtAddr, c.opts.CtxCount)
	return diff.LineDiff(strings.Join(refLines, "\n"), strings.Join(tgtLines, "\n"))
}

func disasmWindow(img *memory.Image, start address.Address, count int) []string {
	if count <= 0 {
		count = 1
	}
	var lines []string
	cur := start
	for i := 0; i < count; i++ {
		lin := cur.ToLinear()
		if lin >= address.MemTotal {
			break
		}
		ins, err := cpu.Decode(cur, img.Base()[lin:])
		if err != nil {
			lines = append(lines, fmt.Sprintf("%s: <decode error>", cur.Brief()))
			break
		}
		lines = append(lines, fmt.Sprintf("%s: %s", cur.Brief(), ins.Class))
		cur = cur.Add(int32(ins.Length))
	}
	return lines
}

// instrSteps returns the addresses of start and of up to n further
// instructions after it, stopping early if decoding fails partway.
func instrSteps(img *memory.Image, start address.Address, n int) []address.Address {
	addrs := make([]address.Address, 0, n+1)
	addrs = append(addrs, start)
	cur := start
	for i := 0; i < n; i++ {
		ins, err := decodeAt(img, cur)
		if err != nil {
			break
		}
		cur = cur.Add(int32(ins.Length))
		addrs = append(addrs, cur)
	}
	return addrs
}

// trySkip attempts resynchronization by searching the two-dimensional
// grid of (r, t) offsets, r up to RefSkip instructions ahead on the
// reference side and t up to TargetSkip instructions ahead on the
// target side, for the first pair where ref[+r] matches tgt[+t] again
// (spec §4.6.c, §8.3 scenario 5). Both sides may need to advance at
// once — an insertion on one side alone does not in general line the
// two streams back up — so this is a joint search over (r, t), not two
// independent one-sided ones. Candidates are tried in order of
// increasing total skip r+t, so the closest resync point wins.
func (c *Comparator) trySkip(job pendingPair, refCsip, tgtCsip address.Address) (bool, address.Address, address.Address) {
	refAddrs := instrSteps(c.refImg, refCsip, c.opts.RefSkip)
	tgtAddrs := instrSteps(c.tgtImg, tgtCsip, c.opts.TargetSkip)
	maxR, maxT := len(refAddrs)-1, len(tgtAddrs)-1

	for total := 1; total <= maxR+maxT; total++ {
		rMin := total - maxT
		if rMin < 0 {
			rMin = 0
		}
		rMax := total
		if rMax > maxR {
			rMax = maxR
		}
		for r := rMin; r <= rMax; r++ {
			t := total - r
			if t < 0 || t > maxT {
				continue
			}
			refIns, err := decodeAt(c.refImg, refAddrs[r])
			if err != nil {
				continue
			}
			tgtIns, err := decodeAt(c.tgtImg, tgtAddrs[t])
			if err != nil {
				continue
			}
			if c.matchInstructions(refIns, tgtIns) != cpu.MatchMismatch {
				return true, refAddrs[r], tgtAddrs[t]
			}
		}
	}
	return false, refCsip, tgtCsip
}

// matchInstructions applies the configured strictness to a raw
// cpu.Instruction.Match() verdict (spec §4.9's attempt order: FULL,
// then — for branches — DIFFTGT gated on code-offset-map consistency,
// then DIFFVAL under --loose, else MISMATCH; VARIANT is accepted
// whenever Options.Variant is set, since this package does not load a
// separate equivalence-rewrite file).
func (c *Comparator) matchInstructions(ref, tgt cpu.Instruction) cpu.InstructionMatch {
	m := ref.Match(tgt)
	switch m {
	case cpu.MatchFull:
		return m
	case cpu.MatchDiffTarget:
		refDest, refOk := ref.RelativeOffset()
		tgtDest, tgtOk := tgt.RelativeOffset()
		if !refOk || !tgtOk {
			return cpu.MatchMismatch
		}
		refAbs := ref.Addr.Add(int32(ref.Length) + refDest)
		tgtAbs := tgt.Addr.Add(int32(tgt.Length) + tgtDest)
		if c.offsets.CodeMatch(refAbs, tgtAbs) {
			return cpu.MatchDiffTarget
		}
		return cpu.MatchMismatch
	case cpu.MatchDiffVal:
		if c.opts.Loose {
			return m
		}
		return cpu.MatchMismatch
	case cpu.MatchVariant:
		if c.opts.Variant {
			return m
		}
		return cpu.MatchMismatch
	default:
		return cpu.MatchMismatch
	}
}

func (c *Comparator) recordOperandOffsets(ref, tgt cpu.Instruction) {
	for _, pair := range [][2]cpu.Operand{{ref.Op1, tgt.Op1}, {ref.Op2, tgt.Op2}} {
		r, t := pair[0], pair[1]
		switch {
		case r.Type.IsMemImmediate():
			c.offsets.DataMatch(int32(r.Offset), int32(t.Offset))
		case r.Type.IsMem() && r.Type.IsStackRelative():
			c.offsets.StackMatch(int32(r.Offset), int32(t.Offset))
		}
	}
}

func (c *Comparator) callDestination(ref, tgt cpu.Instruction) (address.Address, bool) {
	if off, ok := tgt.RelativeOffset(); ok {
		return tgt.Addr.Add(int32(tgt.Length) + off), true
	}
	if far, ok := tgt.FarTarget(); ok {
		return far, true
	}
	return address.Address{}, false
}

func refDest(ref cpu.Instruction) address.Address {
	if off, ok := ref.RelativeOffset(); ok {
		return ref.Addr.Add(int32(ref.Length) + off)
	}
	if far, ok := ref.FarTarget(); ok {
		return far
	}
	return address.Address{}
}

func decodeAt(img *memory.Image, addr address.Address) (cpu.Instruction, error) {
	lin := addr.ToLinear()
	if lin >= address.MemTotal {
		return cpu.Instruction{}, fmt.Errorf("%w: address %s past end of image", errs.ErrDecode, addr)
	}
	return cpu.Decode(addr, img.Base()[lin:])
}
