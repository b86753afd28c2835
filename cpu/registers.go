// Package cpu implements the 8086 instruction decoder and the abstract
// register-state tracking used by the explorer to resolve near-indirect
// branches (spec §3.5, §4.1, C4).
package cpu

import "github.com/retrodos/mzretools/address"

// Register identifies one of the 8086's general purpose, segment or
// special registers, or one of their high/low byte halves.
type Register int

const (
	RegNone Register = iota
	RegAL
	RegAH
	RegBL
	RegBH
	RegCL
	RegCH
	RegDL
	RegDH
	RegAX
	RegBX
	RegCX
	RegDX
	RegSI
	RegDI
	RegBP
	RegSP
	RegCS
	RegDS
	RegES
	RegSS
	RegIP
	RegFlags
)

var regNames = map[Register]string{
	RegNone: "none", RegAL: "al", RegAH: "ah", RegBL: "bl", RegBH: "bh",
	RegCL: "cl", RegCH: "ch", RegDL: "dl", RegDH: "dh",
	RegAX: "ax", RegBX: "bx", RegCX: "cx", RegDX: "dx",
	RegSI: "si", RegDI: "di", RegBP: "bp", RegSP: "sp",
	RegCS: "cs", RegDS: "ds", RegES: "es", RegSS: "ss",
	RegIP: "ip", RegFlags: "flags",
}

func (r Register) String() string {
	if name, ok := regNames[r]; ok {
		return name
	}
	return "???"
}

func (r Register) IsByte() bool    { return r >= RegAL && r <= RegDH }
func (r Register) IsWord() bool    { return r >= RegAX }
func (r Register) IsGeneral() bool { return r >= RegAX && r <= RegDX }
func (r Register) IsSegment() bool { return r >= RegCS && r <= RegSS }

// High returns the 8-bit high-half register of a word register, e.g.
// RegAX -> RegAH. Returns RegNone for anything that isn't a splittable
// general purpose register.
func (r Register) High() Register {
	switch r {
	case RegAX:
		return RegAH
	case RegBX:
		return RegBH
	case RegCX:
		return RegCH
	case RegDX:
		return RegDH
	default:
		return RegNone
	}
}

// Low is the low-half counterpart of High.
func (r Register) Low() Register {
	switch r {
	case RegAX:
		return RegAL
	case RegBX:
		return RegBL
	case RegCX:
		return RegCL
	case RegDX:
		return RegDL
	default:
		return RegNone
	}
}

// Flag is one bit of the FLAGS register.
type Flag uint16

const (
	FlagCarry  Flag = 1 << 0
	FlagParity Flag = 1 << 2
	FlagAuxC   Flag = 1 << 4
	FlagZero   Flag = 1 << 6
	FlagSign   Flag = 1 << 7
	FlagTrap   Flag = 1 << 8
	FlagInt    Flag = 1 << 9
	FlagDir    Flag = 1 << 10
	FlagOver   Flag = 1 << 11
)

// Registers is a flat bank of the 8086's word-sized registers, used by
// the explorer (spec §3.5) to track what little is known about register
// contents at a given point of control flow, never by an execution path.
type Registers struct {
	values [int(RegFlags-RegAX) + 1]uint16
	known  [int(RegFlags-RegAX) + 1]bool
}

func (r *Registers) idx(reg Register) int { return int(reg - RegAX) }

// Get returns a register's value and whether it is currently known.
func (r *Registers) Get(reg Register) (uint16, bool) {
	i := r.idx(reg)
	return r.values[i], r.known[i]
}

// Set records a known value for a register.
func (r *Registers) Set(reg Register, value uint16) {
	i := r.idx(reg)
	r.values[i] = value
	r.known[i] = true
}

// Clear marks a register as no longer known, e.g. after an instruction
// whose effect on it cannot be statically determined.
func (r *Registers) Clear(reg Register) {
	i := r.idx(reg)
	r.known[i] = false
	r.values[i] = 0
}

// CSIP returns the code pointer made up of CS:IP, if both are known.
func (r *Registers) CSIP() (address.Address, bool) {
	cs, csOK := r.Get(RegCS)
	ip, ipOK := r.Get(RegIP)
	if !csOK || !ipOK {
		return address.Address{}, false
	}
	return address.Address{Segment: cs, Offset: ip}, true
}
