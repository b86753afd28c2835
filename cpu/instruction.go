package cpu

import (
	"fmt"

	"github.com/retrodos/mzretools/address"
	"github.com/retrodos/mzretools/errs"
)

// InstructionClass identifies the operation an instruction performs,
// independent of its operand encoding (spec §3.3).
type InstructionClass int

const (
	ClsErr InstructionClass = iota
	ClsAdd
	ClsPush
	ClsPop
	ClsOr
	ClsAdc
	ClsSbb
	ClsAnd
	ClsDaa
	ClsSub
	ClsDas
	ClsXor
	ClsAaa
	ClsCmp
	ClsAas
	ClsInc
	ClsDec
	ClsJmp
	ClsJmpIf
	ClsJmpFar
	ClsTest
	ClsXchg
	ClsMov
	ClsLea
	ClsNop
	ClsCbw
	ClsCwd
	ClsCall
	ClsCallFar
	ClsWait
	ClsPushf
	ClsPopf
	ClsSahf
	ClsLahf
	ClsMovsb
	ClsMovsw
	ClsCmpsb
	ClsCmpsw
	ClsStosb
	ClsStosw
	ClsLodsb
	ClsLodsw
	ClsScasb
	ClsScasw
	ClsRet
	ClsLes
	ClsLds
	ClsRetf
	ClsInt
	ClsInt3
	ClsInto
	ClsIret
	ClsAam
	ClsAad
	ClsXlat
	ClsLoopnz
	ClsLoopz
	ClsLoop
	ClsIn
	ClsOut
	ClsLock
	ClsRepnz
	ClsRepz
	ClsHlt
	ClsCmc
	ClsClc
	ClsStc
	ClsCli
	ClsSti
	ClsCld
	ClsStd
	ClsRol
	ClsRor
	ClsRcl
	ClsRcr
	ClsShl
	ClsShr
	ClsSar
	ClsNot
	ClsNeg
	ClsMul
	ClsImul
	ClsDiv
	ClsIdiv
)

var classNames = map[InstructionClass]string{
	ClsErr: "???", ClsAdd: "add", ClsPush: "push", ClsPop: "pop", ClsOr: "or",
	ClsAdc: "adc", ClsSbb: "sbb", ClsAnd: "and", ClsDaa: "daa", ClsSub: "sub",
	ClsDas: "das", ClsXor: "xor", ClsAaa: "aaa", ClsCmp: "cmp", ClsAas: "aas",
	ClsInc: "inc", ClsDec: "dec", ClsJmp: "jmp", ClsJmpIf: "jcc", ClsJmpFar: "jmp far",
	ClsTest: "test", ClsXchg: "xchg", ClsMov: "mov", ClsLea: "lea", ClsNop: "nop",
	ClsCbw: "cbw", ClsCwd: "cwd", ClsCall: "call", ClsCallFar: "call far", ClsWait: "wait",
	ClsPushf: "pushf", ClsPopf: "popf", ClsSahf: "sahf", ClsLahf: "lahf",
	ClsMovsb: "movsb", ClsMovsw: "movsw", ClsCmpsb: "cmpsb", ClsCmpsw: "cmpsw",
	ClsStosb: "stosb", ClsStosw: "stosw", ClsLodsb: "lodsb", ClsLodsw: "lodsw",
	ClsScasb: "scasb", ClsScasw: "scasw", ClsRet: "ret", ClsLes: "les", ClsLds: "lds",
	ClsRetf: "retf", ClsInt: "int", ClsInt3: "int3", ClsInto: "into", ClsIret: "iret",
	ClsAam: "aam", ClsAad: "aad", ClsXlat: "xlat", ClsLoopnz: "loopnz", ClsLoopz: "loopz",
	ClsLoop: "loop", ClsIn: "in", ClsOut: "out", ClsLock: "lock", ClsRepnz: "repnz",
	ClsRepz: "repz", ClsHlt: "hlt", ClsCmc: "cmc", ClsClc: "clc", ClsStc: "stc",
	ClsCli: "cli", ClsSti: "sti", ClsCld: "cld", ClsStd: "std", ClsRol: "rol",
	ClsRor: "ror", ClsRcl: "rcl", ClsRcr: "rcr", ClsShl: "shl", ClsShr: "shr",
	ClsSar: "sar", ClsNot: "not", ClsNeg: "neg", ClsMul: "mul", ClsImul: "imul",
	ClsDiv: "div", ClsIdiv: "idiv",
}

func (c InstructionClass) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return "???"
}

// Prefix is a leading byte that modifies the instruction that follows it.
type Prefix int

const (
	PrfNone Prefix = iota
	PrfSegES
	PrfSegCS
	PrfSegSS
	PrfSegDS
	PrfChainRepnz
	PrfChainRepz
)

func (p Prefix) IsSegment() bool { return p >= PrfSegES && p <= PrfSegDS }

// OperandType identifies the storage an operand refers to: a register, a
// memory location computed from one of the 8086's addressing modes, or an
// immediate value (spec §3.3).
type OperandType int

const (
	OprErr OperandType = iota
	OprNone
	OprRegAX
	OprRegAL
	OprRegAH
	OprRegBX
	OprRegBL
	OprRegBH
	OprRegCX
	OprRegCL
	OprRegCH
	OprRegDX
	OprRegDL
	OprRegDH
	OprRegSI
	OprRegDI
	OprRegBP
	OprRegSP
	OprRegCS
	OprRegDS
	OprRegES
	OprRegSS
	OprMemBxSi
	OprMemBxDi
	OprMemBpSi
	OprMemBpDi
	OprMemSi
	OprMemDi
	OprMemBx
	OprMemOff8
	OprMemBxSiOff8
	OprMemBxDiOff8
	OprMemBpSiOff8
	OprMemBpDiOff8
	OprMemSiOff8
	OprMemDiOff8
	OprMemBpOff8
	OprMemBxOff8
	OprMemOff16
	OprMemBxSiOff16
	OprMemBxDiOff16
	OprMemBpSiOff16
	OprMemBpDiOff16
	OprMemSiOff16
	OprMemDiOff16
	OprMemBpOff16
	OprMemBxOff16
	OprImm0
	OprImm1
	OprImm8
	OprImm16
	OprImm32
)

func (t OperandType) IsReg() bool { return t >= OprRegAX && t <= OprRegSS }
func (t OperandType) IsMem() bool { return t >= OprMemBxSi && t <= OprMemBxOff16 }
func (t OperandType) IsMemWithOffset() bool {
	return t >= OprMemOff8 && t <= OprMemBxOff16
}
func (t OperandType) IsMemImmediate() bool { return t == OprMemOff8 || t == OprMemOff16 }
func (t OperandType) IsImmediate() bool    { return t >= OprImm0 && t <= OprImm32 }
func (t OperandType) IsExplicitImmediate() bool {
	return t >= OprImm8 && t <= OprImm32
}

// RegOf returns the Register a register-class OperandType names, or
// RegNone if t does not name a register.
func (t OperandType) RegOf() Register { return t.regOf() }

// regOf returns the Register a register-class OperandType names.
func (t OperandType) regOf() Register {
	switch t {
	case OprRegAX:
		return RegAX
	case OprRegAL:
		return RegAL
	case OprRegAH:
		return RegAH
	case OprRegBX:
		return RegBX
	case OprRegBL:
		return RegBL
	case OprRegBH:
		return RegBH
	case OprRegCX:
		return RegCX
	case OprRegCL:
		return RegCL
	case OprRegCH:
		return RegCH
	case OprRegDX:
		return RegDX
	case OprRegDL:
		return RegDL
	case OprRegDH:
		return RegDH
	case OprRegSI:
		return RegSI
	case OprRegDI:
		return RegDI
	case OprRegBP:
		return RegBP
	case OprRegSP:
		return RegSP
	case OprRegCS:
		return RegCS
	case OprRegDS:
		return RegDS
	case OprRegES:
		return RegES
	case OprRegSS:
		return RegSS
	default:
		return RegNone
	}
}

// IsStackRelative reports whether t addresses memory relative to BP by
// default (SS-based addressing), as opposed to DS-based addressing —
// used by the comparator to route operand offsets into the stack vs.
// data offset map (spec §4.6).
func (t OperandType) IsStackRelative() bool { return t.defaultSegment() == RegSS }

// defaultSegment is the implicit segment register a memory OperandType is
// addressed relative to, absent a segment override prefix.
func (t OperandType) defaultSegment() Register {
	switch t {
	case OprMemBpSi, OprMemBpDi, OprMemBpSiOff8, OprMemBpDiOff8, OprMemBpOff8,
		OprMemBpSiOff16, OprMemBpDiOff16, OprMemBpOff16:
		return RegSS
	case OprMemBxSi, OprMemBxDi, OprMemSi, OprMemDi, OprMemBx, OprMemOff8,
		OprMemBxSiOff8, OprMemBxDiOff8, OprMemSiOff8, OprMemDiOff8, OprMemBxOff8,
		OprMemOff16, OprMemBxSiOff16, OprMemBxDiOff16, OprMemSiOff16, OprMemDiOff16,
		OprMemBxOff16:
		return RegDS
	default:
		return RegNone
	}
}

// Operand is one argument of an Instruction (spec §3.3).
type Operand struct {
	Type   OperandType
	Offset int32 // signed memory displacement, when Type.IsMemWithOffset()
	Imm    int64 // immediate value or absolute near offset, when Type.IsImmediate()
}

// InstructionMatch is the outcome of comparing one instruction against
// another, used by the differential comparator (spec §4.9).
type InstructionMatch int

const (
	MatchError InstructionMatch = iota
	MatchFull
	MatchDiffVal
	MatchDiffTarget
	MatchVariant
	MatchMismatch
)

// Instruction is one decoded 8086 machine instruction (spec §3.3, §4.1).
type Instruction struct {
	Addr   address.Address
	Prefix Prefix
	Opcode byte
	Class  InstructionClass
	Length int
	Op1    Operand
	Op2    Operand
}

// Decode parses one instruction from data, which must start at addr and
// contain enough bytes to cover the longest possible encoding (6 bytes).
// It never panics: malformed or unrecognized encodings return an
// InstructionClass of ClsErr with errs.ErrDecode.
func Decode(addr address.Address, data []byte) (Instruction, error) {
	ins := Instruction{Addr: addr, Prefix: PrfNone}
	if len(data) == 0 {
		return ins, fmt.Errorf("%w: no data to decode at %s", errs.ErrDecode, addr)
	}
	pos := 0
	opcode := data[pos]
	pos++

	if opcode == opRepz || opcode == opRepnz {
		if opcode == opRepz {
			ins.Prefix = PrfChainRepz
		} else {
			ins.Prefix = PrfChainRepnz
		}
		ins.Length++
		if pos >= len(data) {
			return ins, fmt.Errorf("%w: truncated prefix at %s", errs.ErrDecode, addr)
		}
		opcode = data[pos]
		pos++
	} else if opcodeIsSegPrefixTbl[opcode] {
		ins.Prefix = Prefix(int(PrfSegES) + int(opcode-opPrefixES)/8)
		ins.Length++
		if pos >= len(data) {
			return ins, fmt.Errorf("%w: truncated prefix at %s", errs.ErrDecode, addr)
		}
		opcode = data[pos]
		pos++
	}
	ins.Opcode = opcode

	if opcode == opInvalid {
		return ins, fmt.Errorf("%w: invalid opcode 0x0f at %s", errs.ErrDecode, addr)
	}

	switch {
	case !opcodeIsModrmTbl[opcode]:
		ins.Class = instrClassTbl[opcode]
		ins.Op1.Type = op1TypeTbl[opcode]
		ins.Op2.Type = op2TypeTbl[opcode]
	case !opcodeIsGroupTbl[opcode]:
		ins.Class = instrClassTbl[opcode]
	default:
		idx := grpIdx[opcode]
		if idx < 0 {
			return ins, fmt.Errorf("%w: opcode 0x%02x has no group mapping", errs.ErrDecode, opcode)
		}
		if pos >= len(data) {
			return ins, fmt.Errorf("%w: truncated modrm at %s", errs.ErrDecode, addr)
		}
		grp := modrmReg(data[pos])
		ins.Class = grpClass[idx][grp]
	}

	if ins.Class == ClsErr {
		return ins, fmt.Errorf("%w: unrecognized opcode 0x%02x at %s", errs.ErrDecode, opcode, addr)
	}

	if opcodeIsModrmTbl[opcode] {
		if pos >= len(data) {
			return ins, fmt.Errorf("%w: truncated modrm at %s", errs.ErrDecode, addr)
		}
		modrm := data[pos]
		pos++
		ins.Length++
		k1, k2 := modrmOperandKinds(opcode, ins.Class)
		ins.Op1.Type = modrmOperandType(modrm, k1)
		ins.Op2.Type = modrmOperandType(modrm, k2)
		if ins.Op1.Type == OprErr || ins.Op2.Type == OprErr {
			return ins, fmt.Errorf("%w: invalid modrm operand at %s", errs.ErrDecode, addr)
		}
	}

	n, err := loadOperand(&ins.Op1, data[pos:])
	if err != nil {
		return ins, err
	}
	pos += n
	ins.Length += n

	n, err = loadOperand(&ins.Op2, data[pos:])
	if err != nil {
		return ins, err
	}
	pos += n
	ins.Length += n

	ins.Length += 1 // the opcode byte itself
	return ins, nil
}

// loadOperand consumes any displacement/immediate bytes an operand type
// requires and returns how many bytes were consumed.
func loadOperand(op *Operand, data []byte) (int, error) {
	switch {
	case op.Type == OprNone || op.Type.IsReg() || (op.Type.IsMem() && !op.Type.IsMemWithOffset()):
		return 0, nil
	case op.Type == OprMemOff8:
		// direct byte-sized memory operand (a0/a2): a 16-bit absolute offset
		if len(data) < 2 {
			return 0, fmt.Errorf("%w: truncated direct address", errs.ErrDecode)
		}
		op.Offset = int32(uint16(data[0]) | uint16(data[1])<<8)
		return 2, nil
	case op.Type >= OprMemOff8 && op.Type <= OprMemBxOff8:
		if len(data) < 1 {
			return 0, fmt.Errorf("%w: truncated byte displacement", errs.ErrDecode)
		}
		op.Offset = int32(int8(data[0]))
		return 1, nil
	case op.Type >= OprMemOff16 && op.Type <= OprMemBxOff16:
		if len(data) < 2 {
			return 0, fmt.Errorf("%w: truncated word displacement", errs.ErrDecode)
		}
		op.Offset = int32(int16(uint16(data[0]) | uint16(data[1])<<8))
		return 2, nil
	case op.Type == OprImm0:
		return 0, nil
	case op.Type == OprImm1:
		op.Imm = 1
		return 0, nil
	case op.Type == OprImm8:
		if len(data) < 1 {
			return 0, fmt.Errorf("%w: truncated byte immediate", errs.ErrDecode)
		}
		op.Imm = int64(int8(data[0]))
		return 1, nil
	case op.Type == OprImm16:
		if len(data) < 2 {
			return 0, fmt.Errorf("%w: truncated word immediate", errs.ErrDecode)
		}
		op.Imm = int64(int16(uint16(data[0]) | uint16(data[1])<<8))
		return 2, nil
	case op.Type == OprImm32:
		if len(data) < 4 {
			return 0, fmt.Errorf("%w: truncated dword immediate", errs.ErrDecode)
		}
		op.Imm = int64(uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24)
		return 4, nil
	default:
		return 0, nil
	}
}

// predicates used by the explorer to classify control flow (spec §3.3).
func (i Instruction) IsValid() bool { return i.Class != ClsErr }
func (i Instruction) IsJump() bool {
	return i.Class == ClsJmp || i.Class == ClsJmpIf || i.Class == ClsJmpFar
}
func (i Instruction) IsUnconditionalJump() bool {
	return i.Class == ClsJmp || i.Class == ClsJmpFar
}
func (i Instruction) IsCall() bool      { return i.Class == ClsCall || i.Class == ClsCallFar }
func (i Instruction) IsFarCall() bool   { return i.Class == ClsCallFar }
func (i Instruction) IsLoop() bool {
	return i.Class == ClsLoop || i.Class == ClsLoopz || i.Class == ClsLoopnz
}
func (i Instruction) IsBranch() bool { return i.IsJump() || i.IsCall() || i.IsLoop() }
func (i Instruction) IsNearJump() bool {
	return i.Class == ClsJmp || i.Class == ClsJmpIf || i.IsLoop()
}
func (i Instruction) IsNearBranch() bool { return i.IsNearJump() || i.Class == ClsCall }
func (i Instruction) IsReturn() bool {
	return i.Class == ClsRet || i.Class == ClsRetf || i.Class == ClsIret
}

// RelativeOffset returns the signed branch displacement of a near jump,
// call or loop instruction; it is added to the address just past the
// instruction to obtain the destination (spec §4.1).
func (i Instruction) RelativeOffset() (int32, bool) {
	if !i.IsNearBranch() {
		return 0, false
	}
	if i.Op1.Type == OprImm8 || i.Op1.Type == OprImm16 {
		return int32(i.Op1.Imm), true
	}
	return 0, false
}

// FarTarget returns the destination of a far jump/call encoded as a direct
// pointer (Ap operand), if this instruction has one.
func (i Instruction) FarTarget() (address.Address, bool) {
	if i.Op1.Type != OprImm32 {
		return address.Address{}, false
	}
	v := uint32(i.Op1.Imm)
	return address.Address{Segment: uint16(v >> 16), Offset: uint16(v)}, true
}

// Pattern renders the instruction as a signature byte sequence: the opcode
// byte verbatim followed by one wildcard marker per immediate/displacement
// byte, used for fuzzy matching across binary revisions (spec §4.9, §6.5).
// Prefix and modrm bytes are not included. A nil byte in the returned
// slice denotes "don't care".
func (i Instruction) Pattern() []*byte {
	out := make([]*byte, 0, i.Length)
	op := i.Opcode
	out = append(out, &op)
	for _, o := range []Operand{i.Op1, i.Op2} {
		if o.Type.IsMemWithOffset() || o.Type.IsExplicitImmediate() {
			n := 1
			if o.Type == OprMemOff8 || (o.Type >= OprMemOff16 && o.Type <= OprMemBxOff16) || o.Type == OprImm16 {
				n = 2
			} else if o.Type == OprImm32 {
				n = 4
			}
			for k := 0; k < n; k++ {
				out = append(out, nil)
			}
		}
	}
	return out
}

// Match compares this instruction against another decoded elsewhere,
// classifying how closely they agree (spec §4.9): identical encodings,
// including the prefix, are MatchFull; encodings differing only in a
// prefix or an immediate value are MatchDiffVal; differing only in a
// branch target are MatchDiffTarget; same class but different operand
// shapes is MatchVariant; anything else is MatchMismatch.
func (i Instruction) Match(other Instruction) InstructionMatch {
	if i.Class != other.Class {
		return MatchMismatch
	}
	if i.Op1.Type != other.Op1.Type || i.Op2.Type != other.Op2.Type {
		return MatchVariant
	}
	if i.IsBranch() {
		if i.Op1 != other.Op1 {
			return MatchDiffTarget
		}
		if i.Prefix != other.Prefix {
			return MatchDiffVal
		}
		return MatchFull
	}
	if i.Op1.Imm != other.Op1.Imm || i.Op2.Imm != other.Op2.Imm ||
		i.Op1.Offset != other.Op1.Offset || i.Op2.Offset != other.Op2.Offset ||
		i.Prefix != other.Prefix {
		return MatchDiffVal
	}
	return MatchFull
}
