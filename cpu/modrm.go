package cpu

// ModR/M byte layout: MMRRRCCC — MOD (2 bits), REG (3 bits), MEM (3 bits).
// MOD selects how MEM is interpreted: 00/01/10 name one of the indexed
// addressing modes (with no/8-bit/16-bit displacement), 11 names a
// register the same way REG does.
func modrmMod(b byte) byte { return (b >> 6) & 0x03 }
func modrmReg(b byte) byte { return (b >> 3) & 0x07 }
func modrmMem(b byte) byte { return b & 0x07 }

// modrmKind names which of the ModR/M-derived operand designators
// (following the original opcode-map notation) an opcode's operand uses.
type modrmKind int

const (
	mkNone modrmKind = iota
	mkEb             // byte register or memory, from MOD+MEM
	mkGb             // byte register, from REG
	mkEv             // word register or memory, from MOD+MEM
	mkGv             // word register, from REG
	mkSw             // segment register, from REG
	mkM              // memory only (LEA), from MOD+MEM
	mkMp             // memory only, far pointer (LES/LDS), from MOD+MEM
	mkIb             // byte immediate, no modrm contribution
	mkIv             // word immediate, no modrm contribution
	mk1              // implicit immediate 1 (shift/rotate by one)
	mkCL             // implicit CL register (shift/rotate by CL)
)

// modrmOperandKinds derives the operand designation of each of an
// instruction's two operands from its opcode and already-resolved class,
// following the naming convention of the original opcode map (Eb/Gb,
// Ev/Gv, and so on).
func modrmOperandKinds(opcode byte, class InstructionClass) (modrmKind, modrmKind) {
	switch opcode {
	case 0x00, 0x08, 0x10, 0x18, 0x20, 0x28, 0x30, 0x38:
		return mkEb, mkGb
	case 0x01, 0x09, 0x11, 0x19, 0x21, 0x29, 0x31, 0x39:
		return mkEv, mkGv
	case 0x02, 0x0a, 0x12, 0x1a, 0x22, 0x2a, 0x32, 0x3a:
		return mkGb, mkEb
	case 0x03, 0x0b, 0x13, 0x1b, 0x23, 0x2b, 0x33, 0x3b:
		return mkGv, mkEv
	case 0x84, 0x86:
		return mkGb, mkEb
	case 0x85, 0x87:
		return mkGv, mkEv
	case 0x88:
		return mkEb, mkGb
	case 0x89:
		return mkEv, mkGv
	case 0x8a:
		return mkGb, mkEb
	case 0x8b:
		return mkGv, mkEv
	case 0x8c:
		return mkEv, mkSw
	case 0x8d:
		return mkGv, mkM
	case 0x8e:
		return mkSw, mkEv
	case 0x8f:
		return mkEv, mkNone
	case 0x80, 0x82:
		return mkEb, mkIb
	case 0x81:
		return mkEv, mkIv
	case 0x83:
		return mkEv, mkIb
	case 0xc4, 0xc5:
		return mkGv, mkMp
	case 0xc6:
		return mkEb, mkIb
	case 0xc7:
		return mkEv, mkIv
	case 0xd0:
		return mkEb, mk1
	case 0xd1:
		return mkEv, mk1
	case 0xd2:
		return mkEb, mkCL
	case 0xd3:
		return mkEv, mkCL
	case 0xf6:
		if class == ClsTest {
			return mkEb, mkIb
		}
		return mkEb, mkNone
	case 0xf7:
		if class == ClsTest {
			return mkEv, mkIv
		}
		return mkEv, mkNone
	case 0xfe:
		return mkEb, mkNone
	case 0xff:
		return mkEv, mkNone
	default:
		return mkNone, mkNone
	}
}

var modrmByteMemOp = [4][8]OperandType{
	{OprMemBxSi, OprMemBxDi, OprMemBpSi, OprMemBpDi, OprMemSi, OprMemDi, OprMemOff16, OprMemBx},
	{OprMemBxSiOff8, OprMemBxDiOff8, OprMemBpSiOff8, OprMemBpDiOff8, OprMemSiOff8, OprMemDiOff8, OprMemBpOff8, OprMemBxOff8},
	{OprMemBxSiOff16, OprMemBxDiOff16, OprMemBpSiOff16, OprMemBpDiOff16, OprMemSiOff16, OprMemDiOff16, OprMemBpOff16, OprMemBxOff16},
	{OprRegAL, OprRegCL, OprRegDL, OprRegBL, OprRegAH, OprRegCH, OprRegDH, OprRegBH},
}

var modrmWordMemOp = [4][8]OperandType{
	{OprMemBxSi, OprMemBxDi, OprMemBpSi, OprMemBpDi, OprMemSi, OprMemDi, OprMemOff16, OprMemBx},
	{OprMemBxSiOff8, OprMemBxDiOff8, OprMemBpSiOff8, OprMemBpDiOff8, OprMemSiOff8, OprMemDiOff8, OprMemBpOff8, OprMemBxOff8},
	{OprMemBxSiOff16, OprMemBxDiOff16, OprMemBpSiOff16, OprMemBpDiOff16, OprMemSiOff16, OprMemDiOff16, OprMemBpOff16, OprMemBxOff16},
	{OprRegAX, OprRegCX, OprRegDX, OprRegBX, OprRegSP, OprRegBP, OprRegSI, OprRegDI},
}

// modrmMemOp is like modrmWordMemOp but has no MOD=11 (register) case,
// for M/Mp operands that must resolve to memory (LEA, LES, LDS).
var modrmMemOp = [3][8]OperandType{
	{OprMemBxSi, OprMemBxDi, OprMemBpSi, OprMemBpDi, OprMemSi, OprMemDi, OprMemOff16, OprMemBx},
	{OprMemBxSiOff8, OprMemBxDiOff8, OprMemBpSiOff8, OprMemBpDiOff8, OprMemSiOff8, OprMemDiOff8, OprMemBpOff8, OprMemBxOff8},
	{OprMemBxSiOff16, OprMemBxDiOff16, OprMemBpSiOff16, OprMemBpDiOff16, OprMemSiOff16, OprMemDiOff16, OprMemBpOff16, OprMemBxOff16},
}

var modrmByteRegOp = [8]OperandType{OprRegAL, OprRegCL, OprRegDL, OprRegBL, OprRegAH, OprRegCH, OprRegDH, OprRegBH}
var modrmWordRegOp = [8]OperandType{OprRegAX, OprRegCX, OprRegDX, OprRegBX, OprRegSP, OprRegBP, OprRegSI, OprRegDI}
var modrmSegRegOp = [8]OperandType{OprRegES, OprRegCS, OprRegSS, OprRegDS, OprErr, OprErr, OprErr, OprErr}

// modrmOperandType resolves a designator against an actual ModR/M byte.
func modrmOperandType(modrm byte, kind modrmKind) OperandType {
	mod, reg, mem := modrmMod(modrm), modrmReg(modrm), modrmMem(modrm)
	switch kind {
	case mkNone:
		return OprNone
	case mkEb:
		return modrmByteMemOp[mod][mem]
	case mkGb:
		return modrmByteRegOp[reg]
	case mkEv:
		return modrmWordMemOp[mod][mem]
	case mkGv:
		return modrmWordRegOp[reg]
	case mkSw:
		return modrmSegRegOp[reg]
	case mkM, mkMp:
		if mod == 3 {
			return OprErr
		}
		return modrmMemOp[mod][mem]
	case mkIb:
		return OprImm8
	case mkIv:
		return OprImm16
	case mk1:
		return OprImm1
	case mkCL:
		return OprRegCL
	default:
		return OprErr
	}
}
