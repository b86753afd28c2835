package cpu

// Raw opcode byte values referenced directly by the decoder; the bulk of
// the 256-entry space is only ever touched through the tables below.
const (
	opInvalid    = 0x0f
	opPrefixES   = 0x26
	opPrefixCS   = 0x2e
	opPrefixSS   = 0x36
	opPrefixDS   = 0x3e
	opRepnz      = 0xf2
	opRepz       = 0xf3
	opJOJb       = 0x70
	opGrp1EbIb   = 0x80
	opGrp5Ev     = 0xff
)

// opcodeIsModrm reports whether an opcode is followed by a ModR/M byte.
var opcodeIsModrmTbl = [256]bool{
	true, true, true, true, false, false, false, false, true, true, true, true, false, false, false, false,
	true, true, true, true, false, false, false, false, true, true, true, true, false, false, false, false,
	true, true, true, true, false, false, false, false, true, true, true, true, false, false, false, false,
	true, true, true, true, false, false, false, false, true, true, true, true, false, false, false, false,
	false, false, false, false, false, false, false, false, false, false, false, false, false, false, false, false,
	false, false, false, false, false, false, false, false, false, false, false, false, false, false, false, false,
	false, false, false, false, false, false, false, false, false, false, false, false, false, false, false, false,
	false, false, false, false, false, false, false, false, false, false, false, false, false, false, false, false,
	true, true, true, true, true, true, true, true, true, true, true, true, true, true, true, true,
	false, false, false, false, false, false, false, false, false, false, false, false, false, false, false, false,
	false, false, false, false, false, false, false, false, false, false, false, false, false, false, false, false,
	false, false, false, false, false, false, false, false, false, false, false, false, false, false, false, false,
	false, false, false, false, true, true, true, true, false, false, false, false, false, false, false, false,
	true, true, true, true, false, false, false, false, false, false, false, false, false, false, false, false,
	false, false, false, false, false, false, false, false, false, false, false, false, false, false, false, false,
	false, false, false, false, false, false, true, true, false, false, false, false, false, false, true, true,
}

// opcodeIsGroupTbl marks opcodes whose ModR/M REG field selects the
// instruction class from a group table rather than naming it directly.
var opcodeIsGroupTbl = [256]bool{
	false, false, false, false, false, false, false, false, false, false, false, false, false, false, false, false,
	false, false, false, false, false, false, false, false, false, false, false, false, false, false, false, false,
	false, false, false, false, false, false, false, false, false, false, false, false, false, false, false, false,
	false, false, false, false, false, false, false, false, false, false, false, false, false, false, false, false,
	false, false, false, false, false, false, false, false, false, false, false, false, false, false, false, false,
	false, false, false, false, false, false, false, false, false, false, false, false, false, false, false, false,
	false, false, false, false, false, false, false, false, false, false, false, false, false, false, false, false,
	false, false, false, false, false, false, false, false, false, false, false, false, false, false, false, false,
	true, true, true, true, false, false, false, false, false, false, false, false, false, false, false, false,
	false, false, false, false, false, false, false, false, false, false, false, false, false, false, false, false,
	false, false, false, false, false, false, false, false, false, false, false, false, false, false, false, false,
	false, false, false, false, false, false, false, false, false, false, false, false, false, false, false, false,
	false, false, false, false, false, false, false, false, false, false, false, false, false, false, false, false,
	true, true, true, true, false, false, false, false, false, false, false, false, false, false, false, false,
	false, false, false, false, false, false, false, false, false, false, false, false, false, false, false, false,
	false, false, false, false, false, false, true, true, false, false, false, false, false, false, true, true,
}

// opcodeIsSegPrefixTbl marks the four segment-override prefix bytes.
var opcodeIsSegPrefixTbl = [256]bool{}

func init() {
	opcodeIsSegPrefixTbl[opPrefixES] = true
	opcodeIsSegPrefixTbl[opPrefixCS] = true
	opcodeIsSegPrefixTbl[opPrefixSS] = true
	opcodeIsSegPrefixTbl[opPrefixDS] = true
}

// opcodeInstrLenTbl is the length of the instruction in bytes not
// counting the opcode's own ModR/M displacement bytes, ported from the
// per-opcode length table (spec §4.1).
var opcodeInstrLenTbl = [256]int{
	2, 2, 2, 2, 2, 3, 1, 1, 2, 2, 2, 2, 2, 3, 1, 0,
	2, 2, 2, 2, 2, 3, 1, 1, 2, 2, 2, 2, 2, 3, 1, 1,
	2, 2, 2, 2, 2, 3, 0, 0, 2, 2, 2, 2, 2, 3, 0, 0,
	2, 2, 2, 2, 2, 3, 0, 0, 2, 2, 2, 2, 2, 3, 0, 0,
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2,
	3, 4, 3, 3, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2,
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 5, 1, 1, 1, 1, 1,
	3, 3, 3, 3, 1, 1, 1, 1, 2, 3, 1, 1, 1, 1, 1, 1,
	2, 2, 2, 2, 2, 2, 2, 2, 3, 3, 3, 3, 3, 3, 3, 3,
	0, 0, 3, 1, 4, 4, 3, 4, 0, 0, 3, 1, 1, 2, 1, 1,
	2, 2, 2, 2, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0,
	2, 2, 2, 2, 2, 2, 2, 2, 3, 3, 5, 2, 1, 1, 1, 1,
	1, 0, 1, 1, 1, 1, 2, 2, 1, 1, 1, 1, 1, 1, 2, 2,
}

// instrClassTbl maps a (non-group) opcode to an instruction class,
// transliterated from the original INSTR_CLASS table.
var instrClassTbl = [256]InstructionClass{
	ClsAdd, ClsAdd, ClsAdd, ClsAdd, ClsAdd, ClsAdd, ClsPush, ClsPop, ClsOr, ClsOr, ClsOr, ClsOr, ClsOr, ClsOr, ClsPush, ClsErr,
	ClsAdc, ClsAdc, ClsAdc, ClsAdc, ClsAdc, ClsAdc, ClsPush, ClsPop, ClsSbb, ClsSbb, ClsSbb, ClsSbb, ClsSbb, ClsSbb, ClsPush, ClsPop,
	ClsAnd, ClsAnd, ClsAnd, ClsAnd, ClsAnd, ClsAnd, ClsErr, ClsDaa, ClsSub, ClsSub, ClsSub, ClsSub, ClsSub, ClsSub, ClsErr, ClsDas,
	ClsXor, ClsXor, ClsXor, ClsXor, ClsXor, ClsXor, ClsErr, ClsAaa, ClsCmp, ClsCmp, ClsCmp, ClsCmp, ClsCmp, ClsCmp, ClsErr, ClsAas,
	ClsInc, ClsInc, ClsInc, ClsInc, ClsInc, ClsInc, ClsInc, ClsInc, ClsDec, ClsDec, ClsDec, ClsDec, ClsDec, ClsDec, ClsDec, ClsDec,
	ClsPush, ClsPush, ClsPush, ClsPush, ClsPush, ClsPush, ClsPush, ClsPush, ClsPop, ClsPop, ClsPop, ClsPop, ClsPop, ClsPop, ClsPop, ClsPop,
	ClsErr, ClsErr, ClsErr, ClsErr, ClsErr, ClsErr, ClsErr, ClsErr, ClsErr, ClsErr, ClsErr, ClsErr, ClsErr, ClsErr, ClsErr, ClsErr,
	ClsJmpIf, ClsJmpIf, ClsJmpIf, ClsJmpIf, ClsJmpIf, ClsJmpIf, ClsJmpIf, ClsJmpIf, ClsJmpIf, ClsJmpIf, ClsJmpIf, ClsJmpIf, ClsJmpIf, ClsJmpIf, ClsJmpIf, ClsJmpIf,
	ClsErr, ClsErr, ClsErr, ClsErr, ClsTest, ClsTest, ClsXchg, ClsXchg, ClsMov, ClsMov, ClsMov, ClsMov, ClsMov, ClsLea, ClsMov, ClsPop,
	ClsNop, ClsXchg, ClsXchg, ClsXchg, ClsXchg, ClsXchg, ClsXchg, ClsXchg, ClsCbw, ClsCwd, ClsCallFar, ClsWait, ClsPushf, ClsPopf, ClsSahf, ClsLahf,
	ClsMov, ClsMov, ClsMov, ClsMov, ClsMovsb, ClsMovsw, ClsCmpsb, ClsCmpsw, ClsTest, ClsTest, ClsStosb, ClsStosw, ClsLodsb, ClsLodsw, ClsScasb, ClsScasw,
	ClsMov, ClsMov, ClsMov, ClsMov, ClsMov, ClsMov, ClsMov, ClsMov, ClsMov, ClsMov, ClsMov, ClsMov, ClsMov, ClsMov, ClsMov, ClsMov,
	ClsErr, ClsErr, ClsRet, ClsRet, ClsLes, ClsLds, ClsMov, ClsMov, ClsErr, ClsErr, ClsRetf, ClsRetf, ClsInt, ClsInt, ClsInto, ClsIret,
	ClsErr, ClsErr, ClsErr, ClsErr, ClsAam, ClsAad, ClsErr, ClsXlat, ClsErr, ClsErr, ClsErr, ClsErr, ClsErr, ClsErr, ClsErr, ClsErr,
	ClsLoopnz, ClsLoopz, ClsLoop, ClsJmpIf, ClsIn, ClsIn, ClsOut, ClsOut, ClsCall, ClsJmp, ClsJmpFar, ClsJmp, ClsIn, ClsIn, ClsOut, ClsOut,
	ClsLock, ClsErr, ClsRepnz, ClsRepz, ClsHlt, ClsCmc, ClsErr, ClsErr, ClsClc, ClsStc, ClsCli, ClsSti, ClsCld, ClsStd, ClsErr, ClsErr,
}

// op1TypeTbl/op2TypeTbl give the operand types of non-modrm opcodes,
// transliterated from OP1_TYPE/OP2_TYPE.
var op1TypeTbl = [256]OperandType{
	OprErr, OprErr, OprErr, OprErr, OprRegAL, OprRegAX, OprRegES, OprRegES, OprErr, OprErr, OprErr, OprErr, OprRegAL, OprRegAX, OprRegCS, OprErr,
	OprErr, OprErr, OprErr, OprErr, OprRegAL, OprRegAX, OprRegSS, OprRegSS, OprErr, OprErr, OprErr, OprErr, OprRegAL, OprRegAX, OprRegDS, OprRegDS,
	OprErr, OprErr, OprErr, OprErr, OprRegAL, OprRegAX, OprErr, OprNone, OprErr, OprErr, OprErr, OprErr, OprRegAL, OprRegAX, OprErr, OprNone,
	OprErr, OprErr, OprErr, OprErr, OprRegAL, OprRegAX, OprErr, OprNone, OprErr, OprErr, OprErr, OprErr, OprRegAL, OprRegAX, OprErr, OprNone,
	OprRegAX, OprRegCX, OprRegDX, OprRegBX, OprRegSP, OprRegBP, OprRegSI, OprRegDI, OprRegAX, OprRegCX, OprRegDX, OprRegBX, OprRegSP, OprRegBP, OprRegSI, OprRegDI,
	OprRegAX, OprRegCX, OprRegDX, OprRegBX, OprRegSP, OprRegBP, OprRegSI, OprRegDI, OprRegAX, OprRegCX, OprRegDX, OprRegBX, OprRegSP, OprRegBP, OprRegSI, OprRegDI,
	OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr,
	OprImm8, OprImm8, OprImm8, OprImm8, OprImm8, OprImm8, OprImm8, OprImm8, OprImm8, OprImm8, OprImm8, OprImm8, OprImm8, OprImm8, OprImm8, OprImm8,
	OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr,
	OprNone, OprRegCX, OprRegDX, OprRegBX, OprRegSP, OprRegBP, OprRegSI, OprRegDI, OprNone, OprNone, OprImm32, OprNone, OprNone, OprNone, OprNone, OprNone,
	OprRegAL, OprRegAX, OprMemOff8, OprMemOff16, OprNone, OprNone, OprNone, OprNone, OprRegAL, OprRegAX, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone,
	OprRegAL, OprRegCL, OprRegDL, OprRegBL, OprRegAH, OprRegCH, OprRegDH, OprRegBH, OprRegAX, OprRegCX, OprRegDX, OprRegBX, OprRegSP, OprRegBP, OprRegSI, OprRegDI,
	OprErr, OprErr, OprImm16, OprNone, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprImm16, OprNone, OprNone, OprImm8, OprNone, OprNone,
	OprErr, OprErr, OprErr, OprErr, OprImm0, OprImm0, OprErr, OprNone, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr,
	OprImm8, OprImm8, OprImm8, OprImm8, OprRegAL, OprRegAX, OprImm8, OprImm8, OprImm16, OprImm16, OprImm32, OprImm8, OprRegAL, OprRegAX, OprRegDX, OprRegDX,
	OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprErr, OprErr, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprErr, OprErr,
}

var op2TypeTbl = [256]OperandType{
	OprErr, OprErr, OprErr, OprErr, OprImm8, OprImm16, OprNone, OprNone, OprErr, OprErr, OprErr, OprErr, OprImm8, OprImm16, OprNone, OprErr,
	OprErr, OprErr, OprErr, OprErr, OprImm8, OprImm16, OprNone, OprNone, OprErr, OprErr, OprErr, OprErr, OprImm8, OprImm16, OprNone, OprNone,
	OprErr, OprErr, OprErr, OprErr, OprImm8, OprImm16, OprNone, OprNone, OprErr, OprErr, OprErr, OprErr, OprImm8, OprImm16, OprErr, OprNone,
	OprErr, OprErr, OprErr, OprErr, OprImm8, OprImm16, OprNone, OprNone, OprErr, OprErr, OprErr, OprErr, OprImm8, OprImm16, OprErr, OprNone,
	OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone,
	OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone,
	OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr,
	OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone,
	OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr,
	OprNone, OprRegAX, OprRegAX, OprRegAX, OprRegAX, OprRegAX, OprRegAX, OprRegAX, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone,
	OprMemOff8, OprMemOff16, OprRegAL, OprRegAX, OprNone, OprNone, OprNone, OprNone, OprImm8, OprImm16, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone,
	OprImm8, OprImm8, OprImm8, OprImm8, OprImm8, OprImm8, OprImm8, OprImm8, OprImm16, OprImm16, OprImm16, OprImm16, OprImm16, OprImm16, OprImm16, OprImm16,
	OprErr, OprErr, OprNone, OprNone, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone,
	OprErr, OprErr, OprErr, OprErr, OprNone, OprNone, OprErr, OprNone, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr, OprErr,
	OprNone, OprNone, OprNone, OprNone, OprImm8, OprImm8, OprRegAL, OprRegAX, OprNone, OprNone, OprNone, OprNone, OprRegDX, OprRegDX, OprRegAL, OprRegAX,
	OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprErr, OprErr, OprNone, OprNone, OprNone, OprNone, OprNone, OprNone, OprErr, OprErr,
}

// grpIdx maps a group opcode to an index into grpClass; -1 for non-group opcodes.
var grpIdx = [256]int{}

func init() {
	for i := range grpIdx {
		grpIdx[i] = -1
	}
	for _, op := range []byte{0x80, 0x81, 0x82, 0x83} {
		grpIdx[op] = 0
	}
	for _, op := range []byte{0xd0, 0xd1, 0xd2, 0xd3} {
		grpIdx[op] = 1
	}
	grpIdx[0xf6] = 2
	grpIdx[0xf7] = 3
	grpIdx[0xfe] = 4
	grpIdx[0xff] = 5
}

// grpClass resolves a group index and the REG field of the ModR/M byte to
// an instruction class, transliterated from GRP_CLASS.
var grpClass = [6][8]InstructionClass{
	{ClsAdd, ClsOr, ClsAdc, ClsSbb, ClsAnd, ClsSub, ClsXor, ClsCmp},         // GRP1
	{ClsRol, ClsRor, ClsRcl, ClsRcr, ClsShl, ClsShr, ClsErr, ClsSar},        // GRP2
	{ClsTest, ClsErr, ClsNot, ClsNeg, ClsMul, ClsImul, ClsDiv, ClsIdiv},     // GRP3a
	{ClsTest, ClsErr, ClsNot, ClsNeg, ClsMul, ClsImul, ClsDiv, ClsIdiv},     // GRP3b
	{ClsInc, ClsDec, ClsErr, ClsErr, ClsErr, ClsErr, ClsErr, ClsErr},        // GRP4
	{ClsInc, ClsDec, ClsCall, ClsCallFar, ClsJmp, ClsJmpFar, ClsPush, ClsErr}, // GRP5
}

// OpcodeHasModrm reports whether opcode is followed by a ModR/M byte.
func OpcodeHasModrm(opcode byte) bool { return opcodeIsModrmTbl[opcode] }

// OpcodeIsGroup reports whether opcode's class comes from a group table.
func OpcodeIsGroup(opcode byte) bool { return opcodeIsGroupTbl[opcode] }

// OpcodeIsSegmentPrefix reports whether opcode is a segment override prefix.
func OpcodeIsSegmentPrefix(opcode byte) bool { return opcodeIsSegPrefixTbl[opcode] }

// OpcodeBaseLength is the opcode's fixed length, not including any
// ModR/M displacement bytes that only a concrete instance may carry.
func OpcodeBaseLength(opcode byte) int { return opcodeInstrLenTbl[opcode] }
