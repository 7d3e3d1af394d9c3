package aarch64

// opcode enumerates the target instructions this backend emits. The table
// below pairs each opcode with its assembly mnemonic and operand shape; the
// shape drives the emitter's formatting switch so each instruction doesn't
// need a hand-written case.
type opcode uint32

const (
	opInvalid opcode = iota

	opADD
	opSUB
	opSDIV
	opMUL
	opAND
	opORR
	opEOR
	opLSL
	opLSR
	opASR
	opMOVZ
	opMOVK
	opUXTW
	opLA // pseudo: ldr rd, =symbol
	opCSET
	opSTP
	opLDP
	opLDR
	opSTR
	opCMP
	opB
	opBCOND // conditional branch pair: b.<cc> taken-target; b fallthrough
	opBL
	opBLR
	opRET
	opFADD
	opFSUB
	opFMUL
	opFDIV
	opFCMP
	opFMOV
	opSCVTF
	opFCVTZS
	opNOP
)

// opShape classifies operand layout for the emitter.
type opShape byte

const (
	shapeR    opShape = iota // rd, rs1, rs2 (rs2 may be an immediate)
	shapeR2                  // rd, rs
	shapeM                   // rt, [base, #off]
	shapeP                   // rt1, rt2, [base, #off]
	shapeL                   // label
	shapeSYM                 // symbol
	shapeZ                   // no operands
)

type opInfo struct {
	mnemonic string
	shape    opShape
}

var opTable = map[opcode]opInfo{
	opADD:    {"add", shapeR},
	opSUB:    {"sub", shapeR},
	opSDIV:   {"sdiv", shapeR},
	opMUL:    {"mul", shapeR},
	opAND:    {"and", shapeR},
	opORR:    {"orr", shapeR},
	opEOR:    {"eor", shapeR},
	opLSL:    {"lsl", shapeR},
	opLSR:    {"lsr", shapeR},
	opASR:    {"asr", shapeR},
	opMOVZ:   {"movz", shapeR},
	opMOVK:   {"movk", shapeR},
	opUXTW:   {"uxtw", shapeR2},
	opLA:     {"la", shapeR2},
	opCSET:   {"cset", shapeR2},
	opSTP:    {"stp", shapeP},
	opLDP:    {"ldp", shapeP},
	opLDR:    {"ldr", shapeM},
	opSTR:    {"str", shapeM},
	opCMP:    {"cmp", shapeR2},
	opB:      {"b", shapeL},
	opBCOND:  {"b", shapeL},
	opBL:     {"bl", shapeSYM},
	opBLR:    {"blr", shapeR},
	opRET:    {"ret", shapeZ},
	opFADD:   {"fadd", shapeR},
	opFSUB:   {"fsub", shapeR},
	opFMUL:   {"fmul", shapeR},
	opFDIV:   {"fdiv", shapeR},
	opFCMP:   {"fcmp", shapeR2},
	opFMOV:   {"fmov", shapeR2},
	opSCVTF:  {"scvtf", shapeR2},
	opFCVTZS: {"fcvtzs", shapeR2},
	opNOP:    {"nop", shapeZ},
}

func mnemonicOf(op opcode) string { return opTable[op].mnemonic }
func shapeOf(op opcode) opShape   { return opTable[op].shape }

// Condition-code payloads carried by CSET and BCOND. The numbering matches
// the ARM condition field and must stay byte-exact: 0=EQ, 1=NE, 2=CS, 3=CC,
// 8=HI, 9=LS, 10=GE, 11=LT, 12=GT, 13=LE.
const (
	ccEQ byte = 0
	ccNE byte = 1
	ccCS byte = 2
	ccCC byte = 3
	ccHI byte = 8
	ccLS byte = 9
	ccGE byte = 10
	ccLT byte = 11
	ccGT byte = 12
	ccLE byte = 13
)

// condName renders a condition-code payload as the suffix used by CSET and
// B.<cc>. CS/CC print as their hs/lo aliases.
func condName(cc byte) string {
	switch cc {
	case ccEQ:
		return "eq"
	case ccNE:
		return "ne"
	case ccCS:
		return "hs"
	case ccCC:
		return "lo"
	case ccHI:
		return "hi"
	case ccLS:
		return "ls"
	case ccGE:
		return "ge"
	case ccLT:
		return "lt"
	case ccGT:
		return "gt"
	case ccLE:
		return "le"
	default:
		return "eq"
	}
}

