package ir

import (
	"fmt"
	"strings"
)

// Opcode identifies the operation an Instruction performs: Alloca, Load,
// Store, the arithmetic group, Icmp/Fcmp, Br/BrCond, Phi, Call, Ret, GEP,
// Zext, SIToFP, FPToSI, plus the constant/global materializers.
type Opcode uint32

const (
	OpInvalid Opcode = iota

	// OpIconst materializes an integer immediate into a Value.
	OpIconst
	// OpFconst materializes a float immediate.
	OpFconst
	// OpGlobalAddr materializes the address of a global (GLOBAL).

	OpAlloca
	OpLoad
	OpStore

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv

	OpIcmp
	OpFcmp

	OpBr
	OpBrCond
	OpRet

	OpPhi
	OpCall

	OpGEP
	OpZext
	OpSIToFP
	OpFPToSI

	OpGlobalAddr
)

// String implements fmt.Stringer.
func (o Opcode) String() string {
	switch o {
	case OpIconst:
		return "iconst"
	case OpFconst:
		return "fconst"
	case OpAlloca:
		return "alloca"
	case OpLoad:
		return "load"
	case OpStore:
		return "store"
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	case OpMod:
		return "mod"
	case OpFAdd:
		return "fadd"
	case OpFSub:
		return "fsub"
	case OpFMul:
		return "fmul"
	case OpFDiv:
		return "fdiv"
	case OpIcmp:
		return "icmp"
	case OpFcmp:
		return "fcmp"
	case OpBr:
		return "br"
	case OpBrCond:
		return "brcond"
	case OpRet:
		return "ret"
	case OpPhi:
		return "phi"
	case OpCall:
		return "call"
	case OpGEP:
		return "gep"
	case OpZext:
		return "zext"
	case OpSIToFP:
		return "sitofp"
	case OpFPToSI:
		return "fptosi"
	case OpGlobalAddr:
		return "globaladdr"
	default:
		return "invalid"
	}
}

// IntCC is an integer comparison predicate, carried as Icmp's condition payload.
type IntCC byte

const (
	IntEQ IntCC = iota
	IntNE
	IntSLT
	IntSLE
	IntSGT
	IntSGE
)

func (c IntCC) String() string {
	return [...]string{"eq", "ne", "slt", "sle", "sgt", "sge"}[c]
}

// FloatCC is a floating comparison predicate, carried as Fcmp's condition payload.
type FloatCC byte

const (
	FloatEQ FloatCC = iota
	FloatNE
	FloatLT
	FloatLE
	FloatGT
	FloatGE
)

func (c FloatCC) String() string {
	return [...]string{"eq", "ne", "lt", "le", "gt", "ge"}[c]
}

// PhiEdge is one (incoming-block, incoming-value) pair of a Phi instruction.
type PhiEdge struct {
	Block *BasicBlock
	Value Value
}

// Instruction is a flattened representation of every opcode in this IR:
// since Go has no tagged union, every Instruction carries the union of
// fields any opcode might need, and only the fields relevant to Opcode()
// are meaningful for a given instruction.
type Instruction struct {
	opcode Opcode
	typ    DataType // type of the result value (or the stored value's type for Store)

	result Value // the Value this instruction defines, or ValueInvalid

	// Generic operands. Their meaning depends on opcode:
	//   Store:  a=value, b=ptr
	//   Load:   a=ptr
	//   Arith:  a=lhs, b=rhs
	//   Icmp/Fcmp: a=lhs, b=rhs, cond in icc/fcc
	//   GEP:    a=basePtr, indices in indices
	//   Zext/SIToFP/FPToSI: a=src
	//   BrCond: a=cond
	//   Ret:    a=value (invalid for void ret)
	a, b Value

	indices []Value // GEP index operands
	dims    []int64 // GEP array dimensions (outer to inner), for stride computation
	elemTy  DataType

	icc IntCC
	fcc FloatCC

	iimm int64   // OpIconst payload
	fimm float64 // OpFconst payload

	sym string // OpGlobalAddr / OpCall callee name

	args []Value // OpCall argument list

	// Alloca-only: size/alignment of the local object.
	allocSize  int64
	allocAlign int64

	// Br/BrCond targets. Br: targets[0]. BrCond: targets[0]=true, targets[1]=false.
	targets []*BasicBlock

	phiEdges []PhiEdge

	block *BasicBlock
	prev, next *Instruction
}

// Opcode returns the opcode of i.
func (i *Instruction) Opcode() Opcode { return i.opcode }

// Type returns the DataType of the value i produces (typeInvalid if none).
func (i *Instruction) Type() DataType { return i.typ }

// Result returns the Value defined by i, or ValueInvalid.
func (i *Instruction) Result() Value { return i.result }

// Block returns the BasicBlock owning i.
func (i *Instruction) Block() *BasicBlock { return i.block }

// AsIconst configures i as an integer-immediate instruction producing result.
func (i *Instruction) AsIconst(result Value, imm int64) *Instruction {
	i.opcode, i.result, i.typ, i.iimm = OpIconst, result, result.Type(), imm
	return i
}

// AsFconst configures i as a float-immediate instruction producing result.
func (i *Instruction) AsFconst(result Value, imm float64) *Instruction {
	i.opcode, i.result, i.typ, i.fimm = OpFconst, result, result.Type(), imm
	return i
}

// AsGlobalAddr configures i to materialize the address of the named global.
func (i *Instruction) AsGlobalAddr(result Value, name string) *Instruction {
	i.opcode, i.result, i.typ, i.sym = OpGlobalAddr, result, result.Type(), name
	return i
}

// AsAlloca configures i as a stack-object allocation of size/align bytes,
// producing a pointer Value.
func (i *Instruction) AsAlloca(result Value, size, align int64) *Instruction {
	i.opcode, i.result, i.typ = OpAlloca, result, result.Type()
	i.allocSize, i.allocAlign = size, align
	return i
}

// AllocaSize returns the size in bytes of the object allocated by an Alloca instruction.
func (i *Instruction) AllocaSize() int64 { return i.allocSize }

// AllocaAlign returns the alignment in bytes of the object allocated by an Alloca instruction.
func (i *Instruction) AllocaAlign() int64 { return i.allocAlign }

// AsLoad configures i to load result.Type() from ptr.
func (i *Instruction) AsLoad(result, ptr Value) *Instruction {
	i.opcode, i.result, i.typ, i.a = OpLoad, result, result.Type(), ptr
	return i
}

// AsStore configures i to store value to ptr.
func (i *Instruction) AsStore(value, ptr Value) *Instruction {
	i.opcode, i.result, i.a, i.b, i.typ = OpStore, ValueInvalid, value, ptr, value.Type()
	return i
}

// AsBinary configures i as a binary arithmetic instruction (op must be one of
// OpAdd/OpSub/OpMul/OpDiv/OpMod/OpFAdd/OpFSub/OpFMul/OpFDiv).
func (i *Instruction) AsBinary(op Opcode, result, x, y Value) *Instruction {
	i.opcode, i.result, i.typ, i.a, i.b = op, result, result.Type(), x, y
	return i
}

// AsIcmp configures i to compare x and y with the integer predicate c,
// producing an i1 result.
func (i *Instruction) AsIcmp(result, x, y Value, c IntCC) *Instruction {
	i.opcode, i.result, i.typ, i.a, i.b, i.icc = OpIcmp, result, result.Type(), x, y, c
	return i
}

// AsFcmp configures i to compare x and y with the float predicate c,
// producing an i1 result.
func (i *Instruction) AsFcmp(result, x, y Value, c FloatCC) *Instruction {
	i.opcode, i.result, i.typ, i.a, i.b, i.fcc = OpFcmp, result, result.Type(), x, y, c
	return i
}

// AsBr configures i as an unconditional branch to target.
func (i *Instruction) AsBr(target *BasicBlock) *Instruction {
	i.opcode, i.result, i.targets = OpBr, ValueInvalid, []*BasicBlock{target}
	return i
}

// AsBrCond configures i as a conditional branch: to ifTrue when cond != 0, else ifFalse.
func (i *Instruction) AsBrCond(cond Value, ifTrue, ifFalse *BasicBlock) *Instruction {
	i.opcode, i.result, i.a, i.targets = OpBrCond, ValueInvalid, cond, []*BasicBlock{ifTrue, ifFalse}
	return i
}

// AsRet configures i as a return instruction. value may be ValueInvalid for a void return.
func (i *Instruction) AsRet(value Value) *Instruction {
	i.opcode, i.result, i.a = OpRet, ValueInvalid, value
	return i
}

// AsPhi configures i as a phi node with the given incoming edges.
func (i *Instruction) AsPhi(result Value, edges []PhiEdge) *Instruction {
	i.opcode, i.result, i.typ, i.phiEdges = OpPhi, result, result.Type(), edges
	return i
}

// AsCall configures i to call callee with args, producing result (which may
// be ValueInvalid for a void call).
func (i *Instruction) AsCall(result Value, callee string, args []Value) *Instruction {
	i.opcode, i.result, i.sym, i.args = OpCall, result, callee, args
	if result.Valid() {
		i.typ = result.Type()
	}
	return i
}

// AsGEP configures i to compute a pointer offset from base by indices scaled
// against dims (outermost-to-innermost array bounds) and an elemTy-sized
// element: stride[i] = elemTy.Size() * product(dims[i+1:]).
func (i *Instruction) AsGEP(result, base Value, indices []Value, dims []int64, elemTy DataType) *Instruction {
	i.opcode, i.result, i.typ, i.a, i.indices, i.dims, i.elemTy = OpGEP, result, result.Type(), base, indices, dims, elemTy
	return i
}

// AsZext configures i to zero-extend src into result.
func (i *Instruction) AsZext(result, src Value) *Instruction {
	i.opcode, i.result, i.typ, i.a = OpZext, result, result.Type(), src
	return i
}

// AsSIToFP configures i to convert the signed integer src to a float result.
func (i *Instruction) AsSIToFP(result, src Value) *Instruction {
	i.opcode, i.result, i.typ, i.a = OpSIToFP, result, result.Type(), src
	return i
}

// AsFPToSI configures i to convert the float src to a signed integer result.
func (i *Instruction) AsFPToSI(result, src Value) *Instruction {
	i.opcode, i.result, i.typ, i.a = OpFPToSI, result, result.Type(), src
	return i
}

// Args returns the generic (a, b) operand pair; meaning depends on Opcode.
func (i *Instruction) Args() (Value, Value) { return i.a, i.b }

// Arg returns the sole operand for single-operand opcodes (Load, Zext,
// SIToFP, FPToSI, BrCond's condition, Ret's value, GEP's base).
func (i *Instruction) Arg() Value { return i.a }

// IntCond returns the predicate of an Icmp instruction.
func (i *Instruction) IntCond() IntCC { return i.icc }

// FloatCond returns the predicate of an Fcmp instruction.
func (i *Instruction) FloatCond() FloatCC { return i.fcc }

// Iconst returns the integer immediate payload of an Iconst instruction.
func (i *Instruction) Iconst() int64 { return i.iimm }

// Fconst returns the float immediate payload of an Fconst instruction.
func (i *Instruction) Fconst() float64 { return i.fimm }

// Sym returns the symbol name of a GlobalAddr or Call instruction.
func (i *Instruction) Sym() string { return i.sym }

// CallArgs returns the argument list of a Call instruction.
func (i *Instruction) CallArgs() []Value { return i.args }

// GEPIndices returns the index operands of a GEP instruction.
func (i *Instruction) GEPIndices() []Value { return i.indices }

// GEPDims returns the array dimensions of a GEP instruction, outermost first.
func (i *Instruction) GEPDims() []int64 { return i.dims }

// GEPElemType returns the scalar element type addressed by a GEP instruction.
func (i *Instruction) GEPElemType() DataType { return i.elemTy }

// BrTargets returns the branch target(s): one for Br, two ([ifTrue, ifFalse]) for BrCond.
func (i *Instruction) BrTargets() []*BasicBlock { return i.targets }

// PhiEdges returns the incoming (block, value) pairs of a Phi instruction.
func (i *Instruction) PhiEdges() []PhiEdge { return i.phiEdges }

// SetPhiEdges replaces the incoming edges of a Phi instruction; used by phi
// elimination's critical-edge splitting to rename an incoming block to the
// newly-inserted edge block.
func (i *Instruction) SetPhiEdges(edges []PhiEdge) { i.phiEdges = edges }

// IsTerminator reports whether i ends a basic block.
func (i *Instruction) IsTerminator() bool {
	switch i.opcode {
	case OpBr, OpBrCond, OpRet:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer, formatting i for debug dumps.
func (i *Instruction) String() string {
	var b strings.Builder
	if i.result.Valid() {
		fmt.Fprintf(&b, "%s = ", i.result)
	}
	fmt.Fprintf(&b, "%s", i.opcode)
	switch i.opcode {
	case OpIconst:
		fmt.Fprintf(&b, " %d", i.iimm)
	case OpFconst:
		fmt.Fprintf(&b, " %g", i.fimm)
	case OpAlloca:
		fmt.Fprintf(&b, " size=%d align=%d", i.allocSize, i.allocAlign)
	case OpLoad:
		fmt.Fprintf(&b, " %s", i.a)
	case OpStore:
		fmt.Fprintf(&b, " %s, %s", i.a, i.b)
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpFAdd, OpFSub, OpFMul, OpFDiv:
		fmt.Fprintf(&b, " %s, %s", i.a, i.b)
	case OpIcmp:
		fmt.Fprintf(&b, " %s %s, %s", i.icc, i.a, i.b)
	case OpFcmp:
		fmt.Fprintf(&b, " %s %s, %s", i.fcc, i.a, i.b)
	case OpBr:
		fmt.Fprintf(&b, " block%d", i.targets[0].ID())
	case OpBrCond:
		fmt.Fprintf(&b, " %s, block%d, block%d", i.a, i.targets[0].ID(), i.targets[1].ID())
	case OpRet:
		if i.a.Valid() {
			fmt.Fprintf(&b, " %s", i.a)
		}
	case OpCall:
		fmt.Fprintf(&b, " @%s(", i.sym)
		for idx, a := range i.args {
			if idx > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s", a)
		}
		b.WriteString(")")
	case OpGEP:
		fmt.Fprintf(&b, " %s", i.a)
		for _, idx := range i.indices {
			fmt.Fprintf(&b, "[%s]", idx)
		}
	case OpZext, OpSIToFP, OpFPToSI:
		fmt.Fprintf(&b, " %s", i.a)
	case OpGlobalAddr:
		fmt.Fprintf(&b, " @%s", i.sym)
	case OpPhi:
		b.WriteString(" [")
		for idx, e := range i.phiEdges {
			if idx > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "block%d: %s", e.Block.ID(), e.Value)
		}
		b.WriteString("]")
	}
	return b.String()
}
