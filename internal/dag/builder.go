package dag

import (
	"fmt"

	"github.com/cminor-lang/cc64/internal/ir"
)

// Builder translates one ir.BasicBlock's instructions into a SelectionDAG,
// threading a "current chain" SDValue through every side-effecting
// instruction to preserve their program order. A Builder is used for exactly one block and then
// discarded; instruction selection re-derives another Builder per block.
type Builder struct {
	dag *SelectionDAG

	// currentChain is ENTRY_TOKEN at block entry and is updated after every
	// Load/Store/Call/BrCond. Br and Ret consume it without replacing it.
	currentChain SDValue

	// regValueMap memoizes the DAG value already computed for an IR Value
	// produced earlier in this block; values defined in other blocks (or
	// function arguments) fall through to a fresh OpRegister node instead.
	regValueMap map[ir.RegID]SDValue

	// allocaFrameIndex maps an Alloca's result register to the frame-index
	// slot materialized for it, keyed by the IR register holding the
	// alloca's pointer result.
	allocaFrameIndex map[ir.RegID]int
	nextFrameIndex   int
}

// NewBuilder returns a Builder over a fresh SelectionDAG for one block.
func NewBuilder() *Builder {
	d := NewSelectionDAG()
	return &Builder{
		dag:              d,
		currentChain:     d.EntryToken(),
		regValueMap:      make(map[ir.RegID]SDValue),
		allocaFrameIndex: make(map[ir.RegID]int),
	}
}

// DAG returns the SelectionDAG under construction.
func (b *Builder) DAG() *SelectionDAG { return b.dag }

// Resolved looks up the SDValue already computed for an IR register defined
// in this block, for callers (instruction selection) that need to map an
// ir.Instruction's result back to the DAG node it lowered to after Build has
// run.
func (b *Builder) Resolved(id ir.RegID) (SDValue, bool) {
	sv, ok := b.regValueMap[id]
	return sv, ok
}

// Chain returns the current side-effect chain value.
func (b *Builder) Chain() SDValue { return b.currentChain }

// AllocaFrameIndexes returns the IR-register-to-frame-index mapping
// materialized for the block's Alloca instructions, so the DAG scheduler can
// key FrameInfo objects by the alloca's result register.
func (b *Builder) AllocaFrameIndexes() map[ir.RegID]int { return b.allocaFrameIndex }

// valueOf resolves an ir.Value to its DAG SDValue: a REG operand already computed in this block is looked
// up in regValueMap; otherwise (a cross-block def or a function argument) a
// fresh REG node is created, parameterized by the IR register ID and type.
func (b *Builder) valueOf(v ir.Value) SDValue {
	if !v.Valid() {
		panic("BUG: valueOf on an invalid ir.Value")
	}
	if sv, ok := b.regValueMap[v.ID()]; ok {
		return sv
	}
	if !v.Type().Valid() {
		panic(fmt.Sprintf("BUG: ir.Value %%%d has no recorded DataType", v.ID()))
	}
	sv := b.dag.getRegNode(v.ID(), v.Type())
	b.regValueMap[v.ID()] = sv
	return sv
}

func (b *Builder) define(v ir.Value, sv SDValue) {
	b.regValueMap[v.ID()] = sv
}

// Build lowers every instruction of blk into b's SelectionDAG, in order.
func (b *Builder) Build(blk *ir.BasicBlock) {
	blk.Instructions(func(instr *ir.Instruction) {
		b.lower(instr)
	})
}

func (b *Builder) lower(instr *ir.Instruction) {
	switch instr.Opcode() {
	case ir.OpIconst:
		b.define(instr.Result(), b.dag.getConstantI64(instr.Iconst(), instr.Type()))

	case ir.OpFconst:
		b.define(instr.Result(), b.dag.getConstantF32(float32(instr.Fconst()), instr.Type()))

	case ir.OpGlobalAddr:
		b.define(instr.Result(), b.dag.getSymNode(instr.Sym(), instr.Type()))

	case ir.OpAlloca:
		idx := b.nextFrameIndex
		b.nextFrameIndex++
		b.allocaFrameIndex[instr.Result().ID()] = idx
		b.define(instr.Result(), b.dag.getFrameIndexNode(idx, instr.Type()))

	case ir.OpLoad:
		ptr := b.valueOf(instr.Arg())
		n := b.dag.intern(profile{
			opcode: OpLoad,
			vts:    []ValueType{instr.Type(), Chain},
			ops:    []SDValue{b.currentChain, ptr},
		})
		b.define(instr.Result(), n.Value(0))
		b.currentChain = n.Value(1)

	case ir.OpStore:
		val, ptr := instr.Args()
		n := b.dag.intern(profile{
			opcode: OpStore,
			vts:    []ValueType{Chain},
			ops:    []SDValue{b.currentChain, b.valueOf(val), b.valueOf(ptr)},
		})
		b.currentChain = n.Value(0)

	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMod,
		ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv:
		x, y := instr.Args()
		op := irArithToDAG(instr.Opcode())
		sv := b.dag.getNode(op, []ValueType{instr.Type()}, b.valueOf(x), b.valueOf(y))
		b.define(instr.Result(), sv)

	case ir.OpIcmp:
		x, y := instr.Args()
		n := b.dag.intern(profile{
			opcode: OpIcmp,
			vts:    []ValueType{instr.Type()},
			ops:    []SDValue{b.valueOf(x), b.valueOf(y)},
			cond:   byte(instr.IntCond()),
		})
		b.define(instr.Result(), n.Value(0))

	case ir.OpFcmp:
		x, y := instr.Args()
		n := b.dag.intern(profile{
			opcode: OpFcmp,
			vts:    []ValueType{instr.Type()},
			ops:    []SDValue{b.valueOf(x), b.valueOf(y)},
			cond:   byte(instr.FloatCond()),
		})
		b.define(instr.Result(), n.Value(0))

	case ir.OpZext:
		sv := b.dag.getNode(OpZext, []ValueType{instr.Type()}, b.valueOf(instr.Arg()))
		b.define(instr.Result(), sv)

	case ir.OpSIToFP:
		sv := b.dag.getNode(OpSIToFP, []ValueType{instr.Type()}, b.valueOf(instr.Arg()))
		b.define(instr.Result(), sv)

	case ir.OpFPToSI:
		sv := b.dag.getNode(OpFPToSI, []ValueType{instr.Type()}, b.valueOf(instr.Arg()))
		b.define(instr.Result(), sv)

	case ir.OpGEP:
		sv := b.lowerGEP(instr)
		b.define(instr.Result(), sv)

	case ir.OpCall:
		b.lowerCall(instr)

	case ir.OpBr:
		target := instr.BrTargets()[0]
		b.dag.intern(profile{
			opcode: OpBr,
			vts:    []ValueType{Chain},
			ops:    []SDValue{b.currentChain, b.dag.getLabelNode(target.ID())},
		})

	case ir.OpBrCond:
		targets := instr.BrTargets()
		n := b.dag.intern(profile{
			opcode: OpBrCond,
			vts:    []ValueType{Chain},
			ops: []SDValue{
				b.currentChain, b.valueOf(instr.Arg()),
				b.dag.getLabelNode(targets[0].ID()), b.dag.getLabelNode(targets[1].ID()),
			},
		})
		b.currentChain = n.Value(0)

	case ir.OpRet:
		ops := []SDValue{b.currentChain}
		if instr.Arg().Valid() {
			ops = append(ops, b.valueOf(instr.Arg()))
		}
		b.dag.intern(profile{opcode: OpRet, vts: []ValueType{Chain}, ops: ops})

	case ir.OpPhi:
		edges := instr.PhiEdges()
		ops := make([]SDValue, 0, len(edges)*2)
		for _, e := range edges {
			ops = append(ops, b.dag.getLabelNode(e.Block.ID()), b.valueOf(e.Value))
		}
		sv := b.dag.getNode(OpPhi, []ValueType{instr.Type()}, ops...)
		b.define(instr.Result(), sv)

	default:
		panic("BUG: unsupported IR opcode in DAG builder: " + instr.Opcode().String())
	}
}

func irArithToDAG(op ir.Opcode) Opcode {
	switch op {
	case ir.OpAdd:
		return OpAdd
	case ir.OpSub:
		return OpSub
	case ir.OpMul:
		return OpMul
	case ir.OpDiv:
		return OpDiv
	case ir.OpMod:
		return OpMod
	case ir.OpFAdd:
		return OpFAdd
	case ir.OpFSub:
		return OpFSub
	case ir.OpFMul:
		return OpFMul
	case ir.OpFDiv:
		return OpFDiv
	default:
		panic("BUG: not an arithmetic opcode: " + op.String())
	}
}

// lowerGEP expands a GEP into a sequence of Mul/Add nodes over a base
// pointer plus scaled indices: for dimensions d[0..k-1],
// stride[i] = elementSize * product(d[i+1..k-1]). Indices are zero-extended
// to 64-bit before multiplication.
//
// TODO: this always zero-extends the index regardless of its original
// signedness, which is wrong for negative signed indices; fixing it needs
// the front end to record index signedness on the GEP.
func (b *Builder) lowerGEP(instr *ir.Instruction) SDValue {
	base := b.valueOf(instr.Arg())
	indices := instr.GEPIndices()
	dims := instr.GEPDims()
	elemSize := int64(instr.GEPElemType().Size())

	addr := base
	for i, idxVal := range indices {
		stride := elemSize
		for _, d := range dims[i+1:] {
			stride *= d
		}
		idx := b.valueOf(idxVal)
		idx64 := idx
		if idx.Type() != ir.I64 {
			idx64 = b.dag.getNode(OpZext, []ValueType{ir.I64}, idx)
		}
		scaled := b.dag.getNode(OpMul, []ValueType{ir.I64}, idx64, b.dag.getConstantI64(stride, ir.I64))
		addr = b.dag.getNode(OpAdd, []ValueType{ir.I64}, addr, scaled)
	}
	return addr
}

// lowerCall lowers a Call instruction: operands {currentChain,
// callee-symbol-implicit-via-Sym, args...}; result types {retType, TOKEN}
// if non-void else {TOKEN}; chain updated to the last result.
func (b *Builder) lowerCall(instr *ir.Instruction) {
	ops := make([]SDValue, 0, 1+len(instr.CallArgs()))
	ops = append(ops, b.currentChain)
	for _, a := range instr.CallArgs() {
		ops = append(ops, b.valueOf(a))
	}
	var vts []ValueType
	hasResult := instr.Result().Valid()
	if hasResult {
		vts = []ValueType{instr.Result().Type(), Chain}
	} else {
		vts = []ValueType{Chain}
	}
	n := b.dag.intern(profile{opcode: OpCall, vts: vts, ops: ops, sym: instr.Sym()})
	if hasResult {
		b.define(instr.Result(), n.Value(0))
		b.currentChain = n.Value(1)
	} else {
		b.currentChain = n.Value(0)
	}
}
