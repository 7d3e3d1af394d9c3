package aarch64

import (
	"github.com/cminor-lang/cc64/internal/ir"
	"github.com/cminor-lang/cc64/internal/mir"
	"github.com/cminor-lang/cc64/internal/regalloc"
)

// selectDirect is the direct IR→MIR instruction-selection path: one pass
// over each block, translating each IR instruction into its
// MIR pattern without building a SelectionDAG. It shares all per-function
// state with the DAG path through selector.
func selectDirect(irFn *ir.Function) *mir.Function {
	s := newSelector(irFn)
	s.collectAllocas()
	s.setupParameters()
	for _, b := range irFn.Blocks() {
		s.cur = s.blocks[b.ID()]
		b.Instructions(func(instr *ir.Instruction) {
			s.selectInstr(instr)
		})
	}
	s.wireEdges()
	return s.fn
}

func (s *selector) selectInstr(instr *ir.Instruction) {
	switch instr.Opcode() {
	case ir.OpIconst:
		s.defineResult(instr.Result().ID(), s.materializeInt(instr.Iconst(), instr.Type()))

	case ir.OpFconst:
		s.defineResult(instr.Result().ID(), s.materializeFloat(float32(instr.Fconst()), instr.Type()))

	case ir.OpGlobalAddr:
		dst := s.getOrCreateVReg(instr.Result().ID(), ir.I64)
		s.emit(mir.NewTarget(uint32(opLA), "la", dst, mir.SymbolOperand(instr.Sym())))

	case ir.OpAlloca:
		// The frame object was registered by collectAllocas; materialize
		// the address so address-taking uses (call arguments, GEP bases)
		// see a plain register.
		s.defineResult(instr.Result().ID(), s.emitAllocaAddr(instr.Result().ID()))

	case ir.OpLoad:
		dst := s.getOrCreateVReg(instr.Result().ID(), instr.Type())
		base := s.addrOf(instr.Arg())
		s.emit(mir.NewTarget(uint32(opLDR), "ldr", dst, mir.MemOperand(base.Reg(), 0, instr.Type())))

	case ir.OpStore:
		val, ptr := instr.Args()
		src := s.valueReg(val)
		base := s.addrOf(ptr)
		s.emit(mir.NewTarget(uint32(opSTR), "str", mir.Operand{},
			src, mir.MemOperand(base.Reg(), 0, val.Type())))

	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMod,
		ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv:
		x, y := instr.Args()
		a, b := s.valueReg(x), s.valueReg(y)
		if !instr.Type().IsFloat() {
			a, b = s.matchWidths(a, b)
		}
		dst := s.getOrCreateVReg(instr.Result().ID(), instr.Type())
		s.emitBinary(instr.Opcode(), dst, a, b)

	case ir.OpIcmp:
		x, y := instr.Args()
		a, b := s.matchWidths(s.valueReg(x), s.valueReg(y))
		s.emit(mir.NewTarget(uint32(opCMP), "cmp", mir.Operand{}, a, b))
		dst := s.getOrCreateVReg(instr.Result().ID(), instr.Type())
		s.emit(mir.NewCSet(uint32(opCSET), "cset", dst, icmpCond(instr.IntCond())))

	case ir.OpFcmp:
		x, y := instr.Args()
		s.emit(mir.NewTarget(uint32(opFCMP), "fcmp", mir.Operand{}, s.valueReg(x), s.valueReg(y)))
		dst := s.getOrCreateVReg(instr.Result().ID(), instr.Type())
		s.emit(mir.NewCSet(uint32(opCSET), "cset", dst, fcmpCond(instr.FloatCond())))

	case ir.OpZext:
		s.selectZext(instr)

	case ir.OpSIToFP:
		dst := s.getOrCreateVReg(instr.Result().ID(), instr.Type())
		s.emit(mir.NewTarget(uint32(opSCVTF), "scvtf", dst, s.valueReg(instr.Arg())))

	case ir.OpFPToSI:
		dst := s.getOrCreateVReg(instr.Result().ID(), instr.Type())
		s.emit(mir.NewTarget(uint32(opFCVTZS), "fcvtzs", dst, s.valueReg(instr.Arg())))

	case ir.OpGEP:
		s.selectGEP(instr)

	case ir.OpCall:
		args := make([]mir.Operand, len(instr.CallArgs()))
		for i, a := range instr.CallArgs() {
			args[i] = s.valueReg(a)
		}
		var result mir.Operand
		if instr.Result().Valid() {
			result = s.getOrCreateVReg(instr.Result().ID(), instr.Result().Type())
		}
		s.lowerCall(instr.Sym(), args, result)

	case ir.OpBr:
		s.emitBr(instr.BrTargets()[0].ID())

	case ir.OpBrCond:
		targets := instr.BrTargets()
		s.emitBrCond(s.valueReg(instr.Arg()), targets[0].ID(), targets[1].ID())

	case ir.OpRet:
		s.emitRet(instr.Arg())

	case ir.OpPhi:
		dst := s.getOrCreateVReg(instr.Result().ID(), instr.Type())
		edges := make([]mir.PhiEdge, len(instr.PhiEdges()))
		for i, e := range instr.PhiEdges() {
			edges[i] = mir.PhiEdge{
				Block: mir.BlockID(e.Block.ID()),
				Value: s.getOrCreateVReg(e.Value.ID(), e.Value.Type()),
			}
		}
		s.emit(mir.NewPhi(dst, edges))

	default:
		panic("BUG: unsupported IR opcode in instruction selection: " + instr.Opcode().String())
	}
}

// addrOf resolves a pointer value to the register holding its address. For
// alloca-derived pointers this re-materializes ADD base, SP, #offset at the
// use site; everything else (globals via
// LA, GEP results) is already a register.
func (s *selector) addrOf(ptr ir.Value) mir.Operand {
	if s.allocaRegs[ptr.ID()] {
		return s.emitAllocaAddr(ptr.ID())
	}
	return s.valueReg(ptr)
}

func (s *selector) selectZext(instr *ir.Instruction) {
	src := s.valueReg(instr.Arg())
	dst := s.getOrCreateVReg(instr.Result().ID(), instr.Type())
	switch {
	case instr.Arg().Type() == ir.I1:
		// CSET already produces a clean 0/1, but masking keeps the
		// result well-defined for any source.
		s.emit(mir.NewTarget(uint32(opAND), "and", dst, src, mir.ImmIntOperand(1, ir.I32)))
	case instr.Type() == ir.I64 && instr.Arg().Type() == ir.I32:
		s.emit(mir.NewTarget(uint32(opUXTW), "uxtw", dst, src))
	default:
		s.emit(mir.NewMove(dst, src))
	}
}

// selectGEP expands a GEP into MUL/ADD over the base pointer plus scaled
// indices: stride[i] = elementSize * product(dims[i+1:]); indices are
// zero-extended to 64 bits before scaling, the same expansion the DAG
// builder performs.
//
// The zero-extension is applied regardless of the index's signedness, so
// negative signed indices are not supported; see the matching note on the
// DAG builder's expansion.
func (s *selector) selectGEP(instr *ir.Instruction) {
	addr := s.addrOf(instr.Arg())
	dims := instr.GEPDims()
	elemSize := int64(instr.GEPElemType().Size())
	for i, idxVal := range instr.GEPIndices() {
		stride := elemSize
		for _, d := range dims[i+1:] {
			stride *= d
		}
		idx := s.widenTo64(s.valueReg(idxVal))
		strideReg := s.materializeInt(stride, ir.I64)
		scaled := mir.RegOperand(s.fn.NewVReg(regalloc.RegTypeInt), ir.I64)
		s.emit(mir.NewTarget(uint32(opMUL), "mul", scaled, idx, strideReg))
		next := mir.RegOperand(s.fn.NewVReg(regalloc.RegTypeInt), ir.I64)
		s.emit(mir.NewTarget(uint32(opADD), "add", next, addr, scaled))
		addr = next
	}
	s.defineResult(instr.Result().ID(), addr)
}
