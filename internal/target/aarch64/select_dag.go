package aarch64

import (
	"github.com/cminor-lang/cc64/internal/dag"
	"github.com/cminor-lang/cc64/internal/ir"
	"github.com/cminor-lang/cc64/internal/mir"
	"github.com/cminor-lang/cc64/internal/regalloc"
)

// selectDAG is the SelectionDAG-based instruction-selection path: each block
// is first lowered into a DAG (which deduplicates structurally identical
// computations through the folding set), then the DAG is
// scheduled back into MIR in node-creation order. Creation order is a valid
// schedule: every operand node exists before its user, and the chain edges
// thread side effects in program order.
func selectDAG(irFn *ir.Function) *mir.Function {
	s := newSelector(irFn)
	s.collectAllocas()
	s.setupParameters()
	for _, b := range irFn.Blocks() {
		s.cur = s.blocks[b.ID()]
		builder := dag.NewBuilder()
		builder.Build(b)
		s.scheduleBlock(b, builder)
	}
	s.wireEdges()
	return s.fn
}

// scheduleBlock emits MIR for every node of the block's DAG and then
// reconciles the block's IR results with the function-wide vreg map.
func (s *selector) scheduleBlock(irBlock *ir.BasicBlock, builder *dag.Builder) {
	// The builder numbers alloca frame indices in its own per-block space;
	// map them back to the alloca's IR register, which is how FrameInfo
	// keys its LocalVar objects.
	fiToReg := make(map[int]ir.RegID)
	for regID, fi := range builder.AllocaFrameIndexes() {
		fiToReg[fi] = regID
	}

	nodeVal := make(map[*dag.SDNode]mir.Operand)
	val := func(sv dag.SDValue) mir.Operand {
		op, ok := nodeVal[sv.Node]
		if !ok {
			panic("BUG: DAG schedule visited a node before its operand " + sv.Node.String())
		}
		return op
	}

	for _, n := range builder.DAG().Nodes() {
		switch n.Opcode() {
		case dag.OpEntryToken, dag.OpLabel:
			// No machine instruction; labels are consumed through their
			// node payloads by branches and phis.

		case dag.OpConstantI64:
			nodeVal[n] = s.materializeInt(n.IntImm(), n.Types()[0])

		case dag.OpConstantF32:
			nodeVal[n] = s.materializeFloat(n.FloatImm(), n.Types()[0])

		case dag.OpRegister:
			nodeVal[n] = s.getOrCreateVReg(n.RegID(), n.Types()[0])

		case dag.OpFrameIndex:
			regID, ok := fiToReg[n.FrameIndex()]
			if !ok {
				panic("BUG: frame-index node with no recorded alloca register")
			}
			nodeVal[n] = s.emitAllocaAddr(regID)

		case dag.OpGlobalAddr:
			dst := mir.RegOperand(s.fn.NewVReg(regalloc.RegTypeInt), ir.I64)
			s.emit(mir.NewTarget(uint32(opLA), "la", dst, mir.SymbolOperand(n.Sym())))
			nodeVal[n] = dst

		case dag.OpAdd, dag.OpSub, dag.OpMul, dag.OpDiv, dag.OpMod,
			dag.OpFAdd, dag.OpFSub, dag.OpFMul, dag.OpFDiv:
			ops := n.Operands()
			a, b := val(ops[0]), val(ops[1])
			ty := n.Types()[0]
			if !ty.IsFloat() {
				a, b = s.matchWidths(a, b)
			}
			dst := mir.RegOperand(s.fn.NewVReg(bankOf(ty)), ty)
			s.emitBinary(dagArithToIR(n.Opcode()), dst, a, b)
			nodeVal[n] = dst

		case dag.OpIcmp:
			ops := n.Operands()
			a, b := s.matchWidths(val(ops[0]), val(ops[1]))
			s.emit(mir.NewTarget(uint32(opCMP), "cmp", mir.Operand{}, a, b))
			dst := mir.RegOperand(s.fn.NewVReg(regalloc.RegTypeInt), n.Types()[0])
			s.emit(mir.NewCSet(uint32(opCSET), "cset", dst, icmpCond(ir.IntCC(n.Cond()))))
			nodeVal[n] = dst

		case dag.OpFcmp:
			ops := n.Operands()
			s.emit(mir.NewTarget(uint32(opFCMP), "fcmp", mir.Operand{}, val(ops[0]), val(ops[1])))
			dst := mir.RegOperand(s.fn.NewVReg(regalloc.RegTypeInt), n.Types()[0])
			s.emit(mir.NewCSet(uint32(opCSET), "cset", dst, fcmpCond(ir.FloatCC(n.Cond()))))
			nodeVal[n] = dst

		case dag.OpZext:
			src := val(n.Operands()[0])
			ty := n.Types()[0]
			dst := mir.RegOperand(s.fn.NewVReg(regalloc.RegTypeInt), ty)
			switch {
			case src.Type() == ir.I1:
				s.emit(mir.NewTarget(uint32(opAND), "and", dst, src, mir.ImmIntOperand(1, ir.I32)))
			case ty == ir.I64 && src.Type() == ir.I32:
				s.emit(mir.NewTarget(uint32(opUXTW), "uxtw", dst, src))
			default:
				s.emit(mir.NewMove(dst, src))
			}
			nodeVal[n] = dst

		case dag.OpSIToFP:
			dst := mir.RegOperand(s.fn.NewVReg(regalloc.RegTypeFloat), n.Types()[0])
			s.emit(mir.NewTarget(uint32(opSCVTF), "scvtf", dst, val(n.Operands()[0])))
			nodeVal[n] = dst

		case dag.OpFPToSI:
			dst := mir.RegOperand(s.fn.NewVReg(regalloc.RegTypeInt), n.Types()[0])
			s.emit(mir.NewTarget(uint32(opFCVTZS), "fcvtzs", dst, val(n.Operands()[0])))
			nodeVal[n] = dst

		case dag.OpLoad:
			ops := n.Operands() // {chain, ptr}
			base := val(ops[1])
			ty := n.Types()[0]
			dst := mir.RegOperand(s.fn.NewVReg(bankOf(ty)), ty)
			s.emit(mir.NewTarget(uint32(opLDR), "ldr", dst, mir.MemOperand(base.Reg(), 0, ty)))
			nodeVal[n] = dst

		case dag.OpStore:
			ops := n.Operands() // {chain, value, ptr}
			src, base := val(ops[1]), val(ops[2])
			s.emit(mir.NewTarget(uint32(opSTR), "str", mir.Operand{},
				src, mir.MemOperand(base.Reg(), 0, src.Type())))

		case dag.OpCall:
			ops := n.Operands() // {chain, args...}
			args := make([]mir.Operand, 0, len(ops)-1)
			for _, a := range ops[1:] {
				args = append(args, val(a))
			}
			var result mir.Operand
			if n.Types()[0] != dag.Chain {
				ty := n.Types()[0]
				result = mir.RegOperand(s.fn.NewVReg(bankOf(ty)), ty)
			}
			s.lowerCall(n.Sym(), args, result)
			if result.IsValid() {
				nodeVal[n] = result
			}

		case dag.OpBr:
			s.emitBr(n.Operands()[1].Node.BlockID())

		case dag.OpBrCond:
			ops := n.Operands() // {chain, cond, labelT, labelF}
			s.emitBrCond(val(ops[1]), ops[2].Node.BlockID(), ops[3].Node.BlockID())

		case dag.OpRet:
			ops := n.Operands() // {chain} or {chain, value}
			if len(ops) > 1 {
				v := val(ops[1])
				s.emit(mir.NewMove(retRegOperand(v.Type()), v))
			}
			s.emit(mir.NewRet(uint32(opRET), "ret"))

		case dag.OpPhi:
			ops := n.Operands() // alternating (label, value)
			ty := n.Types()[0]
			dst := mir.RegOperand(s.fn.NewVReg(bankOf(ty)), ty)
			edges := make([]mir.PhiEdge, 0, len(ops)/2)
			for i := 0; i+1 < len(ops); i += 2 {
				edges = append(edges, mir.PhiEdge{
					Block: mir.BlockID(ops[i].Node.BlockID()),
					Value: val(ops[i+1]),
				})
			}
			s.emit(mir.NewPhi(dst, edges))
			nodeVal[n] = dst

		default:
			panic("BUG: unsupported DAG opcode in scheduling: " + n.Opcode().String())
		}
	}

	s.reconcileResults(irBlock, builder, nodeVal)
}

// reconcileResults publishes the block's IR results into the function-wide
// vreg map. When a result was forward-referenced (a phi back-edge created
// its vreg before this block was scheduled), a copy into the pre-existing
// vreg is inserted before the block's terminator instead.
func (s *selector) reconcileResults(irBlock *ir.BasicBlock, builder *dag.Builder, nodeVal map[*dag.SDNode]mir.Operand) {
	irBlock.Instructions(func(instr *ir.Instruction) {
		res := instr.Result()
		if !res.Valid() {
			return
		}
		sv, ok := builder.Resolved(res.ID())
		if !ok {
			return
		}
		op, ok := nodeVal[sv.Node]
		if !ok {
			return
		}
		if existing, present := s.vregMap[res.ID()]; present {
			if existing != op {
				s.cur.InsertBefore(mir.NewMove(existing, op), s.cur.Terminator())
			}
			return
		}
		s.vregMap[res.ID()] = op
	})
}

// dagArithToIR maps a DAG arithmetic opcode back onto the IR opcode space so
// the shared emitBinary (and its mod expansion) serves both selectors.
func dagArithToIR(op dag.Opcode) ir.Opcode {
	switch op {
	case dag.OpAdd:
		return ir.OpAdd
	case dag.OpSub:
		return ir.OpSub
	case dag.OpMul:
		return ir.OpMul
	case dag.OpDiv:
		return ir.OpDiv
	case dag.OpMod:
		return ir.OpMod
	case dag.OpFAdd:
		return ir.OpFAdd
	case dag.OpFSub:
		return ir.OpFSub
	case dag.OpFMul:
		return ir.OpFMul
	case dag.OpFDiv:
		return ir.OpFDiv
	default:
		panic("BUG: not a DAG arithmetic opcode: " + op.String())
	}
}
