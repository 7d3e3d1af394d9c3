package aarch64

import (
	"fmt"
	"math"

	"github.com/cminor-lang/cc64/internal/ir"
	"github.com/cminor-lang/cc64/internal/mir"
	"github.com/cminor-lang/cc64/internal/regalloc"
)

// selector carries the per-function state shared by the direct and DAG-based
// instruction-selection paths: the IR-register-to-vreg map, the set of
// alloca-backed registers, and the MIR function under construction.
type selector struct {
	fn     *mir.Function
	irFn   *ir.Function
	blocks map[ir.BlockID]*mir.BasicBlock

	// vregMap keys a MIR register operand by the IR register it implements.
	// Forward references (phi back-edges) create the vreg before its
	// defining instruction is selected; both sites then agree on it.
	vregMap map[ir.RegID]mir.Operand

	// allocaRegs marks IR registers produced by an Alloca, whose "value" is
	// a stack address materialized with ADD from SP rather than a loaded
	// datum.
	allocaRegs map[ir.RegID]bool

	cur *mir.BasicBlock
}

func newSelector(irFn *ir.Function) *selector {
	s := &selector{
		fn:         mir.NewFunction(irFn.Sig.Name),
		irFn:       irFn,
		blocks:     make(map[ir.BlockID]*mir.BasicBlock),
		vregMap:    make(map[ir.RegID]mir.Operand),
		allocaRegs: make(map[ir.RegID]bool),
	}
	// MIR blocks are created in ascending IR block-ID order so the dense
	// MIR IDs coincide with the IR IDs and branch labels translate 1:1.
	for _, b := range irFn.Blocks() {
		s.blocks[b.ID()] = s.fn.NewBlock()
	}
	s.fn.SetEntry(s.blocks[irFn.Entry().ID()])
	return s
}

// emit appends instr to the block currently being selected.
func (s *selector) emit(instr *mir.Instr) { s.cur.Append(instr) }

// getOrCreateVReg returns the MIR register operand implementing the IR
// register id, creating a fresh vreg of ty's bank on first sight.
func (s *selector) getOrCreateVReg(id ir.RegID, ty ir.DataType) mir.Operand {
	if op, ok := s.vregMap[id]; ok {
		return op
	}
	op := mir.RegOperand(s.fn.NewVReg(bankOf(ty)), ty)
	s.vregMap[id] = op
	return op
}

// defineResult records op as the operand implementing IR register id. If a
// forward reference (a phi back-edge) already created a vreg for id, the
// computed operand is copied into it instead so both sites stay consistent.
func (s *selector) defineResult(id ir.RegID, op mir.Operand) {
	if existing, ok := s.vregMap[id]; ok {
		s.emit(mir.NewMove(existing, op))
		return
	}
	s.vregMap[id] = op
}

// valueReg resolves an IR value to its register operand, which must already
// exist or be creatable from the value's own type.
func (s *selector) valueReg(v ir.Value) mir.Operand {
	if !v.Valid() {
		panic("BUG: selecting an invalid ir.Value operand")
	}
	return s.getOrCreateVReg(v.ID(), v.Type())
}

// collectAllocas registers a LocalVar frame object for every Alloca in the
// function before any block is selected, so address materialization at use
// sites can key FrameInfo by the alloca's result register regardless of
// block order.
func (s *selector) collectAllocas() {
	for _, b := range s.irFn.Blocks() {
		b.Instructions(func(instr *ir.Instruction) {
			if instr.Opcode() != ir.OpAlloca {
				return
			}
			id := instr.Result().ID()
			s.fn.Frame.CreateLocalObject(uint32(id), int(instr.AllocaSize()), int(instr.AllocaAlign()))
			s.allocaRegs[id] = true
		})
	}
}

// wireEdges adds the MIR CFG edges mirroring every IR terminator's targets.
func (s *selector) wireEdges() {
	for _, b := range s.irFn.Blocks() {
		term := b.Terminator()
		for _, t := range term.BrTargets() {
			s.fn.AddEdge(s.blocks[b.ID()], s.blocks[t.ID()])
		}
	}
}

// setupParameters moves incoming arguments into their vregs at the top of
// the entry block: the first eight per bank arrive in x0-x7 / v0-v7,
// the rest are loaded from the caller's outgoing area at [FP, #16+off].
func (s *selector) setupParameters() {
	s.cur = s.blocks[s.irFn.Entry().ID()]
	gprIdx, fprIdx, stackOff := 0, 0, 0
	for _, arg := range s.irFn.Args() {
		vreg := s.getOrCreateVReg(arg.ID(), arg.Type())
		ty := arg.Type()
		if ty.IsFloat() {
			if fprIdx < fprArgCount {
				src := mir.RegOperand(regalloc.FromRealReg(regalloc.RealReg(fprIdx), regalloc.RegTypeFloat), ty)
				s.emit(mir.NewMove(vreg, src))
				fprIdx++
				continue
			}
		} else {
			if gprIdx < gprArgCount {
				src := mir.RegOperand(regalloc.FromRealReg(regalloc.RealReg(gprIdx), regalloc.RegTypeInt), ty)
				s.emit(mir.NewMove(vreg, src))
				gprIdx++
				continue
			}
		}
		// Stack-passed argument: addressed off FP, past the saved FP/LR
		// pair, so the frame must establish FP even in a leaf.
		s.emit(mir.NewTarget(uint32(opLDR), "ldr", vreg,
			mir.MemOperand(fpReg(), int64(16+stackOff), ty)))
		stackOff += 8
		s.fn.Frame.SetNeedsFP()
	}
}

// materializeInt produces an operand holding the 32-bit immediate v
//: zero uses the
// architectural zero register directly, values fitting 16 bits a single
// MOVZ, anything wider MOVZ+MOVK.
func (s *selector) materializeInt(v int64, ty ir.DataType) mir.Operand {
	if v == 0 {
		return mir.RegOperand(zeroReg(), ty)
	}
	dst := mir.RegOperand(s.fn.NewVReg(regalloc.RegTypeInt), ty)
	s.materializeIntInto(dst, v)
	return dst
}

func (s *selector) materializeIntInto(dst mir.Operand, v int64) {
	bits := uint32(v)
	if bits&0xFFFF0000 == 0 {
		s.emit(mir.NewTarget(uint32(opMOVZ), "movz", dst, mir.ImmIntOperand(int64(bits), ir.I32)))
		return
	}
	s.emit(mir.NewTarget(uint32(opMOVZ), "movz", dst, mir.ImmIntOperand(int64(bits&0xFFFF), ir.I32)))
	s.emit(mir.NewTarget(uint32(opMOVK), "movk", dst,
		mir.ImmIntOperand(int64(bits>>16), ir.I32), mir.ImmIntOperand(16, ir.I32)))
}

// materializeFloat produces a float-register operand holding v: the bit
// pattern is built in an integer register, then transferred with FMOV so the
// pattern is preserved exactly.
func (s *selector) materializeFloat(v float32, ty ir.DataType) mir.Operand {
	dst := mir.RegOperand(s.fn.NewVReg(regalloc.RegTypeFloat), ty)
	if v == 0 {
		s.emit(mir.NewTarget(uint32(opFMOV), "fmov", dst, mir.RegOperand(zeroReg(), ir.I32)))
		return dst
	}
	bits := int64(math.Float32bits(v))
	tmp := mir.RegOperand(s.fn.NewVReg(regalloc.RegTypeInt), ir.I32)
	s.materializeIntInto(tmp, bits)
	s.emit(mir.NewTarget(uint32(opFMOV), "fmov", dst, tmp))
	return dst
}

// widenTo64 returns src widened to a 64-bit register with UXTW if it is a
// 32-bit integer, or src unchanged otherwise.
func (s *selector) widenTo64(src mir.Operand) mir.Operand {
	if src.Type() == ir.I64 || src.Type().IsFloat() {
		return src
	}
	if src.Kind() == mir.OperandReg && src.Reg() == zeroReg() {
		return mir.RegOperand(zeroReg(), ir.I64)
	}
	dst := mir.RegOperand(s.fn.NewVReg(regalloc.RegTypeInt), ir.I64)
	s.emit(mir.NewTarget(uint32(opUXTW), "uxtw", dst, src))
	return dst
}

// matchWidths widens whichever of a/b is 32-bit when the other is 64-bit, so
// integer arithmetic and comparisons see same-width operands.
func (s *selector) matchWidths(a, b mir.Operand) (mir.Operand, mir.Operand) {
	if a.Type() == ir.I32 && b.Type() == ir.I64 {
		return s.widenTo64(a), b
	}
	if a.Type() == ir.I64 && b.Type() == ir.I32 {
		return a, s.widenTo64(b)
	}
	return a, b
}

// icmpCond maps an IR integer predicate to its ARM condition payload.
func icmpCond(c ir.IntCC) byte {
	switch c {
	case ir.IntEQ:
		return ccEQ
	case ir.IntNE:
		return ccNE
	case ir.IntSLT:
		return ccLT
	case ir.IntSLE:
		return ccLE
	case ir.IntSGT:
		return ccGT
	case ir.IntSGE:
		return ccGE
	default:
		panic(fmt.Sprintf("BUG: unknown integer predicate %d", c))
	}
}

// fcmpCond maps an IR float predicate to its ARM condition payload.
func fcmpCond(c ir.FloatCC) byte {
	switch c {
	case ir.FloatEQ:
		return ccEQ
	case ir.FloatNE:
		return ccNE
	case ir.FloatLT:
		return ccLT
	case ir.FloatLE:
		return ccLE
	case ir.FloatGT:
		return ccGT
	case ir.FloatGE:
		return ccGE
	default:
		panic(fmt.Sprintf("BUG: unknown float predicate %d", c))
	}
}

// arithOp maps an IR binary opcode to the target opcode; mod has no direct
// instruction and is handled by the callers' SDIV/MUL/SUB expansion.
func arithOp(op ir.Opcode) opcode {
	switch op {
	case ir.OpAdd:
		return opADD
	case ir.OpSub:
		return opSUB
	case ir.OpMul:
		return opMUL
	case ir.OpDiv:
		return opSDIV
	case ir.OpFAdd:
		return opFADD
	case ir.OpFSub:
		return opFSUB
	case ir.OpFMul:
		return opFMUL
	case ir.OpFDiv:
		return opFDIV
	default:
		panic("BUG: no direct target opcode for " + op.String())
	}
}

// emitBinary emits dst = a <op> b, expanding mod into SDIV/MUL/SUB.
func (s *selector) emitBinary(op ir.Opcode, dst, a, b mir.Operand) {
	if op == ir.OpMod {
		div := mir.RegOperand(s.fn.NewVReg(regalloc.RegTypeInt), a.Type())
		mul := mir.RegOperand(s.fn.NewVReg(regalloc.RegTypeInt), a.Type())
		s.emit(mir.NewTarget(uint32(opSDIV), "sdiv", div, a, b))
		s.emit(mir.NewTarget(uint32(opMUL), "mul", mul, div, b))
		s.emit(mir.NewTarget(uint32(opSUB), "sub", dst, a, mul))
		return
	}
	o := arithOp(op)
	s.emit(mir.NewTarget(uint32(o), mnemonicOf(o), dst, a, b))
}

// emitAllocaAddr materializes the stack address of the alloca keyed by id
// into a fresh base register: ADD base, SP, <localvar>, with the LocalVar
// pseudo-operand resolved to a concrete offset by stack-slot lowering.
func (s *selector) emitAllocaAddr(id ir.RegID) mir.Operand {
	base := mir.RegOperand(s.fn.NewVReg(regalloc.RegTypeInt), ir.I64)
	s.emit(mir.NewTarget(uint32(opADD), "add", base,
		mir.RegOperand(spReg(), ir.I64), mir.LocalVarOperand(uint32(id), ir.I64)))
	return base
}

// emitRet moves v (if any) into the ABI return register and emits RET.
func (s *selector) emitRet(v ir.Value) {
	if v.Valid() {
		src := s.valueReg(v)
		s.emit(mir.NewMove(retRegOperand(v.Type()), src))
	}
	s.emit(mir.NewRet(uint32(opRET), "ret"))
}

// retRegOperand is the ABI return register for a value of type ty:
// w0/x0 for integers, s0/d0 for floats.
func retRegOperand(ty ir.DataType) mir.Operand {
	return mir.RegOperand(regalloc.FromRealReg(0, bankOf(ty)), ty)
}

// emitBr / emitBrCond lower the branch terminators: an unconditional B, or
// the CMP-against-zero plus B.NE/B pair.
func (s *selector) emitBr(target ir.BlockID) {
	s.emit(mir.NewBr(uint32(opB), "b", mir.BlockID(target)))
}

func (s *selector) emitBrCond(cond mir.Operand, t, f ir.BlockID) {
	s.emit(mir.NewTarget(uint32(opCMP), "cmp", mir.Operand{}, cond, mir.ImmIntOperand(0, ir.I32)))
	br := mir.NewBrCond(uint32(opBCOND), "b", cond, mir.BlockID(t), mir.BlockID(f))
	br.SetCond(ccNE)
	s.emit(br)
}
