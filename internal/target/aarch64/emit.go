package aarch64

import (
	"fmt"
	"io"

	"github.com/cminor-lang/cc64/internal/ir"
	"github.com/cminor-lang/cc64/internal/mir"
)

// emitter walks the lowered MIR and prints GNU AArch64 assembly text
//: a .text section with one .globl symbol and
// .<func>_<blockId> labels per function, then a .data section for globals.
type emitter struct {
	w   io.Writer
	fn  *mir.Function
	err error
}

func emitModule(w io.Writer, fns []*mir.Function, globals []*ir.Global) error {
	e := &emitter{w: w}
	e.printf(".text\n")
	e.printf(".arch armv8-a\n")
	for _, fn := range fns {
		e.emitFunction(fn)
	}
	if len(globals) > 0 {
		e.printf("\n.data\n")
		for _, g := range globals {
			e.emitGlobal(g)
		}
	}
	return e.err
}

func (e *emitter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

func (e *emitter) emitFunction(fn *mir.Function) {
	e.fn = fn
	e.printf("\n.globl %s\n", fn.Name)
	e.printf("%s:\n", fn.Name)
	for _, b := range fn.AllBasicBlocks() {
		e.printf(".%s_%d:\n", fn.Name, b.ID())
		for _, instr := range b.AllInstrs() {
			e.emitInstr(instr)
		}
	}
}

func (e *emitter) label(id mir.BlockID) string {
	return fmt.Sprintf(".%s_%d", e.fn.Name, id)
}

func (e *emitter) operand(o mir.Operand) string {
	switch o.Kind() {
	case mir.OperandReg:
		return formatReg(o.Reg(), o.Type())
	case mir.OperandImmInt:
		return fmt.Sprintf("#%d", o.ImmInt())
	case mir.OperandImmFloat:
		return fmt.Sprintf("#%g", o.ImmFloat())
	case mir.OperandMem:
		return fmt.Sprintf("[%s, #%d]", formatReg(o.Reg(), ir.I64), o.MemOffset())
	case mir.OperandMemRegOffset:
		return fmt.Sprintf("[%s, %s]", formatReg(o.Reg(), ir.I64), formatReg(o.IdxReg(), ir.I64))
	case mir.OperandLabel:
		return e.label(o.Label())
	case mir.OperandSymbol:
		return "=" + o.Sym()
	default:
		panic(fmt.Sprintf("BUG: unloweredable operand kind %s reached the emitter", o.Kind()))
	}
}

func (e *emitter) emitInstr(instr *mir.Instr) {
	switch instr.Kind() {
	case mir.MOVE:
		e.emitMove(instr)
		return
	case mir.NOP:
		return
	case mir.TARGET:
		// Handled below.
	default:
		panic(fmt.Sprintf("BUG: %s instruction survived to assembly emission", instr.Kind()))
	}

	op := opcode(instr.TargetOp())
	uses := instr.UseOperands()
	switch op {
	case opLA:
		// Pseudo: materialize a global's address.
		e.printf("  ldr %s, %s\n", e.operand(instr.Def()), e.operand(uses[0]))
	case opCSET:
		e.printf("  cset %s, %s\n", e.operand(instr.Def()), condName(instr.Cond()))
	case opMOVZ:
		e.printf("  movz %s, %s\n", e.operand(instr.Def()), e.operand(uses[0]))
	case opMOVK:
		e.printf("  movk %s, %s, lsl %s\n", e.operand(instr.Def()), e.operand(uses[0]), e.operand(uses[1]))
	case opB:
		e.printf("  b %s\n", e.label(instr.Targets()[0]))
	case opBCOND:
		// The CMP was emitted as the preceding instruction; this expands
		// into the taken-side conditional branch plus the fallthrough
		// branch.
		e.printf("  b.%s %s\n", condName(instr.Cond()), e.label(instr.Targets()[0]))
		e.printf("  b %s\n", e.label(instr.Targets()[1]))
	case opBL:
		e.printf("  bl %s\n", instr.Sym())
	default:
		e.emitShaped(op, instr)
	}
}

func (e *emitter) emitShaped(op opcode, instr *mir.Instr) {
	uses := instr.UseOperands()
	switch shapeOf(op) {
	case shapeR:
		e.printf("  %s %s, %s, %s\n", mnemonicOf(op), e.operand(instr.Def()), e.operand(uses[0]), e.operand(uses[1]))
	case shapeR2:
		if instr.Def().IsValid() {
			e.printf("  %s %s, %s\n", mnemonicOf(op), e.operand(instr.Def()), e.operand(uses[0]))
		} else {
			// CMP/FCMP define only flags.
			e.printf("  %s %s, %s\n", mnemonicOf(op), e.operand(uses[0]), e.operand(uses[1]))
		}
	case shapeM:
		if instr.Def().IsValid() {
			e.printf("  %s %s, %s\n", mnemonicOf(op), e.operand(instr.Def()), e.operand(uses[0]))
		} else {
			e.printf("  %s %s, %s\n", mnemonicOf(op), e.operand(uses[0]), e.operand(uses[1]))
		}
	case shapeP:
		mem := uses[2]
		e.printf("  %s %s, %s, %s\n", mnemonicOf(op), e.operand(uses[0]), e.operand(uses[1]), e.operand(mem))
	case shapeZ:
		e.printf("  %s\n", mnemonicOf(op))
	default:
		panic(fmt.Sprintf("BUG: no emission rule for opcode %d", op))
	}
}

func (e *emitter) emitMove(instr *mir.Instr) {
	dst, src := instr.Def(), instr.UseOperands()[0]
	if dst.Type().IsFloat() && src.Type().IsFloat() {
		e.printf("  fmov %s, %s\n", e.operand(dst), e.operand(src))
		return
	}
	e.printf("  mov %s, %s\n", e.operand(dst), e.operand(src))
}

// emitGlobal prints one .data entry: scalars as a single .word/.quad,
// arrays as their flattened initializer with runs of zeros coalesced into
// .zero directives.
func (e *emitter) emitGlobal(g *ir.Global) {
	e.printf("%s:\n", g.Name)
	elemSize := 4
	if g.Type == ir.I64 || g.Type == ir.F64 {
		elemSize = 8
	}
	directive := ".word"
	if elemSize == 8 {
		directive = ".quad"
	}

	if len(g.Dims) == 0 {
		var v int64
		if len(g.Init) > 0 {
			v = g.Init[0]
		}
		e.printf("  %s %d\n", directive, v)
		return
	}

	total := 1
	for _, d := range g.Dims {
		total *= int(d)
	}
	if len(g.Init) == 0 {
		e.printf("  .zero %d\n", total*elemSize)
		return
	}
	zeroRun := 0
	for _, v := range g.Init {
		if v == 0 {
			zeroRun += elemSize
			continue
		}
		if zeroRun > 0 {
			e.printf("  .zero %d\n", zeroRun)
			zeroRun = 0
		}
		e.printf("  %s %d\n", directive, v)
	}
	if pad := (total - len(g.Init)) * elemSize; pad > 0 {
		zeroRun += pad
	}
	if zeroRun > 0 {
		e.printf("  .zero %d\n", zeroRun)
	}
}
