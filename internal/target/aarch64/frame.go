package aarch64

import (
	"sort"

	"github.com/cminor-lang/cc64/internal/ir"
	"github.com/cminor-lang/cc64/internal/mir"
	"github.com/cminor-lang/cc64/internal/regalloc"
)

// frameLayout is the result of laying out one function's stack frame.
// From low to high addresses:
//
//	[outgoing-args area]        <- SP after the prologue
//	[local-vars / spill slots]
//	[callee-saved int regs]
//	[callee-saved float regs]
//	[saved FP, saved LR]        <- FP points here
//	[caller's frame]
type frameLayout struct {
	localSize int // outgoing args + locals + spills, padded
	csInt     []regalloc.RealReg
	csFloat   []regalloc.RealReg
	fpLrSize  int // 16 when FP/LR are saved, else 0
	total     int // whole frame, 16-byte aligned
}

func (l *frameLayout) csTotal() int    { return (len(l.csInt) + len(l.csFloat)) * 8 }
func (l *frameLayout) fpLrOffset() int { return l.localSize + l.csTotal() }

// lowerFrame runs after register allocation: it scans the used callee-saved
// registers, computes the frame layout, and emits the prologue into the
// entry block and an epilogue before every RET. Spill pseudo-instructions
// and frame-index operands are resolved afterwards by lowerStackSlots.
func lowerFrame(fn *mir.Function) {
	layout := computeLayout(fn)
	if layout.total > 0 {
		emitPrologue(fn, layout)
		emitEpilogues(fn, layout)
	}
}

func computeLayout(fn *mir.Function) *frameLayout {
	isLeaf := true
	usedCSInt := make(map[regalloc.RealReg]bool)
	usedCSFloat := make(map[regalloc.RealReg]bool)

	checkReg := func(v regalloc.VReg) {
		if !v.IsRealReg() {
			return
		}
		r := v.RealReg()
		switch v.RegType() {
		case regalloc.RegTypeFloat:
			if r >= calleeFPFirst && r <= calleeFPLast {
				usedCSFloat[r] = true
			}
		default:
			if r >= calleeIntFirst && r <= calleeIntLast {
				usedCSInt[r] = true
			}
		}
	}

	for _, b := range fn.AllBasicBlocks() {
		for _, instr := range b.AllInstrs() {
			if instr.IsCall() || opcode(instr.TargetOp()) == opBLR {
				isLeaf = false
			}
			if instr.Def().Kind() == mir.OperandReg {
				checkReg(instr.Def().Reg())
			}
			for _, u := range instr.UseOperands() {
				switch u.Kind() {
				case mir.OperandReg, mir.OperandMem, mir.OperandMemPair:
					checkReg(u.Reg())
				}
			}
		}
	}

	layout := &frameLayout{}
	for r := range usedCSInt {
		layout.csInt = append(layout.csInt, r)
	}
	for r := range usedCSFloat {
		layout.csFloat = append(layout.csFloat, r)
	}
	sort.Slice(layout.csInt, func(i, j int) bool { return layout.csInt[i] < layout.csInt[j] })
	sort.Slice(layout.csFloat, func(i, j int) bool { return layout.csFloat[i] < layout.csFloat[j] })

	layout.localSize = fn.Frame.CalculateOffsets()
	// Pad the local area so the callee-saved base (and therefore the FP/LR
	// pair above it) stays 16-byte aligned.
	if rem := (layout.localSize + layout.csTotal()) % 16; rem != 0 {
		layout.localSize += 16 - rem
	}

	layout.fpLrSize = 16
	if isLeaf && !fn.Frame.NeedsFP() {
		layout.fpLrSize = 0
	}
	layout.total = alignTo16(layout.localSize + layout.csTotal() + layout.fpLrSize)
	if layout.total == 0 && !isLeaf {
		layout.fpLrSize = 16
		layout.total = 16
	}
	return layout
}

func alignTo16(v int) int { return (v + 15) &^ 15 }

func fitsUnsignedImm12(v int) bool { return v >= 0 && v <= 4095 }

// spOp returns the 64-bit SP operand used all over the prologue/epilogue.
func spOp() mir.Operand { return mir.RegOperand(spReg(), ir.I64) }

func x16Op() mir.Operand { return mir.RegOperand(ip0Reg(), ir.I64) }

func immOp(v int) mir.Operand { return mir.ImmIntOperand(int64(v), ir.I32) }

// materializeImmInto emits MOVZ/MOVK building v in dst (always x16 here);
// shared by the prologue, epilogues, and stack-slot lowering for offsets too
// large for an immediate form.
func materializeImmInto(emit func(*mir.Instr), dst mir.Operand, v int) {
	emit(mir.NewTarget(uint32(opMOVZ), "movz", dst, immOp(v&0xFFFF)))
	if v > 0xFFFF {
		emit(mir.NewTarget(uint32(opMOVK), "movk", dst, immOp((v>>16)&0xFFFF), immOp(16)))
	}
}

// csBase decides the base register for callee-saved save/restore sequences:
// SP directly while every offset stays within STP's ±504 range, else a base
// pointer computed into x16.
func csBase(emit func(*mir.Instr), layout *frameLayout) (base mir.Operand, baseOff int) {
	if layout.localSize+layout.csTotal() <= 504 {
		return spOp(), 0
	}
	if fitsUnsignedImm12(layout.localSize) {
		emit(mir.NewTarget(uint32(opADD), "add", x16Op(), spOp(), immOp(layout.localSize)))
	} else {
		materializeImmInto(emit, x16Op(), layout.localSize)
		emit(mir.NewTarget(uint32(opADD), "add", x16Op(), spOp(), x16Op()))
	}
	return x16Op(), layout.localSize
}

// csPairs walks a sorted callee-saved register list two at a time, calling
// pair for each full STP/LDP pair and single for a trailing lone register.
// Offsets start at startOff and advance 8 bytes per register.
func csPairs(regs []regalloc.RealReg, bank regalloc.RegType, startOff int,
	pair func(r1, r2 mir.Operand, off int), single func(r mir.Operand, off int)) {
	ty := ir.I64
	if bank == regalloc.RegTypeFloat {
		ty = ir.F64
	}
	reg := func(r regalloc.RealReg) mir.Operand {
		return mir.RegOperand(regalloc.FromRealReg(r, bank), ty)
	}
	off := startOff
	for i := 0; i < len(regs); i += 2 {
		if i+1 < len(regs) {
			pair(reg(regs[i]), reg(regs[i+1]), off)
			off += 16
		} else {
			single(reg(regs[i]), off)
			off += 8
		}
	}
}

// emitPrologue builds the entry-block prologue: allocate the
// frame, save used callee-saved registers in pairs, save FP/LR, establish FP.
func emitPrologue(fn *mir.Function, layout *frameLayout) {
	var instrs []*mir.Instr
	emit := func(i *mir.Instr) { instrs = append(instrs, i) }

	if fitsUnsignedImm12(layout.total) {
		emit(mir.NewTarget(uint32(opSUB), "sub", spOp(), spOp(), immOp(layout.total)))
	} else {
		materializeImmInto(emit, x16Op(), layout.total)
		emit(mir.NewTarget(uint32(opSUB), "sub", spOp(), spOp(), x16Op()))
	}

	base, baseOff := csBase(emit, layout)
	saveAll := func(regs []regalloc.RealReg, bank regalloc.RegType, startOff int) {
		csPairs(regs, bank, startOff,
			func(r1, r2 mir.Operand, off int) {
				emit(mir.NewTarget(uint32(opSTP), "stp", mir.Operand{},
					r1, r2, mir.MemOperand(base.Reg(), int64(off-baseOff), ir.I64)))
			},
			func(r mir.Operand, off int) {
				emit(mir.NewTarget(uint32(opSTR), "str", mir.Operand{},
					r, mir.MemOperand(base.Reg(), int64(off-baseOff), r.Type())))
			})
	}
	saveAll(layout.csInt, regalloc.RegTypeInt, layout.localSize)
	saveAll(layout.csFloat, regalloc.RegTypeFloat, layout.localSize+len(layout.csInt)*8)

	if layout.fpLrSize > 0 {
		fpLrOff := layout.fpLrOffset()
		emit(mir.NewTarget(uint32(opSTP), "stp", mir.Operand{},
			mir.RegOperand(fpReg(), ir.I64), mir.RegOperand(lrReg(), ir.I64),
			mir.MemOperand(base.Reg(), int64(fpLrOff-baseOff), ir.I64)))
		switch {
		case fpLrOff == 0:
			emit(mir.NewMove(mir.RegOperand(fpReg(), ir.I64), spOp()))
		case fitsUnsignedImm12(fpLrOff):
			emit(mir.NewTarget(uint32(opADD), "add", mir.RegOperand(fpReg(), ir.I64), spOp(), immOp(fpLrOff)))
		default:
			materializeImmInto(emit, x16Op(), fpLrOff)
			emit(mir.NewTarget(uint32(opADD), "add", mir.RegOperand(fpReg(), ir.I64), spOp(), x16Op()))
		}
	}

	entry := fn.Entry()
	for i := len(instrs) - 1; i >= 0; i-- {
		entry.Prepend(instrs[i])
	}
}

// emitEpilogues inserts the reverse sequence before every RET: restore
// FP/LR, restore callee-saved registers, deallocate the frame.
func emitEpilogues(fn *mir.Function, layout *frameLayout) {
	for _, b := range fn.AllBasicBlocks() {
		for _, instr := range b.AllInstrs() {
			if instr.Kind() != mir.TARGET || opcode(instr.TargetOp()) != opRET {
				continue
			}
			var instrs []*mir.Instr
			emit := func(i *mir.Instr) { instrs = append(instrs, i) }

			base, baseOff := csBase(emit, layout)
			if layout.fpLrSize > 0 {
				emit(mir.NewTarget(uint32(opLDP), "ldp", mir.Operand{},
					mir.RegOperand(fpReg(), ir.I64), mir.RegOperand(lrReg(), ir.I64),
					mir.MemOperand(base.Reg(), int64(layout.fpLrOffset()-baseOff), ir.I64)))
			}
			restoreAll := func(regs []regalloc.RealReg, bank regalloc.RegType, startOff int) {
				csPairs(regs, bank, startOff,
					func(r1, r2 mir.Operand, off int) {
						emit(mir.NewTarget(uint32(opLDP), "ldp", mir.Operand{},
							r1, r2, mir.MemOperand(base.Reg(), int64(off-baseOff), ir.I64)))
					},
					func(r mir.Operand, off int) {
						emit(mir.NewTarget(uint32(opLDR), "ldr", r,
							mir.MemOperand(base.Reg(), int64(off-baseOff), r.Type())))
					})
			}
			restoreAll(layout.csInt, regalloc.RegTypeInt, layout.localSize)
			restoreAll(layout.csFloat, regalloc.RegTypeFloat, layout.localSize+len(layout.csInt)*8)

			if fitsUnsignedImm12(layout.total) {
				emit(mir.NewTarget(uint32(opADD), "add", spOp(), spOp(), immOp(layout.total)))
			} else {
				materializeImmInto(emit, x16Op(), layout.total)
				emit(mir.NewTarget(uint32(opADD), "add", spOp(), spOp(), x16Op()))
			}

			for _, e := range instrs {
				b.InsertBefore(e, instr)
			}
		}
	}
}
