package aarch64

import (
	"fmt"

	"github.com/cminor-lang/cc64/internal/ir"
	"github.com/cminor-lang/cc64/internal/mir"
)

// fitsUnsignedScaledOffset reports whether off can be encoded as LDR/STR's
// unsigned scaled 12-bit immediate: non-negative, a multiple of the access
// size, and at most 4095 after scaling.
func fitsUnsignedScaledOffset(off, scale int) bool {
	if scale <= 0 || off < 0 || off%scale != 0 {
		return false
	}
	return off/scale <= 4095
}

// accessScale is the scaled-immediate granule for a load/store of type ty:
// 4 for 32-bit accesses, 8 for 64-bit.
func accessScale(ty ir.DataType) int {
	if ty.Size() <= 4 {
		return 4
	}
	return 8
}

// lowerStackSlots resolves every residual pseudo stack reference after frame
// lowering:
//
//   - LSLOT/SSLOT spill pseudo-instructions become LDR/STR with concrete
//     SP-relative addressing;
//   - LocalVar/FrameIndex operands inside target instructions (the
//     ADD base, SP, <slot> address materializations emitted by instruction
//     selection) become immediates.
//
// When an offset exceeds the instruction's immediate range, it is
// materialized in x16 first. Running the pass twice is a no-op: a second run
// finds no pseudo kinds and no frame-index operands.
func lowerStackSlots(fn *mir.Function) {
	for _, b := range fn.AllBasicBlocks() {
		for _, instr := range b.AllInstrs() {
			switch instr.Kind() {
			case mir.LSLOT:
				lowerSpillReload(b, instr, fn)
			case mir.SSLOT:
				lowerSpillStore(b, instr, fn)
			case mir.TARGET:
				lowerFrameIndexOperands(b, instr, fn)
			}
		}
	}
}

func spillOffset(fn *mir.Function, fi int) int {
	off := fn.Frame.SpillSlotOffset(fi)
	if off < 0 {
		panic(fmt.Sprintf("BUG: spill slot %d has no assigned offset", fi))
	}
	return off
}

// lowerSpillReload turns `LSLOT dst, fi` into `ldr dst, [sp, #off]`, going
// through x16 when the offset exceeds the scaled-immediate range.
func lowerSpillReload(b *mir.BasicBlock, instr *mir.Instr, fn *mir.Function) {
	off := spillOffset(fn, instr.UseOperands()[0].FrameIndex())
	ty := instr.Def().Type()
	if fitsUnsignedScaledOffset(off, accessScale(ty)) {
		instr.SetUse(0, mir.MemOperand(spReg(), int64(off), ty))
	} else {
		materializeSPOffset(b, instr, off)
		instr.SetUse(0, mir.MemOperand(ip0Reg(), 0, ty))
	}
	instr.Resolve(uint32(opLDR), "ldr")
}

// lowerSpillStore turns `SSLOT src, fi` into `str src, [sp, #off]`.
func lowerSpillStore(b *mir.BasicBlock, instr *mir.Instr, fn *mir.Function) {
	off := spillOffset(fn, instr.UseOperands()[1].FrameIndex())
	ty := instr.UseOperands()[0].Type()
	if fitsUnsignedScaledOffset(off, accessScale(ty)) {
		instr.SetUse(1, mir.MemOperand(spReg(), int64(off), ty))
	} else {
		materializeSPOffset(b, instr, off)
		instr.SetUse(1, mir.MemOperand(ip0Reg(), 0, ty))
	}
	instr.Resolve(uint32(opSTR), "str")
}

// materializeSPOffset emits, before instr, the x16 = SP + off computation
// used when off doesn't fit an immediate form.
func materializeSPOffset(b *mir.BasicBlock, instr *mir.Instr, off int) {
	emit := func(i *mir.Instr) { b.InsertBefore(i, instr) }
	materializeImmInto(emit, x16Op(), off)
	emit(mir.NewTarget(uint32(opADD), "add", x16Op(), spOp(), x16Op()))
}

// lowerFrameIndexOperands rewrites LocalVar/FrameIndex use operands of a
// target instruction. The only producer is instruction selection's
// `ADD dst, SP, <localvar>` address materialization, so the operand becomes
// either a plain immediate (offset fits ADD's imm12) or x16 holding the
// materialized offset.
func lowerFrameIndexOperands(b *mir.BasicBlock, instr *mir.Instr, fn *mir.Function) {
	for i, u := range instr.UseOperands() {
		var off int
		switch u.Kind() {
		case mir.OperandLocalVar:
			off = fn.Frame.ObjectOffset(u.IRRegID())
			if off < 0 {
				panic(fmt.Sprintf("BUG: local object for IR reg %d has no assigned offset", u.IRRegID()))
			}
		case mir.OperandFrameIndex:
			off = spillOffset(fn, u.FrameIndex())
		default:
			continue
		}
		if fitsUnsignedImm12(off) {
			instr.SetUse(i, u.WithImm(int64(off)))
		} else {
			// The instruction is ADD dst, SP, <slot>: the offset alone goes
			// into x16, the ADD then adds it to SP itself.
			emit := func(in *mir.Instr) { b.InsertBefore(in, instr) }
			materializeImmInto(emit, x16Op(), off)
			instr.SetUse(i, mir.RegOperand(ip0Reg(), u.Type()))
		}
	}
}
