package aarch64

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cminor-lang/cc64/internal/ir"
	"github.com/cminor-lang/cc64/internal/mir"
	"github.com/cminor-lang/cc64/internal/regalloc"
)

func TestFitsUnsignedScaledOffset(t *testing.T) {
	require.True(t, fitsUnsignedScaledOffset(0, 4))
	require.True(t, fitsUnsignedScaledOffset(4095*4, 4))
	require.False(t, fitsUnsignedScaledOffset(4096*4, 4))
	require.False(t, fitsUnsignedScaledOffset(-8, 8))
	require.False(t, fitsUnsignedScaledOffset(6, 4), "unscaled offsets are rejected")
	require.True(t, fitsUnsignedScaledOffset(4095*8, 8))
}

// spillFn builds a post-RA function with one spill reload/store pair against
// a slot at the given extra local offset.
func spillFn(padding int) *mir.Function {
	fn := mir.NewFunction("f")
	b := fn.NewBlock()
	fn.SetEntry(b)
	if padding > 0 {
		fn.Frame.CreateLocalObject(1, padding, 16)
	}
	fi := fn.Frame.CreateSpillSlot(8, 8)
	scratch := mir.RegOperand(regalloc.FromRealReg(16, regalloc.RegTypeInt), ir.I32)
	b.Append(mir.NewLoadSlot(scratch, fi))
	b.Append(mir.NewStoreSlot(scratch, fi))
	b.Append(mir.NewRet(uint32(opRET), "ret"))
	fn.Frame.CalculateOffsets()
	return fn
}

func TestStackSlotLowering_SmallOffsetUsesImmediateForm(t *testing.T) {
	fn := spillFn(0)
	lowerStackSlots(fn)
	instrs := fn.Entry().AllInstrs()
	require.Len(t, instrs, 3)
	require.Equal(t, mir.TARGET, instrs[0].Kind())
	require.Equal(t, opLDR, opcode(instrs[0].TargetOp()))
	require.Equal(t, mir.OperandMem, instrs[0].UseOperands()[0].Kind())
	require.Equal(t, regSP, instrs[0].UseOperands()[0].Reg().RealReg())
	require.Equal(t, opSTR, opcode(instrs[1].TargetOp()))
}

func TestStackSlotLowering_LargeOffsetMaterializesThroughX16(t *testing.T) {
	fn := spillFn(32768)
	lowerStackSlots(fn)
	text := frameText(fn)
	require.Contains(t, text, "movz r16, #32768")
	require.Contains(t, text, "add r16, r31, r16")
	require.Contains(t, text, "[r16, #0]")
}

func TestStackSlotLowering_Idempotent(t *testing.T) {
	fn := spillFn(0)
	lowerStackSlots(fn)
	first := frameText(fn)
	lowerStackSlots(fn)
	require.Equal(t, first, frameText(fn), "a second run must find nothing to lower")
}

func TestStackSlotLowering_ResolvesLocalVarAddressOperand(t *testing.T) {
	fn := mir.NewFunction("f")
	b := fn.NewBlock()
	fn.SetEntry(b)
	fn.Frame.CreateLocalObject(7, 4, 4)
	dst := mir.RegOperand(regalloc.FromRealReg(0, regalloc.RegTypeInt), ir.I64)
	b.Append(mir.NewTarget(uint32(opADD), "add", dst,
		mir.RegOperand(spReg(), ir.I64), mir.LocalVarOperand(7, ir.I64)))
	b.Append(mir.NewRet(uint32(opRET), "ret"))
	fn.Frame.CalculateOffsets()

	lowerStackSlots(fn)
	add := fn.Entry().AllInstrs()[0]
	require.Equal(t, mir.OperandImmInt, add.UseOperands()[1].Kind())
	require.Equal(t, int64(0), add.UseOperands()[1].ImmInt())
}

func TestStackSlotLowering_SpillScaleByWidth(t *testing.T) {
	// A 32-bit reload from a slot placed above a 16-byte outgoing-argument
	// area takes the immediate form with offset 16 (scale 4 for a 32-bit
	// access).
	fn := mir.NewFunction("f")
	b := fn.NewBlock()
	fn.SetEntry(b)
	fi := fn.Frame.CreateSpillSlot(8, 8)
	scratch := mir.RegOperand(regalloc.FromRealReg(16, regalloc.RegTypeInt), ir.I32)
	b.Append(mir.NewLoadSlot(scratch, fi))
	b.Append(mir.NewRet(uint32(opRET), "ret"))
	fn.Frame.SetParamAreaSize(16)
	fn.Frame.CalculateOffsets()

	lowerStackSlots(fn)
	ldr := fn.Entry().AllInstrs()[0]
	require.Equal(t, opLDR, opcode(ldr.TargetOp()))
	require.Equal(t, int64(16), ldr.UseOperands()[0].MemOffset())
}
