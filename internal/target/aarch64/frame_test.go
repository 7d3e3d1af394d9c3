package aarch64

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cminor-lang/cc64/internal/ir"
	"github.com/cminor-lang/cc64/internal/mir"
	"github.com/cminor-lang/cc64/internal/regalloc"
)

// leafFn builds a minimal post-RA MIR function: optionally touching a
// callee-saved register, optionally containing a call.
func leafFn(touchCS bool, hasCall bool) *mir.Function {
	fn := mir.NewFunction("f")
	b := fn.NewBlock()
	fn.SetEntry(b)
	if touchCS {
		x19 := mir.RegOperand(regalloc.FromRealReg(19, regalloc.RegTypeInt), ir.I64)
		b.Append(mir.NewTarget(uint32(opADD), "add", x19, x19, x19))
	}
	if hasCall {
		b.Append(mir.NewCall(uint32(opBL), "bl", "g", mir.Operand{}))
	}
	b.Append(mir.NewRet(uint32(opRET), "ret"))
	return fn
}

func TestFrameLowering_LeafWithoutFrameEmitsNothing(t *testing.T) {
	fn := leafFn(false, false)
	lowerFrame(fn)
	instrs := fn.Entry().AllInstrs()
	require.Len(t, instrs, 1, "leaf with no frame keeps just the RET")
}

func TestFrameLowering_NonLeafSavesFPAndLR(t *testing.T) {
	fn := leafFn(false, true)
	lowerFrame(fn)
	text := frameText(fn)
	require.Contains(t, text, "sub r31, r31, #16")
	require.Contains(t, text, "stp")
	require.Contains(t, text, "ldp")
	// The frame is exactly the FP/LR pair.
	layout := computeLayout(fn)
	require.Equal(t, 16, layout.total)
}

func TestFrameLowering_CalleeSavedPairing(t *testing.T) {
	fn := mir.NewFunction("f")
	b := fn.NewBlock()
	fn.SetEntry(b)
	for _, r := range []regalloc.RealReg{19, 20, 21} {
		op := mir.RegOperand(regalloc.FromRealReg(r, regalloc.RegTypeInt), ir.I64)
		b.Append(mir.NewTarget(uint32(opADD), "add", op, op, op))
	}
	b.Append(mir.NewCall(uint32(opBL), "bl", "g", mir.Operand{}))
	b.Append(mir.NewRet(uint32(opRET), "ret"))

	layout := computeLayout(fn)
	require.Equal(t, []regalloc.RealReg{19, 20, 21}, layout.csInt)
	// Three saved registers: 24 bytes of callee-saved area plus FP/LR,
	// with the local area padded to keep everything 16-byte aligned.
	require.Equal(t, 0, layout.total%16)

	lowerFrame(fn)
	text := frameText(fn)
	require.Contains(t, text, "stp", "x19/x20 saved as a pair")
	require.Contains(t, text, "str", "x21 saved alone")
}

func TestFrameLowering_FrameSizeAlwaysMultipleOf16(t *testing.T) {
	fn := leafFn(true, true)
	fn.Frame.CreateLocalObject(1, 4, 4)
	fn.Frame.CreateSpillSlot(8, 8)
	layout := computeLayout(fn)
	require.Equal(t, 0, layout.total%16)
	require.Equal(t, 0, (layout.localSize+layout.csTotal())%16,
		"the FP/LR slot must stay 16-byte aligned")
}

func TestFrameLowering_LargeFrameUsesX16(t *testing.T) {
	fn := leafFn(false, false)
	fn.Frame.CreateLocalObject(1, 8192, 16)
	lowerFrame(fn)
	text := frameText(fn)
	require.Contains(t, text, "movz r16")
	require.Contains(t, text, "sub r31, r31, r16")
}

func TestFrameLowering_EpilogueBeforeEveryRet(t *testing.T) {
	fn := mir.NewFunction("f")
	b0 := fn.NewBlock()
	fn.SetEntry(b0)
	b1 := fn.NewBlock()
	fn.AddEdge(b0, b1)
	b0.Append(mir.NewCall(uint32(opBL), "bl", "g", mir.Operand{}))
	b0.Append(mir.NewRet(uint32(opRET), "ret"))
	b1.Append(mir.NewRet(uint32(opRET), "ret"))

	lowerFrame(fn)
	for _, b := range fn.AllBasicBlocks() {
		var sawRestore bool
		for _, instr := range b.AllInstrs() {
			if opcode(instr.TargetOp()) == opLDP {
				sawRestore = true
			}
			if opcode(instr.TargetOp()) == opRET {
				require.True(t, sawRestore, "block %d returns without restoring FP/LR", b.ID())
			}
		}
	}
}

func frameText(fn *mir.Function) string {
	var b strings.Builder
	for _, blk := range fn.AllBasicBlocks() {
		for _, instr := range blk.AllInstrs() {
			b.WriteString(instr.String())
			b.WriteByte('\n')
		}
	}
	return b.String()
}
