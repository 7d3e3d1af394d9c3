package aarch64

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cminor-lang/cc64/internal/ir"
	"github.com/cminor-lang/cc64/internal/mir"
)

// mirText renders a selected function's instructions for assertions.
func mirText(fn *mir.Function) string {
	var b strings.Builder
	for _, blk := range fn.AllBasicBlocks() {
		for _, instr := range blk.AllInstrs() {
			b.WriteString(instr.String())
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func retConstFunc(v int64) *ir.Function {
	fn := ir.NewFunction(&ir.Signature{Name: "f", Results: []ir.DataType{ir.I32}})
	blk := fn.NewBlock()
	fn.SetEntry(blk)
	c := fn.NewValue(ir.I32)
	blk.Insert((&ir.Instruction{}).AsIconst(c, v))
	blk.Insert((&ir.Instruction{}).AsRet(c))
	return fn
}

func TestImmediateMaterialization_Boundaries(t *testing.T) {
	for _, tc := range []struct {
		name  string
		value int64
		want  []string
		skip  []string
	}{
		// r32 is the internal ID of the zero register (the zero case must
		// not materialize anything).
		{"zero uses the zero register", 0, []string{"mov r0, r32"}, []string{"movz"}},
		{"16-bit value uses a single movz", 0xFFFF, []string{"movz v0, #65535"}, []string{"movk"}},
		{"wider value adds a movk", 0x12345, []string{"movz v0, #9029", "movk v0, #1, #16"}, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			text := mirText(selectDirect(retConstFunc(tc.value)))
			for _, w := range tc.want {
				require.Contains(t, text, w)
			}
			for _, s := range tc.skip {
				require.NotContains(t, text, s)
			}
		})
	}
}

func TestIcmpLowering_ConditionCodes(t *testing.T) {
	// The CSET payload table, byte-exact.
	cases := map[ir.IntCC]byte{
		ir.IntEQ:  0,
		ir.IntNE:  1,
		ir.IntSGE: 10,
		ir.IntSLT: 11,
		ir.IntSGT: 12,
		ir.IntSLE: 13,
	}
	for cc, want := range cases {
		require.Equal(t, want, icmpCond(cc))
	}
	require.Equal(t, byte(11), fcmpCond(ir.FloatLT))
	require.Equal(t, byte(0), fcmpCond(ir.FloatEQ))
}

func TestModExpansion(t *testing.T) {
	fn := ir.NewFunction(&ir.Signature{Name: "f", Args: []ir.DataType{ir.I32, ir.I32}, Results: []ir.DataType{ir.I32}})
	blk := fn.NewBlock()
	fn.SetEntry(blk)
	a := fn.NewValue(ir.I32)
	fn.AddArg(a)
	b := fn.NewValue(ir.I32)
	fn.AddArg(b)
	r := fn.NewValue(ir.I32)
	blk.Insert((&ir.Instruction{}).AsBinary(ir.OpMod, r, a, b))
	blk.Insert((&ir.Instruction{}).AsRet(r))

	text := mirText(selectDirect(fn))
	sdiv := strings.Index(text, "sdiv")
	mul := strings.Index(text, "mul")
	sub := strings.Index(text, "sub")
	require.True(t, sdiv >= 0 && mul > sdiv && sub > mul, "mod expands to SDIV; MUL; SUB in order, got:\n%s", text)
}

func TestZextLowering(t *testing.T) {
	fn := ir.NewFunction(&ir.Signature{Name: "f", Args: []ir.DataType{ir.I32, ir.I32}, Results: []ir.DataType{ir.I64}})
	blk := fn.NewBlock()
	fn.SetEntry(blk)
	a := fn.NewValue(ir.I32)
	fn.AddArg(a)
	b := fn.NewValue(ir.I32)
	fn.AddArg(b)
	c := fn.NewValue(ir.I1)
	z32 := fn.NewValue(ir.I32)
	z64 := fn.NewValue(ir.I64)
	blk.Insert((&ir.Instruction{}).AsIcmp(c, a, b, ir.IntSLT))
	blk.Insert((&ir.Instruction{}).AsZext(z32, c))
	blk.Insert((&ir.Instruction{}).AsZext(z64, z32))
	blk.Insert((&ir.Instruction{}).AsRet(z64))

	text := mirText(selectDirect(fn))
	require.Contains(t, text, "and", "i1 zext masks with #1")
	require.Contains(t, text, "uxtw", "i32->i64 zext uses uxtw")
}

func TestCallLowering_ArgStagingAvoidsClobber(t *testing.T) {
	fn := ir.NewFunction(&ir.Signature{Name: "f", Args: []ir.DataType{ir.I32, ir.I32}, Results: []ir.DataType{ir.I32}})
	blk := fn.NewBlock()
	fn.SetEntry(blk)
	a := fn.NewValue(ir.I32)
	fn.AddArg(a)
	b := fn.NewValue(ir.I32)
	fn.AddArg(b)
	// swap(a, b): naive marshaling a->x0, b->x1 would be fine, but b->x0,
	// a->x1 must go through temps.
	r := fn.NewValue(ir.I32)
	blk.Insert((&ir.Instruction{}).AsCall(r, "g", []ir.Value{b, a}))
	blk.Insert((&ir.Instruction{}).AsRet(r))

	mfn := selectDirect(fn)
	var moves []string
	for _, instr := range mfn.Entry().AllInstrs() {
		if instr.Kind() == mir.MOVE || instr.IsCall() {
			moves = append(moves, instr.String())
		}
	}
	text := strings.Join(moves, "\n")
	// All vreg->temp moves precede every temp->argreg move.
	lastStage1 := strings.LastIndex(text, "mov r9")
	require.GreaterOrEqual(t, lastStage1, 0, "staging moves into x9/x10, got:\n%s", text)
	require.Contains(t, text, "mov r0, r9")
	require.Contains(t, text, "mov r1, r10")
}

func TestDAGAndDirectPathsAgreeOnStructure(t *testing.T) {
	fn := func() *ir.Function {
		f := ir.NewFunction(&ir.Signature{Name: "f", Args: []ir.DataType{ir.I32}, Results: []ir.DataType{ir.I32}})
		blk := f.NewBlock()
		f.SetEntry(blk)
		a := f.NewValue(ir.I32)
		f.AddArg(a)
		x := f.NewValue(ir.I32)
		y := f.NewValue(ir.I32)
		blk.Insert((&ir.Instruction{}).AsBinary(ir.OpAdd, x, a, a))
		blk.Insert((&ir.Instruction{}).AsBinary(ir.OpMul, y, x, x))
		blk.Insert((&ir.Instruction{}).AsRet(y))
		return f
	}

	direct := mirText(selectDirect(fn()))
	dagged := mirText(selectDAG(fn()))
	for _, mnemonic := range []string{"add", "mul", "ret"} {
		require.Contains(t, direct, mnemonic)
		require.Contains(t, dagged, mnemonic)
	}
}

func TestDAGPath_CSEReducesDuplicateArithmetic(t *testing.T) {
	fn := func(dup bool) *ir.Function {
		f := ir.NewFunction(&ir.Signature{Name: "f", Args: []ir.DataType{ir.I32}, Results: []ir.DataType{ir.I32}})
		blk := f.NewBlock()
		f.SetEntry(blk)
		a := f.NewValue(ir.I32)
		f.AddArg(a)
		x := f.NewValue(ir.I32)
		blk.Insert((&ir.Instruction{}).AsBinary(ir.OpAdd, x, a, a))
		second := x
		if dup {
			y := f.NewValue(ir.I32)
			blk.Insert((&ir.Instruction{}).AsBinary(ir.OpAdd, y, a, a))
			second = y
		}
		z := f.NewValue(ir.I32)
		blk.Insert((&ir.Instruction{}).AsBinary(ir.OpMul, z, x, second))
		blk.Insert((&ir.Instruction{}).AsRet(z))
		return f
	}

	withDup := mirText(selectDAG(fn(true)))
	withoutDup := mirText(selectDAG(fn(false)))
	require.Equal(t, strings.Count(withoutDup, "add"), strings.Count(withDup, "add"),
		"the folding set must collapse the duplicated add")
}
