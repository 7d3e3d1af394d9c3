package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFunction_BlocksOrderedByID(t *testing.T) {
	f := NewFunction(&Signature{Name: "f"})
	b2 := f.NewBlock()
	b0 := f.NewBlock()
	f.SetEntry(b0)
	_ = b2

	blocks := f.Blocks()
	require.Len(t, blocks, 2)
	require.Less(t, blocks[0].ID(), blocks[1].ID())
}

func TestBasicBlock_InsertAndTerminator(t *testing.T) {
	f := NewFunction(&Signature{Name: "f", Results: []DataType{I32}})
	b := f.NewBlock()
	f.SetEntry(b)

	v := f.NewValue(I32)
	b.Insert(new(Instruction).AsIconst(v, 42))
	b.Insert(new(Instruction).AsRet(v))

	require.Equal(t, OpIconst, b.Root().Opcode())
	term := b.Terminator()
	require.Equal(t, OpRet, term.Opcode())
	require.True(t, term.IsTerminator())
}

func TestBasicBlock_TerminatorPanicsWhenMissing(t *testing.T) {
	f := NewFunction(&Signature{Name: "f"})
	b := f.NewBlock()
	v := f.NewValue(I32)
	b.Insert(new(Instruction).AsIconst(v, 1))

	require.Panics(t, func() { b.Terminator() })
}

func TestInstruction_StringFormatsOperands(t *testing.T) {
	f := NewFunction(&Signature{Name: "f"})
	b := f.NewBlock()
	f.SetEntry(b)
	x := f.NewValue(I32)
	y := f.NewValue(I32)
	r := f.NewValue(I32)

	add := new(Instruction).AsBinary(OpAdd, r, x, y)
	require.Contains(t, add.String(), "add")
	require.Contains(t, add.String(), x.String())
	require.Contains(t, add.String(), y.String())
}

func TestPhi_EdgesAndRewrite(t *testing.T) {
	f := NewFunction(&Signature{Name: "f"})
	entry := f.NewBlock()
	loop := f.NewBlock()
	f.SetEntry(entry)

	v0 := f.NewValue(I32)
	v1 := f.NewValue(I32)
	dst := f.NewValue(I32)

	phi := new(Instruction).AsPhi(dst, []PhiEdge{
		{Block: entry, Value: v0},
		{Block: loop, Value: v1},
	})
	require.Len(t, phi.PhiEdges(), 2)

	phi.SetPhiEdges([]PhiEdge{{Block: loop, Value: v1}})
	require.Len(t, phi.PhiEdges(), 1)
	require.Equal(t, loop, phi.PhiEdges()[0].Block)
}
