package irtext

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cminor-lang/cc64/internal/ir"
)

func TestParse_GlobalsAndDeclarations(t *testing.T) {
	m, err := Parse(`
; globals
@x = global i32 42
@arr = global [4 x i32] [1, 2, 0, 0]
@z = global [8 x i32] zeroinitializer
declare i32 @getint()
declare void @putint(i32)
`)
	require.NoError(t, err)
	require.Len(t, m.Globals, 3)
	require.Equal(t, "x", m.Globals[0].Name)
	require.Equal(t, []int64{42}, m.Globals[0].Init)
	require.Equal(t, []int64{4}, m.Globals[1].Dims)
	require.Equal(t, []int64{1, 2, 0, 0}, m.Globals[1].Init)
	require.Empty(t, m.Globals[2].Init)

	require.Len(t, m.Declarations, 2)
	require.Equal(t, "getint", m.Declarations[0].Name)
	require.Empty(t, m.Declarations[0].Args)
	require.Equal(t, []ir.DataType{ir.I32}, m.Declarations[1].Args)
	require.Empty(t, m.Declarations[1].Results)
}

func TestParse_FunctionBodyAndCFG(t *testing.T) {
	m, err := Parse(`
define i32 @max(i32 %a, i32 %b) {
entry:
  %c = icmp sgt i32 %a, %b
  br i1 %c, label %then, label %else
then:
  ret i32 %a
else:
  ret i32 %b
}
`)
	require.NoError(t, err)
	require.Len(t, m.Functions, 1)
	fn := m.Functions[0]
	require.Equal(t, "max", fn.Sig.Name)
	require.Equal(t, []ir.DataType{ir.I32, ir.I32}, fn.Sig.Args)
	require.Len(t, fn.Args(), 2)

	blocks := fn.Blocks()
	require.Len(t, blocks, 3)
	entry := fn.Entry()
	require.Equal(t, ir.BlockID(0), entry.ID())
	require.Len(t, entry.Succs(), 2)
	require.Equal(t, ir.OpBrCond, entry.Terminator().Opcode())
}

func TestParse_ImmediatesSynthesizeConstInstructions(t *testing.T) {
	m, err := Parse(`
define i32 @f() {
entry:
  %p = alloca i32
  store i32 7, ptr %p
  %v = load i32, ptr %p
  ret i32 %v
}
`)
	require.NoError(t, err)
	var sawIconst, sawAlloca bool
	m.Functions[0].Entry().Instructions(func(instr *ir.Instruction) {
		switch instr.Opcode() {
		case ir.OpIconst:
			sawIconst = true
			require.Equal(t, int64(7), instr.Iconst())
		case ir.OpAlloca:
			sawAlloca = true
			require.Equal(t, int64(4), instr.AllocaSize())
		}
	})
	require.True(t, sawIconst, "the literal 7 becomes an iconst instruction")
	require.True(t, sawAlloca)
}

func TestParse_PhiEdgeConstantLandsInPredecessor(t *testing.T) {
	m, err := Parse(`
define i32 @f(i32 %n) {
entry:
  br label %loop
loop:
  %i = phi i32 [ 0, %entry ], [ %next, %loop ]
  %next = add i32 %i, 1
  %c = icmp slt i32 %next, %n
  br i1 %c, label %loop, label %done
done:
  ret i32 %i
}
`)
	require.NoError(t, err)
	fn := m.Functions[0]

	// The 0 incoming from entry must be materialized in entry, before its
	// terminator, not in the phi's own block.
	var entryConsts int
	fn.Entry().Instructions(func(instr *ir.Instruction) {
		if instr.Opcode() == ir.OpIconst && instr.Iconst() == 0 {
			entryConsts++
		}
	})
	require.Equal(t, 1, entryConsts)
	require.Equal(t, ir.OpBr, fn.Entry().Terminator().Opcode())

	phis := fn.Block(1).Phis()
	require.Len(t, phis, 1)
	require.Len(t, phis[0].PhiEdges(), 2)
}

func TestParse_GEPAndArrayAlloca(t *testing.T) {
	m, err := Parse(`
define i32 @f(i32 %i, i32 %j) {
entry:
  %a = alloca [4 x 5 x i32]
  %p = gep ptr %a, [4 x 5 x i32], i32 %i, i32 %j
  %v = load i32, ptr %p
  ret i32 %v
}
`)
	require.NoError(t, err)
	var gep *ir.Instruction
	m.Functions[0].Entry().Instructions(func(instr *ir.Instruction) {
		switch instr.Opcode() {
		case ir.OpAlloca:
			require.Equal(t, int64(80), instr.AllocaSize())
		case ir.OpGEP:
			gep = instr
		}
	})
	require.NotNil(t, gep)
	require.Equal(t, []int64{4, 5}, gep.GEPDims())
	require.Equal(t, ir.I32, gep.GEPElemType())
	require.Len(t, gep.GEPIndices(), 2)
}

func TestParse_CallVoidAndWithResult(t *testing.T) {
	m, err := Parse(`
declare void @putint(i32)
declare i32 @getint()
define i32 @f() {
entry:
  %v = call i32 @getint()
  call void @putint(i32 %v)
  ret i32 %v
}
`)
	require.NoError(t, err)
	var calls []*ir.Instruction
	m.Functions[0].Entry().Instructions(func(instr *ir.Instruction) {
		if instr.Opcode() == ir.OpCall {
			calls = append(calls, instr)
		}
	})
	require.Len(t, calls, 2)
	require.True(t, calls[0].Result().Valid())
	require.False(t, calls[1].Result().Valid())
	require.Len(t, calls[1].CallArgs(), 1)
}

func TestParse_Errors(t *testing.T) {
	for _, src := range []string{
		"bogus top level",
		"define i32 @f() {\nentry:\n  %x = frobnicate i32 1\n}",
		"define i32 @f() {\n  ret i32 0\n}", // instruction before any label
		"define i32 @f() {\nentry:\n  ret i32 %undef\n}",
	} {
		_, err := Parse(src)
		require.Error(t, err, "source %q must not parse", src)
	}
}

func TestFormat_PrintsStructure(t *testing.T) {
	src := `
@g = global i32 1
define i32 @f(i32 %a) {
entry:
  %s = add i32 %a, %a
  ret i32 %s
}
`
	m, err := Parse(src)
	require.NoError(t, err)
	text := Format(m)
	require.Contains(t, text, "@g = global i32 1")
	require.Contains(t, text, "define i32 @f(i32) {")
	require.Contains(t, text, "add")
	require.Contains(t, text, "ret")
}
