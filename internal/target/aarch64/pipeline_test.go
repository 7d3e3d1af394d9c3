package aarch64

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cminor-lang/cc64/internal/irtext"
)

// compile parses src and runs the full backend pipeline, returning the
// emitted assembly text.
func compile(t *testing.T, src string, direct bool) string {
	t.Helper()
	m, err := irtext.Parse(src)
	require.NoError(t, err)
	target := New()
	target.UseDirectISel = direct
	var out strings.Builder
	require.NoError(t, target.RunPipeline(m, &out))
	return out.String()
}

// bothPaths runs the test body against the DAG-based and the direct
// selector; their MIR contracts are identical.
func bothPaths(t *testing.T, f func(t *testing.T, direct bool)) {
	t.Run("dag", func(t *testing.T) { f(t, false) })
	t.Run("direct", func(t *testing.T) { f(t, true) })
}

func TestPipeline_LeafFunctionReturningConstant(t *testing.T) {
	src := `
define i32 @f() {
entry:
  ret i32 42
}
`
	bothPaths(t, func(t *testing.T, direct bool) {
		asm := compile(t, src, direct)
		require.Contains(t, asm, ".globl f")
		require.Contains(t, asm, "movz w0, #42")
		require.Contains(t, asm, "ret")
		// Leaf with no frame: no prologue at all.
		require.NotContains(t, asm, "sub sp")
		require.NotContains(t, asm, "stp x29")
	})
}

func TestPipeline_LocalVariableViaAlloca(t *testing.T) {
	src := `
define i32 @f() {
entry:
  %p = alloca i32
  store i32 7, ptr %p
  %v = load i32, ptr %p
  ret i32 %v
}
`
	bothPaths(t, func(t *testing.T, direct bool) {
		asm := compile(t, src, direct)
		require.Contains(t, asm, "sub sp, sp, #16", "one 16-byte-aligned local slot")
		require.Contains(t, asm, "movz w")
		require.Contains(t, asm, "str w")
		require.Contains(t, asm, "ldr w")
		require.Contains(t, asm, "add sp, sp, #16")
	})
}

func TestPipeline_CallWithTenIntegerArgs(t *testing.T) {
	var b strings.Builder
	b.WriteString("declare i32 @sum10(i32, i32, i32, i32, i32, i32, i32, i32, i32, i32)\n")
	b.WriteString("define i32 @main() {\nentry:\n")
	b.WriteString("  %r = call i32 @sum10(")
	for i := 0; i < 10; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "i32 %d", i+1)
	}
	b.WriteString(")\n  ret i32 %r\n}\n")

	bothPaths(t, func(t *testing.T, direct bool) {
		asm := compile(t, b.String(), direct)
		require.Contains(t, asm, "bl sum10")
		// Args 8 and 9 go to the outgoing area at [sp, #0] and [sp, #8].
		require.Contains(t, asm, "[sp, #0]")
		require.Contains(t, asm, "[sp, #8]")
		// Non-leaf: FP/LR saved and restored.
		require.Contains(t, asm, "stp x29, x30")
		require.Contains(t, asm, "ldp x29, x30")
	})
}

func TestPipeline_LoopWithPhi(t *testing.T) {
	src := `
define i32 @count(i32 %n) {
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
`
	bothPaths(t, func(t *testing.T, direct bool) {
		asm := compile(t, src, direct)
		require.Contains(t, asm, "cset w")
		require.Contains(t, asm, "b.ne")
		// The latch's back-edge is critical (two successors) and must have
		// been split: three original blocks plus an edge block.
		require.Contains(t, asm, ".count_3")
		require.Contains(t, asm, "ret")
	})
}

func TestPipeline_RegisterPressureForcesSpill(t *testing.T) {
	// More simultaneously-live integer values than allocatable registers
	// (26): 30 independent values all live until the summation chain.
	var b strings.Builder
	b.WriteString("define i32 @pressure(i32 %a, i32 %b) {\nentry:\n")
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "  %%v%d = add i32 %%a, %d\n", i, i)
	}
	b.WriteString("  %s0 = add i32 %v0, %v1\n")
	for i := 1; i < 29; i++ {
		fmt.Fprintf(&b, "  %%s%d = add i32 %%s%d, %%v%d\n", i, i-1, i+1)
	}
	b.WriteString("  ret i32 %s28\n}\n")

	bothPaths(t, func(t *testing.T, direct bool) {
		asm := compile(t, b.String(), direct)
		// Spill traffic goes through the reserved scratch registers.
		require.Contains(t, asm, "w16")
		require.Contains(t, asm, "str w16, [sp, #")
		require.Contains(t, asm, "ldr w16, [sp, #")
		require.Contains(t, asm, "sub sp")
	})
}

func TestPipeline_LargeStackFrame(t *testing.T) {
	src := `
define i32 @big() {
entry:
  %a = alloca [2048 x i32]
  %p = alloca i32
  store i32 3, ptr %p
  %v = load i32, ptr %p
  ret i32 %v
}
`
	bothPaths(t, func(t *testing.T, direct bool) {
		asm := compile(t, src, direct)
		// 8192-byte array + one padded local: frame size exceeds imm12, so
		// the prologue/epilogue materialize it through x16.
		require.Contains(t, asm, "movz x16, #8208")
		require.Contains(t, asm, "sub sp, sp, x16")
		require.Contains(t, asm, "add sp, sp, x16")
		// The scalar local sits above the array at offset 8192, also out of
		// ADD's immediate range.
		require.Contains(t, asm, "movz x16, #8192")
		require.Contains(t, asm, "add x")
	})
}

func TestPipeline_FloatArithmeticAndConversions(t *testing.T) {
	src := `
define f32 @fma(f32 %x, f32 %y, i32 %n) {
entry:
  %m = fmul f32 %x, %y
  %f = sitofp i32 %n to f32
  %s = fadd f32 %m, %f
  %i = fptosi f32 %s to i32
  %g = sitofp i32 %i to f32
  ret f32 %g
}
`
	bothPaths(t, func(t *testing.T, direct bool) {
		asm := compile(t, src, direct)
		require.Contains(t, asm, "fmul s")
		require.Contains(t, asm, "fadd s")
		require.Contains(t, asm, "scvtf s")
		require.Contains(t, asm, "fcvtzs w")
	})
}

func TestPipeline_GlobalLoadStore(t *testing.T) {
	src := `
@counter = global i32 5
define i32 @bump() {
entry:
  %v = load i32, ptr @counter
  %n = add i32 %v, 1
  store i32 %n, ptr @counter
  ret i32 %n
}
`
	bothPaths(t, func(t *testing.T, direct bool) {
		asm := compile(t, src, direct)
		require.Contains(t, asm, "ldr x", "global address materialization")
		require.Contains(t, asm, "=counter")
		require.Contains(t, asm, ".data")
		require.Contains(t, asm, "counter:")
		require.Contains(t, asm, ".word 5")
	})
}

func TestPipeline_CalleeSavedAcrossCall(t *testing.T) {
	// %v is live across the call: it must be in a callee-saved register
	// (or spilled); either way the prologue saves what it uses.
	src := `
declare i32 @ext(i32)
define i32 @f(i32 %a) {
entry:
  %v = add i32 %a, 100
  %r = call i32 @ext(i32 %a)
  %s = add i32 %v, %r
  ret i32 %s
}
`
	bothPaths(t, func(t *testing.T, direct bool) {
		asm := compile(t, src, direct)
		require.Contains(t, asm, "w19", "call-crossing value prefers a callee-saved register")
		require.Contains(t, asm, "str x19", "the used callee-saved register is saved in the prologue")
		require.Contains(t, asm, "ldr x19")
	})
}
