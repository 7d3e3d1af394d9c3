package phi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cminor-lang/cc64/internal/ir"
	"github.com/cminor-lang/cc64/internal/mir"
	"github.com/cminor-lang/cc64/internal/regalloc"
)

type stubBranchFactory struct{ nextOp uint32 }

func (s *stubBranchFactory) NewUncondBranch(to mir.BlockID) *mir.Instr {
	s.nextOp++
	return mir.NewBr(s.nextOp, "b", to)
}

func TestEliminate_NonCriticalEdgeInsertsCopyAndRemovesPhi(t *testing.T) {
	fn := mir.NewFunction("f")
	entry := fn.NewBlock()
	pred := fn.NewBlock()
	join := fn.NewBlock()
	fn.SetEntry(entry)

	v0 := fn.NewVReg(regalloc.RegTypeInt) // value flowing into the phi
	vphi := fn.NewVReg(regalloc.RegTypeInt)

	entry.Append(mir.NewBr(1, "b", mir.BlockID(pred.ID())))
	fn.AddEdge(entry, pred)

	pred.Append(mir.NewBr(1, "b", mir.BlockID(join.ID())))
	fn.AddEdge(pred, join)

	phiInstr := mir.NewPhi(mir.RegOperand(vphi, ir.I64), []mir.PhiEdge{
		{Block: mir.BlockID(pred.ID()), Value: mir.RegOperand(v0, ir.I64)},
	})
	join.Append(phiInstr)
	join.Append(mir.NewRet(2, "ret"))

	Eliminate(fn, &stubBranchFactory{})

	require.Empty(t, join.Phis(), "phi must be removed after elimination")
	predInstrs := pred.AllInstrs()
	require.Len(t, predInstrs, 2, "a copy must be inserted before pred's terminator")
	require.Equal(t, mir.MOVE, predInstrs[0].Kind())
}

func TestEliminate_CriticalEdgeIsSplit(t *testing.T) {
	fn := mir.NewFunction("f")
	entry := fn.NewBlock()
	a := fn.NewBlock() // entry's other successor, unrelated to the phi
	join := fn.NewBlock()
	fn.SetEntry(entry)

	v0 := fn.NewVReg(regalloc.RegTypeInt)
	vphi := fn.NewVReg(regalloc.RegTypeInt)

	// entry has two successors (join, a): the edge entry->join is critical.
	entry.Append(mir.NewBrCond(1, "b.cond", mir.RegOperand(v0, ir.I1), mir.BlockID(join.ID()), mir.BlockID(a.ID())))
	fn.AddEdge(entry, join)
	fn.AddEdge(entry, a)

	a.Append(mir.NewRet(2, "ret"))

	phiInstr := mir.NewPhi(mir.RegOperand(vphi, ir.I64), []mir.PhiEdge{
		{Block: mir.BlockID(entry.ID()), Value: mir.RegOperand(v0, ir.I64)},
	})
	join.Append(phiInstr)
	join.Append(mir.NewRet(2, "ret"))

	nBlocksBefore := len(fn.AllBasicBlocks())
	Eliminate(fn, &stubBranchFactory{})
	nBlocksAfter := len(fn.AllBasicBlocks())

	require.Equal(t, nBlocksBefore+1, nBlocksAfter, "critical edge splitting must add exactly one block")
	require.Empty(t, join.Phis())

	term := entry.AllInstrs()[len(entry.AllInstrs())-1]
	require.NotContains(t, term.Targets(), mir.BlockID(join.ID()), "entry's terminator must no longer target join directly")
}

func TestEliminate_SecondRunIsANoOp(t *testing.T) {
	fn := mir.NewFunction("f")
	entry := fn.NewBlock()
	pred := fn.NewBlock()
	join := fn.NewBlock()
	fn.SetEntry(entry)

	v0 := fn.NewVReg(regalloc.RegTypeInt)
	vphi := fn.NewVReg(regalloc.RegTypeInt)

	entry.Append(mir.NewBr(1, "b", mir.BlockID(pred.ID())))
	fn.AddEdge(entry, pred)
	pred.Append(mir.NewBr(1, "b", mir.BlockID(join.ID())))
	fn.AddEdge(pred, join)
	join.Append(mir.NewPhi(mir.RegOperand(vphi, ir.I64), []mir.PhiEdge{
		{Block: mir.BlockID(pred.ID()), Value: mir.RegOperand(v0, ir.I64)},
	}))
	join.Append(mir.NewRet(2, "ret"))

	Eliminate(fn, &stubBranchFactory{})
	countInstrs := func() int {
		n := 0
		for _, b := range fn.AllBasicBlocks() {
			n += len(b.AllInstrs())
		}
		return n
	}
	after := countInstrs()
	blocks := len(fn.AllBasicBlocks())

	Eliminate(fn, &stubBranchFactory{})
	require.Equal(t, after, countInstrs(), "a second run must find no phis to lower")
	require.Equal(t, blocks, len(fn.AllBasicBlocks()))
}

func TestScheduleCopies_BreaksSwapCycle(t *testing.T) {
	fn := mir.NewFunction("f")
	v1 := fn.NewVReg(regalloc.RegTypeInt)
	v2 := fn.NewVReg(regalloc.RegTypeInt)

	copies := []pendingCopy{
		{dst: mir.RegOperand(v1, ir.I64), src: mir.RegOperand(v2, ir.I64)},
		{dst: mir.RegOperand(v2, ir.I64), src: mir.RegOperand(v1, ir.I64)},
	}
	moves := scheduleCopies(fn, copies)
	require.Len(t, moves, 3, "a 2-cycle needs exactly one scratch-routed extra move")
}
