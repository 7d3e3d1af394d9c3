// Package phi eliminates MIR PHI pseudo-instructions before register
// allocation sees them, via critical-edge splitting and parallel-copy
// scheduling.
package phi

import "github.com/cminor-lang/cc64/internal/mir"

// BranchFactory lets Eliminate insert a fresh unconditional branch without
// knowing any target's concrete opcode/mnemonic encoding; internal/target/aarch64
// supplies the real implementation.
type BranchFactory interface {
	NewUncondBranch(to mir.BlockID) *mir.Instr
}

// Eliminate runs critical-edge splitting followed by parallel-copy
// insertion and PHI cleanup over every block of fn.
func Eliminate(fn *mir.Function, bf BranchFactory) {
	splitCriticalEdges(fn, bf)
	for _, b := range fn.AllBasicBlocks() {
		if len(b.Phis()) == 0 {
			continue
		}
		insertParallelCopies(fn, b)
		for _, p := range b.Phis() {
			b.RemoveInstr(p)
		}
	}
}

// splitCriticalEdges inserts an empty edge block on every critical edge
// (a predecessor with more than one successor) feeding a block with PHIs,
// redirects the predecessor's terminator at the new block, and renames the
// PHI's incoming-block label accordingly.
func splitCriticalEdges(fn *mir.Function, bf BranchFactory) {
	for _, b := range fn.AllBasicBlocks() {
		phis := b.Phis()
		if len(phis) == 0 {
			continue
		}
		preds := append([]*mir.BasicBlock(nil), b.Preds()...)
		for _, p := range preds {
			if len(p.SuccBlocks()) <= 1 {
				continue
			}
			e := fn.NewBlock()
			e.Append(bf.NewUncondBranch(mir.BlockID(b.ID())))
			fn.AddEdge(e, b)

			p.Terminator().RetargetBranch(mir.BlockID(b.ID()), mir.BlockID(e.ID()))
			p.ReplaceSucc(b, e)
			b.ReplacePred(p, e)

			for _, instr := range phis {
				edges := instr.PhiEdges()
				for i := range edges {
					if edges[i].Block == mir.BlockID(p.ID()) {
						edges[i].Block = mir.BlockID(e.ID())
					}
				}
			}
		}
	}
}

// pendingCopy is one destination-register := source-operand assignment
// still waiting to be scheduled onto a predecessor's instruction stream.
type pendingCopy struct {
	dst mir.Operand
	src mir.Operand
}

// insertParallelCopies emits, at the end of every (post-split) predecessor
// of b, the set of copies implementing b's PHI semantics for that edge.
func insertParallelCopies(fn *mir.Function, b *mir.BasicBlock) {
	phis := b.Phis()
	for _, p := range b.Preds() {
		var copies []pendingCopy
		for _, instr := range phis {
			for _, edge := range instr.PhiEdges() {
				if edge.Block != mir.BlockID(p.ID()) {
					continue
				}
				dst := instr.Def()
				if edge.Value.Kind() == mir.OperandReg && edge.Value.Reg() == dst.Reg() {
					continue // trivial self-assignment, nothing to schedule
				}
				copies = append(copies, pendingCopy{dst: dst, src: edge.Value})
			}
		}
		if len(copies) == 0 {
			continue
		}
		moves := scheduleCopies(fn, copies)
		term := p.Terminator()
		for _, mv := range moves {
			p.InsertBefore(mv, term)
		}
	}
}

// scheduleCopies orders a set of parallel register assignments into a valid
// sequential instruction stream: repeatedly emit any copy
// whose destination isn't still needed as another copy's source; if only
// cycles remain, break one by routing through a fresh scratch register.
func scheduleCopies(fn *mir.Function, copies []pendingCopy) []*mir.Instr {
	remaining := append([]pendingCopy(nil), copies...)
	var out []*mir.Instr

	readyToEmit := func(i int) bool {
		for j, o := range remaining {
			if j == i {
				continue
			}
			if o.src.Kind() == mir.OperandReg && o.src.Reg() == remaining[i].dst.Reg() {
				return false
			}
		}
		return true
	}

	for len(remaining) > 0 {
		progressed := false
		for i := 0; i < len(remaining); {
			if readyToEmit(i) {
				c := remaining[i]
				out = append(out, mir.NewMove(c.dst, c.src))
				remaining = append(remaining[:i], remaining[i+1:]...)
				progressed = true
				continue
			}
			i++
		}
		if progressed || len(remaining) == 0 {
			continue
		}

		// Only cycles remain: break one with a scratch register.
		k := -1
		for i, c := range remaining {
			if c.src.Kind() == mir.OperandReg {
				k = i
				break
			}
		}
		if k == -1 {
			// No register-sourced copy left to break a cycle with; this
			// should not occur in well-formed phi input.
			break
		}
		srcReg := remaining[k].src
		tmpVReg := fn.NewVReg(srcReg.Reg().RegType())
		tmp := mir.RegOperand(tmpVReg, srcReg.Type())
		out = append(out, mir.NewMove(tmp, srcReg))
		for i := range remaining {
			if remaining[i].src.Kind() == mir.OperandReg && remaining[i].src.Reg() == srcReg.Reg() {
				remaining[i].src = tmp
			}
		}
	}
	return out
}
