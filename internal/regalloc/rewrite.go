package regalloc

// rewrite substitutes every virtual-register operand in f with either its
// assigned physical register or, for spilled intervals, a scratch register
// reloaded/spilled around the instruction.
// Scratch registers are round-robined across multiple spilled uses of the
// same instruction so that a single instruction referencing more than one
// spilled vreg doesn't have its reloads collide in the same scratch.
func rewrite(f Function, intervals map[VRegID]*Interval, info *RegisterInfo) {
	for _, b := range f.Blocks() {
		for _, instr := range b.Instrs() {
			rewriteUses(f, instr, intervals, info)
			rewriteDefs(f, instr, intervals, info)
		}
	}
	removeTrivialSelfCopies(f)
}

func slotFor(f Function, iv *Interval) SpillSlot {
	if iv.Slot == nil {
		iv.Slot = f.AllocateSpillSlot(iv.VReg)
	}
	return iv.Slot
}

func rewriteUses(f Function, instr Instr, intervals map[VRegID]*Interval, info *RegisterInfo) {
	uses := instr.Uses()
	if len(uses) == 0 {
		return
	}
	rewritten := make([]VReg, len(uses))
	scratchCursor := [NumRegType]int{}
	for i, u := range uses {
		if u.IsRealReg() {
			// Already a fixed physical register (e.g. a calling-convention
			// argument register materialized before RA); nothing to do.
			rewritten[i] = u
			continue
		}
		iv, ok := intervals[u.ID()]
		if !ok {
			panic("BUG: use of a vreg with no computed live interval")
		}
		if !iv.Spilled {
			rewritten[i] = u.SetRealReg(iv.Assigned)
			continue
		}
		scratches := info.Scratch[u.RegType()]
		if len(scratches) == 0 {
			panic("BUG: out of scratch registers while lowering spill code")
		}
		scratch := scratches[scratchCursor[u.RegType()]%len(scratches)]
		scratchCursor[u.RegType()]++
		f.InsertReloadBefore(instr, slotFor(f, iv), scratch)
		rewritten[i] = u.SetRealReg(scratch)
	}
	instr.RewriteUses(rewritten)
}

func rewriteDefs(f Function, instr Instr, intervals map[VRegID]*Interval, info *RegisterInfo) {
	for _, d := range instr.Defs() {
		if d.IsRealReg() {
			continue
		}
		iv, ok := intervals[d.ID()]
		if !ok {
			panic("BUG: def of a vreg with no computed live interval")
		}
		if !iv.Spilled {
			instr.RewriteDef(d.SetRealReg(iv.Assigned))
			continue
		}
		scratches := info.Scratch[d.RegType()]
		if len(scratches) == 0 {
			panic("BUG: out of scratch registers while lowering spill code")
		}
		scratch := scratches[0]
		f.InsertSpillAfter(instr, slotFor(f, iv), scratch)
		instr.RewriteDef(d.SetRealReg(scratch))
	}
}

// removeTrivialSelfCopies deletes any `MOV x, x` left behind by rewrite,
// where both sides of an IsCopy instruction now name the same RealReg.
func removeTrivialSelfCopies(f Function) {
	for _, b := range f.Blocks() {
		for _, instr := range b.Instrs() {
			if !instr.IsCopy() {
				continue
			}
			uses, defs := instr.Uses(), instr.Defs()
			if len(uses) == 1 && len(defs) == 1 && uses[0].RealReg() == defs[0].RealReg() {
				b.RemoveInstr(instr)
			}
		}
	}
}
