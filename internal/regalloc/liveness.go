package regalloc

// ProgPoint is a monotonically increasing instruction index assigned within
// one function, in block-ID-ascending, in-block program order.
type ProgPoint int

// numbering assigns a ProgPoint to every instruction in f and records which
// points are call sites.
type numbering struct {
	pos        map[Instr]ProgPoint
	blockStart map[int]ProgPoint // block ID -> first instruction's ProgPoint
	blockEnd   map[int]ProgPoint // block ID -> one-past-last instruction's ProgPoint
	callPoints map[ProgPoint]bool
	order      []Block // blocks in ascending ID order, the same order numbered
}

func number(f Function) *numbering {
	n := &numbering{
		pos:        make(map[Instr]ProgPoint),
		blockStart: make(map[int]ProgPoint),
		blockEnd:   make(map[int]ProgPoint),
		callPoints: make(map[ProgPoint]bool),
	}
	n.order = f.Blocks()
	var p ProgPoint
	for _, b := range n.order {
		n.blockStart[b.ID()] = p
		for _, instr := range b.Instrs() {
			n.pos[instr] = p
			if instr.IsCall() {
				n.callPoints[p] = true
			}
			p++
		}
		n.blockEnd[b.ID()] = p
	}
	return n
}

// blockInfo holds the per-block USE/DEF and (after the fixed-point) IN/OUT
// sets used to build live intervals.
type blockInfo struct {
	use  map[VRegID]bool
	def  map[VRegID]bool
	in   map[VRegID]bool
	out  map[VRegID]bool
	vreg map[VRegID]VReg // id -> a representative VReg value (carries RegType)
}

// computeUseDef walks each block once in order, accumulating USE (vregs read
// before being defined within the block) and DEF (vregs defined in the
// block).
func computeUseDef(f Function) map[int]*blockInfo {
	infos := make(map[int]*blockInfo)
	for _, b := range f.Blocks() {
		bi := &blockInfo{
			use:  make(map[VRegID]bool),
			def:  make(map[VRegID]bool),
			vreg: make(map[VRegID]VReg),
		}
		for _, instr := range b.Instrs() {
			for _, u := range instr.Uses() {
				if u.IsRealReg() {
					continue
				}
				bi.vreg[u.ID()] = u
				if !bi.def[u.ID()] {
					bi.use[u.ID()] = true
				}
			}
			for _, d := range instr.Defs() {
				if d.IsRealReg() {
					continue
				}
				bi.vreg[d.ID()] = d
				bi.def[d.ID()] = true
			}
		}
		infos[b.ID()] = bi
	}
	return infos
}

// computeLiveness runs the backward dataflow to a fixed point:
//
//	OUT[B] = union of IN[S] for all successors S
//	IN[B]  = USE[B] ∪ (OUT[B] − DEF[B])
//
// Blocks are (re)processed in reverse block-ID order for faster convergence.
func computeLiveness(f Function, infos map[int]*blockInfo) {
	blocks := f.Blocks()
	for _, bi := range infos {
		bi.in = make(map[VRegID]bool)
		bi.out = make(map[VRegID]bool)
	}
	reversed := make([]Block, len(blocks))
	copy(reversed, blocks)
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}

	changed := true
	for changed {
		changed = false
		for _, b := range reversed {
			bi := infos[b.ID()]
			newOut := make(map[VRegID]bool)
			for _, s := range b.Succs() {
				si := infos[s.ID()]
				for v := range si.in {
					newOut[v] = true
				}
			}
			if !sameSet(newOut, bi.out) {
				bi.out = newOut
				changed = true
			}
			newIn := make(map[VRegID]bool)
			for v := range bi.use {
				newIn[v] = true
			}
			for v := range bi.out {
				if !bi.def[v] {
					newIn[v] = true
				}
			}
			if !sameSet(newIn, bi.in) {
				bi.in = newIn
				changed = true
			}
		}
	}
}

func sameSet(a, b map[VRegID]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
