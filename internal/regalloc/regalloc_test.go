package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeInstr is a minimal Instr used to exercise the allocator without
// depending on any concrete ISA.
type fakeInstr struct {
	name   string
	defs   []VReg
	uses   []VReg
	isCopy bool
	isCall bool
}

func (i *fakeInstr) Defs() []VReg         { return i.defs }
func (i *fakeInstr) Uses() []VReg         { return i.uses }
func (i *fakeInstr) RewriteUses(r []VReg) { i.uses = r }
func (i *fakeInstr) RewriteDef(r VReg)    { i.defs = []VReg{r} }
func (i *fakeInstr) IsCopy() bool         { return i.isCopy }
func (i *fakeInstr) IsCall() bool         { return i.isCall }

type fakeBlock struct {
	id     int
	instrs []*fakeInstr
	succs  []*fakeBlock
}

func (b *fakeBlock) ID() int { return b.id }
func (b *fakeBlock) Instrs() []Instr {
	out := make([]Instr, len(b.instrs))
	for i, in := range b.instrs {
		out[i] = in
	}
	return out
}
func (b *fakeBlock) Succs() []Block {
	out := make([]Block, len(b.succs))
	for i, s := range b.succs {
		out[i] = s
	}
	return out
}
func (b *fakeBlock) RemoveInstr(target Instr) {
	fi := target.(*fakeInstr)
	kept := b.instrs[:0]
	for _, in := range b.instrs {
		if in != fi {
			kept = append(kept, in)
		}
	}
	b.instrs = kept
}

type fakeFunction struct {
	blocks    []*fakeBlock
	nextSlot  int
	reloads   []string // instr names a reload was inserted before
	spills    []string // instr names a spill was inserted after
}

func (f *fakeFunction) Blocks() []Block {
	out := make([]Block, len(f.blocks))
	for i, b := range f.blocks {
		out[i] = b
	}
	return out
}

type fakeSlot struct{ n int }

func (f *fakeFunction) AllocateSpillSlot(v VReg) SpillSlot {
	f.nextSlot++
	return &fakeSlot{n: f.nextSlot}
}

func (f *fakeFunction) blockOf(instr Instr) *fakeBlock {
	fi := instr.(*fakeInstr)
	for _, b := range f.blocks {
		for _, in := range b.instrs {
			if in == fi {
				return b
			}
		}
	}
	return nil
}

func (f *fakeFunction) InsertReloadBefore(instr Instr, slot SpillSlot, scratch RealReg) {
	fi := instr.(*fakeInstr)
	f.reloads = append(f.reloads, fi.name)
	b := f.blockOf(instr)
	reload := &fakeInstr{name: "reload-" + fi.name, defs: []VReg{FromRealReg(scratch, RegTypeInt)}}
	for i, in := range b.instrs {
		if in == fi {
			b.instrs = append(b.instrs[:i:i], append([]*fakeInstr{reload}, b.instrs[i:]...)...)
			return
		}
	}
}

func (f *fakeFunction) InsertSpillAfter(instr Instr, slot SpillSlot, scratch RealReg) {
	fi := instr.(*fakeInstr)
	f.spills = append(f.spills, fi.name)
	b := f.blockOf(instr)
	spill := &fakeInstr{name: "spill-" + fi.name, uses: []VReg{FromRealReg(scratch, RegTypeInt)}}
	for i, in := range b.instrs {
		if in == fi {
			b.instrs = append(b.instrs[:i+1:i+1], append([]*fakeInstr{spill}, b.instrs[i+1:]...)...)
			return
		}
	}
}

func v(id uint32) VReg { return NewVReg(VRegID(id), RegTypeInt) }

func TestNumberAndUseDef_StraightLineBlock(t *testing.T) {
	i1 := &fakeInstr{name: "def0", defs: []VReg{v(0)}}
	i2 := &fakeInstr{name: "use0def1", defs: []VReg{v(1)}, uses: []VReg{v(0)}}
	b0 := &fakeBlock{id: 0, instrs: []*fakeInstr{i1, i2}}
	f := &fakeFunction{blocks: []*fakeBlock{b0}}

	num := number(f)
	require.Equal(t, ProgPoint(0), num.pos[i1])
	require.Equal(t, ProgPoint(1), num.pos[i2])

	infos := computeUseDef(f)
	require.True(t, infos[0].def[0])
	require.True(t, infos[0].def[1])
	require.False(t, infos[0].use[0], "v0 is defined before used within the block")
}

func TestBuildIntervals_CrossBlockLiveRangeAndCrossesCall(t *testing.T) {
	// b0: v0 = def; call; br b1
	// b1: use v0
	def := &fakeInstr{name: "def", defs: []VReg{v(0)}}
	call := &fakeInstr{name: "call", isCall: true}
	b1 := &fakeBlock{id: 1}
	b0 := &fakeBlock{id: 0, instrs: []*fakeInstr{def, call}, succs: []*fakeBlock{b1}}
	use := &fakeInstr{name: "use", uses: []VReg{v(0)}}
	b1.instrs = []*fakeInstr{use}

	f := &fakeFunction{blocks: []*fakeBlock{b0, b1}}
	num := number(f)
	infos := computeUseDef(f)
	computeLiveness(f, infos)
	ivs := buildIntervals(f, num, infos)

	iv, ok := ivs[0]
	require.True(t, ok)
	require.True(t, iv.CrossesCall, "v0's interval spans the call in b0")
	require.Equal(t, num.pos[def], iv.Start())
}

func TestAllocateBank_SpillsLatestEndPointWhenOutOfRegisters(t *testing.T) {
	// Two overlapping intervals, only one register available: v1 (ends at
	// 9) arrives while v0 (ends at 10) holds the register, so v0, the one
	// with the latest end point, is spilled and v1 takes its register.
	mk := func(id VRegID, start, end ProgPoint) *Interval {
		return &Interval{
			VReg:     NewVReg(id, RegTypeInt),
			Segments: []Segment{{Start: start, End: end}},
			Assigned: RealRegInvalid,
		}
	}
	ivs := []*Interval{
		mk(0, 0, 10),
		mk(1, 1, 9),
	}
	info := &RegisterInfo{
		Allocatable: [NumRegType][]RealReg{RegTypeInt: {0}},
		CallerSaved: [NumRegType]map[RealReg]bool{RegTypeInt: {0: true}},
	}
	allocateBank(ivs, info, RegTypeInt)

	spilled := 0
	for _, iv := range ivs {
		if iv.Spilled {
			spilled++
		} else {
			require.Equal(t, RealReg(0), iv.Assigned)
		}
	}
	require.Equal(t, 1, spilled, "exactly one of the two overlapping intervals must spill")
	require.True(t, ivs[0].Spilled, "v0 has the latest end point and must be the one spilled")
}

func TestAllocate_RewriteInsertsSpillCode(t *testing.T) {
	// v0 and v1 overlap in the single block with only one allocatable
	// register, forcing a spill. Self-copy cleanup is covered by
	// TestRemoveTrivialSelfCopies.
	def0 := &fakeInstr{name: "def0", defs: []VReg{v(0)}}
	def1 := &fakeInstr{name: "def1", defs: []VReg{v(1)}}
	use0 := &fakeInstr{name: "use0", uses: []VReg{v(0)}}
	use1 := &fakeInstr{name: "use1", uses: []VReg{v(1)}}
	b0 := &fakeBlock{id: 0, instrs: []*fakeInstr{def0, def1, use0, use1}}
	f := &fakeFunction{blocks: []*fakeBlock{b0}}

	info := &RegisterInfo{
		Allocatable: [NumRegType][]RealReg{RegTypeInt: {0}},
		CallerSaved: [NumRegType]map[RealReg]bool{RegTypeInt: {0: true}},
		Scratch:     [NumRegType][]RealReg{RegTypeInt: {9, 10}},
	}

	res := Allocate(f, info)
	require.NotNil(t, res)
	// One of v0/v1 must have been spilled, generating reload/spill traffic.
	require.NotEmpty(t, f.reloads)
}

func TestRemoveTrivialSelfCopies(t *testing.T) {
	same := FromRealReg(3, RegTypeInt)
	cp := &fakeInstr{name: "cp", isCopy: true, defs: []VReg{same}, uses: []VReg{same}}
	other := &fakeInstr{name: "other"}
	b0 := &fakeBlock{id: 0, instrs: []*fakeInstr{cp, other}}
	f := &fakeFunction{blocks: []*fakeBlock{b0}}

	removeTrivialSelfCopies(f)
	require.Len(t, b0.instrs, 1)
	require.Equal(t, "other", b0.instrs[0].name)
}
