package mir

import (
	"sort"

	"github.com/cminor-lang/cc64/internal/ir"
	"github.com/cminor-lang/cc64/internal/regalloc"
)

// Function is the MIR counterpart of internal/ir.Function: a CFG of
// BasicBlocks plus a FrameInfo and the monotonic block/vreg ID counters. It implements regalloc.Function directly, so
// internal/regalloc.Allocate can run against it without any adapter type.
type Function struct {
	Name   string
	Frame  *FrameInfo
	blocks map[BlockID]*BasicBlock
	order  []BlockID
	entry  BlockID
	nextID BlockID
	nextV  regalloc.VRegID

	spillAlign int // spill-slot size/alignment, 8 bytes
}

// NewFunction returns an empty Function ready to receive blocks.
func NewFunction(name string) *Function {
	return &Function{
		Name:       name,
		Frame:      NewFrameInfo(),
		blocks:     make(map[BlockID]*BasicBlock),
		spillAlign: 8,
	}
}

// NewBlock allocates and inserts a fresh, empty BasicBlock.
func (f *Function) NewBlock() *BasicBlock {
	id := f.nextID
	f.nextID++
	b := &BasicBlock{id: id, fn: f}
	f.blocks[id] = b
	f.order = append(f.order, id)
	return b
}

// SetEntry designates b as the function's entry block.
func (f *Function) SetEntry(b *BasicBlock) { f.entry = b.id }

// Entry returns the entry block.
func (f *Function) Entry() *BasicBlock { return f.blocks[f.entry] }

// Block looks up a block by ID.
func (f *Function) Block(id BlockID) *BasicBlock { return f.blocks[id] }

// AddEdge records a CFG edge from a to b; instruction selection calls this
// whenever it emits a branch or fallthrough.
func (f *Function) AddEdge(a, b *BasicBlock) { a.addSucc(b) }

// NewVReg allocates a fresh virtual register of the given bank.
func (f *Function) NewVReg(typ regalloc.RegType) regalloc.VReg {
	id := f.nextV
	f.nextV++
	return regalloc.NewVReg(id, typ)
}

// orderedBlocks returns every block sorted by ascending BlockID, matching
// internal/ir.Function.Blocks().
func (f *Function) orderedBlocks() []*BasicBlock {
	ids := make([]BlockID, len(f.order))
	copy(ids, f.order)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*BasicBlock, len(ids))
	for i, id := range ids {
		out[i] = f.blocks[id]
	}
	return out
}

// Blocks implements regalloc.Function.
func (f *Function) Blocks() []regalloc.Block {
	ordered := f.orderedBlocks()
	out := make([]regalloc.Block, len(ordered))
	for i, b := range ordered {
		out[i] = b
	}
	return out
}

// AllBasicBlocks returns every block in ascending-ID order as *BasicBlock,
// for passes that need the concrete type.
func (f *Function) AllBasicBlocks() []*BasicBlock { return f.orderedBlocks() }

// AllocateSpillSlot implements regalloc.Function: allocates an 8-byte,
// 8-byte-aligned FrameInfo spill slot and returns its frame index, boxed as
// a regalloc.SpillSlot.
func (f *Function) AllocateSpillSlot(v regalloc.VReg) regalloc.SpillSlot {
	fi := f.Frame.CreateSpillSlot(f.spillAlign, f.spillAlign)
	return fi
}

// InsertReloadBefore implements regalloc.Function: inserts an LSLOT
// pseudo-instruction reloading slot into scratch, immediately before instr.
func (f *Function) InsertReloadBefore(ri regalloc.Instr, slot regalloc.SpillSlot, scratch regalloc.RealReg) {
	instr := ri.(*Instr)
	fi := slot.(int)
	def := RegOperand(regalloc.FromRealReg(scratch, scratchRegType(instr)), scratchType(instr))
	reload := NewLoadSlot(def, fi)
	instr.block.InsertBefore(reload, instr)
}

// InsertSpillAfter implements regalloc.Function: inserts an SSLOT
// pseudo-instruction storing scratch to slot, immediately after instr.
func (f *Function) InsertSpillAfter(ri regalloc.Instr, slot regalloc.SpillSlot, scratch regalloc.RealReg) {
	instr := ri.(*Instr)
	fi := slot.(int)
	src := RegOperand(regalloc.FromRealReg(scratch, scratchRegType(instr)), scratchType(instr))
	spill := NewStoreSlot(src, fi)
	instr.block.InsertAfter(spill, instr)
}

// scratchRegType infers the register bank a scratch substitution should use
// from the instruction being rewritten, preferring its def's bank and
// falling back to its first register use.
func scratchRegType(instr *Instr) regalloc.RegType {
	if instr.def.kind == OperandReg {
		return instr.def.reg.RegType()
	}
	for _, u := range instr.uses {
		if u.kind == OperandReg {
			return u.reg.RegType()
		}
	}
	return regalloc.RegTypeInt
}

// scratchType mirrors scratchRegType but returns the DataType carried by
// whichever operand it inspects, so the reload/spill's Operand keeps the
// original value's width for the emitter.
func scratchType(instr *Instr) (typ ir.DataType) {
	if instr.def.kind == OperandReg {
		return instr.def.typ
	}
	for _, u := range instr.uses {
		if u.kind == OperandReg {
			return u.typ
		}
	}
	return typ
}
