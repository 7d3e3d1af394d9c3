package mir

import "github.com/cminor-lang/cc64/internal/regalloc"

// BlockID is a basic block's dense identifier.
type BlockID uint32

// BasicBlock is an ordered sequence of Instr, owned by a Function. Its
// layout mirrors internal/ir.BasicBlock: a doubly-linked instruction list
// plus a preds/succs edge list, generalized from IR blocks to MIR blocks.
type BasicBlock struct {
	id           BlockID
	fn           *Function
	root, tail   *Instr
	preds, succs []*BasicBlock
}

// ID returns the block's identifier.
func (b *BasicBlock) ID() int { return int(b.id) }

// Preds returns the block's predecessors.
func (b *BasicBlock) Preds() []*BasicBlock { return b.preds }

// Succs implements regalloc.Block.
func (b *BasicBlock) Succs() []regalloc.Block {
	out := make([]regalloc.Block, len(b.succs))
	for i, s := range b.succs {
		out[i] = s
	}
	return out
}

// SuccBlocks returns the block's successors as *BasicBlock, for passes
// (phi elimination, frame lowering) that need the concrete type.
func (b *BasicBlock) SuccBlocks() []*BasicBlock { return b.succs }

func (b *BasicBlock) addSucc(s *BasicBlock) {
	b.succs = append(b.succs, s)
	s.preds = append(s.preds, b)
}

// ReplaceSucc replaces old with new in b's successor list, used by
// critical-edge splitting to splice an edge block in between b and old.
func (b *BasicBlock) ReplaceSucc(old, new *BasicBlock) {
	for i, s := range b.succs {
		if s == old {
			b.succs[i] = new
		}
	}
}

// ReplacePred replaces old with new in b's predecessor list.
func (b *BasicBlock) ReplacePred(old, new *BasicBlock) {
	for i, p := range b.preds {
		if p == old {
			b.preds[i] = new
		}
	}
}

// Append adds instr at the end of the block's instruction list.
func (b *BasicBlock) Append(instr *Instr) {
	instr.block = b
	if b.root == nil {
		b.root, b.tail = instr, instr
		return
	}
	instr.prev = b.tail
	b.tail.next = instr
	b.tail = instr
}

// Prepend adds instr at the start of the block's instruction list; used to
// insert prologue instructions ahead of the entry block's
// existing body.
func (b *BasicBlock) Prepend(instr *Instr) {
	instr.block = b
	if b.root == nil {
		b.root, b.tail = instr, instr
		return
	}
	instr.next = b.root
	b.root.prev = instr
	b.root = instr
}

// InsertBefore splices instr into the list immediately before mark.
func (b *BasicBlock) InsertBefore(instr, mark *Instr) {
	instr.block = b
	instr.prev = mark.prev
	instr.next = mark
	if mark.prev != nil {
		mark.prev.next = instr
	} else {
		b.root = instr
	}
	mark.prev = instr
}

// InsertAfter splices instr into the list immediately after mark.
func (b *BasicBlock) InsertAfter(instr, mark *Instr) {
	instr.block = b
	instr.next = mark.next
	instr.prev = mark
	if mark.next != nil {
		mark.next.prev = instr
	} else {
		b.tail = instr
	}
	mark.next = instr
}

// remove unsplices instr from the list without touching its neighbor
// pointers' validity for callers still iterating.
func (b *BasicBlock) remove(instr *Instr) {
	if instr.prev != nil {
		instr.prev.next = instr.next
	} else {
		b.root = instr.next
	}
	if instr.next != nil {
		instr.next.prev = instr.prev
	} else {
		b.tail = instr.prev
	}
}

// RemoveInstr implements regalloc.Block.
func (b *BasicBlock) RemoveInstr(ri regalloc.Instr) {
	b.remove(ri.(*Instr))
}

// Instrs implements regalloc.Block: every instruction in program order.
func (b *BasicBlock) Instrs() []regalloc.Instr {
	var out []regalloc.Instr
	for i := b.root; i != nil; i = i.next {
		out = append(out, i)
	}
	return out
}

// AllInstrs returns every *Instr in program order, for passes (phi
// elimination, frame/stack-slot lowering, the emitter) that need the
// concrete type rather than the regalloc.Instr interface.
func (b *BasicBlock) AllInstrs() []*Instr {
	var out []*Instr
	for i := b.root; i != nil; i = i.next {
		out = append(out, i)
	}
	return out
}

// Phis returns the contiguous run of PHI instructions at the block's start.
func (b *BasicBlock) Phis() []*Instr {
	var out []*Instr
	for i := b.root; i != nil && i.kind == PHI; i = i.next {
		out = append(out, i)
	}
	return out
}

// Terminator returns the block's last instruction, panicking if the block
// is empty.
func (b *BasicBlock) Terminator() *Instr {
	if b.tail == nil {
		panic("BUG: mir block has no terminator")
	}
	return b.tail
}
