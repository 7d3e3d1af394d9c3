package ir

import "fmt"

// BlockID is a dense identifier for a BasicBlock, unique within a Function.
type BlockID uint32

// BasicBlock owns an ordered, doubly-linked sequence of instructions and
// belongs to exactly one Function. Its terminator is the last
// instruction in the sequence.
type BasicBlock struct {
	id   BlockID
	fn   *Function
	root *Instruction
	tail *Instruction

	preds []*BasicBlock
	succs []*BasicBlock
}

// ID returns the dense identifier of b.
func (b *BasicBlock) ID() BlockID { return b.id }

// Name returns a human-readable label, e.g. "block3".
func (b *BasicBlock) Name() string { return fmt.Sprintf("block%d", b.id) }

// Preds returns the direct predecessors of b in the CFG.
func (b *BasicBlock) Preds() []*BasicBlock { return b.preds }

// Succs returns the direct successors of b in the CFG.
func (b *BasicBlock) Succs() []*BasicBlock { return b.succs }

// Root returns the first instruction in b, or nil if b is empty.
func (b *BasicBlock) Root() *Instruction { return b.root }

// Tail returns the last instruction in b (its terminator once the block is
// well-formed), or nil if b is empty.
func (b *BasicBlock) Tail() *Instruction { return b.tail }

// Terminator returns b's terminator instruction. Panics (a "BUG:" invariant
// violation) if b is empty or its tail is not a terminator.
func (b *BasicBlock) Terminator() *Instruction {
	if b.tail == nil || !b.tail.IsTerminator() {
		panic(fmt.Sprintf("BUG: %s has no terminator", b.Name()))
	}
	return b.tail
}

// Insert appends instr to the end of b.
func (b *BasicBlock) Insert(instr *Instruction) {
	instr.block = b
	if b.tail == nil {
		b.root, b.tail = instr, instr
		return
	}
	b.tail.next = instr
	instr.prev = b.tail
	b.tail = instr
}

// Remove unlinks instr from b's instruction list.
func (b *BasicBlock) Remove(instr *Instruction) {
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
	instr.prev, instr.next = nil, nil
}

// InsertBefore inserts instr immediately before mark.
func (b *BasicBlock) InsertBefore(instr, mark *Instruction) {
	instr.block = b
	prev := mark.prev
	instr.prev, instr.next = prev, mark
	mark.prev = instr
	if prev != nil {
		prev.next = instr
	} else {
		b.root = instr
	}
}

// Phis returns every Phi instruction at the head of b. Phis, when present,
// always appear contiguously at block entry.
func (b *BasicBlock) Phis() []*Instruction {
	var out []*Instruction
	for i := b.root; i != nil && i.Opcode() == OpPhi; i = i.next {
		out = append(out, i)
	}
	return out
}

// Instructions calls fn for every instruction in b, in order.
func (b *BasicBlock) Instructions(fn func(*Instruction)) {
	for i := b.root; i != nil; {
		next := i.next
		fn(i)
		i = next
	}
}

// addSucc records the CFG edge b->s in both b's successor list and s's
// predecessor list; Function.AddEdge calls it.
func (b *BasicBlock) addSucc(s *BasicBlock) {
	b.succs = append(b.succs, s)
	s.preds = append(s.preds, b)
}
