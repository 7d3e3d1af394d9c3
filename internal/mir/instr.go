package mir

import (
	"fmt"
	"strings"

	"github.com/cminor-lang/cc64/internal/regalloc"
)

// InstrKind classifies an Instr: a handful of pseudo kinds handled
// generically by every pass, plus TARGET for anything ISA-specific.
type InstrKind byte

const (
	NOP InstrKind = iota
	// PHI is eliminated before register allocation.
	PHI
	// MOVE is a plain register-to-register copy.
	MOVE
	// SELECT is a conditional-move pseudo, lowered by the target before RA.
	SELECT
	// LSLOT is a reload of a spilled vreg from its frame slot, produced by
	// regalloc's rewrite pass.
	LSLOT
	// SSLOT is a spill-store of a vreg to its frame slot.
	SSLOT
	// TARGET carries an ISA-specific opcode in TargetOp.
	TARGET
)

// String implements fmt.Stringer.
func (k InstrKind) String() string {
	switch k {
	case NOP:
		return "nop"
	case PHI:
		return "phi"
	case MOVE:
		return "move"
	case SELECT:
		return "select"
	case LSLOT:
		return "lslot"
	case SSLOT:
		return "sslot"
	case TARGET:
		return "target"
	default:
		return "invalid"
	}
}

// PhiEdge is one (incoming-block, incoming-value) pair of a PHI instruction,
// before critical-edge splitting renames the block.
type PhiEdge struct {
	Block BlockID
	Value Operand
}

// Instr is a single MIR instruction: one flattened struct whose field
// meaning depends on Kind/TargetOp rather than a type hierarchy, kept in a
// doubly-linked list via prev/next.
type Instr struct {
	kind     InstrKind
	targetOp uint32 // meaningful when kind == TARGET; cast from the target package's own opcode enum
	mnemonic string // target mnemonic, used verbatim by the assembly emitter

	def  Operand   // zero value (OperandInvalid) if this instruction has no def
	uses []Operand // operand list in the order the emitter should print them

	cond    byte      // condition-code payload, e.g. CSET's cc
	targets []BlockID // branch targets, in order
	sym     string    // call/LA symbol, duplicated here for the emitter's convenience
	isCall  bool

	phiEdges []PhiEdge // valid only while kind == PHI

	block      *BasicBlock
	prev, next *Instr
}

// NewTarget creates a TARGET instruction: op is the target package's own
// opcode (cast to uint32), mnemonic is the assembly-syntax name used by the
// emitter, def is the (possibly zero) result operand, and uses are the
// source operands in emission order.
func NewTarget(op uint32, mnemonic string, def Operand, uses ...Operand) *Instr {
	return &Instr{kind: TARGET, targetOp: op, mnemonic: mnemonic, def: def, uses: uses}
}

// NewMove creates a register-to-register copy.
func NewMove(def, src Operand) *Instr {
	return &Instr{kind: MOVE, def: def, uses: []Operand{src}}
}

// NewCall creates a TARGET call instruction (`BL symbol`), marking IsCall so
// the allocator treats its coverage as crossing a call.
func NewCall(op uint32, mnemonic, sym string, def Operand, uses ...Operand) *Instr {
	return &Instr{kind: TARGET, targetOp: op, mnemonic: mnemonic, sym: sym, def: def, uses: uses, isCall: true}
}

// NewBr creates an unconditional branch to target.
func NewBr(op uint32, mnemonic string, target BlockID) *Instr {
	return &Instr{kind: TARGET, targetOp: op, mnemonic: mnemonic, targets: []BlockID{target}}
}

// NewBrCond creates a conditional branch: cc is the branch's condition
// operand (a register; the flag-setting CMP is a separate Instr),
// tTarget/fTarget are the taken/fallthrough blocks.
func NewBrCond(op uint32, mnemonic string, cc Operand, tTarget, fTarget BlockID) *Instr {
	return &Instr{kind: TARGET, targetOp: op, mnemonic: mnemonic, uses: []Operand{cc}, targets: []BlockID{tTarget, fTarget}}
}

// NewRet creates a return instruction with no operands; any return value is
// moved into the ABI return register by an earlier Instr.
func NewRet(op uint32, mnemonic string) *Instr {
	return &Instr{kind: TARGET, targetOp: op, mnemonic: mnemonic}
}

// NewCSet creates a TARGET CSET instruction carrying a condition-code
// payload.
func NewCSet(op uint32, mnemonic string, def Operand, cc byte) *Instr {
	return &Instr{kind: TARGET, targetOp: op, mnemonic: mnemonic, def: def, cond: cc}
}

// NewPhi creates a pending PHI instruction, eliminated by package phi before
// register allocation.
func NewPhi(def Operand, edges []PhiEdge) *Instr {
	return &Instr{kind: PHI, def: def, phiEdges: edges}
}

// NewLoadSlot creates an LSLOT pseudo-instruction: reload the spilled vreg
// at frame index fi into def.
func NewLoadSlot(def Operand, fi int) *Instr {
	return &Instr{kind: LSLOT, def: def, uses: []Operand{FrameIndexOperand(fi, def.Type())}}
}

// NewStoreSlot creates an SSLOT pseudo-instruction: spill src to frame index
// fi.
func NewStoreSlot(src Operand, fi int) *Instr {
	return &Instr{kind: SSLOT, uses: []Operand{src, FrameIndexOperand(fi, src.Type())}}
}

func (i *Instr) Kind() InstrKind        { return i.kind }
func (i *Instr) TargetOp() uint32       { return i.targetOp }
func (i *Instr) Mnemonic() string       { return i.mnemonic }
func (i *Instr) Def() Operand           { return i.def }
func (i *Instr) UseOperands() []Operand { return i.uses }
func (i *Instr) Cond() byte             { return i.cond }
func (i *Instr) Targets() []BlockID     { return i.targets }
func (i *Instr) Sym() string            { return i.sym }
func (i *Instr) PhiEdges() []PhiEdge    { return i.phiEdges }
func (i *Instr) Block() *BasicBlock     { return i.block }

// SetDef replaces this instruction's def operand outright (used by phi
// elimination and stack-slot lowering to resolve a FrameIndex into a
// concrete Mem operand).
func (i *Instr) SetDef(o Operand) { i.def = o }

// SetUse replaces use operand idx outright.
func (i *Instr) SetUse(idx int, o Operand) { i.uses[idx] = o }

// SetPhiEdges replaces this PHI instruction's edge list outright; used by
// instruction selection to fill in an edge's Value once the block defining
// it (possibly a not-yet-lowered loop body) has been selected.
func (i *Instr) SetPhiEdges(edges []PhiEdge) { i.phiEdges = edges }

// SetCond sets the condition-code payload outright; used by instruction
// selection to record the fixed NE test of a CMP-then-branch sequence.
func (i *Instr) SetCond(c byte) { i.cond = c }

// Resolve turns a pseudo instruction (LSLOT/SSLOT) into a concrete TARGET
// instruction in place, once stack-slot lowering has rewritten its
// FrameIndex operand into a real addressing mode.
func (i *Instr) Resolve(op uint32, mnemonic string) {
	i.kind = TARGET
	i.targetOp = op
	i.mnemonic = mnemonic
}

// RetargetBranch rewrites every occurrence of old in this instruction's
// branch targets to new, reporting whether it changed anything. Used by
// critical-edge splitting to redirect a predecessor's terminator at the
// freshly inserted edge block.
func (i *Instr) RetargetBranch(old, new BlockID) bool {
	changed := false
	for idx, t := range i.targets {
		if t == old {
			i.targets[idx] = new
			changed = true
		}
	}
	return changed
}

// regOperandIndices returns, in order, the indices of i.uses that carry a
// register operand (OperandReg, or the base register of OperandMem /
// OperandMemPair) — the same order Uses()/RewriteUses() iterate.
func (i *Instr) regOperandIndices() []int {
	var idxs []int
	for idx, u := range i.uses {
		switch u.kind {
		case OperandReg, OperandMem, OperandMemPair:
			idxs = append(idxs, idx)
		}
	}
	return idxs
}

// Defs implements regalloc.Instr.
func (i *Instr) Defs() []regalloc.VReg {
	if i.def.kind != OperandReg {
		return nil
	}
	return []regalloc.VReg{i.def.reg}
}

// Uses implements regalloc.Instr.
func (i *Instr) Uses() []regalloc.VReg {
	idxs := i.regOperandIndices()
	if len(idxs) == 0 {
		return nil
	}
	out := make([]regalloc.VReg, len(idxs))
	for n, idx := range idxs {
		out[n] = i.uses[idx].reg
	}
	return out
}

// RewriteUses implements regalloc.Instr.
func (i *Instr) RewriteUses(rewritten []regalloc.VReg) {
	idxs := i.regOperandIndices()
	if len(idxs) != len(rewritten) {
		panic("BUG: RewriteUses given the wrong number of registers")
	}
	for n, idx := range idxs {
		i.uses[idx] = i.uses[idx].WithReg(rewritten[n])
	}
}

// RewriteDef implements regalloc.Instr.
func (i *Instr) RewriteDef(rewritten regalloc.VReg) {
	if i.def.kind != OperandReg {
		panic("BUG: RewriteDef called on an instruction with no register def")
	}
	i.def = i.def.WithReg(rewritten)
}

// IsCopy implements regalloc.Instr.
func (i *Instr) IsCopy() bool {
	return i.kind == MOVE && i.def.kind == OperandReg && len(i.uses) == 1 && i.uses[0].kind == OperandReg
}

// IsCall implements regalloc.Instr.
func (i *Instr) IsCall() bool { return i.isCall }

// String renders the instruction roughly the way the assembly emitter will,
// for debugging and test assertions.
func (i *Instr) String() string {
	var b strings.Builder
	if i.kind == TARGET || i.kind == LSLOT || i.kind == SSLOT {
		if i.def.kind != OperandInvalid {
			fmt.Fprintf(&b, "%s %s", i.mnemonic, i.def)
			for _, u := range i.uses {
				fmt.Fprintf(&b, ", %s", u)
			}
		} else {
			fmt.Fprintf(&b, "%s", i.mnemonic)
			for n, u := range i.uses {
				if n == 0 {
					fmt.Fprintf(&b, " %s", u)
				} else {
					fmt.Fprintf(&b, ", %s", u)
				}
			}
		}
		for _, t := range i.targets {
			fmt.Fprintf(&b, " .L%d", t)
		}
		return b.String()
	}
	switch i.kind {
	case MOVE:
		fmt.Fprintf(&b, "mov %s, %s", i.def, i.uses[0])
	case PHI:
		fmt.Fprintf(&b, "%s = phi", i.def)
		for _, e := range i.phiEdges {
			fmt.Fprintf(&b, " [.L%d: %s]", e.Block, e.Value)
		}
	default:
		b.WriteString(i.kind.String())
	}
	return b.String()
}
