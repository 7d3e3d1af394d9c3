// Package mir implements the target-agnostic machine IR: operands, basic
// blocks, functions and frame-info objects produced by instruction selection
// and consumed by register allocation, phi elimination, frame lowering and
// stack-slot lowering.
package mir

import (
	"fmt"

	"github.com/cminor-lang/cc64/internal/ir"
	"github.com/cminor-lang/cc64/internal/regalloc"
)

// OperandKind discriminates Operand's tagged-union payload.
type OperandKind byte

const (
	OperandInvalid OperandKind = iota
	OperandReg
	OperandImmInt
	OperandImmFloat
	OperandLabel
	OperandSymbol
	OperandMem
	OperandMemPair
	OperandFrameIndex
	// OperandMemRegOffset is a base-register-plus-index-register memory
	// reference: `[base, idx]`. Stack-slot lowering produces this when a
	// frame offset doesn't fit a scaled immediate and must be materialized
	// into a scratch register first.
	OperandMemRegOffset
	// OperandLocalVar is a pseudo reference to an alloca-backed FrameInfo
	// object, keyed by the IR register that produced its address (mirroring
	// FrameInfo.irRegToObject's own keying) rather than a spill-slot index.
	// Instruction selection emits this wherever an alloca's address is used
	// directly as a load/store address or materialized explicitly via ADD;
	// stack-slot lowering resolves it the same way it resolves
	// OperandFrameIndex, just against FrameInfo.ObjectOffset instead of
	// FrameInfo.SpillSlotOffset.
	OperandLocalVar
)

// String implements fmt.Stringer.
func (k OperandKind) String() string {
	switch k {
	case OperandReg:
		return "reg"
	case OperandImmInt:
		return "imm-int"
	case OperandImmFloat:
		return "imm-float"
	case OperandLabel:
		return "label"
	case OperandSymbol:
		return "symbol"
	case OperandMem:
		return "mem"
	case OperandMemPair:
		return "mem-pair"
	case OperandFrameIndex:
		return "frame-index"
	case OperandLocalVar:
		return "local-var"
	default:
		return "invalid"
	}
}

// Operand is a flattened tagged union: one Go struct, with field meaning
// depending on Kind, instead of an interface hierarchy of concrete operand
// types.
type Operand struct {
	kind OperandKind
	typ  ir.DataType

	reg        regalloc.VReg // OperandReg, and the base register for OperandMem/OperandMemPair
	immInt     int64         // OperandImmInt
	immFloat   float32       // OperandImmFloat
	label      BlockID       // OperandLabel
	sym        string        // OperandSymbol
	offset     int64         // OperandMem / OperandMemPair (first offset)
	offset2    int64         // OperandMemPair (second offset)
	frameIndex int           // OperandFrameIndex
	idxReg     regalloc.VReg // OperandMemRegOffset (index register; reg holds the base)
}

// RegOperand wraps a virtual or physical register.
func RegOperand(r regalloc.VReg, typ ir.DataType) Operand {
	return Operand{kind: OperandReg, reg: r, typ: typ}
}

// ImmIntOperand wraps an immediate integer.
func ImmIntOperand(v int64, typ ir.DataType) Operand {
	return Operand{kind: OperandImmInt, immInt: v, typ: typ}
}

// ImmFloatOperand wraps an immediate float.
func ImmFloatOperand(v float32, typ ir.DataType) Operand {
	return Operand{kind: OperandImmFloat, immFloat: v, typ: typ}
}

// LabelOperand wraps a basic-block-ID branch target.
func LabelOperand(b BlockID) Operand {
	return Operand{kind: OperandLabel, label: b}
}

// SymbolOperand wraps a global/function symbol name.
func SymbolOperand(name string) Operand {
	return Operand{kind: OperandSymbol, sym: name}
}

// MemOperand wraps a base-register-plus-signed-offset memory reference.
func MemOperand(base regalloc.VReg, offset int64, typ ir.DataType) Operand {
	return Operand{kind: OperandMem, reg: base, offset: offset, typ: typ}
}

// MemPairOperand wraps a base register with two offsets, addressing the pair
// of locations used by STP/LDP.
func MemPairOperand(base regalloc.VReg, off1, off2 int64, typ ir.DataType) Operand {
	return Operand{kind: OperandMemPair, reg: base, offset: off1, offset2: off2, typ: typ}
}

// FrameIndexOperand wraps an abstract stack-slot reference, later resolved
// by stack-slot lowering.
func FrameIndexOperand(fi int, typ ir.DataType) Operand {
	return Operand{kind: OperandFrameIndex, frameIndex: fi, typ: typ}
}

// LocalVarOperand wraps a reference to the alloca-backed FrameInfo object
// keyed by irRegID, later resolved by stack-slot lowering the same way a
// spill-slot FrameIndexOperand is.
func LocalVarOperand(irRegID uint32, typ ir.DataType) Operand {
	return Operand{kind: OperandLocalVar, frameIndex: int(irRegID), typ: typ}
}

// MemRegOffsetOperand wraps a base-register-plus-index-register memory
// reference, produced when stack-slot lowering materializes a frame offset
// too large for a scaled immediate into a scratch register.
func MemRegOffsetOperand(base, idx regalloc.VReg, typ ir.DataType) Operand {
	return Operand{kind: OperandMemRegOffset, reg: base, idxReg: idx, typ: typ}
}

func (o Operand) Kind() OperandKind  { return o.kind }
func (o Operand) Type() ir.DataType  { return o.typ }
func (o Operand) Reg() regalloc.VReg { return o.reg }
func (o Operand) ImmInt() int64      { return o.immInt }
func (o Operand) ImmFloat() float32  { return o.immFloat }
func (o Operand) Label() BlockID     { return o.label }
func (o Operand) Sym() string        { return o.sym }
func (o Operand) MemOffset() int64   { return o.offset }
func (o Operand) MemOffset2() int64  { return o.offset2 }
func (o Operand) FrameIndex() int    { return o.frameIndex }
func (o Operand) IRRegID() uint32    { return uint32(o.frameIndex) }
func (o Operand) IdxReg() regalloc.VReg { return o.idxReg }
func (o Operand) IsValid() bool      { return o.kind != OperandInvalid }

// WithRegOffset returns a copy of o (expected to be an OperandFrameIndex)
// resolved to a base-plus-index-register memory operand, for the large-
// offset case stack-slot lowering materializes through a scratch register.
func (o Operand) WithRegOffset(base, idx regalloc.VReg) Operand {
	o.kind = OperandMemRegOffset
	o.reg = base
	o.idxReg = idx
	return o
}

// WithReg returns a copy of o with its register replaced, keeping its kind;
// Instr.RewriteUses and Instr.RewriteDef use it to substitute a VReg that
// carries its assigned RealReg.
func (o Operand) WithReg(r regalloc.VReg) Operand {
	o.reg = r
	return o
}

// WithMem returns a copy of o (expected to be an OperandFrameIndex) resolved
// to a concrete base-relative memory operand.
func (o Operand) WithMem(base regalloc.VReg, offset int64) Operand {
	o.kind = OperandMem
	o.reg = base
	o.offset = offset
	return o
}

// WithImm returns a copy of o (expected to be an OperandFrameIndex appearing
// as an ADD/SUB-immediate operand rather than a load/store address) resolved
// to a concrete immediate, for frame-address materialization.
func (o Operand) WithImm(v int64) Operand {
	o.kind = OperandImmInt
	o.immInt = v
	return o
}

// String implements fmt.Stringer.
func (o Operand) String() string {
	switch o.kind {
	case OperandReg:
		return o.reg.String()
	case OperandImmInt:
		return fmt.Sprintf("#%d", o.immInt)
	case OperandImmFloat:
		return fmt.Sprintf("#%g", o.immFloat)
	case OperandLabel:
		return fmt.Sprintf(".L%d", o.label)
	case OperandSymbol:
		return "=" + o.sym
	case OperandMem:
		return fmt.Sprintf("[%s, #%d]", o.reg, o.offset)
	case OperandMemPair:
		return fmt.Sprintf("[%s, #%d/#%d]", o.reg, o.offset, o.offset2)
	case OperandFrameIndex:
		return fmt.Sprintf("fi#%d", o.frameIndex)
	case OperandLocalVar:
		return fmt.Sprintf("local#%d", o.frameIndex)
	case OperandMemRegOffset:
		return fmt.Sprintf("[%s, %s]", o.reg, o.idxReg)
	default:
		return "<invalid operand>"
	}
}
