// Package dag implements the SelectionDAG: a per-basic-block directed
// acyclic graph whose nodes represent pure computations and whose chain
// edges represent the total order of side effects. Node
// creation is deduplicated through a folding-set keyed on a structural hash,
// which is the backend's sole DAG-level common-subexpression elimination
// mechanism.
package dag

import (
	"fmt"

	"github.com/cminor-lang/cc64/internal/ir"
)

// Opcode enumerates the ISD (instruction-selection DAG) node kinds. These
// are deliberately a different namespace from ir.Opcode: a single IR
// instruction can expand to several DAG nodes (e.g. GEP expands to a chain
// of Mul/Add nodes), and some DAG opcodes (Entry, the chain root) have no IR
// counterpart at all.
type Opcode uint32

const (
	OpInvalid Opcode = iota
	OpEntryToken
	OpConstantI64
	OpConstantF32
	OpRegister // wraps an ir.RegID: a cross-block or argument definition
	OpFrameIndex
	OpGlobalAddr
	OpLabel

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv

	OpIcmp
	OpFcmp

	OpZext
	OpSIToFP
	OpFPToSI

	OpLoad
	OpStore
	OpCall
	OpBr
	OpBrCond
	OpRet
	OpPhi
)

// ValueType is the per-result type carried by an SDNode's result list. It is
// ir.DataType widened with the chain pseudo-type.
type ValueType = ir.DataType

// Chain is the chain pseudo-type used for side-effect ordering edges.
const Chain = ir.Token

// SDValue is a reference pair (node, result index): the DAG's edge type.
type SDValue struct {
	Node   *SDNode
	ResNo  int
}

// Valid reports whether v refers to an actual node.
func (v SDValue) Valid() bool { return v.Node != nil }

// Type returns the ValueType of the referenced result.
func (v SDValue) Type() ValueType { return v.Node.vts[v.ResNo] }

// SDNode is a DAG node: an opcode, a list of result value types (supporting
// multi-result nodes such as Load, which returns both a value and a new
// chain), a list of SDValue operands, and an opaque payload whose meaning
// depends on Opcode.
type SDNode struct {
	opcode Opcode
	vts    []ValueType
	ops    []SDValue

	// Payload fields; at most one set is meaningful per opcode.
	iimm    int64
	fimm    float32
	sym     string
	regID   ir.RegID
	frameID int
	blockID ir.BlockID
	cond    byte // IntCC or FloatCC value, reinterpreted by the consumer

	// id is assigned in creation order and only used for debug formatting
	// and as a tie-breaker; it plays no role in folding-set identity.
	id int
}

// Opcode returns n's opcode.
func (n *SDNode) Opcode() Opcode { return n.opcode }

// Types returns n's result value types.
func (n *SDNode) Types() []ValueType { return n.vts }

// Operands returns n's operand edges.
func (n *SDNode) Operands() []SDValue { return n.ops }

// Value returns the SDValue naming n's i-th result (0 unless multi-result).
func (n *SDNode) Value(i int) SDValue { return SDValue{Node: n, ResNo: i} }

// IntImm returns the integer-immediate payload (OpConstantI64).
func (n *SDNode) IntImm() int64 { return n.iimm }

// FloatImm returns the float-immediate payload (OpConstantF32).
func (n *SDNode) FloatImm() float32 { return n.fimm }

// Sym returns the symbol-name payload (OpGlobalAddr, OpCall).
func (n *SDNode) Sym() string { return n.sym }

// RegID returns the IR-register payload (OpRegister).
func (n *SDNode) RegID() ir.RegID { return n.regID }

// FrameIndex returns the frame-index payload (OpFrameIndex).
func (n *SDNode) FrameIndex() int { return n.frameID }

// BlockID returns the label payload (OpLabel).
func (n *SDNode) BlockID() ir.BlockID { return n.blockID }

// Cond returns the condition-code payload (OpIcmp/OpFcmp), reinterpreted by
// the caller as ir.IntCC or ir.FloatCC.
func (n *SDNode) Cond() byte { return n.cond }

// String implements fmt.Stringer for debug dumps.
func (n *SDNode) String() string {
	return fmt.Sprintf("t%d: %s", n.id, n.opcode)
}

func (o Opcode) String() string {
	names := [...]string{
		"invalid", "EntryToken", "ConstantI64", "ConstantF32", "Register",
		"FrameIndex", "GlobalAddr", "Label", "Add", "Sub", "Mul", "Div", "Mod",
		"FAdd", "FSub", "FMul", "FDiv", "Icmp", "Fcmp", "Zext", "SIToFP",
		"FPToSI", "Load", "Store", "Call", "Br", "BrCond", "Ret", "Phi",
	}
	if int(o) < len(names) {
		return names[o]
	}
	return "unknown"
}
