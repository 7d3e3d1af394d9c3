package dag

import (
	"hash/maphash"

	"github.com/cminor-lang/cc64/internal/ir"
)

// SelectionDAG owns every SDNode created for one basic block's worth of
// instruction selection, plus the folding set used to deduplicate
// structurally-identical node-creation requests.
//
// DAG nodes are owned exclusively by their SelectionDAG and are discarded
// together with it once instruction selection for the block completes.
type SelectionDAG struct {
	nodes      []*SDNode
	foldingSet map[uint64][]*SDNode
	seed       maphash.Seed

	entry SDValue
}

// NewSelectionDAG returns an empty SelectionDAG seeded with the ENTRY_TOKEN
// chain value.
func NewSelectionDAG() *SelectionDAG {
	d := &SelectionDAG{
		foldingSet: make(map[uint64][]*SDNode),
		seed:       maphash.MakeSeed(),
	}
	d.entry = d.getNode(OpEntryToken, []ValueType{Chain})
	return d
}

// EntryToken returns the chain value representing the start of the block.
func (d *SelectionDAG) EntryToken() SDValue { return d.entry }

// Nodes returns every node created in this DAG, in creation order.
func (d *SelectionDAG) Nodes() []*SDNode { return d.nodes }

// profile is the structural descriptor a node-creation request is checked
// against: opcode, value types, operand identities, immediate payload, and
// the symbol/frame-index/IR-reg-id payloads. Two requests with an equal
// profile must return the same node.
type profile struct {
	opcode Opcode
	vts    []ValueType
	ops    []SDValue
	iimm   int64
	fimm   float32
	sym    string
	regID  ir.RegID
	frame  int
	blk    ir.BlockID
	cond   byte
}

func (d *SelectionDAG) hash(p profile) uint64 {
	var h maphash.Hash
	h.SetSeed(d.seed)
	writeU64 := func(v uint64) {
		var buf [8]byte
		for i := 0; i < 8; i++ {
			buf[i] = byte(v >> (8 * i))
		}
		h.Write(buf[:])
	}
	writeU64(uint64(p.opcode))
	for _, t := range p.vts {
		writeU64(uint64(t))
	}
	for _, op := range p.ops {
		writeU64(uint64(op.Node.id))
		writeU64(uint64(op.ResNo))
	}
	writeU64(uint64(p.iimm))
	writeU64(uint64(p.regID))
	writeU64(uint64(p.frame))
	writeU64(uint64(p.blk))
	writeU64(uint64(p.cond))
	h.WriteString(p.sym)
	return h.Sum64()
}

func matches(n *SDNode, p profile) bool {
	if n.opcode != p.opcode || len(n.vts) != len(p.vts) || len(n.ops) != len(p.ops) {
		return false
	}
	for i, t := range p.vts {
		if n.vts[i] != t {
			return false
		}
	}
	for i, op := range p.ops {
		if n.ops[i] != op {
			return false
		}
	}
	return n.iimm == p.iimm && n.fimm == p.fimm && n.sym == p.sym &&
		n.regID == p.regID && n.frameID == p.frame && n.blockID == p.blk && n.cond == p.cond
}

// intern probes the folding set for a node matching p, creating and
// inserting one if absent. This is the sole CSE mechanism at the DAG level
//: no two nodes in a SelectionDAG ever share a profile.
func (d *SelectionDAG) intern(p profile) *SDNode {
	key := d.hash(p)
	for _, cand := range d.foldingSet[key] {
		if matches(cand, p) {
			return cand
		}
	}
	n := &SDNode{
		opcode:  p.opcode,
		vts:     append([]ValueType(nil), p.vts...),
		ops:     append([]SDValue(nil), p.ops...),
		iimm:    p.iimm,
		fimm:    p.fimm,
		sym:     p.sym,
		regID:   p.regID,
		frameID: p.frame,
		blockID: p.blk,
		cond:    p.cond,
		id:      len(d.nodes),
	}
	d.nodes = append(d.nodes, n)
	d.foldingSet[key] = append(d.foldingSet[key], n)
	return n
}

// getNode interns a node with the given opcode, result types, and data
// operands (no special payload). Pure arithmetic/comparison/conversion
// nodes go through this entry point.
func (d *SelectionDAG) getNode(opcode Opcode, vts []ValueType, ops ...SDValue) SDValue {
	n := d.intern(profile{opcode: opcode, vts: vts, ops: ops})
	return n.Value(0)
}

// getConstantI64 interns an integer-immediate node.
func (d *SelectionDAG) getConstantI64(v int64, ty ValueType) SDValue {
	n := d.intern(profile{opcode: OpConstantI64, vts: []ValueType{ty}, iimm: v})
	return n.Value(0)
}

// getConstantF32 interns a float-immediate node.
func (d *SelectionDAG) getConstantF32(v float32, ty ValueType) SDValue {
	n := d.intern(profile{opcode: OpConstantF32, vts: []ValueType{ty}, fimm: v})
	return n.Value(0)
}

// getRegNode interns a node representing a cross-block or argument IR
// register definition.
func (d *SelectionDAG) getRegNode(id ir.RegID, ty ValueType) SDValue {
	n := d.intern(profile{opcode: OpRegister, vts: []ValueType{ty}, regID: id})
	return n.Value(0)
}

// getFrameIndexNode interns a node representing an alloca's stack slot.
func (d *SelectionDAG) getFrameIndexNode(idx int, ty ValueType) SDValue {
	n := d.intern(profile{opcode: OpFrameIndex, vts: []ValueType{ty}, frame: idx})
	return n.Value(0)
}

// getSymNode interns a node representing the address of a named global.
func (d *SelectionDAG) getSymNode(name string, ty ValueType) SDValue {
	n := d.intern(profile{opcode: OpGlobalAddr, vts: []ValueType{ty}, sym: name})
	return n.Value(0)
}

// getLabelNode interns a node representing a basic-block label operand
// (used by Phi and by branch lowering to name targets within the DAG).
func (d *SelectionDAG) getLabelNode(id ir.BlockID) SDValue {
	n := d.intern(profile{opcode: OpLabel, vts: nil, blk: id})
	return n.Value(0)
}
