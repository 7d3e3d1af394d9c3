// Package aarch64 implements the AArch64 backend: instruction selection
// (direct IR→MIR and SelectionDAG-based), calling-convention lowering, frame
// and stack-slot lowering, and assembly emission.
package aarch64

import (
	"fmt"

	"github.com/cminor-lang/cc64/internal/ir"
	"github.com/cminor-lang/cc64/internal/regalloc"
)

// Register IDs. SP and XZR share encoding slot 31 in the architecture but
// are distinct registers; XZR gets its own internal ID so the two are never
// confused before emission.
const (
	regFP  regalloc.RealReg = 29 // x29
	regLR  regalloc.RealReg = 30 // x30
	regSP  regalloc.RealReg = 31
	regXZR regalloc.RealReg = 32

	// x16/x17 (IP0/IP1) are the intra-procedure-call scratch registers,
	// reserved here for spill-code rewriting and large-offset
	// materialization; x18 is the platform register.
	regIP0 regalloc.RealReg = 16
	regIP1 regalloc.RealReg = 17

	gprArgCount = 8 // x0-x7
	fprArgCount = 8 // v0-v7

	calleeIntFirst = 19 // x19
	calleeIntLast  = 28 // x28
	calleeFPFirst  = 8  // v8
	calleeFPLast   = 15 // v15
)

// The fixed registers as pre-colored VRegs.
func spReg() regalloc.VReg   { return regalloc.FromRealReg(regSP, regalloc.RegTypeInt) }
func fpReg() regalloc.VReg   { return regalloc.FromRealReg(regFP, regalloc.RegTypeInt) }
func lrReg() regalloc.VReg   { return regalloc.FromRealReg(regLR, regalloc.RegTypeInt) }
func zeroReg() regalloc.VReg { return regalloc.FromRealReg(regXZR, regalloc.RegTypeInt) }
func ip0Reg() regalloc.VReg  { return regalloc.FromRealReg(regIP0, regalloc.RegTypeInt) }

// registerInfo builds the allocator's static register tables: per-bank
// allocatable sets minus the two scratch registers, with the
// callee-/caller-saved split of AAPCS64.
func registerInfo() *regalloc.RegisterInfo {
	info := &regalloc.RegisterInfo{}

	intCallee := make(map[regalloc.RealReg]bool)
	intCaller := make(map[regalloc.RealReg]bool)
	// x0-x15 caller-saved, x19-x28 callee-saved. x16/x17 are the spill
	// scratch registers, x18 is the platform register, x29/x30 are FP/LR.
	for r := regalloc.RealReg(0); r <= 15; r++ {
		info.Allocatable[regalloc.RegTypeInt] = append(info.Allocatable[regalloc.RegTypeInt], r)
		intCaller[r] = true
	}
	for r := regalloc.RealReg(calleeIntFirst); r <= calleeIntLast; r++ {
		info.Allocatable[regalloc.RegTypeInt] = append(info.Allocatable[regalloc.RegTypeInt], r)
		intCallee[r] = true
	}
	info.Scratch[regalloc.RegTypeInt] = []regalloc.RealReg{regIP0, regIP1}

	fpCallee := make(map[regalloc.RealReg]bool)
	fpCaller := make(map[regalloc.RealReg]bool)
	// v0-v29 allocatable (v30/v31 reserved as float spill scratch); v8-v15
	// callee-saved, the rest caller-saved.
	for r := regalloc.RealReg(0); r <= 29; r++ {
		info.Allocatable[regalloc.RegTypeFloat] = append(info.Allocatable[regalloc.RegTypeFloat], r)
		if r >= calleeFPFirst && r <= calleeFPLast {
			fpCallee[r] = true
		} else {
			fpCaller[r] = true
		}
	}
	info.Scratch[regalloc.RegTypeFloat] = []regalloc.RealReg{30, 31}

	info.CalleeSaved = [regalloc.NumRegType]map[regalloc.RealReg]bool{
		regalloc.RegTypeInt:   intCallee,
		regalloc.RegTypeFloat: fpCallee,
	}
	info.CallerSaved = [regalloc.NumRegType]map[regalloc.RealReg]bool{
		regalloc.RegTypeInt:   intCaller,
		regalloc.RegTypeFloat: fpCaller,
	}
	return info
}

// bankOf maps a DataType to its register bank; anything that isn't a float
// is treated as integer.
func bankOf(t ir.DataType) regalloc.RegType {
	if t.IsFloat() {
		return regalloc.RegTypeFloat
	}
	return regalloc.RegTypeInt
}

// formatReg renders a physical register in assembly syntax for the given
// value width: sN/dN for floats, wN/xN for integers, with the sp/wzr/xzr
// special names.
func formatReg(v regalloc.VReg, t ir.DataType) string {
	if !v.IsRealReg() {
		// A virtual register surviving to emission is a bug upstream, but
		// formatting it keeps debug dumps readable.
		return v.String()
	}
	id := int16(v.RealReg())
	switch t {
	case ir.F32:
		return fmt.Sprintf("s%d", id)
	case ir.F64:
		return fmt.Sprintf("d%d", id)
	case ir.I64:
		switch v.RealReg() {
		case regSP:
			return "sp"
		case regXZR:
			return "xzr"
		}
		return fmt.Sprintf("x%d", id)
	default:
		if v.RealReg() == regXZR {
			return "wzr"
		}
		if v.RealReg() == regSP {
			return "sp"
		}
		return fmt.Sprintf("w%d", id)
	}
}
