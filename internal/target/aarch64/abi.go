package aarch64

import (
	"github.com/cminor-lang/cc64/internal/mir"
	"github.com/cminor-lang/cc64/internal/regalloc"
)

// callArg classifies one outgoing argument: either a register argument with
// its position in the bank's x0-x7 / v0-v7 sequence, or a stack argument
// with its offset in the outgoing area.
type callArg struct {
	val      mir.Operand
	isFloat  bool
	regIdx   int
	stackOff int
	onStack  bool
}

// lowerCall emits the calling-convention sequence: stack
// arguments are stored to [SP, #off] first (while the temporaries they may
// need are still free), register arguments are staged vreg→temp then
// temp→arg-reg so that no argument register is clobbered while another
// argument still needs its old value, then BL, then the return-value move.
func (s *selector) lowerCall(callee string, args []mir.Operand, result mir.Operand) {
	gprIdx, fprIdx, stackOff := 0, 0, 0
	infos := make([]callArg, 0, len(args))
	for _, a := range args {
		info := callArg{val: a, isFloat: a.Type().IsFloat()}
		if info.isFloat {
			if fprIdx < fprArgCount {
				info.regIdx = fprIdx
				fprIdx++
			} else {
				info.onStack = true
				info.stackOff = stackOff
				stackOff += 8
			}
		} else {
			if gprIdx < gprArgCount {
				info.regIdx = gprIdx
				gprIdx++
			} else {
				info.onStack = true
				info.stackOff = stackOff
				stackOff += 8
			}
		}
		infos = append(infos, info)
	}

	for _, info := range infos {
		if info.onStack {
			s.emit(mir.NewTarget(uint32(opSTR), "str", mir.Operand{},
				info.val, mir.MemOperand(spReg(), int64(info.stackOff), info.val.Type())))
		}
	}

	// Stage through temporaries: x9-x15 (x16 for the 8th integer argument)
	// and v16-v23, outside the argument registers themselves.
	for _, info := range infos {
		if info.onStack {
			continue
		}
		s.emit(mir.NewMove(stagingTemp(info), info.val))
	}
	var argRegs []mir.Operand
	for _, info := range infos {
		if info.onStack {
			continue
		}
		arg := argRegOperand(info)
		s.emit(mir.NewMove(arg, stagingTemp(info)))
		argRegs = append(argRegs, arg)
	}

	s.emit(mir.NewCall(uint32(opBL), "bl", callee, mir.Operand{}, argRegs...))
	s.fn.Frame.SetParamAreaSize(stackOff)

	if result.IsValid() {
		s.emit(mir.NewMove(result, retRegOperand(result.Type())))
	}
}

func argRegOperand(info callArg) mir.Operand {
	if info.isFloat {
		return mir.RegOperand(regalloc.FromRealReg(regalloc.RealReg(info.regIdx), regalloc.RegTypeFloat), info.val.Type())
	}
	return mir.RegOperand(regalloc.FromRealReg(regalloc.RealReg(info.regIdx), regalloc.RegTypeInt), info.val.Type())
}

func stagingTemp(info callArg) mir.Operand {
	if info.isFloat {
		return mir.RegOperand(regalloc.FromRealReg(regalloc.RealReg(16+info.regIdx), regalloc.RegTypeFloat), info.val.Type())
	}
	id := 9 + info.regIdx
	if info.regIdx >= 7 {
		id = 16
	}
	return mir.RegOperand(regalloc.FromRealReg(regalloc.RealReg(id), regalloc.RegTypeInt), info.val.Type())
}
