package aarch64

import (
	"io"

	"github.com/cminor-lang/cc64/internal/ir"
	"github.com/cminor-lang/cc64/internal/mir"
	"github.com/cminor-lang/cc64/internal/phi"
	"github.com/cminor-lang/cc64/internal/regalloc"
	"github.com/cminor-lang/cc64/internal/target"
)

func init() {
	target.Register("aarch64", func() target.BackendTarget { return New() })
	target.Register("armv8", func() target.BackendTarget { return New() })
}

// Target is the AArch64 backend. The pipeline is: instruction selection, phi elimination, linear-scan register
// allocation, frame lowering, stack-slot lowering, assembly emission.
type Target struct {
	// UseDirectISel switches instruction selection to the direct IR→MIR
	// path. The default is the SelectionDAG-based path, which additionally
	// deduplicates structurally identical computations per block; the two
	// produce equivalent MIR otherwise.
	UseDirectISel bool

	regInfo *regalloc.RegisterInfo
}

// New returns a Target running the default (DAG-based) pipeline.
func New() *Target {
	return &Target{regInfo: registerInfo()}
}

// branchFactory satisfies phi.BranchFactory with this target's
// unconditional branch.
type branchFactory struct{}

func (branchFactory) NewUncondBranch(to mir.BlockID) *mir.Instr {
	return mir.NewBr(uint32(opB), "b", to)
}

// RunPipeline implements target.BackendTarget.
func (t *Target) RunPipeline(m *ir.Module, out io.Writer) error {
	fns := make([]*mir.Function, 0, len(m.Functions))
	for _, irFn := range m.Functions {
		fns = append(fns, t.compileFunction(irFn))
	}
	return emitModule(out, fns, m.Globals)
}

// compileFunction runs every pass over one function, in order. Each pass
// completes before the next starts; all state is confined to the function.
func (t *Target) compileFunction(irFn *ir.Function) *mir.Function {
	var fn *mir.Function
	if t.UseDirectISel {
		fn = selectDirect(irFn)
	} else {
		fn = selectDAG(irFn)
	}
	phi.Eliminate(fn, branchFactory{})
	regalloc.Allocate(fn, t.regInfo)
	lowerFrame(fn)
	lowerStackSlots(fn)
	return fn
}
