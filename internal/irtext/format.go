package irtext

import (
	"fmt"
	"strings"

	"github.com/cminor-lang/cc64/internal/ir"
)

// Format renders a module back to readable IR text, for the CLI's
// IR-dump stop point. The output is for humans and debugging; it is not
// guaranteed to round-trip through Parse.
func Format(m *ir.Module) string {
	var b strings.Builder
	for _, g := range m.Globals {
		if len(g.Dims) == 0 {
			fmt.Fprintf(&b, "@%s = global %s %d\n", g.Name, g.Type, scalarInit(g))
			continue
		}
		fmt.Fprintf(&b, "@%s = global [", g.Name)
		for _, d := range g.Dims {
			fmt.Fprintf(&b, "%d x ", d)
		}
		fmt.Fprintf(&b, "%s] %s\n", g.Type, arrayInit(g))
	}
	for _, d := range m.Declarations {
		fmt.Fprintf(&b, "declare %s\n", formatSig(d))
	}
	for _, fn := range m.Functions {
		fmt.Fprintf(&b, "define %s {\n", formatSig(fn.Sig))
		for _, blk := range fn.Blocks() {
			fmt.Fprintf(&b, "%s:\n", blk.Name())
			blk.Instructions(func(instr *ir.Instruction) {
				fmt.Fprintf(&b, "  %s\n", instr)
			})
		}
		b.WriteString("}\n")
	}
	return b.String()
}

func scalarInit(g *ir.Global) int64 {
	if len(g.Init) > 0 {
		return g.Init[0]
	}
	return 0
}

func arrayInit(g *ir.Global) string {
	if len(g.Init) == 0 {
		return "zeroinitializer"
	}
	parts := make([]string, len(g.Init))
	for i, v := range g.Init {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatSig(sig *ir.Signature) string {
	ret := "void"
	if len(sig.Results) > 0 {
		ret = sig.Results[0].String()
	}
	args := make([]string, len(sig.Args))
	for i, a := range sig.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s @%s(%s)", ret, sig.Name, strings.Join(args, ", "))
}
