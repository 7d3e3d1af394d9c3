package irtext

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cminor-lang/cc64/internal/ir"
)

func floatBits(f float64, ty ir.DataType) int64 {
	if ty == ir.F64 {
		return int64(math.Float64bits(f))
	}
	return int64(math.Float32bits(float32(f)))
}

// funcParser builds one function definition. Instruction bodies are parsed
// in two passes: the first creates every block and result value (so phi
// back-edges and forward branches resolve), the second builds instructions.
type funcParser struct {
	p      *parser
	fn     *ir.Function
	blocks map[string]*ir.BasicBlock
	values map[string]ir.Value
	cur    *ir.BasicBlock

	// pendingConsts are phi-edge immediates: the materializing iconst must
	// execute in the predecessor block, which may not be fully built when
	// the phi is parsed, so insertion is deferred until the body is done.
	pendingConsts []pendingConst
}

type pendingConst struct {
	predName string
	value    ir.Value
	literal  string
}

// parseDefine parses the `define ... { ... }` group starting at lines[start]
// and returns the index just past the closing brace.
func (p *parser) parseDefine(lines []string, start int) (int, error) {
	head := strings.TrimSuffix(strings.TrimPrefix(lines[start], "define "), "{")
	sig, argNames, err := parseSignatureNames(head)
	if err != nil {
		return 0, fmt.Errorf("line %q: %w", lines[start], err)
	}
	end := start + 1
	for end < len(lines) && lines[end] != "}" {
		end++
	}
	if end == len(lines) {
		return 0, fmt.Errorf("function %s: missing closing brace", sig.Name)
	}
	body := lines[start+1 : end]

	fp := &funcParser{
		p:      p,
		fn:     ir.NewFunction(sig),
		blocks: make(map[string]*ir.BasicBlock),
		values: make(map[string]ir.Value),
	}
	for i, ty := range sig.Args {
		v := fp.fn.NewValue(ty)
		fp.fn.AddArg(v)
		if i < len(argNames) {
			fp.values[argNames[i]] = v
		}
	}
	if err := fp.run(body); err != nil {
		return 0, fmt.Errorf("function %s: %w", sig.Name, err)
	}
	p.module.AddFunction(fp.fn)
	return end + 1, nil
}

func (fp *funcParser) block(name string) *ir.BasicBlock {
	if b, ok := fp.blocks[name]; ok {
		return b
	}
	b := fp.fn.NewBlock()
	fp.blocks[name] = b
	return b
}

func (fp *funcParser) run(body []string) error {
	if err := fp.declarePass(body); err != nil {
		return err
	}
	for _, line := range body {
		if name, ok := strings.CutSuffix(line, ":"); ok {
			fp.cur = fp.blocks[name]
			continue
		}
		if fp.cur == nil {
			return fmt.Errorf("instruction %q before any block label", line)
		}
		if err := fp.parseInstr(line); err != nil {
			return fmt.Errorf("%q: %w", line, err)
		}
	}
	return fp.resolvePendingConsts()
}

// declarePass creates the blocks in label order (the first label is the
// entry) and a typed result value for every `%name = ...` line.
func (fp *funcParser) declarePass(body []string) error {
	entrySet := false
	for _, line := range body {
		if name, ok := strings.CutSuffix(line, ":"); ok {
			b := fp.block(name)
			if !entrySet {
				fp.fn.SetEntry(b)
				entrySet = true
			}
			continue
		}
		name, rest, ok := strings.Cut(line, "=")
		if !ok || !strings.HasPrefix(strings.TrimSpace(name), "%") {
			continue
		}
		ty, err := resultType(strings.TrimSpace(rest))
		if err != nil {
			return fmt.Errorf("%q: %w", line, err)
		}
		fp.values[strings.TrimPrefix(strings.TrimSpace(name), "%")] = fp.fn.NewValue(ty)
	}
	if !entrySet {
		return fmt.Errorf("no entry block label")
	}
	return nil
}

// resultType infers the defined value's type from the instruction text.
func resultType(rest string) (ir.DataType, error) {
	toks := tokenize(rest)
	if len(toks) == 0 {
		return 0, fmt.Errorf("empty instruction")
	}
	switch toks[0] {
	case "alloca", "gep":
		return ir.Ptr, nil
	case "icmp", "fcmp":
		return ir.I1, nil
	case "zext", "sitofp", "fptosi":
		for i, t := range toks {
			if t == "to" && i+1 < len(toks) {
				return parseType(toks[i+1])
			}
		}
		return 0, fmt.Errorf("missing 'to' clause")
	case "load", "phi", "call",
		"add", "sub", "mul", "div", "mod",
		"fadd", "fsub", "fmul", "fdiv":
		return parseType(toks[1])
	default:
		return 0, fmt.Errorf("unknown instruction %q", toks[0])
	}
}

// tokenize splits an instruction line into words, detaching the structural
// punctuation so forms like `( i32 %a , i32 %b )` come out one token each.
var tokenReplacer = strings.NewReplacer(
	"(", " ( ", ")", " ) ",
	"[", " [ ", "]", " ] ",
	",", " , ",
)

func tokenize(line string) []string {
	return strings.Fields(tokenReplacer.Replace(line))
}

// operand resolves a `<ty> <tok>` operand pair: a register reference, a
// global (materialized via a synthesized globaladdr), or an immediate
// literal (materialized via a synthesized iconst/fconst in the current
// block).
func (fp *funcParser) operand(ty ir.DataType, tok string) (ir.Value, error) {
	switch {
	case strings.HasPrefix(tok, "%"):
		v, ok := fp.values[tok[1:]]
		if !ok {
			return ir.ValueInvalid, fmt.Errorf("undefined value %s", tok)
		}
		return v, nil
	case strings.HasPrefix(tok, "@"):
		v := fp.fn.NewValue(ir.Ptr)
		fp.cur.Insert((&ir.Instruction{}).AsGlobalAddr(v, tok[1:]))
		return v, nil
	default:
		return fp.materializeLiteral(fp.cur, ty, tok)
	}
}

func (fp *funcParser) materializeLiteral(b *ir.BasicBlock, ty ir.DataType, tok string) (ir.Value, error) {
	v := fp.fn.NewValue(ty)
	instr, err := constInstr(v, ty, tok)
	if err != nil {
		return ir.ValueInvalid, err
	}
	b.Insert(instr)
	return v, nil
}

func constInstr(v ir.Value, ty ir.DataType, tok string) (*ir.Instruction, error) {
	if ty.IsFloat() {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("bad float literal %q", tok)
		}
		return (&ir.Instruction{}).AsFconst(v, f), nil
	}
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad integer literal %q", tok)
	}
	return (&ir.Instruction{}).AsIconst(v, n), nil
}

// resolvePendingConsts inserts the deferred phi-edge constant
// materializations before their predecessor's terminator.
func (fp *funcParser) resolvePendingConsts() error {
	for _, pc := range fp.pendingConsts {
		pred, ok := fp.blocks[pc.predName]
		if !ok {
			return fmt.Errorf("phi references unknown block %%%s", pc.predName)
		}
		instr, err := constInstr(pc.value, pc.value.Type(), pc.literal)
		if err != nil {
			return err
		}
		pred.InsertBefore(instr, pred.Terminator())
	}
	return nil
}
