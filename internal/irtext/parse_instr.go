package irtext

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cminor-lang/cc64/internal/ir"
)

func (fp *funcParser) parseInstr(line string) error {
	if strings.HasPrefix(line, "%") {
		name, rest, ok := strings.Cut(line, "=")
		if ok {
			result := fp.values[strings.TrimPrefix(strings.TrimSpace(name), "%")]
			return fp.parseDef(result, tokenize(rest))
		}
	}
	return fp.parseVoid(tokenize(line))
}

var binaryOps = map[string]ir.Opcode{
	"add": ir.OpAdd, "sub": ir.OpSub, "mul": ir.OpMul, "div": ir.OpDiv, "mod": ir.OpMod,
	"fadd": ir.OpFAdd, "fsub": ir.OpFSub, "fmul": ir.OpFMul, "fdiv": ir.OpFDiv,
}

var icmpConds = map[string]ir.IntCC{
	"eq": ir.IntEQ, "ne": ir.IntNE,
	"slt": ir.IntSLT, "sle": ir.IntSLE, "sgt": ir.IntSGT, "sge": ir.IntSGE,
}

var fcmpConds = map[string]ir.FloatCC{
	"eq": ir.FloatEQ, "ne": ir.FloatNE,
	"lt": ir.FloatLT, "le": ir.FloatLE, "gt": ir.FloatGT, "ge": ir.FloatGE,
}

func (fp *funcParser) parseDef(result ir.Value, toks []string) error {
	switch toks[0] {
	case "alloca":
		return fp.parseAlloca(result, toks)

	case "load":
		ptr, err := fp.operand(ir.Ptr, toks[len(toks)-1])
		if err != nil {
			return err
		}
		fp.cur.Insert((&ir.Instruction{}).AsLoad(result, ptr))
		return nil

	case "add", "sub", "mul", "div", "mod", "fadd", "fsub", "fmul", "fdiv":
		ty, err := parseType(toks[1])
		if err != nil {
			return err
		}
		x, err := fp.operand(ty, toks[2])
		if err != nil {
			return err
		}
		y, err := fp.operand(ty, toks[4])
		if err != nil {
			return err
		}
		fp.cur.Insert((&ir.Instruction{}).AsBinary(binaryOps[toks[0]], result, x, y))
		return nil

	case "icmp":
		cc, ok := icmpConds[toks[1]]
		if !ok {
			return fmt.Errorf("unknown icmp predicate %q", toks[1])
		}
		ty, err := parseType(toks[2])
		if err != nil {
			return err
		}
		x, err := fp.operand(ty, toks[3])
		if err != nil {
			return err
		}
		y, err := fp.operand(ty, toks[5])
		if err != nil {
			return err
		}
		fp.cur.Insert((&ir.Instruction{}).AsIcmp(result, x, y, cc))
		return nil

	case "fcmp":
		cc, ok := fcmpConds[toks[1]]
		if !ok {
			return fmt.Errorf("unknown fcmp predicate %q", toks[1])
		}
		ty, err := parseType(toks[2])
		if err != nil {
			return err
		}
		x, err := fp.operand(ty, toks[3])
		if err != nil {
			return err
		}
		y, err := fp.operand(ty, toks[5])
		if err != nil {
			return err
		}
		fp.cur.Insert((&ir.Instruction{}).AsFcmp(result, x, y, cc))
		return nil

	case "zext", "sitofp", "fptosi":
		fromTy, err := parseType(toks[1])
		if err != nil {
			return err
		}
		src, err := fp.operand(fromTy, toks[2])
		if err != nil {
			return err
		}
		instr := &ir.Instruction{}
		switch toks[0] {
		case "zext":
			instr.AsZext(result, src)
		case "sitofp":
			instr.AsSIToFP(result, src)
		case "fptosi":
			instr.AsFPToSI(result, src)
		}
		fp.cur.Insert(instr)
		return nil

	case "phi":
		return fp.parsePhi(result, toks)

	case "call":
		return fp.parseCall(result, toks)

	case "gep":
		return fp.parseGEP(result, toks)

	default:
		return fmt.Errorf("unknown instruction %q", toks[0])
	}
}

func (fp *funcParser) parseVoid(toks []string) error {
	switch toks[0] {
	case "store":
		ty, err := parseType(toks[1])
		if err != nil {
			return err
		}
		val, err := fp.operand(ty, toks[2])
		if err != nil {
			return err
		}
		ptr, err := fp.operand(ir.Ptr, toks[len(toks)-1])
		if err != nil {
			return err
		}
		fp.cur.Insert((&ir.Instruction{}).AsStore(val, ptr))
		return nil

	case "br":
		if toks[1] == "label" {
			t := fp.block(strings.TrimPrefix(toks[2], "%"))
			fp.cur.Insert((&ir.Instruction{}).AsBr(t))
			fp.fn.AddEdge(fp.cur, t)
			return nil
		}
		cond, err := fp.operand(ir.I1, toks[2])
		if err != nil {
			return err
		}
		t := fp.block(strings.TrimPrefix(toks[5], "%"))
		f := fp.block(strings.TrimPrefix(toks[8], "%"))
		fp.cur.Insert((&ir.Instruction{}).AsBrCond(cond, t, f))
		fp.fn.AddEdge(fp.cur, t)
		fp.fn.AddEdge(fp.cur, f)
		return nil

	case "ret":
		if toks[1] == "void" {
			fp.cur.Insert((&ir.Instruction{}).AsRet(ir.ValueInvalid))
			return nil
		}
		ty, err := parseType(toks[1])
		if err != nil {
			return err
		}
		v, err := fp.operand(ty, toks[2])
		if err != nil {
			return err
		}
		fp.cur.Insert((&ir.Instruction{}).AsRet(v))
		return nil

	case "call":
		return fp.parseCall(ir.ValueInvalid, toks)

	default:
		return fmt.Errorf("unknown instruction %q", toks[0])
	}
}

// parseAlloca handles `alloca <ty>` and `alloca [d0 x d1 x ... x ty]`.
func (fp *funcParser) parseAlloca(result ir.Value, toks []string) error {
	if toks[1] != "[" {
		ty, err := parseType(toks[1])
		if err != nil {
			return err
		}
		size := int64(ty.Size())
		fp.cur.Insert((&ir.Instruction{}).AsAlloca(result, size, size))
		return nil
	}
	dims, elem, _, err := parseBracketedDims(toks, 1)
	if err != nil {
		return err
	}
	size := int64(elem.Size())
	for _, d := range dims {
		size *= d
	}
	fp.cur.Insert((&ir.Instruction{}).AsAlloca(result, size, int64(elem.Size())))
	return nil
}

// parseBracketedDims reads `[ d0 x d1 x ... x ty ]` starting at toks[open]
// (which must be "["), returning the dims, element type, and the index just
// past the closing bracket.
func parseBracketedDims(toks []string, open int) (dims []int64, elem ir.DataType, next int, err error) {
	i := open + 1
	for ; i < len(toks) && toks[i] != "]"; i++ {
		if toks[i] == "x" {
			continue
		}
		if d, convErr := strconv.ParseInt(toks[i], 10, 64); convErr == nil {
			dims = append(dims, d)
			continue
		}
		elem, err = parseType(toks[i])
		if err != nil {
			return nil, 0, 0, err
		}
	}
	if i == len(toks) {
		return nil, 0, 0, fmt.Errorf("unterminated array type")
	}
	if !elem.IsInt() && !elem.IsFloat() {
		return nil, 0, 0, fmt.Errorf("array type missing element type")
	}
	return dims, elem, i + 1, nil
}

// parsePhi handles `phi <ty> [ <v>, %blk ], [ <v>, %blk ], ...`. Immediate
// incoming values are deferred to resolvePendingConsts so the materializing
// iconst lands in the predecessor block.
func (fp *funcParser) parsePhi(result ir.Value, toks []string) error {
	ty, err := parseType(toks[1])
	if err != nil {
		return err
	}
	var edges []ir.PhiEdge
	for i := 2; i < len(toks); {
		if toks[i] != "[" {
			i++
			continue
		}
		valTok, blkTok := toks[i+1], toks[i+3]
		blkName := strings.TrimPrefix(blkTok, "%")
		blk := fp.block(blkName)
		var v ir.Value
		switch {
		case strings.HasPrefix(valTok, "%"):
			var ok bool
			v, ok = fp.values[valTok[1:]]
			if !ok {
				return fmt.Errorf("undefined value %s", valTok)
			}
		default:
			v = fp.fn.NewValue(ty)
			fp.pendingConsts = append(fp.pendingConsts, pendingConst{predName: blkName, value: v, literal: valTok})
		}
		edges = append(edges, ir.PhiEdge{Block: blk, Value: v})
		i += 5 // past "[", value, ",", block, "]"
	}
	fp.cur.Insert((&ir.Instruction{}).AsPhi(result, edges))
	return nil
}

// parseCall handles `call <retTy|void> @f(<ty> <v>, ...)`.
func (fp *funcParser) parseCall(result ir.Value, toks []string) error {
	callee := strings.TrimPrefix(toks[2], "@")
	var args []ir.Value
	for i := 3; i < len(toks); {
		tok := toks[i]
		if tok == "(" || tok == ")" || tok == "," {
			i++
			continue
		}
		ty, err := parseType(tok)
		if err != nil {
			return err
		}
		v, err := fp.operand(ty, toks[i+1])
		if err != nil {
			return err
		}
		args = append(args, v)
		i += 2
	}
	fp.cur.Insert((&ir.Instruction{}).AsCall(result, callee, args))
	return nil
}

// parseGEP handles `gep ptr <base>, [d0 x ... x ty], <idxTy> <idx>, ...`:
// the bracketed list carries the array dimensions the stride computation
// scales against.
func (fp *funcParser) parseGEP(result ir.Value, toks []string) error {
	base, err := fp.operand(ir.Ptr, toks[2])
	if err != nil {
		return err
	}
	open := 3
	for open < len(toks) && toks[open] != "[" {
		open++
	}
	dims, elem, next, err := parseBracketedDims(toks, open)
	if err != nil {
		return err
	}
	var indices []ir.Value
	for i := next; i < len(toks); {
		if toks[i] == "," {
			i++
			continue
		}
		ty, err := parseType(toks[i])
		if err != nil {
			return err
		}
		v, err := fp.operand(ty, toks[i+1])
		if err != nil {
			return err
		}
		indices = append(indices, v)
		i += 2
	}
	fp.cur.Insert((&ir.Instruction{}).AsGEP(result, base, indices, dims, elem))
	return nil
}
