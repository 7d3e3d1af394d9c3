// Package irtext parses the textual form of the mid-end IR consumed by the
// backend: global variables, function declarations, and function
// definitions whose bodies use the backend's instruction set. The syntax is a compact LLVM-like notation:
//
//	@g = global i32 42
//	@a = global [4 x i32] [1, 2, 0, 0]
//	declare i32 @getint()
//	define i32 @main(i32 %n) {
//	entry:
//	  %p = alloca i32
//	  store i32 7, ptr %p
//	  %v = load i32, ptr %p
//	  %c = icmp slt i32 %v, %n
//	  br i1 %c, label %then, label %done
//	then:
//	  br label %done
//	done:
//	  %r = phi i32 [ %v, %then ], [ 0, %entry ]
//	  ret i32 %r
//	}
//
// Immediate operands are legal wherever a register is: the parser
// synthesizes the corresponding iconst/fconst instruction at the use site
// (in the predecessor block for phi edges, where the copy must execute).
package irtext

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cminor-lang/cc64/internal/ir"
)

// Parse reads an IR module from src.
func Parse(src string) (*ir.Module, error) {
	p := &parser{module: ir.NewModule()}
	lines := splitLines(src)
	for i := 0; i < len(lines); {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "@"):
			if err := p.parseGlobal(line); err != nil {
				return nil, fmt.Errorf("line %q: %w", line, err)
			}
			i++
		case strings.HasPrefix(line, "declare "):
			if err := p.parseDeclare(line); err != nil {
				return nil, fmt.Errorf("line %q: %w", line, err)
			}
			i++
		case strings.HasPrefix(line, "define "):
			end, err := p.parseDefine(lines, i)
			if err != nil {
				return nil, err
			}
			i = end
		default:
			return nil, fmt.Errorf("unexpected top-level line %q", line)
		}
	}
	return p.module, nil
}

// splitLines strips comments (everything after ';') and blank lines.
func splitLines(src string) []string {
	var out []string
	for _, raw := range strings.Split(src, "\n") {
		if i := strings.IndexByte(raw, ';'); i >= 0 {
			raw = raw[:i]
		}
		line := strings.TrimSpace(raw)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

type parser struct {
	module *ir.Module
}

func parseType(tok string) (ir.DataType, error) {
	switch tok {
	case "i1":
		return ir.I1, nil
	case "i8":
		return ir.I8, nil
	case "i32":
		return ir.I32, nil
	case "i64":
		return ir.I64, nil
	case "f32":
		return ir.F32, nil
	case "f64":
		return ir.F64, nil
	case "ptr":
		return ir.Ptr, nil
	default:
		return 0, fmt.Errorf("unknown type %q", tok)
	}
}

// parseArrayType parses "[d0 x d1 x ... x elemTy]" returning dims and the
// element type. The leading token must already be known to start with '['.
func parseArrayType(s string) (dims []int64, elem ir.DataType, err error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, 0, fmt.Errorf("malformed array type %q", s)
	}
	parts := strings.Split(s[1:len(s)-1], "x")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if i == len(parts)-1 {
			elem, err = parseType(part)
			if err != nil {
				return nil, 0, err
			}
			continue
		}
		d, convErr := strconv.ParseInt(part, 10, 64)
		if convErr != nil {
			return nil, 0, fmt.Errorf("bad array dimension %q", part)
		}
		dims = append(dims, d)
	}
	if len(dims) == 0 {
		return nil, 0, fmt.Errorf("array type %q has no dimensions", s)
	}
	return dims, elem, nil
}

// parseGlobal handles `@name = global <ty> <init>` where <ty> is a scalar
// type or an array type and <init> is a literal, a bracketed literal list,
// or "zeroinitializer".
func (p *parser) parseGlobal(line string) error {
	name, rest, ok := strings.Cut(line, "=")
	if !ok {
		return fmt.Errorf("missing '='")
	}
	g := &ir.Global{Name: strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "@"))}
	rest = strings.TrimSpace(rest)
	rest = strings.TrimSpace(strings.TrimPrefix(rest, "global"))

	if strings.HasPrefix(rest, "[") {
		close := strings.IndexByte(rest, ']')
		if close < 0 {
			return fmt.Errorf("unterminated array type")
		}
		dims, elem, err := parseArrayType(rest[:close+1])
		if err != nil {
			return err
		}
		g.Dims, g.Type = dims, elem
		rest = strings.TrimSpace(rest[close+1:])
		if rest == "zeroinitializer" || rest == "" {
			p.module.AddGlobal(g)
			return nil
		}
		rest = strings.TrimPrefix(rest, "[")
		rest = strings.TrimSuffix(rest, "]")
		for _, tok := range strings.Split(rest, ",") {
			v, err := parseInitLiteral(strings.TrimSpace(tok), g.Type)
			if err != nil {
				return err
			}
			g.Init = append(g.Init, v)
		}
		p.module.AddGlobal(g)
		return nil
	}

	tyTok, initTok, _ := strings.Cut(rest, " ")
	ty, err := parseType(tyTok)
	if err != nil {
		return err
	}
	g.Type = ty
	initTok = strings.TrimSpace(initTok)
	if initTok != "" && initTok != "zeroinitializer" {
		v, err := parseInitLiteral(initTok, ty)
		if err != nil {
			return err
		}
		g.Init = []int64{v}
	}
	p.module.AddGlobal(g)
	return nil
}

// parseInitLiteral converts a global initializer literal to its stored
// integer form; float literals keep their bit pattern (the emitter prints
// the raw words).
func parseInitLiteral(tok string, ty ir.DataType) (int64, error) {
	if ty.IsFloat() {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return 0, fmt.Errorf("bad float literal %q", tok)
		}
		return floatBits(f, ty), nil
	}
	v, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad integer literal %q", tok)
	}
	return v, nil
}

// parseDeclare handles `declare <retTy|void> @name(<argTy>, ...)`.
func (p *parser) parseDeclare(line string) error {
	sig, err := parseSignature(strings.TrimPrefix(line, "declare "))
	if err != nil {
		return err
	}
	p.module.AddDeclaration(sig)
	return nil
}

// parseSignature parses `<retTy|void> @name(<params>)`; parameter entries
// may be bare types (declarations) or "<ty> %name" pairs (definitions).
// Parameter names are dropped; parseSignatureNames returns them, as a nil
// slice for bare-type parameter lists.
func parseSignature(s string) (*ir.Signature, error) {
	sig, _, err := parseSignatureNames(s)
	return sig, err
}

func parseSignatureNames(s string) (*ir.Signature, []string, error) {
	s = strings.TrimSpace(s)
	retTok, rest, ok := strings.Cut(s, " ")
	if !ok {
		return nil, nil, fmt.Errorf("malformed signature %q", s)
	}
	sig := &ir.Signature{}
	if retTok != "void" {
		ty, err := parseType(retTok)
		if err != nil {
			return nil, nil, err
		}
		sig.Results = []ir.DataType{ty}
	}
	rest = strings.TrimSpace(rest)
	open := strings.IndexByte(rest, '(')
	closeIdx := strings.LastIndexByte(rest, ')')
	if !strings.HasPrefix(rest, "@") || open < 0 || closeIdx < open {
		return nil, nil, fmt.Errorf("malformed signature %q", s)
	}
	sig.Name = rest[1:open]
	var names []string
	params := strings.TrimSpace(rest[open+1 : closeIdx])
	if params != "" {
		for _, entry := range strings.Split(params, ",") {
			fields := strings.Fields(entry)
			ty, err := parseType(fields[0])
			if err != nil {
				return nil, nil, err
			}
			sig.Args = append(sig.Args, ty)
			if len(fields) > 1 {
				names = append(names, strings.TrimPrefix(fields[1], "%"))
			}
		}
	}
	return sig, names, nil
}
