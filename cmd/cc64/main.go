// Command cc64 drives the code-generation backend: it reads a mid-end IR
// module from the input file and compiles it to AArch64 assembly text.
// The source-language front end (lexer, parser, semantic checks) and the
// mid-end optimization passes are external collaborators; this tool
// consumes their output.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cminor-lang/cc64/internal/irtext"
	"github.com/cminor-lang/cc64/internal/target"
	_ "github.com/cminor-lang/cc64/internal/target/aarch64"
)

func main() {
	var (
		stopLexer  bool
		stopParser bool
		stopLLVM   bool
		emitAsm    bool
		outPath    string
		march      string
		optLevel   string
	)

	rootCmd := &cobra.Command{
		Use:           "cc64 [flags] <input>",
		Short:         "cc64 — AArch64 code-generation backend",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if stopLexer || stopParser {
				return fmt.Errorf("the lexer/parser stages belong to the source-language front end; this tool consumes IR")
			}
			switch optLevel {
			case "0", "1", "2", "3":
			default:
				return fmt.Errorf("bad optimization level -O%s (want 0-3)", optLevel)
			}

			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			module, err := irtext.Parse(string(src))
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			var out io.Writer = os.Stdout
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}

			if stopLLVM {
				_, err = io.WriteString(out, irtext.Format(module))
				return err
			}
			// The backend pipeline is engaged only for -S.
			if !emitAsm {
				return fmt.Errorf("no stop point selected: pass -S to emit assembly or --llvm to dump the IR")
			}

			t, err := target.Get(march)
			if err != nil {
				return err
			}
			return t.RunPipeline(module, out)
		},
	}

	flags := rootCmd.Flags()
	flags.BoolVar(&stopLexer, "lexer", false, "stop after lexing (front-end stage, not available here)")
	flags.BoolVar(&stopParser, "parser", false, "stop after parsing (front-end stage, not available here)")
	flags.BoolVar(&stopLLVM, "llvm", false, "stop after the IR stage and dump the module")
	flags.BoolVarP(&emitAsm, "asm", "S", false, "run the backend pipeline and emit assembly")
	flags.StringVarP(&outPath, "output", "o", "", "output path (default stdout)")
	flags.StringVar(&march, "march", "aarch64", "target triple (aarch64, armv8)")
	flags.StringVarP(&optLevel, "opt", "O", "0", "optimization level: -O0..-O3 (or bare -O); applied by the mid-end")

	rootCmd.SetArgs(normalizeOptFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cc64:", err)
		os.Exit(1)
	}
}

// normalizeOptFlags expands a bare `-O` to `-O1` so the whole -O/-O0..-O3
// family parses: pflag reads `-O2` as the O shorthand with the attached
// value "2", but a lone `-O` would otherwise swallow the next argument as
// its value.
func normalizeOptFlags(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if a == "-O" {
			a = "-O1"
		}
		out[i] = a
	}
	return out
}
