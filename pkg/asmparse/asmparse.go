// Copyright Consensys Software Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.

// Package asmparse implements the external parser/lexer collaborator named
// in spec §1 and §6: line splitting, label detection, register-alias
// pragmas, simple macro definitions and the region markers that delimit an
// optimize window.  It produces a flat, line-indexed Program that the DFG
// builder consumes; it never itself reasons about data flow or register
// classes beyond the textual hints a pragma carries.
package asmparse

import (
	"regexp"
	"strings"

	"github.com/slothy-opt/slothy/pkg/util/source"
)

// Instruction is one parsed assembly line's mnemonic and raw operand tokens,
// prior to any architecture-specific classification.
type Instruction struct {
	Mnemonic string
	Operands []string
	Span     source.Span
}

// Pragma is a directive line beginning with '.', recognised structurally by
// the parser but interpreted by the caller (engine/DFG builder).
type Pragma struct {
	Kind string
	Args []string
	Span source.Span
}

// Known pragma kinds.
const (
	PragmaRegAlias       = "reg-alias"       // .reg <symbolic> <architectural>
	PragmaDefine         = "define"          // .define <name> <value>
	PragmaOptimizeStart  = "optimize-start"  // .optimize_start
	PragmaOptimizeEnd    = "optimize-end"    // .optimize_end
	PragmaLoopStart      = "loop-start"      // .loop_start <label>
	PragmaLoopEnd        = "loop-end"        // .loop_end <label>
)

// Line is one source line of the program: at most one of Label, Pragma or
// Instruction is populated (blank and comment-only lines have none).
type Line struct {
	Index       int
	Span        source.Span
	Label       string
	Pragma      *Pragma
	Instruction *Instruction
}

// Program is the result of parsing a complete assembly listing.
type Program struct {
	Lines  []Line
	Labels map[string]int // label name -> index into Lines of the line carrying the label
	// RegisterAliases collects every ".reg <symbolic> <architectural>"
	// pragma in the file: a symbolic register name the caller wants fixed
	// to a specific architectural register, rather than left to allocation
	// (spec §6).
	RegisterAliases map[string]string
}

// Parse tokenises and structurally parses every line of file, expanding
// single-line value macros as it goes.  It returns as many lines as could be
// parsed together with every syntax error encountered, rather than stopping
// at the first failure, so a caller can report them all at once.
func Parse(file *source.File) (*Program, []error) {
	var (
		raw     = string(file.Contents())
		rawLine = strings.Split(strings.TrimSuffix(raw, "\n"), "\n")
		prog    = &Program{Labels: make(map[string]int), RegisterAliases: make(map[string]string)}
		macros  = make(map[string]string)
		errs    []error
		offset  int
	)

	for i, text := range rawLine {
		span := source.NewSpan(offset, offset+len(text))
		offset += len(text) + 1

		line, err := parseLine(file, i, span, text, macros)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if line.Pragma != nil && line.Pragma.Kind == PragmaDefine && len(line.Pragma.Args) == 2 {
			macros[line.Pragma.Args[0]] = line.Pragma.Args[1]
		}

		if line.Pragma != nil && line.Pragma.Kind == PragmaRegAlias && len(line.Pragma.Args) == 2 {
			prog.RegisterAliases[line.Pragma.Args[0]] = line.Pragma.Args[1]
		}

		if line.Label != "" {
			prog.Labels[line.Label] = len(prog.Lines)
		}

		prog.Lines = append(prog.Lines, *line)
	}

	return prog, errs
}

func parseLine(file *source.File, idx int, span source.Span, text string, macros map[string]string) (*Line, error) {
	body := stripComment(text)
	body = expandMacros(body, macros)
	body = strings.TrimSpace(body)
	line := &Line{Index: idx, Span: span}

	if body == "" {
		return line, nil
	}

	// Label detection: "name:" optionally followed by an instruction on the
	// same physical line.
	if colon := strings.Index(body, ":"); colon >= 0 && !strings.HasPrefix(body, ".") {
		label := strings.TrimSpace(body[:colon])

		if isIdentifier(label) {
			line.Label = label
			body = strings.TrimSpace(body[colon+1:])

			if body == "" {
				return line, nil
			}
		}
	}

	if strings.HasPrefix(body, ".") {
		pragma, err := parsePragma(file, span, body)
		if err != nil {
			return nil, err
		}

		line.Pragma = pragma

		return line, nil
	}

	insn, err := parseInstruction(file, span, body)
	if err != nil {
		return nil, err
	}

	line.Instruction = insn

	return line, nil
}

func parsePragma(file *source.File, span source.Span, body string) (*Pragma, error) {
	fields := strings.Fields(body)
	directive := strings.TrimPrefix(fields[0], ".")
	args := fields[1:]

	switch directive {
	case "reg":
		if len(args) != 2 {
			return nil, file.SyntaxError(span, "malformed .reg pragma: expected \"<symbolic> <architectural>\"")
		}

		return &Pragma{Kind: PragmaRegAlias, Args: args, Span: span}, nil
	case "define":
		if len(args) != 2 {
			return nil, file.SyntaxError(span, "malformed .define pragma: expected \"<name> <value>\"")
		}

		return &Pragma{Kind: PragmaDefine, Args: args, Span: span}, nil
	case "optimize_start":
		return &Pragma{Kind: PragmaOptimizeStart, Span: span}, nil
	case "optimize_end":
		return &Pragma{Kind: PragmaOptimizeEnd, Span: span}, nil
	case "loop_start":
		if len(args) != 1 {
			return nil, file.SyntaxError(span, "malformed .loop_start pragma: expected a loop label")
		}

		return &Pragma{Kind: PragmaLoopStart, Args: args, Span: span}, nil
	case "loop_end":
		if len(args) != 1 {
			return nil, file.SyntaxError(span, "malformed .loop_end pragma: expected a loop label")
		}

		return &Pragma{Kind: PragmaLoopEnd, Args: args, Span: span}, nil
	default:
		return nil, file.SyntaxError(span, "unrecognised pragma \""+fields[0]+"\"")
	}
}

func parseInstruction(file *source.File, span source.Span, body string) (*Instruction, error) {
	fields := strings.SplitN(body, " ", 2)
	mnemonic := strings.TrimSpace(fields[0])

	if mnemonic == "" {
		return nil, file.SyntaxError(span, "expected an instruction mnemonic")
	}

	var operands []string

	if len(fields) == 2 {
		for _, op := range splitOperands(fields[1]) {
			op = strings.TrimSpace(op)
			if op != "" {
				operands = append(operands, op)
			}
		}
	}

	return &Instruction{Mnemonic: mnemonic, Operands: operands, Span: span}, nil
}

// splitOperands splits an operand list on commas, except for commas nested
// inside "[...]" address brackets (e.g. "q0,[r0,#16]" is two operands, not
// three).
func splitOperands(s string) []string {
	var (
		out   []string
		depth int
		start int
	)

	for i, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}

	out = append(out, s[start:])

	return out
}

// stripComment drops a "#" comment.  A '#' directly followed by a non-blank
// character after the start of the line (e.g. "#16" in "[r0,#16]") is an
// immediate prefix, not a comment.
func stripComment(text string) string {
	for i := 0; i < len(text); i++ {
		if text[i] != '#' {
			continue
		}

		if strings.TrimSpace(text[:i]) != "" && i+1 < len(text) && text[i+1] != ' ' && text[i+1] != '\t' {
			continue
		}

		return text[:i]
	}

	return text
}

var macroWord = regexp.MustCompile(`\w+`)

func expandMacros(body string, macros map[string]string) string {
	if len(macros) == 0 {
		return body
	}

	return macroWord.ReplaceAllStringFunc(body, func(word string) string {
		if v, ok := macros[word]; ok {
			return v
		}

		return word
	})
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}

	return true
}

// Window selects the instruction lines in [first,end) by label, for the
// optimize(first, end) CLI command (spec §6).  Labels name a line, not a
// byte offset; end is exclusive, matching a half-open source range.
func (p *Program) Window(first, end string) ([]Line, error) {
	firstIdx, ok := p.Labels[first]
	if !ok {
		return nil, errUnknownLabel(first)
	}

	endIdx := len(p.Lines)

	if end != "" {
		idx, ok := p.Labels[end]
		if !ok {
			return nil, errUnknownLabel(end)
		}

		endIdx = idx
	}

	var out []Line

	for _, line := range p.Lines[firstIdx:endIdx] {
		if line.Instruction != nil {
			out = append(out, line)
		}
	}

	return out, nil
}

// PragmaWindow selects the instruction lines between a lone .optimize_start/
// .optimize_end pragma pair, for callers of optimize(first, end) that want
// the window auto-detected rather than passing explicit labels to Window.
func (p *Program) PragmaWindow() ([]Line, bool) {
	start, end := -1, -1

	for i, line := range p.Lines {
		if line.Pragma == nil {
			continue
		}

		switch line.Pragma.Kind {
		case PragmaOptimizeStart:
			start = i + 1
		case PragmaOptimizeEnd:
			if start >= 0 {
				end = i
			}
		}
	}

	if start < 0 || end < 0 {
		return nil, false
	}

	return p.Lines[start:end], true
}

// LoopBody returns the instruction lines between a matching .loop_start/
// .loop_end pragma pair for the named loop, for optimize_loop(loop_label).
func (p *Program) LoopBody(label string) ([]Line, error) {
	start, end := -1, -1

	for i, line := range p.Lines {
		if line.Pragma == nil {
			continue
		}

		switch line.Pragma.Kind {
		case PragmaLoopStart:
			if line.Pragma.Args[0] == label {
				start = i
			}
		case PragmaLoopEnd:
			if line.Pragma.Args[0] == label && start >= 0 {
				end = i
			}
		}
	}

	if start < 0 || end < 0 {
		return nil, errUnknownLoopLabel(label)
	}

	return p.Lines[start+1 : end], nil
}
