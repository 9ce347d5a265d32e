// Package esdl compiles and runs evolutionary system definitions.
//
// A definition is a list of statements that move groups of individuals
// through operators:
//
//	FROM random_binary(length=16) SELECT 100 population
//	YIELD population
//	BEGIN generation
//	    FROM population SELECT offspring USING tournament, crossover_one, mutate_bitflip
//	    FROM offspring SELECT 100 population USING best
//	    YIELD population
//	END generation
package esdl

import (
	"fmt"
	"sort"
)

// Program is a compiled definition.
type Program struct {
	Source   string
	Init     *Block
	Blocks   []*Block
	Warnings []*SyntaxError

	defined map[string]bool
}

// Compile parses and verifies src. Errors are returned as an ErrorList;
// warnings are kept on the program.
func Compile(src string) (*Program, error) {
	stmts, lexErrs := tokenize(src)
	init, blocks, parseErrs := parse(stmts)
	defined := definedNames(init, blocks)
	diags := append(append(lexErrs, parseErrs...), verify(init, blocks, defined)...)

	var errs, warnings []*SyntaxError
	for _, d := range diags {
		if d.Warning() {
			warnings = append(warnings, d)
		} else {
			errs = append(errs, d)
		}
	}
	sortDiagnostics(errs)
	sortDiagnostics(warnings)
	if len(errs) > 0 {
		return nil, ErrorList(errs)
	}
	return &Program{Source: src, Init: init, Blocks: blocks, Warnings: warnings, defined: defined}, nil
}

// Defines reports whether name is a destination or an assigned variable
// anywhere in the program.
func (p *Program) Defines(name string) bool { return p.defined[name] }

func definedNames(init *Block, blocks []*Block) map[string]bool {
	defined := make(map[string]bool)
	var walk func(stmts []Stmt)
	dests := func(groups []Group) {
		for _, g := range groups {
			if n, ok := g.X.(*Name); ok {
				defined[n.Name] = true
			}
		}
	}
	walk = func(stmts []Stmt) {
		for _, s := range stmts {
			switch s := s.(type) {
			case *FromStmt:
				dests(s.Dests)
			case *JoinStmt:
				dests(s.Dests)
			case *AssignStmt:
				defined[s.Name.Name] = true
			case *RepeatStmt:
				walk(s.Body)
			}
		}
	}
	walk(init.Body)
	for _, b := range blocks {
		walk(b.Body)
	}
	return defined
}

// Block returns the block called name. InitBlock names the top-level
// statements.
func (p *Program) Block(name string) (*Block, error) {
	key := blockKey(name)
	if key == InitBlock {
		return p.Init, nil
	}
	for _, b := range p.Blocks {
		if b.Name == key {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, name)
}

// BlockNames lists the named blocks in order.
func (p *Program) BlockNames() []string {
	names := make([]string, len(p.Blocks))
	for i, b := range p.Blocks {
		names[i] = b.Name
	}
	sort.Strings(names)
	return names
}

// Format renders the program one statement per line, blocks indented.
func (p *Program) Format() string {
	var out []byte
	var write func(stmts []Stmt, indent string)
	write = func(stmts []Stmt, indent string) {
		for _, s := range stmts {
			out = fmt.Appendf(out, "%s%s\n", indent, s.Text())
			if r, ok := s.(*RepeatStmt); ok {
				write(r.Body, indent+"    ")
				out = fmt.Appendf(out, "%sEND REPEAT\n", indent)
			}
		}
	}
	write(p.Init.Body, "")
	for _, b := range p.Blocks {
		out = fmt.Appendf(out, "BEGIN %s\n", b.Name)
		write(b.Body, "    ")
		out = fmt.Appendf(out, "END %s\n", b.Name)
	}
	return string(out)
}
