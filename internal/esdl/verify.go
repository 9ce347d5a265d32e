package esdl

import "strings"

type verifier struct {
	blocks  map[string]Pos
	defined map[string]bool
	diags   []*SyntaxError
}

// verify checks a parsed program for semantic errors and warnings.
// Names in defined are assigned somewhere in the program.
func verify(init *Block, blocks []*Block, defined map[string]bool) []*SyntaxError {
	v := &verifier{blocks: make(map[string]Pos, len(blocks)), defined: defined}
	for _, b := range blocks {
		v.blocks[b.Name] = b.At
	}
	v.body(init.Body)
	for _, b := range blocks {
		v.body(b.Body)
	}
	return v.diags
}

func (v *verifier) report(code string, at Pos, args ...any) {
	v.diags = append(v.diags, newSyntaxError(code, at, args...))
}

func (v *verifier) body(stmts []Stmt) {
	for _, s := range stmts {
		switch s := s.(type) {
		case *FromStmt:
			v.sources(s.Sources)
			for _, g := range s.Sources {
				v.operatorCall(g.X)
			}
			v.dests(s.Dests)
			v.operatorCalls(s.Using)
		case *JoinStmt:
			v.sources(s.Sources)
			for _, g := range s.Sources {
				if n, ok := g.X.(*Name); ok {
					v.initialised(n)
				}
			}
			v.dests(s.Dests)
			v.operatorCalls(s.Using)
		case *YieldStmt:
			for _, n := range s.Groups {
				v.initialised(n)
			}
		case *EvalStmt:
			for _, n := range s.Groups {
				v.initialised(n)
			}
			if s.Using != nil {
				v.operatorCall(s.Using)
			}
		case *AssignStmt:
			v.variable(s.Name)
		case *RepeatStmt:
			v.body(s.Body)
		}
	}
}

func (v *verifier) variable(n *Name) {
	if _, ok := v.blocks[n.Name]; ok {
		v.report(CodeBlockNameVariable, n.At, n.Name)
	}
	if strings.HasPrefix(n.Name, "_") {
		v.report(CodeReservedName, n.At, n.Name)
	}
}

// initialised warns about groups that are read but never selected into.
// FROM sources are not checked here because they may name generators.
func (v *verifier) initialised(n *Name) {
	if !v.defined[n.Name] {
		v.report(CodeUninitialised, n.At, n.Name)
	}
}

func (v *verifier) sources(groups []Group) {
	for _, g := range groups {
		if g.Size != nil {
			name, _, _ := operatorName(g.X)
			v.report(CodeUnexpectedGroupSize, g.Size.Pos(), name)
		}
	}
}

func (v *verifier) dests(groups []Group) {
	seen := make(map[string]bool, len(groups))
	unbounded := false
	for _, g := range groups {
		n, ok := g.X.(*Name)
		if !ok {
			continue
		}
		if seen[n.Name] {
			v.report(CodeRepeatedDestination, n.At, n.Name)
		}
		seen[n.Name] = true
		v.variable(n)
		if unbounded {
			v.report(CodeUnboundedGroup, n.At, n.Name)
		}
		if g.Size == nil {
			unbounded = true
		} else if !validSize(g.Size) {
			v.report(CodeInvalidGroupSize, g.Size.Pos(), n.Name)
		}
	}
}

// validSize rejects sizes that can never evaluate to a count.
func validSize(e Expr) bool {
	switch x := e.(type) {
	case *Literal:
		f, ok := x.Value.(float64)
		return ok && f >= 0
	case *List:
		return false
	case *Unary:
		if _, ok := x.X.(*Literal); ok {
			return x.Op == "+" && validSize(x.X)
		}
	}
	return true
}

func (v *verifier) operatorCalls(items []Expr) {
	for _, e := range items {
		v.operatorCall(e)
	}
}

// operatorCall requires keyword arguments for operators.
func (v *verifier) operatorCall(e Expr) {
	_, call, ok := operatorName(e)
	if !ok || call == nil {
		return
	}
	for _, a := range call.Args {
		if a.Name == "" {
			v.report(CodeExpectedValue, a.Value.Pos())
		}
	}
}
