package esdl

import (
	"strconv"
	"strings"
)

// Expr is a node of an expression tree.
type Expr interface {
	Pos() Pos
	String() string
}

type (
	// Literal is a number, string, boolean or null.
	Literal struct {
		At    Pos
		Value any
		Text  string
	}

	Name struct {
		At   Pos
		Name string
	}

	// Attr is x.name.
	Attr struct {
		At   Pos
		X    Expr
		Name string
	}

	// Index is x[i].
	Index struct {
		At    Pos
		X     Expr
		Index Expr
	}

	// Arg is one argument of a call. Name is empty for positional
	// arguments.
	Arg struct {
		Name  string
		Value Expr
	}

	Call struct {
		At   Pos
		Fn   Expr
		Args []Arg
	}

	List struct {
		At    Pos
		Items []Expr
	}

	Unary struct {
		At Pos
		Op string
		X  Expr
	}

	Binary struct {
		At   Pos
		Op   string
		X, Y Expr
	}
)

func (e *Literal) Pos() Pos { return e.At }
func (e *Name) Pos() Pos    { return e.At }
func (e *Attr) Pos() Pos    { return e.At }
func (e *Index) Pos() Pos   { return e.At }
func (e *Call) Pos() Pos    { return e.At }
func (e *List) Pos() Pos    { return e.At }
func (e *Unary) Pos() Pos   { return e.At }
func (e *Binary) Pos() Pos  { return e.At }

func (e *Literal) String() string {
	if s, ok := e.Value.(string); ok {
		return strconv.Quote(s)
	}
	return e.Text
}

func (e *Name) String() string  { return e.Name }
func (e *Attr) String() string  { return e.X.String() + "." + e.Name }
func (e *Index) String() string { return e.X.String() + "[" + e.Index.String() + "]" }

func (e *Call) String() string {
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		if a.Name != "" {
			parts[i] = a.Name + "=" + a.Value.String()
		} else {
			parts[i] = a.Value.String()
		}
	}
	return e.Fn.String() + "(" + strings.Join(parts, ", ") + ")"
}

func (e *List) String() string {
	parts := make([]string, len(e.Items))
	for i, item := range e.Items {
		parts[i] = item.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (e *Unary) String() string  { return e.Op + e.X.String() }
func (e *Binary) String() string { return "(" + e.X.String() + " " + e.Op + " " + e.Y.String() + ")" }

// operatorName returns the operator a USING or FROM item refers to: a bare
// name or the callee of a call.
func operatorName(e Expr) (string, *Call, bool) {
	switch x := e.(type) {
	case *Name:
		return x.Name, nil, true
	case *Call:
		if n, ok := x.Fn.(*Name); ok {
			return n.Name, x, true
		}
	}
	return "", nil, false
}

// Group is a destination or source group with an optional size.
type Group struct {
	Size Expr
	X    Expr
}

// Stmt is an executable statement.
type Stmt interface {
	Line() int
	Text() string
}

type stmtBase struct {
	line int
	text string
}

func (s stmtBase) Line() int    { return s.line }
func (s stmtBase) Text() string { return s.text }

type (
	// FromStmt is FROM sources SELECT dests [USING filters].
	FromStmt struct {
		stmtBase
		Sources []Group
		Dests   []Group
		Using   []Expr
	}

	// JoinStmt is JOIN sources INTO dests [USING joiner, filters].
	JoinStmt struct {
		stmtBase
		Sources []Group
		Dests   []Group
		Using   []Expr
	}

	YieldStmt struct {
		stmtBase
		Groups []*Name
	}

	// EvalStmt is EVAL groups [USING evaluator].
	EvalStmt struct {
		stmtBase
		Groups []*Name
		Using  Expr
	}

	AssignStmt struct {
		stmtBase
		Name  *Name
		Value Expr
	}

	ExprStmt struct {
		stmtBase
		X Expr
	}

	// RepeatStmt runs Body Count times.
	RepeatStmt struct {
		stmtBase
		Count Expr
		Body  []Stmt
	}
)

// Block is a named list of statements. The top-level statements form the
// block named InitBlock.
type Block struct {
	Name string
	At   Pos
	Body []Stmt
}

const (
	InitBlock       = "_init"
	GenerationBlock = "generation"
)
