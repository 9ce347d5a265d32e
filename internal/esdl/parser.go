package esdl

import (
	"strconv"
	"strings"
)

// bailout carries the first error of a statement out of the recursive
// descent.
type bailout struct{ err *SyntaxError }

// parser reads the tokens of one statement.
type parser struct {
	toks []token
	i    int
	text string
}

func (p *parser) peekAt(k int) token {
	if p.i+k < len(p.toks) {
		return p.toks[p.i+k]
	}
	var at Pos
	if n := len(p.toks); n > 0 {
		last := p.toks[n-1]
		at = Pos{Line: last.pos.Line, Col: last.pos.Col + last.end - last.offset}
	}
	return token{kind: tokEOS, pos: at}
}

func (p *parser) peek() token { return p.peekAt(0) }

func (p *parser) next() token {
	t := p.peek()
	if p.i < len(p.toks) {
		p.i++
	}
	return t
}

func (p *parser) fail(code string, at Pos, args ...any) {
	panic(bailout{newSyntaxError(code, at, args...)})
}

func (p *parser) failf(code string, at Pos, format string, args ...any) {
	panic(bailout{syntaxErrorf(code, at, format, args...)})
}

func (p *parser) isKeyword(kw string) bool {
	t := p.peek()
	return t.kind == tokKeyword && t.text == kw
}

func (p *parser) isOp(op string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == op
}

func (p *parser) atEnd() bool { return p.peek().kind == tokEOS }

// end fails unless every token has been consumed.
func (p *parser) end() {
	if t := p.peek(); t.kind != tokEOS {
		p.fail(CodeInvalidSyntax, t.pos)
	}
}

func (p *parser) base() stmtBase {
	return stmtBase{line: p.toks[0].pos.Line, text: p.text}
}

func (p *parser) statement() Stmt {
	t := p.peek()
	if t.kind == tokKeyword {
		switch t.text {
		case "FROM":
			return p.from()
		case "JOIN":
			return p.join()
		case "YIELD":
			return p.yield()
		case "EVAL":
			return p.eval()
		case "SELECT", "USING", "INTO":
			p.fail(CodeUnexpectedStatement, t.pos, t.text)
		}
		p.fail(CodeInvalidSyntax, t.pos)
	}
	x := p.expr(1)
	if p.isOp("=") {
		p.next()
		name, ok := x.(*Name)
		if !ok {
			p.fail(CodeInvalidAssignment, x.Pos())
		}
		value := p.expr(1)
		p.end()
		return &AssignStmt{stmtBase: p.base(), Name: name, Value: value}
	}
	p.end()
	return &ExprStmt{stmtBase: p.base(), X: x}
}

func (p *parser) from() Stmt {
	p.next()
	s := &FromStmt{stmtBase: p.base()}
	s.Sources = p.groups(func(g Group) {
		if _, _, ok := operatorName(g.X); !ok {
			p.fail(CodeExpectedGroup, g.X.Pos())
		}
	})
	if !p.isKeyword("SELECT") {
		p.fail(CodeExpectedSelect, p.peek().pos)
	}
	p.next()
	s.Dests = p.groups(p.destination)
	s.Using = p.using()
	return s
}

func (p *parser) join() Stmt {
	p.next()
	s := &JoinStmt{stmtBase: p.base()}
	s.Sources = p.groups(func(g Group) {
		if _, ok := g.X.(*Name); !ok {
			p.fail(CodeExpectedGroup, g.X.Pos())
		}
	})
	if !p.isKeyword("INTO") {
		p.fail(CodeExpectedInto, p.peek().pos)
	}
	p.next()
	s.Dests = p.groups(p.destination)
	s.Using = p.using()
	return s
}

func (p *parser) yield() Stmt {
	p.next()
	s := &YieldStmt{stmtBase: p.base(), Groups: p.names()}
	p.end()
	return s
}

func (p *parser) eval() Stmt {
	p.next()
	s := &EvalStmt{stmtBase: p.base(), Groups: p.names()}
	if p.atEnd() {
		return s
	}
	if !p.isKeyword("USING") {
		p.fail(CodeExpectedUsing, p.peek().pos)
	}
	u := p.next()
	if p.peek().kind != tokName {
		p.fail(CodeExpectedEvaluator, u.pos)
	}
	s.Using = p.expr(1)
	if _, _, ok := operatorName(s.Using); !ok {
		p.fail(CodeExpectedEvaluator, s.Using.Pos())
	}
	p.end()
	return s
}

func (p *parser) destination(g Group) {
	switch g.X.(type) {
	case *Name:
	case *Call:
		p.fail(CodeGeneratorDestination, g.X.Pos())
	default:
		p.fail(CodeExpectedGroup, g.X.Pos())
	}
}

// groups reads a comma separated list of optionally sized groups. A group
// is sized when an expression is directly followed by a name.
func (p *parser) groups(check func(Group)) []Group {
	var out []Group
	for {
		t := p.peek()
		if t.kind == tokEOS || t.kind == tokKeyword {
			p.fail(CodeExpectedGroup, t.pos)
		}
		g := Group{X: p.expr(1)}
		if n := p.peek(); n.kind == tokName {
			p.next()
			g.Size = g.X
			g.X = p.postfix(&Name{At: n.pos, Name: n.text})
		}
		check(g)
		out = append(out, g)
		if !p.isOp(",") {
			return out
		}
		p.next()
	}
}

func (p *parser) names() []*Name {
	var out []*Name
	for {
		t := p.peek()
		if t.kind != tokName {
			p.fail(CodeExpectedGroup, t.pos)
		}
		p.next()
		out = append(out, &Name{At: t.pos, Name: t.text})
		if !p.isOp(",") {
			return out
		}
		p.next()
	}
}

// using reads an optional USING clause and then expects the end of the
// statement.
func (p *parser) using() []Expr {
	if p.atEnd() {
		return nil
	}
	if !p.isKeyword("USING") {
		p.fail(CodeExpectedUsing, p.peek().pos)
	}
	p.next()
	var out []Expr
	for {
		t := p.peek()
		if t.kind != tokName {
			p.failf(CodeInvalidParameter, t.pos, "Expected filter")
		}
		x := p.expr(1)
		if _, _, ok := operatorName(x); !ok {
			p.fail(CodeInvalidCall, x.Pos())
		}
		out = append(out, x)
		if !p.isOp(",") {
			break
		}
		p.next()
	}
	p.end()
	return out
}

func binaryPrec(t token) (prec int, right bool) {
	if t.kind != tokOp {
		return 0, false
	}
	switch t.text {
	case "+", "-":
		return 10, false
	case "*", "/", "//", "%":
		return 20, false
	case "^":
		return 40, true
	}
	return 0, false
}

const unaryPrec = 40

func (p *parser) expr(minPrec int) Expr {
	x := p.unary()
	for {
		t := p.peek()
		prec, right := binaryPrec(t)
		if prec == 0 || prec < minPrec {
			return x
		}
		p.next()
		next := prec + 1
		if right {
			next = prec
		}
		x = &Binary{At: t.pos, Op: t.text, X: x, Y: p.expr(next)}
	}
}

func (p *parser) unary() Expr {
	if t := p.peek(); t.kind == tokOp && (t.text == "-" || t.text == "+") {
		p.next()
		return &Unary{At: t.pos, Op: t.text, X: p.expr(unaryPrec)}
	}
	return p.postfix(p.primary())
}

func (p *parser) primary() Expr {
	t := p.next()
	switch t.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			p.failf(CodeExpectedValue, t.pos, "'%s' is not a valid number", t.text)
		}
		return &Literal{At: t.pos, Value: f, Text: t.text}
	case tokString:
		return &Literal{At: t.pos, Value: t.text, Text: strconv.Quote(t.text)}
	case tokName:
		switch t.text {
		case "true":
			return &Literal{At: t.pos, Value: true, Text: t.text}
		case "false":
			return &Literal{At: t.pos, Value: false, Text: t.text}
		case "null", "none":
			return &Literal{At: t.pos, Value: nil, Text: t.text}
		}
		return &Name{At: t.pos, Name: t.text}
	case tokOp:
		switch t.text {
		case "(":
			x := p.expr(1)
			if !p.isOp(")") {
				p.fail(CodeUnmatchedBracket, t.pos, "(")
			}
			p.next()
			return x
		case "[":
			l := &List{At: t.pos}
			for !p.isOp("]") {
				if p.atEnd() {
					p.fail(CodeUnmatchedBracket, t.pos, "[")
				}
				l.Items = append(l.Items, p.expr(1))
				if p.isOp(",") {
					p.next()
				} else if !p.isOp("]") {
					p.fail(CodeUnmatchedBracket, t.pos, "[")
				}
			}
			p.next()
			return l
		}
	}
	p.fail(CodeInvalidSyntax, t.pos)
	return nil
}

func (p *parser) postfix(x Expr) Expr {
	for {
		t := p.peek()
		if t.kind != tokOp {
			return x
		}
		switch t.text {
		case ".":
			p.next()
			n := p.next()
			if n.kind != tokName {
				p.fail(CodeInvalidSyntax, n.pos)
			}
			x = &Attr{At: t.pos, X: x, Name: n.text}
		case "[":
			p.next()
			idx := p.expr(1)
			if !p.isOp("]") {
				p.fail(CodeUnmatchedBracket, t.pos, "[")
			}
			p.next()
			x = &Index{At: t.pos, X: x, Index: idx}
		case "(":
			p.next()
			x = &Call{At: x.Pos(), Fn: x, Args: p.arguments(t.pos)}
		default:
			return x
		}
	}
}

func (p *parser) arguments(open Pos) []Arg {
	var args []Arg
	for !p.isOp(")") {
		if p.atEnd() {
			p.fail(CodeUnmatchedBracket, open, "(")
		}
		var a Arg
		if eq := p.peekAt(1); eq.kind == tokOp && eq.text == "=" {
			n := p.next()
			if n.kind != tokName {
				p.fail(CodeInvalidParameter, n.pos)
			}
			p.next()
			a.Name = n.text
		}
		a.Value = p.expr(1)
		args = append(args, a)
		switch {
		case p.isOp(","):
			p.next()
		case p.isOp(")"):
		case p.atEnd():
			p.fail(CodeUnmatchedBracket, open, "(")
		default:
			p.fail(CodeInvalidCall, p.peek().pos)
		}
	}
	p.next()
	return args
}

// blockParser assembles statements into blocks, tracking BEGIN and REPEAT
// nesting.
type blockParser struct {
	init    *Block
	blocks  []*Block
	current *Block
	repeats []*RepeatStmt
	closed  bool
	errs    []*SyntaxError
	last    Pos
}

func parse(stmts []statement) (*Block, []*Block, []*SyntaxError) {
	bp := &blockParser{init: &Block{Name: InitBlock, At: Pos{Line: 1, Col: 1}}}
	for _, st := range stmts {
		bp.add(st)
	}
	if bp.current != nil || len(bp.repeats) > 0 {
		bp.errs = append(bp.errs, newSyntaxError(CodeUnexpectedEnd, bp.last))
	}
	return bp.init, bp.blocks, bp.errs
}

func (bp *blockParser) add(st statement) {
	p := &parser{toks: st.toks, text: st.text}
	bp.last = p.peekAt(len(st.toks)).pos
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			bp.errs = append(bp.errs, b.err)
		}
	}()
	if first := st.toks[0]; first.kind == tokKeyword {
		switch first.text {
		case "BEGIN":
			bp.begin(p)
			return
		case "END":
			bp.end(p)
			return
		case "REPEAT":
			p.next()
			r := &RepeatStmt{stmtBase: p.base(), Count: p.expr(1)}
			p.end()
			bp.append(p, r)
			bp.repeats = append(bp.repeats, r)
			return
		}
	}
	bp.append(p, p.statement())
}

func (bp *blockParser) append(p *parser, s Stmt) {
	switch {
	case len(bp.repeats) > 0:
		r := bp.repeats[len(bp.repeats)-1]
		r.Body = append(r.Body, s)
	case bp.current != nil:
		bp.current.Body = append(bp.current.Body, s)
	case bp.closed:
		p.fail(CodeOutsideBlock, p.toks[0].pos)
	default:
		bp.init.Body = append(bp.init.Body, s)
	}
}

func (bp *blockParser) begin(p *parser) {
	t := p.next()
	if bp.current != nil || len(bp.repeats) > 0 {
		p.fail(CodeNestedBlock, t.pos)
	}
	n := p.next()
	if n.kind != tokName {
		// keep the END of the unnamed block matched
		bp.current = &Block{At: t.pos}
		p.fail(CodeBlockNameExpected, t.pos)
	}
	p.end()
	for _, b := range bp.blocks {
		if b.Name == n.text {
			bp.current = &Block{At: t.pos}
			p.failf(CodeInvalidSyntax, n.pos, "Block '%s' is defined more than once", n.text)
		}
	}
	bp.current = &Block{Name: n.text, At: t.pos}
	bp.blocks = append(bp.blocks, bp.current)
}

func (bp *blockParser) end(p *parser) {
	t := p.next()
	if !p.atEnd() {
		p.next()
	}
	p.end()
	switch {
	case len(bp.repeats) > 0:
		bp.repeats = bp.repeats[:len(bp.repeats)-1]
	case bp.current != nil:
		bp.current = nil
		bp.closed = true
	default:
		p.fail(CodeUnmatchedEnd, t.pos)
	}
}

// blockKey normalises a block name for lookup.
func blockKey(name string) string { return strings.ToLower(name) }
