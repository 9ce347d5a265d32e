package esdl

import (
	"strconv"
	"strings"
	"text/scanner"
)

type tokenKind int

const (
	tokEOS tokenKind = iota
	tokName
	tokNumber
	tokString
	tokKeyword
	tokOp
)

// Pos is a 1-based line and column in the definition.
type Pos struct {
	Line int
	Col  int
}

type token struct {
	kind   tokenKind
	text   string
	pos    Pos
	offset int
	end    int
}

// keywords map lower-case spellings to their canonical form.
var keywords = map[string]string{
	"from":     "FROM",
	"select":   "SELECT",
	"using":    "USING",
	"join":     "JOIN",
	"into":     "INTO",
	"yield":    "YIELD",
	"eval":     "EVAL",
	"evaluate": "EVAL",
	"begin":    "BEGIN",
	"end":      "END",
	"repeat":   "REPEAT",
}

type statement struct {
	toks []token
	text string
}

// tokenize splits src into statements. Newlines and semicolons end a
// statement, a backslash before a newline continues it and # starts a
// comment. Names are lower-cased.
func tokenize(src string) ([]statement, []*SyntaxError) {
	var (
		s     scanner.Scanner
		errs  []*SyntaxError
		stmts []statement
		cur   []token
	)
	s.Init(strings.NewReader(src))
	s.Mode = scanner.ScanIdents | scanner.ScanFloats | scanner.ScanStrings
	s.Whitespace = 1<<'\t' | 1<<' ' | 1<<'\r'
	s.Error = func(s *scanner.Scanner, msg string) {
		p := s.Pos()
		errs = append(errs, &SyntaxError{Code: CodeInvalidSyntax, Message: msg, Line: p.Line, Col: p.Column})
	}
	flush := func() {
		if len(cur) > 0 {
			stmts = append(stmts, statement{toks: cur, text: sourceText(src, cur)})
			cur = nil
		}
	}
	for tok := s.Scan(); tok != scanner.EOF; tok = s.Scan() {
		pos := Pos{Line: s.Position.Line, Col: s.Position.Column}
		t := token{pos: pos, offset: s.Position.Offset, text: s.TokenText()}
		switch tok {
		case '\n', ';':
			flush()
			continue
		case '#':
			for p := s.Peek(); p != '\n' && p != scanner.EOF; p = s.Peek() {
				s.Next()
			}
			continue
		case '\\':
			for p := s.Peek(); p == ' ' || p == '\t' || p == '\r'; p = s.Peek() {
				s.Next()
			}
			if s.Peek() == '\n' {
				s.Next()
			} else {
				errs = append(errs, newSyntaxError(CodeInvalidSyntax, pos))
			}
			continue
		case scanner.Ident:
			lower := strings.ToLower(t.text)
			if kw, ok := keywords[lower]; ok {
				t.kind, t.text = tokKeyword, kw
			} else {
				t.kind, t.text = tokName, lower
			}
		case scanner.Int, scanner.Float:
			t.kind = tokNumber
		case scanner.String:
			v, err := strconv.Unquote(t.text)
			if err != nil {
				errs = append(errs, newSyntaxError(CodeInvalidSyntax, pos))
				continue
			}
			t.kind, t.text = tokString, v
		case '\'':
			var b strings.Builder
			closed := false
			for p := s.Peek(); p != '\n' && p != scanner.EOF; p = s.Peek() {
				s.Next()
				if p == '\'' {
					closed = true
					break
				}
				b.WriteRune(p)
			}
			if !closed {
				errs = append(errs, newSyntaxError(CodeUnmatchedBracket, pos, "'"))
				continue
			}
			t.kind, t.text = tokString, b.String()
		case '/':
			t.kind = tokOp
			if s.Peek() == '/' {
				s.Next()
				t.text = "//"
			}
		default:
			t.kind = tokOp
		}
		t.end = s.Pos().Offset
		cur = append(cur, t)
	}
	flush()
	return stmts, errs
}

func sourceText(src string, toks []token) string {
	text := src[toks[0].offset:toks[len(toks)-1].end]
	text = strings.ReplaceAll(text, "\\\n", " ")
	return strings.Join(strings.Fields(text), " ")
}
