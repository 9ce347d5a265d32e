package esdl

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCompileErrorCodes(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want []string
	}{
		{"missing select", "FROM population", []string{CodeExpectedSelect}},
		{"missing using", "FROM a SELECT b INTO c", []string{CodeExpectedUsing}},
		{"missing into", "JOIN a, b", []string{CodeExpectedInto}},
		{"missing group", "YIELD", []string{CodeExpectedGroup}},
		{"missing evaluator", "EVAL a USING", []string{CodeExpectedEvaluator}},
		{"generator destination", "FROM a SELECT random_real(length=2)", []string{CodeGeneratorDestination}},
		{"bad assignment", "a + 1 = 2", []string{CodeInvalidAssignment}},
		{"missing filter", "FROM a SELECT b USING 5", []string{CodeInvalidParameter}},
		{"unclosed call", "FROM a SELECT b USING tournament(k=2", []string{CodeUnmatchedBracket}},
		{"unclosed paren", "a = (1 + 2", []string{CodeUnmatchedBracket}},
		{"positional operator argument", "FROM random_real(5) SELECT 1 p", []string{CodeExpectedValue}},
		{"block without name", "BEGIN", []string{CodeUnexpectedEnd, CodeBlockNameExpected}},
		{"nested block", "BEGIN a\nBEGIN b\nEND\nEND", []string{CodeNestedBlock, CodeUnmatchedEnd}},
		{"unmatched end", "END", []string{CodeUnmatchedEnd}},
		{"open repeat", "REPEAT 3\nx = 1", []string{CodeUnexpectedEnd}},
		{"after block", "BEGIN generation\nEND\nx = 1", []string{CodeOutsideBlock}},
		{"clause as statement", "SELECT a", []string{CodeUnexpectedStatement}},
		{"block name variable", "generation = 1\nBEGIN generation\nEND", []string{CodeBlockNameVariable}},
		{"repeated destination", "FROM a SELECT b, b", []string{CodeRepeatedDestination}},
		{"list size", "FROM a SELECT [1] b", []string{CodeInvalidGroupSize}},
		{"sized source", "FROM 5 a SELECT b", []string{CodeUnexpectedGroupSize}},
		{"trailing tokens", "YIELD a b", []string{CodeInvalidSyntax}},
		{"bad continuation", "x = 1 \\ 2", []string{CodeInvalidSyntax, CodeInvalidSyntax}},
		{"one error per statement", "FROM a\nJOIN b", []string{CodeExpectedSelect, CodeExpectedInto}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.src)
			var list ErrorList
			if !errors.As(err, &list) {
				t.Fatalf("expected ErrorList, got %v", err)
			}
			if diff := cmp.Diff(tc.want, list.Codes()); diff != "" {
				t.Fatalf("codes mismatch (-want +got):\n%s\n%v", diff, err)
			}
		})
	}
}

func TestCompileWarnings(t *testing.T) {
	src := "_x = 1\nFROM a SELECT b, c\nYIELD b, ghost\nJOIN b, phantom INTO d\nEVAL later\nBEGIN generation\nFROM d SELECT later\nEND"
	prog, err := Compile(src)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var got []string
	for _, w := range prog.Warnings {
		got = append(got, w.Code)
	}
	want := []string{CodeReservedName, CodeUnboundedGroup, CodeUninitialised, CodeUninitialised}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("warnings mismatch (-want +got):\n%s", diff)
	}
	if prog.Warnings[1].Line != 2 {
		t.Fatalf("expected W2006 on line 2, got %d", prog.Warnings[1].Line)
	}
	if w := prog.Warnings[3]; w.Line != 4 || w.Message != "Variable 'phantom' not initialised" {
		t.Fatalf("unexpected W2004 %+v", w)
	}
	if !prog.Defines("later") || prog.Defines("ghost") {
		t.Fatal("destinations of every block are defined, read-only names are not")
	}
}

func TestSyntaxErrorPosition(t *testing.T) {
	_, err := Compile("x = 1\n\nFROM a SELECT b USING tournament(k=2")
	var list ErrorList
	if !errors.As(err, &list) || len(list) != 1 {
		t.Fatalf("expected one error, got %v", err)
	}
	if list[0].Line != 3 || list[0].Col != 33 {
		t.Fatalf("expected line 3 char 33, got %d:%d", list[0].Line, list[0].Col)
	}
	if got, want := list[0].Error(), "[E1013] Matching '(' not found (line 3, char 33)"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestStatementsAndComments(t *testing.T) {
	src := `# leading comment
from Random_Binary(Length=4) select 2 A; yield a   # trailing
x = 1 + \
    2
BEGIN Generation
  REPEAT 2
    YIELD a
  END REPEAT
END GENERATION
`
	prog, err := Compile(src)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var texts []string
	for _, s := range prog.Init.Body {
		texts = append(texts, s.Text())
	}
	want := []string{"from Random_Binary(Length=4) select 2 A", "yield a", "x = 1 + 2"}
	if diff := cmp.Diff(want, texts); diff != "" {
		t.Fatalf("statements mismatch (-want +got):\n%s", diff)
	}
	from := prog.Init.Body[0].(*FromStmt)
	if got := from.Sources[0].X.String(); got != "random_binary(length=4)" {
		t.Fatalf("source = %s", got)
	}
	if from.Dests[0].X.(*Name).Name != "a" {
		t.Fatalf("destination not lower-cased: %s", from.Dests[0].X)
	}
	if diff := cmp.Diff([]string{"generation"}, prog.BlockNames()); diff != "" {
		t.Fatalf("blocks mismatch (-want +got):\n%s", diff)
	}
	gen, err := prog.Block("GENERATION")
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	r, ok := gen.Body[0].(*RepeatStmt)
	if !ok || len(r.Body) != 1 {
		t.Fatalf("expected REPEAT with one statement, got %#v", gen.Body)
	}
	if _, err := prog.Block("missing"); !errors.Is(err, ErrBlockNotFound) {
		t.Fatalf("expected ErrBlockNotFound, got %v", err)
	}
}

func TestExpressionPrecedence(t *testing.T) {
	cases := map[string]string{
		"x = 1 + 2 * 3":        "(1 + (2 * 3))",
		"x = 2 ^ 3 ^ 2":        "(2 ^ (3 ^ 2))",
		"x = -2 ^ 2":           "-(2 ^ 2)",
		"x = (1 - 2) - 3":      "((1 - 2) - 3)",
		"x = cfg.system.size":  "cfg.system.size",
		"x = a[1] // 2":        "(a[1] // 2)",
		"x = f(1, b=[1, 'q'])": "f(1, b=[1, \"q\"])",
	}
	for src, want := range cases {
		prog, err := Compile(src)
		if err != nil {
			t.Fatalf("%s: %v", src, err)
		}
		got := prog.Init.Body[0].(*AssignStmt).Value.String()
		if got != want {
			t.Fatalf("%s parsed as %s, want %s", src, got, want)
		}
	}
}

func TestSizedGroups(t *testing.T) {
	prog, err := Compile("FROM population SELECT (n * 2) offspring, size rest, 3 extra USING best")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	from := prog.Init.Body[0].(*FromStmt)
	var sizes []string
	for _, g := range from.Dests {
		sizes = append(sizes, g.Size.String()+" "+g.X.String())
	}
	want := []string{"(n * 2) offspring", "size rest", "3 extra"}
	if diff := cmp.Diff(want, sizes); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}
	if len(from.Using) != 1 || from.Using[0].String() != "best" {
		t.Fatalf("using = %v", from.Using)
	}
}
