package esdl

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUndefined     = errors.New("undefined name")
	ErrType          = errors.New("type mismatch")
	ErrBlockNotFound = errors.New("block not found")
)

// Compile diagnostics. Codes starting with W are warnings.
const (
	CodeInvalidSyntax        = "E0001"
	CodeUnexpectedEnd        = "E0002"
	CodeOutsideBlock         = "E0003"
	CodeBlockNameExpected    = "E0004"
	CodeNestedBlock          = "E0005"
	CodeUnmatchedEnd         = "E0006"
	CodeUnexpectedStatement  = "E0007"
	CodeInvalidCall          = "E1001"
	CodeExpectedSelect       = "E1003"
	CodeExpectedUsing        = "E1004"
	CodeExpectedInto         = "E1005"
	CodeExpectedGroup        = "E1007"
	CodeExpectedEvaluator    = "E1008"
	CodeGeneratorDestination = "E1009"
	CodeInvalidAssignment    = "E1010"
	CodeInvalidParameter     = "E1011"
	CodeExpectedValue        = "E1012"
	CodeUnmatchedBracket     = "E1013"
	CodeBlockNameVariable    = "E2001"
	CodeRepeatedDestination  = "E2002"
	CodeInvalidGroupSize     = "E2003"
	CodeUnexpectedGroupSize  = "E2004"
	CodeReservedName         = "W2001"
	CodeUninitialised        = "W2004"
	CodeUnboundedGroup       = "W2006"
)

var defaultMessages = map[string]string{
	CodeInvalidSyntax:        "Invalid syntax",
	CodeUnexpectedEnd:        "Unexpected end of definition",
	CodeOutsideBlock:         "Command not permitted outside of block",
	CodeBlockNameExpected:    "Block name expected",
	CodeNestedBlock:          "Blocks cannot be nested",
	CodeUnmatchedEnd:         "END without a matching BEGIN or REPEAT",
	CodeUnexpectedStatement:  "%s cannot be specified here",
	CodeInvalidCall:          "Invalid function call",
	CodeExpectedSelect:       "Expected SELECT",
	CodeExpectedUsing:        "Expected USING",
	CodeExpectedInto:         "Expected INTO",
	CodeExpectedGroup:        "Expected group or groups",
	CodeExpectedEvaluator:    "Expected evaluator",
	CodeGeneratorDestination: "Generator cannot be specified as a destination group",
	CodeInvalidAssignment:    "Invalid assignment destination",
	CodeInvalidParameter:     "Invalid parameter name",
	CodeExpectedValue:        "Expected parameter=value pair",
	CodeUnmatchedBracket:     "Matching '%s' not found",
	CodeBlockNameVariable:    "Block name '%s' is also used as a variable",
	CodeRepeatedDestination:  "Group '%s' is selected into multiple times",
	CodeInvalidGroupSize:     "Size specifier for group '%s' is not valid",
	CodeUnexpectedGroupSize:  "Size specifier for group '%s' not permitted",
	CodeReservedName:         "Variable '%s' may be overwritten by the compiler",
	CodeUninitialised:        "Variable '%s' not initialised",
	CodeUnboundedGroup:       "Group '%s' specified after an unbounded group",
}

// SyntaxError is a compile diagnostic tied to a position in the definition.
type SyntaxError struct {
	Code    string
	Message string
	Line    int
	Col     int
}

func newSyntaxError(code string, at Pos, args ...any) *SyntaxError {
	msg := defaultMessages[code]
	if len(args) > 0 && strings.Contains(msg, "%") {
		msg = fmt.Sprintf(msg, args...)
	}
	return &SyntaxError{Code: code, Message: msg, Line: at.Line, Col: at.Col}
}

func syntaxErrorf(code string, at Pos, format string, args ...any) *SyntaxError {
	return &SyntaxError{Code: code, Message: fmt.Sprintf(format, args...), Line: at.Line, Col: at.Col}
}

func (e *SyntaxError) Error() string {
	if e.Col > 0 {
		return fmt.Sprintf("[%s] %s (line %d, char %d)", e.Code, e.Message, e.Line, e.Col)
	}
	return fmt.Sprintf("[%s] %s (line %d)", e.Code, e.Message, e.Line)
}

func (e *SyntaxError) Warning() bool { return strings.HasPrefix(e.Code, "W") }

// ErrorList is a sorted list of compile errors.
type ErrorList []*SyntaxError

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	parts := make([]string, len(l))
	for i, e := range l {
		parts[i] = e.Error()
	}
	return fmt.Sprintf("%d errors:\n%s", len(l), strings.Join(parts, "\n"))
}

// Codes returns the diagnostic codes in order.
func (l ErrorList) Codes() []string {
	out := make([]string, len(l))
	for i, e := range l {
		out[i] = e.Code
	}
	return out
}

func sortDiagnostics(l []*SyntaxError) {
	sort.SliceStable(l, func(i, j int) bool {
		a, b := l[i], l[j]
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Message < b.Message
	})
}

// StatementError reports a runtime failure with the statement that caused
// it.
type StatementError struct {
	Block      string
	Line       int
	Statement  string
	Generation int
	Err        error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("%s (block %s, line %d, generation %d): %v", e.Statement, e.Block, e.Line, e.Generation, e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }
