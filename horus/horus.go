// Package horus carries the Horus attack detection program: rules that
// find reentrancy, Parity wallet, overflow and unchecked-call attacks in
// Ethereum execution traces.
package horus

import (
	_ "embed"

	"github.com/wbrown/horus-datalog/datalog/parser"
	"github.com/wbrown/horus-datalog/datalog/query"
)

//go:embed horus.yaml
var source []byte

// Input lists the trace relations the program loads, in load order.
var Input = []string{
	"block", "call", "transaction", "storage", "throw", "transfer",
	"arithmetic", "use", "def", "selfdestruct", "condition",
}

// Output lists the findings the program emits, in emit order.
var Output = []string{
	"CreateBasedReentrancy",
	"DelegatedReentrancy",
	"ParityWalletHack1",
	"Reentrancy",
	"CrossFunctionReentrancy",
	"DoSWithUnexpectedThrow",
	"ERC777Reentrancy",
	"ShortAddress",
	"IntegerOverflow",
	"IntegerUnderflow",
	"ParityWalletHack2",
	"UncheckedDelegatecall",
	"UncheckedSuicide",
	"UnhandledException",
}

// Source returns the program text.
func Source() []byte {
	return append([]byte(nil), source...)
}

// Program parses the embedded program. Each call returns a fresh
// program the caller may modify.
func Program() (*query.Program, error) {
	return parser.ParseProgram(source)
}

// MustProgram is Program for callers that embed a known-good build.
func MustProgram() *query.Program {
	prog, err := Program()
	if err != nil {
		panic(err)
	}
	return prog
}
