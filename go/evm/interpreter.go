// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package evm

import (
	"fmt"
	"io"
)

//go:generate mockgen -source interpreter.go -destination interpreter_mock.go -package evm

// Interpreter is a component capable of executing EVM byte-code within a
// single call frame. Nested calls are delegated to the RunContext of the
// environment, which typically recurses into an interpreter again.
// To obtain an Interpreter instance, client code should use NewInterpreter()
// provided by the registry file in this package.
type Interpreter interface {
	// Execute runs the code of the given environment with the given amount
	// of gas, recording side effects in the substate. Halting conditions of
	// the code, including exceptional ones, are reported through the Result.
	// The error is only non-nil if the interpreter itself failed to process
	// the program, in which case the result is undefined.
	// Interpreters are required to be thread-safe. Thus, multiple runs may be
	// conducted in parallel.
	Execute(env Environment, gas Gas, substate *Substate) (Result, error)
}

// Environment is the read-only context of a single call frame.
type Environment struct {
	Address     Address // the account whose code is executing
	Origin      Address // the sender of the original transaction
	GasPrice    Value
	Input       Data
	Caller      Address
	Value       Value
	Code        Code
	CodeHash    *Hash // optional, used as a key for caching code analysis
	Header      BlockHeader
	ChainID     Word
	Depth       int
	WriteAccess bool // false in static contexts
	Context     RunContext
}

// BlockHeader is the header of the block the executed transaction is part of.
type BlockHeader struct {
	ParentHash       Hash
	OmmersHash       Hash
	Coinbase         Address
	StateRoot        Hash
	TransactionsRoot Hash
	ReceiptsRoot     Hash
	LogsBloom        [256]byte
	Difficulty       Value
	Number           uint64
	GasLimit         Gas
	GasUsed          Gas
	Timestamp        uint64
	ExtraData        Data
	MixHash          Hash
	Nonce            uint64
}

// RunContext provides the collaborators needed by individual EVM
// instructions: the world state, the history of block hashes and the
// ability to perform nested calls.
type RunContext interface {
	WorldState

	// GetBlockHash returns the hash of the block with the given number.
	GetBlockHash(number uint64) Hash

	// Call performs a nested call or contract creation.
	Call(kind CallKind, parameter CallParameters) (CallResult, error)
}

// CallParameters describe a nested call requested by an executing frame.
type CallParameters struct {
	Sender      Address
	Recipient   Address // not relevant for CREATE and CREATE2
	Value       Value   // ignored by static calls, considered to be 0
	Input       Data
	Gas         Gas
	Salt        Hash // only relevant for CREATE2 calls
	CodeAddress Address
	Depth       int  // depth of the new frame
	Static      bool // true if the new frame must not modify state
}

type CallResult struct {
	Output         Data
	GasLeft        Gas
	CreatedAddress Address // only meaningful for CREATE and CREATE2
	Success        bool    // false if the execution ended in a revert or exception
	Status         Status  // terminal state of the frame; rejected calls are reverts
}

// Status is the terminal state of an execution.
type Status byte

const (
	StatusSuccess Status = iota
	StatusRevert
	StatusException
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusRevert:
		return "revert"
	case StatusException:
		return "exception"
	}
	return fmt.Sprintf("Status(%d)", s)
}

// Result summarizes the result of a EVM code execution.
type Result struct {
	Status  Status
	GasLeft Gas  // zero for exceptions
	Output  Data // nil for exceptions
	Err     error
}

// ProfilingInterpreter is an optional extension to the Interpreter interface
// above which may be implemented by interpreters collecting statistical data
// on their executions.
type ProfilingInterpreter interface {
	Interpreter

	// ResetProfile resets the operation statistic collected by the underlying
	// Interpreter implementation. It should not be called while running
	// operations on the Interpreter in parallel.
	ResetProfile()

	// DumpProfile writes a snapshot of the profiling data collected since
	// the last reset.
	DumpProfile(io.Writer)
}
