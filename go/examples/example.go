// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package examples

import (
	"fmt"
	"math"

	"github.com/Fantom-foundation/evmcore/go/evm"
	"github.com/Fantom-foundation/evmcore/go/state"
	"golang.org/x/crypto/sha3"
)

// Example is an executable description of a contract and an entry point with
// a (int)->int signature.
type Example struct {
	exampleSpec
	codeHash evm.Hash
}

// exampleSpec specifies a contract and an entry point with a (int)->int signature.
type exampleSpec struct {
	Name      string
	Code      evm.Code
	function  uint32        // selector of the function in the contract to be called
	reference func(int) int // a reference function computing the same function
}

func (s exampleSpec) build() Example {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(s.Code)
	var hash evm.Hash
	hasher.Sum(hash[0:0])
	return Example{
		exampleSpec: s,
		codeHash:    hash,
	}
}

type Result struct {
	Result  int
	UsedGas evm.Gas
}

// All returns all examples of this package.
func All() []Example {
	return []Example{
		GetIncrementExample(),
		GetFibExample(),
		GetSha3Example(),
		GetArithmeticExample(),
		GetGasBurnerExample(),
		GetStaticOverheadExample(),
		GetJumpdestAnalysisExample(),
		GetStopAnalysisExample(),
		GetPush1AnalysisExample(),
		GetPush32AnalysisExample(),
	}
}

// Get returns the example with the given name.
func Get(name string) (Example, bool) {
	for _, example := range All() {
		if example.Name == name {
			return example, true
		}
	}
	return Example{}, false
}

// RunOn runs this example on the given interpreter, using the given argument.
func (e *Example) RunOn(interpreter evm.Interpreter, argument int) (Result, error) {
	const initialGas = math.MaxInt64
	env := evm.Environment{
		Address:  contractAddress,
		Caller:   senderAddress,
		Code:     e.Code,
		CodeHash: &e.codeHash,
		Input:    encodeArgument(e.function, argument),
	}

	res, err := interpreter.Execute(env, initialGas, evm.NewSubstate())
	if err != nil {
		return Result{}, err
	}
	if res.Status != evm.StatusSuccess {
		return Result{}, fmt.Errorf("execution ended with status %v: %v", res.Status, res.Err)
	}

	result, err := decodeOutput(res.Output)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Result:  result,
		UsedGas: initialGas - res.GasLeft,
	}, nil
}

// RunOnProcessor runs this example as a transaction calling the example's
// contract on a fresh world state.
func (e *Example) RunOnProcessor(processor evm.Processor, argument int) (Result, error) {
	s := state.New(state.Accounts{
		senderAddress:   {},
		contractAddress: {Code: e.Code},
	})
	transaction := evm.Transaction{
		Sender:    senderAddress,
		Recipient: &contractAddress,
		Input:     encodeArgument(e.function, argument),
		GasLimit:  transactionGasLimit,
	}
	block := evm.BlockContext{
		Header: evm.BlockHeader{Number: 1, GasLimit: transactionGasLimit},
	}

	receipt, err := processor.Run(block, transaction, s)
	if err != nil {
		return Result{}, err
	}
	if receipt.Status != evm.StatusSuccess {
		return Result{}, fmt.Errorf("transaction ended with status %v", receipt.Status)
	}

	result, err := decodeOutput(receipt.Output)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Result:  result,
		UsedGas: receipt.GasUsed,
	}, nil
}

// RunReference runs the reference function of this example to produce the
// expected result.
func (e *Example) RunReference(argument int) int {
	return e.reference(argument)
}

const transactionGasLimit = 10_000_000

var (
	senderAddress   = evm.Address{1}
	contractAddress = evm.Address{2}
)

func encodeArgument(function uint32, arg int) []byte {
	// 4 byte function selector followed by the argument padded to 32 bytes
	data := make([]byte, 4+32)

	data[0] = byte(function >> 24)
	data[1] = byte(function >> 16)
	data[2] = byte(function >> 8)
	data[3] = byte(function)

	data[4+28] = byte(arg >> 24)
	data[5+28] = byte(arg >> 16)
	data[6+28] = byte(arg >> 8)
	data[7+28] = byte(arg)

	return data
}

func decodeOutput(output []byte) (int, error) {
	if len(output) != 32 {
		return 0, fmt.Errorf("unexpected length of output; wanted 32, got %d", len(output))
	}
	return (int(output[28]) << 24) | (int(output[29]) << 16) | (int(output[30]) << 8) | (int(output[31]) << 0), nil
}
