// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package processor

import (
	"github.com/Fantom-foundation/evmcore/go/evm"

	// geth dependencies
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
)

const (
	// MaxCallDepth is the deepest frame nesting level that may be entered.
	MaxCallDepth = 1024
	// MaxCodeSize is the size limit of deployed contract code (EIP-170).
	MaxCodeSize = 24576
	// CodeDepositGas is the per byte cost of storing the code of a new
	// contract.
	CodeDepositGas = 200
)

// runContext is the message-call dispatcher handed to interpreters. It
// performs nested calls and contract creations by recursing into the
// interpreter, keeping the world state and the substate consistent with the
// outcome of each frame.
type runContext struct {
	evm.WorldState
	interpreter evm.Interpreter
	substate    *evm.Substate
	block       evm.BlockContext
	origin      evm.Address
	gasPrice    evm.Value
}

var _ evm.RunContext = (*runContext)(nil)

func (r *runContext) GetBlockHash(number uint64) evm.Hash {
	if r.block.GetHash == nil {
		return evm.Hash{}
	}
	return r.block.GetHash(number)
}

func (r *runContext) Call(kind evm.CallKind, parameters evm.CallParameters) (evm.CallResult, error) {
	if parameters.Depth > MaxCallDepth {
		return evm.CallResult{GasLeft: parameters.Gas, Status: evm.StatusRevert}, evm.ErrDepth
	}
	if kind == evm.Create || kind == evm.Create2 {
		return r.executeCreate(kind, parameters)
	}
	return r.executeCall(kind, parameters)
}

func (r *runContext) executeCall(kind evm.CallKind, parameters evm.CallParameters) (evm.CallResult, error) {
	errResult := evm.CallResult{
		GasLeft: parameters.Gas,
		Status:  evm.StatusRevert,
	}

	transfersValue := kind == evm.Call || kind == evm.CallCode
	if transfersValue && !canTransferValue(r, parameters.Value, parameters.Sender, &parameters.Recipient) {
		log.Debug("Call rejected", "kind", kind, "sender", parameters.Sender, "err", evm.ErrInsufficientBalance)
		return errResult, nil
	}

	stateSnapshot := r.CreateSnapshot()
	substateSnapshot := r.substate.Snapshot()

	if kind == evm.Call {
		transferValue(r, parameters.Value, parameters.Sender, parameters.Recipient)
	}
	r.substate.Touch(parameters.Recipient)

	code := r.GetCode(parameters.CodeAddress)
	codeHash := r.codeHash(parameters.CodeAddress)

	env := r.newEnvironment(parameters, code, &codeHash)
	env.Address = parameters.Recipient
	env.Input = parameters.Input

	result, err := r.interpreter.Execute(env, parameters.Gas, r.substate)
	if err != nil {
		r.RestoreSnapshot(stateSnapshot)
		r.substate.RevertToSnapshot(substateSnapshot)
		return evm.CallResult{Status: evm.StatusException}, err
	}

	switch result.Status {
	case evm.StatusSuccess:
		return evm.CallResult{
			Output:  result.Output,
			GasLeft: result.GasLeft,
			Success: true,
			Status:  evm.StatusSuccess,
		}, nil
	case evm.StatusRevert:
		r.RestoreSnapshot(stateSnapshot)
		r.substate.RevertToSnapshot(substateSnapshot)
		return evm.CallResult{
			Output:  result.Output,
			GasLeft: result.GasLeft,
			Status:  evm.StatusRevert,
		}, nil
	default:
		log.Debug("Nested call failed", "kind", kind, "depth", parameters.Depth, "recipient", parameters.Recipient, "err", result.Err)
		r.RestoreSnapshot(stateSnapshot)
		r.substate.RevertToSnapshot(substateSnapshot)
		return evm.CallResult{Status: evm.StatusException}, nil
	}
}

func (r *runContext) executeCreate(kind evm.CallKind, parameters evm.CallParameters) (evm.CallResult, error) {
	errResult := evm.CallResult{
		GasLeft: parameters.Gas,
		Status:  evm.StatusRevert,
	}

	if !canTransferValue(r, parameters.Value, parameters.Sender, nil) {
		log.Debug("Create rejected", "sender", parameters.Sender, "err", evm.ErrInsufficientBalance)
		return errResult, nil
	}
	sender, _ := r.GetAccount(parameters.Sender)
	if sender.Nonce+1 < sender.Nonce {
		return errResult, nil
	}
	r.IncrementNonce(parameters.Sender)

	code := evm.Code(parameters.Input)
	codeHash := evm.Hash(crypto.Keccak256Hash(code))
	createdAddress := createAddress(kind, parameters.Sender, sender.Nonce, parameters.Salt, codeHash)
	r.substate.AccessAccount(createdAddress)

	if existing, found := r.GetAccount(createdAddress); found && (existing.Nonce != 0 || existing.IsContract()) {
		log.Debug("Create failed", "address", createdAddress, "err", evm.ErrAddressCollision)
		return evm.CallResult{Status: evm.StatusException}, nil
	}

	stateSnapshot := r.CreateSnapshot()
	substateSnapshot := r.substate.Snapshot()
	revert := func() {
		r.RestoreSnapshot(stateSnapshot)
		r.substate.RevertToSnapshot(substateSnapshot)
	}

	r.IncrementNonce(createdAddress)
	transferValue(r, parameters.Value, parameters.Sender, createdAddress)
	r.substate.Touch(createdAddress)

	env := r.newEnvironment(parameters, code, &codeHash)
	env.Address = createdAddress

	result, err := r.interpreter.Execute(env, parameters.Gas, r.substate)
	if err != nil {
		revert()
		return evm.CallResult{Status: evm.StatusException}, err
	}

	switch result.Status {
	case evm.StatusSuccess:
	case evm.StatusRevert:
		revert()
		return evm.CallResult{Output: result.Output, GasLeft: result.GasLeft, Status: evm.StatusRevert}, nil
	default:
		log.Debug("Init code failed", "address", createdAddress, "depth", parameters.Depth, "err", result.Err)
		revert()
		return evm.CallResult{Status: evm.StatusException}, nil
	}

	outCode := evm.Code(result.Output)
	if len(outCode) > MaxCodeSize {
		log.Debug("Create failed", "address", createdAddress, "size", len(outCode), "err", evm.ErrMaxCodeSizeExceeded)
		revert()
		return evm.CallResult{Status: evm.StatusException}, nil
	}
	depositGas := evm.Gas(len(outCode)) * CodeDepositGas
	if result.GasLeft < depositGas {
		log.Debug("Create failed", "address", createdAddress, "err", evm.ErrOutOfGas)
		revert()
		return evm.CallResult{Status: evm.StatusException}, nil
	}
	r.SetCode(createdAddress, outCode)

	return evm.CallResult{
		Output:         evm.Data(outCode),
		GasLeft:        result.GasLeft - depositGas,
		CreatedAddress: createdAddress,
		Success:        true,
		Status:         evm.StatusSuccess,
	}, nil
}

// newEnvironment derives the environment of a nested frame. The address and
// input of the frame are set by the caller.
func (r *runContext) newEnvironment(parameters evm.CallParameters, code evm.Code, codeHash *evm.Hash) evm.Environment {
	return evm.Environment{
		Origin:      r.origin,
		GasPrice:    r.gasPrice,
		Caller:      parameters.Sender,
		Value:       parameters.Value,
		Code:        code,
		CodeHash:    codeHash,
		Header:      r.block.Header,
		ChainID:     r.block.ChainID,
		Depth:       parameters.Depth,
		WriteAccess: !parameters.Static,
		Context:     r,
	}
}

func (r *runContext) codeHash(address evm.Address) evm.Hash {
	account, found := r.GetAccount(address)
	if !found || account.CodeHash == (evm.Hash{}) {
		return evm.EmptyCodeHash
	}
	return account.CodeHash
}

func createAddress(
	kind evm.CallKind,
	sender evm.Address,
	nonce uint64,
	salt evm.Hash,
	initHash evm.Hash,
) evm.Address {
	if kind == evm.Create {
		return evm.Address(crypto.CreateAddress(common.Address(sender), nonce))
	}
	return evm.Address(crypto.CreateAddress2(common.Address(sender), common.Hash(salt), initHash[:]))
}

func canTransferValue(
	state evm.WorldState,
	value evm.Value,
	sender evm.Address,
	recipient *evm.Address,
) bool {
	if value == (evm.Value{}) {
		return true
	}

	senderBalance := state.GetBalance(sender)
	if senderBalance.Cmp(value) < 0 {
		return false
	}

	if recipient == nil || sender == *recipient {
		return true
	}

	receiverBalance := state.GetBalance(*recipient)
	updatedBalance := evm.Add(receiverBalance, value)
	if updatedBalance.Cmp(receiverBalance) < 0 || updatedBalance.Cmp(value) < 0 {
		return false
	}

	return true
}

// Only to be called after canTransferValue
func transferValue(
	state evm.WorldState,
	value evm.Value,
	sender evm.Address,
	recipient evm.Address,
) {
	if value == (evm.Value{}) {
		return
	}
	if sender == recipient {
		return
	}

	senderBalance := state.GetBalance(sender)
	receiverBalance := state.GetBalance(recipient)

	state.SetBalance(sender, evm.Sub(senderBalance, value))
	state.SetBalance(recipient, evm.Add(receiverBalance, value))
}
