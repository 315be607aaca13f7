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
	"fmt"

	"github.com/Fantom-foundation/evmcore/go/evm"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
)

const (
	TxGas                     = 21_000
	TxGasContractCreation     = 53_000
	TxDataNonZeroGasEIP2028   = 16
	TxDataZeroGasEIP2028      = 4
	TxAccessListAddressGas    = 2400
	TxAccessListStorageKeyGas = 1900
)

// Reasons for a transaction to be rejected. Rejected transactions do not
// modify the world state.
const (
	ErrNonceMismatch       = evm.ConstError("nonce mismatch")
	ErrNonceOverflow       = evm.ConstError("nonce overflow")
	ErrInsufficientFunds   = evm.ConstError("insufficient funds for gas * price + value")
	ErrIntrinsicGasTooHigh = evm.ConstError("intrinsic gas exceeds gas limit")
)

// Name is the name under which the processor is registered.
const Name = "evmcore"

func init() {
	evm.RegisterProcessorFactory(Name, NewProcessor)
}

// NewProcessor creates a transaction processor running contract code on
// the given interpreter.
func NewProcessor(interpreter evm.Interpreter) evm.Processor {
	return &processor{
		interpreter: interpreter,
	}
}

type processor struct {
	interpreter evm.Interpreter
}

func (p *processor) Run(
	block evm.BlockContext,
	transaction evm.Transaction,
	state evm.WorldState,
) (evm.Receipt, error) {
	if err := checkNonce(transaction, state); err != nil {
		return evm.Receipt{}, err
	}

	intrinsicGas := setupGasBilling(transaction)
	if transaction.GasLimit < intrinsicGas {
		return evm.Receipt{}, fmt.Errorf("%w: %d > %d", ErrIntrinsicGasTooHigh, intrinsicGas, transaction.GasLimit)
	}

	if err := buyGas(transaction, state); err != nil {
		return evm.Receipt{}, err
	}
	gas := transaction.GasLimit - intrinsicGas

	substate := evm.NewSubstate()
	warmUp(transaction, substate)

	context := &runContext{
		WorldState:  state,
		interpreter: p.interpreter,
		substate:    substate,
		block:       block,
		origin:      transaction.Sender,
		gasPrice:    transaction.GasPrice,
	}

	parameters := evm.CallParameters{
		Sender: transaction.Sender,
		Value:  transaction.Value,
		Input:  transaction.Input,
		Gas:    gas,
	}

	var result evm.CallResult
	var err error
	isCreate := transaction.Recipient == nil
	if isCreate {
		result, err = context.Call(evm.Create, parameters)
	} else {
		state.IncrementNonce(transaction.Sender)
		parameters.Recipient = *transaction.Recipient
		parameters.CodeAddress = *transaction.Recipient
		result, err = context.Call(evm.Call, parameters)
	}
	if err != nil {
		return evm.Receipt{}, fmt.Errorf("failed to execute transaction: %w", err)
	}

	gasLeft := result.GasLeft
	gasUsed := transaction.GasLimit - gasLeft
	refund := min(substate.Refund(), gasUsed/2)
	gasLeft += refund
	gasUsed -= refund

	refundGas(transaction, state, gasLeft)
	payCoinbase(block, transaction, state, substate, gasUsed)
	finalize(state, substate)

	receipt := evm.Receipt{
		Status:  getStatus(result),
		Output:  result.Output,
		GasUsed: gasUsed,
		Logs:    substate.Logs(),
	}
	if isCreate && result.Success {
		address := result.CreatedAddress
		receipt.ContractAddress = &address
		receipt.Output = nil
	}

	log.Debug("Transaction executed", "sender", transaction.Sender, "nonce", transaction.Nonce,
		"status", receipt.Status, "gasUsed", gasUsed, "refund", refund, "logs", len(receipt.Logs))
	return receipt, nil
}

// getStatus returns the status of the outermost frame.
func getStatus(result evm.CallResult) evm.Status {
	if result.Success {
		return evm.StatusSuccess
	}
	if result.Status == evm.StatusSuccess {
		return evm.StatusException
	}
	return result.Status
}

func setupGasBilling(transaction evm.Transaction) evm.Gas {
	var gas evm.Gas
	if transaction.Recipient == nil {
		gas = TxGasContractCreation
	} else {
		gas = TxGas
	}

	if len(transaction.Input) > 0 {
		nonZeroBytes := evm.Gas(0)
		for _, inputByte := range transaction.Input {
			if inputByte != 0 {
				nonZeroBytes++
			}
		}
		zeroBytes := evm.Gas(len(transaction.Input)) - nonZeroBytes
		gas += zeroBytes * TxDataZeroGasEIP2028
		gas += nonZeroBytes * TxDataNonZeroGasEIP2028
	}

	// The computation can not overflow for inputs of any realistic size.
	gas += evm.Gas(len(transaction.AccessList)) * TxAccessListAddressGas
	for _, accessTuple := range transaction.AccessList {
		gas += evm.Gas(len(accessTuple.Keys)) * TxAccessListStorageKeyGas
	}

	return gas
}

func checkNonce(transaction evm.Transaction, state evm.WorldState) error {
	account, _ := state.GetAccount(transaction.Sender)
	if account.Nonce != transaction.Nonce {
		return fmt.Errorf("%w: state %d, transaction %d", ErrNonceMismatch, account.Nonce, transaction.Nonce)
	}
	if account.Nonce+1 < account.Nonce {
		return ErrNonceOverflow
	}
	return nil
}

// buyGas charges the sender for the full gas limit after checking that the
// value to be transferred is affordable as well.
func buyGas(transaction evm.Transaction, state evm.WorldState) error {
	gasPrice := transaction.GasPrice.ToUint256()
	cost, overflow := new(uint256.Int).MulOverflow(gasPrice, uint256.NewInt(uint64(transaction.GasLimit)))
	if overflow {
		return fmt.Errorf("%w: gas cost overflow", ErrInsufficientFunds)
	}
	total, overflow := new(uint256.Int).AddOverflow(cost, transaction.Value.ToUint256())
	if overflow {
		return fmt.Errorf("%w: total cost overflow", ErrInsufficientFunds)
	}

	balance := state.GetBalance(transaction.Sender)
	if balance.ToUint256().Lt(total) {
		return fmt.Errorf("%w: %v < %v", ErrInsufficientFunds, balance, total)
	}

	state.SetBalance(transaction.Sender, evm.Sub(balance, evm.ValueFromUint256(cost)))
	return nil
}

// warmUp marks the accounts and storage slots that are warm from the start
// of the transaction (EIP-2929, EIP-2930).
func warmUp(transaction evm.Transaction, substate *evm.Substate) {
	substate.AccessAccount(transaction.Sender)
	if transaction.Recipient != nil {
		substate.AccessAccount(*transaction.Recipient)
	}
	for _, address := range evm.PrecompiledAddresses() {
		substate.AccessAccount(address)
	}
	for _, tuple := range transaction.AccessList {
		substate.AccessAccount(tuple.Address)
		for _, key := range tuple.Keys {
			substate.AccessStorage(tuple.Address, key)
		}
	}
}

func refundGas(transaction evm.Transaction, state evm.WorldState, gasLeft evm.Gas) {
	refund := transaction.GasPrice.Scale(uint64(gasLeft))
	state.SetBalance(transaction.Sender, evm.Add(state.GetBalance(transaction.Sender), refund))
}

func payCoinbase(block evm.BlockContext, transaction evm.Transaction, state evm.WorldState, substate *evm.Substate, gasUsed evm.Gas) {
	coinbase := block.Header.Coinbase
	fee := transaction.GasPrice.Scale(uint64(gasUsed))
	state.SetBalance(coinbase, evm.Add(state.GetBalance(coinbase), fee))
	substate.Touch(coinbase)
}

// finalize deletes self-destructed accounts and touched empty accounts
// (EIP-161).
func finalize(state evm.WorldState, substate *evm.Substate) {
	for _, address := range substate.SelfDestructs() {
		state.DeleteAccount(address)
	}
	for _, address := range substate.Touched() {
		if account, found := state.GetAccount(address); found && account.IsEmpty() {
			state.DeleteAccount(address)
		}
	}
}
