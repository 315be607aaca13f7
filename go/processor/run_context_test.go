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
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/Fantom-foundation/evmcore/go/evm"
	"github.com/Fantom-foundation/evmcore/go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/mock/gomock"
)

func newTestRunContext(interpreter evm.Interpreter, accounts state.Accounts) (*runContext, *state.State) {
	s := state.New(accounts)
	return &runContext{
		WorldState:  s,
		interpreter: interpreter,
		substate:    evm.NewSubstate(),
		origin:      evm.Address{0xAA},
		gasPrice:    evm.NewValue(2),
	}, s
}

func TestRunContext_CallsBeyondMaxDepthAreRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	interpreter := evm.NewMockInterpreter(ctrl)
	context, _ := newTestRunContext(interpreter, nil)

	for _, kind := range []evm.CallKind{evm.Call, evm.Create} {
		result, err := context.Call(kind, evm.CallParameters{Depth: MaxCallDepth + 1, Gas: 100})
		if !errors.Is(err, evm.ErrDepth) {
			t.Errorf("unexpected error for %v, wanted %v, got %v", kind, evm.ErrDepth, err)
		}
		if result.Success {
			t.Errorf("call beyond max depth should not succeed")
		}
	}
}

func TestRunContext_NestedCallEnvironmentDependsOnCallKind(t *testing.T) {
	sender := evm.Address{1}
	recipient := evm.Address{2}
	codeAddress := evm.Address{3}
	recipientCode := evm.Code{0x01}
	codeAddressCode := evm.Code{0x02}

	tests := map[evm.CallKind]struct {
		recipient   evm.Address
		code        evm.Code
		writeAccess bool
	}{
		evm.Call:         {recipient, recipientCode, true},
		evm.StaticCall:   {recipient, recipientCode, false},
		evm.CallCode:     {sender, codeAddressCode, true},
		evm.DelegateCall: {sender, codeAddressCode, true},
	}

	for kind, test := range tests {
		t.Run(kind.String(), func(t *testing.T) {
			ctrl := gomock.NewController(t)
			interpreter := evm.NewMockInterpreter(ctrl)
			context, _ := newTestRunContext(interpreter, state.Accounts{
				sender:      {Balance: evm.NewValue(100)},
				recipient:   {Code: recipientCode},
				codeAddress: {Code: codeAddressCode},
			})

			codeOwner := recipient
			if kind == evm.CallCode || kind == evm.DelegateCall {
				codeOwner = codeAddress
			}
			account, _ := context.GetAccount(codeOwner)

			interpreter.EXPECT().Execute(gomock.Any(), evm.Gas(1000), context.substate).DoAndReturn(
				func(env evm.Environment, _ evm.Gas, _ *evm.Substate) (evm.Result, error) {
					if want, got := test.recipient, env.Address; want != got {
						t.Errorf("unexpected address, wanted %v, got %v", want, got)
					}
					if want, got := sender, env.Caller; want != got {
						t.Errorf("unexpected caller, wanted %v, got %v", want, got)
					}
					if want, got := context.origin, env.Origin; want != got {
						t.Errorf("unexpected origin, wanted %v, got %v", want, got)
					}
					if want, got := test.code, env.Code; !bytes.Equal(want, got) {
						t.Errorf("unexpected code, wanted %x, got %x", want, got)
					}
					if env.CodeHash == nil || *env.CodeHash != account.CodeHash {
						t.Errorf("unexpected code hash %v", env.CodeHash)
					}
					if want, got := test.writeAccess, env.WriteAccess; want != got {
						t.Errorf("unexpected write access, wanted %t, got %t", want, got)
					}
					if want, got := 3, env.Depth; want != got {
						t.Errorf("unexpected depth, wanted %d, got %d", want, got)
					}
					return evm.Result{Status: evm.StatusSuccess, GasLeft: 10, Output: []byte{1}}, nil
				})

			parameters := evm.CallParameters{
				Sender:      sender,
				Recipient:   test.recipient,
				CodeAddress: codeOwner,
				Gas:         1000,
				Depth:       3,
				Static:      kind == evm.StaticCall,
			}
			result, err := context.Call(kind, parameters)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want := evm.CallResult{Output: []byte{1}, GasLeft: 10, Success: true, Status: evm.StatusSuccess}
			if !bytes.Equal(want.Output, result.Output) || want.GasLeft != result.GasLeft || want.Success != result.Success || want.Status != result.Status {
				t.Errorf("unexpected result, wanted %v, got %v", want, result)
			}
		})
	}
}

func TestRunContext_CallTransfersValue(t *testing.T) {
	ctrl := gomock.NewController(t)
	interpreter := evm.NewMockInterpreter(ctrl)
	context, s := newTestRunContext(interpreter, state.Accounts{
		{1}: {Balance: evm.NewValue(100)},
	})

	interpreter.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any()).Return(evm.Result{Status: evm.StatusSuccess}, nil)

	_, err := context.Call(evm.Call, evm.CallParameters{
		Sender:      evm.Address{1},
		Recipient:   evm.Address{2},
		CodeAddress: evm.Address{2},
		Value:       evm.NewValue(30),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want, got := evm.NewValue(70), s.GetBalance(evm.Address{1}); want != got {
		t.Errorf("unexpected sender balance, wanted %v, got %v", want, got)
	}
	if want, got := evm.NewValue(30), s.GetBalance(evm.Address{2}); want != got {
		t.Errorf("unexpected recipient balance, wanted %v, got %v", want, got)
	}
	if touched := context.substate.Touched(); len(touched) != 1 || touched[0] != (evm.Address{2}) {
		t.Errorf("recipient was not touched: %v", touched)
	}
}

func TestRunContext_InsufficientBalanceFailsWithoutExecution(t *testing.T) {
	for _, kind := range []evm.CallKind{evm.Call, evm.CallCode, evm.Create, evm.Create2} {
		t.Run(kind.String(), func(t *testing.T) {
			ctrl := gomock.NewController(t)
			interpreter := evm.NewMockInterpreter(ctrl)
			context, s := newTestRunContext(interpreter, state.Accounts{
				{1}: {Balance: evm.NewValue(10)},
			})

			result, err := context.Call(kind, evm.CallParameters{
				Sender:    evm.Address{1},
				Recipient: evm.Address{2},
				Value:     evm.NewValue(20),
				Gas:       1000,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Success {
				t.Errorf("call should fail")
			}
			if want, got := evm.Gas(1000), result.GasLeft; want != got {
				t.Errorf("forwarded gas should be returned, wanted %d, got %d", want, got)
			}
			if want, got := evm.StatusRevert, result.Status; want != got {
				t.Errorf("unexpected status, wanted %v, got %v", want, got)
			}
			if want, got := uint64(0), s.GetNonce(evm.Address{1}); want != got {
				t.Errorf("unexpected nonce, wanted %d, got %d", want, got)
			}
		})
	}
}

func TestRunContext_UnsuccessfulCallsRevertChanges(t *testing.T) {
	tests := map[string]struct {
		result  evm.Result
		gasLeft evm.Gas
		output  []byte
		status  evm.Status
	}{
		"revert": {
			result:  evm.Result{Status: evm.StatusRevert, GasLeft: 50, Output: []byte{1, 2}},
			gasLeft: 50,
			output:  []byte{1, 2},
			status:  evm.StatusRevert,
		},
		"exception": {
			result: evm.Result{Status: evm.StatusException, Err: evm.ErrOutOfGas},
			status: evm.StatusException,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			interpreter := evm.NewMockInterpreter(ctrl)
			context, s := newTestRunContext(interpreter, state.Accounts{
				{1}: {Balance: evm.NewValue(100)},
			})

			interpreter.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
				func(env evm.Environment, _ evm.Gas, substate *evm.Substate) (evm.Result, error) {
					env.Context.SetStorage(env.Address, evm.Key{1}, evm.Word{1})
					substate.AddLog(evm.Log{Address: env.Address})
					substate.AddRefund(100)
					return test.result, nil
				})

			result, err := context.Call(evm.Call, evm.CallParameters{
				Sender:      evm.Address{1},
				Recipient:   evm.Address{2},
				CodeAddress: evm.Address{2},
				Value:       evm.NewValue(10),
				Gas:         100,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Success {
				t.Errorf("call should not succeed")
			}
			if want, got := test.status, result.Status; want != got {
				t.Errorf("unexpected status, wanted %v, got %v", want, got)
			}
			if want, got := test.gasLeft, result.GasLeft; want != got {
				t.Errorf("unexpected gas left, wanted %d, got %d", want, got)
			}
			if want, got := test.output, result.Output; !bytes.Equal(want, got) {
				t.Errorf("unexpected output, wanted %x, got %x", want, got)
			}
			if want, got := evm.NewValue(100), s.GetBalance(evm.Address{1}); want != got {
				t.Errorf("value transfer was not reverted, wanted %v, got %v", want, got)
			}
			if want, got := (evm.Word{}), s.GetStorage(evm.Address{2}, evm.Key{1}); want != got {
				t.Errorf("storage update was not reverted")
			}
			if len(context.substate.Logs()) != 0 || context.substate.Refund() != 0 {
				t.Errorf("substate was not reverted")
			}
		})
	}
}

func TestRunContext_InterpreterErrorsArePropagated(t *testing.T) {
	ctrl := gomock.NewController(t)
	interpreter := evm.NewMockInterpreter(ctrl)
	context, _ := newTestRunContext(interpreter, nil)

	injected := errors.New("injected")
	interpreter.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any()).Return(evm.Result{}, injected)

	if _, err := context.Call(evm.Call, evm.CallParameters{}); !errors.Is(err, injected) {
		t.Errorf("unexpected error, wanted %v, got %v", injected, err)
	}
}

func TestRunContext_CreateDerivesAddressFromSenderAndNonce(t *testing.T) {
	sender := evm.Address{1}
	initCode := evm.Code{0x60, 0x00}
	salt := evm.Hash{0x42}

	tests := map[evm.CallKind]evm.Address{
		evm.Create:  evm.Address(crypto.CreateAddress(common.Address(sender), 5)),
		evm.Create2: evm.Address(crypto.CreateAddress2(common.Address(sender), common.Hash(salt), crypto.Keccak256(initCode))),
	}

	for kind, want := range tests {
		t.Run(kind.String(), func(t *testing.T) {
			ctrl := gomock.NewController(t)
			interpreter := evm.NewMockInterpreter(ctrl)
			context, s := newTestRunContext(interpreter, state.Accounts{
				sender: {Nonce: 5, Balance: evm.NewValue(100)},
			})

			interpreter.EXPECT().Execute(gomock.Any(), evm.Gas(10_000), gomock.Any()).DoAndReturn(
				func(env evm.Environment, _ evm.Gas, _ *evm.Substate) (evm.Result, error) {
					if want, got := initCode, env.Code; !bytes.Equal(want, got) {
						t.Errorf("unexpected code, wanted %x, got %x", want, got)
					}
					if len(env.Input) != 0 {
						t.Errorf("init code should run without input")
					}
					if want, got := evm.NewValue(7), s.GetBalance(env.Address); want != got {
						t.Errorf("value was not transferred, wanted %v, got %v", want, got)
					}
					return evm.Result{Status: evm.StatusSuccess, GasLeft: 5000, Output: []byte{0xAB, 0xCD}}, nil
				})

			result, err := context.Call(kind, evm.CallParameters{
				Sender: sender,
				Value:  evm.NewValue(7),
				Input:  evm.Data(initCode),
				Gas:    10_000,
				Salt:   salt,
				Depth:  1,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.Success {
				t.Fatalf("create should succeed")
			}
			if got := result.CreatedAddress; want != got {
				t.Errorf("unexpected address, wanted %v, got %v", want, got)
			}
			if want, got := evm.Gas(5000-2*CodeDepositGas), result.GasLeft; want != got {
				t.Errorf("unexpected gas left, wanted %d, got %d", want, got)
			}
			if want, got := (evm.Code{0xAB, 0xCD}), s.GetCode(result.CreatedAddress); !bytes.Equal(want, got) {
				t.Errorf("unexpected deployed code, wanted %x, got %x", want, got)
			}
			if want, got := uint64(1), s.GetNonce(result.CreatedAddress); want != got {
				t.Errorf("unexpected nonce of new account, wanted %d, got %d", want, got)
			}
			if want, got := uint64(6), s.GetNonce(sender); want != got {
				t.Errorf("unexpected nonce of sender, wanted %d, got %d", want, got)
			}
			if !context.substate.IsAccountAccessed(result.CreatedAddress) {
				t.Errorf("created address should be warm")
			}
		})
	}
}

func TestRunContext_CreateFailures(t *testing.T) {
	sender := evm.Address{1}
	target := evm.Address(crypto.CreateAddress(common.Address(sender), 0))

	tests := map[string]struct {
		accounts state.Accounts
		result   evm.Result
		want     evm.CallResult
		executed bool
	}{
		"address collision by nonce": {
			accounts: state.Accounts{target: {Nonce: 1}},
			want:     evm.CallResult{Status: evm.StatusException},
		},
		"address collision by code": {
			accounts: state.Accounts{target: {Code: evm.Code{0x00}}},
			want:     evm.CallResult{Status: evm.StatusException},
		},
		"reverted init code": {
			result:   evm.Result{Status: evm.StatusRevert, GasLeft: 40, Output: []byte{1}},
			want:     evm.CallResult{GasLeft: 40, Output: []byte{1}, Status: evm.StatusRevert},
			executed: true,
		},
		"failing init code": {
			result:   evm.Result{Status: evm.StatusException, Err: evm.ErrInvalidOpCode},
			want:     evm.CallResult{Status: evm.StatusException},
			executed: true,
		},
		"code too large": {
			result:   evm.Result{Status: evm.StatusSuccess, GasLeft: 10_000_000, Output: make([]byte, MaxCodeSize+1)},
			want:     evm.CallResult{Status: evm.StatusException},
			executed: true,
		},
		"insufficient gas for code deposit": {
			result:   evm.Result{Status: evm.StatusSuccess, GasLeft: CodeDepositGas - 1, Output: []byte{1}},
			want:     evm.CallResult{Status: evm.StatusException},
			executed: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			interpreter := evm.NewMockInterpreter(ctrl)
			if test.executed {
				interpreter.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any()).Return(test.result, nil)
			}
			accounts := test.accounts.Clone()
			if accounts == nil {
				accounts = state.Accounts{}
			}
			accounts[sender] = state.Account{Balance: evm.NewValue(100)}
			context, s := newTestRunContext(interpreter, accounts)

			result, err := context.Call(evm.Create, evm.CallParameters{
				Sender: sender,
				Value:  evm.NewValue(10),
				Gas:    100_000,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Success {
				t.Errorf("create should fail")
			}
			if want, got := test.want.Status, result.Status; want != got {
				t.Errorf("unexpected status, wanted %v, got %v", want, got)
			}
			if want, got := test.want.GasLeft, result.GasLeft; want != got {
				t.Errorf("unexpected gas left, wanted %d, got %d", want, got)
			}
			if want, got := test.want.Output, result.Output; !bytes.Equal(want, got) {
				t.Errorf("unexpected output, wanted %x, got %x", want, got)
			}
			if want, got := evm.NewValue(100), s.GetBalance(sender); want != got {
				t.Errorf("value transfer was not reverted, wanted %v, got %v", want, got)
			}
			if want, got := uint64(1), s.GetNonce(sender); want != got {
				t.Errorf("sender nonce should be incremented, wanted %d, got %d", want, got)
			}
			if got := s.GetCode(target); len(got) != 0 && name != "address collision by code" {
				t.Errorf("no code should be deployed, got %x", got)
			}
		})
	}
}

func TestRunContext_GetBlockHash(t *testing.T) {
	context, _ := newTestRunContext(nil, nil)
	if want, got := (evm.Hash{}), context.GetBlockHash(12); want != got {
		t.Errorf("unexpected hash without resolver, wanted %v, got %v", want, got)
	}
	context.block.GetHash = func(number uint64) evm.Hash {
		return evm.Hash{byte(number)}
	}
	if want, got := (evm.Hash{12}), context.GetBlockHash(12); want != got {
		t.Errorf("unexpected hash, wanted %v, got %v", want, got)
	}
}

func TestCanTransferValue(t *testing.T) {
	maxValue := evm.NewValue(math.MaxUint64, math.MaxUint64, math.MaxUint64, math.MaxUint64)
	tests := map[string]struct {
		value     evm.Value
		sender    evm.Value
		recipient evm.Value
		self      bool
		want      bool
	}{
		"zero value":           {want: true},
		"sufficient balance":   {value: evm.NewValue(5), sender: evm.NewValue(5), want: true},
		"insufficient balance": {value: evm.NewValue(6), sender: evm.NewValue(5)},
		"recipient overflow":   {value: evm.NewValue(1), sender: evm.NewValue(1), recipient: maxValue},
		"self transfer at max": {value: evm.NewValue(1), sender: maxValue, self: true, want: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			sender, recipient := evm.Address{1}, evm.Address{2}
			if test.self {
				recipient = sender
			}
			s := state.New(state.Accounts{
				{1}: {Balance: test.sender},
				{2}: {Balance: test.recipient},
			})
			if got := canTransferValue(s, test.value, sender, &recipient); test.want != got {
				t.Errorf("unexpected result, wanted %t, got %t", test.want, got)
			}
		})
	}
}
