// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package engine

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/Fantom-foundation/evmcore/go/evm"
	"github.com/Fantom-foundation/evmcore/go/evm/vm"
	"go.uber.org/mock/gomock"
)

func newTestInterpreter(t *testing.T) *engine {
	t.Helper()
	interpreter, err := NewInterpreter(Config{WithShaCache: true})
	if err != nil {
		t.Fatalf("failed to create interpreter: %v", err)
	}
	return interpreter
}

func TestInterpreter_EmptyCodeSucceedsWithAllGas(t *testing.T) {
	interpreter := newTestInterpreter(t)
	result, err := interpreter.Execute(evm.Environment{}, 1000, evm.NewSubstate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want, got := (evm.Result{Status: evm.StatusSuccess, GasLeft: 1000}), result; want.Status != got.Status || want.GasLeft != got.GasLeft {
		t.Errorf("unexpected result, wanted %v, got %v", want, got)
	}
}

func TestInterpreter_MissingSubstateIsAnError(t *testing.T) {
	interpreter := newTestInterpreter(t)
	if _, err := interpreter.Execute(evm.Environment{}, 1000, nil); err == nil {
		t.Errorf("expected execution without substate to fail")
	}
}

func TestInterpreter_AddAndReturnProducesSum(t *testing.T) {
	code := []byte{
		byte(vm.PUSH1), 2,
		byte(vm.PUSH1), 3,
		byte(vm.ADD),
		byte(vm.PUSH1), 0,
		byte(vm.MSTORE),
		byte(vm.PUSH1), 32,
		byte(vm.PUSH1), 0,
		byte(vm.RETURN),
	}

	interpreter := newTestInterpreter(t)
	result, err := interpreter.Execute(evm.Environment{Code: code}, 100, evm.NewSubstate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want, got := evm.StatusSuccess, result.Status; want != got {
		t.Fatalf("unexpected status, wanted %v, got %v (%v)", want, got, result.Err)
	}
	want := make([]byte, 32)
	want[31] = 5
	if got := result.Output; !bytes.Equal(want, got) {
		t.Errorf("unexpected output, wanted %x, got %x", want, got)
	}
	// 7 instructions costing 3 gas each and 3 gas for one word of memory.
	if want, got := evm.Gas(100-24), result.GasLeft; want != got {
		t.Errorf("unexpected gas left, wanted %d, got %d", want, got)
	}
}

func TestInterpreter_TerminationStates(t *testing.T) {
	tests := map[string]struct {
		code    []byte
		status  evm.Status
		output  []byte
		gasLeft evm.Gas
		err     error
	}{
		"stop": {
			code:    []byte{byte(vm.STOP)},
			status:  evm.StatusSuccess,
			gasLeft: 10_000,
		},
		"end of code": {
			code:    []byte{byte(vm.PUSH1), 1},
			status:  evm.StatusSuccess,
			gasLeft: 10_000 - 3,
		},
		"revert": {
			code: []byte{
				byte(vm.PUSH1), 0xAB, byte(vm.PUSH1), 0, byte(vm.MSTORE8),
				byte(vm.PUSH1), 1, byte(vm.PUSH1), 0, byte(vm.REVERT),
			},
			status:  evm.StatusRevert,
			output:  []byte{0xAB},
			gasLeft: 10_000 - 3*5 - 3,
		},
		"invalid op code": {
			code:   []byte{byte(vm.INVALID)},
			status: evm.StatusException,
			err:    evm.ErrInvalidOpCode,
		},
		"unassigned op code": {
			code:   []byte{0x0c},
			status: evm.StatusException,
			err:    evm.ErrInvalidOpCode,
		},
		"stack underflow": {
			code:   []byte{byte(vm.ADD)},
			status: evm.StatusException,
			err:    evm.ErrStackUnderflow,
		},
		"stack overflow": {
			code:   bytes.Repeat([]byte{byte(vm.PC)}, maxStackSize+1),
			status: evm.StatusException,
			err:    evm.ErrStackOverflow,
		},
		"out of gas": {
			code:   bytes.Repeat([]byte{byte(vm.JUMPDEST)}, 10_001),
			status: evm.StatusException,
			err:    evm.ErrOutOfGas,
		},
		"invalid jump": {
			code:   []byte{byte(vm.PUSH1), 0, byte(vm.JUMP)},
			status: evm.StatusException,
			err:    evm.ErrInvalidJump,
		},
		"write in static context": {
			code:   []byte{byte(vm.PUSH1), 1, byte(vm.PUSH1), 1, byte(vm.SSTORE)},
			status: evm.StatusException,
			err:    evm.ErrWriteProtection,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			interpreter := newTestInterpreter(t)
			env := evm.Environment{Code: test.code}
			result, err := interpreter.Execute(env, 10_000, evm.NewSubstate())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if want, got := test.status, result.Status; want != got {
				t.Errorf("unexpected status, wanted %v, got %v", want, got)
			}
			if want, got := test.output, result.Output; !bytes.Equal(want, got) {
				t.Errorf("unexpected output, wanted %x, got %x", want, got)
			}
			if want, got := test.gasLeft, result.GasLeft; want != got {
				t.Errorf("unexpected gas left, wanted %d, got %d", want, got)
			}
			if want, got := test.err, result.Err; !errors.Is(got, want) {
				t.Errorf("unexpected halt reason, wanted %v, got %v", want, got)
			}
			if test.status == evm.StatusException && result.Output != nil {
				t.Errorf("exceptional halt should not produce output")
			}
		})
	}
}

func TestInterpreter_SelfdestructCanBeRevertedBySnapshot(t *testing.T) {
	ctrl := gomock.NewController(t)
	runContext := evm.NewMockRunContext(ctrl)
	runContext.EXPECT().GetBalance(gomock.Any()).Return(evm.Value{}).AnyTimes()
	runContext.EXPECT().SetBalance(gomock.Any(), gomock.Any()).AnyTimes()

	beneficiary := evm.Address{19: 0x42}
	substate := evm.NewSubstate()
	snapshot := substate.Snapshot()

	env := evm.Environment{
		Address:     evm.Address{0x01},
		Code:        []byte{byte(vm.PUSH1), 0x42, byte(vm.SELFDESTRUCT)},
		WriteAccess: true,
		Context:     runContext,
	}
	result, err := newTestInterpreter(t).Execute(env, 10_000, substate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want, got := evm.StatusSuccess, result.Status; want != got {
		t.Fatalf("unexpected status, wanted %v, got %v (%v)", want, got, result.Err)
	}
	if !substate.HasSelfDestructed(env.Address) {
		t.Fatalf("self-destruct was not recorded")
	}
	if want, got := SelfdestructRefundGas, substate.Refund(); want != got {
		t.Errorf("unexpected refund, wanted %d, got %d", want, got)
	}
	if touched := substate.Touched(); len(touched) != 1 || touched[0] != beneficiary {
		t.Errorf("beneficiary was not touched: %v", touched)
	}

	substate.RevertToSnapshot(snapshot)
	if substate.HasSelfDestructed(env.Address) {
		t.Errorf("self-destruct was not reverted")
	}
	if want, got := evm.Gas(0), substate.Refund(); want != got {
		t.Errorf("refund was not reverted, wanted %d, got %d", want, got)
	}
	if !substate.IsAccountAccessed(beneficiary) {
		t.Errorf("accessed accounts should be retained on revert")
	}
}

func TestInterpreter_CodeAnalysisIsCachedByHash(t *testing.T) {
	interpreter := newTestInterpreter(t)
	code := []byte{byte(vm.PUSH1), 3, byte(vm.JUMP), byte(vm.JUMPDEST)}
	hash := Keccak256(code)

	for i := 0; i < 2; i++ {
		env := evm.Environment{Code: code, CodeHash: &hash}
		result, err := interpreter.Execute(env, 100, evm.NewSubstate())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want, got := evm.StatusSuccess, result.Status; want != got {
			t.Errorf("unexpected status, wanted %v, got %v (%v)", want, got, result.Err)
		}
	}
	if want, got := 1, interpreter.analyzer.cache.Len(); want != got {
		t.Errorf("unexpected cache size, wanted %d, got %d", want, got)
	}
}

func TestInterpreter_CheckStackLimits(t *testing.T) {
	tests := map[vm.OpCode]struct {
		min, max int
	}{
		vm.STOP:  {0, maxStackSize},
		vm.ADD:   {2, maxStackSize + 1},
		vm.PUSH1: {0, maxStackSize - 1},
		vm.DUP16: {16, maxStackSize - 1},
		vm.SWAP1: {2, maxStackSize},
		vm.CALL:  {7, maxStackSize + 6},
	}

	for op, test := range tests {
		t.Run(op.String(), func(t *testing.T) {
			if test.min > 0 {
				if err := checkStackLimits(test.min-1, op); !errors.Is(err, evm.ErrStackUnderflow) {
					t.Errorf("expected underflow for %d elements, got %v", test.min-1, err)
				}
			}
			if err := checkStackLimits(test.min, op); err != nil {
				t.Errorf("unexpected error for %d elements: %v", test.min, err)
			}
			if err := checkStackLimits(min(test.max, maxStackSize), op); err != nil {
				t.Errorf("unexpected error for %d elements: %v", test.max, err)
			}
			if test.max < maxStackSize {
				if err := checkStackLimits(test.max+1, op); !errors.Is(err, evm.ErrStackOverflow) {
					t.Errorf("expected overflow for %d elements, got %v", test.max+1, err)
				}
			}
		})
	}
}

func TestInterpreter_generateResult_UnknownStatusIsAnError(t *testing.T) {
	if _, err := generateResult(statusRunning, &context{}); err == nil {
		t.Errorf("expected an error for a running status")
	}
}

func TestInterpreter_step_ExecutesSingleInstruction(t *testing.T) {
	c := newTestContext([]byte{byte(vm.PUSH1), 1, byte(vm.PUSH1), 2}, nil)
	defer ReturnStack(c.stack)

	if want, got := statusRunning, step(c); want != got {
		t.Fatalf("unexpected status, wanted %v, got %v", want, got)
	}
	if want, got := 2, c.pc; want != got {
		t.Errorf("unexpected pc, wanted %d, got %d", want, got)
	}
	if want, got := 1, c.stack.len(); want != got {
		t.Errorf("unexpected stack size, wanted %d, got %d", want, got)
	}
}

func TestInterpreter_FailedStepRecordsHaltReason(t *testing.T) {
	c := newTestContext([]byte{byte(vm.ADD)}, nil)
	defer ReturnStack(c.stack)

	if want, got := statusFailed, step(c); want != got {
		t.Fatalf("unexpected status, wanted %v, got %v", want, got)
	}
	if want, got := evm.ErrStackUnderflow, c.haltReason; !errors.Is(got, want) {
		t.Errorf("unexpected halt reason, wanted %v, got %v", want, got)
	}
}

func TestStatus_String(t *testing.T) {
	tests := map[status]string{
		statusRunning:        "running",
		statusStopped:        "stopped",
		statusReverted:       "reverted",
		statusReturned:       "returned",
		statusSelfDestructed: "self-destructed",
		statusFailed:         "failed",
		status(42):           "status(42)",
	}
	for status, want := range tests {
		if got := status.String(); !strings.EqualFold(want, got) {
			t.Errorf("unexpected print, wanted %q, got %q", want, got)
		}
	}
}
