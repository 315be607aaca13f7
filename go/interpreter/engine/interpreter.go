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
	"fmt"

	"github.com/Fantom-foundation/evmcore/go/evm"
	"github.com/Fantom-foundation/evmcore/go/evm/vm"
	"github.com/holiman/uint256"
)

// status is enumeration of the execution state of an interpreter run.
type status byte

const (
	statusRunning        status = iota // < all fine, ops are processed
	statusStopped                      // < execution stopped with a STOP or by reaching the end of the code
	statusReverted                     // < execution stopped with a REVERT
	statusReturned                     // < execution stopped with a RETURN
	statusSelfDestructed               // < execution stopped with a SELFDESTRUCT
	statusFailed                       // < execution stopped with an exceptional halt
)

func (s status) String() string {
	switch s {
	case statusRunning:
		return "running"
	case statusStopped:
		return "stopped"
	case statusReverted:
		return "reverted"
	case statusReturned:
		return "returned"
	case statusSelfDestructed:
		return "self-destructed"
	case statusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", s)
}

// context is the machine state of a single call frame. It contains the
// environment of the frame, the code and its analysis, and the mutable
// execution state: program counter, gas, stack and memory. For each
// contract execution, a new context is created.
type context struct {
	// Inputs
	env      evm.Environment
	context  evm.RunContext
	substate *evm.Substate
	code     []byte
	analysis bitvec

	// Execution state
	pc     int
	gas    evm.Gas
	stack  *Stack
	memory *Memory

	// returnData is the output of the last nested call.
	returnData []byte
	// output is the data produced by RETURN or REVERT.
	output []byte
	// haltReason is the cause of an exceptional halt.
	haltReason error

	// Configuration flags
	withShaCache bool
}

// useGas reduces the gas level by the given amount. If not enough gas is
// available, ErrOutOfGas is returned and the gas level is not modified.
func (c *context) useGas(amount evm.Gas) error {
	if c.gas < amount {
		return evm.ErrOutOfGas
	}
	c.gas -= amount
	return nil
}

// expandMemory charges for and performs the growth of the memory needed to
// access the given range. It returns the range as 64-bit values. Empty
// ranges are reported as (0, 0) independently of their offset.
func (c *context) expandMemory(offset, size *uint256.Int) (uint64, uint64, error) {
	if size.IsZero() {
		return 0, 0, nil
	}
	if !offset.IsUint64() || !size.IsUint64() {
		return 0, 0, evm.ErrGasUintOverflow
	}
	offset64, size64 := offset.Uint64(), size.Uint64()
	if err := c.chargeMemory(offset64, size64); err != nil {
		return 0, 0, err
	}
	return offset64, size64, nil
}

// chargeMemory charges for and performs the growth of the memory needed to
// access [offset, offset+size).
func (c *context) chargeMemory(offset, size uint64) error {
	cost, err := c.memory.ExpansionCost(offset, size)
	if err != nil {
		return err
	}
	if err := c.useGas(cost); err != nil {
		return err
	}
	c.memory.expand(offset, size)
	return nil
}

// --- Interpreter ---

type runner interface {
	// run executes the contract code in the given context.
	// It returns the status of the execution:
	// - Any exceptional halt of the contract execution shall return
	//   statusFailed and record the reason in the context.
	// - error is reserved to return runtime errors, which are not valid states
	// and may not be recoverable.
	run(*context) (status, error)
}

type interpreterConfig struct {
	withShaCache bool
	runner       runner
}

func run(
	config interpreterConfig,
	env evm.Environment,
	gas evm.Gas,
	substate *evm.Substate,
	analysis bitvec,
) (evm.Result, error) {
	// Don't bother with the execution if there's no code.
	if len(env.Code) == 0 {
		return evm.Result{
			Status:  evm.StatusSuccess,
			GasLeft: gas,
		}, nil
	}

	var ctxt = context{
		env:          env,
		context:      env.Context,
		substate:     substate,
		code:         env.Code,
		analysis:     analysis,
		gas:          gas,
		stack:        NewStack(),
		memory:       NewMemory(),
		withShaCache: config.withShaCache,
	}
	defer ReturnStack(ctxt.stack)

	if config.runner == nil {
		config.runner = vanillaRunner{}
	}
	status, err := config.runner.run(&ctxt)
	if err != nil {
		return evm.Result{}, err
	}

	return generateResult(status, &ctxt)
}

func generateResult(status status, ctxt *context) (evm.Result, error) {
	switch status {
	case statusStopped, statusSelfDestructed:
		return evm.Result{
			Status:  evm.StatusSuccess,
			GasLeft: ctxt.gas,
		}, nil
	case statusReturned:
		return evm.Result{
			Status:  evm.StatusSuccess,
			Output:  ctxt.output,
			GasLeft: ctxt.gas,
		}, nil
	case statusReverted:
		return evm.Result{
			Status:  evm.StatusRevert,
			Output:  ctxt.output,
			GasLeft: ctxt.gas,
		}, nil
	case statusFailed:
		return evm.Result{
			Status: evm.StatusException,
			Err:    ctxt.haltReason,
		}, nil
	default:
		return evm.Result{}, fmt.Errorf("unexpected error in interpreter, unknown status: %v", status)
	}
}

// --- Runners ---

// vanillaRunner is the default runner that executes the contract code without
// any additional features.
type vanillaRunner struct{}

func (r vanillaRunner) run(c *context) (status, error) {
	return execute(c, false), nil
}

// --- Execution ---

// execute runs the contract code in the given context. If oneStepOnly is true,
// only the instruction pointed to by the program counter will be executed.
// If the contract execution yields any execution violation (i.e. out of gas,
// stack underflow, etc), the function returns statusFailed and records the
// violation in the context.
func execute(c *context, oneStepOnly bool) status {
	status, err := steps(c, oneStepOnly)
	if err != nil {
		c.haltReason = err
		return statusFailed
	}
	return status
}

// step executes the instruction pointed to by the program counter.
func step(c *context) status {
	return execute(c, true)
}

// stackLimits defines the stack usage of a single OpCode.
type stackLimits struct {
	min int // The minimum stack size required by an OpCode.
	max int // The maximum stack size allowed before running an OpCode.
}

var precomputedStackLimits = func() (res [256]stackLimits) {
	for i := range res {
		info := vm.Info(vm.OpCode(i))
		res[i] = stackLimits{
			min: info.Delta,
			max: maxStackSize + info.Delta - info.Alpha,
		}
	}
	return
}()

// checkStackLimits checks that the opCode will not make an out of bounds access
// with the current stack size.
func checkStackLimits(stackLen int, op vm.OpCode) error {
	limits := precomputedStackLimits[op]
	if stackLen < limits.min {
		return evm.ErrStackUnderflow
	}
	if stackLen > limits.max {
		return evm.ErrStackOverflow
	}
	return nil
}

var staticGasPrices = func() (res [256]evm.Gas) {
	for i := range res {
		res[i] = vm.Info(vm.OpCode(i)).StaticGas
	}
	return
}()

// steps executes the contract code in the given context. If oneStepOnly is
// true, only the instruction pointed to by the program counter is executed.
// It returns the status of the execution and the reason of an exceptional
// halt, if any.
func steps(c *context, oneStepOnly bool) (status, error) {
	status := statusRunning
	for status == statusRunning {
		if c.pc >= len(c.code) {
			return statusStopped, nil
		}

		op := vm.OpCode(c.code[c.pc])
		if !vm.IsValid(op) {
			return status, evm.ErrInvalidOpCode
		}

		// Check stack boundary for every instruction
		if err := checkStackLimits(c.stack.len(), op); err != nil {
			return status, err
		}

		// Consume static gas price for instruction before execution
		if err := c.useGas(staticGasPrices[op]); err != nil {
			return status, err
		}

		var err error

		// Execute instruction
		switch op {
		case vm.STOP:
			status = statusStopped
		case vm.ADD:
			opAdd(c)
		case vm.MUL:
			opMul(c)
		case vm.SUB:
			opSub(c)
		case vm.DIV:
			opDiv(c)
		case vm.SDIV:
			opSDiv(c)
		case vm.MOD:
			opMod(c)
		case vm.SMOD:
			opSMod(c)
		case vm.ADDMOD:
			opAddMod(c)
		case vm.MULMOD:
			opMulMod(c)
		case vm.EXP:
			err = opExp(c)
		case vm.SIGNEXTEND:
			opSignExtend(c)
		case vm.LT:
			opLt(c)
		case vm.GT:
			opGt(c)
		case vm.SLT:
			opSlt(c)
		case vm.SGT:
			opSgt(c)
		case vm.EQ:
			opEq(c)
		case vm.ISZERO:
			opIszero(c)
		case vm.AND:
			opAnd(c)
		case vm.OR:
			opOr(c)
		case vm.XOR:
			opXor(c)
		case vm.NOT:
			opNot(c)
		case vm.BYTE:
			opByte(c)
		case vm.SHL:
			opShl(c)
		case vm.SHR:
			opShr(c)
		case vm.SAR:
			opSar(c)
		case vm.SHA3:
			err = opSha3(c)
		case vm.ADDRESS:
			opAddress(c)
		case vm.BALANCE:
			err = opBalance(c)
		case vm.ORIGIN:
			opOrigin(c)
		case vm.CALLER:
			opCaller(c)
		case vm.CALLVALUE:
			opCallvalue(c)
		case vm.CALLDATALOAD:
			opCallDataload(c)
		case vm.CALLDATASIZE:
			opCallDatasize(c)
		case vm.CALLDATACOPY:
			err = genericDataCopy(c, c.env.Input)
		case vm.CODESIZE:
			opCodeSize(c)
		case vm.CODECOPY:
			err = genericDataCopy(c, c.code)
		case vm.GASPRICE:
			opGasPrice(c)
		case vm.EXTCODESIZE:
			err = opExtcodesize(c)
		case vm.EXTCODECOPY:
			err = opExtCodeCopy(c)
		case vm.RETURNDATASIZE:
			opReturnDataSize(c)
		case vm.RETURNDATACOPY:
			err = opReturnDataCopy(c)
		case vm.EXTCODEHASH:
			err = opExtcodehash(c)
		case vm.BLOCKHASH:
			opBlockhash(c)
		case vm.COINBASE:
			opCoinbase(c)
		case vm.TIMESTAMP:
			opTimestamp(c)
		case vm.NUMBER:
			opNumber(c)
		case vm.DIFFICULTY:
			opDifficulty(c)
		case vm.GASLIMIT:
			opGasLimit(c)
		case vm.CHAINID:
			opChainId(c)
		case vm.SELFBALANCE:
			opSelfbalance(c)
		case vm.POP:
			opPop(c)
		case vm.MLOAD:
			err = opMload(c)
		case vm.MSTORE:
			err = opMstore(c)
		case vm.MSTORE8:
			err = opMstore8(c)
		case vm.SLOAD:
			err = opSload(c)
		case vm.SSTORE:
			err = opSstore(c)
		case vm.JUMP:
			err = opJump(c)
		case vm.JUMPI:
			err = opJumpi(c)
		case vm.PC:
			opPc(c)
		case vm.MSIZE:
			opMsize(c)
		case vm.GAS:
			opGas(c)
		case vm.JUMPDEST:
			// nothing
		case vm.RETURN:
			err = opEndWithResult(c)
			status = statusReturned
		case vm.REVERT:
			err = opEndWithResult(c)
			status = statusReverted
		case vm.CREATE:
			err = genericCreate(c, evm.Create)
		case vm.CREATE2:
			err = genericCreate(c, evm.Create2)
		case vm.CALL:
			err = opCall(c)
		case vm.CALLCODE:
			err = genericCall(c, evm.CallCode)
		case vm.DELEGATECALL:
			err = genericCall(c, evm.DelegateCall)
		case vm.STATICCALL:
			err = genericCall(c, evm.StaticCall)
		case vm.SELFDESTRUCT:
			status, err = opSelfdestruct(c)
		default:
			switch {
			case vm.IsPush(op):
				opPush(c, int(op-vm.PUSH1)+1)
			case vm.DUP1 <= op && op <= vm.DUP16:
				opDup(c, int(op-vm.DUP1)+1)
			case vm.SWAP1 <= op && op <= vm.SWAP16:
				opSwap(c, int(op-vm.SWAP1)+1)
			case vm.LOG0 <= op && op <= vm.LOG4:
				err = opLog(c, int(op-vm.LOG0))
			default:
				err = evm.ErrInvalidOpCode
			}
		}

		if err != nil {
			return status, err
		}

		c.pc++

		if oneStepOnly {
			return status, nil
		}
	}
	return status, nil
}
