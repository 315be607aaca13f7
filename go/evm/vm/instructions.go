// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package vm

import (
	"fmt"

	"github.com/Fantom-foundation/evmcore/go/evm"
)

// InstructionInfo describes the static properties of an instruction.
type InstructionInfo struct {
	Name string
	// Delta is the number of stack items consumed by the instruction.
	Delta int
	// Alpha is the number of stack items produced by the instruction.
	Alpha int
	// Immediate is the number of code bytes following the opcode that are
	// part of the instruction.
	Immediate int
	// StaticGas is charged before any dynamic costs are computed.
	StaticGas evm.Gas
	Valid     bool
}

// Info returns the static properties of the given instruction. Unassigned
// byte values are reported as invalid, like INVALID itself.
func Info(op OpCode) InstructionInfo {
	return table[op]
}

// Static gas costs.
const (
	GasZero      evm.Gas = 0
	GasBase      evm.Gas = 2
	GasVeryLow   evm.Gas = 3
	GasLow       evm.Gas = 5
	GasMid       evm.Gas = 8
	GasHigh      evm.Gas = 10
	GasJumpDest  evm.Gas = 1
	GasExp       evm.Gas = 10
	GasSha3      evm.Gas = 30
	GasBlockHash evm.Gas = 20

	GasWarmAccess   evm.Gas = 100
	GasLog          evm.Gas = 375
	GasCreate       evm.Gas = 32000
	GasSelfDestruct evm.Gas = 5000
)

var table = newInstructionTable()

func newInstructionTable() [256]InstructionInfo {
	var res [256]InstructionInfo

	set := func(op OpCode, name string, delta, alpha int, gas evm.Gas) {
		res[op] = InstructionInfo{
			Name:      name,
			Delta:     delta,
			Alpha:     alpha,
			StaticGas: gas,
			Valid:     true,
		}
	}

	set(STOP, "STOP", 0, 0, GasZero)
	set(ADD, "ADD", 2, 1, GasVeryLow)
	set(MUL, "MUL", 2, 1, GasLow)
	set(SUB, "SUB", 2, 1, GasVeryLow)
	set(DIV, "DIV", 2, 1, GasLow)
	set(SDIV, "SDIV", 2, 1, GasLow)
	set(MOD, "MOD", 2, 1, GasLow)
	set(SMOD, "SMOD", 2, 1, GasLow)
	set(ADDMOD, "ADDMOD", 3, 1, GasMid)
	set(MULMOD, "MULMOD", 3, 1, GasMid)
	set(EXP, "EXP", 2, 1, GasExp)
	set(SIGNEXTEND, "SIGNEXTEND", 2, 1, GasLow)

	set(LT, "LT", 2, 1, GasVeryLow)
	set(GT, "GT", 2, 1, GasVeryLow)
	set(SLT, "SLT", 2, 1, GasVeryLow)
	set(SGT, "SGT", 2, 1, GasVeryLow)
	set(EQ, "EQ", 2, 1, GasVeryLow)
	set(ISZERO, "ISZERO", 1, 1, GasVeryLow)
	set(AND, "AND", 2, 1, GasVeryLow)
	set(OR, "OR", 2, 1, GasVeryLow)
	set(XOR, "XOR", 2, 1, GasVeryLow)
	set(NOT, "NOT", 1, 1, GasVeryLow)
	set(BYTE, "BYTE", 2, 1, GasVeryLow)
	set(SHL, "SHL", 2, 1, GasVeryLow)
	set(SHR, "SHR", 2, 1, GasVeryLow)
	set(SAR, "SAR", 2, 1, GasVeryLow)

	set(SHA3, "SHA3", 2, 1, GasSha3)

	set(ADDRESS, "ADDRESS", 0, 1, GasBase)
	set(BALANCE, "BALANCE", 1, 1, GasWarmAccess)
	set(ORIGIN, "ORIGIN", 0, 1, GasBase)
	set(CALLER, "CALLER", 0, 1, GasBase)
	set(CALLVALUE, "CALLVALUE", 0, 1, GasBase)
	set(CALLDATALOAD, "CALLDATALOAD", 1, 1, GasVeryLow)
	set(CALLDATASIZE, "CALLDATASIZE", 0, 1, GasBase)
	set(CALLDATACOPY, "CALLDATACOPY", 3, 0, GasVeryLow)
	set(CODESIZE, "CODESIZE", 0, 1, GasBase)
	set(CODECOPY, "CODECOPY", 3, 0, GasVeryLow)
	set(GASPRICE, "GASPRICE", 0, 1, GasBase)
	set(EXTCODESIZE, "EXTCODESIZE", 1, 1, GasWarmAccess)
	set(EXTCODECOPY, "EXTCODECOPY", 4, 0, GasWarmAccess)
	set(RETURNDATASIZE, "RETURNDATASIZE", 0, 1, GasBase)
	set(RETURNDATACOPY, "RETURNDATACOPY", 3, 0, GasVeryLow)
	set(EXTCODEHASH, "EXTCODEHASH", 1, 1, GasWarmAccess)

	set(BLOCKHASH, "BLOCKHASH", 1, 1, GasBlockHash)
	set(COINBASE, "COINBASE", 0, 1, GasBase)
	set(TIMESTAMP, "TIMESTAMP", 0, 1, GasBase)
	set(NUMBER, "NUMBER", 0, 1, GasBase)
	set(DIFFICULTY, "DIFFICULTY", 0, 1, GasBase)
	set(GASLIMIT, "GASLIMIT", 0, 1, GasBase)
	set(CHAINID, "CHAINID", 0, 1, GasBase)
	set(SELFBALANCE, "SELFBALANCE", 0, 1, GasLow)

	set(POP, "POP", 1, 0, GasBase)
	set(MLOAD, "MLOAD", 1, 1, GasVeryLow)
	set(MSTORE, "MSTORE", 2, 0, GasVeryLow)
	set(MSTORE8, "MSTORE8", 2, 0, GasVeryLow)
	set(SLOAD, "SLOAD", 1, 1, GasZero)
	set(SSTORE, "SSTORE", 2, 0, GasZero)
	set(JUMP, "JUMP", 1, 0, GasMid)
	set(JUMPI, "JUMPI", 2, 0, GasHigh)
	set(PC, "PC", 0, 1, GasBase)
	set(MSIZE, "MSIZE", 0, 1, GasBase)
	set(GAS, "GAS", 0, 1, GasBase)
	set(JUMPDEST, "JUMPDEST", 0, 0, GasJumpDest)

	for i := 1; i <= 32; i++ {
		op := PUSH1 + OpCode(i-1)
		set(op, fmt.Sprintf("PUSH%d", i), 0, 1, GasVeryLow)
		res[op].Immediate = i
	}
	for i := 1; i <= 16; i++ {
		set(DUP1+OpCode(i-1), fmt.Sprintf("DUP%d", i), i, i+1, GasVeryLow)
		set(SWAP1+OpCode(i-1), fmt.Sprintf("SWAP%d", i), i+1, i+1, GasVeryLow)
	}
	for i := 0; i <= 4; i++ {
		set(LOG0+OpCode(i), fmt.Sprintf("LOG%d", i), i+2, 0, GasLog*evm.Gas(i+1))
	}

	set(CREATE, "CREATE", 3, 1, GasCreate)
	set(CALL, "CALL", 7, 1, GasWarmAccess)
	set(CALLCODE, "CALLCODE", 7, 1, GasWarmAccess)
	set(RETURN, "RETURN", 2, 0, GasZero)
	set(DELEGATECALL, "DELEGATECALL", 6, 1, GasWarmAccess)
	set(CREATE2, "CREATE2", 4, 1, GasCreate)
	set(STATICCALL, "STATICCALL", 6, 1, GasWarmAccess)
	set(REVERT, "REVERT", 2, 0, GasZero)
	set(SELFDESTRUCT, "SELFDESTRUCT", 1, 0, GasSelfDestruct)

	// INVALID is named but never executes.
	res[INVALID] = InstructionInfo{Name: "INVALID"}
	return res
}
