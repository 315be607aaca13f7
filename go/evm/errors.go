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

// ConstError is a error type that can be used to define immutable
// error constants.
type ConstError string

func (e ConstError) Error() string {
	return string(e)
}

// Reasons for an exceptional halt. An execution ending with one of these
// consumes all of its gas and produces no output.
const (
	ErrStackUnderflow        = ConstError("stack underflow")
	ErrStackOverflow         = ConstError("stack overflow")
	ErrOutOfGas              = ConstError("out of gas")
	ErrInvalidOpCode         = ConstError("invalid opcode")
	ErrInvalidJump           = ConstError("invalid jump destination")
	ErrWriteProtection       = ConstError("write protection")
	ErrMemoryLimit           = ConstError("memory size limit exceeded")
	ErrGasUintOverflow       = ConstError("gas uint64 overflow")
	ErrReturnDataOutOfBounds = ConstError("return data out of bounds")
	ErrDepth                 = ConstError("max call depth exceeded")
	ErrInsufficientBalance   = ConstError("insufficient balance for transfer")
	ErrAddressCollision      = ConstError("contract address collision")
	ErrMaxCodeSizeExceeded   = ConstError("max code size exceeded")
)
