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
	"github.com/Fantom-foundation/evmcore/go/evm/vm"
)

// GetFibExample provides a contract computing the x-th Fibonacci number in a
// loop keeping all its state on the stack.
func GetFibExample() Example {
	code := []byte{
		// Stack: n, b=1, a=0
		byte(vm.PUSH1), 4,
		byte(vm.CALLDATALOAD),
		byte(vm.PUSH1), 1,
		byte(vm.PUSH1), 0,

		// Loop header at position 7, exits if n == 0.
		byte(vm.JUMPDEST),
		byte(vm.DUP3),
		byte(vm.ISZERO),
		byte(vm.PUSH1), 25,
		byte(vm.JUMPI),

		// a, b = b, a+b
		byte(vm.DUP2),
		byte(vm.ADD),
		byte(vm.SWAP1),

		// n = n - 1
		byte(vm.SWAP2),
		byte(vm.PUSH1), 1,
		byte(vm.SWAP1),
		byte(vm.SUB),
		byte(vm.SWAP2),

		byte(vm.PUSH1), 7,
		byte(vm.JUMP),

		// Return a.
		byte(vm.JUMPDEST),
		byte(vm.PUSH1), 0,
		byte(vm.MSTORE),
		byte(vm.PUSH1), 32,
		byte(vm.PUSH1), 0,
		byte(vm.RETURN),
	}

	return exampleSpec{
		Name:      "fib",
		Code:      code,
		reference: fib,
	}.build()
}

func fib(x int) int {
	var a, b uint32 = 0, 1
	for i := 0; i < x; i++ {
		a, b = b, a+b
	}
	return int(a)
}
