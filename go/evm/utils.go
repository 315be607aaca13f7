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

import "math"

// SizeInWords returns the number of words required to store the given size,
// checking that size+32 does not overflow uint64.
func SizeInWords(size uint64) uint64 {
	if size > math.MaxUint64-31 {
		return math.MaxUint64/32 + 1
	}
	return (size + 31) / 32
}

// IsPrecompiledContract reports whether the given address is in the range
// reserved for precompiled contracts (0x01-0x09).
func IsPrecompiledContract(recipient Address) bool {
	for i := 0; i < 19; i++ {
		if recipient[i] != 0 {
			return false
		}
	}
	return 1 <= recipient[19] && recipient[19] <= 9
}

// PrecompiledAddresses lists the addresses reserved for precompiled
// contracts, which are warm from the start of every transaction.
func PrecompiledAddresses() []Address {
	res := make([]Address, 0, 9)
	for i := byte(1); i <= 9; i++ {
		res = append(res, Address{19: i})
	}
	return res
}
