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

import (
	"math"
	"testing"
)

func TestSizeInWords(t *testing.T) {
	tests := map[uint64]uint64{
		0:                   0,
		1:                   1,
		32:                  1,
		33:                  2,
		64:                  2,
		math.MaxUint64 - 31: math.MaxUint64 / 32,
		math.MaxUint64:      math.MaxUint64/32 + 1,
	}
	for size, want := range tests {
		if got := SizeInWords(size); want != got {
			t.Errorf("SizeInWords(%d): wanted %d, got %d", size, want, got)
		}
	}
}

func TestIsPrecompiledContract(t *testing.T) {
	tests := map[Address]bool{
		{}:             false,
		{19: 1}:        true,
		{19: 9}:        true,
		{19: 10}:       false,
		{18: 1, 19: 1}: false,
		{0: 1, 19: 1}:  false,
		{19: 0xff}:     false,
	}
	for address, want := range tests {
		if got := IsPrecompiledContract(address); want != got {
			t.Errorf("IsPrecompiledContract(%v): wanted %t, got %t", address, want, got)
		}
	}
	for _, address := range PrecompiledAddresses() {
		if !IsPrecompiledContract(address) {
			t.Errorf("%v should be a precompiled contract address", address)
		}
	}
}
