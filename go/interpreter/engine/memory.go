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
	"github.com/Fantom-foundation/evmcore/go/evm"
	"github.com/holiman/uint256"
)

// maxMemoryExpansionSize is the largest memory size in bytes for which the
// expansion costs can be computed without overflowing 64-bit gas values.
const maxMemoryExpansionSize = 0x1FFFFFFFE0

// Memory is the byte-addressed, word-granular scratch memory of a call
// frame. Its size only grows, always in multiples of 32 bytes, and newly
// exposed bytes are zero.
//
// Accessors never charge gas. The interpreter first obtains the costs of an
// access through ExpansionCost, charges them, and only then performs it.
type Memory struct {
	store             []byte
	currentMemoryCost evm.Gas
}

func NewMemory() *Memory {
	return &Memory{}
}

// memoryCost is the total cost of a memory of the given number of words.
func memoryCost(words uint64) evm.Gas {
	return evm.Gas(words*words/512 + 3*words)
}

// ExpansionCost returns the gas required to grow the memory such that the
// range [offset, offset+size) is accessible. Empty ranges never cost
// anything, independently of their offset.
func (m *Memory) ExpansionCost(offset, size uint64) (evm.Gas, error) {
	if size == 0 {
		return 0, nil
	}
	needed := offset + size
	if needed < offset {
		return 0, evm.ErrGasUintOverflow
	}
	if needed > maxMemoryExpansionSize {
		return 0, evm.ErrMemoryLimit
	}
	if m.length() >= needed {
		return 0, nil
	}
	return memoryCost(evm.SizeInWords(needed)) - m.currentMemoryCost, nil
}

// expand grows the memory to cover [offset, offset+size) and returns the
// number of words added.
func (m *Memory) expand(offset, size uint64) uint64 {
	if size == 0 {
		return 0
	}
	before := m.activeWords()
	words := evm.SizeInWords(offset + size)
	if words <= before {
		return 0
	}
	m.store = append(m.store, make([]byte, (words-before)*32)...)
	m.currentMemoryCost = memoryCost(words)
	return words - before
}

// Load returns a copy of the given memory range, growing the memory as
// needed. The second result is the number of words the memory has grown by.
func (m *Memory) Load(offset, size uint64) ([]byte, uint64) {
	grown := m.expand(offset, size)
	if size == 0 {
		return nil, grown
	}
	res := make([]byte, size)
	copy(res, m.store[offset:offset+size])
	return res, grown
}

// Store writes the given data at the given offset, growing the memory as
// needed, and returns the number of words the memory has grown by.
func (m *Memory) Store(offset uint64, data []byte) uint64 {
	if len(data) == 0 {
		return 0
	}
	grown := m.expand(offset, uint64(len(data)))
	copy(m.store[offset:], data)
	return grown
}

// StoreByte writes a single byte at the given offset.
func (m *Memory) StoreByte(offset uint64, value byte) uint64 {
	grown := m.expand(offset, 1)
	m.store[offset] = value
	return grown
}

// StoreWord writes the 32-byte big-endian encoding of the given value at
// the given offset.
func (m *Memory) StoreWord(offset uint64, value *uint256.Int) uint64 {
	grown := m.expand(offset, 32)
	value.WriteToSlice(m.store[offset : offset+32])
	return grown
}

// Len returns the size of the memory in bytes.
func (m *Memory) Len() uint64 {
	return m.length()
}

func (m *Memory) length() uint64 {
	return uint64(len(m.store))
}

func (m *Memory) activeWords() uint64 {
	return m.length() / 32
}

// getSlice obtains a slice of size bytes from the memory at the given
// offset, growing the memory as needed. The returned slice is backed by the
// memory's internal data and invalidated by the next growth.
func (m *Memory) getSlice(offset, size uint64) []byte {
	if size == 0 {
		return nil
	}
	m.expand(offset, size)
	return m.store[offset : offset+size]
}
