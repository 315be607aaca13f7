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
	"github.com/Fantom-foundation/evmcore/go/evm/vm"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	set2BitsMask = uint16(0b11)
	set3BitsMask = uint16(0b111)
	set4BitsMask = uint16(0b1111)
	set5BitsMask = uint16(0b1_1111)
	set6BitsMask = uint16(0b11_1111)
	set7BitsMask = uint16(0b111_1111)
)

// bitvec maps the bytes of a program. An unset bit marks an instruction,
// a set bit marks immediate data of a PUSH instruction.
type bitvec []byte

func (bits bitvec) set1(pos uint64) {
	bits[pos/8] |= 1 << (pos % 8)
}

func (bits bitvec) setN(flag uint16, pos uint64) {
	a := flag << (pos % 8)
	bits[pos/8] |= byte(a)
	if b := byte(a >> 8); b != 0 {
		bits[pos/8+1] = b
	}
}

func (bits bitvec) set8(pos uint64) {
	a := byte(0xFF << (pos % 8))
	bits[pos/8] |= a
	bits[pos/8+1] = ^a
}

func (bits bitvec) set16(pos uint64) {
	a := byte(0xFF << (pos % 8))
	bits[pos/8] |= a
	bits[pos/8+1] = 0xFF
	bits[pos/8+2] = ^a
}

// codeSegment checks whether the given position holds an instruction.
func (bits bitvec) codeSegment(pos uint64) bool {
	return ((bits[pos/8] >> (pos % 8)) & 1) == 0
}

// codeBitmap marks the immediate data locations of the given code.
func codeBitmap(code []byte) bitvec {
	// The bitmap is 4 bytes longer than necessary since a PUSH32 at the end
	// of the code sets bits beyond the code length.
	bits := make(bitvec, len(code)/8+1+4)
	for pc := uint64(0); pc < uint64(len(code)); {
		op := vm.OpCode(code[pc])
		pc++
		if !vm.IsPush(op) {
			continue
		}
		numbits := op - vm.PUSH1 + 1
		if numbits >= 8 {
			for ; numbits >= 16; numbits -= 16 {
				bits.set16(pc)
				pc += 16
			}
			for ; numbits >= 8; numbits -= 8 {
				bits.set8(pc)
				pc += 8
			}
		}
		switch numbits {
		case 1:
			bits.set1(pc)
			pc += 1
		case 2:
			bits.setN(set2BitsMask, pc)
			pc += 2
		case 3:
			bits.setN(set3BitsMask, pc)
			pc += 3
		case 4:
			bits.setN(set4BitsMask, pc)
			pc += 4
		case 5:
			bits.setN(set5BitsMask, pc)
			pc += 5
		case 6:
			bits.setN(set6BitsMask, pc)
			pc += 6
		case 7:
			bits.setN(set7BitsMask, pc)
			pc += 7
		}
	}
	return bits
}

// isJumpDest reports whether the given position of the code is a JUMPDEST
// instruction, rather than a JUMPDEST byte inside PUSH data.
func isJumpDest(code []byte, bits bitvec, pos uint64) bool {
	if pos >= uint64(len(code)) {
		return false
	}
	return vm.OpCode(code[pos]) == vm.JUMPDEST && bits.codeSegment(pos)
}

// maxCachedCodeLength is the maximum length of a code in bytes for which the
// analysis is retained in the cache. It is the limit for codes stored on the
// chain; longer init codes are not cached.
const maxCachedCodeLength = 24_576

// analyzer computes code bitmaps, caching them by code hash.
type analyzer struct {
	cache *lru.Cache[evm.Hash, bitvec]
}

// newAnalyzer creates an analyzer retaining up to the given number of code
// analyses. A capacity of zero or less disables caching.
func newAnalyzer(capacity int) (*analyzer, error) {
	if capacity <= 0 {
		return &analyzer{}, nil
	}
	cache, err := lru.New[evm.Hash, bitvec](capacity)
	if err != nil {
		return nil, err
	}
	return &analyzer{cache: cache}, nil
}

// analyze returns the bitmap of the given code. If the provided code hash
// is not nil, it is assumed to be the hash of the code and used as a cache
// key.
func (a *analyzer) analyze(code []byte, codeHash *evm.Hash) bitvec {
	if a.cache == nil || codeHash == nil || len(code) > maxCachedCodeLength {
		return codeBitmap(code)
	}
	if res, found := a.cache.Get(*codeHash); found {
		return res
	}
	res := codeBitmap(code)
	a.cache.Add(*codeHash, res)
	return res
}
