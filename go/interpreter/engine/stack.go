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
	"strings"
	"sync"

	"github.com/Fantom-foundation/evmcore/go/evm"
	"github.com/holiman/uint256"
)

const maxStackSize = 1024 // Maximum size of VM stack allowed.

// Stack is the 1024-element 256-bit word-wide stack used by the VM.
// It is a fixed-size stack to prevent memory reallocation during execution.
//
// The exported operations check their bounds and report violations as
// errors. The unexported ones used by the interpreter loop do not; the loop
// validates the stack usage of every instruction before executing it.
//
// Each stack consumes 1024 * 32 bytes = 32KB of memory. To avoid the cost
// of creating and destroying them, stacks are recycled through a pool.
// To obtain an empty stack use NewStack(), to return it use ReturnStack(s).
//
// Example usage:
//
//	s := NewStack()
//	defer ReturnStack(s)
//	<use the stack in your local scope>
//
// The stack is not thread-safe. NewStack() and ReturnStack() are thread-safe.
type Stack struct {
	data         [maxStackSize]uint256.Int
	stackPointer int
}

// Push adds a copy of the given value to the top of the stack. If the stack
// is full, ErrStackOverflow is returned and the stack is not modified.
func (s *Stack) Push(value *uint256.Int) error {
	if s.stackPointer >= maxStackSize {
		return evm.ErrStackOverflow
	}
	s.push(value)
	return nil
}

// Pop removes the top element from the stack. The returned pointer is only
// valid until the next push operation. On an empty stack ErrStackUnderflow
// is returned.
func (s *Stack) Pop() (*uint256.Int, error) {
	if s.stackPointer == 0 {
		return nil, evm.ErrStackUnderflow
	}
	return s.pop(), nil
}

// Peek returns the element at the given depth, the top being at depth 0,
// without removing it. The result is false if the stack holds no element
// at this depth.
func (s *Stack) Peek(depth int) (*uint256.Int, bool) {
	if depth < 0 || depth >= s.stackPointer {
		return nil, false
	}
	return s.peekN(depth), true
}

// SwapTop exchanges the top element with the element at the given depth.
// SwapTop(0) is a no-op. ErrStackUnderflow is returned if the stack does not
// hold an element at this depth.
func (s *Stack) SwapTop(depth int) error {
	if depth < 0 || depth >= s.stackPointer {
		return evm.ErrStackUnderflow
	}
	s.swap(depth)
	return nil
}

// Len returns the number of elements on the stack.
func (s *Stack) Len() int {
	return s.stackPointer
}

// push adds a copy of the given value to the top of the stack.
func (s *Stack) push(d *uint256.Int) {
	s.data[s.stackPointer] = *d
	s.stackPointer++
}

// pushUndefined adds an element with an undefined value to the top of the
// stack and returns a pointer to it. Use this function if the element on
// the top should be set directly using the returned pointer.
func (s *Stack) pushUndefined() *uint256.Int {
	s.stackPointer++
	return &s.data[s.stackPointer-1]
}

// pop removes the top element from the stack and returns a pointer to it. The
// obtained pointer is only valid until the next push operation.
func (s *Stack) pop() *uint256.Int {
	s.stackPointer--
	return &s.data[s.stackPointer]
}

// peek returns a pointer to the top element of the stack without removing it.
func (s *Stack) peek() *uint256.Int {
	return &s.data[s.stackPointer-1]
}

// peekN returns a pointer to the n-th element from the top of the stack
// without removing it. peekN(0) is equivalent to peek().
func (s *Stack) peekN(n int) *uint256.Int {
	return &s.data[s.stackPointer-n-1]
}

func (s *Stack) len() int {
	return s.stackPointer
}

// swap exchanges the top element with the n-th element from the top.
func (s *Stack) swap(n int) {
	top := s.stackPointer - 1
	s.data[top-n], s.data[top] = s.data[top], s.data[top-n]
}

// dup pushes a copy of the n-th element from the top. dup(0) duplicates
// the top element.
func (s *Stack) dup(n int) {
	s.data[s.stackPointer] = s.data[s.stackPointer-n-1]
	s.stackPointer++
}

func (s *Stack) String() string {
	toHex := func(z *uint256.Int) string {
		b := strings.Builder{}
		b.WriteString("0x")
		bytes := z.Bytes32()
		for i, cur := range bytes {
			b.WriteString(fmt.Sprintf("%02x", cur))
			if (i+1)%8 == 0 && i != len(bytes)-1 {
				b.WriteString(" ")
			}
		}
		return b.String()
	}

	b := strings.Builder{}
	for i := 0; i < s.len(); i++ {
		b.WriteString(fmt.Sprintf("    [%4d] %v\n", s.len()-i-1, toHex(s.peekN(i))))
	}
	return b.String()
}

var stackPool = sync.Pool{
	New: func() any {
		return &Stack{}
	},
}

// NewStack returns an empty stack from a reuse pool.
func NewStack() *Stack {
	return stackPool.Get().(*Stack)
}

// ReturnStack returns the stack to the reuse pool. Any stack may only be
// returned once. This is not checked internally.
func ReturnStack(s *Stack) {
	s.stackPointer = 0
	stackPool.Put(s)
}
