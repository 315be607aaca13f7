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
	"io"

	"github.com/Fantom-foundation/evmcore/go/evm/vm"
)

// loggingRunner is a runner that logs the execution of the contract code to
// an io.Writer. Each executed instruction produces one line of the format
// <op>, <gas>, <top-of-stack>.
type loggingRunner struct {
	log io.Writer
}

// newLogger creates a new logging runner that writes to the provided
// io.Writer.
func newLogger(writer io.Writer) loggingRunner {
	return loggingRunner{log: writer}
}

func (l loggingRunner) run(c *context) (status, error) {
	status := statusRunning
	for status == statusRunning {
		if c.pc < len(c.code) && l.log != nil {
			top := "-empty-"
			if c.stack.len() > 0 {
				top = c.stack.peek().ToBig().String()
			}
			op := vm.OpCode(c.code[c.pc])
			if _, err := fmt.Fprintf(l.log, "%v, %d, %v\n", op, c.gas, top); err != nil {
				return status, err
			}
		}
		status = step(c)
	}
	return status, nil
}
