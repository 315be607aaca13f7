// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Fantom-foundation/evmcore/go/evm"
	"github.com/Fantom-foundation/evmcore/go/processor"
	"github.com/Fantom-foundation/evmcore/go/state"
	"github.com/dsnet/golib/unitconv"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"
)

var RunCmd = AddCommonFlags(cli.Command{
	Action:    doRun,
	Name:      "run",
	Usage:     "Run the given byte code in a single transaction",
	ArgsUsage: "<hex-code>",
	Flags: []cli.Flag{
		InterpreterFlag,
		GasFlag,
		&cli.StringFlag{
			Name:  "input",
			Usage: "hex encoded call data",
		},
		&cli.StringFlag{
			Name:  "value",
			Usage: "decimal amount of wei transferred to the contract",
			Value: "0",
		},
		&cli.BoolFlag{
			Name:  "trace",
			Usage: "print every executed instruction",
		},
		&cli.BoolFlag{
			Name:  "profile",
			Usage: "print instruction statistics after the execution",
		},
		&cli.IntFlag{
			Name:  "repeat",
			Usage: "number of times the code is executed",
			Value: 1,
		},
	},
})

var (
	senderAddress   = evm.Address{0x01}
	contractAddress = evm.Address{0xC0, 0xDE}
	coinbaseAddress = evm.Address{0xC0, 0x1B}
)

func doRun(context *cli.Context) error {
	if context.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one argument, the hex encoded code")
	}
	code, err := parseHex(context.Args().First())
	if err != nil {
		return fmt.Errorf("invalid code: %w", err)
	}
	input, err := parseHex(context.String("input"))
	if err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	value, err := uint256.FromDecimal(context.String("value"))
	if err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}

	out := context.App.Writer
	interpreter, err := getInterpreter(context, out)
	if err != nil {
		return err
	}

	repeat := max(context.Int("repeat"), 1)
	p := processor.NewProcessor(interpreter)
	transaction := newTransaction(input, evm.ValueFromUint256(value), GasFlag.Fetch(context))

	var receipt evm.Receipt
	start := time.Now()
	for i := 0; i < repeat; i++ {
		receipt, err = runCode(p, code, transaction)
		if err != nil {
			return err
		}
	}
	elapsed := time.Since(start)

	printReceipt(out, receipt)
	if repeat > 1 {
		rate := float64(repeat) / elapsed.Seconds()
		fmt.Fprintf(out, "Executed %d runs in %v, ~%s runs per second\n",
			repeat, elapsed.Round(time.Millisecond), unitconv.FormatPrefix(rate, unitconv.SI, 0))
	}

	if profiling, ok := interpreter.(evm.ProfilingInterpreter); ok && context.Bool("profile") {
		profiling.DumpProfile(out)
	}
	return nil
}

func getInterpreter(context *cli.Context, out io.Writer) (evm.Interpreter, error) {
	name := InterpreterFlag.Fetch(context)
	var config []any
	switch {
	case context.Bool("trace"):
		name = "engine-logging"
		config = append(config, out)
	case context.Bool("profile"):
		name = "engine-stats"
	}
	interpreter, err := evm.NewInterpreter(name, config...)
	if err != nil {
		return nil, fmt.Errorf("failed to create interpreter: %w", err)
	}
	log.Debug("Interpreter created", "name", name)
	return interpreter, nil
}

func newTransaction(input []byte, value evm.Value, gas evm.Gas) evm.Transaction {
	return evm.Transaction{
		Sender:    senderAddress,
		Recipient: &contractAddress,
		Input:     input,
		Value:     value,
		GasLimit:  gas,
	}
}

// runCode executes the given transaction on a fresh state holding the code
// at the contract address. The sender owns exactly the transferred value;
// the gas price is zero.
func runCode(p evm.Processor, code []byte, transaction evm.Transaction) (evm.Receipt, error) {
	s := state.New(state.Accounts{
		senderAddress:   {Balance: transaction.Value},
		contractAddress: {Code: code},
	})
	block := evm.BlockContext{
		Header: evm.BlockHeader{
			Coinbase: coinbaseAddress,
			Number:   1,
			GasLimit: transaction.GasLimit,
		},
		ChainID: evm.Word{31: 1},
	}
	receipt, err := p.Run(block, transaction, s)
	if err != nil {
		return evm.Receipt{}, fmt.Errorf("failed to run transaction: %w", err)
	}
	return receipt, nil
}

func printReceipt(out io.Writer, receipt evm.Receipt) {
	fmt.Fprintf(out, "Status: %v\n", receipt.Status)
	fmt.Fprintf(out, "Gas used: %d\n", receipt.GasUsed)
	fmt.Fprintf(out, "Output: 0x%x\n", []byte(receipt.Output))
	for i, entry := range receipt.Logs {
		topics := make([]string, 0, len(entry.Topics))
		for _, topic := range entry.Topics {
			topics = append(topics, topic.String())
		}
		fmt.Fprintf(out, "Log %d: address %v, topics [%s], data 0x%x\n",
			i, entry.Address, strings.Join(topics, ", "), []byte(entry.Data))
	}
}

func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	return hex.DecodeString(s)
}
