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
	"fmt"
	"time"

	"github.com/Fantom-foundation/evmcore/go/evm"
	"github.com/Fantom-foundation/evmcore/go/examples"
	"github.com/dsnet/golib/unitconv"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
)

var BenchCmd = AddCommonFlags(cli.Command{
	Action:    doBench,
	Name:      "bench",
	Usage:     "Run the built-in example contracts and report their throughput",
	ArgsUsage: "[<example>...]",
	Flags: []cli.Flag{
		InterpreterFlag,
		&cli.IntFlag{
			Name:  "argument",
			Usage: "argument passed to each example",
			Value: 10,
		},
		&cli.IntFlag{
			Name:  "repeat",
			Usage: "number of runs per example",
			Value: 100,
		},
	},
})

func doBench(context *cli.Context) error {
	selected, err := selectExamples(context.Args().Slice())
	if err != nil {
		return err
	}

	name := InterpreterFlag.Fetch(context)
	interpreter, err := evm.NewInterpreter(name)
	if err != nil {
		return fmt.Errorf("failed to create interpreter: %w", err)
	}

	argument := context.Int("argument")
	repeat := max(context.Int("repeat"), 1)
	out := context.App.Writer
	for _, example := range selected {
		want := example.RunReference(argument)
		var result examples.Result
		start := time.Now()
		for i := 0; i < repeat; i++ {
			result, err = example.RunOn(interpreter, argument)
			if err != nil {
				return fmt.Errorf("failed to run example %s: %w", example.Name, err)
			}
		}
		elapsed := time.Since(start)
		if result.Result != want {
			return fmt.Errorf("example %s produced wrong result, wanted %d, got %d", example.Name, want, result.Result)
		}
		log.Debug("Example completed", "name", example.Name, "runs", repeat, "time", elapsed)

		rate := float64(repeat) / elapsed.Seconds()
		fmt.Fprintf(out, "%-16s gas %10d, ~%s runs per second\n",
			example.Name, result.UsedGas, unitconv.FormatPrefix(rate, unitconv.SI, 0))
	}
	return nil
}

func selectExamples(names []string) ([]examples.Example, error) {
	if len(names) == 0 {
		return examples.All(), nil
	}
	res := make([]examples.Example, 0, len(names))
	for _, name := range names {
		example, found := examples.Get(name)
		if !found {
			return nil, fmt.Errorf("unknown example: %s", name)
		}
		res = append(res, example)
	}
	return res, nil
}
