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
	"sync"
	"sync/atomic"
	"time"

	"github.com/Fantom-foundation/evmcore/go/evm"
	"github.com/Fantom-foundation/evmcore/go/processor"
	"github.com/dsnet/golib/unitconv"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"pgregory.net/rand"
)

var FuzzCmd = AddCommonFlags(cli.Command{
	Action: doFuzz,
	Name:   "fuzz",
	Usage:  "Execute random byte code and report interpreter failures",
	Flags: []cli.Flag{
		InterpreterFlag,
		JobsFlag,
		SeedFlag,
		&cli.IntFlag{
			Name:  "count",
			Usage: "number of random programs to be executed",
			Value: 10_000,
		},
		&cli.IntFlag{
			Name:  "max-size",
			Usage: "maximum size of the generated programs",
			Value: 256,
		},
	},
})

func doFuzz(context *cli.Context) error {
	interpreter, err := evm.NewInterpreter(InterpreterFlag.Fetch(context))
	if err != nil {
		return fmt.Errorf("failed to create interpreter: %w", err)
	}

	config := fuzzConfig{
		seed:    SeedFlag.Fetch(context),
		count:   context.Int("count"),
		maxSize: max(context.Int("max-size"), 1),
		jobs:    JobsFlag.Fetch(context),
	}

	out := context.App.Writer
	fmt.Fprintf(out, "Fuzzing %d programs with seed %d using %d jobs ...\n", config.count, config.seed, config.jobs)

	start := time.Now()
	issues := fuzz(processor.NewProcessor(interpreter), config)
	elapsed := time.Since(start)

	rate := float64(config.count) / elapsed.Seconds()
	fmt.Fprintf(out, "Executed %d programs in %v, ~%s programs per second\n",
		config.count, elapsed.Round(time.Millisecond), unitconv.FormatPrefix(rate, unitconv.SI, 0))

	for _, issue := range issues {
		fmt.Fprintf(out, "----------------------------\ncode: 0x%x\n%v\n", issue.code, issue.err)
	}
	if len(issues) > 0 {
		return fmt.Errorf("found %d issues", len(issues))
	}
	fmt.Fprintln(out, "No issues found")
	return nil
}

type fuzzConfig struct {
	seed    uint64
	count   int
	maxSize int
	jobs    int
}

type issue struct {
	code []byte
	err  error
}

// fuzz runs randomly generated programs on the given processor. Any error
// reported by the processor is an issue; halting conditions of the programs
// are not.
func fuzz(p evm.Processor, config fuzzConfig) []issue {
	var (
		next   atomic.Int64
		mu     sync.Mutex
		issues []issue
		wg     sync.WaitGroup
	)

	wg.Add(config.jobs)
	for job := 0; job < config.jobs; job++ {
		go func() {
			defer wg.Done()
			for {
				i := next.Add(1) - 1
				if i >= int64(config.count) {
					return
				}
				// Each program has its own seed to make runs reproducible
				// independently of the job scheduling.
				rnd := rand.New(config.seed, uint64(i))
				code := make([]byte, rnd.Intn(config.maxSize)+1)
				_, _ = rnd.Read(code)

				transaction := newTransaction(nil, evm.Value{}, 1_000_000)
				if _, err := runCode(p, code, transaction); err != nil {
					log.Warn("Fuzzing found an issue", "code", fmt.Sprintf("0x%x", code), "err", err)
					mu.Lock()
					issues = append(issues, issue{code: code, err: err})
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	return issues
}
