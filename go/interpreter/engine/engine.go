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
	"os"

	"github.com/Fantom-foundation/evmcore/go/evm"
)

// defaultAnalysisCacheSize is the number of jump destination analyses
// retained by default.
const defaultAnalysisCacheSize = 1 << 12

// Registers the engine as a possible interpreter implementation.
func init() {
	configs := map[string]Config{
		// This is the configuration to be used for production purposes.
		"engine": {
			WithShaCache: true,
		},
		"engine-no-sha-cache": {
			WithShaCache: false,
		},
		"engine-no-analysis-cache": {
			WithShaCache:      true,
			AnalysisCacheSize: -1,
		},
	}

	for name, config := range configs {
		config := config
		mustRegister(name, func(cfg any) (evm.Interpreter, error) {
			if c, ok := cfg.(Config); ok {
				return NewInterpreter(c)
			}
			return NewInterpreter(config)
		})
	}

	mustRegister("engine-logging", func(cfg any) (evm.Interpreter, error) {
		writer, ok := cfg.(io.Writer)
		if !ok {
			writer = os.Stderr
		}
		return NewInterpreter(Config{
			WithShaCache: true,
			runner:       newLogger(writer),
		})
	})

	mustRegister("engine-stats", func(any) (evm.Interpreter, error) {
		return NewInterpreter(Config{
			WithShaCache: true,
			runner:       &statisticRunner{stats: newStatistics()},
		})
	})
}

func mustRegister(name string, factory evm.InterpreterFactory) {
	if err := evm.RegisterInterpreterFactory(name, factory); err != nil {
		panic(err)
	}
}

// Config is the configuration of an engine instance.
type Config struct {
	// WithShaCache enables the caching of SHA3 results for 32 and 64 byte
	// inputs.
	WithShaCache bool
	// AnalysisCacheSize is the number of jump destination analyses retained
	// across executions. Zero selects a default, negative values disable the
	// cache.
	AnalysisCacheSize int
	runner            runner
}

type engine struct {
	config   Config
	analyzer *analyzer
}

// NewInterpreter creates an interpreter executing EVM byte-code directly
// with the given configuration.
func NewInterpreter(config Config) (*engine, error) {
	size := config.AnalysisCacheSize
	if size == 0 {
		size = defaultAnalysisCacheSize
	}
	analyzer, err := newAnalyzer(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create code analyzer: %w", err)
	}
	return &engine{config: config, analyzer: analyzer}, nil
}

func (e *engine) Execute(env evm.Environment, gas evm.Gas, substate *evm.Substate) (evm.Result, error) {
	if substate == nil {
		return evm.Result{}, fmt.Errorf("no substate provided")
	}

	var analysis bitvec
	if len(env.Code) > 0 {
		analysis = e.analyzer.analyze(env.Code, env.CodeHash)
	}

	config := interpreterConfig{
		withShaCache: e.config.WithShaCache,
		runner:       e.config.runner,
	}
	return run(config, env, gas, substate, analysis)
}

func (e *engine) DumpProfile(out io.Writer) {
	if statsRunner, ok := e.config.runner.(*statisticRunner); ok {
		fmt.Fprint(out, statsRunner.getSummary())
	}
}

func (e *engine) ResetProfile() {
	if statsRunner, ok := e.config.runner.(*statisticRunner); ok {
		statsRunner.reset()
	}
}
