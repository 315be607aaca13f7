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
	"bytes"
	"strings"
	"testing"

	"github.com/Fantom-foundation/evmcore/go/evm"
	"github.com/Fantom-foundation/evmcore/go/processor"
)

// Computes 2+3 and returns the result as a 32 byte word.
const addAndReturn = "0x600260030160005260206000f3"

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	err := app.Run(append([]string{"evmrun", "--verbosity", "0"}, args...))
	return out.String(), err
}

func TestRun_ExecutesCodeAndPrintsResult(t *testing.T) {
	out, err := runApp(t, "run", addAndReturn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"Status: success",
		"Output: 0x0000000000000000000000000000000000000000000000000000000000000005",
	}
	for _, line := range want {
		if !strings.Contains(out, line) {
			t.Errorf("output does not contain %q:\n%s", line, out)
		}
	}
}

func TestRun_TraceAndProfileProduceOutput(t *testing.T) {
	tests := map[string]string{
		"--trace":   "PUSH1, ",
		"--profile": "Steps: 8",
	}
	for flag, want := range tests {
		t.Run(flag, func(t *testing.T) {
			out, err := runApp(t, "run", flag, addAndReturn)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(out, want) {
				t.Errorf("output does not contain %q:\n%s", want, out)
			}
		})
	}
}

func TestRun_RepeatReportsThroughput(t *testing.T) {
	out, err := runApp(t, "run", "--repeat", "5", addAndReturn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Executed 5 runs") {
		t.Errorf("missing throughput report:\n%s", out)
	}
}

func TestRun_InvalidArgumentsAreReported(t *testing.T) {
	tests := map[string][]string{
		"no code":             {"run"},
		"invalid code":        {"run", "0xZZ"},
		"invalid input":       {"run", "--input", "0x1", addAndReturn},
		"invalid value":       {"run", "--value", "abc", addAndReturn},
		"unknown interpreter": {"run", "--interpreter", "unknown", addAndReturn},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := runApp(t, args...); err == nil {
				t.Errorf("expected an error")
			}
		})
	}
}

func TestRunCode_TransfersValueAndLogs(t *testing.T) {
	// LOG0 of the CALLVALUE stored in memory.
	code, err := parseHex("0x3460005260206000a0")
	if err != nil {
		t.Fatalf("failed to parse code: %v", err)
	}
	interpreter, err := evm.NewInterpreter("engine")
	if err != nil {
		t.Fatalf("failed to create interpreter: %v", err)
	}
	transaction := newTransaction(nil, evm.NewValue(42), 100_000)
	receipt, err := runCode(processor.NewProcessor(interpreter), code, transaction)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want, got := evm.StatusSuccess, receipt.Status; want != got {
		t.Fatalf("unexpected status, wanted %v, got %v", want, got)
	}
	if want, got := 1, len(receipt.Logs); want != got {
		t.Fatalf("unexpected number of logs, wanted %d, got %d", want, got)
	}
	if want, got := byte(42), receipt.Logs[0].Data[31]; want != got {
		t.Errorf("unexpected log data, wanted %d, got %d", want, got)
	}
}

func TestParseHex(t *testing.T) {
	tests := map[string][]byte{
		"":         {},
		"0x":       {},
		"0x0102":   {1, 2},
		"abcd":     {0xab, 0xcd},
		" 0x10 \n": {0x10},
	}
	for input, want := range tests {
		got, err := parseHex(input)
		if err != nil {
			t.Errorf("unexpected error for %q: %v", input, err)
		}
		if !bytes.Equal(want, got) {
			t.Errorf("unexpected result for %q, wanted %x, got %x", input, want, got)
		}
	}
}

func TestFuzz_RandomProgramsCauseNoIssues(t *testing.T) {
	interpreter, err := evm.NewInterpreter("engine")
	if err != nil {
		t.Fatalf("failed to create interpreter: %v", err)
	}
	issues := fuzz(processor.NewProcessor(interpreter), fuzzConfig{
		seed:    1,
		count:   200,
		maxSize: 64,
		jobs:    4,
	})
	for _, issue := range issues {
		t.Errorf("issue for code 0x%x: %v", issue.code, issue.err)
	}
}

func TestFuzzCommand_ReportsSummary(t *testing.T) {
	out, err := runApp(t, "fuzz", "--count", "20", "--jobs", "2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No issues found") {
		t.Errorf("missing summary:\n%s", out)
	}
}

func TestBench_ReportsSelectedExamples(t *testing.T) {
	out, err := runApp(t, "bench", "--repeat", "2", "fib", "sha3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"fib", "sha3", "runs per second"} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "arithmetic") {
		t.Errorf("output contains example that was not selected:\n%s", out)
	}
}

func TestBench_UnknownExampleIsAnError(t *testing.T) {
	if _, err := runApp(t, "bench", "unknown"); err == nil {
		t.Errorf("expected an error")
	}
}

func TestList_PrintsRegisteredComponents(t *testing.T) {
	out, err := runApp(t, "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"engine", "engine-stats", processor.Name} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
}
