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
	"cmp"
	"fmt"
	"strings"
	"sync"

	"github.com/Fantom-foundation/evmcore/go/evm/vm"
	"golang.org/x/exp/slices"
)

// statisticRunner is a runner that collects statistics about the instruction
// sequence of the executed code.
type statisticRunner struct {
	mutex sync.Mutex
	stats *statistics
}

func (s *statisticRunner) run(c *context) (status, error) {
	stats := statsCollector{stats: newStatistics()}
	status := statusRunning
	for status == statusRunning {
		if c.pc < len(c.code) {
			stats.nextOp(vm.OpCode(c.code[c.pc]))
		}
		status = step(c)
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.stats == nil {
		s.stats = newStatistics()
	}
	s.stats.insert(stats.stats)
	return status, nil
}

// getSummary returns a summary of the collected statistics in a human-readable
// format.
func (s *statisticRunner) getSummary() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.stats == nil {
		s.stats = newStatistics()
	}
	return s.stats.print()
}

// reset clears the collected statistics.
func (s *statisticRunner) reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.stats = newStatistics()
}

// statistics contains the instruction sequence statistics of a code execution.
// It counts the number of times each instruction is executed, as well as the
// number of times each pair, triple, and quad of instructions are executed.
// Sequences are keyed by their op codes packed into a single integer, the
// most recent op code in the lowest byte.
type statistics struct {
	count       uint64
	singleCount map[uint32]uint64
	pairCount   map[uint32]uint64
	tripleCount map[uint32]uint64
	quadCount   map[uint32]uint64
}

func newStatistics() *statistics {
	return &statistics{
		singleCount: map[uint32]uint64{},
		pairCount:   map[uint32]uint64{},
		tripleCount: map[uint32]uint64{},
		quadCount:   map[uint32]uint64{},
	}
}

// insert adds the instruction counts of the given statistics to this instance.
func (s *statistics) insert(src *statistics) {
	s.count += src.count
	for _, pair := range [][2]map[uint32]uint64{
		{s.singleCount, src.singleCount},
		{s.pairCount, src.pairCount},
		{s.tripleCount, src.tripleCount},
		{s.quadCount, src.quadCount},
	} {
		for k, v := range pair[1] {
			pair[0][k] += v
		}
	}
}

// print returns a human-readable summary of the collected statistics.
func (s *statistics) print() string {
	type entry struct {
		value uint32
		count uint64
	}

	getTopN := func(data map[uint32]uint64, n int) []entry {
		list := make([]entry, 0, len(data))
		for k, c := range data {
			list = append(list, entry{k, c})
		}
		slices.SortFunc(list, func(a, b entry) int {
			if res := cmp.Compare(b.count, a.count); res != 0 {
				return res
			}
			return cmp.Compare(a.value, b.value)
		})
		return list[:min(n, len(list))]
	}

	builder := strings.Builder{}
	write := func(format string, args ...any) {
		builder.WriteString(fmt.Sprintf(format, args...))
	}

	share := func(count uint64) float32 {
		if s.count == 0 {
			return 0
		}
		return float32(count*100) / float32(s.count)
	}

	sections := []struct {
		title  string
		length int
		data   map[uint32]uint64
	}{
		{"Singles", 1, s.singleCount},
		{"Pairs", 2, s.pairCount},
		{"Triples", 3, s.tripleCount},
		{"Quads", 4, s.quadCount},
	}

	write("\n----- Statistics ------\n")
	write("\nSteps: %d\n", s.count)
	for _, section := range sections {
		write("\n%s:\n", section.title)
		for _, e := range getTopN(section.data, 5) {
			write("\t")
			for i := section.length - 1; i >= 0; i-- {
				write("%-15v", vm.OpCode(e.value>>(8*i)))
			}
			write(": %d (%.2f%%)\n", e.count, share(e.count))
		}
	}
	write("\n")

	return builder.String()
}

// statsCollector is a helper struct that keeps track of the recent history of
// instructions executed by the VM to collect instruction sequence statistics.
type statsCollector struct {
	stats   *statistics
	history uint32
}

func (s *statsCollector) nextOp(op vm.OpCode) {
	s.history = s.history<<8 | uint32(op)
	s.stats.count++
	s.stats.singleCount[s.history&0xFF]++
	if s.stats.count >= 2 {
		s.stats.pairCount[s.history&0xFFFF]++
	}
	if s.stats.count >= 3 {
		s.stats.tripleCount[s.history&0xFFFFFF]++
	}
	if s.stats.count >= 4 {
		s.stats.quadCount[s.history]++
	}
}
