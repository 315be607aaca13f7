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
	"sort"

	"github.com/Fantom-foundation/evmcore/go/evm"
	"github.com/urfave/cli/v2"
	"golang.org/x/exp/maps"
)

var ListCmd = cli.Command{
	Action: doList,
	Name:   "list",
	Usage:  "List all registered interpreter configurations and processors",
}

func doList(context *cli.Context) error {
	out := context.App.Writer

	interpreters := maps.Keys(evm.GetAllRegisteredInterpreters())
	sort.Strings(interpreters)
	fmt.Fprintln(out, "Interpreters:")
	for _, name := range interpreters {
		fmt.Fprintf(out, "\t%s\n", name)
	}

	processors := maps.Keys(evm.GetAllRegisteredProcessorFactories())
	sort.Strings(processors)
	fmt.Fprintln(out, "Processors:")
	for _, name := range processors {
		fmt.Fprintf(out, "\t%s\n", name)
	}
	return nil
}
