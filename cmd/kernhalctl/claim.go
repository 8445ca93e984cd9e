// Copyright 2025 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/subcommands"
)

// Claim implements subcommands.Command for the "claim" command.
type Claim struct {
	threshold uint
	out       io.Writer
}

// Name implements subcommands.Command.Name.
func (*Claim) Name() string {
	return "claim"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Claim) Synopsis() string {
	return "raise interrupt lines on the machine's controller and print the claim order."
}

// Usage implements subcommands.Command.Usage.
func (*Claim) Usage() string {
	return `claim [flags] <line>[:<priority>]... - raise lines and claim them.

Every line is enabled with the given priority (default 1), raised, and then
claimed and completed on each CPU in turn until no interrupt is left.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *Claim) SetFlags(f *flag.FlagSet) {
	f.UintVar(&c.threshold, "threshold", 0, "priority threshold of every CPU.")
}

type lineSpec struct {
	n        int
	priority uint32
}

func parseLineSpec(s string) (lineSpec, error) {
	ls := lineSpec{priority: 1}
	num, prio, ok := strings.Cut(s, ":")
	n, err := strconv.Atoi(num)
	if err != nil {
		return ls, fmt.Errorf("bad line %q: %w", s, err)
	}
	ls.n = n
	if ok {
		p, err := strconv.ParseUint(prio, 0, 32)
		if err != nil {
			return ls, fmt.Errorf("bad priority %q: %w", s, err)
		}
		ls.priority = uint32(p)
	}
	return ls, nil
}

// Execute implements subcommands.Command.Execute.
func (c *Claim) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	var lines []lineSpec
	for _, a := range f.Args() {
		ls, err := parseLineSpec(a)
		if err != nil {
			return failure("%v", err)
		}
		lines = append(lines, ls)
	}

	p := platformArg(args)
	m, err := newMachine(p)
	if err != nil {
		return failure("building machine: %v", err)
	}
	defer m.Close()

	out := stdout(c.out)
	err = catch(func() {
		if err := m.ctrl.Init(); err != nil {
			panic(err)
		}
		for cpu := 0; cpu < p.CPUs; cpu++ {
			m.ctrl.SetThreshold(cpu, uint32(c.threshold))
		}
		for _, ls := range lines {
			m.ctrl.SetPriority(ls.n, ls.priority)
			m.ctrl.Enable(ls.n)
		}
		for _, ls := range lines {
			m.raise(ls.n)
		}
		for cpu := 0; cpu < p.CPUs; cpu++ {
			for {
				n, ok := m.ctrl.Claim(cpu)
				if !ok {
					break
				}
				fmt.Fprintf(out, "cpu %d: %d\n", cpu, n)
				m.ctrl.Complete(cpu, n)
			}
		}
	})
	if err != nil {
		return failure("%s: %v", p.Arch, err)
	}
	return subcommands.ExitSuccess
}
