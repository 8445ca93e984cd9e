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

	"github.com/kernhal/kernhal/pkg/hal"
	"github.com/kernhal/kernhal/pkg/hostarch"
	"github.com/kernhal/kernhal/pkg/mm"
)

// PTE implements subcommands.Command for the "pte" command.
type PTE struct {
	arch string
	out  io.Writer
}

// Name implements subcommands.Command.Name.
func (*PTE) Name() string {
	return "pte"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*PTE) Synopsis() string {
	return "encode or decode a page-table entry."
}

// Usage implements subcommands.Command.Usage.
func (*PTE) Usage() string {
	return `pte [flags] encode <physical> <level> <property>
pte [flags] decode <entry>

The property is a list of R, W, X, A, D, AVAIL1, AVAIL2, USER, GLOBAL and a
cache policy (WB, UC, WC) separated by '|' or ','. Decoded properties are
printed in the same form.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (p *PTE) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.arch, "format", "", "entry format: loongarch or riscv. Defaults to the machine's architecture.")
}

// Execute implements subcommands.Command.Execute.
func (p *PTE) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	arch := p.arch
	if arch == "" {
		arch = string(platformArg(args).Arch)
	}
	codec, err := hal.CodecFor(arch)
	if err != nil {
		return failure("%v", err)
	}
	out := stdout(p.out)

	switch f.Arg(0) {
	case "encode":
		if f.NArg() != 4 {
			f.Usage()
			return subcommands.ExitUsageError
		}
		pa, err := strconv.ParseUint(f.Arg(1), 0, 64)
		if err != nil {
			return failure("bad physical address: %v", err)
		}
		level, err := strconv.Atoi(f.Arg(2))
		if err != nil {
			return failure("bad level: %v", err)
		}
		prop, err := parseProperty(f.Arg(3))
		if err != nil {
			return failure("%v", err)
		}
		var raw uint64
		if err := catch(func() { raw = codec.NewPage(hostarch.Addr(pa), level, prop) }); err != nil {
			return failure("%s: %v", arch, err)
		}
		fmt.Fprintf(out, "%#018x\n", raw)
	case "decode":
		if f.NArg() != 2 {
			f.Usage()
			return subcommands.ExitUsageError
		}
		raw, err := strconv.ParseUint(f.Arg(1), 0, 64)
		if err != nil {
			return failure("bad entry: %v", err)
		}
		e := codec.Entry(raw)
		if !e.IsPresent() {
			fmt.Fprintf(out, "not present\n")
			return subcommands.ExitSuccess
		}
		prop := e.Prop()
		fmt.Fprintf(out, "physical %v flags %v priv %v cache %s\n", e.Paddr(), prop.Flags, prop.Priv, prop.Cache.ShortString())
	default:
		f.Usage()
		return subcommands.ExitUsageError
	}
	return subcommands.ExitSuccess
}

var propertyWords = map[string]func(*mm.PageProperty){
	"R":      func(p *mm.PageProperty) { p.Flags |= mm.R },
	"W":      func(p *mm.PageProperty) { p.Flags |= mm.W },
	"X":      func(p *mm.PageProperty) { p.Flags |= mm.X },
	"RW":     func(p *mm.PageProperty) { p.Flags |= mm.RW },
	"RX":     func(p *mm.PageProperty) { p.Flags |= mm.RX },
	"RWX":    func(p *mm.PageProperty) { p.Flags |= mm.RWX },
	"A":      func(p *mm.PageProperty) { p.Flags |= mm.Accessed },
	"D":      func(p *mm.PageProperty) { p.Flags |= mm.Dirty },
	"AVAIL1": func(p *mm.PageProperty) { p.Flags |= mm.Avail1 },
	"AVAIL2": func(p *mm.PageProperty) { p.Flags |= mm.Avail2 },
	"USER":   func(p *mm.PageProperty) { p.Priv |= mm.User },
	"GLOBAL": func(p *mm.PageProperty) { p.Priv |= mm.Global },
	"WB":     func(p *mm.PageProperty) { p.Cache = mm.Writeback },
	"UC":     func(p *mm.PageProperty) { p.Cache = mm.Uncacheable },
	"WC":     func(p *mm.PageProperty) { p.Cache = mm.WriteCombining },
	"WP":     func(p *mm.PageProperty) { p.Cache = mm.WriteProtected },
	"WT":     func(p *mm.PageProperty) { p.Cache = mm.Writethrough },
	"-":      func(*mm.PageProperty) {},
}

// parseProperty parses the property syntax printed by mm.PageFlags.String
// and mm.PrivFlags.String.
func parseProperty(s string) (mm.PageProperty, error) {
	var p mm.PageProperty
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' })
	for _, w := range words {
		set, ok := propertyWords[strings.ToUpper(strings.TrimSpace(w))]
		if !ok {
			return mm.PageProperty{}, fmt.Errorf("unknown page property %q", w)
		}
		set(&p)
	}
	return p, nil
}

// catch runs fn and returns its panic, if any, as an error.
func catch(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	fn()
	return nil
}
