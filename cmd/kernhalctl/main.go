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

// Binary kernhalctl exercises the hardware abstraction layer against the
// software machine models: it encodes and decodes page-table entries,
// drives interrupt controllers and runs scripted user programs through the
// trap dispatchers.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/kernhal/kernhal/pkg/config"
	"github.com/kernhal/kernhal/pkg/log"
)

var (
	configPath = flag.String("config", "", "machine description (.toml, .yaml or .yml). If unset, the QEMU virt machine of -arch is used.")
	archName   = flag.String("arch", string(config.ArchRISCV), "architecture of the default machine: loongarch or riscv.")
	debug      = flag.Bool("debug", false, "enable debug logging.")
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(new(PTE), "")
	subcommands.Register(new(Claim), "")
	subcommands.Register(new(Run), "")
	flag.Parse()

	p, err := loadPlatform(*configPath, config.Arch(*archName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "kernhalctl: %v\n", err)
		os.Exit(int(subcommands.ExitFailure))
	}
	if *debug {
		p.Log.Level = "debug"
	}
	closer, err := p.SetupLogging(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kernhalctl: %v\n", err)
		os.Exit(int(subcommands.ExitFailure))
	}
	log.Debugf("machine: %+v", p)

	status := subcommands.Execute(context.Background(), p)
	closer.Close()
	os.Exit(int(status))
}

// loadPlatform reads the machine at path, or returns the default machine of
// arch if path is empty.
func loadPlatform(path string, arch config.Arch) (*config.Platform, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.Default(arch)
}

// platformArg extracts the machine passed to subcommands.Execute.
func platformArg(args []any) *config.Platform {
	for _, a := range args {
		if p, ok := a.(*config.Platform); ok {
			return p
		}
	}
	panic("no platform passed to command")
}

// failure reports an error and returns the failure status.
func failure(format string, v ...any) subcommands.ExitStatus {
	log.Warningf(format, v...)
	fmt.Fprintf(os.Stderr, "kernhalctl: "+format+"\n", v...)
	return subcommands.ExitFailure
}

// stdout returns w, or os.Stdout if w is nil.
func stdout(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}
