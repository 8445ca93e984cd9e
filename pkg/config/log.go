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

package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kernhal/kernhal/pkg/log"
)

func (l Log) validate() error {
	if _, err := log.ParseLevel(l.Level); err != nil {
		return err
	}
	switch l.Format {
	case "", "text", "json":
		return nil
	default:
		return fmt.Errorf("unknown log format %q, want text or json", l.Format)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SetupLogging installs the emitter and level described by p.Log. Output
// goes to stderr unless a file is configured. The returned closer releases
// the log file, if any.
func (p *Platform) SetupLogging(stderr io.Writer) (io.Closer, error) {
	level, err := log.ParseLevel(p.Log.Level)
	if err != nil {
		return nil, err
	}
	out, closer := stderr, io.Closer(nopCloser{})
	if p.Log.File != "" {
		f, err := log.OpenFile(p.Log.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, log.Vars{
			"ARCH":      string(p.Arch),
			"TIMESTAMP": time.Now().Format("20060102-150405.000000"),
		})
		if err != nil {
			return nil, err
		}
		out, closer = f, f
	}
	w := &log.Writer{Next: out}
	if p.Log.Format == "json" {
		log.SetTarget(log.JSONEmitter{Writer: w})
	} else {
		log.SetTarget(log.GoogleEmitter{Emitter: w})
	}
	log.SetLevel(level)
	return closer, nil
}
