// Copyright 2018 The gVisor Authors.
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

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileOpts turns a log file pattern into a path.
type FileOpts interface {
	// Build returns the path for pattern.
	Build(pattern string) string
}

// Vars is a FileOpts that replaces every %NAME% in a pattern with
// Vars["NAME"]. Unknown names are left as they are.
type Vars map[string]string

// Build implements FileOpts.Build.
func (v Vars) Build(pattern string) string {
	for name, val := range v {
		pattern = strings.ReplaceAll(pattern, "%"+name+"%", val)
	}
	return pattern
}

// OpenFile opens the log file named by expanding pattern with opts,
// creating its directory if needed. It returns a nil file for an empty
// pattern.
func OpenFile(pattern string, flags int, opts FileOpts) (*os.File, error) {
	if pattern == "" {
		return nil, nil
	}
	path := opts.Build(pattern)
	if err := os.MkdirAll(filepath.Dir(path), 0775); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, flags, 0664)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}
