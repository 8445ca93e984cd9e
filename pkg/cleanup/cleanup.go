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

// Package cleanup collects teardown functions for a partly built object, so
// that error paths undo everything and the success path hands the teardown
// to the caller.
package cleanup

// Cleanup runs its functions in reverse order of addition when Clean is
// called, unless they were released first.
type Cleanup struct {
	fns []func()
}

// Make returns a Cleanup holding f. f may be nil.
func Make(f func()) Cleanup {
	var cu Cleanup
	cu.Add(f)
	return cu
}

// Add appends f. A nil f is ignored.
func (c *Cleanup) Add(f func()) {
	if f != nil {
		c.fns = append(c.fns, f)
	}
}

// Clean runs the functions that have not been released.
func (c *Cleanup) Clean() {
	run(c.fns)
	c.fns = nil
}

// Release empties c and returns a function that runs what it held.
func (c *Cleanup) Release() func() {
	fns := c.fns
	c.fns = nil
	return func() { run(fns) }
}

func run(fns []func()) {
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
