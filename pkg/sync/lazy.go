// Copyright 2025 The gVisor Authors.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd.

package sync

import (
	"errors"
	"sync"
)

// ErrNotInstalled is returned by Lazy.Get before a value has been installed.
var ErrNotInstalled = errors.New("no value installed")

// Lazy is a process-wide handle to a value that is installed at most once
// and initialized exactly once, on first use.
//
// The zero value is an empty handle. Lazy must not be copied.
type Lazy[T any] struct {
	_ NoCopy

	mu        sync.Mutex
	val       T
	installed bool
	init      func(T) error

	once sync.Once
	err  error
}

// Install sets the value and the function that initializes it. Only the
// first call has an effect; Install reports whether v was installed.
func (l *Lazy[T]) Install(v T, init func(T) error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.installed {
		return false
	}
	l.val = v
	l.init = init
	l.installed = true
	return true
}

// Load returns the installed value without initializing it.
func (l *Lazy[T]) Load() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.val, l.installed
}

// Get returns the installed value, running its initializer first if this is
// the first call. The initializer's error is sticky.
func (l *Lazy[T]) Get() (T, error) {
	v, ok := l.Load()
	if !ok {
		return v, ErrNotInstalled
	}
	l.once.Do(func() {
		if l.init != nil {
			l.err = l.init(v)
		}
	})
	return v, l.err
}
