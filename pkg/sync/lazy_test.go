// Copyright 2025 The gVisor Authors.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd.

package sync

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestLazyInitOnce(t *testing.T) {
	var (
		l     Lazy[*int]
		calls atomic.Int32
	)
	v := new(int)
	if !l.Install(v, func(p *int) error {
		calls.Add(1)
		*p = 42
		return nil
	}) {
		t.Fatalf("first Install failed")
	}
	if l.Install(new(int), nil) {
		t.Errorf("second Install succeeded")
	}

	var wg WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := l.Get()
			if err != nil || got != v || *got != 42 {
				t.Errorf("Get() = %v, %v", got, err)
			}
		}()
	}
	wg.Wait()
	if n := calls.Load(); n != 1 {
		t.Errorf("initializer ran %d times, want 1", n)
	}
}

func TestLazyNotInstalled(t *testing.T) {
	var l Lazy[string]
	if _, err := l.Get(); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("Get() err = %v, want %v", err, ErrNotInstalled)
	}
}

func TestLazyStickyError(t *testing.T) {
	var l Lazy[int]
	boom := errors.New("boom")
	l.Install(7, func(int) error { return boom })
	for i := 0; i < 2; i++ {
		if _, err := l.Get(); err != boom {
			t.Errorf("Get() #%d err = %v, want %v", i, err, boom)
		}
	}
}
