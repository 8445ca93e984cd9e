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
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestLevelJSON(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Level
	}{
		{`"warning"`, Warning},
		{`"info"`, Info},
		{`"debug"`, Debug},
		{"0", Warning},
		{"1", Info},
		{"2", Debug},
	} {
		var l Level
		if err := json.Unmarshal([]byte(tc.in), &l); err != nil || l != tc.want {
			t.Errorf("Unmarshal(%s) = %v, %v, want %v", tc.in, l, err, tc.want)
		}
		b, err := json.Marshal(tc.want)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", tc.want, err)
		}
		var back Level
		if err := json.Unmarshal(b, &back); err != nil || back != tc.want {
			t.Errorf("%v did not survive a round trip through %s", tc.want, b)
		}
	}
	var l Level
	if err := json.Unmarshal([]byte(`"fatal"`), &l); err == nil {
		t.Errorf("Unmarshal(fatal) succeeded")
	}
}

func TestJSONEmitter(t *testing.T) {
	var buf bytes.Buffer
	e := JSONEmitter{&Writer{Next: &buf}}
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e.Emit(0, Warning, ts, "hart %d: illegal instruction", 3)

	var got struct {
		Msg    string    `json:"msg"`
		Level  Level     `json:"level"`
		Time   time.Time `json:"time"`
		Source string    `json:"source"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output %q is not json: %v", buf.String(), err)
	}
	if got.Msg != "hart 3: illegal instruction" || got.Level != Warning || !got.Time.Equal(ts) {
		t.Errorf("emitted %+v", got)
	}
	if !strings.HasPrefix(got.Source, "json_test.go:") {
		t.Errorf("source = %q, want this file", got.Source)
	}
}
