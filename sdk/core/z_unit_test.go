// Copyright 2025 Zintix Labs
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

package core

import "testing"

func TestCoreDeterminism(t *testing.T) {
	c1 := New(Default().New(7))
	c2 := New(Default().New(7))
	for i := 0; i < 5; i++ {
		if c1.Uint64() != c2.Uint64() {
			t.Fatalf("Uint64 mismatch at %d", i)
		}
	}
	if c1.IntN(10) != c2.IntN(10) {
		t.Fatalf("IntN mismatch")
	}
	if c1.Float64() != c2.Float64() {
		t.Fatalf("Float64 mismatch")
	}
}

func TestNeighbourSeedsDiffer(t *testing.T) {
	a := NewPCG64(1)
	b := NewPCG64(2)
	if a.Uint64() == b.Uint64() {
		t.Fatalf("adjacent seeds produced the same first value")
	}
}

func TestPCGBounds(t *testing.T) {
	r := NewPCG64(3)
	for i := 0; i < 10000; i++ {
		if f := r.Float64(); f < 0 || f >= 1 {
			t.Fatalf("Float64 out of range: %v", f)
		}
		if v := r.IntN(7); v < 0 || v >= 7 {
			t.Fatalf("IntN out of range: %d", v)
		}
	}
	if r.IntN(0) != -1 {
		t.Fatalf("IntN(0) should be -1")
	}
	if r.UintN(0) != 0 {
		t.Fatalf("UintN(0) should be 0")
	}
}

func TestSnapshotRestore(t *testing.T) {
	r := NewPCG64(11)
	r.Uint64()
	snap, err := r.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	want := r.Uint64()
	if err := r.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := r.Uint64(); got != want {
		t.Fatalf("restore mismatch: got %d want %d", got, want)
	}
}

func TestReplayCycles(t *testing.T) {
	r := NewReplay(0.1, 0.5, 2)
	want := []float64{0.1, 0.5}
	for i, w := range want {
		if got := r.Float64(); got != w {
			t.Fatalf("step %d: got %v want %v", i, got, w)
		}
	}
	if got := r.Float64(); got >= 1 {
		t.Fatalf("replay value must be clamped below 1, got %v", got)
	}
	if got := r.Float64(); got != 0.1 {
		t.Fatalf("replay should cycle, got %v", got)
	}

	snap, _ := r.Snapshot()
	r.Float64()
	if err := r.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := r.Float64(); got != 0.5 {
		t.Fatalf("restore position mismatch, got %v", got)
	}
}

func TestJitterRange(t *testing.T) {
	c := New(Default().New(5))
	for i := 0; i < 1000; i++ {
		j := c.Jitter(2)
		if j < 0.98 || j > 1.02 {
			t.Fatalf("jitter out of range: %v", j)
		}
	}
	if c.Jitter(0) != 1 {
		t.Fatalf("zero jitter should be 1")
	}
}
