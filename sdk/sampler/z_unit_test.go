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

package sampler

import (
	"errors"
	"math"
	"testing"

	"github.com/zintix-labs/gachalab/sdk/core"
	"github.com/zintix-labs/gachalab/spec"
	"gonum.org/v1/gonum/stat/distuv"
)

// -----------------------------------------------------------------------------
// Helper Functions
// -----------------------------------------------------------------------------

// assertPanic 驗證函數是否如預期觸發 panic
func assertPanic(t *testing.T, f func(), msg string) {
	t.Helper()
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected panic for %s, but got none", msg)
		}
	}()
	f()
}

// checkDistribution 以卡方適合度檢定驗證抽樣分佈，p 值低於 alpha 視為失敗。
// 權重 0 的索引必須完全沒有出現。
func checkDistribution(t *testing.T, name string, weights []float64, samples []int, alpha float64) {
	t.Helper()
	total := 0.0
	for _, w := range weights {
		total += w
	}
	counts := make([]int, len(weights))
	for _, idx := range samples {
		counts[idx]++
	}
	n := float64(len(samples))
	chi2, df := 0.0, -1
	for i, w := range weights {
		if w == 0 {
			if counts[i] > 0 {
				t.Errorf("[%s] expected 0 samples for index %d (weight 0), got %d", name, i, counts[i])
			}
			continue
		}
		exp := n * w / total
		d := float64(counts[i]) - exp
		chi2 += d * d / exp
		df++
	}
	if df < 1 {
		return
	}
	p := distuv.ChiSquared{K: float64(df)}.Survival(chi2)
	if p < alpha {
		t.Errorf("[%s] chi2=%.3f df=%d p=%.5f < %.5f, counts=%v", name, chi2, df, p, alpha, counts)
	}
}

func weightsOf(vals ...float64) []spec.Weight {
	names := []string{"rare", "epic", "legendary", "mythic", "extra"}
	ws := make([]spec.Weight, len(vals))
	for i, v := range vals {
		ws[i] = spec.Weight{Name: names[i], Value: v}
	}
	return ws
}

// -----------------------------------------------------------------------------
// Cumulative
// -----------------------------------------------------------------------------

// TestCumulativeScriptedSequence 固定亂數腳本時，累積掃描依宣告順序對應分類。
func TestCumulativeScriptedSequence(t *testing.T) {
	s, err := NewCumulative(weightsOf(80, 15, 5))
	if err != nil {
		t.Fatalf("NewCumulative: %v", err)
	}
	c := core.New(core.NewReplay(0.1, 0.85, 0.1, 0.97))
	want := []string{"rare", "epic", "rare", "legendary"}
	for i, w := range want {
		if got := s.Name(s.Pick(c)); got != w {
			t.Fatalf("pick %d: want %s, got %s", i, w, got)
		}
	}
}

func TestCumulativeBoundaries(t *testing.T) {
	s, _ := NewCumulative(weightsOf(80, 15, 5))
	cases := []struct {
		u    float64
		want string
	}{
		{0, "rare"},
		{0.7999, "rare"},
		{0.8, "epic"},
		{0.9499, "epic"},
		{0.95, "legendary"},
		{0.999999, "legendary"},
	}
	for _, tc := range cases {
		c := core.New(core.NewReplay(tc.u))
		if got := s.Name(s.Pick(c)); got != tc.want {
			t.Errorf("u=%v: want %s, got %s", tc.u, tc.want, got)
		}
	}
}

func TestCumulativeDistribution(t *testing.T) {
	vals := []float64{0.80, 0.15, 0.05}
	s, _ := NewCumulative(weightsOf(vals...))
	c := core.New(core.Default().New(20250101))
	samples := make([]int, 200000)
	for i := range samples {
		samples[i] = s.Pick(c)
	}
	checkDistribution(t, "Cumulative", vals, samples, 0.001)
}

// TestCumulativeZeroWeightNeverPicked 權重 0 的分類（含最後一個）不會被選中。
func TestCumulativeZeroWeightNeverPicked(t *testing.T) {
	vals := []float64{0, 3, 1, 0}
	s, err := NewCumulative(weightsOf(vals...))
	if err != nil {
		t.Fatalf("NewCumulative: %v", err)
	}
	c := core.New(core.Default().New(7))
	samples := make([]int, 50000)
	for i := range samples {
		samples[i] = s.Pick(c)
	}
	checkDistribution(t, "Cumulative zero", vals, samples, 0.001)

	// u 極接近 1 時落到最後一個正權重分類
	c = core.New(core.NewReplay(math.Nextafter(1, 0)))
	if got := s.Name(s.Pick(c)); got != "legendary" {
		t.Fatalf("upper edge: want legendary, got %s", got)
	}
}

func TestCumulativeProbabilities(t *testing.T) {
	s, _ := NewCumulative(weightsOf(8, 1.5, 0.5))
	want := []float64{0.8, 0.15, 0.05}
	for i, p := range s.Probabilities() {
		if math.Abs(p-want[i]) > 1e-12 {
			t.Fatalf("prob %d: want %v got %v", i, want[i], p)
		}
	}
}

// TestInvalidDistribution 無法抽樣的權重回傳 ErrInvalidDistribution。
func TestInvalidDistribution(t *testing.T) {
	bad := [][]spec.Weight{
		nil,
		weightsOf(0, 0, 0),
		weightsOf(1, -1),
		weightsOf(math.NaN(), 1),
		weightsOf(math.Inf(1), 1),
	}
	for i, ws := range bad {
		if _, err := NewCumulative(ws); !errors.Is(err, spec.ErrInvalidDistribution) {
			t.Errorf("case %d cumulative: want ErrInvalidDistribution, got %v", i, err)
		}
		if _, err := NewAlias(ws); !errors.Is(err, spec.ErrInvalidDistribution) {
			t.Errorf("case %d alias: want ErrInvalidDistribution, got %v", i, err)
		}
	}
}

// -----------------------------------------------------------------------------
// Alias
// -----------------------------------------------------------------------------

func TestAliasDistribution(t *testing.T) {
	vals := []float64{0.80, 0.15, 0.05, 0}
	a, err := NewAlias(weightsOf(vals...))
	if err != nil {
		t.Fatalf("NewAlias: %v", err)
	}
	if a.Len() != 4 || a.Name(2) != "legendary" {
		t.Fatalf("unexpected alias layout: len=%d name(2)=%s", a.Len(), a.Name(2))
	}
	c := core.New(core.Default().New(99))
	samples := make([]int, 200000)
	for i := range samples {
		samples[i] = a.Pick(c)
	}
	checkDistribution(t, "Alias", vals, samples, 0.001)
}

// TestAliasTable_Panics 驗證 Alias Table 的各種錯誤情境
func TestAliasTable_Panics(t *testing.T) {
	assertPanic(t, func() { BuildAliasTable([]int{0, 0, 0}) }, "All zero weights")
	assertPanic(t, func() { BuildAliasTable([]int{10, -1}) }, "Negative weight")
	assertPanic(t, func() { BuildAliasTable([]int{math.MaxInt, 1}) }, "Total overflow")
}

func TestScaleWeights(t *testing.T) {
	got := ScaleWeights([]float64{1e-12, 0, 1})
	if got[0] != 1 {
		t.Fatalf("tiny positive weight must scale to >= 1, got %d", got[0])
	}
	if got[1] != 0 {
		t.Fatalf("zero weight must stay 0, got %d", got[1])
	}
	if got[2] != weightScale {
		t.Fatalf("dominant weight: want %d got %d", weightScale, got[2])
	}
	if out := ScaleWeights([]float64{0, 0}); out[0] != 0 || out[1] != 0 {
		t.Fatalf("all-zero input must stay zero, got %v", out)
	}
}

func TestBuildKinds(t *testing.T) {
	ws := weightsOf(1, 1)
	p, err := Build(KindAlias, ws)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*Alias); !ok {
		t.Fatalf("KindAlias: got %T", p)
	}
	p, err = Build("", ws)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*Cumulative); !ok {
		t.Fatalf("default kind: got %T", p)
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]int{1, 3})
	if got[0] != 0.25 || got[1] != 0.75 {
		t.Fatalf("Normalize: %v", got)
	}
	if Normalize([]int{0}) != nil {
		t.Fatal("Normalize of zero total must be nil")
	}
}
